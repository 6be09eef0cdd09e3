//go:generate mockgen -package=taskqueue -destination=mock.go -source=interfaces.go

package taskqueue

// IDispatcher 定義了背景任務發佈端的操作介面
// launch 請求把名冊同步與成績回傳丟進 stream 後立即返回，不等待結果
type IDispatcher[T any] interface {
	Start()
	Dispatch(task T) error
	Close()
}

// IWorkerSource 定義了背景任務消費端的操作介面
// 同一個 consumer group 內的多個行程共享 stream，逐筆 ack
type IWorkerSource[T any] interface {
	Start()
	Tasks() <-chan *Task[T]
	Close()
}

package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task 封裝任務和 ack 所需資料
// 處理成功呼叫 Done，失敗呼叫 Fail：失敗的任務會進 dead-letter stream
// 再 ack，不會卡住 consumer group。名冊同步與成績回傳都是冪等的，
// dead-letter 裡的任務可以安全地重新投遞
type Task[T any] struct {
	Data T

	client    *redis.Client
	done      bool
	messageID string
	stream    string
	group     string

	raw map[string]any
}

// Done 確認任務已處理完成
func (t *Task[T]) Done(ctx context.Context) error {
	const op = "Task.Done"
	if t.done {
		return nil
	}
	if err := t.client.XAck(ctx, t.stream, t.group, t.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack task: %w", op, err)
	}
	t.done = true
	return nil
}

// Fail 把任務移到 dead-letter stream 並 ack 原訊息
func (t *Task[T]) Fail(ctx context.Context, failErr error) error {
	const op = "Task.Fail"
	if t.done {
		return nil
	}

	t.raw["error"] = failErr.Error()
	if err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stream + ":dead-letter",
		Values: t.raw,
	}).Err(); err != nil {
		return fmt.Errorf("[%s] failed to move task to dead letter queue: %w", op, err)
	}

	if err := t.client.XAck(ctx, t.stream, t.group, t.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack failed task: %w", op, err)
	}
	t.done = true
	return nil
}

type workerSourceOptions[T any] struct {
	logger       *slog.Logger
	decodeFunc   func(map[string]any) (T, error)
	bufferSize   int
	blockTimeout time.Duration
}

type WorkerSourceOption[T any] func(*workerSourceOptions[T])

// WithWorkerSourceLogger 設置日誌記錄器
func WithWorkerSourceLogger[T any](logger *slog.Logger) WorkerSourceOption[T] {
	return func(o *workerSourceOptions[T]) {
		o.logger = logger
	}
}

// WithWorkerSourceDecodeFunc 設置任務解析函數
func WithWorkerSourceDecodeFunc[T any](fn func(map[string]any) (T, error)) WorkerSourceOption[T] {
	return func(o *workerSourceOptions[T]) {
		o.decodeFunc = fn
	}
}

// WithWorkerSourceBufferSize 設置下游 channel 的緩衝大小
func WithWorkerSourceBufferSize[T any](size int) WorkerSourceOption[T] {
	return func(o *workerSourceOptions[T]) {
		o.bufferSize = size
	}
}

// WithWorkerSourceBlockTimeout 設置阻塞讀取超時時間
func WithWorkerSourceBlockTimeout[T any](d time.Duration) WorkerSourceOption[T] {
	return func(o *workerSourceOptions[T]) {
		o.blockTimeout = d
	}
}

// WorkerSource 實現了 IWorkerSource，從 Redis stream 的 consumer group 讀任務
type WorkerSource[T any] struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	downStream chan *Task[T]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    workerSourceOptions[T]
}

// NewWorkerSource 建立任務來源
// group 不存在時會在第一次讀取前建立(MKSTREAM)
func NewWorkerSource[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...WorkerSourceOption[T],
) (*WorkerSource[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	options := workerSourceOptions[T]{
		logger:       slog.Default(),
		decodeFunc:   DecodeTask[T],
		bufferSize:   1,
		blockTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &WorkerSource[T]{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		logger: options.logger.With(
			slog.String("caller", "taskqueue.WorkerSource"),
			slog.String("stream", stream),
			slog.String("group", group),
			slog.String("consumer", consumer),
		),
		options: options,
	}, nil
}

func (s *WorkerSource[T]) Start() {
	if !s.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.downStream = make(chan *Task[T], s.options.bufferSize)
	s.cancelFunc = cancel
	s.closed = false
	s.logger.Info("starting worker source")

	// 確保 consumer group 存在，BUSYGROUP 表示已建立過
	if err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err(); err != nil &&
		!isBusyGroupError(err) {
		s.logger.Error("failed to create consumer group", slog.Any("error", err))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("worker source goroutine stopped")
		defer close(s.downStream)

		for {
			if ctx.Err() != nil {
				return
			}
			message, err := s.fetchNextMessage(ctx)
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				// 其他錯誤一般是與 Redis 之間的通訊異常，重試即可
				s.logger.Error("fetch task error", slog.Any("error", err))
				continue
			}

			data, err := s.options.decodeFunc(message.Values)
			if err != nil {
				// 解析失敗不會因為重試就成功，移到 dead-letter 後繼續
				s.logger.Error("failed to decode task",
					slog.String("messageId", message.ID),
					slog.Any("error", err),
				)
				if dlErr := s.moveToDeadLetter(ctx, message); dlErr != nil {
					s.logger.Error("error moving task to dead letter",
						slog.String("messageId", message.ID),
						slog.Any("error", dlErr),
					)
				}
				continue
			}

			task := &Task[T]{
				Data:      data,
				messageID: message.ID,
				stream:    s.stream,
				group:     s.group,
				client:    s.client,
				raw:       message.Values,
			}
			select {
			case <-ctx.Done():
				return
			case s.downStream <- task:
			}
		}
	}()
}

// Tasks 回傳任務通道
func (s *WorkerSource[T]) Tasks() <-chan *Task[T] {
	return s.downStream
}

func (s *WorkerSource[T]) Close() {
	if s.closed {
		return
	}
	s.logger.Info("closing worker source")
	s.closed = true
	s.cancelFunc()
	s.wg.Wait()
	s.logger.Info("worker source closed")
}

func (s *WorkerSource[T]) fetchNextMessage(ctx context.Context) (redis.XMessage, error) {
	var message redis.XMessage
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    1,
		Block:    s.options.blockTimeout,
	}).Result()
	if len(streams) > 0 && len(streams[0].Messages) > 0 {
		message = streams[0].Messages[0]
	}
	return message, err
}

func (s *WorkerSource[T]) moveToDeadLetter(ctx context.Context, message redis.XMessage) error {
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream + ":dead-letter",
		Values: message.Values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to move task to dead letter queue: %w", err)
	}
	return s.client.XAck(ctx, s.stream, s.group, message.ID).Err()
}

func isBusyGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
)

type dispatcherOptions[T any] struct {
	logger     *slog.Logger
	bufferSize int
	encodeFunc func(T) (map[string]any, error)
}

type DispatcherOption[T any] func(*dispatcherOptions[T])

// WithDispatcherLogger 設置日誌記錄器
func WithDispatcherLogger[T any](logger *slog.Logger) DispatcherOption[T] {
	return func(o *dispatcherOptions[T]) {
		o.logger = logger
	}
}

// WithDispatcherBufferSize 設置緩衝大小
func WithDispatcherBufferSize[T any](size int) DispatcherOption[T] {
	return func(o *dispatcherOptions[T]) {
		o.bufferSize = size
	}
}

// Dispatcher 實現了 IDispatcher，把任務寫進 Redis stream
// Dispatch 只把任務放進無上限的本地緩衝，實際寫入由背景 goroutine 完成，
// launch 請求因此不會被 Redis 寫入阻塞
type Dispatcher[T any] struct {
	client     *redis.Client
	stream     string
	upstream   *chanx.UnboundedChan[map[string]any]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    dispatcherOptions[T]
}

// NewDispatcher 建立任務發佈器
func NewDispatcher[T any](client *redis.Client, stream string, opts ...DispatcherOption[T]) (*Dispatcher[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := dispatcherOptions[T]{
		logger:     slog.Default(),
		bufferSize: 100,
		encodeFunc: EncodeTask[T],
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Dispatcher[T]{
		client:  client,
		stream:  stream,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "taskqueue.Dispatcher"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (d *Dispatcher[T]) Start() {
	if !d.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.upstream = chanx.NewUnboundedChan[map[string]any](ctx, d.options.bufferSize)
	d.cancelFunc = cancel
	d.closed = false
	d.logger.Info("starting task dispatcher")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.logger.Info("dispatcher goroutine stopped")

		for {
			select {
			case <-ctx.Done():
				return
			case message := <-d.upstream.Out:
				id, err := d.client.XAdd(ctx, &redis.XAddArgs{
					Stream: d.stream,
					Values: message,
				}).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					d.logger.Error("publish task error", slog.Any("error", err))
					continue
				}
				d.logger.Debug("task published", slog.String("messageId", id))
			}
		}
	}()
}

// Dispatch 發佈一個任務
func (d *Dispatcher[T]) Dispatch(task T) error {
	if d.closed {
		return ErrClosed
	}

	message, err := d.options.encodeFunc(task)
	if err != nil {
		return fmt.Errorf("encode task error: %w", err)
	}

	d.upstream.In <- message
	return nil
}

func (d *Dispatcher[T]) Close() {
	if d.closed {
		return
	}
	d.logger.Info("closing task dispatcher")
	d.closed = true
	d.cancelFunc()
	d.wg.Wait()
	d.logger.Info("task dispatcher closed")
}

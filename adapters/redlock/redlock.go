//go:generate mockgen -package=redlock -destination=mock.go -source=redlock.go

// Package redlock 提供同步任務用的分散式鎖
// 名冊同步一次會掃整個課程的成員，同一課程同時只能有一個 worker 在跑，
// 否則交錯的 upsert 會互相覆蓋
package redlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// CourseSyncKey 回傳課程名冊同步鎖的 key
func CourseSyncKey(courseID string) string {
	return "lock:course-sync:" + courseID
}

// IMutex 定義了分散式鎖的操作介面
type IMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}

// Mutex 是帶自動續期的 redsync 鎖
// 名冊同步的時間取決於 LMS 回應速度，無法事先估計，
// 所以持有期間由背景 goroutine 定期延長，Unlock 時停止
type Mutex struct {
	*redsync.Mutex
	cancel   context.CancelFunc
	renewing bool
	mu       sync.Mutex
	wg       sync.WaitGroup
	options  mutexOptions
}

type mutexOptions struct {
	renewInterval time.Duration
	retryDelay    time.Duration
	expiry        time.Duration
	skipLockError bool
}

type MutexOption func(*mutexOptions)

// WithMutexRenewInterval 設置自動續期間隔
func WithMutexRenewInterval(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		o.renewInterval = d
	}
}

// WithMutexRetryDelay 設置重試延遲
func WithMutexRetryDelay(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		o.retryDelay = d
	}
}

// WithMutexExpiry 設置鎖過期時間
func WithMutexExpiry(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		o.expiry = d
	}
}

// WithMutexSkipLockError 設置是否忽略所有鎖定錯誤
func WithMutexSkipLockError(skip bool) MutexOption {
	return func(o *mutexOptions) {
		o.skipLockError = skip
	}
}

// NewMutex 創建一個帶自動續期功能的互斥鎖
func NewMutex(client *redis.Client, key string, opts ...MutexOption) IMutex {
	options := mutexOptions{
		expiry:        8 * time.Second,
		retryDelay:    500 * time.Millisecond,
		renewInterval: 0,
		skipLockError: false,
	}
	for _, opt := range opts {
		opt(&options)
	}

	// 如果未設置續期間隔，使用過期時間的1/3
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	pool := goredis.NewPool(client)
	rs := redsync.New(pool)

	mutex := rs.NewMutex(
		key,
		redsync.WithExpiry(options.expiry),
		redsync.WithTries(1),
		redsync.WithRetryDelay(options.retryDelay),
	)

	return &Mutex{
		Mutex:   mutex,
		options: options,
	}
}

// Lock 獲取鎖並啟動自動續期，支持通過context取消
func (m *Mutex) Lock(ctx context.Context) (context.Context, error) {
	timer := time.NewTimer(1)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			err := m.Mutex.LockContext(ctx)
			if err == nil {
				lockCtx, cancel := context.WithCancel(ctx)
				m.cancel = cancel
				m.startAutoRenew(lockCtx)
				return lockCtx, nil
			}
			// 只有在獲取鎖失敗或設置了忽略錯誤(skipLockError)時才重試
			var commErr *redsync.RedisError
			if !m.options.skipLockError && errors.As(err, &commErr) {
				return nil, fmt.Errorf("failed to acquire lock: %w", err)
			}
			timer.Reset(m.options.retryDelay)
		}
	}
}

// Unlock 停止自動續期並釋放鎖
func (m *Mutex) Unlock() (bool, error) {
	m.stopAutoRenew()
	m.wg.Wait()
	return m.Mutex.Unlock()
}

// Valid 檢查鎖是否仍然有效，通過比較當前時間和過期時間判斷
func (m *Mutex) Valid() bool {
	return time.Now().Before(m.Mutex.Until()) && m.renewing
}

func (m *Mutex) startAutoRenew(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renewing {
		return
	}

	m.renewing = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.options.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				success, err := m.Mutex.Extend()
				if err != nil || !success {
					m.stopAutoRenew()
					return
				}
			}
		}
	}()
}

func (m *Mutex) stopAutoRenew() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.renewing {
		return
	}

	m.renewing = false
	if m.cancel != nil {
		m.cancel()
	}
}

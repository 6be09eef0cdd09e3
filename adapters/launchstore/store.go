package launchstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"ejournal/adapters/lti"
)

// Store 實現了 IStore 介面，把 LaunchContext 暫存在 Redis
// TTL 綁定 refresh token 的有效期：redirect 沒有在效期內回來就只能重新 launch。
// 多個 worker 會同時讀寫，所有操作都走 Redis，不在行程內保存狀態
type Store struct {
	client  *redis.Client
	options StoreOptions
}

// StoreOptions 定義了 Store 的配置選項
type StoreOptions struct {
	Prefix string
	TTL    time.Duration
}

type StoreOption func(*StoreOptions)

// WithStorePrefix 設定 key 前綴
func WithStorePrefix(prefix string) StoreOption {
	return func(o *StoreOptions) {
		o.Prefix = prefix
	}
}

// WithStoreTTL 設定 session 的存活時間
func WithStoreTTL(ttl time.Duration) StoreOption {
	return func(o *StoreOptions) {
		o.TTL = ttl
	}
}

// NewStore 建立一個新的 Store 實例
func NewStore(client *redis.Client, opts ...StoreOption) IStore {
	options := &StoreOptions{
		Prefix: "lti:launch:",
		TTL:    time.Hour,
	}
	for _, opt := range opts {
		opt(options)
	}
	return &Store{
		client:  client,
		options: *options,
	}
}

// Put 寫入一筆 launch session
// 每個 launch id 只會寫入一次，帶 TTL，之後不再更新
func (s *Store) Put(ctx context.Context, launchID string, lc *lti.LaunchContext) error {
	const op = "launchstore.Store.Put"

	raw, err := msgpack.Marshal(lc)
	if err != nil {
		return fmt.Errorf("[%s] Fail to marshal launch context, err=%w", op, err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	if err := s.client.Set(ctx, s.options.Prefix+launchID, encoded, s.options.TTL).Err(); err != nil {
		return fmt.Errorf("[%s] Fail to store launch context, err=%w", op, err)
	}
	return nil
}

// Take 取出並銷毀一筆 launch session(GETDEL，read-once)
// 不存在或已過期回傳 lti.ErrLaunchSessionExpired
func (s *Store) Take(ctx context.Context, launchID string) (*lti.LaunchContext, error) {
	const op = "launchstore.Store.Take"

	encoded, err := s.client.GetDel(ctx, s.options.Prefix+launchID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, lti.ErrLaunchSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load launch context, err=%w", op, err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode launch context, err=%w", op, err)
	}
	lc := new(lti.LaunchContext)
	if err := msgpack.Unmarshal(raw, lc); err != nil {
		return nil, fmt.Errorf("[%s] Fail to unmarshal launch context, err=%w", op, err)
	}
	return lc, nil
}

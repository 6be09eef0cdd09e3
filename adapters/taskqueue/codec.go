package taskqueue

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrPointerType = errors.New("pointer type is not allowed")
	ErrClosed      = errors.New("task queue is closed")
)

// EncodeTask 把任務序列化成 stream message(msgpack + base64，封在 data 欄位)
func EncodeTask[T any](task T) (map[string]any, error) {
	if reflect.TypeOf(task).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	raw, err := msgpack.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	return map[string]any{
		"data": base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// DecodeTask 把 stream message 還原成任務
func DecodeTask[T any](message map[string]any) (T, error) {
	var task T
	if reflect.TypeOf(task).Kind() == reflect.Ptr {
		return task, ErrPointerType
	}
	if len(message) == 0 {
		return task, nil
	}

	encoded, ok := message["data"].(string)
	if !ok {
		return task, errors.New("data field not found or invalid type")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return task, fmt.Errorf("base64 decode error: %w", err)
	}
	if err := msgpack.Unmarshal(raw, &task); err != nil {
		return task, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return task, nil
}

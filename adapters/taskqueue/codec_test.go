package taskqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTask(t *testing.T) {
	task := TestTask{ID: "task-1", Data: "payload"}

	message, err := EncodeTask(task)
	require.NoError(t, err)
	require.Contains(t, message, "data")

	got, err := DecodeTask[TestTask](message)
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestEncodeTask_RejectsPointer(t *testing.T) {
	_, err := EncodeTask(&TestTask{ID: "task-1"})
	assert.ErrorIs(t, err, ErrPointerType)
}

func TestDecodeTask(t *testing.T) {
	tests := []struct {
		name    string
		message map[string]any
		wantErr bool
	}{
		{
			name:    "empty message yields zero value",
			message: map[string]any{},
		},
		{
			name:    "missing data field",
			message: map[string]any{"other": "x"},
			wantErr: true,
		},
		{
			name:    "data field wrong type",
			message: map[string]any{"data": 42},
			wantErr: true,
		},
		{
			name:    "data field not base64",
			message: map[string]any{"data": "!!!"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTask[TestTask](tt.message)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, TestTask{}, got)
		})
	}
}

func TestDecodeTask_RejectsPointer(t *testing.T) {
	_, err := DecodeTask[*TestTask](map[string]any{})
	assert.ErrorIs(t, err, ErrPointerType)
}

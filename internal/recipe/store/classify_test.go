package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	live := context.Background()
	expired, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name        string
		ctx         context.Context
		err         error
		unavailable bool
	}{
		{
			name:        "connection failure",
			ctx:         live,
			err:         &pq.Error{Code: "08006"},
			unavailable: true,
		},
		{
			name:        "too many connections",
			ctx:         live,
			err:         &pq.Error{Code: "53300"},
			unavailable: true,
		},
		{
			name:        "admin shutdown",
			ctx:         live,
			err:         &pq.Error{Code: "57P01"},
			unavailable: true,
		},
		{
			name: "statement canceled by item timeout",
			ctx:  live,
			err:  fmt.Errorf("insert recipe: %w", &pq.Error{Code: "57014"}),
		},
		{
			name: "numeric out of range",
			ctx:  live,
			err:  &pq.Error{Code: "22003"},
		},
		{
			name: "deadline exceeded",
			ctx:  live,
			err:  fmt.Errorf("insert tag: %w", context.DeadlineExceeded),
		},
		{
			name: "driver error after ctx ended",
			ctx:  expired,
			err:  errors.New("driver: bad connection"),
		},
		{
			name:        "driver error on live ctx",
			ctx:         live,
			err:         errors.New("driver: bad connection"),
			unavailable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.ctx, tt.err)

			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(got, ErrStoreUnavailable))
			assert.Equal(t, !tt.unavailable, errors.Is(got, ErrPersistence))
		})
	}
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"context cancelled", context.Canceled, false},
		{"validation chain error", schema.NewError(schema.ErrCodeValidation, "bad"), false},
		{"cancelled chain error", schema.NewError(schema.ErrCodeCancelled, "stop"), false},
		{"timeout chain error", schema.NewError(schema.ErrCodeTimeout, "slow"), true},
		{"step failed chain error", schema.NewError(schema.ErrCodeStepFailed, "agent err"), true},
		{"step failed wrapping validation error",
			schema.NewError(schema.ErrCodeStepFailed, "step failed").
				WithCause(schema.NewError(schema.ErrCodeValidation, "bad input")), false},
		{"step failed wrapping not found",
			schema.NewError(schema.ErrCodeStepFailed, "step failed").
				WithCause(schema.NewError(schema.ErrCodeNotFound, "no such agent")), false},
		{"step failed wrapping transient error",
			schema.NewError(schema.ErrCodeStepFailed, "step failed").
				WithCause(errors.New("connection reset")), true},
		{"connection refused string", errors.New("dial tcp: connection refused"), true},
		{"rate limit string", errors.New("429 rate limit exceeded"), true},
		{"unknown error defaults retryable", errors.New("something odd"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestComputeBackoff(t *testing.T) {
	assert.Equal(t, baseBackoff, ComputeBackoff(0))
	assert.Equal(t, 2*baseBackoff, ComputeBackoff(1))
	assert.Equal(t, 4*baseBackoff, ComputeBackoff(2))
	assert.Equal(t, maxBackoff, ComputeBackoff(20))
}

func TestWaitForBackoffCancellable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForBackoff(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)

	// Zero delay returns immediately even with a cancelled context.
	assert.NoError(t, WaitForBackoff(ctx, 0))
}

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	// Initially empty.
	assert.Equal(t, "", ExecutionID(ctx))
	assert.Equal(t, "", StepID(ctx))
	assert.Equal(t, "", AgentID(ctx))

	ctx = WithExecutionID(ctx, "exec-123")
	ctx = WithStepID(ctx, "step-1")
	ctx = WithAgentID(ctx, "agent-42")

	assert.Equal(t, "exec-123", ExecutionID(ctx))
	assert.Equal(t, "step-1", StepID(ctx))
	assert.Equal(t, "agent-42", AgentID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithIDs(context.Background(), "exec-abc", "step-x", "agent-7")

	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "execution_id=exec-abc")
	assert.Contains(t, output, "step_id=step-x")
	assert.Contains(t, output, "agent_id=agent-7")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Only the execution ID is set — step and agent must not appear.
	ctx := WithExecutionID(context.Background(), "exec-only")

	LogWith(ctx, logger).Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "execution_id=exec-only")
	assert.NotContains(t, output, "step_id")
	assert.NotContains(t, output, "agent_id")
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithIDs(context.Background(), "exec-9", "step-2", "agent-z")
	logger.InfoContext(ctx, "hello")

	output := buf.String()
	assert.Contains(t, output, `"execution_id":"exec-9"`)
	assert.Contains(t, output, `"step_id":"step-2"`)
	assert.Contains(t, output, `"agent_id":"agent-z"`)
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", "warn")

	logger.Info("dropped")
	logger.Warn("kept")

	output := buf.String()
	assert.NotContains(t, output, "dropped")
	assert.Contains(t, output, "kept")
}

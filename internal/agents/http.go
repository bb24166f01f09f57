package agents

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lattica-ai/chaincore/internal/engine"
	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

const signatureHeader = "X-Signature"

// endpointMeta is the agent metadata shape the invoker understands.
type endpointMeta struct {
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret,omitempty"`
}

// invokeRequest is the body POSTed to an agent endpoint.
type invokeRequest struct {
	AgentID string         `json:"agent_id"`
	Input   map[string]any `json:"input,omitempty"`
}

// invokeResponse is the body an agent endpoint returns.
type invokeResponse struct {
	Output     map[string]any `json:"output,omitempty"`
	TokenCount int            `json:"token_count,omitempty"`
}

// HTTPInvoker invokes agents by POSTing step input to the endpoint recorded
// in the agent's registry metadata. The request is signed with HMAC-SHA256
// when the agent has a secret configured.
type HTTPInvoker struct {
	store  store.Store
	client *http.Client
	logger *slog.Logger
}

// NewHTTPInvoker creates an HTTPInvoker. client may be nil; per-step
// deadlines come from the caller's context, not the client.
func NewHTTPInvoker(s store.Store, client *http.Client, logger *slog.Logger) *HTTPInvoker {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPInvoker{store: s, client: client, logger: logger}
}

// Invoke resolves the agent's endpoint and POSTs the step input to it.
func (i *HTTPInvoker) Invoke(ctx context.Context, agentID string, input map[string]any) (*engine.AgentResult, error) {
	agent, err := i.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"agent %q is not registered", agentID).WithCause(err)
	}

	var meta endpointMeta
	if len(agent.Metadata) > 0 {
		if err := json.Unmarshal(agent.Metadata, &meta); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"agent %q has malformed metadata: %s", agentID, err.Error()).WithCause(err)
		}
	}
	if strings.TrimSpace(meta.Endpoint) == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"agent %q has no endpoint configured", agentID)
	}

	body, err := json.Marshal(invokeRequest{AgentID: agentID, Input: input})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"marshal agent request: %s", err.Error()).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"build agent request: %s", err.Error()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(meta.Secret) != "" {
		mac := hmac.New(sha256.New, []byte(meta.Secret))
		mac.Write(body)
		req.Header.Set(signatureHeader, hex.EncodeToString(mac.Sum(nil)))
	}

	started := time.Now()
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"invoke agent %q: %s", agentID, err.Error()).WithCause(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		code := schema.ErrCodeExecution
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
			// Client errors will not improve on retry.
			code = schema.ErrCodeValidation
		}
		return nil, schema.NewErrorf(code,
			"agent %q returned %d", agentID, resp.StatusCode)
	}

	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"decode agent %q response: %s", agentID, err.Error()).WithCause(err)
	}

	i.logger.DebugContext(ctx, "agent invoked",
		"agent_id", agentID,
		"duration_ms", time.Since(started).Milliseconds(),
		"token_count", out.TokenCount)

	return &engine.AgentResult{Output: out.Output, TokenCount: out.TokenCount}, nil
}

var _ engine.AgentExecutor = (*HTTPInvoker)(nil)

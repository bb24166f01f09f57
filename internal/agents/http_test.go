package agents

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

func registerEndpointAgent(t *testing.T, s store.Store, agentID, endpoint, secret string) {
	t.Helper()
	meta, err := json.Marshal(map[string]string{"endpoint": endpoint, "secret": secret})
	require.NoError(t, err)
	require.NoError(t, s.RegisterAgent(context.Background(), &store.Agent{
		ID:       agentID,
		Name:     agentID,
		Type:     "service",
		Metadata: meta,
	}))
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var chainErr *schema.ChainError
	require.ErrorAs(t, err, &chainErr)
	return chainErr.Code
}

func TestHTTPInvokerRoundTrip(t *testing.T) {
	s := store.NewMemoryStore()

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output":      map[string]any{"summary": "three paragraphs"},
			"token_count": 42,
		})
	}))
	defer srv.Close()

	registerEndpointAgent(t, s, "summarizer", srv.URL, "")

	inv := NewHTTPInvoker(s, nil, nil)
	result, err := inv.Invoke(context.Background(), "summarizer", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "three paragraphs", result.Output["summary"])
	assert.Equal(t, 42, result.TokenCount)

	var req map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, "summarizer", req["agent_id"])
	assert.Equal(t, map[string]any{"text": "hello"}, req["input"])
}

func TestHTTPInvokerSignsRequests(t *testing.T) {
	s := store.NewMemoryStore()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mac := hmac.New(sha256.New, []byte("s3cret"))
		mac.Write(body)
		want := hex.EncodeToString(mac.Sum(nil))
		if r.Header.Get("X-Signature") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"output":{}}`))
	}))
	defer srv.Close()

	registerEndpointAgent(t, s, "signed", srv.URL, "s3cret")

	inv := NewHTTPInvoker(s, nil, nil)
	_, err := inv.Invoke(context.Background(), "signed", map[string]any{"x": float64(1)})
	assert.NoError(t, err)
}

func TestHTTPInvokerUnknownAgent(t *testing.T) {
	inv := NewHTTPInvoker(store.NewMemoryStore(), nil, nil)
	_, err := inv.Invoke(context.Background(), "ghost", nil)
	assert.Equal(t, schema.ErrCodeNotFound, errCode(t, err))
}

func TestHTTPInvokerNoEndpoint(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.RegisterAgent(context.Background(), &store.Agent{
		ID: "bare", Name: "bare", Type: "llm",
	}))

	inv := NewHTTPInvoker(s, nil, nil)
	_, err := inv.Invoke(context.Background(), "bare", nil)
	assert.Equal(t, schema.ErrCodeValidation, errCode(t, err))
}

func TestHTTPInvokerStatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  string
		retryable bool
	}{
		{"server error is retryable", http.StatusBadGateway, schema.ErrCodeExecution, true},
		{"client error is not", http.StatusUnprocessableEntity, schema.ErrCodeValidation, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()
			registerEndpointAgent(t, s, "flaky", srv.URL, "")

			inv := NewHTTPInvoker(s, nil, nil)
			_, err := inv.Invoke(context.Background(), "flaky", nil)
			require.Error(t, err)

			var chainErr *schema.ChainError
			require.ErrorAs(t, err, &chainErr)
			assert.Equal(t, tc.wantCode, chainErr.Code)
			assert.Equal(t, tc.retryable, chainErr.IsRetryable())
		})
	}
}

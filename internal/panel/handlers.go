package panel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/lattica-ai/chaincore/internal/diagram"
	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	filter := store.ChainFilter{
		CreatedBy: r.URL.Query().Get("created_by"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	if v := r.URL.Query().Get("is_active"); v != "" {
		active := v == "true"
		filter.IsActive = &active
	}

	chains, err := s.deps.Service.ListChains(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"chains": chains})
}

func (s *Server) handleChainDetail(w http.ResponseWriter, r *http.Request) {
	chain, err := s.deps.Service.GetChain(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chain)
}

func (s *Server) handleChainExecutions(w http.ResponseWriter, r *http.Request) {
	var status *schema.ExecutionStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st := schema.ExecutionStatus(v)
		status = &st
	}

	executions, err := s.deps.Service.GetChainExecutions(r.Context(), r.PathValue("id"),
		status, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"executions": executions})
}

func (s *Server) handleChainAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.deps.Service.GetChainAnalytics(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, analytics)
}

// handleChainDiagram renders the chain as mermaid (default) or ascii text.
// When execution_id is given the diagram is overlaid with step outcomes.
func (s *Server) handleChainDiagram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chain, err := s.deps.Service.GetChain(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var exec *store.Execution
	if execID := r.URL.Query().Get("execution_id"); execID != "" {
		exec, err = s.deps.Service.GetExecution(ctx, execID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if exec.ChainID != chain.ID {
			s.writeError(w, schema.NewErrorf(schema.ErrCodeValidation,
				"execution %q does not belong to chain %q", execID, chain.ID))
			return
		}
	}

	model, err := diagram.Build(chain, exec)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var rendered string
	switch format := r.URL.Query().Get("format"); format {
	case "", "mermaid":
		rendered = diagram.RenderMermaid(model)
	case "ascii":
		rendered = diagram.RenderASCII(model)
	default:
		s.writeError(w, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown diagram format %q", format))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(rendered))
}

func (s *Server) handleExecutionDetail(w http.ResponseWriter, r *http.Request) {
	exec, err := s.deps.Service.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	events, err := s.deps.Service.GetEvents(r.Context(), r.PathValue("id"), since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Service.ListAgents(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) handleScheduledRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.ScheduledRunFilter{
		ChainID: r.URL.Query().Get("chain_id"),
		Limit:   queryInt(r, "limit"),
	}
	runs, err := s.deps.Service.ListScheduledRuns(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"scheduled_runs": runs})
}

// --- helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := schema.ErrCodeExecution
	message := err.Error()

	var chainErr *schema.ChainError
	if errors.As(err, &chainErr) {
		code = chainErr.Code
		message = chainErr.Message
		switch chainErr.Code {
		case schema.ErrCodeNotFound, schema.ErrCodeChainNotFound, schema.ErrCodeExecutionNotFound:
			status = http.StatusNotFound
		case schema.ErrCodeValidation:
			status = http.StatusBadRequest
		case schema.ErrCodeConflict:
			status = http.StatusConflict
		}
	}

	s.writeJSON(w, status, map[string]string{"code": code, "error": message})
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

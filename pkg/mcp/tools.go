package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lattica-ai/chaincore/internal/dispatch"
	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// handleDefine registers a new chain definition.
func (s *ChaincoreServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	chainRaw := mcp.ParseStringMap(req, "chain", nil)
	if chainRaw == nil {
		return mcp.NewToolResultError("chain is required"), nil
	}

	// Round-trip through JSON to get a typed chain definition.
	chainBytes, marshalErr := json.Marshal(chainRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid chain: %v", marshalErr)), nil
	}
	var chain store.Chain
	if unmarshalErr := json.Unmarshal(chainBytes, &chain); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid chain: %v", unmarshalErr)), nil
	}
	if _, ok := chainRaw["is_active"]; !ok {
		chain.IsActive = true
	}
	chain.CreatedBy = agentID

	if regErr := s.ensureAgent(ctx, agentID); regErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register agent: %v", regErr)), nil
	}
	s.captureSession(ctx, agentID)

	created, createErr := s.service.CreateChain(ctx, &chain)
	if createErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create chain: %v", createErr)), nil
	}

	return marshalResult(map[string]any{
		"chain_id": created.ID,
		"name":     created.Name,
		"steps":    len(created.Steps),
	})
}

// handleExecute starts a chain execution.
func (s *ChaincoreServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chainID, err := req.RequireString("chain_id")
	if err != nil {
		return mcp.NewToolResultError("chain_id is required"), nil
	}
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	input := mcp.ParseStringMap(req, "input", nil)
	variables := mcp.ParseStringMap(req, "variables", nil)

	if regErr := s.ensureAgent(ctx, agentID); regErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register agent: %v", regErr)), nil
	}
	s.captureSession(ctx, agentID)

	exec, execErr := s.service.ExecuteChain(ctx, chainID, input, variables, agentID)
	if execErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execution failed to start: %v", execErr)), nil
	}

	return marshalResult(map[string]any{
		"execution_id": exec.ID,
		"chain_id":     exec.ChainID,
		"status":       exec.Status,
		"started_at":   exec.StartedAt,
	})
}

// handleStatus returns the current state of an execution.
func (s *ChaincoreServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := req.RequireString("execution_id")
	if err != nil {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	exec, getErr := s.service.GetExecution(ctx, executionID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", getErr)), nil
	}

	return marshalResult(exec)
}

// handleCancel requests cancellation of a running execution.
func (s *ChaincoreServer) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := req.RequireString("execution_id")
	if err != nil {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	if cancelErr := s.service.CancelExecution(ctx, executionID); cancelErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cancel failed: %v", cancelErr)), nil
	}

	return marshalResult(map[string]any{
		"ok":           true,
		"execution_id": executionID,
		"status":       schema.ExecutionCancelled,
	})
}

// handleSend dispatches an agent message.
func (s *ChaincoreServer) handleSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	toAgentID, err := req.RequireString("to_agent_id")
	if err != nil {
		return mcp.NewToolResultError("to_agent_id is required"), nil
	}
	messageType, err := req.RequireString("message_type")
	if err != nil {
		return mcp.NewToolResultError("message_type is required"), nil
	}
	content := mcp.ParseStringMap(req, "content", nil)
	priority := req.GetString("priority", "")
	fromAgentID := req.GetString("agent_id", "")

	if fromAgentID != "" {
		if regErr := s.ensureAgent(ctx, fromAgentID); regErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to register agent: %v", regErr)), nil
		}
		s.captureSession(ctx, fromAgentID)
	}

	msg, sendErr := s.service.SendMessage(ctx, dispatch.SendRequest{
		FromAgentID: fromAgentID,
		ToAgentID:   toAgentID,
		Type:        messageType,
		Content:     content,
		Priority:    schema.MessagePriority(priority),
	})
	if sendErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("send failed: %v", sendErr)), nil
	}

	return marshalResult(map[string]any{
		"message_id": msg.ID,
		"status":     msg.Status,
	})
}

// handleQuery lists chains, executions, events, messages, or agents, or
// fetches chain analytics.
func (s *ChaincoreServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "chains":
		return s.queryChains(ctx, filter)
	case "executions":
		return s.queryExecutions(ctx, filter)
	case "events":
		return s.queryEvents(ctx, filter)
	case "messages":
		return s.queryMessages(ctx, filter)
	case "agents":
		return s.queryAgents(ctx)
	case "analytics":
		return s.queryAnalytics(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *ChaincoreServer) queryChains(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	cf := store.ChainFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if isActive, ok := filter["is_active"].(bool); ok {
		cf.IsActive = &isActive
	}
	if createdBy, ok := filter["created_by"].(string); ok {
		cf.CreatedBy = createdBy
	}

	chains, err := s.service.ListChains(ctx, cf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"chains": chains})
}

func (s *ChaincoreServer) queryExecutions(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	chainID, _ := filter["chain_id"].(string)
	if chainID == "" {
		return mcp.NewToolResultError("execution query requires 'chain_id' in filter"), nil
	}

	var status *schema.ExecutionStatus
	if raw, ok := filter["status"].(string); ok && raw != "" {
		es := schema.ExecutionStatus(raw)
		status = &es
	}

	execs, err := s.service.GetChainExecutions(ctx, chainID, status,
		extractInt(filter, "limit", 50), extractInt(filter, "offset", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"executions": execs})
}

func (s *ChaincoreServer) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	executionID, _ := filter["execution_id"].(string)
	if executionID == "" {
		return mcp.NewToolResultError("event query requires 'execution_id' in filter"), nil
	}

	events, err := s.service.GetEvents(ctx, executionID, int64(extractInt(filter, "since", 0)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"events": events})
}

func (s *ChaincoreServer) queryMessages(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	mf := store.MessageFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if to, ok := filter["to_agent_id"].(string); ok {
		mf.ToAgentID = to
	}
	if from, ok := filter["from_agent_id"].(string); ok {
		mf.FromAgentID = from
	}
	if msgType, ok := filter["message_type"].(string); ok {
		mf.Type = msgType
	}
	if raw, ok := filter["status"].(string); ok && raw != "" {
		ms := schema.MessageStatus(raw)
		mf.Status = &ms
	}

	msgs, err := s.service.GetAgentMessages(ctx, mf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"messages": msgs})
}

func (s *ChaincoreServer) queryAgents(ctx context.Context) (*mcp.CallToolResult, error) {
	agents, err := s.service.ListAgents(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	// Agents with a live session report their last tool call as last_seen_at.
	for _, agent := range agents {
		if seen, ok := s.sessions.LastSeen(agent.ID); ok {
			t := seen
			agent.LastSeenAt = &t
		}
	}
	return marshalResult(map[string]any{"agents": agents})
}

func (s *ChaincoreServer) queryAnalytics(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	chainID, _ := filter["chain_id"].(string)
	if chainID == "" {
		return mcp.NewToolResultError("analytics query requires 'chain_id' in filter"), nil
	}

	analytics, err := s.service.GetChainAnalytics(ctx, chainID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(analytics)
}

// --- Internal helpers ---

// ensureAgent creates an agent record if it doesn't already exist.
func (s *ChaincoreServer) ensureAgent(ctx context.Context, agentID string) error {
	if _, err := s.service.GetAgent(ctx, agentID); err == nil {
		return nil
	}
	return s.service.RegisterAgent(ctx, &store.Agent{
		ID:        agentID,
		Name:      agentID,
		Type:      "llm",
		CreatedAt: time.Now().UTC(),
	})
}

// captureSession maps the agent ID to its current MCP session for notifications.
func (s *ChaincoreServer) captureSession(ctx context.Context, agentID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(agentID, session.SessionID())
	}
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

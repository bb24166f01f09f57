package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lattica-ai/chaincore/internal/store"
)

// AgentNotifier pushes notifications to connected agents.
type AgentNotifier interface {
	Notify(ctx context.Context, agentID string, payload map[string]any) error
}

// MCPNotifier implements AgentNotifier using MCP push notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via the agent's MCP session.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the agent's session.
// Best-effort: returns nil if the agent is not connected.
func (n *MCPNotifier) Notify(_ context.Context, agentID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(agentID)
	if !ok {
		return nil // agent not connected, best-effort
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send — not an error.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// MessageNotifier adapts an AgentNotifier to the message dispatcher's
// delivery contract, pushing dispatched agent messages to their recipient's
// live session.
type MessageNotifier struct {
	notifier AgentNotifier
}

// NewMessageNotifier creates a dispatcher notifier over an AgentNotifier.
func NewMessageNotifier(notifier AgentNotifier) *MessageNotifier {
	return &MessageNotifier{notifier: notifier}
}

func (n *MessageNotifier) Notify(ctx context.Context, msg *store.AgentMessage) error {
	return n.notifier.Notify(ctx, msg.ToAgentID, map[string]any{
		"message_id":    msg.ID,
		"from_agent_id": msg.FromAgentID,
		"message_type":  msg.Type,
		"content":       msg.Content,
		"priority":      msg.Priority,
	})
}

package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lattica-ai/chaincore/internal/service"
)

// ChaincoreServerDeps holds the dependencies for creating a ChaincoreServer.
type ChaincoreServerDeps struct {
	Service *service.Service
	Logger  *slog.Logger
}

// ChaincoreServer wraps an MCP server with chaincore-specific tool handlers.
type ChaincoreServer struct {
	service   *service.Service
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewChaincoreServer creates a ChaincoreServer with all 6 tools registered.
func NewChaincoreServer(deps ChaincoreServerDeps) *ChaincoreServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &ChaincoreServer{
		service:  deps.Service,
		sessions: NewSessionRegistry(),
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"chaincore",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Chaincore orchestrates sequential agent chains. Use chain.define to register a chain, chain.execute to start a run, chain.status to inspect progress, chain.cancel to stop a run, chain.query to list chains/executions/events/messages/agents or fetch analytics, and message.send to message another agent."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ChaincoreServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ChaincoreServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Notifier returns an AgentNotifier that pushes to agents over their live
// MCP sessions.
func (s *ChaincoreServer) Notifier() *MCPNotifier {
	return NewMCPNotifier(s.mcpServer, s.sessions)
}

// tools returns the 6 registered MCP tools as ServerTool entries.
func (s *ChaincoreServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: cancelTool(), Handler: s.handleCancel},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: sendTool(), Handler: s.handleSend},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("chain.define",
		mcp.WithDescription("Register a chain: a named, ordered sequence of agent invocation steps"),
		mcp.WithObject("chain", mcp.Required(), mcp.Description("Chain definition object (name, steps, description, is_active)")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("ID of the defining agent")),
	)
}

func executeTool() mcp.Tool {
	return mcp.NewTool("chain.execute",
		mcp.WithDescription("Start a chain execution; returns immediately with the running execution record"),
		mcp.WithString("chain_id", mcp.Required(), mcp.Description("ID of the chain to execute")),
		mcp.WithObject("input", mcp.Description("Input data seeding the execution context")),
		mcp.WithObject("variables", mcp.Description("Extra seed variables merged into the context")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("ID of the agent starting the execution")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("chain.status",
		mcp.WithDescription("Get the current state of a chain execution, including step results"),
		mcp.WithString("execution_id", mcp.Required(), mcp.Description("ID of the execution to query")),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("chain.cancel",
		mcp.WithDescription("Request cooperative cancellation of a running execution"),
		mcp.WithString("execution_id", mcp.Required(), mcp.Description("ID of the execution to cancel")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("chain.query",
		mcp.WithDescription("Query chains, executions, events, messages, agents, or chain analytics"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("chains", "executions", "events", "messages", "agents", "analytics"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (chain_id, execution_id, status, to_agent_id, from_agent_id, message_type, since, limit, offset)")),
	)
}

func sendTool() mcp.Tool {
	return mcp.NewTool("message.send",
		mcp.WithDescription("Send an asynchronous message to another registered agent"),
		mcp.WithString("to_agent_id", mcp.Required(), mcp.Description("ID of the recipient agent")),
		mcp.WithString("message_type", mcp.Required(), mcp.Description("Application-defined message type")),
		mcp.WithObject("content", mcp.Description("Message content")),
		mcp.WithString("priority",
			mcp.Enum("low", "normal", "high"),
			mcp.Description("Message priority (default: normal)"),
		),
		mcp.WithString("agent_id", mcp.Description("ID of the sending agent")),
	)
}

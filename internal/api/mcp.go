package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/personabot/internal/pipeline"
	"github.com/kalambet/personabot/internal/profile"
	"github.com/kalambet/personabot/internal/session"
	"github.com/kalambet/personabot/internal/storage"
)

// mcpSessionID tags decisions made through MCP in the decision log.
const mcpSessionID = "mcp"

const recentDecisionsLimit = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Governor     *pipeline.Governor
	Lexicon      profile.Lexicon
	Capabilities []string
	Store        *storage.Store // optional; without it persona://decisions/recent is not offered
	Version      string
}

// NewMCPServer creates an MCP server exposing the persona as a tool.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"personabot",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("personabot answers questions as a persona, strictly from its profile."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_persona",
			mcp.WithDescription("Ask the persona a question. The reply passes the same guard and judge as the chat endpoint."),
			mcp.WithString("message", mcp.Description("The question to ask"), mcp.Required()),
			mcp.WithString("history", mcp.Description("Optional JSON array of {role, content} prior turns")),
		),
		mcpAskPersona(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"persona://lexicon",
			"Profile Lexicon",
			mcp.WithResourceDescription("Capabilities, skills and preferences known to the persona"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLexicon(deps),
	)

	if deps.Store != nil {
		s.AddResource(
			mcp.NewResource(
				"persona://decisions/recent",
				"Recent Decisions",
				mcp.WithResourceDescription(fmt.Sprintf("Last %d governance decisions", recentDecisionsLimit)),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecentDecisions(deps),
		)
	}

	return s
}

func mcpAskPersona(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		message = strings.TrimSpace(message)
		if err != nil || message == "" {
			return mcpError("message is required"), nil
		}

		var history []session.Turn
		if raw := req.GetString("history", ""); raw != "" {
			var items []json.RawMessage
			if err := json.Unmarshal([]byte(raw), &items); err != nil {
				return mcpError(fmt.Sprintf("invalid history JSON: %v", err)), nil
			}
			history = session.Sanitize(items)
		}

		res, err := deps.Governor.Respond(pipeline.WithSession(ctx, mcpSessionID), message, history)
		if errors.Is(err, pipeline.ErrUpstream) {
			return mcpError("the completion service is unavailable, try again later"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(ChatResponse{Reply: res.Reply, Decision: res.Decision})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceLexicon(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		caps := deps.Capabilities
		if caps == nil {
			caps = []string{}
		}
		skills, prefs := deps.Lexicon.Skills, deps.Lexicon.Preferences
		if skills == nil {
			skills = []string{}
		}
		if prefs == nil {
			prefs = []string{}
		}

		b, err := json.Marshal(map[string][]string{
			"capabilities": caps,
			"skills":       skills,
			"preferences":  prefs,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lexicon: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecentDecisions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		records, err := deps.Store.RecentDecisions(recentDecisionsLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent decisions: %w", err)
		}

		type decisionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Stage     string `json:"stage"`
			Decision  string `json:"decision"`
			Message   string `json:"message"`
		}

		summaries := make([]decisionSummary, len(records))
		for i, r := range records {
			msg := r.UserMessage
			if utf8.RuneCountInString(msg) > 200 {
				msg = string([]rune(msg)[:200]) + "..."
			}
			summaries[i] = decisionSummary{
				ID:        r.ID,
				CreatedAt: r.CreatedAt.Format(time.RFC3339),
				Stage:     r.Stage,
				Decision:  r.Decision,
				Message:   msg,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal decisions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// Package mcp provides a Model Context Protocol server for papertopics.
//
// It exposes the paper lifecycle hooks and topic queries as MCP tools, and
// store statistics as an MCP resource. Handlers are dispatched concurrently
// by mcp-go; the engine's optimistic writes make that safe without a global
// lock.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hurttlocker/papertopics/internal/engine"
	"github.com/hurttlocker/papertopics/internal/topic"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StatsURI is the URI of the statistics resource.
const StatsURI = "papertopics://stats"

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine  *engine.Engine
	Version string // version string for MCP server info
}

// NewServer creates a configured MCP server with all tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"papertopics",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerConfirmTool(s, cfg.Engine)
	registerDeleteTool(s, cfg.Engine)
	registerTopTool(s, cfg.Engine)
	registerSearchTool(s, cfg.Engine)

	registerStatsResource(s, cfg.Engine)

	return s
}

// --- Tools ---

func registerConfirmTool(s *server.MCPServer, eng *engine.Engine) {
	tool := mcp.NewTool("topics_confirm_paper",
		mcp.WithDescription("Record a confirmed exam paper: every Part A and Part B question topic is clustered into the topic groups of the paper's college, subject, semester, branch and exam type. Not idempotent; confirm each paper once."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("paper",
			mcp.Required(),
			mcp.Description(`Paper JSON: {"id": "...", "facet": {"college", "subject", "semester", "branch", "exam_type"}, "part_a": [{"number", "text", "marks", "topic"}], "part_b": [...]}`),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, errResult := paperArg(req)
		if errResult != nil {
			return errResult, nil
		}
		res, err := eng.OnPaperConfirmed(ctx, p)
		if err != nil {
			return toolError("confirm", err), nil
		}
		return jsonResult(res), nil
	})
}

func registerDeleteTool(s *server.MCPServer, eng *engine.Engine) {
	tool := mcp.NewTool("topics_delete_paper",
		mcp.WithDescription("Remove a previously confirmed paper's contribution from its topic groups. Pass the same paper JSON that was confirmed. Deleting twice is a no-op."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("paper",
			mcp.Required(),
			mcp.Description("Paper JSON, same shape as topics_confirm_paper"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, errResult := paperArg(req)
		if errResult != nil {
			return errResult, nil
		}
		res, err := eng.OnPaperDeleted(ctx, p)
		if err != nil {
			return toolError("delete", err), nil
		}
		return jsonResult(res), nil
	})
}

func registerTopTool(s *server.MCPServer, eng *engine.Engine) {
	tool := mcp.NewTool("topics_top",
		mcp.WithDescription("Most frequent topics for a college, subject, semester and exam type, merged across all branches. Semester exams return up to 40 Part A and 25 Part B topics; midterms 25 and 10."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("college", mcp.Required(), mcp.Description("College name (case-insensitive)")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject name (case-insensitive)")),
		mcp.WithString("semester", mcp.Required(), mcp.Description("Semester, e.g. '4'")),
		mcp.WithString("exam_type",
			mcp.Required(),
			mcp.Description("Exam type"),
			mcp.Enum("semester", "midterm1", "midterm2"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var q engine.TopQuery
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"college", &q.College},
			{"subject", &q.Subject},
			{"semester", &q.Semester},
		} {
			v, err := req.RequireString(f.name)
			if err != nil {
				return mcp.NewToolResultError(f.name + " is required"), nil
			}
			*f.dst = v
		}
		et, err := req.RequireString("exam_type")
		if err != nil {
			return mcp.NewToolResultError("exam_type is required"), nil
		}
		q.ExamType = topic.ExamType(et)

		res, err := eng.GetTopTopics(ctx, q)
		if err != nil {
			return toolError("top", err), nil
		}
		return jsonResult(res), nil
	})
}

func registerSearchTool(s *server.MCPServer, eng *engine.Engine) {
	tool := mcp.NewTool("topics_search",
		mcp.WithDescription("Raw topic entries of one branch, in storage order and untruncated, with contributing paper IDs."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("college", mcp.Required(), mcp.Description("College name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject name")),
		mcp.WithString("semester", mcp.Required(), mcp.Description("Semester")),
		mcp.WithString("branch", mcp.Required(), mcp.Description("Branch, e.g. 'CSE'")),
		mcp.WithString("exam_type",
			mcp.Required(),
			mcp.Description("Exam type"),
			mcp.Enum("semester", "midterm1", "midterm2"),
		),
		mcp.WithString("part",
			mcp.Description("A or B (default: both)"),
			mcp.Enum("A", "B"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var f topic.Facet
		for _, field := range []struct {
			name string
			dst  *string
		}{
			{"college", &f.College},
			{"subject", &f.Subject},
			{"semester", &f.Semester},
			{"branch", &f.Branch},
		} {
			v, err := req.RequireString(field.name)
			if err != nil {
				return mcp.NewToolResultError(field.name + " is required"), nil
			}
			*field.dst = v
		}
		et, err := req.RequireString("exam_type")
		if err != nil {
			return mcp.NewToolResultError("exam_type is required"), nil
		}
		f.ExamType = topic.ExamType(et)

		var part *topic.Part
		if raw, err := req.RequireString("part"); err == nil && strings.TrimSpace(raw) != "" {
			p, err := topic.ParsePart(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			part = &p
		}

		views, err := eng.SearchTopics(ctx, f, part)
		if err != nil {
			return toolError("search", err), nil
		}
		return jsonResult(views), nil
	})
}

// --- Resources ---

func registerStatsResource(s *server.MCPServer, eng *engine.Engine) {
	resource := mcp.NewResource(
		StatsURI,
		"Topic Statistics",
		mcp.WithResourceDescription("Topic group, entry and occurrence counts, storage backend and cache state."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := eng.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

// --- Helpers ---

func paperArg(req mcp.CallToolRequest) (engine.Paper, *mcp.CallToolResult) {
	raw, err := req.RequireString("paper")
	if err != nil {
		return engine.Paper{}, mcp.NewToolResultError("paper is required")
	}
	var p engine.Paper
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return engine.Paper{}, mcp.NewToolResultError(fmt.Sprintf("invalid paper JSON: %v", err))
	}
	return p, nil
}

// toolError reports err to the caller as a tool result, tagging the failure
// class so agents can tell bad input from a retryable conflict.
func toolError(op string, err error) *mcp.CallToolResult {
	class := "error"
	switch {
	case errors.Is(err, topic.ErrValidation):
		class = "invalid_input"
	case errors.Is(err, topic.ErrConflictExhausted):
		class = "conflict_retry_later"
	case errors.Is(err, topic.ErrStoreUnavailable):
		class = "store_unavailable"
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s %s: %v", op, class, err))
}

func jsonResult(v interface{}) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}

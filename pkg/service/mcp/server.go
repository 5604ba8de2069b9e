// Package mcp exposes the memory store as MCP tools over stdio, so MCP-aware
// hosts can memorize and recall without speaking the raw engine protocol.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the memory usecase behind MCP tool handlers.
type Server struct {
	usecase *memory.UseCase
	server  *mcp.Server
}

func New(uc *memory.UseCase, version string) *Server {
	s := &Server{
		usecase: uc,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "engram",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memorize",
		Description: "Store a text note in long-term memory. Near-duplicate notes are rejected unless force is set",
	}, s.memorize)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "recall",
		Description: "Retrieve stored notes most similar to a query text",
	}, s.recall)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "forget",
		Description: "Delete a stored note by its ID",
	}, s.forget)

	return s
}

// Run serves MCP over stdio until the host disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect attaches the server to an arbitrary transport and returns the
// session, used by tests with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

type memorizeParams struct {
	Text     string            `json:"text" jsonschema:"The text to remember"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"Optional key/value attributes"`
	Force    bool              `json:"force,omitempty" jsonschema:"Store even if a near-duplicate exists"`
}

func (s *Server) memorize(ctx context.Context, req *mcp.CallToolRequest, params *memorizeParams) (*mcp.CallToolResult, any, error) {
	entry, err := s.usecase.Memorize(ctx, &memory.MemorizeInput{
		Text:     params.Text,
		Metadata: params.Metadata,
		Force:    params.Force,
	})
	if err != nil {
		return nil, nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Memorized as %s", entry.ID)},
		},
	}, nil, nil
}

type recallParams struct {
	Query    string  `json:"query" jsonschema:"The text to search for"`
	TopK     int     `json:"topK,omitempty" jsonschema:"Maximum number of results (default 5)"`
	MinScore float64 `json:"minScore,omitempty" jsonschema:"Minimum similarity score, 0 to 1"`
}

func (s *Server) recall(ctx context.Context, req *mcp.CallToolRequest, params *recallParams) (*mcp.CallToolResult, any, error) {
	hits, err := s.usecase.Recall(ctx, &memory.RecallInput{
		Query:    params.Query,
		TopK:     params.TopK,
		MinScore: params.MinScore,
	})
	if err != nil {
		return nil, nil, err
	}

	if len(hits) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: "No matching memories"},
			},
		}, nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d memories:\n", len(hits))
	for _, hit := range hits {
		fmt.Fprintf(&sb, "[%.3f] %s: %s\n", hit.Score, hit.Entry.ID, hit.Entry.Text)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: sb.String()},
		},
	}, nil, nil
}

type forgetParams struct {
	ID string `json:"id" jsonschema:"The entry ID to delete"`
}

func (s *Server) forget(ctx context.Context, req *mcp.CallToolRequest, params *forgetParams) (*mcp.CallToolResult, any, error) {
	if err := s.usecase.Forget(ctx, model.EntryID(params.ID)); err != nil {
		return nil, nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Forgot %s", params.ID)},
		},
	}, nil, nil
}

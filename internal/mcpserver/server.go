// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the note converter for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/everzim/internal/apperr"
	"github.com/starford/everzim/internal/assets"
	"github.com/starford/everzim/internal/backup"
	"github.com/starford/everzim/internal/sanitize"
)

// TargetSyntaxURI is the resource URI of TargetSyntax.
const TargetSyntaxURI = "everzim://target-syntax"

// Server wraps the MCP server with the conversion tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *backup.Service
	fetcher *assets.Fetcher
}

// New creates a new MCP server with all tools registered. Images are
// fetched with fetcher, or with a default one over the service's output
// tree when fetcher is nil.
func New(svc *backup.Service, fetcher *assets.Fetcher) *Server {
	if fetcher == nil {
		fetcher = assets.New(svc.Store(), svc.Rewriter().AssetDir())
	}
	s := &Server{svc: svc, fetcher: fetcher}

	s.mcp = server.NewMCPServer(
		"Everzim",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("rewrite_markup",
		mcp.WithDescription("Rewrite a markdown document into Zim wiki markup. "+
			"Read "+TargetSyntaxURI+" for the exact mapping."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown document")),
	), s.rewriteMarkup)

	s.mcp.AddTool(mcp.NewTool("sanitize_filename",
		mcp.WithDescription("Replace characters that are unsafe in file names. "+
			"Mode full also turns '/' into '&'; mode trailing keeps slashes for paths."),
		mcp.WithString("input", mcp.Required(), mcp.Description("Name or path to sanitize")),
		mcp.WithString("mode", mcp.Description("full (default) or trailing"), mcp.Enum("full", "trailing")),
	), s.sanitizeFilename)

	s.mcp.AddTool(mcp.NewTool("convert_note",
		mcp.WithDescription("Convert an exported HTML note to markdown, or to Zim markup when zim is true."),
		mcp.WithString("html", mcp.Required(), mcp.Description("HTML note body")),
		mcp.WithBoolean("zim", mcp.Description("Rewrite the markdown into Zim markup")),
	), s.convertNote)

	s.mcp.AddTool(mcp.NewTool("fetch_image",
		mcp.WithDescription("Download a remote image (http, https or base64 data URI) into the "+
			"backup's asset directory. An identical copy is reused. Returns the saved path and a Zim embed for it."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Image URL or data URI")),
		mcp.WithString("filename", mcp.Description("Optional file name to save as")),
		mcp.WithString("title", mcp.Description("Optional embed title")),
	), s.fetchImage)

	s.mcp.AddResource(
		mcp.NewResource(TargetSyntaxURI, "Zim Target Syntax",
			mcp.WithResourceDescription("How converted markdown maps onto Zim wiki markup."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTargetSyntax,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) rewriteMarkup(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.svc.Rewriter().Rewrite(content)), nil
}

func (s *Server) sanitizeFilename(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := req.RequireString("input")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	modeName := ""
	if v, mErr := req.RequireString("mode"); mErr == nil {
		modeName = v
	}
	mode, err := sanitize.ParseMode(modeName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := sanitize.Sanitize(input, mode)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) convertNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	html, err := req.RequireString("html")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	zim, _ := req.RequireBool("zim")
	text, err := s.svc.Render(html, zim)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) readTargetSyntax(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      TargetSyntaxURI,
			MIMEType: "text/markdown",
			Text:     TargetSyntax,
		},
	}, nil
}

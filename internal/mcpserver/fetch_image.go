package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/everzim/internal/assets"
)

type fetchResult struct {
	SavedPath string `json:"savedPath"`
	ZimImage  string `json:"zimImage"`
	Reused    bool   `json:"reused,omitempty"`
}

func (s *Server) fetchImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, _ := req.RequireString("filename")
	title, _ := req.RequireString("title")

	img, err := s.fetcher.Fetch(ctx, src, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.Marshal(fetchResult{
		SavedPath: img.Path,
		ZimImage:  "{{" + s.svc.Rewriter().AssetPath(assets.FetchedDir+"/"+img.Name) + "|" + title + "}}",
		Reused:    img.Reused,
	})
	return mcp.NewToolResultText(string(out)), nil
}

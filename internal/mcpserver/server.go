// Package mcpserver exposes the library over the Model Context Protocol.
package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/metcalfc/aeonsight/internal/library"
	"github.com/metcalfc/aeonsight/internal/reader"
	"github.com/metcalfc/aeonsight/internal/sandbox"
	"github.com/metcalfc/aeonsight/internal/session"
)

const (
	serverName    = "aeonsight"
	serverVersion = "0.1.0"
)

// Server answers tool calls against one library.
type Server struct {
	lib    *library.Store
	logger *log.Logger
	mcp    *server.MCPServer
}

// New registers the library tools.
func New(lib *library.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		lib:    lib,
		logger: logger,
		mcp:    server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("library_list",
		mcp.WithDescription("List documents in the reading library, newest first, with progress and annotation counts."),
	), s.handleList)

	s.mcp.AddTool(mcp.NewTool("library_export",
		mcp.WithDescription("Export the library catalog (metadata, positions, bookmarks and notes; never document bytes)."),
		mcp.WithString("format", mcp.Description("json or yaml"), mcp.Enum("json", "yaml")),
	), s.handleExport)

	s.mcp.AddTool(mcp.NewTool("document_text",
		mcp.WithDescription("Extract the text of one unit of a library document: a PDF page, an EPUB section or a window of a text document."),
		mcp.WithString("id", mcp.Required(), mcp.Description("library item id")),
		mcp.WithNumber("page", mcp.Description("PDF page, 1-based")),
		mcp.WithNumber("sentence", mcp.Description("sentence index for text and html documents")),
		mcp.WithString("cfi", mcp.Description("EPUB fragment identifier")),
	), s.handleDocumentText)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves tool calls on stdin and stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.lib.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("The library is empty."), nil
	}
	var b strings.Builder
	for _, it := range items {
		content := ""
		if !it.HasContent {
			content = " [content missing]"
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%d%%\t%s\t%d bookmarks\t%d notes%s\n",
			it.ID, it.Name, it.Format, it.Progress, it.LastPosition, len(it.Bookmarks), len(it.Notes), content)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enc := library.JSON
	if strings.EqualFold(req.GetString("format", "json"), "yaml") {
		enc = library.YAML
	}
	cat, err := s.lib.Export(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	if err := library.WriteCatalog(&buf, cat, enc); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) handleDocumentText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.lib.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.lib.Content(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	pos := reader.Position{
		Page:     req.GetInt("page", 0),
		Sentence: req.GetInt("sentence", 0),
		CFI:      req.GetString("cfi", ""),
	}
	if pos.IsZero() {
		pos = item.LastPosition
	}

	// A private session keeps tool calls away from whatever the user has
	// open; scripts stay blocked so the text is always extractable.
	sess := session.New(session.Options{Sandbox: sandbox.ScriptsBlocked, ResumeKey: reader.ResumeCFI, Logger: s.logger})
	defer sess.Close()
	if err := sess.Open(ctx, session.Document{
		ID:           item.ID,
		Name:         item.Name,
		Format:       item.Format,
		Content:      data,
		LastPosition: pos,
	}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := sess.ReadableText()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	at, _ := sess.Position()
	return mcp.NewToolResultText(fmt.Sprintf("[%s, %s]\n%s", item.Name, at, text)), nil
}

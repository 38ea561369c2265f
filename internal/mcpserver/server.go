// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes staffreg queries for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/staffreg/internal/apperr"
	"github.com/starford/staffreg/internal/staffservice"
)

const lineFormatURI = "staffreg://line-format"

// Server wraps the MCP server with staffreg tools.
type Server struct {
	mcp *server.MCPServer
	svc *staffservice.Service
}

// New creates a new MCP server with all staffreg tools registered.
func New(svc *staffservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"staffreg",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("find_employee",
		mcp.WithDescription("Look up one employee by exact name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Employee name, case-sensitive")),
	), s.findEmployee)

	s.mcp.AddTool(mcp.NewTool("search_employees",
		mcp.WithDescription("List employees whose name starts with a prefix, in name order."),
		mcp.WithString("prefix", mcp.Required(), mcp.Description("Name prefix")),
	), s.searchEmployees)

	s.mcp.AddTool(mcp.NewTool("list_departments",
		mcp.WithDescription("Group all employees by department."),
	), s.listDepartments)

	s.mcp.AddTool(mcp.NewTool("get_reports",
		mcp.WithDescription("List everyone who reports to a manager, directly or through "+
			"intermediate managers. Each report is listed before its own reports."),
		mcp.WithString("manager", mcp.Required(), mcp.Description("Manager name")),
		mcp.WithBoolean("direct", mcp.Description("Only list direct reports")),
	), s.getReports)

	s.mcp.AddTool(mcp.NewTool("working_on",
		mcp.WithDescription("List employees who work on at least one of the given days."),
		mcp.WithString("days", mcp.Required(), mcp.Description("Comma-separated day tokens, e.g. Mon,Tue")),
	), s.workingOn)

	s.mcp.AddTool(mcp.NewTool("reload_registry",
		mcp.WithDescription("Reload the registry from the source directory and report rejected lines."),
		mcp.WithBoolean("force", mcp.Description("Reload even if no source file changed")),
	), s.reloadRegistry)

	s.mcp.AddTool(mcp.NewTool("get_line_format",
		mcp.WithDescription("Returns the source line format. "+
			"Call this before proposing new records."),
	), s.getLineFormat)

	s.mcp.AddResource(
		mcp.NewResource(lineFormatURI, "Line Format",
			mcp.WithResourceDescription("Tab-delimited employee line format."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLineFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) findEmployee(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.svc.Employee(ctx, name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(e)
}

func (s *Server) searchEmployees(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix, err := req.RequireString("prefix")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	es := s.svc.Search(ctx, prefix)
	if len(es) == 0 {
		return mcp.NewToolResultText("no employees found"), nil
	}
	return jsonResult(es)
}

func (s *Server) listDepartments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Departments(ctx))
}

func (s *Server) getReports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	manager, err := req.RequireString("manager")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	es := s.svc.Reports(ctx, manager, req.GetBool("direct", false))
	if len(es) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("nobody reports to %s", manager)), nil
	}
	return jsonResult(es)
}

func (s *Server) workingOn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("days")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var days []string
	for _, d := range strings.Split(raw, ",") {
		if d = strings.TrimSpace(d); d != "" {
			days = append(days, d)
		}
	}
	es := s.svc.WorkingOn(ctx, days)
	if len(es) == 0 {
		return mcp.NewToolResultText("no employees found"), nil
	}
	return jsonResult(es)
}

func (s *Server) reloadRegistry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Reload(ctx, req.GetBool("force", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getLineFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LineFormatContract), nil
}

func (s *Server) readLineFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      lineFormatURI,
			MIMEType: "text/markdown",
			Text:     LineFormatContract,
		},
	}, nil
}

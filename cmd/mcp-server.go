package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/tenantscan/pkg/m365/jobs"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Serve scan tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{recover: true})
		if err != nil {
			return err
		}
		defer a.Close()

		return server.ServeStdio(newMCPServer(a.orch))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// scanService is the orchestrator surface exposed as MCP tools.
type scanService interface {
	Types() []models.ResourceType
	Status(ctx context.Context, rt models.ResourceType) (models.ScanJob, error)
	StatusAll(ctx context.Context) ([]models.ScanJob, error)
	Start(ctx context.Context, rt models.ResourceType, accessToken string) (models.ScanJob, error)
}

var _ scanService = (*jobs.Orchestrator)(nil)

func newMCPServer(scans scanService) *server.MCPServer {
	s := server.NewMCPServer(
		"tenantscan",
		version.FullVersion(),
		server.WithLogging(),
	)
	h := mcpHandlers{scans: scans}
	typeList := strings.Join(resourceTypeNames(), ", ")

	s.AddTool(mcp.NewTool("scan_types",
		mcp.WithDescription("List the Microsoft 365 resource types that can be scanned."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{Title: "Scan types", ReadOnlyHint: true}),
	), h.types)

	s.AddTool(mcp.NewTool("scan_status",
		mcp.WithDescription("Show the scan job status of one resource type, or of every type when dataType is omitted."),
		mcp.WithString("dataType", mcp.Description("Resource type: "+typeList)),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{Title: "Scan status", ReadOnlyHint: true}),
	), h.status)

	s.AddTool(mcp.NewTool("scan_start",
		mcp.WithDescription("Start a background scan of one resource type. Poll scan_status for the outcome."),
		mcp.WithString("dataType", mcp.Required(), mcp.Description("Resource type: "+typeList)),
		mcp.WithString("accessToken", mcp.Description("Delegated token, required for powerapps and powerautomate")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{Title: "Start scan", OpenWorldHint: true}),
	), h.start)

	return s
}

type mcpHandlers struct {
	scans scanService
}

func (h mcpHandlers) types(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.scans.Types())
}

func (h mcpHandlers) status(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := stringArg(request, "dataType")
	if name == "" {
		all, err := h.scans.StatusAll(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(all)
	}

	rt, err := models.ParseResourceType(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := h.scans.Status(ctx, rt)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(job)
}

func (h mcpHandlers) start(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rt, err := models.ParseResourceType(stringArg(request, "dataType"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := h.scans.Start(ctx, rt, stringArg(request, "accessToken"))
	if err != nil {
		slog.Warn("MCP scan rejected", "resource_type", rt, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(job)
}

func stringArg(request mcp.CallToolRequest, name string) string {
	v, _ := request.Params.Arguments[name].(string)
	return v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

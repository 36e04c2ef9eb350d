package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/praetorian-inc/tenantscan/pkg/m365/jobs"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("TENANTSCAN_AZURE_TENANT_ID", "tenant-1")
	t.Setenv("TENANTSCAN_GRAPH_INITIAL_DELAY", "250ms")
	t.Setenv("TENANTSCAN_DATABASE_DRIVER", "postgres")

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", cfg.Azure.TenantID)
	assert.Equal(t, 250*time.Millisecond, cfg.Graph.InitialDelay)
	assert.Equal(t, 5, cfg.Graph.MaxRetries)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Scan.SubrequestConcurrency)
	assert.Contains(t, cfg.PowerPlatform.Environments, "Microsoft.BusinessAppPlatform")
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("database.driver", "oracle")

	_, err := loadConfig(v)
	assert.ErrorContains(t, err, "oracle")
}

func TestMaskedConfig(t *testing.T) {
	var cfg Config
	cfg.Azure.ClientID = "client"
	cfg.Azure.ClientSecret = "s3cret"

	out, err := yaml.Marshal(cfg.Masked())
	require.NoError(t, err)
	assert.NotContains(t, string(out), "s3cret")
	assert.Contains(t, string(out), maskedSecret)
	assert.Equal(t, "s3cret", cfg.Azure.ClientSecret)
}

func TestSubmitScan(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/scan", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		switch got["dataType"] {
		case "users":
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `{"resourceType":"users","state":"running"}`)
		default:
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"error":"scan already in progress: groups"}`)
		}
	}))
	defer srv.Close()

	job, err := submitScan(context.Background(), srv.URL+"/", models.ResourceUsers, "tok")
	require.NoError(t, err)
	assert.Equal(t, models.ScanStateRunning, job.State)
	assert.Equal(t, "tok", got["accessToken"])

	_, err = submitScan(context.Background(), srv.URL, models.ResourceGroups, "")
	assert.EqualError(t, err, "scan already in progress: groups")
}

type fakeScanService struct {
	started []models.ResourceType
}

func (f *fakeScanService) Types() []models.ResourceType {
	return models.AllResourceTypes()
}

func (f *fakeScanService) Status(_ context.Context, rt models.ResourceType) (models.ScanJob, error) {
	return models.ScanJob{ResourceType: rt, State: models.ScanStateIdle}, nil
}

func (f *fakeScanService) StatusAll(context.Context) ([]models.ScanJob, error) {
	return []models.ScanJob{{ResourceType: models.ResourceUsers, State: models.ScanStateCompleted}}, nil
}

func (f *fakeScanService) Start(_ context.Context, rt models.ResourceType, token string) (models.ScanJob, error) {
	if rt == models.ResourcePowerApps && token == "" {
		return models.ScanJob{}, fmt.Errorf("%w: powerapps: %w", jobs.ErrPreflight, errors.New("a delegated access token is required"))
	}
	f.started = append(f.started, rt)
	return models.ScanJob{ResourceType: rt, State: models.ScanStateRunning}, nil
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestMCPHandlers(t *testing.T) {
	scans := &fakeScanService{}
	h := mcpHandlers{scans: scans}
	ctx := context.Background()

	res, err := h.types(ctx, callTool("scan_types", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"exchangeMailboxes"`)

	res, err = h.status(ctx, callTool("scan_status", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"state": "completed"`)

	res, err = h.status(ctx, callTool("scan_status", map[string]any{"dataType": "printers"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = h.start(ctx, callTool("scan_start", map[string]any{"dataType": "Domains"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []models.ResourceType{models.ResourceDomains}, scans.started)

	res, err = h.start(ctx, callTool("scan_start", map[string]any{"dataType": "powerapps"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "delegated access token")
}

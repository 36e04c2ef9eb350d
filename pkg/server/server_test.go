package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/tenantscan/pkg/m365/auth"
	"github.com/praetorian-inc/tenantscan/pkg/m365/jobs"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

type fakeScans struct {
	startErr error
	started  []models.ResourceType
	tokens   []string
}

func (f *fakeScans) Status(_ context.Context, rt models.ResourceType) (models.ScanJob, error) {
	return models.ScanJob{ResourceType: rt, State: models.ScanStateIdle}, nil
}

func (f *fakeScans) StatusAll(context.Context) ([]models.ScanJob, error) {
	return []models.ScanJob{
		{ResourceType: models.ResourceUsers, State: models.ScanStateCompleted},
		{ResourceType: models.ResourceGroups, State: models.ScanStateRunning},
	}, nil
}

func (f *fakeScans) Start(_ context.Context, rt models.ResourceType, token string) (models.ScanJob, error) {
	if f.startErr != nil {
		return models.ScanJob{}, f.startErr
	}
	f.started = append(f.started, rt)
	f.tokens = append(f.tokens, token)
	return models.ScanJob{ResourceType: rt, State: models.ScanStateRunning}, nil
}

type fakeInventory map[models.ResourceType]any

func (f fakeInventory) Inventory(_ context.Context, rt models.ResourceType) (any, error) {
	v, ok := f[rt]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedType, rt)
	}
	return v, nil
}

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestScanStatus(t *testing.T) {
	s := New(&fakeScans{}, fakeInventory{}, nil, nil)

	rec := serve(t, s, http.MethodGet, "/api/scan?dataType=exchangeMailboxes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job models.ScanJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.ResourceExchangeMailboxes, job.ResourceType)

	rec = serve(t, s, http.MethodGet, "/api/scan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.ResourceGroups, job.ResourceType)

	rec = serve(t, s, http.MethodGet, "/api/scan?dataType=printers", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanStatusAll(t *testing.T) {
	s := New(&fakeScans{}, fakeInventory{}, nil, nil)

	rec := serve(t, s, http.MethodGet, "/api/scan/all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.ScanJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestStartScan(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		want     int
	}{
		{"accepted", `{"dataType":"powerapps","accessToken":"tok"}`, nil, http.StatusAccepted},
		{"conflict", `{"dataType":"users"}`, fmt.Errorf("%w: users", jobs.ErrScanInProgress), http.StatusConflict},
		{"unsupported", `{"dataType":"printers"}`, nil, http.StatusBadRequest},
		{"preflight", `{"dataType":"powerautomate"}`, fmt.Errorf("%w: %w", jobs.ErrPreflight, auth.ErrAccessTokenRequired), http.StatusBadRequest},
		{"malformed", `{`, nil, http.StatusBadRequest},
		{"internal", `{"dataType":"domains"}`, errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scans := &fakeScans{startErr: tt.startErr}
			s := New(scans, fakeInventory{}, nil, nil)

			rec := serve(t, s, http.MethodPost, "/api/scan", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusAccepted {
				assert.Equal(t, []models.ResourceType{models.ResourcePowerApps}, scans.started)
				assert.Equal(t, []string{"tok"}, scans.tokens)
			}
		})
	}
}

func TestData(t *testing.T) {
	inv := fakeInventory{
		models.ResourceDomains: []models.Domain{{ID: "contoso.com", Status: "Verified"}},
	}
	s := New(&fakeScans{}, inv, nil, nil)

	rec := serve(t, s, http.MethodGet, "/api/data/domains", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"contoso.com","status":"Verified","isDefault":false,"authenticationType":null}]`, rec.Body.String())

	rec = serve(t, s, http.MethodGet, "/api/data/printers", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestAuth(t *testing.T) {
	s := New(&fakeScans{}, fakeInventory{}, func(context.Context) (auth.TenantInfo, error) {
		return auth.TenantInfo{TenantID: "t1", DisplayName: "Contoso"}, nil
	}, nil)
	rec := serve(t, s, http.MethodGet, "/api/test-auth", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"displayName":"Contoso"`)

	s = New(&fakeScans{}, fakeInventory{}, func(context.Context) (auth.TenantInfo, error) {
		return auth.TenantInfo{}, auth.ErrNotConfigured
	}, nil)
	rec = serve(t, s, http.MethodGet, "/api/test-auth", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s = New(&fakeScans{}, fakeInventory{}, func(context.Context) (auth.TenantInfo, error) {
		return auth.TenantInfo{}, errors.New("AADSTS7000215: invalid client secret")
	}, nil)
	rec = serve(t, s, http.MethodGet, "/api/test-auth", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := serve(t, New(&fakeScans{}, fakeInventory{}, nil, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// Package server exposes scan control and inventory reads over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/praetorian-inc/tenantscan/pkg/m365/auth"
	"github.com/praetorian-inc/tenantscan/pkg/m365/jobs"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

// defaultDataType is used when a status request names no type.
const defaultDataType = models.ResourceGroups

// Scans is the orchestrator surface the API drives.
type Scans interface {
	Status(ctx context.Context, rt models.ResourceType) (models.ScanJob, error)
	StatusAll(ctx context.Context) ([]models.ScanJob, error)
	Start(ctx context.Context, rt models.ResourceType, accessToken string) (models.ScanJob, error)
}

// Inventory reads stored records for one type.
type Inventory interface {
	Inventory(ctx context.Context, rt models.ResourceType) (any, error)
}

// AuthCheck verifies the configured app credentials against the tenant.
type AuthCheck func(ctx context.Context) (auth.TenantInfo, error)

type Server struct {
	scans     Scans
	inventory Inventory
	checkAuth AuthCheck
	logger    *slog.Logger
}

func New(scans Scans, inventory Inventory, checkAuth AuthCheck, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{scans: scans, inventory: inventory, checkAuth: checkAuth, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/scan", func(r chi.Router) {
			r.Get("/", s.scanStatus)
			r.Post("/", s.startScan)
			r.Get("/all", s.scanStatusAll)
		})
		r.Get("/data/{type}", s.data)
		r.Get("/test-auth", s.testAuth)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", r.URL.Path, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, jobs.ErrScanInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnsupportedType), errors.Is(err, jobs.ErrPreflight):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNotConfigured):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) scanStatus(w http.ResponseWriter, r *http.Request) {
	rt := defaultDataType
	if v := r.URL.Query().Get("dataType"); v != "" {
		parsed, err := models.ParseResourceType(v)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, err)
			return
		}
		rt = parsed
	}
	job, err := s.scans.Status(r.Context(), rt)
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	render.JSON(w, r, job)
}

func (s *Server) scanStatusAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.scans.StatusAll(r.Context())
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	render.JSON(w, r, all)
}

type startRequest struct {
	DataType    string `json:"dataType"`
	AccessToken string `json:"accessToken"`
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, r, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	rt, err := models.ParseResourceType(body.DataType)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	job, err := s.scans.Start(r.Context(), rt, body.AccessToken)
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, job)
}

func (s *Server) data(w http.ResponseWriter, r *http.Request) {
	rt, err := models.ParseResourceType(chi.URLParam(r, "type"))
	if err != nil {
		s.fail(w, r, http.StatusNotFound, err)
		return
	}
	records, err := s.inventory.Inventory(r.Context(), rt)
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	render.JSON(w, r, records)
}

type authResponse struct {
	Status string           `json:"status"`
	Tenant *auth.TenantInfo `json:"tenant,omitempty"`
}

func (s *Server) testAuth(w http.ResponseWriter, r *http.Request) {
	if s.checkAuth == nil {
		s.fail(w, r, http.StatusBadRequest, auth.ErrNotConfigured)
		return
	}
	info, err := s.checkAuth(r.Context())
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		s.fail(w, r, status, err)
		return
	}
	render.JSON(w, r, authResponse{Status: "success", Tenant: &info})
}

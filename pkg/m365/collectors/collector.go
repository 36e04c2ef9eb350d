package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/praetorian-inc/tenantscan/pkg/m365/auth"
	"github.com/praetorian-inc/tenantscan/pkg/m365/client"
	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/powerplatform"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultSubrequestConcurrency bounds nested lookups within one page.
const DefaultSubrequestConcurrency = 4

// ScanRequest carries per-run inputs.
type ScanRequest struct {
	// AccessToken is a delegated token, required only by the low-code collectors.
	AccessToken string
}

// Collector scans one resource type end to end.
type Collector interface {
	Name() models.ResourceType
	// Preflight rejects a request that cannot run, before any state changes.
	Preflight(req ScanRequest) error
	Collect(ctx context.Context, req ScanRequest) error
}

// GraphAPI is the Graph surface collectors use. *client.Client implements it.
type GraphAPI interface {
	crawl.Fetcher
	GetJSON(ctx context.Context, path string, headers map[string]string, out any) error
	GetRaw(ctx context.Context, path string, headers map[string]string) ([]byte, error)
	Batch(ctx context.Context, requests []client.BatchRequest) ([]client.BatchResponse, error)
}

// Deps are the shared collaborators of every collector.
type Deps struct {
	// Graph is nil when app credentials are not configured; GraphErr says why.
	Graph    GraphAPI
	GraphErr error
	Store    *storage.Store
	Writer   storage.GraphWriter
	// PowerPlatform builds a fetcher authorized with a delegated token.
	PowerPlatform          func(accessToken string) crawl.Fetcher
	PowerPlatformEndpoints powerplatform.Endpoints
	SubrequestConcurrency  int
	Logger                 *slog.Logger
}

type base struct {
	deps *Deps
	rt   models.ResourceType
}

func (b base) Name() models.ResourceType {
	return b.rt
}

func (b base) logger() *slog.Logger {
	return b.deps.Logger.With("resource_type", b.rt)
}

func (b base) preflightGraph() error {
	if b.deps.Graph != nil {
		return nil
	}
	if b.deps.GraphErr != nil {
		return b.deps.GraphErr
	}
	return auth.ErrNotConfigured
}

func (b base) crawler() *crawl.Crawler {
	return crawl.New(b.deps.Graph, b.deps.Store, b.logger())
}

func (b base) concurrency() int {
	if b.deps.SubrequestConcurrency > 0 {
		return b.deps.SubrequestConcurrency
	}
	return DefaultSubrequestConcurrency
}

// clearTables returns an OnFresh hook deleting every row of tables.
func (b base) clearTables(tables ...any) func(context.Context) error {
	return func(ctx context.Context) error {
		b.logger().Info("Starting fresh scan, clearing stored records")
		return b.deps.Store.DeleteAll(ctx, tables...)
	}
}

// edge is one relationship to mirror into the graph store.
type edge struct {
	from, to, kind     string
	fromLabel, toLabel string
}

// mirror copies nodes and edges into the graph writer. Failures are logged
// and otherwise ignored; the relational store is the source of truth.
func (b base) mirror(ctx context.Context, nodes []any, edges []edge) {
	w := b.deps.Writer
	if w == nil {
		return
	}
	for _, n := range nodes {
		if err := w.CreateNode(ctx, n); err != nil {
			b.logger().Warn("Failed to mirror node", "type", fmt.Sprintf("%T", n), "error", err)
			return
		}
	}
	for _, e := range edges {
		if err := w.CreateEdge(ctx, e.from, e.to, e.kind, e.fromLabel, e.toLabel); err != nil {
			b.logger().Warn("Failed to mirror edge", "edge", e.kind, "error", err)
			return
		}
	}
}

// mapBounded applies fn to every item with at most limit calls in flight and
// returns the results in input order. The first error cancels the rest.
func mapBounded[T, R any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeItems[T any](items []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode item: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

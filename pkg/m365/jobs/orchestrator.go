// Package jobs runs resource-type scans in the background and records their
// lifecycle in the scan job table.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/praetorian-inc/tenantscan/pkg/m365/collectors"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

var (
	ErrScanInProgress = errors.New("scan already in progress")
	ErrPreflight      = errors.New("scan cannot start")
)

// Registry resolves resource types to collectors.
type Registry interface {
	Get(rt models.ResourceType) (collectors.Collector, error)
	Types() []models.ResourceType
}

// Orchestrator owns the idle → running → completed|failed state machine.
// Every error a scan produces ends up in its job row here.
type Orchestrator struct {
	ctx      context.Context
	store    *storage.Store
	registry Registry
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// New returns an Orchestrator whose scans run under ctx. Cancelling ctx
// stops running scans; they are recorded as failed and resume from their
// checkpoint next time.
func New(ctx context.Context, store *storage.Store, registry Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		ctx:      ctx,
		store:    store,
		registry: registry,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Types lists the scannable resource types.
func (o *Orchestrator) Types() []models.ResourceType {
	return o.registry.Types()
}

// Status returns the job for rt, creating an idle one on first use.
func (o *Orchestrator) Status(ctx context.Context, rt models.ResourceType) (models.ScanJob, error) {
	if _, err := o.registry.Get(rt); err != nil {
		return models.ScanJob{}, err
	}
	return o.store.Job(ctx, rt)
}

// StatusAll returns the job of every registered type.
func (o *Orchestrator) StatusAll(ctx context.Context) ([]models.ScanJob, error) {
	types := o.registry.Types()
	out := make([]models.ScanJob, 0, len(types))
	for _, rt := range types {
		job, err := o.store.Job(ctx, rt)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// Start validates and launches a scan of rt, returning the running job
// without waiting for the scan. Unsupported types, preflight failures and
// scans already running are rejected before any state changes.
func (o *Orchestrator) Start(ctx context.Context, rt models.ResourceType, accessToken string) (models.ScanJob, error) {
	c, err := o.registry.Get(rt)
	if err != nil {
		return models.ScanJob{}, err
	}
	req := collectors.ScanRequest{AccessToken: accessToken}
	if err := c.Preflight(req); err != nil {
		return models.ScanJob{}, fmt.Errorf("%w: %s: %w", ErrPreflight, rt, err)
	}

	started, err := o.store.TryStart(ctx, rt, o.now())
	if err != nil {
		return models.ScanJob{}, err
	}
	if !started {
		return models.ScanJob{}, fmt.Errorf("%w: %s", ErrScanInProgress, rt)
	}

	job, err := o.store.Job(ctx, rt)
	if err != nil {
		o.finish(rt, err)
		return models.ScanJob{}, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.finish(rt, o.run(c, req))
	}()
	return job, nil
}

func (o *Orchestrator) run(c collectors.Collector, req collectors.ScanRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
		}
	}()
	log := o.logger.With("resource_type", c.Name())
	log.Info("Scan started")
	start := time.Now()
	err = c.Collect(o.ctx, req)
	log.Info("Scan finished", "duration", time.Since(start).Round(time.Millisecond), "error", err)
	return err
}

// finish records the outcome. It writes even after the orchestrator context
// is cancelled so shutdown leaves failed jobs behind rather than running ones.
func (o *Orchestrator) finish(rt models.ResourceType, scanErr error) {
	ctx := context.WithoutCancel(o.ctx)
	var err error
	if scanErr != nil {
		err = o.store.Fail(ctx, rt, o.now(), scanErr.Error())
	} else {
		err = o.store.Complete(ctx, rt, o.now())
	}
	if err != nil {
		o.logger.Error("Failed to record scan outcome", "resource_type", rt, "error", err)
	}
}

// Wait blocks until every scan started so far has exited.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Recover fails jobs left running by a previous process so they can be
// restarted. Their checkpoints are kept.
func (o *Orchestrator) Recover(ctx context.Context) error {
	recovered, err := o.store.RecoverInterrupted(ctx, o.now())
	for _, rt := range recovered {
		o.logger.Warn("Marked interrupted scan as failed", "resource_type", rt)
	}
	return err
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/spf13/viper"

	"github.com/praetorian-inc/tenantscan/pkg/m365/auth"
	"github.com/praetorian-inc/tenantscan/pkg/m365/client"
	"github.com/praetorian-inc/tenantscan/pkg/m365/collectors"
	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/jobs"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

// app holds the wired process dependencies shared by the subcommands.
type app struct {
	cfg    Config
	logger *slog.Logger
	store  *storage.Store
	neo4j  *storage.Neo4jWriter
	orch   *jobs.Orchestrator

	// cred is nil when the app registration is not configured; credErr
	// says why.
	cred    azcore.TokenCredential
	credErr error

	cancel context.CancelFunc
}

type appOptions struct {
	// recover fails scans left running by a previous process. Only the
	// process that owns the scans should do this.
	recover bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	store, err := storage.Open(storage.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	}, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: store}

	var writer storage.GraphWriter = storage.NopGraphWriter{}
	if cfg.Neo4j.URI != "" {
		w, err := storage.NewNeo4jWriter(ctx, storage.Neo4jConfig{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
		a.neo4j = w
		writer = w
		logger.Info("Mirroring memberships to Neo4j", "uri", cfg.Neo4j.URI)
	}

	deps := collectors.Deps{
		Store:                  store,
		Writer:                 writer,
		PowerPlatformEndpoints: cfg.PowerPlatform,
		SubrequestConcurrency:  cfg.Scan.SubrequestConcurrency,
		Logger:                 logger,
	}

	a.cred, a.credErr = auth.NewCredential(cfg.Azure)
	if a.credErr == nil {
		deps.Graph = client.New(a.cred, client.GraphScope, cfg.Graph.clientConfig(cfg.Graph.BaseURL), logger)
	} else {
		deps.GraphErr = a.credErr
		logger.Debug("Graph scans unavailable", "error", a.credErr)
	}

	ppConfig := cfg.Graph.clientConfig(cfg.PowerPlatform.BaseURL)
	deps.PowerPlatform = func(accessToken string) crawl.Fetcher {
		return client.NewWithToken(accessToken, ppConfig, logger)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.orch = jobs.New(runCtx, store, collectors.NewRegistry(deps), logger)

	if opts.recover {
		if err := a.orch.Recover(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to recover interrupted scans: %w", err)
		}
	}
	return a, nil
}

// checkAuth verifies the app registration against the tenant.
func (a *app) checkAuth(ctx context.Context) (auth.TenantInfo, error) {
	if a.credErr != nil {
		return auth.TenantInfo{}, a.credErr
	}
	return auth.VerifyTenant(ctx, a.cred)
}

// Close cancels running scans, waits for them to record their outcome and
// releases the stores.
func (a *app) Close() error {
	a.cancel()
	a.orch.Wait()

	var errs []error
	if a.neo4j != nil {
		errs = append(errs, a.neo4j.Close(context.Background()))
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

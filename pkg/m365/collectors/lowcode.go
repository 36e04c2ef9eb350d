package collectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/praetorian-inc/tenantscan/pkg/m365/auth"
	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/powerplatform"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

func (b base) preflightDelegated(req ScanRequest) error {
	if req.AccessToken == "" {
		return auth.ErrAccessTokenRequired
	}
	if b.deps.PowerPlatform == nil {
		return errors.New("power platform client is not configured")
	}
	return nil
}

// environments lists every admin-visible environment.
func (b base) environments(ctx context.Context, f crawl.Fetcher) ([]models.PowerPlatformEnvironment, error) {
	items, err := crawl.CollectAll(ctx, f, b.deps.PowerPlatformEndpoints.Environments, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list environments: %w", b.rt, err)
	}
	envs := make([]models.PowerPlatformEnvironment, 0, len(items))
	for _, raw := range items {
		env, err := powerplatform.Environment(raw)
		if err != nil {
			b.logger().Warn("Skipping environment", "error", err)
			continue
		}
		envs = append(envs, env)
	}
	b.logger().Info("Listed environments", "count", len(envs))
	return envs, nil
}

// perEnvironment fetches url(env) for every environment and decodes each item.
// An environment whose listing fails is logged and contributes nothing.
func perEnvironment[T any](
	ctx context.Context,
	b base,
	f crawl.Fetcher,
	envs []models.PowerPlatformEnvironment,
	url func(env string) string,
	decode func(env string, raw json.RawMessage) (T, error),
) ([]T, error) {
	results, err := mapBounded(ctx, b.concurrency(), envs, func(ctx context.Context, env models.PowerPlatformEnvironment) ([]T, error) {
		items, err := crawl.CollectAll(ctx, f, url(env.ID), nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.logger().Warn("Skipping environment", "environment", env.ID, "error", err)
			return nil, nil
		}
		var out []T
		for _, raw := range items {
			v, err := decode(env.ID, raw)
			if err != nil {
				b.logger().Debug("Skipping item", "environment", env.ID, "error", err)
				continue
			}
			out = append(out, v)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	var all []T
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// replaceLowCode swaps the environments and the given records in one
// transaction.
func replaceLowCode[T any](ctx context.Context, s *storage.Store, envs []models.PowerPlatformEnvironment, records []T) error {
	return s.WriteTx(ctx, func(tx *storage.Tx) error {
		if err := tx.DeleteAll(&models.PowerPlatformEnvironment{}); err != nil {
			return err
		}
		if err := storage.Upsert(tx, envs); err != nil {
			return err
		}
		var zero T
		if err := tx.DeleteAll(&zero); err != nil {
			return err
		}
		return storage.Upsert(tx, records)
	})
}

// PowerAppsCollector inventories Power Apps across environments using the
// caller's delegated token.
type PowerAppsCollector struct {
	base
}

func (c *PowerAppsCollector) Preflight(req ScanRequest) error {
	return c.preflightDelegated(req)
}

func (c *PowerAppsCollector) Collect(ctx context.Context, req ScanRequest) error {
	f := c.deps.PowerPlatform(req.AccessToken)
	envs, err := c.environments(ctx, f)
	if err != nil {
		return err
	}
	apps, err := perEnvironment(ctx, c.base, f, envs, c.deps.PowerPlatformEndpoints.AppsURL, powerplatform.App)
	if err != nil {
		return err
	}
	c.logger().Info("Collected apps", "environments", len(envs), "apps", len(apps))
	return replaceLowCode(ctx, c.deps.Store, envs, apps)
}

// PowerAutomateCollector inventories cloud flows across environments using
// the caller's delegated token.
type PowerAutomateCollector struct {
	base
}

func (c *PowerAutomateCollector) Preflight(req ScanRequest) error {
	return c.preflightDelegated(req)
}

func (c *PowerAutomateCollector) Collect(ctx context.Context, req ScanRequest) error {
	f := c.deps.PowerPlatform(req.AccessToken)
	envs, err := c.environments(ctx, f)
	if err != nil {
		return err
	}
	flows, err := perEnvironment(ctx, c.base, f, envs, c.deps.PowerPlatformEndpoints.FlowsURL, powerplatform.Flow)
	if err != nil {
		return err
	}
	c.logger().Info("Collected flows", "environments", len(envs), "flows", len(flows))
	return replaceLowCode(ctx, c.deps.Store, envs, flows)
}

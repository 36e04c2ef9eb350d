package collectors

import (
	"context"

	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

var userFields = []string{"id", "displayName", "userPrincipalName", "accountEnabled", "department", "jobTitle"}

// UserCollector inventories Entra ID users.
type UserCollector struct {
	base
}

func (c *UserCollector) Preflight(ScanRequest) error {
	return c.preflightGraph()
}

func (c *UserCollector) Collect(ctx context.Context, _ ScanRequest) error {
	_, err := c.crawler().Crawl(ctx, crawl.Options{
		ResourceType: c.rt,
		InitialQuery: "/users?$top=999",
		Select:       userFields,
		OnFresh: func(ctx context.Context) error {
			c.logger().Info("Starting fresh scan, clearing users not referenced by memberships")
			return c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
				return tx.DeleteUnreferencedUsers()
			})
		},
		Process: c.processPage,
	})
	return err
}

func (c *UserCollector) processPage(ctx context.Context, page crawl.Page) error {
	decoded, err := decodeItems[models.User](page.Items)
	if err != nil {
		return err
	}
	users := decoded[:0]
	for _, u := range decoded {
		if u.ID != "" {
			users = append(users, u)
		}
	}

	if err := c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
		return storage.Upsert(tx, users)
	}); err != nil {
		return err
	}

	nodes := make([]any, 0, len(users))
	for i := range users {
		nodes = append(nodes, &users[i])
	}
	c.mirror(ctx, nodes, nil)
	return nil
}

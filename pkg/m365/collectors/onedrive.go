package collectors

import (
	"context"
	"errors"
	"net/url"

	"github.com/praetorian-inc/tenantscan/pkg/m365/client"
	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

// OneDriveCollector walks users and records each user's personal drive.
// Users without a provisioned drive are skipped.
type OneDriveCollector struct {
	base
}

func (c *OneDriveCollector) Preflight(ScanRequest) error {
	return c.preflightGraph()
}

func (c *OneDriveCollector) Collect(ctx context.Context, _ ScanRequest) error {
	_, err := c.crawler().Crawl(ctx, crawl.Options{
		ResourceType: c.rt,
		InitialQuery: "/users?$top=999",
		Select:       directoryObjectFields,
		OnFresh:      c.clearTables(&models.OneDrive{}),
		Process:      c.processPage,
	})
	return err
}

func (c *OneDriveCollector) processPage(ctx context.Context, page crawl.Page) error {
	users, err := decodeItems[directoryObject](page.Items)
	if err != nil {
		return err
	}

	found, err := mapBounded(ctx, c.concurrency(), users, c.lookup)
	if err != nil {
		return err
	}
	var drives []models.OneDrive
	for _, d := range found {
		if d != nil {
			drives = append(drives, *d)
		}
	}
	c.logger().Debug("Resolved drives", "page", page.Number, "users", len(users), "drives", len(drives))

	return c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
		return storage.Upsert(tx, drives)
	})
}

// lookup returns nil when the user has no drive.
func (c *OneDriveCollector) lookup(ctx context.Context, user directoryObject) (*models.OneDrive, error) {
	if user.ID == "" {
		return nil, nil
	}
	var drive graphDrive
	err := c.deps.Graph.GetJSON(ctx, "/users/"+url.PathEscape(user.ID)+"/drive", nil, &drive)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		c.logger().Debug("No drive for user", "user", user.ID, "status", apiErr.StatusCode)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if drive.ID == "" {
		return nil, nil
	}

	owner := user.DisplayName
	if owner == nil || *owner == "" {
		owner = user.UserPrincipalName
	}
	rec := &models.OneDrive{
		ID:        drive.ID,
		OwnerID:   user.ID,
		OwnerName: owner,
		SiteName:  drive.Name,
		SiteURL:   drive.WebURL,
	}
	if drive.Quota != nil {
		rec.SizeBytes = drive.Quota.Used
	}
	return rec, nil
}

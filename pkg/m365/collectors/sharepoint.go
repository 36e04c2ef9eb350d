package collectors

import (
	"context"
	"strings"

	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

type graphSite struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	DisplayName *string `json:"displayName"`
	WebURL      *string `json:"webUrl"`
}

type siteDetails struct {
	SharingCapability *string `json:"sharingCapability"`
	SharingStatus     *string `json:"sharingStatus"`
}

type driveQuota struct {
	Used  *int64 `json:"used"`
	Total *int64 `json:"total"`
}

type graphDrive struct {
	ID     string      `json:"id"`
	Name   *string     `json:"name"`
	WebURL *string     `json:"webUrl"`
	Quota  *driveQuota `json:"quota"`
}

type childrenCount struct {
	Count *int64 `json:"@odata.count"`
}

// siteID drops the hostname segment of a composite
// "host,siteCollectionId,webId" id.
func siteID(id string) string {
	if _, rest, ok := strings.Cut(id, ","); ok {
		return rest
	}
	return id
}

// SharePointCollector inventories sites with storage, file count and sharing
// details. The per-site lookups are best effort.
type SharePointCollector struct {
	base
}

func (c *SharePointCollector) Preflight(ScanRequest) error {
	return c.preflightGraph()
}

func (c *SharePointCollector) Collect(ctx context.Context, _ ScanRequest) error {
	_, err := c.crawler().Crawl(ctx, crawl.Options{
		ResourceType: c.rt,
		InitialQuery: "/sites?search=*",
		OnFresh:      c.clearTables(&models.SharePointSite{}),
		Process:      c.processPage,
	})
	return err
}

func (c *SharePointCollector) processPage(ctx context.Context, page crawl.Page) error {
	decoded, err := decodeItems[graphSite](page.Items)
	if err != nil {
		return err
	}
	var sites []graphSite
	for _, s := range decoded {
		if s.ID != "" {
			sites = append(sites, s)
		}
	}

	records, err := mapBounded(ctx, c.concurrency(), sites, c.describe)
	if err != nil {
		return err
	}
	return c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
		return storage.Upsert(tx, records)
	})
}

func (c *SharePointCollector) describe(ctx context.Context, site graphSite) (models.SharePointSite, error) {
	name := site.DisplayName
	if name == nil {
		name = site.Name
	}
	rec := models.SharePointSite{
		ID:   siteID(site.ID),
		Name: name,
		URL:  site.WebURL,
	}
	prefix := "/sites/" + site.ID
	log := c.logger().With("site", site.ID)

	var drive graphDrive
	if err := c.deps.Graph.GetJSON(ctx, prefix+"/drive", nil, &drive); err != nil {
		log.Debug("Site drive lookup failed", "error", err)
	} else if drive.Quota != nil {
		rec.StorageUsedBytes = drive.Quota.Used
		rec.StorageLimitBytes = drive.Quota.Total
	}

	var children childrenCount
	if err := c.deps.Graph.GetJSON(ctx, prefix+"/drive/root/children?$top=1&$count=true", eventualConsistency, &children); err != nil {
		log.Debug("Site file count lookup failed", "error", err)
	} else {
		rec.FilesCount = children.Count
	}

	var details siteDetails
	if err := c.deps.Graph.GetJSON(ctx, prefix, nil, &details); err != nil {
		log.Debug("Site details lookup failed", "error", err)
	} else if details.SharingCapability != nil {
		rec.ExternalSharing = details.SharingCapability
	} else {
		rec.ExternalSharing = details.SharingStatus
	}

	if err := ctx.Err(); err != nil {
		return models.SharePointSite{}, err
	}
	return rec, nil
}

package collectors

import (
	"context"

	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

type graphDomain struct {
	ID                 string  `json:"id"`
	IsVerified         bool    `json:"isVerified"`
	IsDefault          bool    `json:"isDefault"`
	AuthenticationType *string `json:"authenticationType"`
}

// DomainCollector inventories tenant domains.
type DomainCollector struct {
	base
}

func (c *DomainCollector) Preflight(ScanRequest) error {
	return c.preflightGraph()
}

func (c *DomainCollector) Collect(ctx context.Context, _ ScanRequest) error {
	_, err := c.crawler().Crawl(ctx, crawl.Options{
		ResourceType: c.rt,
		InitialQuery: "/domains?$top=999",
		OnFresh:      c.clearTables(&models.Domain{}),
		Process: func(ctx context.Context, page crawl.Page) error {
			decoded, err := decodeItems[graphDomain](page.Items)
			if err != nil {
				return err
			}
			var domains []models.Domain
			for _, d := range decoded {
				if d.ID == "" {
					continue
				}
				status := "Unverified"
				if d.IsVerified {
					status = "Verified"
				}
				domains = append(domains, models.Domain{
					ID:                 d.ID,
					Status:             status,
					IsDefault:          d.IsDefault,
					AuthenticationType: d.AuthenticationType,
				})
			}
			return c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
				return storage.Upsert(tx, domains)
			})
		},
	})
	return err
}

package collectors

import (
	"context"

	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

type prepaidUnits struct {
	Enabled   *int64 `json:"enabled"`
	Warning   *int64 `json:"warning"`
	Suspended *int64 `json:"suspended"`
	LockedOut *int64 `json:"lockedOut"`
}

type subscribedSku struct {
	SkuID            string        `json:"skuId"`
	SkuPartNumber    *string       `json:"skuPartNumber"`
	CapabilityStatus *string       `json:"capabilityStatus"`
	ConsumedUnits    *int64        `json:"consumedUnits"`
	PrepaidUnits     *prepaidUnits `json:"prepaidUnits"`
}

// availableSeats is total minus consumed, or nil when either is unknown.
// A negative result is returned as is with overAllocated set.
func availableSeats(total, consumed *int64) (available *int64, overAllocated bool) {
	if total == nil || consumed == nil {
		return nil, false
	}
	n := *total - *consumed
	return &n, n < 0
}

func licenseRecord(sku subscribedSku) models.License {
	rec := models.License{
		ID:            sku.SkuID,
		SkuPartNumber: sku.SkuPartNumber,
		DisplayName:   sku.SkuPartNumber,
		Status:        sku.CapabilityStatus,
		ConsumedSeats: sku.ConsumedUnits,
		AssignedUnits: sku.ConsumedUnits,
	}
	if p := sku.PrepaidUnits; p != nil {
		rec.TotalSeats = p.Enabled
		rec.PrepaidUnits = p.Enabled
		rec.WarningUnits = p.Warning
		rec.SuspendedUnits = p.Suspended
		rec.LockedOutUnits = p.LockedOut
	}
	rec.AvailableSeats, rec.OverAllocated = availableSeats(rec.TotalSeats, rec.ConsumedSeats)
	return rec
}

// LicenseCollector inventories subscribed SKUs and their seat counts.
type LicenseCollector struct {
	base
}

func (c *LicenseCollector) Preflight(ScanRequest) error {
	return c.preflightGraph()
}

func (c *LicenseCollector) Collect(ctx context.Context, _ ScanRequest) error {
	_, err := c.crawler().Crawl(ctx, crawl.Options{
		ResourceType: c.rt,
		InitialQuery: "/subscribedSkus",
		OnFresh:      c.clearTables(&models.License{}),
		Process:      c.processPage,
	})
	return err
}

func (c *LicenseCollector) processPage(ctx context.Context, page crawl.Page) error {
	skus, err := decodeItems[subscribedSku](page.Items)
	if err != nil {
		return err
	}
	var licenses []models.License
	for _, sku := range skus {
		if sku.SkuID == "" {
			continue
		}
		rec := licenseRecord(sku)
		if rec.OverAllocated {
			c.logger().Warn("License is over-allocated",
				"sku", deref(rec.SkuPartNumber),
				"total", *rec.TotalSeats,
				"consumed", *rec.ConsumedSeats)
		}
		licenses = append(licenses, rec)
	}
	return c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
		return storage.Upsert(tx, licenses)
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package collectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/praetorian-inc/tenantscan/pkg/m365/client"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/reports"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

// MailboxCollector loads the Exchange mailbox usage report. The report is a
// single download, so a run always replaces every stored mailbox.
type MailboxCollector struct {
	base
}

func (c *MailboxCollector) Preflight(ScanRequest) error {
	return c.preflightGraph()
}

func (c *MailboxCollector) Collect(ctx context.Context, _ ScanRequest) error {
	body, err := c.deps.Graph.GetRaw(ctx, reports.MailboxUsagePath, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to download report: %w", c.rt, err)
	}
	mailboxes, err := reports.ParseMailboxUsage(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", c.rt, err)
	}
	c.logger().Info("Parsed mailbox usage report", "rows", len(mailboxes))

	return c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
		if err := tx.DeleteAll(&models.ExchangeMailbox{}); err != nil {
			return err
		}
		return storage.Upsert(tx, mailboxes)
	})
}

// SharePointUsageCollector loads the site usage report and fills in missing
// site URLs and names from the sites API.
type SharePointUsageCollector struct {
	base
}

func (c *SharePointUsageCollector) Preflight(ScanRequest) error {
	return c.preflightGraph()
}

func (c *SharePointUsageCollector) Collect(ctx context.Context, _ ScanRequest) error {
	body, err := c.deps.Graph.GetRaw(ctx, reports.SiteUsagePath, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to download report: %w", c.rt, err)
	}
	usage, err := reports.ParseSiteUsage(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", c.rt, err)
	}
	c.logger().Info("Parsed site usage report", "rows", len(usage))

	if err := c.denormalize(ctx, usage); err != nil {
		return err
	}

	return c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
		if err := tx.DeleteAll(&models.SharePointSiteUsage{}); err != nil {
			return err
		}
		return storage.Upsert(tx, usage)
	})
}

type batchSite struct {
	WebURL      *string `json:"webUrl"`
	DisplayName *string `json:"displayName"`
	Name        *string `json:"name"`
}

func blank(s *string) bool {
	return s == nil || *s == ""
}

// denormalize looks up sites whose URL or name the report left out, in $batch
// chunks. Failed chunks and sub-requests are logged and skipped; only context
// cancellation is returned.
func (c *SharePointUsageCollector) denormalize(ctx context.Context, usage []models.SharePointSiteUsage) error {
	var missing []int
	for i, u := range usage {
		if !blank(u.SiteID) && (blank(u.SiteURL) || blank(u.SiteName)) {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	updated := 0
	for start := 0; start < len(missing); start += client.MaxBatchSize {
		chunk := missing[start:min(start+client.MaxBatchSize, len(missing))]
		requests := make([]client.BatchRequest, len(chunk))
		for j, idx := range chunk {
			requests[j] = client.BatchRequest{ID: strconv.Itoa(j), URL: "/sites/" + *usage[idx].SiteID}
		}

		responses, err := c.deps.Graph.Batch(ctx, requests)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger().Warn("Site lookup batch failed", "error", err)
			continue
		}
		for _, resp := range responses {
			j, err := strconv.Atoi(resp.ID)
			if err != nil || j < 0 || j >= len(chunk) {
				continue
			}
			if resp.Status != http.StatusOK {
				c.logger().Debug("Site lookup failed", "site", *usage[chunk[j]].SiteID, "status", resp.Status)
				continue
			}
			var site batchSite
			if err := json.Unmarshal(resp.Body, &site); err != nil {
				continue
			}
			u := &usage[chunk[j]]
			u.SiteURL = site.WebURL
			u.SiteName = site.DisplayName
			if u.SiteName == nil {
				u.SiteName = site.Name
			}
			updated++
		}
	}
	c.logger().Info("Filled in site details", "missing", len(missing), "updated", updated)
	return nil
}

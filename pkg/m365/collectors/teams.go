package collectors

import (
	"context"

	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

const teamFilter = "resourceProvisioningOptions/Any(x:x eq 'Team')"

var teamFields = []string{"id", "displayName", "description", "visibility", "resourceProvisioningOptions"}

// TeamCollector inventories team-provisioned groups with their owners and
// members.
type TeamCollector struct {
	base
}

func (c *TeamCollector) Preflight(ScanRequest) error {
	return c.preflightGraph()
}

func (c *TeamCollector) Collect(ctx context.Context, _ ScanRequest) error {
	_, err := c.crawler().Crawl(ctx, crawl.Options{
		ResourceType: c.rt,
		InitialQuery: crawl.WithQuery("/groups?$top=999", "$filter", teamFilter),
		Select:       teamFields,
		Headers:      eventualConsistency,
		OnFresh: func(ctx context.Context) error {
			c.logger().Info("Starting fresh scan, clearing stored teams")
			return c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
				if err := tx.DeleteAll(&models.Team{}); err != nil {
					return err
				}
				return tx.DeleteMemberships(models.ParentTeam)
			})
		},
		Process: c.processPage,
	})
	return err
}

func (c *TeamCollector) processPage(ctx context.Context, page crawl.Page) error {
	decoded, err := decodeItems[graphGroup](page.Items)
	if err != nil {
		return err
	}
	var groups []graphGroup
	for _, g := range decoded {
		if g.ID != "" {
			groups = append(groups, g)
		}
	}

	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	rosters, err := c.fetchRosters(ctx, ids)
	if err != nil {
		return err
	}

	teams := make([]models.Team, len(groups))
	for i, g := range groups {
		teams[i] = models.Team{
			ID:          g.ID,
			DisplayName: g.DisplayName,
			Description: g.Description,
			Visibility:  g.Visibility,
			MemberCount: rosters[i].memberCount(),
			OwnerCount:  rosters[i].ownerCount(),
		}
	}

	err = c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
		if err := storage.Upsert(tx, teams); err != nil {
			return err
		}
		return writeRosters(tx, models.ParentTeam, rosters)
	})
	if err != nil {
		return err
	}

	nodes, edges := rosterGraph(models.ParentTeam, storage.LabelTeam, rosters)
	for i := range teams {
		nodes = append(nodes, &teams[i])
	}
	c.mirror(ctx, nodes, edges)
	return nil
}

package collectors

import (
	"context"
	"slices"

	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

var groupFields = []string{
	"id", "displayName", "description", "groupTypes", "mailEnabled", "mailNickname",
	"securityEnabled", "visibility", "resourceProvisioningOptions",
}

var eventualConsistency = map[string]string{"ConsistencyLevel": "eventual"}

type graphGroup struct {
	ID                          string   `json:"id"`
	DisplayName                 *string  `json:"displayName"`
	Description                 *string  `json:"description"`
	GroupTypes                  []string `json:"groupTypes"`
	MailEnabled                 bool     `json:"mailEnabled"`
	MailNickname                *string  `json:"mailNickname"`
	SecurityEnabled             bool     `json:"securityEnabled"`
	Visibility                  *string  `json:"visibility"`
	ResourceProvisioningOptions []string `json:"resourceProvisioningOptions"`
}

func (g graphGroup) isTeam() bool {
	return slices.Contains(g.ResourceProvisioningOptions, "Team")
}

func (g graphGroup) isUnified() bool {
	return slices.Contains(g.GroupTypes, "Unified")
}

// GroupCollector inventories Microsoft 365 and security groups. Team-provisioned
// groups are left to TeamCollector.
type GroupCollector struct {
	base
}

func (c *GroupCollector) Preflight(ScanRequest) error {
	return c.preflightGraph()
}

func (c *GroupCollector) Collect(ctx context.Context, _ ScanRequest) error {
	_, err := c.crawler().Crawl(ctx, crawl.Options{
		ResourceType: c.rt,
		InitialQuery: "/groups?$top=999",
		Select:       groupFields,
		Headers:      eventualConsistency,
		OnFresh: func(ctx context.Context) error {
			c.logger().Info("Starting fresh scan, clearing stored groups")
			return c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
				if err := tx.DeleteAll(&models.M365Group{}); err != nil {
					return err
				}
				if err := tx.DeleteAll(&models.SecurityGroup{}); err != nil {
					return err
				}
				return tx.DeleteMemberships(models.ParentM365Group)
			})
		},
		Process: c.processPage,
	})
	return err
}

func (c *GroupCollector) processPage(ctx context.Context, page crawl.Page) error {
	groups, err := decodeItems[graphGroup](page.Items)
	if err != nil {
		return err
	}

	var unified []graphGroup
	var security []models.SecurityGroup
	skipped := 0
	for _, g := range groups {
		switch {
		case g.ID == "":
			continue
		case g.isTeam():
			skipped++
		case g.isUnified():
			unified = append(unified, g)
		default:
			security = append(security, models.SecurityGroup{
				ID:                  g.ID,
				DisplayName:         g.DisplayName,
				Description:         g.Description,
				MailNickname:        g.MailNickname,
				MailEnabled:         g.MailEnabled,
				SecurityEnabled:     g.SecurityEnabled,
				IsDistributionGroup: !g.SecurityEnabled,
			})
		}
	}

	ids := make([]string, len(unified))
	for i, g := range unified {
		ids[i] = g.ID
	}
	rosters, err := c.fetchRosters(ctx, ids)
	if err != nil {
		return err
	}

	m365 := make([]models.M365Group, len(unified))
	for i, g := range unified {
		m365[i] = models.M365Group{
			ID:           g.ID,
			DisplayName:  g.DisplayName,
			Description:  g.Description,
			MailNickname: g.MailNickname,
			Visibility:   g.Visibility,
			MemberCount:  rosters[i].memberCount(),
			OwnerCount:   rosters[i].ownerCount(),
		}
	}

	err = c.deps.Store.WriteTx(ctx, func(tx *storage.Tx) error {
		if err := storage.Upsert(tx, m365); err != nil {
			return err
		}
		if err := storage.Upsert(tx, security); err != nil {
			return err
		}
		return writeRosters(tx, models.ParentM365Group, rosters)
	})
	if err != nil {
		return err
	}
	c.logger().Debug("Classified groups",
		"page", page.Number,
		"m365", len(m365),
		"security", len(security),
		"teams_skipped", skipped)

	nodes, edges := rosterGraph(models.ParentM365Group, storage.LabelGroup, rosters)
	for i := range m365 {
		nodes = append(nodes, &m365[i])
	}
	for i := range security {
		nodes = append(nodes, &security[i])
	}
	c.mirror(ctx, nodes, edges)
	return nil
}

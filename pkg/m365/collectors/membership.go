package collectors

import (
	"context"
	"net/url"
	"slices"

	"github.com/mpvl/unique"
	"github.com/praetorian-inc/tenantscan/pkg/m365/crawl"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

var directoryObjectFields = []string{"id", "displayName", "userPrincipalName"}

const odataTypeUser = "#microsoft.graph.user"

// directoryObject is an owner or member entry. Graph returns mixed object
// types for these collections; only users are kept.
type directoryObject struct {
	ODataType         string  `json:"@odata.type"`
	ID                string  `json:"id"`
	DisplayName       *string `json:"displayName"`
	UserPrincipalName *string `json:"userPrincipalName"`
}

func (o directoryObject) isUser() bool {
	return o.ID != "" && (o.ODataType == "" || o.ODataType == odataTypeUser)
}

// roster holds the user owners and members of one group.
type roster struct {
	parentID string
	owners   []directoryObject
	members  []directoryObject
}

func (b base) fetchRoster(ctx context.Context, groupID string) (roster, error) {
	prefix := "/groups/" + url.PathEscape(groupID)
	owners, err := b.directoryUsers(ctx, prefix+"/owners?$top=999")
	if err != nil {
		return roster{}, err
	}
	members, err := b.directoryUsers(ctx, prefix+"/members?$top=999")
	if err != nil {
		return roster{}, err
	}
	return roster{parentID: groupID, owners: owners, members: members}, nil
}

// fetchRosters looks up every group's roster with bounded concurrency.
func (b base) fetchRosters(ctx context.Context, groupIDs []string) ([]roster, error) {
	return mapBounded(ctx, b.concurrency(), groupIDs, b.fetchRoster)
}

func (b base) directoryUsers(ctx context.Context, path string) ([]directoryObject, error) {
	items, err := crawl.CollectAll(ctx, b.deps.Graph, crawl.WithSelect(path, directoryObjectFields), nil)
	if err != nil {
		return nil, err
	}
	objs, err := decodeItems[directoryObject](items)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(objs, func(o directoryObject) bool { return !o.isUser() }), nil
}

func uniqueIDs(objs []directoryObject) []string {
	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	unique.Strings(&ids)
	return ids
}

func (r roster) ownerCount() int  { return len(uniqueIDs(r.owners)) }
func (r roster) memberCount() int { return len(uniqueIDs(r.members)) }

func (r roster) memberships(parentType models.ParentType) []models.Membership {
	var rows []models.Membership
	for _, id := range uniqueIDs(r.owners) {
		rows = append(rows, models.Membership{ParentType: parentType, ParentID: r.parentID, UserID: id, Role: models.RoleOwner})
	}
	for _, id := range uniqueIDs(r.members) {
		rows = append(rows, models.Membership{ParentType: parentType, ParentID: r.parentID, UserID: id, Role: models.RoleMember})
	}
	return rows
}

// referencedUsers returns one minimal user row per distinct owner or member
// across rosters, so every membership row resolves in the same transaction.
func referencedUsers(rosters []roster) []models.User {
	seen := map[string]bool{}
	var users []models.User
	for _, r := range rosters {
		for _, o := range slices.Concat(r.owners, r.members) {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			users = append(users, models.User{
				ID:                o.ID,
				DisplayName:       o.DisplayName,
				UserPrincipalName: o.UserPrincipalName,
			})
		}
	}
	return users
}

// writeRosters stores the users and membership rows of rosters in tx.
func writeRosters(tx *storage.Tx, parentType models.ParentType, rosters []roster) error {
	if err := tx.EnsureUsers(referencedUsers(rosters)); err != nil {
		return err
	}
	for _, r := range rosters {
		if err := tx.ReplaceMemberships(parentType, r.parentID, r.memberships(parentType)); err != nil {
			return err
		}
	}
	return nil
}

// rosterGraph returns the nodes and edges that mirror rosters.
func rosterGraph(parentType models.ParentType, parentLabel string, rosters []roster) ([]any, []edge) {
	var nodes []any
	for _, u := range referencedUsers(rosters) {
		nodes = append(nodes, &u)
	}
	var edges []edge
	for _, r := range rosters {
		for _, m := range r.memberships(parentType) {
			kind := storage.EdgeMemberOf
			if m.Role == models.RoleOwner {
				kind = storage.EdgeOwns
			}
			edges = append(edges, edge{
				from:      m.UserID,
				to:        m.ParentID,
				kind:      kind,
				fromLabel: storage.LabelUser,
				toLabel:   parentLabel,
			})
		}
	}
	return nodes, edges
}

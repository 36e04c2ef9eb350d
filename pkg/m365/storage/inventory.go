package storage

import (
	"context"
	"fmt"

	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 100

// DeleteAll removes every row of the model's table.
func (tx *Tx) DeleteAll(model any) error {
	if err := tx.db.Where("1 = 1").Delete(model).Error; err != nil {
		return fmt.Errorf("failed to clear %T: %w", model, err)
	}
	return nil
}

// Upsert inserts records, replacing any existing row with the same primary key.
func Upsert[T any](tx *Tx, records []T) error {
	if len(records) == 0 {
		return nil
	}
	err := tx.db.Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&records, upsertBatchSize).Error
	if err != nil {
		var zero T
		return fmt.Errorf("failed to upsert %T: %w", zero, err)
	}
	return nil
}

// EnsureUsers inserts minimal user rows for ids that are not yet present.
// Existing rows are left untouched.
func (tx *Tx) EnsureUsers(users []models.User) error {
	if len(users) == 0 {
		return nil
	}
	err := tx.db.Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&users, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to insert referenced users: %w", err)
	}
	return nil
}

// DeleteUnreferencedUsers removes users that no membership row points at.
// Referenced users stay so group and team memberships keep resolving.
func (tx *Tx) DeleteUnreferencedUsers() error {
	err := tx.db.Where("id NOT IN (?)", tx.db.Model(&models.Membership{}).Select("user_id")).
		Delete(&models.User{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear users: %w", err)
	}
	return nil
}

// ReplaceMemberships swaps the membership rows of one parent for rows.
func (tx *Tx) ReplaceMemberships(parentType models.ParentType, parentID string, rows []models.Membership) error {
	err := tx.db.Where("parent_type = ? AND parent_id = ?", parentType, parentID).
		Delete(&models.Membership{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear memberships of %s %s: %w", parentType, parentID, err)
	}
	if len(rows) == 0 {
		return nil
	}
	err = tx.db.Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to insert memberships of %s %s: %w", parentType, parentID, err)
	}
	return nil
}

// DeleteMemberships removes all membership rows owned by parentType.
func (tx *Tx) DeleteMemberships(parentType models.ParentType) error {
	err := tx.db.Where("parent_type = ?", parentType).Delete(&models.Membership{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear %s memberships: %w", parentType, err)
	}
	return nil
}

// List returns every row of T ordered by id.
func List[T any](ctx context.Context, s *Store) ([]T, error) {
	var out []T
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		var zero T
		return nil, fmt.Errorf("failed to list %T: %w", zero, err)
	}
	return out, nil
}

// Count returns the number of rows in the model's table.
func (s *Store) Count(ctx context.Context, model any) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %T: %w", model, err)
	}
	return n, nil
}

// MembershipsOf returns the membership rows owned by parentType.
func (s *Store) MembershipsOf(ctx context.Context, parentType models.ParentType) ([]models.Membership, error) {
	var out []models.Membership
	err := s.db.WithContext(ctx).
		Where("parent_type = ?", parentType).
		Order("parent_id, role, user_id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s memberships: %w", parentType, err)
	}
	return out, nil
}

// Inventory returns the stored records for one resource type, shaped for
// display. Types with companion tables return a map of named slices.
func (s *Store) Inventory(ctx context.Context, rt models.ResourceType) (any, error) {
	switch rt {
	case models.ResourceUsers:
		return List[models.User](ctx, s)
	case models.ResourceGroups:
		m365, err := List[models.M365Group](ctx, s)
		if err != nil {
			return nil, err
		}
		security, err := List[models.SecurityGroup](ctx, s)
		if err != nil {
			return nil, err
		}
		members, err := s.MembershipsOf(ctx, models.ParentM365Group)
		if err != nil {
			return nil, err
		}
		return map[string]any{"m365Groups": m365, "securityGroups": security, "memberships": members}, nil
	case models.ResourceTeams:
		teams, err := List[models.Team](ctx, s)
		if err != nil {
			return nil, err
		}
		members, err := s.MembershipsOf(ctx, models.ParentTeam)
		if err != nil {
			return nil, err
		}
		return map[string]any{"teams": teams, "memberships": members}, nil
	case models.ResourceSharePoint:
		return List[models.SharePointSite](ctx, s)
	case models.ResourceOneDrive:
		return List[models.OneDrive](ctx, s)
	case models.ResourceLicenses:
		return List[models.License](ctx, s)
	case models.ResourceDomains:
		return List[models.Domain](ctx, s)
	case models.ResourceSharePointUsage:
		return List[models.SharePointSiteUsage](ctx, s)
	case models.ResourceExchangeMailboxes:
		return List[models.ExchangeMailbox](ctx, s)
	case models.ResourcePowerApps:
		envs, err := List[models.PowerPlatformEnvironment](ctx, s)
		if err != nil {
			return nil, err
		}
		apps, err := List[models.PowerApp](ctx, s)
		if err != nil {
			return nil, err
		}
		return map[string]any{"environments": envs, "apps": apps}, nil
	case models.ResourcePowerAutomate:
		envs, err := List[models.PowerPlatformEnvironment](ctx, s)
		if err != nil {
			return nil, err
		}
		flows, err := List[models.PowerAutomateFlow](ctx, s)
		if err != nil {
			return nil, err
		}
		return map[string]any{"environments": envs, "flows": flows}, nil
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedType, rt)
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InterruptedMessage is recorded on jobs found running at startup.
const InterruptedMessage = "scan interrupted before completion"

// Job returns the scan job for rt, creating an idle row on first use.
func (s *Store) Job(ctx context.Context, rt models.ResourceType) (models.ScanJob, error) {
	db := s.db.WithContext(ctx)
	seed := models.ScanJob{ResourceType: rt, State: models.ScanStateIdle}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return models.ScanJob{}, fmt.Errorf("failed to create scan job %s: %w", rt, err)
	}
	var job models.ScanJob
	if err := db.Where("resource_type = ?", rt).First(&job).Error; err != nil {
		return models.ScanJob{}, fmt.Errorf("failed to load scan job %s: %w", rt, err)
	}
	return job, nil
}

// Jobs returns one job per known resource type, in display order.
func (s *Store) Jobs(ctx context.Context) ([]models.ScanJob, error) {
	types := models.AllResourceTypes()
	out := make([]models.ScanJob, 0, len(types))
	for _, rt := range types {
		job, err := s.Job(ctx, rt)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// TryStart moves rt to running unless it is already running. It reports
// whether this caller won the transition.
func (s *Store) TryStart(ctx context.Context, rt models.ResourceType, now time.Time) (bool, error) {
	if _, err := s.Job(ctx, rt); err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Model(&models.ScanJob{}).
		Where("resource_type = ? AND state <> ?", rt, models.ScanStateRunning).
		Updates(map[string]any{
			"state":        models.ScanStateRunning,
			"started_at":   now,
			"completed_at": nil,
			"error":        nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to start scan job %s: %w", rt, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Complete marks a running job completed.
func (s *Store) Complete(ctx context.Context, rt models.ResourceType, now time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.ScanJob{}).
		Where("resource_type = ?", rt).
		Updates(map[string]any{
			"state":        models.ScanStateCompleted,
			"completed_at": now,
			"error":        nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete scan job %s: %w", rt, err)
	}
	return nil
}

// Fail marks a job failed with msg. The checkpoint is left in place.
func (s *Store) Fail(ctx context.Context, rt models.ResourceType, now time.Time, msg string) error {
	err := s.db.WithContext(ctx).Model(&models.ScanJob{}).
		Where("resource_type = ?", rt).
		Updates(map[string]any{
			"state":        models.ScanStateFailed,
			"completed_at": now,
			"error":        msg,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record failure of scan job %s: %w", rt, err)
	}
	return nil
}

// RecoverInterrupted fails every job still marked running. It is meant to run
// once at startup, before any scan is accepted.
func (s *Store) RecoverInterrupted(ctx context.Context, now time.Time) ([]models.ResourceType, error) {
	var stale []models.ScanJob
	if err := s.db.WithContext(ctx).Where("state = ?", models.ScanStateRunning).Find(&stale).Error; err != nil {
		return nil, fmt.Errorf("failed to find interrupted scan jobs: %w", err)
	}
	recovered := make([]models.ResourceType, 0, len(stale))
	for _, job := range stale {
		if err := s.Fail(ctx, job.ResourceType, now, InterruptedMessage); err != nil {
			return recovered, err
		}
		recovered = append(recovered, job.ResourceType)
	}
	return recovered, nil
}

// LoadCheckpoint returns the saved resume cursor for rt, or nil.
func (s *Store) LoadCheckpoint(ctx context.Context, rt models.ResourceType) (*string, error) {
	var job models.ScanJob
	err := s.db.WithContext(ctx).Where("resource_type = ?", rt).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", rt, err)
	}
	if job.ResumeCursor == nil || *job.ResumeCursor == "" {
		return nil, nil
	}
	return job.ResumeCursor, nil
}

// SaveCheckpoint records cursor as the resume point for rt. A nil cursor is
// stored as NULL.
func (s *Store) SaveCheckpoint(ctx context.Context, rt models.ResourceType, cursor *string) error {
	if _, err := s.Job(ctx, rt); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Model(&models.ScanJob{}).
		Where("resource_type = ?", rt).
		Update("resume_cursor", cursor).Error
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", rt, err)
	}
	return nil
}

// ClearCheckpoint nulls the resume cursor. The job row itself is kept.
func (s *Store) ClearCheckpoint(ctx context.Context, rt models.ResourceType) error {
	err := s.db.WithContext(ctx).Model(&models.ScanJob{}).
		Where("resource_type = ?", rt).
		Update("resume_cursor", nil).Error
	if err != nil {
		return fmt.Errorf("failed to clear checkpoint %s: %w", rt, err)
	}
	return nil
}

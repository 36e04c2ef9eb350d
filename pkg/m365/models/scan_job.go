package models

import "time"

type ScanState string

const (
	ScanStateIdle      ScanState = "idle"
	ScanStateRunning   ScanState = "running"
	ScanStateCompleted ScanState = "completed"
	ScanStateFailed    ScanState = "failed"
)

// ScanJob is the single status row for one resource type. ResumeCursor is the
// crawl checkpoint and survives failed runs.
type ScanJob struct {
	ResourceType ResourceType `gorm:"primaryKey;type:text" json:"resourceType"`
	State        ScanState    `gorm:"type:text;not null" json:"state"`
	StartedAt    *time.Time   `json:"startedAt,omitempty"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
	Error        *string      `gorm:"type:text" json:"error,omitempty"`
	ResumeCursor *string      `gorm:"type:text" json:"resumeCursor,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (ScanJob) TableName() string {
	return "scan_jobs"
}

package models

import "time"

// ReconciliationRun records one pass of the e-mail reconciliation batch.
type ReconciliationRun struct {
	ID         string     `gorm:"type:char(36);primaryKey" json:"id"`
	Trigger    string     `gorm:"size:32;not null" json:"trigger"`
	StartedAt  time.Time  `gorm:"not null;index" json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	Processed  int        `gorm:"not null;default:0" json:"processed"`
	Corrected  int        `gorm:"not null;default:0" json:"corrected"`
	Verified   int        `gorm:"not null;default:0" json:"verified"`
	Unresolved int        `gorm:"not null;default:0" json:"unresolved"`
	Failed     int        `gorm:"not null;default:0" json:"failed"`
	Error      string     `gorm:"size:1024" json:"error,omitempty"`
	Details    JSON       `json:"details"`
}

// TableName overrides the table name for ReconciliationRun
func (ReconciliationRun) TableName() string {
	return "reconciliation_run"
}

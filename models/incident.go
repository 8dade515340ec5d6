package models

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityFine      Severity = "fine"
	SeverityModerate  Severity = "moderate"
	SeverityDangerous Severity = "dangerous"
)

type IncidentStatus string

const (
	IncidentActive      IncidentStatus = "active"
	IncidentResolved    IncidentStatus = "resolved"
	IncidentFalseReport IncidentStatus = "false_report"
)

// IncidentRecord is a reported hazard. Rows are written by the reporting
// service; this module only reads them.
type IncidentRecord struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Lat               float64        `gorm:"column:lat" json:"lat"`
	Lon               float64        `gorm:"column:lon" json:"lon"`
	Severity          Severity       `gorm:"column:severity" json:"severity"`
	Category          string         `gorm:"column:category" json:"category"`
	VerificationCount int            `gorm:"column:verification_count" json:"verification_count"`
	Status            IncidentStatus `gorm:"column:status" json:"status"`
	CreatedAt         time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (IncidentRecord) TableName() string { return "incident_reports" }

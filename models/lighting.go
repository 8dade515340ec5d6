package models

import (
	"time"

	"github.com/google/uuid"
)

// LightingReport is a community or sensor measurement of night lighting.
// LuxEstimate is nil when the reporter gave no reading.
type LightingReport struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Lat         float64   `gorm:"column:lat" json:"lat"`
	Lon         float64   `gorm:"column:lon" json:"lon"`
	LuxEstimate *float64  `gorm:"column:lux_estimate" json:"lux_estimate"`
	Source      string    `gorm:"column:source" json:"source"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (LightingReport) TableName() string { return "lighting_reports" }

// Package repository reads the incident and lighting collections. It never
// writes them; reports arrive through the reporting service and the collector.
//
// Query failures are returned wrapped, with nil rows. Callers own the
// fallback: the ranking engine and the forecaster log the failure, count it
// as a degraded source and continue as if no reports exist.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"safewalk-api/geo"
	"safewalk-api/models"
)

type SignalRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSignalRepository(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db, now: time.Now}
}

// QueryIncidents returns active incidents inside bbox created within since.
// An empty result is an empty slice, never nil.
func (r *SignalRepository) QueryIncidents(ctx context.Context, bbox geo.BoundingBox, since time.Duration) ([]models.IncidentRecord, error) {
	rows := []models.IncidentRecord{}
	err := r.within(ctx, bbox, since).
		Where("status = ?", models.IncidentActive).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	return rows, nil
}

// QueryLighting returns lighting reports inside bbox created within since.
func (r *SignalRepository) QueryLighting(ctx context.Context, bbox geo.BoundingBox, since time.Duration) ([]models.LightingReport, error) {
	rows := []models.LightingReport{}
	err := r.within(ctx, bbox, since).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query lighting: %w", err)
	}
	return rows, nil
}

func (r *SignalRepository) within(ctx context.Context, bbox geo.BoundingBox, since time.Duration) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("created_at >= ?", r.now().Add(-since)).
		Where("lat BETWEEN ? AND ?", bbox.MinLat, bbox.MaxLat).
		Where("lon BETWEEN ? AND ?", bbox.MinLon, bbox.MaxLon)
}

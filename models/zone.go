package models

import "time"

// WatchZone is a point the forecast worker projects risk for on every cycle.
type WatchZone struct {
	ZoneID    string    `gorm:"column:zone_id;primaryKey" json:"zone_id"`
	Label     string    `gorm:"column:label" json:"label"`
	Lat       float64   `gorm:"column:lat" json:"lat"`
	Lng       float64   `gorm:"column:lng" json:"lng"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (WatchZone) TableName() string { return "watch_zones" }

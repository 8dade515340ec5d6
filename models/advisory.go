package models

import "time"

// Advisory is raised when a watch zone's late-night forecast drops below the
// alert threshold.
type Advisory struct {
	TS           time.Time `gorm:"column:ts;primaryKey" json:"ts"`
	ZoneID       string    `gorm:"column:zone_id;primaryKey" json:"zone_id"`
	Reason       string    `gorm:"column:reason" json:"reason"`
	ScoreAfter22 int       `gorm:"column:score_after_22" json:"score_after_22"`
	Threshold    int       `gorm:"column:threshold" json:"threshold"`
	PeakHour     *int      `gorm:"column:peak_hour" json:"peak_hour"`
}

func (Advisory) TableName() string { return "risk_advisories" }

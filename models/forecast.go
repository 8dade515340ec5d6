package models

import "time"

type ForecastRecord struct {
	TS           time.Time `gorm:"column:ts;primaryKey" json:"ts"`
	ZoneID       string    `gorm:"column:zone_id;primaryKey" json:"zone_id"`
	ScoreNow     int       `gorm:"column:score_now" json:"score_now"`
	ScoreIn30    int       `gorm:"column:score_in_30" json:"score_in_30"`
	ScoreAfter22 int       `gorm:"column:score_after_22" json:"score_after_22"`
	NoData       bool      `gorm:"column:no_data" json:"no_data"`
	Explanation  string    `gorm:"column:explanation" json:"explanation"`
	ModelVersion string    `gorm:"column:model_version" json:"model_version"`
}

func (ForecastRecord) TableName() string { return "risk_forecasts" }

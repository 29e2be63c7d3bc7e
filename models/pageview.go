package models

import "time"

// PageView stores aggregated page view counts per day and URL.
type PageView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      time.Time `gorm:"index:idx_pv_date_url,unique;type:date;not null" json:"date"`
	URL       string    `gorm:"column:url;index;index:idx_pv_date_url,unique;size:255;not null" json:"url"`
	Views     int64     `gorm:"not null;default:0" json:"views"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name used by raw aggregate queries.
func (PageView) TableName() string {
	return "page_views"
}

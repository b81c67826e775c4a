package internal

import (
	"time"
)

// ShortLink maps a public short code to its destination. Code and CreatedAt
// never change after insert; ClickCount only grows.
type ShortLink struct {
	ID            int64      `gorm:"primaryKey;type:bigint;autoIncrement:false" json:"-"`
	Code          string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	TargetURL     string     `gorm:"type:text;index;not null" json:"target_url"`
	ClickCount    int64      `gorm:"not null;default:0" json:"click_count"`
	LastClickedAt *time.Time `json:"last_clicked_at,omitempty"`
	ExpiresAt     *time.Time `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Expired reports whether the link stopped resolving at or before now.
func (l *ShortLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// ClickDaily is the per-day click rollup for a code.
type ClickDaily struct {
	Code   string `gorm:"type:varchar(32);primaryKey" json:"-"`
	Day    string `gorm:"type:varchar(10);primaryKey" json:"date"`
	Clicks int64  `gorm:"not null;default:0" json:"clicks"`
}

func (ClickDaily) TableName() string {
	return "click_daily_stats"
}

// DayKey is the rollup bucket for t, in UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

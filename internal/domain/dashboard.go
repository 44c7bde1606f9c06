package domain

import (
	"fmt"
	"time"
)

// Timeframe is a metrics aggregation window selectable on the dashboard.
type Timeframe string

// Supported timeframes.
const (
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeYear  Timeframe = "year"
)

// ParseTimeframe validates s; the empty string is rejected so callers can
// apply their own default first.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(s); tf {
	case TimeframeDay, TimeframeWeek, TimeframeMonth, TimeframeYear:
		return tf, nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Since returns the start of the window ending at now.
func (tf Timeframe) Since(now time.Time) time.Time {
	switch tf {
	case TimeframeDay:
		return now.AddDate(0, 0, -1)
	case TimeframeWeek:
		return now.AddDate(0, 0, -7)
	case TimeframeMonth:
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(-1, 0, 0)
	}
}

// Metrics is the dashboard summary for one clinic over one timeframe.
type Metrics struct {
	ClinicID    string    `json:"clinic_id"`
	Timeframe   Timeframe `json:"timeframe"`
	Locations   int64     `json:"locations"`
	Rooms       int64     `json:"rooms"`
	Staff       int64     `json:"staff"`
	NewStaff    int64     `json:"new_staff"`
	NewRooms    int64     `json:"new_rooms"`
	OpenDays    int64     `json:"open_days"`
	GeneratedAt time.Time `json:"generated_at"`
}

// FormDraft is a persisted, unsubmitted wizard state. Payload is the JSON
// produced by the draft store; drafts expire with the browsing session.
type FormDraft struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"`
	SessionID string    `gorm:"type:varchar(64);not null;index"`
	Payload   []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName returns the database table name for FormDraft.
func (FormDraft) TableName() string { return "form_drafts" }

// Preferences holds per-user UI state (sidebar collapse, selected timeframe).
type Preferences struct {
	UserID           string    `json:"-"                 gorm:"type:char(36);primaryKey"`
	SidebarCollapsed bool      `json:"sidebar_collapsed" gorm:"not null;default:false"`
	Timeframe        Timeframe `json:"timeframe"         gorm:"type:varchar(8);not null;default:'week'"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for Preferences.
func (Preferences) TableName() string { return "ui_preferences" }

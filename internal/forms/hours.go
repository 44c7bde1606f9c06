package forms

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Day is one row of the operating-hours step. Weekday follows time.Weekday
// (0 is Sunday). Times are "HH:MM" in the clinic's local time.
type Day struct {
	Weekday  time.Weekday `json:"weekday"`
	Open     bool         `json:"open"`
	OpensAt  string       `json:"opens_at,omitempty"`
	ClosesAt string       `json:"closes_at,omitempty"`
}

const clockLayout = "15:04"

// ParseHours decodes the hours field. It accepts []Day or the JSON shape
// (a list of objects) as submitted by clients.
func ParseHours(v any) ([]Day, error) {
	var days []Day
	switch t := v.(type) {
	case []Day:
		days = t
	case nil:
		return nil, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &days); err != nil {
			return nil, fmt.Errorf("hours: %w", err)
		}
	}
	seen := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		if d.Weekday < time.Sunday || d.Weekday > time.Saturday {
			return nil, fmt.Errorf("hours: weekday %d out of range", d.Weekday)
		}
		if seen[d.Weekday] {
			return nil, fmt.Errorf("hours: %s listed twice", d.Weekday)
		}
		seen[d.Weekday] = true
	}
	return days, nil
}

var errHoursOrder = errors.New("opening time must be before closing time")

func (d Day) checkRange() error {
	open, err := time.Parse(clockLayout, d.OpensAt)
	if err != nil {
		return fmt.Errorf("%s: opening time must be HH:MM", d.Weekday)
	}
	closes, err := time.Parse(clockLayout, d.ClosesAt)
	if err != nil {
		return fmt.Errorf("%s: closing time must be HH:MM", d.Weekday)
	}
	if !open.Before(closes) {
		return fmt.Errorf("%s: %w", d.Weekday, errHoursOrder)
	}
	return nil
}

// DefaultHours is the initial hours value offered by the clinic wizard:
// weekdays open 09:00 to 17:00, weekends closed.
func DefaultHours() []Day {
	out := make([]Day, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		d := Day{Weekday: wd}
		if wd != time.Sunday && wd != time.Saturday {
			d.Open, d.OpensAt, d.ClosesAt = true, "09:00", "17:00"
		}
		out = append(out, d)
	}
	return out
}

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTitle  = errors.New("model: title is required")
	ErrInvalidEnergy = errors.New("model: invalid task energy")
	ErrInvalidMood   = errors.New("model: invalid mood level")
	ErrInvalidTotal  = errors.New("model: manuscript total must be at least 1")
	ErrInvalidDate   = errors.New("model: invalid date")
	ErrNotFound      = errors.New("model: not found")
)

const (
	MinEnergy = 0
	MaxEnergy = 5

	// DateLayout is the calendar-day layout used for deadlines and the daily reset key.
	DateLayout = "2006-01-02"
)

type Task struct {
	ID         string
	Title      string
	Deadline   string
	EnergyCost int
	Done       bool
	CreatedAt  time.Time
}

func (t Task) HasDeadline() bool {
	return t.Deadline != ""
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: task id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return ErrInvalidTitle
	}
	if t.EnergyCost < MinEnergy || t.EnergyCost > MaxEnergy {
		return fmt.Errorf("%w: %d", ErrInvalidEnergy, t.EnergyCost)
	}
	if t.Deadline != "" {
		if _, err := time.Parse(DateLayout, t.Deadline); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, t.Deadline)
		}
	}
	if t.CreatedAt.IsZero() {
		return errors.New("model: task created_at is required")
	}
	return nil
}

type DailyItem struct {
	ID    string
	Title string
	Done  bool
}

func (d DailyItem) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("model: daily id is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return ErrInvalidTitle
	}
	return nil
}

// ClampEnergy forces v into [MinEnergy, MaxEnergy].
func ClampEnergy(v int) int {
	return clamp(v, MinEnergy, MaxEnergy)
}

// NormalizeDate accepts an empty string (no deadline) or a YYYY-MM-DD date.
func NormalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d.Format(DateLayout), nil
}

// DayKey is the local calendar date of t.
func DayKey(t time.Time) string {
	return t.Local().Format(DateLayout)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

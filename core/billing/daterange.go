package billing

import (
	"fmt"
	"time"

	"github.com/trezcool/malipo/core"
)

// RangePreset names a date-range filter applied to projected payment dates.
type RangePreset string

const (
	RangeToday      RangePreset = "today"
	RangeNext7Days  RangePreset = "next7days"
	RangeNext30Days RangePreset = "next30days"
	RangeThisMonth  RangePreset = "thismonth"
	RangeNextMonth  RangePreset = "nextmonth"
	RangeCustom     RangePreset = "custom"
	RangeAll        RangePreset = "all"
)

var rangePresets = []RangePreset{
	RangeToday, RangeNext7Days, RangeNext30Days, RangeThisMonth, RangeNextMonth, RangeCustom, RangeAll,
}

func ParseRangePreset(s string) (RangePreset, error) {
	if s == "" {
		return RangeAll, nil
	}
	preset := RangePreset(core.CleanString(s, true /* lower */))
	for _, p := range rangePresets {
		if preset == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid range preset %q", s)
}

// DateRange filters payments by their next payment date. From/To are only
// honored by RangeCustom; a zero From or To leaves that side open.
type DateRange struct {
	Preset RangePreset
	From   time.Time
	To     time.Time
}

// Bounds resolves the range to inclusive calendar-date bounds relative to
// `today`. A zero bound leaves that side open; RangeAll is fully open.
func (r DateRange) Bounds(today time.Time) (from, to time.Time) {
	today = DateOf(today)
	switch r.Preset {
	case RangeToday:
		return today, today
	case RangeNext7Days:
		return today, today.AddDate(0, 0, 7)
	case RangeNext30Days:
		return today, today.AddDate(0, 0, 30)
	case RangeThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return first, first.AddDate(0, 1, -1)
	case RangeNextMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).AddDate(0, 1, 0)
		return first, first.AddDate(0, 1, -1)
	case RangeCustom:
		if !r.From.IsZero() {
			from = DateOf(r.From)
		}
		if !r.To.IsZero() {
			to = DateOf(r.To)
		}
		return from, to
	default: // RangeAll
		return time.Time{}, time.Time{}
	}
}

func (r DateRange) Contains(date, today time.Time) bool {
	from, to := r.Bounds(today)
	date = DateOf(date)
	if !from.IsZero() && date.Before(from) {
		return false
	}
	if !to.IsZero() && date.After(to) {
		return false
	}
	return true
}

func (r DateRange) key() string {
	return fmt.Sprintf("%s|%d|%d", r.Preset, r.From.Unix(), r.To.Unix())
}

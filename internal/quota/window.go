package quota

import (
	"errors"
	"time"
)

var ErrUnknownWindow = errors.New("quota: unknown window")

type Window string

const (
	WindowMinute       Window = "minute"        // trailing 60 seconds
	WindowDaily        Window = "daily"         // calendar day, UTC
	WindowMonthly      Window = "monthly"       // calendar month, UTC
	WindowTrailingWeek Window = "trailing_week" // 7 full days before today
)

// DayLayout 日期键格式
const DayLayout = "2006-01-02"

// Bounds 返回窗口的 [start, end)
func Bounds(w Window, now time.Time) (start, end time.Time, err error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch w {
	case WindowMinute:
		start = now.Add(-time.Minute)
		// usage rows carry microsecond timestamps; include the current instant
		end = now.Add(time.Microsecond)
	case WindowDaily:
		start = today
		end = today.Add(24 * time.Hour)
	case WindowMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	case WindowTrailingWeek:
		start = today.AddDate(0, 0, -7)
		end = today
	default:
		return time.Time{}, time.Time{}, ErrUnknownWindow
	}
	return start, end, nil
}

// DayKey returns the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

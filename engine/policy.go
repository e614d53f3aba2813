package engine

import (
	"time"
)

// dateLayout is the calendar-date format used by every TMDB date field.
const dateLayout = "2006-01-02"

// AlwaysDays, as a window value in a StatusWindows table, forces a
// refresh on every run regardless of date.
const AlwaysDays = -1

// RefreshPolicy decides, from a stored record, whether the record is
// due for a refetch this run.
type RefreshPolicy interface {
	Due(doc map[string]any, today time.Time) bool
}

// ParseDate parses a "YYYY-MM-DD" field value. ok is false for empty,
// non-string or unparseable values.
func ParseDate(v any) (time.Time, bool) {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// inWindow reports whether date falls inside [today-days, today],
// inclusive on both ends.
func inWindow(date, today time.Time, days int) bool {
	cutoff := today.AddDate(0, 0, -days)
	return !date.Before(cutoff) && !date.After(today)
}

// Window refreshes records whose date field falls within the last Days
// days. Records without a parseable date are never due.
type Window struct {
	Days      int
	DateField string
}

func (w Window) Due(doc map[string]any, today time.Time) bool {
	date, ok := ParseDate(doc[w.DateField])
	return ok && inWindow(date, today, w.Days)
}

// StatusWindows picks the refresh window from the record's status
// value. A window of AlwaysDays forces a refresh unconditionally;
// statuses missing from the table use Default. Records without a
// parseable date are only due when their status maps to AlwaysDays.
type StatusWindows struct {
	StatusField string
	DateField   string
	Windows     map[string]int
	Default     int
}

func (p StatusWindows) Due(doc map[string]any, today time.Time) bool {
	status, _ := doc[p.StatusField].(string)
	days, ok := p.Windows[status]
	if !ok {
		days = p.Default
	}
	if days == AlwaysDays {
		return true
	}
	date, ok := ParseDate(doc[p.DateField])
	return ok && inWindow(date, today, days)
}

// SeasonWindow widens the refresh window for old records: a date older
// than OldAfter days gets the Old window, anything newer the Recent
// one. Mirrors the season/episode refresh heuristic.
type SeasonWindow struct {
	DateField string
	Recent    int // days, for recent dates
	Old       int // days, once the date is older than OldAfter
	OldAfter  int
}

func (p SeasonWindow) Due(doc map[string]any, today time.Time) bool {
	date, ok := ParseDate(doc[p.DateField])
	if !ok {
		return false
	}
	return p.dueForDate(date, today)
}

func (p SeasonWindow) dueForDate(date, today time.Time) bool {
	days := p.Recent
	if date.Before(today.AddDate(0, 0, -p.OldAfter)) {
		days = p.Old
	}
	return inWindow(date, today, days)
}

// DueForDateString applies the same decision to a date carried on a
// candidate rather than a stored record. Episodes use this with their
// season's air date, since an episode's own freshness is unknown until
// fetched.
func (p SeasonWindow) DueForDateString(s string, today time.Time) bool {
	date, ok := ParseDate(s)
	return ok && p.dueForDate(date, today)
}

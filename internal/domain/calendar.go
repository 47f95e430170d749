package domain

import (
	"fmt"
	"time"
)

const dayKeyLayout = "2006-01-02"

// DayKey is the canonical calendar address: a civil date in the publishing timezone.
// Week-based and year/month/day addressing are both derived from it.
type DayKey struct {
	Year  int
	Month time.Month
	Day   int
}

// DayKeyOf converts an instant to the civil date observed in loc.
func DayKeyOf(t time.Time, loc *time.Location) DayKey {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return DayKey{Year: y, Month: m, Day: d}
}

// DayKeyFromYMD builds a key from year/month/day, normalizing overflow (Feb 30 -> Mar 1/2).
func DayKeyFromYMD(year int, month time.Month, day int) DayKey {
	return DayKeyOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC), time.UTC)
}

// DayKeyFromWeek builds a key from a week anchor and a weekday index (Monday=0).
// The anchor may be any day of the week; it is snapped to that week's Monday.
func DayKeyFromWeek(weekStart DayKey, weekday int) DayKey {
	return weekStart.WeekStart().AddDays(weekday)
}

// ParseDayKey parses the YYYY-MM-DD form.
func ParseDayKey(value string) (DayKey, error) {
	t, err := time.Parse(dayKeyLayout, value)
	if err != nil {
		return DayKey{}, fmt.Errorf("parse day %q: %w", value, err)
	}
	return DayKeyOf(t, time.UTC), nil
}

func (k DayKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

// IsZero reports whether the key was never set.
func (k DayKey) IsZero() bool {
	return k.Year == 0 && k.Month == 0 && k.Day == 0
}

// Time returns midnight UTC of the date, the representation stored in DATE columns.
func (k DayKey) Time() time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, time.UTC)
}

// In returns midnight of the date in loc.
func (k DayKey) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, loc)
}

// AddDays shifts the key by n calendar days.
func (k DayKey) AddDays(n int) DayKey {
	return DayKeyOf(k.Time().AddDate(0, 0, n), time.UTC)
}

// Weekday returns the weekday index with Monday=0 and Sunday=6.
func (k DayKey) Weekday() int {
	return (int(k.Time().Weekday()) + 6) % 7
}

// WeekStart returns the Monday of the key's week.
func (k DayKey) WeekStart() DayKey {
	return k.AddDays(-k.Weekday())
}

// Compare returns -1, 0 or 1.
func (k DayKey) Compare(other DayKey) int {
	return k.Time().Compare(other.Time())
}

func (k DayKey) Before(other DayKey) bool { return k.Compare(other) < 0 }
func (k DayKey) After(other DayKey) bool  { return k.Compare(other) > 0 }

// Period is an inclusive range of days.
type Period struct {
	Start DayKey
	End   DayKey
}

// WeekOf returns the Monday..Sunday period containing k.
func WeekOf(k DayKey) Period {
	start := k.WeekStart()
	return Period{Start: start, End: start.AddDays(6)}
}

// MonthOf returns the calendar month containing k.
func MonthOf(k DayKey) Period {
	start := DayKey{Year: k.Year, Month: k.Month, Day: 1}
	end := DayKeyOf(start.Time().AddDate(0, 1, -1), time.UTC)
	return Period{Start: start, End: end}
}

// Contains reports whether k lies inside the period.
func (p Period) Contains(k DayKey) bool {
	return !k.Before(p.Start) && !k.After(p.End)
}

// Days lists every day of the period in order.
func (p Period) Days() []DayKey {
	if p.End.Before(p.Start) {
		return nil
	}
	var days []DayKey
	for d := p.Start; !d.After(p.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return p.Start.String() + ".." + p.End.String()
}

// ScheduleStatus tracks the lifecycle of a calendar entry.
type ScheduleStatus string

const (
	SchedulePlanned   ScheduleStatus = "planned"
	ScheduleUsed      ScheduleStatus = "used"
	SchedulePublished ScheduleStatus = "published"
)

// EntryKey is the unique address of a calendar entry.
type EntryKey struct {
	Day      DayKey
	Site     string
	Category string
}

// ScheduleEntry is one planned (day, site, category) topic assignment.
type ScheduleEntry struct {
	Day                DayKey
	Site               string
	TopicCategory      string
	SpecificTopic      string
	Keywords           []string
	TargetLength       string
	Status             ScheduleStatus
	PublishedURL       string
	GeneratedContentID int64
}

// Key returns the entry's unique address.
func (e ScheduleEntry) Key() EntryKey {
	return EntryKey{Day: e.Day, Site: e.Site, Category: e.TopicCategory}
}

// WeekStart exposes the legacy week-start addressing as a derived view.
func (e ScheduleEntry) WeekStart() DayKey { return e.Day.WeekStart() }

// DayOfWeek exposes the legacy weekday addressing (Monday=0) as a derived view.
func (e ScheduleEntry) DayOfWeek() int { return e.Day.Weekday() }

// CheckWithin rejects entries that fall outside the period.
func (p Period) CheckWithin(entries []ScheduleEntry) error {
	for _, e := range entries {
		if !p.Contains(e.Day) {
			return fmt.Errorf("entry %s/%s/%s outside period %s", e.Day, e.Site, e.TopicCategory, p)
		}
	}
	return nil
}

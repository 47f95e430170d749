package domain

import "time"

// TopicPoolEntry is a fallback topic used when a day has no calendar entry.
type TopicPoolEntry struct {
	ID       int64
	Site     string
	Topic    string
	Category string
	Priority int
	Keywords []string
	Used     bool
	UsedDate *time.Time
}

// TopicCandidate is an unsaved pool topic produced by scanners or imports.
type TopicCandidate struct {
	Site     string   `yaml:"site"`
	Topic    string   `yaml:"topic"`
	Category string   `yaml:"category"`
	Priority int      `yaml:"priority"`
	Keywords []string `yaml:"keywords"`
}

// TopicSource tells where an assignment came from.
type TopicSource string

const (
	SourceCalendar TopicSource = "calendar"
	SourcePool     TopicSource = "pool"
)

// TopicAssignment is the resolver's answer for one (site, day) slot.
type TopicAssignment struct {
	Site         string
	Day          DayKey
	Category     string
	Topic        string
	Keywords     []string
	TargetLength string
	Source       TopicSource
	PoolEntryID  int64
}

// EntryKey returns the calendar address for calendar-sourced assignments.
func (a TopicAssignment) EntryKey() (EntryKey, bool) {
	if a.Source != SourceCalendar {
		return EntryKey{}, false
	}
	return EntryKey{Day: a.Day, Site: a.Site, Category: a.Category}, true
}

// AssignmentFromEntry copies a calendar entry into an assignment verbatim.
func AssignmentFromEntry(e ScheduleEntry) TopicAssignment {
	return TopicAssignment{
		Site:         e.Site,
		Day:          e.Day,
		Category:     e.TopicCategory,
		Topic:        e.SpecificTopic,
		Keywords:     append([]string(nil), e.Keywords...),
		TargetLength: e.TargetLength,
		Source:       SourceCalendar,
	}
}

// AssignmentFromPool converts a consumed pool entry.
func AssignmentFromPool(p TopicPoolEntry, day DayKey) TopicAssignment {
	return TopicAssignment{
		Site:        p.Site,
		Day:         day,
		Category:    p.Category,
		Topic:       p.Topic,
		Keywords:    append([]string(nil), p.Keywords...),
		Source:      SourcePool,
		PoolEntryID: p.ID,
	}
}

// Package memory keeps every store in process memory. It backs dry runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

// Store implements all persistence ports behind one mutex.
type Store struct {
	mu         sync.Mutex
	calendar   map[domain.EntryKey]domain.ScheduleEntry
	pool       []domain.TopicPoolEntry
	poolSeq    int64
	history    []domain.ContentRecord
	historySeq int64
	outcomes   []domain.RunOutcome
	watermarks map[string]time.Time
	now        func() time.Time
}

var (
	_ ports.CalendarStore  = (*Store)(nil)
	_ ports.TopicPool      = (*Store)(nil)
	_ ports.ContentHistory = (*Store)(nil)
	_ ports.OutcomeLedger  = (*Store)(nil)
	_ ports.WatermarkStore = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		calendar:   map[domain.EntryKey]domain.ScheduleEntry{},
		watermarks: map[string]time.Time{},
		now:        time.Now,
	}
}

// UpsertRange overwrites topics on conflict, keeps status, and drops planned orphans.
func (s *Store) UpsertRange(_ context.Context, period domain.Period, entries []domain.ScheduleEntry) error {
	if err := period.CheckWithin(entries); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[domain.EntryKey]struct{}, len(entries))
	for _, e := range entries {
		key := e.Key()
		keep[key] = struct{}{}
		if existing, ok := s.calendar[key]; ok {
			existing.SpecificTopic = e.SpecificTopic
			existing.Keywords = append([]string(nil), e.Keywords...)
			existing.TargetLength = e.TargetLength
			s.calendar[key] = existing
			continue
		}
		s.calendar[key] = newPlanned(e)
	}

	for key, e := range s.calendar {
		if _, ok := keep[key]; ok {
			continue
		}
		if period.Contains(key.Day) && e.Status == domain.SchedulePlanned {
			delete(s.calendar, key)
		}
	}
	return nil
}

// RegeneratePeriod replaces every planned entry in the period.
func (s *Store) RegeneratePeriod(_ context.Context, period domain.Period, entries []domain.ScheduleEntry) error {
	if err := period.CheckWithin(entries); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.calendar {
		if period.Contains(key.Day) && e.Status == domain.SchedulePlanned {
			delete(s.calendar, key)
		}
	}
	for _, e := range entries {
		if _, ok := s.calendar[e.Key()]; ok {
			continue
		}
		s.calendar[e.Key()] = newPlanned(e)
	}
	return nil
}

func newPlanned(e domain.ScheduleEntry) domain.ScheduleEntry {
	e.Keywords = append([]string(nil), e.Keywords...)
	e.Status = domain.SchedulePlanned
	e.PublishedURL = ""
	e.GeneratedContentID = 0
	return e
}

// Lookup returns the day's entries for a site ordered by category.
func (s *Store) Lookup(_ context.Context, day domain.DayKey, site string) ([]domain.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []domain.ScheduleEntry
	for key, e := range s.calendar {
		if key.Day == day && key.Site == site {
			e.Keywords = append([]string(nil), e.Keywords...)
			found = append(found, e)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].TopicCategory < found[j].TopicCategory })
	return found, nil
}

// CountInPeriod counts entries of any status inside the period.
func (s *Store) CountInPeriod(_ context.Context, period domain.Period) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key := range s.calendar {
		if period.Contains(key.Day) {
			count++
		}
	}
	return count, nil
}

// NextUnused peeks the highest-priority unused topic; ties go to the oldest entry.
func (s *Store) NextUnused(_ context.Context, site string) (*domain.TopicPoolEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *domain.TopicPoolEntry
	for i := range s.pool {
		p := &s.pool[i]
		if p.Site != site || p.Used {
			continue
		}
		if best == nil || p.Priority > best.Priority {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	out.Keywords = append([]string(nil), best.Keywords...)
	return &out, nil
}

// MarkUsed is the conditional update: it only succeeds while used is false.
func (s *Store) MarkUsed(_ context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.pool {
		if s.pool[i].ID != id {
			continue
		}
		if s.pool[i].Used {
			return false, nil
		}
		used := at
		s.pool[i].Used = true
		s.pool[i].UsedDate = &used
		return true, nil
	}
	return false, nil
}

// AddTopics inserts candidates, ignoring (site, topic) duplicates.
func (s *Store) AddTopics(_ context.Context, topics []domain.TopicCandidate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, c := range topics {
		if s.hasTopic(c.Site, c.Topic) {
			continue
		}
		s.poolSeq++
		s.pool = append(s.pool, domain.TopicPoolEntry{
			ID:       s.poolSeq,
			Site:     c.Site,
			Topic:    c.Topic,
			Category: c.Category,
			Priority: c.Priority,
			Keywords: append([]string(nil), c.Keywords...),
		})
		inserted++
	}
	return inserted, nil
}

func (s *Store) hasTopic(site, topic string) bool {
	for _, p := range s.pool {
		if p.Site == site && p.Topic == topic {
			return true
		}
	}
	return false
}

// PoolEntries returns a snapshot of the pool.
func (s *Store) PoolEntries() []domain.TopicPoolEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TopicPoolEntry(nil), s.pool...)
}

// ExistsTitleHash reports an exact title match within one site.
func (s *Store) ExistsTitleHash(_ context.Context, site, titleHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.history {
		if r.Site == site && r.TitleHash == titleHash {
			return true, nil
		}
	}
	return false, nil
}

// RecentTitles lists the newest titles of a site first.
func (s *Store) RecentTitles(_ context.Context, site string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var titles []string
	for i := len(s.history) - 1; i >= 0 && (limit <= 0 || len(titles) < limit); i-- {
		if s.history[i].Site == site {
			titles = append(titles, s.history[i].Title)
		}
	}
	return titles, nil
}

// RecordPublished appends history and marks the calendar entry in one critical section.
func (s *Store) RecordPublished(_ context.Context, record domain.ContentRecord, entry *domain.EntryKey) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.historySeq++
	record.ID = s.historySeq
	if record.PublishedDate.IsZero() {
		record.PublishedDate = s.now()
	}
	record.Keywords = append([]string(nil), record.Keywords...)
	s.history = append(s.history, record)

	marked := entry != nil && s.markPublished(*entry, record.URL, record.ID)
	return record.ID, marked, nil
}

// MarkPublished flips an entry to published unless it already is.
func (s *Store) MarkPublished(_ context.Context, key domain.EntryKey, url string, contentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markPublished(key, url, contentID), nil
}

func (s *Store) markPublished(key domain.EntryKey, url string, contentID int64) bool {
	e, ok := s.calendar[key]
	if !ok || e.Status == domain.SchedulePublished {
		return false
	}
	e.Status = domain.SchedulePublished
	e.PublishedURL = url
	e.GeneratedContentID = contentID
	s.calendar[key] = e
	return true
}

// History returns a snapshot of the content history.
func (s *Store) History() []domain.ContentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ContentRecord(nil), s.history...)
}

// SaveOutcome appends a terminal outcome.
func (s *Store) SaveOutcome(_ context.Context, outcome domain.RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

// OutcomesForDay lists outcomes for a calendar day in insertion order.
func (s *Store) OutcomesForDay(_ context.Context, day domain.DayKey) ([]domain.RunOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []domain.RunOutcome
	for _, o := range s.outcomes {
		if o.Day == day {
			found = append(found, o)
		}
	}
	return found, nil
}

// LoadWatermarks returns a copy of every slot watermark.
func (s *Store) LoadWatermarks(_ context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.watermarks))
	for k, v := range s.watermarks {
		out[k] = v
	}
	return out, nil
}

// SaveWatermark only moves a watermark forward.
func (s *Store) SaveWatermark(_ context.Context, slotID string, scheduledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.watermarks[slotID]; ok && !scheduledAt.After(current) {
		return nil
	}
	s.watermarks[slotID] = scheduledAt
	return nil
}

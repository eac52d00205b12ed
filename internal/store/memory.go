package store

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/sensor-aggregation/internal/sensor"
)

// readingHistory holds the readings of one sensor in insertion order.
type readingHistory struct {
	readings []sensor.Reading
}

// MemoryStore is a concurrency-safe in-memory implementation of the raw reading store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: sensor name, value: history
	data map[string]*readingHistory

	// retention configuration
	maxAge time.Duration // max age of readings (0 = unlimited)
	now    func() time.Time
}

// NewMemoryStore creates a new MemoryStore. If maxAge is <= 0 readings never expire.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]*readingHistory),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Insert appends a reading and enforces retention for its sensor.
func (s *MemoryStore) Insert(ctx context.Context, r sensor.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(r)
	s.expireLocked(r.SensorName, s.cutoff())
	return nil
}

// InsertAll appends every reading under a single lock, so readers observe
// either none or all of them.
func (s *MemoryStore) InsertAll(ctx context.Context, rs []sensor.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rs {
		s.appendLocked(r)
	}
	cutoff := s.cutoff()
	for _, r := range rs {
		s.expireLocked(r.SensorName, cutoff)
	}
	return nil
}

// Average returns the mean of values for name recorded in [from, to).
func (s *MemoryStore) Average(ctx context.Context, name string, from, to time.Time) (sensor.RangeAverage, error) {
	if err := ctx.Err(); err != nil {
		return sensor.RangeAverage{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[name]
	if !ok {
		return sensor.RangeAverage{}, nil
	}

	var (
		sum float64
		n   int64
	)
	for _, r := range history.readings {
		if !r.RecordedAt.Before(from) && r.RecordedAt.Before(to) {
			sum += r.Value
			n++
		}
	}
	if n == 0 {
		return sensor.RangeAverage{}, nil
	}
	return sensor.RangeAverage{Mean: sum / float64(n), Count: n}, nil
}

// Names lists every sensor with at least one stored reading.
func (s *MemoryStore) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for name, history := range s.data {
		if len(history.readings) > 0 {
			names = append(names, name)
		}
	}
	return names, nil
}

// Latest returns the reading with the greatest RecordedAt; ties go to the
// reading inserted last.
func (s *MemoryStore) Latest(ctx context.Context, name string) (sensor.Reading, bool, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Reading{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[name]
	if !ok || len(history.readings) == 0 {
		return sensor.Reading{}, false, nil
	}

	best := history.readings[0]
	for _, r := range history.readings[1:] {
		if !r.RecordedAt.Before(best.RecordedAt) {
			best = r
		}
	}
	return best, true, nil
}

// Sweep evicts every reading older than the retention horizon and returns
// how many were removed.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.maxAge <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.cutoff()
	removed := 0
	for name := range s.data {
		removed += s.expireLocked(name, cutoff)
	}
	return removed, nil
}

func (s *MemoryStore) appendLocked(r sensor.Reading) {
	history, ok := s.data[r.SensorName]
	if !ok {
		history = &readingHistory{}
		s.data[r.SensorName] = history
	}
	history.readings = append(history.readings, r)
}

func (s *MemoryStore) cutoff() time.Time {
	if s.maxAge <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.maxAge)
}

// expireLocked drops readings of name recorded before cutoff. Histories left
// empty are removed so the sensor disappears from Names.
func (s *MemoryStore) expireLocked(name string, cutoff time.Time) int {
	history, ok := s.data[name]
	if !ok || cutoff.IsZero() {
		return 0
	}

	kept := history.readings[:0]
	for _, r := range history.readings {
		if !r.RecordedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(history.readings) - len(kept)
	history.readings = kept

	if len(kept) == 0 {
		delete(s.data, name)
	}
	return removed
}

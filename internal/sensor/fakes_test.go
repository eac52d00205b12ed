package sensor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i474232898/sensor-aggregation/internal/sensor"
)

var errUnreachable = errors.New("store unreachable")

// failingStore fails every call.
type failingStore struct{}

func (failingStore) Insert(context.Context, sensor.Reading) error { return errUnreachable }
func (failingStore) Average(context.Context, string, time.Time, time.Time) (sensor.RangeAverage, error) {
	return sensor.RangeAverage{}, errUnreachable
}
func (failingStore) Names(context.Context) ([]string, error) { return nil, errUnreachable }
func (failingStore) Latest(context.Context, string) (sensor.Reading, bool, error) {
	return sensor.Reading{}, false, errUnreachable
}

// plainStore hides every optional capability of the wrapped store.
type plainStore struct {
	sensor.Store
}

// flakyStore fails Average for one sensor name only.
type flakyStore struct {
	sensor.Store
	failFor string
}

func (f flakyStore) Average(ctx context.Context, name string, from, to time.Time) (sensor.RangeAverage, error) {
	if name == f.failFor {
		return sensor.RangeAverage{}, errUnreachable
	}
	return f.Store.Average(ctx, name, from, to)
}

// insertCountingStore fails inserts after the first n succeed.
type insertCountingStore struct {
	sensor.Store
	allow int
	calls int
}

func (s *insertCountingStore) Insert(ctx context.Context, r sensor.Reading) error {
	s.calls++
	if s.calls > s.allow {
		return errUnreachable
	}
	return s.Store.Insert(ctx, r)
}

// gaugedStore tracks the peak number of concurrent Average calls.
type gaugedStore struct {
	sensor.Store
	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
}

func (g *gaugedStore) Average(ctx context.Context, name string, from, to time.Time) (sensor.RangeAverage, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	g.calls.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return g.Store.Average(ctx, name, from, to)
}

// blockingStore blocks Average until the context is done.
type blockingStore struct {
	sensor.Store
}

func (blockingStore) Average(ctx context.Context, _ string, _, _ time.Time) (sensor.RangeAverage, error) {
	<-ctx.Done()
	return sensor.RangeAverage{}, ctx.Err()
}

// groupedStore answers buckets from a list of readings in one call and
// refuses per-bucket queries, so tests can tell which path ran.
type groupedStore struct {
	sensor.Store
	mu       sync.Mutex
	readings []sensor.Reading
	grouped  int
}

func (g *groupedStore) Average(context.Context, string, time.Time, time.Time) (sensor.RangeAverage, error) {
	return sensor.RangeAverage{}, errors.New("per-bucket query on grouped store")
}

func (g *groupedStore) AverageBuckets(_ context.Context, names []string, unit sensor.Unit, from, to time.Time) (map[string]map[int64]sensor.RangeAverage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grouped++

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	sums := make(map[string]map[int64][2]float64)
	for _, r := range g.readings {
		if !want[r.SensorName] || r.RecordedAt.Before(from) || !r.RecordedAt.Before(to) {
			continue
		}
		key := unit.Truncate(r.RecordedAt).Unix()
		if sums[r.SensorName] == nil {
			sums[r.SensorName] = make(map[int64][2]float64)
		}
		acc := sums[r.SensorName][key]
		sums[r.SensorName][key] = [2]float64{acc[0] + r.Value, acc[1] + 1}
	}

	out := make(map[string]map[int64]sensor.RangeAverage)
	for name, byStart := range sums {
		out[name] = make(map[int64]sensor.RangeAverage)
		for k, acc := range byStart {
			out[name][k] = sensor.RangeAverage{Mean: acc[0] / acc[1], Count: int64(acc[1])}
		}
	}
	return out, nil
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func seed(store sensor.Store, name string, value float64, recordedAt string) {
	err := store.Insert(context.Background(), sensor.Reading{
		SensorName: name,
		Value:      value,
		RecordedAt: at(recordedAt),
	})
	if err != nil {
		panic(err)
	}
}

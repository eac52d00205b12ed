package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/sensor-aggregation/internal/sensor"
)

// ErrCircuitOpen is returned while the breaker rejects calls to the wrapped store.
var ErrCircuitOpen = errors.New("store circuit breaker open")

// BreakerConfig controls when the breaker opens and how long it stays open.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32        // failures in a row that open the breaker
	OpenTimeout         time.Duration // time spent open before a trial call
	Logger              *slog.Logger
}

// Breaker wraps a store with a circuit breaker. It never retries; while open
// every call fails fast with ErrCircuitOpen.
type Breaker struct {
	inner   sensor.Store
	circuit *gobreaker.CircuitBreaker
}

// The wrappers below forward the optional store capabilities.
type batchBreaker struct{ *Breaker }

type groupedBreaker struct{ *Breaker }

type fullBreaker struct {
	*Breaker
	batch   batchBreaker
	grouped groupedBreaker
}

// NewBreaker wraps inner. The returned store implements BatchInserter and
// BucketAverager exactly when inner does.
func NewBreaker(inner sensor.Store, cfg BreakerConfig) sensor.Store {
	if cfg.Name == "" {
		cfg.Name = "store"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	b := &Breaker{inner: inner, circuit: cb}
	_, batch := inner.(sensor.BatchInserter)
	_, grouped := inner.(sensor.BucketAverager)
	switch {
	case batch && grouped:
		return &fullBreaker{Breaker: b, batch: batchBreaker{b}, grouped: groupedBreaker{b}}
	case batch:
		return &batchBreaker{b}
	case grouped:
		return &groupedBreaker{b}
	default:
		return b
	}
}

// State reports the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.circuit.State()
}

func (b *Breaker) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.circuit.Execute(func() (interface{}, error) {
		res, err := fn()
		// A caller giving up is not a store failure.
		if err != nil && ctx.Err() != nil {
			return nil, nil
		}
		return res, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err == nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return result, err
}

// Insert forwards to the wrapped store through the breaker.
func (b *Breaker) Insert(ctx context.Context, r sensor.Reading) error {
	_, err := b.execute(ctx, func() (interface{}, error) {
		return nil, b.inner.Insert(ctx, r)
	})
	return err
}

// Average forwards to the wrapped store through the breaker.
func (b *Breaker) Average(ctx context.Context, name string, from, to time.Time) (sensor.RangeAverage, error) {
	res, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.Average(ctx, name, from, to)
	})
	if err != nil {
		return sensor.RangeAverage{}, err
	}
	return res.(sensor.RangeAverage), nil
}

// Names forwards to the wrapped store through the breaker.
func (b *Breaker) Names(ctx context.Context) ([]string, error) {
	res, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.Names(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

type latestResult struct {
	reading sensor.Reading
	found   bool
}

// Latest forwards to the wrapped store through the breaker.
func (b *Breaker) Latest(ctx context.Context, name string) (sensor.Reading, bool, error) {
	res, err := b.execute(ctx, func() (interface{}, error) {
		r, found, err := b.inner.Latest(ctx, name)
		return latestResult{reading: r, found: found}, err
	})
	if err != nil {
		return sensor.Reading{}, false, err
	}
	lr := res.(latestResult)
	return lr.reading, lr.found, nil
}

// InsertAll forwards a batch write through the breaker.
func (b batchBreaker) InsertAll(ctx context.Context, rs []sensor.Reading) error {
	_, err := b.execute(ctx, func() (interface{}, error) {
		return nil, b.inner.(sensor.BatchInserter).InsertAll(ctx, rs)
	})
	return err
}

// AverageBuckets forwards a grouped query through the breaker.
func (b groupedBreaker) AverageBuckets(ctx context.Context, names []string, unit sensor.Unit, from, to time.Time) (map[string]map[int64]sensor.RangeAverage, error) {
	res, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.(sensor.BucketAverager).AverageBuckets(ctx, names, unit, from, to)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]map[int64]sensor.RangeAverage), nil
}

// InsertAll forwards a batch write through the breaker.
func (b *fullBreaker) InsertAll(ctx context.Context, rs []sensor.Reading) error {
	return b.batch.InsertAll(ctx, rs)
}

// AverageBuckets forwards a grouped query through the breaker.
func (b *fullBreaker) AverageBuckets(ctx context.Context, names []string, unit sensor.Unit, from, to time.Time) (map[string]map[int64]sensor.RangeAverage, error) {
	return b.grouped.AverageBuckets(ctx, names, unit, from, to)
}

package sensor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// HourlyAverages returns 24 hourly buckets per sensor. A nil names slice
// aggregates every sensor currently in the store.
func (s *Service) HourlyAverages(ctx context.Context, names []string, now time.Time) (AggregationResult, error) {
	return s.Aggregate(ctx, names, Hour, HoursPerDayWindow, now)
}

// DailyAverages returns days daily buckets per sensor, with days clamped to [1, 30].
// A nil names slice aggregates every sensor currently in the store.
func (s *Service) DailyAverages(ctx context.Context, names []string, days int, now time.Time) (AggregationResult, error) {
	return s.Aggregate(ctx, names, Day, days, now)
}

// Aggregate computes count per-unit averages for each sensor, walking back
// from now truncated to the unit. The result is all-or-nothing: a store
// failure or cancelled context yields an error and no partial result.
func (s *Service) Aggregate(ctx context.Context, names []string, unit Unit, count int, now time.Time) (res AggregationResult, err error) {
	if !unit.valid() {
		return nil, fmt.Errorf("aggregate: unknown unit %v", unit)
	}
	start := time.Now()
	defer func() {
		s.observer.ObserveAggregate(unit, time.Since(start), err)
	}()

	if names == nil {
		names, err = s.Names(ctx)
		if err != nil {
			return nil, err
		}
	}
	count = unit.ClampCount(count)
	windows := Windows(unit, count, now)

	if len(names) == 0 {
		return AggregationResult{}, nil
	}

	if ba, ok := s.store.(BucketAverager); ok {
		res, err = s.aggregateGrouped(ctx, ba, names, unit, windows)
	} else {
		res, err = s.aggregateFanOut(ctx, names, windows)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("aggregate: %w", ctx.Err())
		}
		return nil, err
	}

	s.logger.Debug("aggregated sensors", "unit", unit, "sensors", len(names), "buckets", count)
	return res, nil
}

// aggregateFanOut issues one range query per (sensor, bucket) on a bounded group.
func (s *Service) aggregateFanOut(ctx context.Context, names []string, windows []Window) (AggregationResult, error) {
	// Every goroutine writes only its own slot, so no locking is needed.
	grid := make([][]Bucket, len(names))
	for i := range grid {
		grid[i] = make([]Bucket, len(windows))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, name := range names {
		for j, w := range windows {
			g.Go(func() error {
				avg, err := s.store.Average(gctx, name, w.Start, w.End)
				if err != nil {
					return err
				}
				grid[i][j] = newBucket(w.Distance, avg)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, storeErr("range average", err)
	}

	res := make(AggregationResult, len(names))
	for i, name := range names {
		res[name] = grid[i]
	}
	return res, nil
}

// aggregateGrouped answers every bucket with a single store call.
func (s *Service) aggregateGrouped(ctx context.Context, ba BucketAverager, names []string, unit Unit, windows []Window) (AggregationResult, error) {
	oldest := windows[len(windows)-1].Start
	newest := windows[0].End
	grouped, err := ba.AverageBuckets(ctx, names, unit, oldest, newest)
	if err != nil {
		return nil, storeErr("grouped range average", err)
	}

	res := make(AggregationResult, len(names))
	for _, name := range names {
		byStart := grouped[name]
		buckets := make([]Bucket, len(windows))
		for j, w := range windows {
			buckets[j] = newBucket(w.Distance, byStart[w.Start.Unix()])
		}
		res[name] = buckets
	}
	return res, nil
}

func newBucket(distance int, avg RangeAverage) Bucket {
	b := Bucket{Distance: distance}
	if avg.Count > 0 {
		v := avg.Mean
		b.Value = &v
	}
	return b
}

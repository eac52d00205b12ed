package sensor

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Latest returns the most recent reading for name, or ErrNotFound.
func (s *Service) Latest(ctx context.Context, name string) (LatestValue, error) {
	r, found, err := s.store.Latest(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return LatestValue{}, ctx.Err()
		}
		return LatestValue{}, storeErr("latest reading", err)
	}
	if !found {
		return LatestValue{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return toLatest(r), nil
}

// LatestAll returns the most recent reading of every sensor currently in the
// store. Callers must not rely on the order; it is sorted by name for stable output.
func (s *Service) LatestAll(ctx context.Context) ([]LatestValue, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*LatestValue, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, name := range names {
		g.Go(func() error {
			r, found, err := s.store.Latest(gctx, name)
			if err != nil {
				return err
			}
			// A sensor can vanish between Names and Latest when retention evicts it.
			if found {
				lv := toLatest(r)
				results[i] = &lv
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, storeErr("latest readings", err)
	}

	out := make([]LatestValue, 0, len(results))
	for _, lv := range results {
		if lv != nil {
			out = append(out, *lv)
		}
	}
	return out, nil
}

// Names returns the distinct sensor names currently stored, sorted.
func (s *Service) Names(ctx context.Context) ([]string, error) {
	names, err := s.store.Names(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, storeErr("list sensors", err)
	}
	sort.Strings(names)
	return names, nil
}

func toLatest(r Reading) LatestValue {
	return LatestValue{
		SensorName: r.SensorName,
		Value:      r.Value,
		RecordedAt: r.RecordedAt.UTC(),
	}
}

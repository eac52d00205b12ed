package sensor

import (
	"context"
	"time"
)

// Store is the contract the raw time-series stores must satisfy.
type Store interface {
	// Insert appends one reading.
	Insert(ctx context.Context, r Reading) error
	// Average reports the mean and count of values for name with RecordedAt in [from, to).
	Average(ctx context.Context, name string, from, to time.Time) (RangeAverage, error)
	// Names lists the distinct sensor names currently stored.
	Names(ctx context.Context) ([]string, error)
	// Latest returns the reading with the greatest RecordedAt for name. Ties go
	// to the most recently inserted reading. found is false when name has no readings.
	Latest(ctx context.Context, name string) (r Reading, found bool, err error)
}

// BatchInserter is implemented by stores that can write a batch all-or-nothing.
type BatchInserter interface {
	InsertAll(ctx context.Context, rs []Reading) error
}

// BucketAverager is implemented by stores that can answer every bucket of an
// aggregation in a single grouped query. The result is keyed by sensor name
// and then by bucket start in Unix seconds; buckets without readings may be omitted.
type BucketAverager interface {
	AverageBuckets(ctx context.Context, names []string, unit Unit, from, to time.Time) (map[string]map[int64]RangeAverage, error)
}

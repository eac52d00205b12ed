package sensor

import (
	"fmt"
	"time"
)

// MaxNameLength is the longest sensor name accepted on ingestion.
const MaxNameLength = 1000

// Reading is a single stored measurement. Readings are never mutated once written.
type Reading struct {
	SensorName string    `json:"sensorName" bson:"sensorName"`
	Value      float64   `json:"value" bson:"value"`
	RecordedAt time.Time `json:"recordedAt" bson:"recordedAt"` // always UTC
}

// Candidate is an incoming reading before validation and timestamping.
type Candidate struct {
	SensorName string  `json:"sensorName" validate:"required,max=1000"`
	Value      float64 `json:"value" validate:"finite"`
}

// LatestValue is the most recent reading for one sensor.
type LatestValue struct {
	SensorName string    `json:"sensorName"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Bucket is the averaged value of one whole time unit before the anchor.
// Value is nil when no readings fell into the bucket.
type Bucket struct {
	Distance int
	Value    *float64
}

// AggregationResult maps a sensor name to its buckets ordered by increasing distance.
type AggregationResult map[string][]Bucket

// RangeAverage is what a store reports for one half-open time range.
type RangeAverage struct {
	Mean  float64
	Count int64
}

// Unit is the width of a bucket.
type Unit int

const (
	Hour Unit = iota + 1
	Day
)

const (
	// HoursPerDayWindow is the fixed number of hourly buckets.
	HoursPerDayWindow = 24
	// MaxDays caps daily aggregation windows.
	MaxDays = 30
)

func (u Unit) String() string {
	switch u {
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// Truncate returns the start of the unit containing t, in UTC.
func (u Unit) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch u {
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(time.Hour)
	}
}

// Back steps t back by n units. Days use calendar arithmetic so bucket
// edges stay on UTC midnights.
func (u Unit) Back(t time.Time, n int) time.Time {
	switch u {
	case Day:
		return t.AddDate(0, 0, -n)
	default:
		return t.Add(-time.Duration(n) * time.Hour)
	}
}

// ClampCount bounds the number of buckets for the unit: [1, 24] hours, [1, 30] days.
func (u Unit) ClampCount(count int) int {
	max := MaxDays
	if u == Hour {
		max = HoursPerDayWindow
	}
	if count < 1 {
		return 1
	}
	if count > max {
		return max
	}
	return count
}

func (u Unit) valid() bool {
	return u == Hour || u == Day
}

// Window is the half-open interval [Start, End) of one bucket.
type Window struct {
	Distance int
	Start    time.Time
	End      time.Time
}

// Windows returns count bucket windows walking backward from the anchor of now,
// most recent first. The unit containing now is never included.
func Windows(unit Unit, count int, now time.Time) []Window {
	anchor := unit.Truncate(now)
	out := make([]Window, 0, count)
	for d := 1; d <= count; d++ {
		out = append(out, Window{
			Distance: d,
			Start:    unit.Back(anchor, d),
			End:      unit.Back(anchor, d-1),
		})
	}
	return out
}

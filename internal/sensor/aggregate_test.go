package sensor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/sensor-aggregation/internal/sensor"
	"github.com/i474232898/sensor-aggregation/internal/store"
)

func TestWindowsSkipInProgressHour(t *testing.T) {
	w := sensor.Windows(sensor.Hour, 24, at("2024-01-01T10:30:00Z"))

	require.Len(t, w, 24)
	assert.Equal(t, 1, w[0].Distance)
	assert.Equal(t, at("2024-01-01T09:00:00Z"), w[0].Start)
	assert.Equal(t, at("2024-01-01T10:00:00Z"), w[0].End)
	assert.Equal(t, at("2023-12-31T10:00:00Z"), w[23].Start)
	assert.Equal(t, at("2023-12-31T11:00:00Z"), w[23].End)
}

func TestWindowsDailyAlignToUTCMidnight(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.FixedZone("UTC+2", 2*3600))
	w := sensor.Windows(sensor.Day, 2, now)

	require.Len(t, w, 2)
	assert.Equal(t, at("2024-02-29T00:00:00Z"), w[0].Start)
	assert.Equal(t, at("2024-03-01T00:00:00Z"), w[0].End)
	assert.Equal(t, at("2024-02-28T00:00:00Z"), w[1].Start)
}

func TestWindowsAreContiguous(t *testing.T) {
	for _, unit := range []sensor.Unit{sensor.Hour, sensor.Day} {
		w := sensor.Windows(unit, 30, at("2024-05-17T13:45:12Z"))
		for i := 1; i < len(w); i++ {
			assert.Equal(t, w[i-1].Start, w[i].End, "%s bucket %d", unit, w[i].Distance)
			assert.Equal(t, w[i-1].Distance+1, w[i].Distance)
		}
	}
}

func TestClampCount(t *testing.T) {
	tests := []struct {
		unit sensor.Unit
		in   int
		want int
	}{
		{sensor.Day, 45, 30},
		{sensor.Day, 30, 30},
		{sensor.Day, 0, 1},
		{sensor.Day, -3, 1},
		{sensor.Day, 7, 7},
		{sensor.Hour, 48, 24},
		{sensor.Hour, 24, 24},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.unit.ClampCount(tt.in), "%s %d", tt.unit, tt.in)
	}
}

func TestAggregateShape(t *testing.T) {
	mem := store.NewMemoryStore(0)
	svc := sensor.NewService(mem)
	now := at("2024-01-10T12:00:00Z")

	res, err := svc.Aggregate(context.Background(), []string{"temp", "humidity", "co2"}, sensor.Day, 5, now)
	require.NoError(t, err)

	require.Len(t, res, 3)
	for name, buckets := range res {
		require.Len(t, buckets, 5, name)
		for i, b := range buckets {
			assert.Equal(t, i+1, b.Distance)
			assert.Nil(t, b.Value, "empty store must give null buckets")
		}
	}
}

func TestAggregateMeans(t *testing.T) {
	mem := store.NewMemoryStore(0)
	seed(mem, "temp", 20, "2024-01-01T09:15:00Z")
	seed(mem, "temp", 22, "2024-01-01T09:45:00Z")
	seed(mem, "temp", 7.5, "2024-01-01T07:59:59Z")
	seed(mem, "temp", 0, "2024-01-01T06:30:00Z")
	seed(mem, "temp", 99, "2024-01-01T10:00:00Z") // current hour, never reported
	seed(mem, "other", 1000, "2024-01-01T09:30:00Z")

	svc := sensor.NewService(mem)
	res, err := svc.HourlyAverages(context.Background(), []string{"temp"}, at("2024-01-01T10:30:00Z"))
	require.NoError(t, err)

	require.Len(t, res, 1)
	buckets := res["temp"]
	require.Len(t, buckets, 24)

	require.NotNil(t, buckets[0].Value)
	assert.InDelta(t, 21.0, *buckets[0].Value, 1e-9)
	assert.Nil(t, buckets[1].Value)
	require.NotNil(t, buckets[2].Value)
	assert.InDelta(t, 7.5, *buckets[2].Value, 1e-9)
	require.NotNil(t, buckets[3].Value, "a measured zero is not missing data")
	assert.Equal(t, 0.0, *buckets[3].Value)
	for _, b := range buckets[4:] {
		assert.Nil(t, b.Value)
	}
}

func TestAggregateHalfOpenBoundaries(t *testing.T) {
	mem := store.NewMemoryStore(0)
	seed(mem, "temp", 1, "2024-01-01T09:00:00Z") // start of bucket 1
	seed(mem, "temp", 2, "2024-01-01T08:59:59.999Z")

	svc := sensor.NewService(mem)
	res, err := svc.HourlyAverages(context.Background(), []string{"temp"}, at("2024-01-01T10:00:00Z"))
	require.NoError(t, err)

	require.NotNil(t, res["temp"][0].Value)
	assert.Equal(t, 1.0, *res["temp"][0].Value)
	require.NotNil(t, res["temp"][1].Value)
	assert.Equal(t, 2.0, *res["temp"][1].Value)
}

func TestDailyAveragesClampToThirtyDays(t *testing.T) {
	mem := store.NewMemoryStore(0)
	seed(mem, "temp", 4, "2023-12-20T12:00:00Z")
	seed(mem, "temp", 6, "2023-12-20T18:00:00Z")
	svc := sensor.NewService(mem)
	now := at("2024-01-10T08:00:00Z")

	over, err := svc.DailyAverages(context.Background(), nil, 45, now)
	require.NoError(t, err)
	capped, err := svc.DailyAverages(context.Background(), nil, 30, now)
	require.NoError(t, err)

	assert.Equal(t, capped, over)
	require.Len(t, over["temp"], 30)
	require.NotNil(t, over["temp"][20].Value)
	assert.Equal(t, 21, over["temp"][20].Distance)
	assert.InDelta(t, 5.0, *over["temp"][20].Value, 1e-9)
}

func TestAggregateDiscoversKnownSensors(t *testing.T) {
	mem := store.NewMemoryStore(0)
	seed(mem, "temp", 1, "2024-01-01T09:10:00Z")
	seed(mem, "light", 300, "2024-01-01T09:20:00Z")

	svc := sensor.NewService(mem)
	res, err := svc.HourlyAverages(context.Background(), nil, at("2024-01-01T10:05:00Z"))
	require.NoError(t, err)

	assert.Len(t, res, 2)
	assert.Contains(t, res, "temp")
	assert.Contains(t, res, "light")
}

func TestAggregateUnknownSensorIsAllNull(t *testing.T) {
	svc := sensor.NewService(store.NewMemoryStore(0))

	res, err := svc.DailyAverages(context.Background(), []string{"ghost"}, 3, at("2024-01-01T10:05:00Z"))
	require.NoError(t, err)

	require.Len(t, res["ghost"], 3)
	for _, b := range res["ghost"] {
		assert.Nil(t, b.Value)
	}
}

func TestAggregateStoreFailureIsAllOrNothing(t *testing.T) {
	mem := store.NewMemoryStore(0)
	seed(mem, "temp", 1, "2024-01-01T09:10:00Z")
	svc := sensor.NewService(flakyStore{Store: mem, failFor: "broken"})

	res, err := svc.HourlyAverages(context.Background(), []string{"temp", "broken"}, at("2024-01-01T10:05:00Z"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, sensor.ErrStore))
	assert.True(t, errors.Is(err, errUnreachable))
	assert.Nil(t, res)
}

func TestAggregateNamesFailure(t *testing.T) {
	svc := sensor.NewService(failingStore{})

	_, err := svc.HourlyAverages(context.Background(), nil, at("2024-01-01T10:05:00Z"))
	assert.ErrorIs(t, err, sensor.ErrStore)
}

func TestAggregateCancelled(t *testing.T) {
	svc := sensor.NewService(blockingStore{Store: store.NewMemoryStore(0)})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := svc.HourlyAverages(ctx, []string{"temp"}, at("2024-01-01T10:05:00Z"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, sensor.ErrStore))
	assert.Nil(t, res)
}

func TestAggregateBoundsConcurrency(t *testing.T) {
	gauged := &gaugedStore{Store: store.NewMemoryStore(0)}
	svc := sensor.NewService(gauged, sensor.WithConcurrency(3))

	res, err := svc.DailyAverages(context.Background(), []string{"a", "b", "c", "d"}, 10, at("2024-01-10T08:00:00Z"))
	require.NoError(t, err)

	assert.Len(t, res, 4)
	assert.Equal(t, int64(40), gauged.calls.Load())
	assert.LessOrEqual(t, gauged.peak.Load(), int64(3))
}

func TestAggregateUsesGroupedQuery(t *testing.T) {
	readings := []sensor.Reading{
		{SensorName: "temp", Value: 10, RecordedAt: at("2024-01-09T03:00:00Z")},
		{SensorName: "temp", Value: 20, RecordedAt: at("2024-01-09T21:00:00Z")},
		{SensorName: "temp", Value: 5, RecordedAt: at("2024-01-07T12:00:00Z")},
		{SensorName: "temp", Value: 50, RecordedAt: at("2024-01-10T01:00:00Z")}, // today
	}
	grouped := &groupedStore{Store: store.NewMemoryStore(0), readings: readings}
	mem := store.NewMemoryStore(0)
	for _, r := range readings {
		require.NoError(t, mem.Insert(context.Background(), r))
	}
	now := at("2024-01-10T08:00:00Z")

	got, err := sensor.NewService(grouped).DailyAverages(context.Background(), []string{"temp", "none"}, 4, now)
	require.NoError(t, err)
	want, err := sensor.NewService(mem).DailyAverages(context.Background(), []string{"temp", "none"}, 4, now)
	require.NoError(t, err)

	assert.Equal(t, 1, grouped.grouped)
	assert.Equal(t, want, got)
	require.NotNil(t, got["temp"][0].Value)
	assert.InDelta(t, 15.0, *got["temp"][0].Value, 1e-9)
	assert.Nil(t, got["temp"][1].Value)
	require.NotNil(t, got["temp"][2].Value)
	assert.InDelta(t, 5.0, *got["temp"][2].Value, 1e-9)
}

func TestAggregateRejectsUnknownUnit(t *testing.T) {
	svc := sensor.NewService(store.NewMemoryStore(0))

	_, err := svc.Aggregate(context.Background(), []string{"temp"}, sensor.Unit(9), 1, time.Now())
	assert.Error(t, err)
}

package sensor

import "fmt"

// Envelope is the external response shape: a message plus either a single
// sensor or a collection of sensors.
type Envelope struct {
	Msg     string `json:"msg"`
	Sensor  any    `json:"sensor,omitempty"`
	Sensors any    `json:"sensors,omitempty"`
}

// HourBucket is the external form of an hourly bucket.
type HourBucket struct {
	HoursAgo int      `json:"hoursAgo"`
	Value    *float64 `json:"value"`
}

// DayBucket is the external form of a daily bucket.
type DayBucket struct {
	DaysAgo int      `json:"daysAgo"`
	Value   *float64 `json:"value"`
}

// LatestPayload wraps the latest value of one sensor.
func LatestPayload(lv LatestValue) Envelope {
	return Envelope{
		Msg:    "Latest value from sensor: " + lv.SensorName,
		Sensor: lv,
	}
}

// LatestAllPayload wraps the latest values of all sensors.
func LatestAllPayload(lvs []LatestValue) Envelope {
	if lvs == nil {
		lvs = []LatestValue{}
	}
	return Envelope{
		Msg:     "Latest value of all sensors.",
		Sensors: lvs,
	}
}

// HourlyPayload wraps hourly buckets. An empty sensorName means the result
// covers every known sensor.
func HourlyPayload(sensorName string, res AggregationResult) Envelope {
	out := make(map[string][]HourBucket, len(res))
	for name, buckets := range res {
		hb := make([]HourBucket, len(buckets))
		for i, b := range buckets {
			hb[i] = HourBucket{HoursAgo: b.Distance, Value: b.Value}
		}
		out[name] = hb
	}

	from := "all sensors"
	if sensorName != "" {
		from = sensorName
	}
	return Envelope{
		Msg:     fmt.Sprintf("Average values per hour from %s over the last %d hours.", from, HoursPerDayWindow),
		Sensors: out,
	}
}

// DailyPayload wraps daily buckets. days is reported after clamping.
// An empty sensorName means the result covers every known sensor.
func DailyPayload(sensorName string, days int, res AggregationResult) Envelope {
	out := make(map[string][]DayBucket, len(res))
	for name, buckets := range res {
		db := make([]DayBucket, len(buckets))
		for i, b := range buckets {
			db[i] = DayBucket{DaysAgo: b.Distance, Value: b.Value}
		}
		out[name] = db
	}

	from := "all sensors"
	if sensorName != "" {
		from = sensorName
	}
	return Envelope{
		Msg:     fmt.Sprintf("Average values per day from %s over the last %d day(s).", from, Day.ClampCount(days)),
		Sensors: out,
	}
}

package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails on an empty tag or a nil func.
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.Float64 && f.Kind() != reflect.Float32 {
			return false
		}
		x := f.Float()
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	})
	return v
}

// ValidateCandidate checks one candidate reading. index is reported in the error.
func ValidateCandidate(index int, c Candidate) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Index: index, Field: "reading", Reason: err.Error()}
	}
	fe := verrs[0]
	ve := &ValidationError{Index: index}
	switch fe.StructField() {
	case "SensorName":
		ve.Field = "sensorName"
		if fe.Tag() == "required" {
			ve.Reason = "must not be empty"
		} else {
			ve.Reason = fmt.Sprintf("must be at most %d characters", MaxNameLength)
		}
	default:
		ve.Field = "value"
		ve.Reason = "must be a finite number"
	}
	return ve
}

// Ingest validates and stores each candidate in order. The first invalid
// candidate or failed insert stops the batch; readings already stored for
// earlier candidates are kept. It returns how many readings were stored.
func (s *Service) Ingest(ctx context.Context, batch []Candidate) (int, error) {
	stored := 0
	for i, c := range batch {
		if err := ValidateCandidate(i, c); err != nil {
			s.logger.Warn("rejected reading", "index", i, "error", err)
			s.observer.ObserveIngest(stored, err)
			return stored, err
		}
		r := Reading{SensorName: c.SensorName, Value: c.Value, RecordedAt: s.Now()}
		if err := s.store.Insert(ctx, r); err != nil {
			err = storeErr("insert reading", err)
			s.observer.ObserveIngest(stored, err)
			return stored, err
		}
		stored++
	}
	s.observer.ObserveIngest(stored, nil)
	return stored, nil
}

// IngestAtomic validates the whole batch before writing anything, then writes
// it in one all-or-nothing store call. The store must implement BatchInserter.
func (s *Service) IngestAtomic(ctx context.Context, batch []Candidate) (int, error) {
	bi, ok := s.store.(BatchInserter)
	if !ok {
		err := fmt.Errorf("atomic ingest: %w", ErrUnsupported)
		s.observer.ObserveIngest(0, err)
		return 0, err
	}
	rs := make([]Reading, 0, len(batch))
	now := s.Now()
	for i, c := range batch {
		if err := ValidateCandidate(i, c); err != nil {
			s.logger.Warn("rejected batch", "index", i, "error", err)
			s.observer.ObserveIngest(0, err)
			return 0, err
		}
		rs = append(rs, Reading{SensorName: c.SensorName, Value: c.Value, RecordedAt: now})
	}
	if len(rs) == 0 {
		return 0, nil
	}
	if err := bi.InsertAll(ctx, rs); err != nil {
		err = storeErr("insert batch", err)
		s.observer.ObserveIngest(0, err)
		return 0, err
	}
	s.observer.ObserveIngest(len(rs), nil)
	return len(rs), nil
}

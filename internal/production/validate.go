package production

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"prodtrack/internal/domain"
)

type RecordInput struct {
	LineID int64
	Date   time.Time
	Shift  domain.Shift
}

func validateRecordInput(in RecordInput, today time.Time) error {
	var errs []error
	if in.LineID <= 0 {
		errs = append(errs, domain.Invalid("line_id", "production line is required"))
	}
	if in.Date.IsZero() {
		errs = append(errs, domain.Invalid("date", "date is required"))
	} else if domain.DateOf(in.Date).After(today) {
		errs = append(errs, domain.Invalid("date", "date %s is in the future", in.Date.Format(domain.DateLayout)))
	}
	if !in.Shift.Valid() {
		errs = append(errs, domain.Invalid("shift", "unknown shift %q", in.Shift))
	}
	return errors.Join(errs...)
}

func validateLine(line domain.ProductionLine) error {
	var errs []error
	if strings.TrimSpace(line.Name) == "" {
		errs = append(errs, domain.Invalid("name", "name is required"))
	}
	if line.NominalCapacity <= 0 {
		errs = append(errs, domain.Invalid("nominal_capacity", "nominal capacity must be a positive number of units per hour"))
	}
	return errors.Join(errs...)
}

func validateHourly(date time.Time, e domain.HourlyEntry) error {
	var errs []error
	if e.Produced < 0 {
		errs = append(errs, domain.Invalid("produced", "must not be negative"))
	}
	if e.Defective < 0 {
		errs = append(errs, domain.Invalid("defective", "must not be negative"))
	}
	if e.Defective > e.Produced {
		errs = append(errs, domain.Invalid("defective", "defective quantity %d exceeds produced quantity %d", e.Defective, e.Produced))
	}
	if _, err := domain.SpanMinutes(date, e.Start, e.End); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// prepareStoppage validates the stoppage and derives its duration from the
// record date. Any duration supplied by the caller is overwritten.
func prepareStoppage(date time.Time, ev domain.StoppageEvent) (domain.StoppageEvent, error) {
	minutes, err := domain.SpanMinutes(date, ev.Start, ev.End)
	if err != nil {
		return ev, err
	}
	ev.DurationMinutes = minutes
	ev.Reason = strings.TrimSpace(ev.Reason)
	ev.Category = strings.TrimSpace(ev.Category)
	return ev, nil
}

// validateBatch checks every child in the batch and returns all failures
// joined, each prefixed with its position.
func validateBatch(date time.Time, batch *ChildBatch) error {
	var errs []error
	for i, e := range batch.Hourly {
		if err := validateHourly(date, e); err != nil {
			errs = append(errs, fmt.Errorf("hourly[%d]: %w", i, err))
		}
	}
	for i, ev := range batch.Stoppages {
		prepared, err := prepareStoppage(date, ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("stoppages[%d]: %w", i, err))
			continue
		}
		batch.Stoppages[i] = prepared
	}
	return errors.Join(errs...)
}

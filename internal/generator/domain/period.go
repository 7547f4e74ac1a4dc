package domain

import (
	"time"

	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
)

// Period is one billing month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// ExpandPeriod validates start and end and lists the months in [start, end).
// Both must fall on the first of a month at midnight in their own location.
// A nil end means one month after start.
func ExpandPeriod(start time.Time, end *time.Time) (time.Time, []Period, error) {
	if !isMonthStart(start) {
		return time.Time{}, nil, ierr.NewErrorf("start %s is not the first of a month at 00:00:00", start.Format(time.RFC3339Nano)).
			WithHint("use the first day of the billing month").
			Mark(ierr.ErrValidation)
	}

	stop := start.AddDate(0, 1, 0)
	if end != nil {
		if !end.After(start) {
			return time.Time{}, nil, ierr.NewErrorf("end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339)).
				Mark(ierr.ErrValidation)
		}
		if !isMonthStart(*end) {
			return time.Time{}, nil, ierr.NewErrorf("end %s is not the first of a month at 00:00:00", end.Format(time.RFC3339Nano)).
				Mark(ierr.ErrValidation)
		}
		stop = *end
	}

	var months []Period
	for cur := start; cur.Before(stop); cur = cur.AddDate(0, 1, 0) {
		months = append(months, Period{Year: cur.Year(), Month: int(cur.Month())})
	}
	return stop, months, nil
}

func isMonthStart(t time.Time) bool {
	return t.Day() == 1 &&
		t.Hour() == 0 &&
		t.Minute() == 0 &&
		t.Second() == 0 &&
		t.Nanosecond() == 0
}

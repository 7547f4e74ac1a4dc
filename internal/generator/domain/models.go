// Package domain describes billing batch runs for one facility.
package domain

import (
	"context"
	"time"

	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
)

// ErrBatchInProgress is returned when another run holds the facility's
// lock for the same start month.
var ErrBatchInProgress = ierr.NewError("a billing run for this facility and month is already in progress").
	Mark(ierr.ErrValidation)

type GenerateRequest struct {
	Facility string    `validate:"required"`
	Start    time.Time `validate:"required"`
	// End defaults to one month after Start.
	End           *time.Time
	Organizations []string `validate:"dive,required"`
	Products      []string `validate:"dive,required"`
	Recalculate   bool
	Verbose       bool
	Author        string
}

type OrganizationResult struct {
	Successes int      `json:"successes"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
	// Charged is the total charge of the records created.
	Charged int64 `json:"charged"`
}

type BatchResult struct {
	RunID              string                         `json:"run_id"`
	Facility           string                         `json:"facility"`
	Start              time.Time                      `json:"start"`
	End                time.Time                      `json:"end"`
	Months             []Period                       `json:"months"`
	Organizations      map[string]*OrganizationResult `json:"organizations"`
	FinalizationErrors []string                       `json:"finalization_errors"`
}

// Totals sums the per-organization counts.
func (r *BatchResult) Totals() (successes, skipped, errors int) {
	for _, org := range r.Organizations {
		successes += org.Successes
		skipped += org.Skipped
		errors += len(org.Errors)
	}
	return
}

type Generator interface {
	GenerateForPeriod(ctx context.Context, req GenerateRequest) (*BatchResult, error)
}

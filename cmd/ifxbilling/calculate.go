package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	generatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/generator/domain"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/observability/metrics"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/rating/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type calculateOptions struct {
	Year          int
	Month         int
	Facility      string
	Recalculate   bool
	Verbose       bool
	Organizations []string
	Products      []string
}

// parseCalculateFlags reads the command flags. A zero year or month means
// the current one in the billing time zone.
func parseCalculateFlags(args []string, stderr io.Writer) (calculateOptions, error) {
	var opts calculateOptions
	fs := pflag.NewFlagSet("calculate-billing-records", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.Year, "year", 0, "billing year (default current)")
	fs.IntVar(&opts.Month, "month", 0, "billing month 1-12 (default current)")
	fs.StringVar(&opts.Facility, "facility", "", "facility name; all facilities when empty")
	fs.BoolVar(&opts.Recalculate, "recalculate", false, "replace existing billing records")
	fs.BoolVar(&opts.Verbose, "verbose", false, "log per-usage errors with hints")
	fs.StringSliceVar(&opts.Organizations, "org", nil, "restrict to organization names")
	fs.StringSliceVar(&opts.Products, "product", nil, "restrict to product names")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Month < 0 || opts.Month > 12 {
		return opts, fmt.Errorf("month must be between 1 and 12, got %d", opts.Month)
	}
	if opts.Year != 0 && opts.Year < 1900 {
		return opts, fmt.Errorf("year %d is out of range", opts.Year)
	}
	return opts, nil
}

// periodStart is the first instant of the selected month in loc.
func (o calculateOptions) periodStart(now time.Time, loc *time.Location) time.Time {
	now = now.In(loc)
	year, month := o.Year, time.Month(o.Month)
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = now.Month()
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, loc)
}

func calculateBillingRecords(args []string, stdout, stderr io.Writer) int {
	opts, err := parseCalculateFlags(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	var (
		gen         generatordomain.Generator
		conn        *gorm.DB
		productRepo productdomain.Repository
		billing     *config.BillingConfigHolder
		clk         clock.Clock
		registry    *prometheus.Registry
		pusher      metrics.Pusher
	)

	return withApp(stderr, func(ctx context.Context) int {
		start := opts.periodStart(clk.Now(), billing.Get().Location())
		facilities, err := facilityNames(ctx, conn, productRepo, opts.Facility)
		if err != nil {
			fmt.Fprintf(stderr, "list facilities: %v\n", err)
			return 1
		}

		code := 0
		for _, facility := range facilities {
			res, err := gen.GenerateForPeriod(ctx, generatordomain.GenerateRequest{
				Facility:      facility,
				Start:         start,
				Organizations: opts.Organizations,
				Products:      opts.Products,
				Recalculate:   opts.Recalculate,
				Verbose:       opts.Verbose,
			})
			if err != nil {
				// Facilities without usage are expected when sweeping all of them.
				if opts.Facility == "" && ierr.IsNotFound(err) {
					fmt.Fprintf(stdout, "%s: %v\n", facility, err)
					continue
				}
				fmt.Fprintf(stderr, "%s: %v\n", facility, err)
				for _, hint := range ierr.Hints(err) {
					fmt.Fprintf(stderr, "  hint: %s\n", hint)
				}
				code = 1
				continue
			}
			printBatchResult(stdout, res)
		}
		pushBatchMetrics(ctx, stderr, pusher, registry)
		return code
	},
		coreModules(),
		billingModules(),
		fx.Populate(&gen, &conn, &productRepo, &billing, &clk, &registry, &pusher),
	)
}

func facilityNames(ctx context.Context, conn *gorm.DB, repo productdomain.Repository, only string) ([]string, error) {
	if only != "" {
		return []string{only}, nil
	}
	facilities, err := repo.ListFacilities(ctx, conn.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(facilities))
	for _, f := range facilities {
		names = append(names, f.Name)
	}
	return names, nil
}

// pushBatchMetrics sends the run's batch metrics when a push exporter is
// configured. A failed push does not change the exit code.
func pushBatchMetrics(ctx context.Context, stderr io.Writer, pusher metrics.Pusher, registry *prometheus.Registry) {
	if pusher == nil || registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pusher.Push(ctx, registry); err != nil {
		fmt.Fprintf(stderr, "push batch metrics: %v\n", err)
	}
}

func printBatchResult(w io.Writer, res *generatordomain.BatchResult) {
	successes, skipped, errs := res.Totals()
	fmt.Fprintf(w, "%s %s: %d billing records created, %d skipped, %d errors\n",
		res.Facility, res.Start.Format("2006-01"), successes, skipped, errs)

	orgs := lo.Keys(res.Organizations)
	sort.Strings(orgs)

	for _, name := range orgs {
		org := res.Organizations[name]
		fmt.Fprintf(w, "  %s: %d created (%s), %d skipped, %d errors\n",
			name, org.Successes, service.FormatDollars(org.Charged), org.Skipped, len(org.Errors))
		for _, msg := range org.Errors {
			fmt.Fprintf(w, "    %s\n", msg)
		}
	}
	for _, msg := range res.FinalizationErrors {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}

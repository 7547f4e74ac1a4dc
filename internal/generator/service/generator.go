package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/batchlock"
	billingrecorddomain "github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/domain"
	calculatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	calculatorservice "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/service"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/generator/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/observability/logger"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/observability/metrics"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/pkg/telemetry/correlation"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("ifxbilling/generator")

type GeneratorParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Billing      *config.BillingConfigHolder
	ProductRepo  productdomain.Repository
	AccountRepo  accountdomain.Repository
	UsageRepo    usagedomain.Repository
	Records      billingrecorddomain.Service
	Registry     *calculatorservice.Registry
	Locker       batchlock.Locker
	Metrics      *metrics.Metrics      `optional:"true"`
	BatchMetrics *metrics.BatchMetrics `optional:"true"`
}

type Generator struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	billing      *config.BillingConfigHolder
	productRepo  productdomain.Repository
	accountRepo  accountdomain.Repository
	usageRepo    usagedomain.Repository
	records      billingrecorddomain.Service
	registry     *calculatorservice.Registry
	locker       batchlock.Locker
	metrics      *metrics.Metrics
	batchMetrics *metrics.BatchMetrics
	validate     *validator.Validate
}

func NewGenerator(p GeneratorParam) domain.Generator {
	return &Generator{
		db:           p.DB,
		log:          p.Log.Named("generator"),
		clock:        p.Clock,
		billing:      p.Billing,
		productRepo:  p.ProductRepo,
		accountRepo:  p.AccountRepo,
		usageRepo:    p.UsageRepo,
		records:      p.Records,
		registry:     p.Registry,
		locker:       p.Locker,
		metrics:      p.Metrics,
		batchMetrics: p.BatchMetrics,
		validate:     validator.New(),
	}
}

// GenerateForPeriod bills a facility's usage for the months in [start, end).
// Validation and lookup failures abort the run; per-usage failures are
// reported in the result.
func (g *Generator) GenerateForPeriod(ctx context.Context, req domain.GenerateRequest) (*domain.BatchResult, error) {
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	ctx, span := tracer.Start(ctx, "generator.generate_for_period")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("facility", req.Facility),
		attribute.Bool("recalculate", req.Recalculate),
	)

	started := g.clock.Now()
	result, err := g.generate(ctx, runID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	g.batchMetrics.ObserveBatch(req.Facility, g.clock.Now().Sub(started), err, g.clock.Now())
	return result, err
}

func (g *Generator) generate(ctx context.Context, runID string, req domain.GenerateRequest) (*domain.BatchResult, error) {
	if err := g.validate.Struct(req); err != nil {
		return nil, ierr.WithError(err).
			WithHint("a facility name and start month are required").
			Mark(ierr.ErrValidation)
	}
	end, months, err := domain.ExpandPeriod(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	db := g.db.WithContext(ctx)
	facility, err := g.productRepo.FindFacilityByName(ctx, db, req.Facility)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if facility == nil {
		return nil, ierr.NewErrorf("facility %s cannot be found", req.Facility).Mark(ierr.ErrNotFound)
	}

	filter := usagedomain.ListFilter{
		FacilityID: facility.ID,
		Start:      req.Start.UTC(),
		End:        end.UTC(),
	}
	if filter.ProductIDs, err = g.resolveProducts(ctx, db, facility.ID, req.Products); err != nil {
		return nil, err
	}
	if filter.OrganizationIDs, err = g.resolveOrganizations(ctx, db, req.Organizations); err != nil {
		return nil, err
	}

	cfg := g.billing.Get()
	lockKey := batchlock.GenerateKey(facility.ID, req.Start)
	token, ok, err := g.locker.TryLock(ctx, lockKey, cfg.BatchLockTTL)
	if err != nil {
		return nil, ierr.WithError(err).WithHint("batch lock unavailable").Mark(ierr.ErrExternal)
	}
	if !ok {
		return nil, domain.ErrBatchInProgress
	}
	defer func() {
		if err := g.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			g.log.Warn("failed to release batch lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	log := logger.WithFacility(logger.WithContext(ctx, g.log), facility.Name)
	log.Info("generating billing records",
		zap.Time("start", req.Start),
		zap.Time("end", end),
		zap.Bool("recalculate", req.Recalculate),
		zap.Strings("products", req.Products),
		zap.Strings("organizations", req.Organizations),
	)

	usages, err := g.usageRepo.List(ctx, db, filter)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if len(usages) == 0 {
		return nil, ierr.NewErrorf("no usage found for %s between %s and %s",
			facility.Name, req.Start.Format("2006-01-02"), end.Format("2006-01-02")).
			Mark(ierr.ErrNotFound)
	}

	orgNames, err := g.organizationNames(ctx, db, usages)
	if err != nil {
		return nil, err
	}

	result := &domain.BatchResult{
		RunID:         runID,
		Facility:      facility.Name,
		Start:         req.Start,
		End:           end,
		Months:        months,
		Organizations: make(map[string]*domain.OrganizationResult),
	}

	author := req.Author
	if author == "" {
		author = cfg.Author
	}
	cache := calculatorservice.NewCache(g.registry)

	grouped := lo.GroupBy(usages, func(u usagedomain.ProductUsage) snowflake.ID { return u.OrganizationID })
	for _, orgID := range lo.Uniq(lo.Map(usages, func(u usagedomain.ProductUsage, _ int) snowflake.ID { return u.OrganizationID })) {
		name := orgNames[orgID]
		orgResult := &domain.OrganizationResult{Errors: []string{}}
		result.Organizations[name] = orgResult

		orgUsages := grouped[orgID]
		log.Info("generating organization billing records",
			zap.String("organization", name),
			zap.Int("usages", len(orgUsages)),
		)
		for _, usage := range orgUsages {
			g.processUsage(ctx, log, facility.Name, name, usage, req, author, cache, orgResult)
		}
		if orgResult.Successes < len(orgUsages) {
			log.Info("organization had usage without new billing records",
				zap.String("organization", name),
				zap.Int("usages", len(orgUsages)),
				zap.Int("successes", orgResult.Successes),
				zap.Int("skipped", orgResult.Skipped),
				zap.Int("errors", len(orgResult.Errors)),
			)
		}
	}

	result.FinalizationErrors = g.finalize(ctx, log, *facility, months, author, cache, req.Verbose)

	successes, skipped, failures := result.Totals()
	log.Info("billing run finished",
		zap.String("run_id", runID),
		zap.Int("successes", successes),
		zap.Int("skipped", skipped),
		zap.Int("errors", failures),
		zap.Int("finalization_errors", len(result.FinalizationErrors)),
	)
	return result, nil
}

func (g *Generator) processUsage(
	ctx context.Context,
	log *zap.Logger,
	facility, organization string,
	usage usagedomain.ProductUsage,
	req domain.GenerateRequest,
	author string,
	cache *calculatorservice.Cache,
	out *domain.OrganizationResult,
) {
	ulog := logger.WithUsage(log, usage.ID.Int64(), organization)

	records, err := g.records.CreateForUsage(ctx, billingrecorddomain.CreateRequest{
		Usage:       usage,
		Recalculate: req.Recalculate,
		Author:      author,
		Strategies:  cache,
	})
	switch {
	case err == nil:
		out.Successes++
		for _, r := range records {
			out.Charged += r.Charge
		}
		g.recordOutcome(ctx, facility, metrics.OutcomeSuccess, nil)
	case ierr.IsDuplicate(err):
		out.Skipped++
		ulog.Info("skipping usage with existing billing record")
		g.recordOutcome(ctx, facility, metrics.OutcomeSkipped, nil)
	default:
		out.Errors = append(out.Errors, fmt.Sprintf("Unable to create billing record for usage %s: %s", usage.ID, err))
		if req.Verbose {
			ulog.Warn("unable to create billing record", zap.Error(err), zap.Strings("hints", ierr.Hints(err)))
		} else {
			ulog.Debug("unable to create billing record", zap.Error(err))
		}
		g.recordOutcome(ctx, facility, metrics.OutcomeError, err)
	}
}

func (g *Generator) recordOutcome(ctx context.Context, facility, outcome string, err error) {
	g.batchMetrics.IncUsage(facility, outcome, err)
	code := ""
	if err != nil {
		code = metrics.ClassifyUsageError(err)
	}
	g.metrics.RecordUsageOutcome(ctx, facility, outcome, code)
}

// finalize runs each strategy used in the batch once per product and month,
// each in its own transaction.
func (g *Generator) finalize(
	ctx context.Context,
	log *zap.Logger,
	facility productdomain.Facility,
	months []domain.Period,
	author string,
	cache *calculatorservice.Cache,
	verbose bool,
) []string {
	errs := []string{}
	for _, entry := range cache.Entries() {
		for _, period := range months {
			req := calculatordomain.FinalizeRequest{
				Product:  entry.Product,
				Facility: facility,
				Month:    period.Month,
				Year:     period.Year,
				Author:   author,
			}
			err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return entry.Strategy.Finalize(ctx, tx, req)
			})
			if err == nil {
				continue
			}
			if verbose {
				log.Error("finalization failed", zap.String("product", entry.Product.Name), zap.Error(err))
			}
			errs = append(errs, fmt.Sprintf("Finalization failed for calculator for %s %s month %d year %d: %s",
				entry.Product.Name, facility.Name, period.Month, period.Year, err))
			g.batchMetrics.IncFinalizationError(facility.Name)
			g.metrics.RecordFinalizationError(ctx, facility.Name, entry.Strategy.Name())
		}
	}
	return errs
}

func (g *Generator) resolveProducts(ctx context.Context, db *gorm.DB, facilityID snowflake.ID, names []string) ([]snowflake.ID, error) {
	names = cleanNames(names)
	if len(names) == 0 {
		return nil, nil
	}
	products, err := g.productRepo.FindProductsByName(ctx, db, facilityID, names)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	found := lo.SliceToMap(products, func(p productdomain.Product) (string, snowflake.ID) { return p.Name, p.ID })
	for _, name := range names {
		if _, ok := found[name]; !ok {
			return nil, ierr.NewErrorf("cannot filter by %s: product does not exist", name).Mark(ierr.ErrNotFound)
		}
	}
	return lo.Values(found), nil
}

func (g *Generator) resolveOrganizations(ctx context.Context, db *gorm.DB, names []string) ([]snowflake.ID, error) {
	names = cleanNames(names)
	if len(names) == 0 {
		return nil, nil
	}
	orgs, err := g.accountRepo.FindOrganizationsByName(ctx, db, names)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	found := lo.SliceToMap(orgs, func(o accountdomain.Organization) (string, snowflake.ID) { return o.Name, o.ID })
	for _, name := range names {
		if _, ok := found[name]; !ok {
			return nil, ierr.NewErrorf("cannot filter by %s: organization does not exist", name).Mark(ierr.ErrNotFound)
		}
	}
	return lo.Values(found), nil
}

func (g *Generator) organizationNames(ctx context.Context, db *gorm.DB, usages []usagedomain.ProductUsage) (map[snowflake.ID]string, error) {
	ids := lo.Uniq(lo.Map(usages, func(u usagedomain.ProductUsage, _ int) snowflake.ID { return u.OrganizationID }))
	orgs, err := g.accountRepo.FindOrganizationsByID(ctx, db, ids)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	names := lo.SliceToMap(orgs, func(o accountdomain.Organization) (snowflake.ID, string) { return o.ID, o.Name })
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			names[id] = id.String()
		}
	}
	return names, nil
}

func cleanNames(names []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(names, func(n string, _ int) string { return strings.TrimSpace(n) })))
}


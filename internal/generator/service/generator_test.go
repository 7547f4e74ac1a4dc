package service

import (
	"context"
	"errors"
	"testing"
	"time"

	accountrepository "github.com/harvardinformatics/ifxbilling-sub000/internal/account/repository"
	accountservice "github.com/harvardinformatics/ifxbilling-sub000/internal/account/service"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/batchlock"
	billingrecorddomain "github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/domain"
	billingrecordrepository "github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/repository"
	billingrecordservice "github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/service"
	calculatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	calculatorservice "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/service"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/generator/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/observability/metrics"
	productrepository "github.com/harvardinformatics/ifxbilling-sub000/internal/product/repository"
	ratingservice "github.com/harvardinformatics/ifxbilling-sub000/internal/rating/service"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/testutil"
	usagerepository "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/repository"
	usageservice "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var march = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// auditStrategy charges like basic and always fails finalization.
type auditStrategy struct {
	*calculatorservice.Basic
}

func (auditStrategy) Name() string { return "audit" }

func (auditStrategy) Finalize(context.Context, *gorm.DB, calculatordomain.FinalizeRequest) error {
	return errors.New("boom")
}

type harness struct {
	db      *gorm.DB
	f       *testutil.Fixture
	gen     *Generator
	records billingrecorddomain.Service
	locker  batchlock.Locker
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	f := testutil.Seed(t, db, node)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, time.April, 2, 9, 0, 0, 0, time.UTC))

	cfg := config.DefaultBillingConfig()
	cfg.TimeZone = "UTC"
	billing := config.NewStaticBillingConfigHolder(cfg)

	productRepo := productrepository.Provide()
	accountRepo := accountrepository.Provide()
	usageRepo := usagerepository.Provide()

	basic := calculatorservice.NewBasic(calculatorservice.BasicParam{
		Resolver:   ratingservice.NewResolver(ratingservice.ResolverParam{Repo: productRepo}),
		Calculator: ratingservice.NewCalculator(),
	})
	registry, err := calculatorservice.NewRegistry(calculatorservice.RegistryParam{
		Log:         log,
		ProductRepo: productRepo,
		Strategies:  []calculatordomain.Strategy{basic, auditStrategy{Basic: basic}},
	})
	require.NoError(t, err)

	records := billingrecordservice.NewService(billingrecordservice.ServiceParam{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Billing:     billing,
		Repo:        billingrecordrepository.Provide(),
		UsageRepo:   usageRepo,
		ProductRepo: productRepo,
		Allocator:   accountservice.NewAllocator(accountservice.AllocatorParam{Log: log, Repo: accountRepo}),
		Tracker: usageservice.NewTracker(usageservice.TrackerParam{
			DB: db, Log: log, GenID: node, Repo: usageRepo, Billing: billing, Clock: clk,
		}),
		Registry: registry,
	})

	locker := batchlock.NewLocalLocker(clk)
	gen := NewGenerator(GeneratorParam{
		DB:           db,
		Log:          log,
		Clock:        clk,
		Billing:      billing,
		ProductRepo:  productRepo,
		AccountRepo:  accountRepo,
		UsageRepo:    usageRepo,
		Records:      records,
		Registry:     registry,
		Locker:       locker,
		BatchMetrics: metrics.NewBatchMetrics(prometheus.NewRegistry(), metrics.Config{ServiceName: "ifxbilling-test"}),
	}).(*Generator)

	return &harness{db: db, f: f, gen: gen, records: records, locker: locker}
}

func (h *harness) request() domain.GenerateRequest {
	return domain.GenerateRequest{Facility: h.f.Facility.Name, Start: march}
}

func TestGenerateForPeriod_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := h.request()
	req.Start = time.Date(2022, time.July, 15, 0, 0, 0, 0, time.UTC)
	_, err := h.gen.GenerateForPeriod(ctx, req)
	assert.True(t, ierr.IsValidation(err))

	req = h.request()
	req.Start = time.Date(2022, time.July, 1, 0, 0, 0, 0, time.UTC)
	end := req.Start
	req.End = &end
	_, err = h.gen.GenerateForPeriod(ctx, req)
	assert.True(t, ierr.IsValidation(err))

	req = h.request()
	req.Facility = ""
	_, err = h.gen.GenerateForPeriod(ctx, req)
	assert.True(t, ierr.IsValidation(err))
}

func TestGenerateForPeriod_NotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := h.request()
	req.Facility = "Nanoscale Foundry"
	_, err := h.gen.GenerateForPeriod(ctx, req)
	assert.True(t, ierr.IsNotFound(err))

	req = h.request()
	req.Products = []string{"Unobtainium"}
	_, err = h.gen.GenerateForPeriod(ctx, req)
	assert.True(t, ierr.IsNotFound(err))
	assert.Contains(t, err.Error(), "Unobtainium")

	req = h.request()
	req.Organizations = []string{"Nobody Lab"}
	_, err = h.gen.GenerateForPeriod(ctx, req)
	assert.True(t, ierr.IsNotFound(err))

	// No usage in the period.
	_, err = h.gen.GenerateForPeriod(ctx, h.request())
	assert.True(t, ierr.IsNotFound(err))
	assert.True(t, ierr.IsFatal(err))
}

func TestGenerateForPeriod_Aggregation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.f.AuthorizeAccount(t, h.f.Account.ID)

	billed := h.f.AddUsage(t, h.f.Product, "1", "ea", march)
	h.f.AddUsage(t, h.f.Product, "2", "ea", march.AddDate(0, 0, 5))
	liquid, _ := h.f.AddProduct(t, "Liquid Helium", "basic", 40, "liters")
	h.f.AuthorizeProductAccount(t, liquid.ID, h.f.Account.ID, 60)
	h.f.AddUsage(t, liquid, "1", "liters", march.AddDate(0, 0, 9))
	// Outside [start, end).
	h.f.AddUsage(t, h.f.Product, "9", "ea", march.AddDate(0, 1, 0))

	_, err := h.records.CreateForUsage(ctx, billingrecorddomain.CreateRequest{Usage: billed})
	require.NoError(t, err)

	result, err := h.gen.GenerateForPeriod(ctx, h.request())
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)
	assert.Equal(t, []domain.Period{{Year: 2024, Month: 3}}, result.Months)
	assert.Equal(t, march.AddDate(0, 1, 0), result.End)

	org := result.Organizations["Kitchen Lab"]
	require.NotNil(t, org)
	assert.Equal(t, 1, org.Successes)
	assert.Equal(t, 1, org.Skipped)
	require.Len(t, org.Errors, 1)
	assert.Contains(t, org.Errors[0], "Unable to create billing record for usage")
	assert.Contains(t, org.Errors[0], "add up to 60")
	assert.Equal(t, int64(200), org.Charged)
	assert.Empty(t, result.FinalizationErrors)

	successes, skipped, failures := result.Totals()
	assert.Equal(t, []int{1, 1, 1}, []int{successes, skipped, failures})

	// A rerun only skips.
	again, err := h.gen.GenerateForPeriod(ctx, h.request())
	require.NoError(t, err)
	org = again.Organizations["Kitchen Lab"]
	assert.Equal(t, 0, org.Successes)
	assert.Equal(t, 2, org.Skipped)
	assert.Len(t, org.Errors, 1)

	// Recalculating recreates instead of skipping.
	req := h.request()
	req.Recalculate = true
	req.Products = []string{h.f.Product.Name}
	recalc, err := h.gen.GenerateForPeriod(ctx, req)
	require.NoError(t, err)
	org = recalc.Organizations["Kitchen Lab"]
	assert.Equal(t, 2, org.Successes)
	assert.Equal(t, 0, org.Skipped)
	assert.Empty(t, org.Errors)

	var count int64
	require.NoError(t, h.db.Model(&billingrecorddomain.BillingRecord{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestGenerateForPeriod_FinalizationErrorsAreReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.f.AuthorizeAccount(t, h.f.Account.ID)

	audited, _ := h.f.AddProduct(t, "Audit Gas", "audit", 10, "ea")
	h.f.AddUsage(t, audited, "1", "ea", march)
	h.f.AddUsage(t, audited, "1", "ea", march.AddDate(0, 1, 2))

	req := h.request()
	end := march.AddDate(0, 2, 0)
	req.End = &end
	result, err := h.gen.GenerateForPeriod(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Organizations["Kitchen Lab"].Successes)
	require.Len(t, result.FinalizationErrors, 2)
	assert.Equal(t, "Finalization failed for calculator for Audit Gas Helium Recovery Service month 3 year 2024: boom", result.FinalizationErrors[0])
	assert.Contains(t, result.FinalizationErrors[1], "month 4 year 2024")
}

func TestGenerateForPeriod_HeldLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.f.AuthorizeAccount(t, h.f.Account.ID)
	h.f.AddUsage(t, h.f.Product, "1", "ea", march)

	key := batchlock.GenerateKey(h.f.Facility.ID, march)
	token, ok, err := h.locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.gen.GenerateForPeriod(ctx, h.request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBatchInProgress))
	assert.True(t, ierr.IsValidation(err))

	require.NoError(t, h.locker.Release(ctx, key, token))
	result, err := h.gen.GenerateForPeriod(ctx, h.request())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Organizations["Kitchen Lab"].Successes)

	// The run released its own lock.
	_, ok, err = h.locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

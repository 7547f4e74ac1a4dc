package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	accountservice "github.com/harvardinformatics/ifxbilling-sub000/internal/account/service"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/domain"
	calculatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	calculatorservice "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/service"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/observability/logger"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/observability/metrics"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	ratingdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/rating/domain"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/pkg/db"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("ifxbilling/billingrecord")

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Billing     *config.BillingConfigHolder
	Repo        domain.Repository
	UsageRepo   usagedomain.Repository
	ProductRepo productdomain.Repository
	Allocator   accountdomain.Allocator
	Tracker     usagedomain.Tracker
	Registry    *calculatorservice.Registry
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	billing     *config.BillingConfigHolder
	repo        domain.Repository
	usageRepo   usagedomain.Repository
	productRepo productdomain.Repository
	allocator   accountdomain.Allocator
	tracker     usagedomain.Tracker
	registry    *calculatorservice.Registry
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billingrecord.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		billing:     p.Billing,
		repo:        p.Repo,
		usageRepo:   p.UsageRepo,
		productRepo: p.ProductRepo,
		allocator:   p.Allocator,
		tracker:     p.Tracker,
		registry:    p.Registry,
		metrics:     p.Metrics,
		validate:    validator.New(),
	}
}

// CreateForUsage creates every billing record of one usage record in a
// single transaction. Failures other than duplicates are written to the
// usage's processing row after the rollback.
func (s *Service) CreateForUsage(ctx context.Context, req domain.CreateRequest) ([]domain.BillingRecord, error) {
	ctx, span := tracer.Start(ctx, "billingrecord.create_for_usage")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product_usage_id", req.Usage.ID.Int64()),
		attribute.Bool("recalculate", req.Recalculate),
	)

	log := logger.WithContext(ctx, s.log).With(zap.String("product_usage_id", req.Usage.ID.String()))

	var (
		records  []domain.BillingRecord
		facility string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, name, err := s.create(ctx, tx, req)
		if err != nil {
			return err
		}
		records, facility = created, name
		return s.tracker.RecordSuccess(ctx, tx, req.Usage.ID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ierr.IsDuplicate(err) {
			return nil, err
		}
		if trackErr := s.tracker.RecordFailure(ctx, req.Usage.ID, err.Error()); trackErr != nil {
			log.Error("failed to record processing failure", zap.Error(trackErr))
		}
		return nil, err
	}

	for _, record := range records {
		s.metrics.RecordBillingRecordCreated(ctx, facility, record.Charge)
	}
	log.Debug("billing records created", zap.Int("count", len(records)))
	return records, nil
}

// create does the work of CreateForUsage inside tx and returns the records
// with the product's facility name.
func (s *Service) create(ctx context.Context, tx *gorm.DB, req domain.CreateRequest) ([]domain.BillingRecord, string, error) {
	usage := req.Usage

	existing, err := s.repo.ListByUsage(ctx, tx, usage.ID)
	if err != nil {
		return nil, "", ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if len(existing) > 0 {
		if !req.Recalculate {
			return nil, "", ierr.NewErrorf("billing record already exists for usage %s", usage.ID).
				Mark(ierr.ErrDuplicate)
		}
		locked := lo.Filter(existing, func(r domain.BillingRecord, _ int) bool {
			return r.CurrentState != domain.InitialState
		})
		if len(locked) > 0 {
			return nil, "", ierr.NewErrorf("billing record %s for usage %s is %s and cannot be recalculated", locked[0].ID, usage.ID, locked[0].CurrentState).
				WithHint("only records still pending lab approval can be replaced").
				Mark(ierr.ErrInvalidOperation)
		}
		if _, err := s.repo.DeleteByUsage(ctx, tx, usage.ID); err != nil {
			return nil, "", ierr.WithError(err).Mark(ierr.ErrPersistence)
		}
	}

	product, err := s.productRepo.FindProductByID(ctx, tx, usage.ProductID)
	if err != nil {
		return nil, "", ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if product == nil {
		return nil, "", ierr.NewErrorf("product %s for usage %s does not exist", usage.ProductID, usage.ID).
			Mark(ierr.ErrConfiguration)
	}
	facilityName := ""
	if facility, err := s.productRepo.FindFacilityByID(ctx, tx, product.FacilityID); err == nil && facility != nil {
		facilityName = facility.Name
	}

	source := req.Strategies
	if source == nil {
		source = s.registry
	}
	strategy, err := source.StrategyFor(*product)
	if err != nil {
		return nil, "", err
	}

	allocations := req.Allocations
	if len(allocations) > 0 {
		if err := accountservice.ValidateAllocation(allocations); err != nil {
			return nil, "", err
		}
	} else {
		allocations, err = s.allocator.Allocate(ctx, tx, usage)
		if err != nil {
			return nil, "", err
		}
	}

	author := strings.TrimSpace(req.Author)
	if author == "" {
		author = s.billing.Get().Author
	}

	records := make([]domain.BillingRecord, 0, len(allocations))
	for _, allocation := range allocations {
		lines, err := strategy.CalculateCharges(ctx, tx, calculatordomain.ChargeInput{
			Usage:   usage,
			Product: *product,
			Percent: allocation.Percent,
		})
		if err != nil {
			return nil, "", err
		}

		record, err := s.createRecord(ctx, tx, usage, allocation, lines, author)
		if err != nil {
			return nil, "", err
		}
		records = append(records, *record)
	}
	return records, facilityName, nil
}

func (s *Service) createRecord(ctx context.Context, tx *gorm.DB, usage usagedomain.ProductUsage, allocation accountdomain.Allocation, lines []ratingdomain.ChargeLine, author string) (*domain.BillingRecord, error) {
	now := s.clock.Now()
	rate := ""
	if len(lines) > 0 {
		rate = lines[0].RateDescription
	}

	record := &domain.BillingRecord{
		ID:             s.genID.Generate(),
		ProductUsageID: usage.ID,
		AccountID:      allocation.AccountID,
		Percent:        allocation.Percent,
		Year:           usage.Year,
		Month:          usage.Month,
		Description:    usage.Description,
		Rate:           rate,
		CurrentState:   domain.InitialState,
		Author:         author,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, tx, record); err != nil {
		return nil, storeError(err)
	}

	state := &domain.BillingRecordState{
		ID:              s.genID.Generate(),
		BillingRecordID: record.ID,
		Name:            domain.InitialState,
		User:            author,
		Approvers:       datatypes.NewJSONSlice([]string{}),
		CreatedAt:       now,
	}
	if err := s.repo.CreateState(ctx, tx, state); err != nil {
		return nil, storeError(err)
	}

	for _, line := range lines {
		lineAuthor := line.Author
		if lineAuthor == "" {
			lineAuthor = author
		}
		txn := &domain.Transaction{
			ID:              s.genID.Generate(),
			BillingRecordID: record.ID,
			Charge:          line.Amount,
			Description:     line.Description,
			Author:          lineAuthor,
			Rate:            line.RateDescription,
			Kind:            domain.TransactionKindCharge,
			CreatedAt:       now,
		}
		if err := s.repo.CreateTransaction(ctx, tx, txn); err != nil {
			return nil, storeError(err)
		}
		charge, err := s.repo.RecomputeCharge(ctx, tx, record.ID)
		if err != nil {
			return nil, storeError(err)
		}
		record.Charge = charge
	}
	return record, nil
}

// Transition appends an approval state and moves the record to it.
func (s *Service) Transition(ctx context.Context, req domain.TransitionRequest) (*domain.BillingRecord, error) {
	if !domain.IsKnownState(req.State) {
		return nil, ierr.NewErrorf("unknown billing record state %q", req.State).Mark(ierr.ErrValidation)
	}
	if strings.TrimSpace(req.User) == "" {
		return nil, ierr.NewError("state change requires a user").Mark(ierr.ErrValidation)
	}

	var record *domain.BillingRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.loadRecord(ctx, tx, req.RecordID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.CurrentState, req.State) {
			return ierr.NewErrorf("billing record %s cannot move from %s to %s", current.ID, current.CurrentState, req.State).
				Mark(ierr.ErrInvalidOperation)
		}

		approvers := req.Approvers
		if approvers == nil {
			approvers = []string{}
		}
		state := &domain.BillingRecordState{
			ID:              s.genID.Generate(),
			BillingRecordID: current.ID,
			Name:            req.State,
			User:            req.User,
			Approvers:       datatypes.NewJSONSlice(approvers),
			Comment:         req.Comment,
			CreatedAt:       s.clock.Now(),
		}
		if err := s.repo.CreateState(ctx, tx, state); err != nil {
			return storeError(err)
		}
		if err := s.repo.UpdateState(ctx, tx, current.ID, req.State); err != nil {
			return storeError(err)
		}
		current.CurrentState = req.State
		record = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("billing record state changed",
		zap.String("billing_record_id", record.ID.String()),
		zap.String("state", record.CurrentState),
		zap.String("user", req.User),
	)
	return record, nil
}

// Delete removes a record that has not left the initial state.
func (s *Service) Delete(ctx context.Context, recordID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.loadRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}
		if record.CurrentState != domain.InitialState {
			return ierr.NewErrorf("billing record %s is %s and can no longer be deleted", record.ID, record.CurrentState).
				Mark(ierr.ErrInvalidOperation)
		}
		if err := s.repo.Delete(ctx, tx, record.ID); err != nil {
			return storeError(err)
		}
		return nil
	})
}

// AddTransaction appends a manual correction to a record that is not final.
func (s *Service) AddTransaction(ctx context.Context, req domain.TransactionRequest) (*domain.Transaction, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, ierr.NewError("transaction description is required").Mark(ierr.ErrValidation)
	}

	var txn *domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.loadRecord(ctx, tx, req.RecordID)
		if err != nil {
			return err
		}
		if record.CurrentState == domain.StateFinal {
			return ierr.NewErrorf("billing record %s is final", record.ID).Mark(ierr.ErrInvalidOperation)
		}

		author := strings.TrimSpace(req.Author)
		if author == "" {
			author = s.billing.Get().Author
		}
		rate := req.Rate
		if rate == "" {
			rate = record.Rate
		}
		txn = &domain.Transaction{
			ID:              s.genID.Generate(),
			BillingRecordID: record.ID,
			Charge:          req.Charge,
			Description:     req.Description,
			Author:          author,
			Rate:            rate,
			Kind:            domain.TransactionKindManual,
			CreatedAt:       s.clock.Now(),
		}
		if err := s.repo.CreateTransaction(ctx, tx, txn); err != nil {
			return storeError(err)
		}
		if _, err := s.repo.RecomputeCharge(ctx, tx, record.ID); err != nil {
			return storeError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// RemoveTransaction deletes one transaction from a record that is not final.
func (s *Service) RemoveTransaction(ctx context.Context, transactionID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := s.repo.FindTransaction(ctx, tx, transactionID)
		if err != nil {
			return storeError(err)
		}
		if txn == nil {
			return ierr.NewErrorf("transaction %s not found", transactionID).Mark(ierr.ErrNotFound)
		}
		record, err := s.loadRecord(ctx, tx, txn.BillingRecordID)
		if err != nil {
			return err
		}
		if record.CurrentState == domain.StateFinal {
			return ierr.NewErrorf("billing record %s is final", record.ID).Mark(ierr.ErrInvalidOperation)
		}
		if err := s.repo.DeleteTransaction(ctx, tx, txn.ID); err != nil {
			return storeError(err)
		}
		if _, err := s.repo.RecomputeCharge(ctx, tx, record.ID); err != nil {
			return storeError(err)
		}
		return nil
	})
}

// Rebalance replaces a user's facility records for a month with records
// split by the supplied allocation. Every affected record must still be in
// the initial state.
func (s *Service) Rebalance(ctx context.Context, req domain.RebalanceRequest) ([]domain.BillingRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ierr.WithError(err).WithHint("rebalance needs a user, facility, month and allocation").Mark(ierr.ErrValidation)
	}
	if err := accountservice.ValidateAllocation(req.Allocations); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrValidation)
	}

	var records []domain.BillingRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userID, facilityID := req.UserID, req.FacilityID
		current, err := s.repo.ListForPeriod(ctx, tx, domain.PeriodQuery{
			Year:       req.Year,
			Month:      req.Month,
			FacilityID: &facilityID,
			UserID:     &userID,
		})
		if err != nil {
			return storeError(err)
		}
		if len(current) == 0 {
			return ierr.NewErrorf("no billing records for user %s in %04d-%02d", req.UserID, req.Year, req.Month).
				Mark(ierr.ErrNotFound)
		}

		locked := lo.Filter(current, func(r domain.BillingRecord, _ int) bool {
			return r.CurrentState != domain.InitialState
		})
		if len(locked) > 0 {
			return ierr.NewErrorf("%d billing records are past %s and cannot be rebalanced", len(locked), domain.InitialState).
				Mark(ierr.ErrInvalidOperation)
		}

		usageIDs := lo.Uniq(lo.Map(current, func(r domain.BillingRecord, _ int) snowflake.ID {
			return r.ProductUsageID
		}))
		for _, usageID := range usageIDs {
			usage, err := s.usageRepo.FindByID(ctx, tx, usageID)
			if err != nil {
				return storeError(err)
			}
			if usage == nil {
				return ierr.NewErrorf("product usage %s not found", usageID).Mark(ierr.ErrNotFound)
			}
			created, _, err := s.create(ctx, tx, domain.CreateRequest{
				Usage:       *usage,
				Allocations: req.Allocations,
				Recalculate: true,
				Author:      req.Author,
			})
			if err != nil {
				return err
			}
			records = append(records, created...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("billing records rebalanced",
		zap.String("product_user_id", req.UserID.String()),
		zap.Int("year", req.Year),
		zap.Int("month", req.Month),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func (s *Service) loadRecord(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.BillingRecord, error) {
	record, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if record == nil {
		return nil, ierr.NewErrorf("billing record %s not found", id).Mark(ierr.ErrNotFound)
	}
	return record, nil
}

func storeError(err error) error {
	if db.IsDuplicateKeyErr(err) {
		return ierr.WithError(err).WithHint("a billing record for this usage, account and percent exists").Mark(ierr.ErrDuplicate)
	}
	return ierr.WithError(err).Mark(ierr.ErrPersistence)
}

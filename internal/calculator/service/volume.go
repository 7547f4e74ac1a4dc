package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	billingrecorddomain "github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/domain"
	calculatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VolumeDiscountPrefix starts the description of every discount transaction.
const VolumeDiscountPrefix = "Volume discount"

// Volume charges like Basic and then discounts a product's whole month once
// its total quantity reaches a configured tier.
type Volume struct {
	*Basic

	log        *zap.Logger
	billing    *config.BillingConfigHolder
	usageRepo  usagedomain.Repository
	recordRepo billingrecorddomain.Repository
	genID      *snowflake.Node
	clock      clock.Clock
}

type VolumeParam struct {
	fx.In

	Basic      *Basic
	Log        *zap.Logger
	Billing    *config.BillingConfigHolder
	UsageRepo  usagedomain.Repository
	RecordRepo billingrecorddomain.Repository
	GenID      *snowflake.Node
	Clock      clock.Clock
}

func NewVolume(p VolumeParam) *Volume {
	return &Volume{
		Basic:      p.Basic,
		log:        p.Log.Named("calculator.volume"),
		billing:    p.Billing,
		usageRepo:  p.UsageRepo,
		recordRepo: p.RecordRepo,
		genID:      p.GenID,
		clock:      p.Clock,
	}
}

func (v *Volume) Name() string { return calculatordomain.StrategyVolume }

// Finalize replaces the discount lines of every initial-state record of the
// product and month. Records past the initial state keep their lines.
func (v *Volume) Finalize(ctx context.Context, db *gorm.DB, req calculatordomain.FinalizeRequest) error {
	cfg := v.billing.Get()
	discount, ok := cfg.DiscountFor(req.Product.Name)
	if !ok {
		return nil
	}

	total, err := v.usageRepo.SumQuantity(ctx, db, req.Product.ID, req.Year, req.Month)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	tier, hasTier := TierFor(discount.Tiers, total)

	productID := req.Product.ID
	records, err := v.recordRepo.ListForPeriod(ctx, db, billingrecorddomain.PeriodQuery{
		Year:      req.Year,
		Month:     req.Month,
		ProductID: &productID,
	})
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrPersistence)
	}

	author := req.Author
	if author == "" {
		author = cfg.Author
	}

	applied := 0
	for _, record := range records {
		if record.CurrentState != billingrecorddomain.InitialState {
			continue
		}
		if _, err := v.recordRepo.DeleteTransactionsByKind(ctx, db, record.ID, billingrecorddomain.TransactionKindVolumeDiscount); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrPersistence)
		}
		base, err := v.recordRepo.RecomputeCharge(ctx, db, record.ID)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrPersistence)
		}
		if !hasTier {
			continue
		}

		amount := DiscountAmount(base, tier.Percent)
		if amount == 0 {
			continue
		}
		txn := billingrecorddomain.Transaction{
			ID:              v.genID.Generate(),
			BillingRecordID: record.ID,
			Charge:          amount,
			Description:     fmt.Sprintf("%s: %d%% for %s %s", VolumeDiscountPrefix, tier.Percent, total.String(), monthLabel(req.Year, req.Month)),
			Author:          author,
			Rate:            record.Rate,
			Kind:            billingrecorddomain.TransactionKindVolumeDiscount,
			CreatedAt:       v.clock.Now(),
		}
		if err := v.recordRepo.CreateTransaction(ctx, db, &txn); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrPersistence)
		}
		if _, err := v.recordRepo.RecomputeCharge(ctx, db, record.ID); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrPersistence)
		}
		applied++
	}

	v.log.Info("volume discount finalized",
		zap.String("product", req.Product.Name),
		zap.Int("year", req.Year),
		zap.Int("month", req.Month),
		zap.String("quantity", total.String()),
		zap.Int("records", applied),
	)
	return nil
}

// TierFor returns the highest tier whose minimum the quantity reaches.
func TierFor(tiers []config.VolumeTier, quantity decimal.Decimal) (config.VolumeTier, bool) {
	sorted := append([]config.VolumeTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinQuantity < sorted[j].MinQuantity })

	var (
		found config.VolumeTier
		ok    bool
	)
	for _, tier := range sorted {
		if quantity.GreaterThanOrEqual(decimal.NewFromFloat(tier.MinQuantity)) {
			found, ok = tier, true
		}
	}
	return found, ok
}

// DiscountAmount is the negative share of charge for percent, rounded half
// away from zero.
func DiscountAmount(charge int64, percent int) int64 {
	return decimal.NewFromInt(charge).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(hundred).
		Round(0).
		Neg().
		IntPart()
}

var hundred = decimal.NewFromInt(100)

func monthLabel(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

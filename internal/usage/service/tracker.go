package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Tracker struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  usagedomain.Repository
	cfg   *config.BillingConfigHolder
	clock clock.Clock
}

type TrackerParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    usagedomain.Repository
	Billing *config.BillingConfigHolder
	Clock   clock.Clock
}

func NewTracker(p TrackerParam) usagedomain.Tracker {
	return &Tracker{
		db:    p.DB,
		log:   p.Log.Named("usage.tracker"),
		genID: p.GenID,
		repo:  p.Repo,
		cfg:   p.Billing,
		clock: p.Clock,
	}
}

func (t *Tracker) RecordFailure(ctx context.Context, usageID snowflake.ID, message string) error {
	message = TruncateTail(message, t.cfg.Get().ErrorMessageMaxLength)
	now := t.clock.Now()

	row, err := t.repo.FindUnresolvedProcessing(ctx, t.db, usageID)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("could not load processing record for usage %s", usageID).
			Mark(ierr.ErrPersistence)
	}

	if row != nil {
		row.ErrorMessage = message
		row.UpdatedAt = now
		if err := t.repo.UpdateProcessing(ctx, t.db, row); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrPersistence)
		}
		t.log.Debug("processing record updated", zap.String("product_usage_id", usageID.String()))
		return nil
	}

	row = &usagedomain.ProductUsageProcessing{
		ID:             t.genID.Generate(),
		ProductUsageID: usageID,
		ErrorMessage:   message,
		Resolved:       false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.repo.CreateProcessing(ctx, t.db, row); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	t.log.Debug("processing record created", zap.String("product_usage_id", usageID.String()))
	return nil
}

func (t *Tracker) RecordSuccess(ctx context.Context, db *gorm.DB, usageID snowflake.ID) error {
	if db == nil {
		db = t.db
	}
	row, err := t.repo.FindUnresolvedProcessing(ctx, db, usageID)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if row == nil {
		return nil
	}

	row.Resolved = true
	row.UpdatedAt = t.clock.Now()
	if err := t.repo.UpdateProcessing(ctx, db, row); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	return nil
}

// TruncateTail keeps the last limit runes of message.
func TruncateTail(message string, limit int) string {
	if limit <= 0 {
		return message
	}
	runes := []rune(message)
	if len(runes) <= limit {
		return message
	}
	return string(runes[len(runes)-limit:])
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Tracker maintains the processing ledger for usage records.
type Tracker interface {
	// RecordFailure updates the unresolved row for usageID or inserts one.
	RecordFailure(ctx context.Context, usageID snowflake.ID, message string) error
	// RecordSuccess resolves an unresolved row if one exists. It never inserts.
	RecordSuccess(ctx context.Context, db *gorm.DB, usageID snowflake.ID) error
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindFacilityByName(ctx context.Context, db *gorm.DB, name string) (*Facility, error)
	FindFacilityByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Facility, error)
	ListFacilities(ctx context.Context, db *gorm.DB) ([]Facility, error)
	FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindProductsByName(ctx context.Context, db *gorm.DB, facilityID snowflake.ID, names []string) ([]Product, error)
	ListBillableProducts(ctx context.Context, db *gorm.DB, facilityID *snowflake.ID) ([]Product, error)
	ListActiveRates(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]Rate, error)
}

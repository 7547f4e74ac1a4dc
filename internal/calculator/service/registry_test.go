package service

import (
	"context"
	"testing"

	calculatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	productrepository "github.com/harvardinformatics/ifxbilling-sub000/internal/product/repository"
	ratingdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/rating/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type namedStrategy struct {
	name string
}

func (s namedStrategy) Name() string { return s.name }

func (s namedStrategy) CalculateCharges(context.Context, *gorm.DB, calculatordomain.ChargeInput) ([]ratingdomain.ChargeLine, error) {
	return nil, nil
}

func (s namedStrategy) Finalize(context.Context, *gorm.DB, calculatordomain.FinalizeRequest) error {
	return nil
}

func newRegistry(t *testing.T, strategies ...calculatordomain.Strategy) *Registry {
	t.Helper()
	r, err := NewRegistry(RegistryParam{
		Log:         zap.NewNop(),
		ProductRepo: productrepository.Provide(),
		Strategies:  strategies,
	})
	require.NoError(t, err)
	return r
}

func TestRegistryResolve(t *testing.T) {
	r := newRegistry(t, namedStrategy{name: "basic"}, namedStrategy{name: "volume"})

	s, err := r.Resolve(" Basic ")
	require.NoError(t, err)
	assert.Equal(t, "basic", s.Name())
	assert.Equal(t, []string{"basic", "volume"}, r.Names())

	_, err = r.Resolve("ifxbilling.calculator.BasicBillingCalculator")
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))
	assert.Contains(t, ierr.Hints(err)[0], "basic, volume")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(RegistryParam{
		Log:         zap.NewNop(),
		ProductRepo: productrepository.Provide(),
		Strategies:  []calculatordomain.Strategy{namedStrategy{name: "basic"}, namedStrategy{name: "BASIC"}},
	})
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))

	r := newRegistry(t)
	assert.Error(t, r.Register(namedStrategy{name: "  "}))
	assert.Error(t, r.Register(nil))
}

func TestRegistryValidate(t *testing.T) {
	db := testutil.OpenDB(t)
	f := testutil.Seed(t, db, testutil.Node(t))
	r := newRegistry(t, namedStrategy{name: "basic"})
	ctx := context.Background()

	require.NoError(t, r.Validate(ctx, db))

	f.AddProduct(t, "Liquid Nitrogen", "tiered", 5, "liters")
	err := r.Validate(ctx, db)
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))
	assert.Contains(t, err.Error(), "Liquid Nitrogen (tiered)")

	// Non-billable products are not checked.
	require.NoError(t, db.Model(&productdomain.Product{}).Where("name = ?", "Liquid Nitrogen").Update("billable", false).Error)
	assert.NoError(t, r.Validate(ctx, db))
}

func TestCacheKeepsFirstUseOrder(t *testing.T) {
	r := newRegistry(t, namedStrategy{name: "basic"}, namedStrategy{name: "volume"})
	cache := NewCache(r)

	dewar := productdomain.Product{ID: 2, Name: "Helium Dewar", BillingCalculator: "volume"}
	balloon := productdomain.Product{ID: 1, Name: "Balloon", BillingCalculator: "basic"}

	for _, p := range []productdomain.Product{dewar, balloon, dewar} {
		_, err := cache.StrategyFor(p)
		require.NoError(t, err)
	}
	require.Equal(t, 2, cache.Len())

	entries := cache.Entries()
	assert.Equal(t, "Helium Dewar", entries[0].Product.Name)
	assert.Equal(t, "volume", entries[0].Strategy.Name())
	assert.Equal(t, "Balloon", entries[1].Product.Name)

	_, err := cache.StrategyFor(productdomain.Product{ID: 3, Name: "Mystery", BillingCalculator: "tiered"})
	assert.True(t, ierr.IsConfiguration(err))
	assert.Equal(t, 2, cache.Len())
}

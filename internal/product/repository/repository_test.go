package repository

import (
	"context"
	"testing"

	"github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacilityLookups(t *testing.T) {
	db := testutil.OpenDB(t)
	f := testutil.Seed(t, db, testutil.Node(t))
	ctx := context.Background()
	repo := Provide()

	found, err := repo.FindFacilityByName(ctx, db, "Helium Recovery Service")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, f.Facility.ID, found.ID)

	missing, err := repo.FindFacilityByName(ctx, db, "Nonexistent Facility")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := repo.FindFacilityByID(ctx, db, f.Facility.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "HE", byID.InvoicePrefix)

	require.NoError(t, db.Create(&domain.Facility{
		ID:                  f.Node.Generate(),
		Name:                "Bauer Core",
		ApplicationUsername: "bauer",
	}).Error)
	facilities, err := repo.ListFacilities(ctx, db)
	require.NoError(t, err)
	require.Len(t, facilities, 2)
	assert.Equal(t, "Bauer Core", facilities[0].Name)
}

func TestProductLookups(t *testing.T) {
	db := testutil.OpenDB(t)
	f := testutil.Seed(t, db, testutil.Node(t))
	ctx := context.Background()
	repo := Provide()

	helium, _ := f.AddProduct(t, "Liquid Helium", "volume", 40, "liters")
	hidden, _ := f.AddProduct(t, "Internal Only", "basic", 10, "ea")
	require.NoError(t, db.Model(&hidden).Update("billable", false).Error)

	products, err := repo.FindProductsByName(ctx, db, f.Facility.ID, []string{"Liquid Helium", "Unobtainium"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, helium.ID, products[0].ID)

	products, err = repo.FindProductsByName(ctx, db, f.Node.Generate(), []string{"Liquid Helium"})
	require.NoError(t, err)
	assert.Empty(t, products)

	billable, err := repo.ListBillableProducts(ctx, db, &f.Facility.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(billable))
	for _, p := range billable {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Helium Dewar", "Liquid Helium"}, names)

	all, err := repo.ListBillableProducts(ctx, db, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	rates, err := repo.ListActiveRates(ctx, db, helium.ID)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, int64(40), rates[0].Price)
}

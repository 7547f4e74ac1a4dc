package service

import (
	"context"
	"testing"
	"time"

	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/account/repository"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/testutil"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var march = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func newAllocator(resolver accountdomain.OrganizationResolver) accountdomain.Allocator {
	return NewAllocator(AllocatorParam{
		Log:      zap.NewNop(),
		Repo:     repository.Provide(),
		Resolver: resolver,
	})
}

func TestAllocateDefaultAccount(t *testing.T) {
	db := testutil.OpenDB(t)
	f := testutil.Seed(t, db, testutil.Node(t))
	usage := f.AddUsage(t, f.Product, "1", "ea", march)

	_, err := newAllocator(nil).Allocate(context.Background(), db, usage)
	require.Error(t, err)
	assert.True(t, ierr.IsAllocation(err))
	assert.Contains(t, err.Error(), "unable to find an active, authorized account")

	f.AuthorizeAccount(t, f.Account.ID)
	allocations, err := newAllocator(nil).Allocate(context.Background(), db, usage)
	require.NoError(t, err)
	assert.Equal(t, []accountdomain.Allocation{{AccountID: f.Account.ID, Percent: 100}}, allocations)
}

func TestAllocatePrefersProductAuthorizations(t *testing.T) {
	db := testutil.OpenDB(t)
	f := testutil.Seed(t, db, testutil.Node(t))
	usage := f.AddUsage(t, f.Product, "1", "ea", march)

	second := f.AddAccount(t, "370-11111-1111-111111-111111-1111-11111", f.Org.ID)
	f.AuthorizeAccount(t, f.Account.ID)
	f.AuthorizeProductAccount(t, f.Product.ID, f.Account.ID, 25)
	f.AuthorizeProductAccount(t, f.Product.ID, second.ID, 75)

	allocations, err := newAllocator(nil).Allocate(context.Background(), db, usage)
	require.NoError(t, err)
	assert.Equal(t, []accountdomain.Allocation{
		{AccountID: f.Account.ID, Percent: 25},
		{AccountID: second.ID, Percent: 75},
	}, allocations)
}

func TestAllocateProductPercentagesMustTotalHundred(t *testing.T) {
	db := testutil.OpenDB(t)
	f := testutil.Seed(t, db, testutil.Node(t))
	usage := f.AddUsage(t, f.Product, "1", "ea", march)

	f.AuthorizeAccount(t, f.Account.ID)
	f.AuthorizeProductAccount(t, f.Product.ID, f.Account.ID, 60)

	_, err := newAllocator(nil).Allocate(context.Background(), db, usage)
	require.Error(t, err)
	assert.True(t, ierr.IsAllocation(err))
	assert.Contains(t, err.Error(), "add up to 60")
}

func TestAllocateSkipsClosedAccounts(t *testing.T) {
	db := testutil.OpenDB(t)
	f := testutil.Seed(t, db, testutil.Node(t))
	usage := f.AddUsage(t, f.Product, "1", "ea", march)

	expired := f.AddAccount(t, "370-22222-2222-222222-222222-2222-22222", f.Org.ID)
	before := march.AddDate(0, 0, -1)
	require.NoError(t, db.Model(&expired).Update("expiration_date", before).Error)
	f.AuthorizeAccount(t, expired.ID)

	notYet := f.AddAccount(t, "370-33333-3333-333333-333333-3333-33333", f.Org.ID)
	after := march.AddDate(0, 0, 1)
	require.NoError(t, db.Model(&notYet).Update("valid_from", after).Error)
	f.AuthorizeAccount(t, notYet.ID)

	other := f.AddOrganization(t, "Nobel Lab")
	foreign := f.AddAccount(t, "370-44444-4444-444444-444444-4444-44444", other.ID)
	f.AuthorizeAccount(t, foreign.ID)

	inactive := f.AddAccount(t, "370-55555-5555-555555-555555-5555-55555", f.Org.ID)
	require.NoError(t, db.Model(&inactive).Update("active", false).Error)
	f.AuthorizeAccount(t, inactive.ID)

	revoked := f.AuthorizeAccount(t, f.Account.ID)
	require.NoError(t, db.Model(&revoked).Update("is_valid", false).Error)

	_, err := newAllocator(nil).Allocate(context.Background(), db, usage)
	require.Error(t, err)
	assert.True(t, ierr.IsAllocation(err))

	// The foreign account becomes eligible once the usage's own organization is used.
	foreignUsage := usage
	foreignUsage.OrganizationID = other.ID
	allocations, err := newAllocator(UsageOrganization).Allocate(context.Background(), db, foreignUsage)
	require.NoError(t, err)
	assert.Equal(t, foreign.ID, allocations[0].AccountID)
}

func TestPrimaryAffiliationRequired(t *testing.T) {
	db := testutil.OpenDB(t)
	f := testutil.Seed(t, db, testutil.Node(t))
	require.NoError(t, db.Model(&f.User).Update("primary_affiliation_id", nil).Error)

	usage := usagedomain.ProductUsage{ProductUserID: f.User.ID, ProductID: f.Product.ID, StartDate: march}
	_, err := NewPrimaryAffiliation(repository.Provide()).ResolveOrganization(context.Background(), db, usage)
	require.Error(t, err)
	assert.True(t, ierr.IsAllocation(err))
	assert.NotEmpty(t, ierr.Hints(err))

	_, err = UsageOrganization.ResolveOrganization(context.Background(), db, usagedomain.ProductUsage{})
	require.Error(t, err)
	assert.True(t, ierr.IsAllocation(err))
}

func TestValidateAllocation(t *testing.T) {
	node := testutil.Node(t)
	a, b := node.Generate(), node.Generate()

	require.NoError(t, ValidateAllocation([]accountdomain.Allocation{{AccountID: a, Percent: 40}, {AccountID: b, Percent: 60}}))

	for name, allocations := range map[string][]accountdomain.Allocation{
		"empty":      nil,
		"short":      {{AccountID: a, Percent: 90}},
		"duplicate":  {{AccountID: a, Percent: 50}, {AccountID: a, Percent: 50}},
		"zero":       {{AccountID: a, Percent: 0}, {AccountID: b, Percent: 100}},
		"no account": {{Percent: 100}},
	} {
		err := ValidateAllocation(allocations)
		require.Error(t, err, name)
		assert.True(t, ierr.IsAllocation(err), name)
	}
}

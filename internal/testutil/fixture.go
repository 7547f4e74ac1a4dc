package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Fixture is a facility with one organization, one user affiliated with it,
// one billable product priced at 100 per "ea" and one active expense code.
// The user has no account authorizations until a test adds them.
type Fixture struct {
	DB   *gorm.DB
	Node *snowflake.Node

	Facility productdomain.Facility
	Org      accountdomain.Organization
	User     accountdomain.ProductUser
	Product  productdomain.Product
	Rate     productdomain.Rate
	Account  accountdomain.Account

	products int
}

// Seed creates a Fixture in db.
func Seed(t testing.TB, db *gorm.DB, node *snowflake.Node) *Fixture {
	t.Helper()
	f := &Fixture{DB: db, Node: node}

	f.Facility = productdomain.Facility{
		ID:                  node.Generate(),
		Name:                "Helium Recovery Service",
		ApplicationUsername: "helium",
		InvoicePrefix:       "HE",
	}
	require.NoError(t, db.Create(&f.Facility).Error)

	f.Org = f.AddOrganization(t, "Kitchen Lab")

	orgID := f.Org.ID
	f.User = accountdomain.ProductUser{
		ID:                   node.Generate(),
		Username:             "sslurpiston",
		FullName:             "Sylvester Slurpiston",
		Email:                "sslurpiston@example.edu",
		PrimaryAffiliationID: &orgID,
	}
	require.NoError(t, db.Create(&f.User).Error)
	require.NoError(t, db.Create(&accountdomain.UserAffiliation{
		ID:             node.Generate(),
		UserID:         f.User.ID,
		OrganizationID: f.Org.ID,
		Role:           "member",
		Active:         true,
	}).Error)

	f.Product, f.Rate = f.AddProduct(t, "Helium Dewar", "basic", 100, "ea")
	f.Account = f.AddAccount(t, "370-31230-8100-000775-600200-0000-44075", f.Org.ID)
	return f
}

func (f *Fixture) AddOrganization(t testing.TB, name string) accountdomain.Organization {
	t.Helper()
	org := accountdomain.Organization{ID: f.Node.Generate(), Name: name, Rank: "lab", OrgTree: "Harvard"}
	require.NoError(t, f.DB.Create(&org).Error)
	return org
}

// AddProduct creates a billable product with one active rate.
func (f *Fixture) AddProduct(t testing.TB, name, calculator string, price int64, units string) (productdomain.Product, productdomain.Rate) {
	t.Helper()
	f.products++
	product := productdomain.Product{
		ID:                f.Node.Generate(),
		ProductNumber:     fmt.Sprintf("IFXP%08d", f.products),
		Name:              name,
		FacilityID:        f.Facility.ID,
		BillingCalculator: calculator,
		Billable:          true,
	}
	require.NoError(t, f.DB.Create(&product).Error)

	rate := productdomain.Rate{
		ID:        f.Node.Generate(),
		ProductID: product.ID,
		Name:      "Internal",
		Price:     price,
		Units:     units,
		IsActive:  true,
	}
	require.NoError(t, f.DB.Create(&rate).Error)
	return product, rate
}

func (f *Fixture) AddAccount(t testing.TB, code string, orgID snowflake.ID) accountdomain.Account {
	t.Helper()
	account := accountdomain.Account{
		ID:             f.Node.Generate(),
		Code:           code,
		Name:           "Account " + code,
		AccountType:    accountdomain.AccountTypeExpenseCode,
		OrganizationID: orgID,
		Active:         true,
		Root:           "44075",
	}
	require.NoError(t, f.DB.Create(&account).Error)
	return account
}

// AuthorizeAccount adds a valid default authorization for the fixture user.
func (f *Fixture) AuthorizeAccount(t testing.TB, accountID snowflake.ID) accountdomain.UserAccount {
	t.Helper()
	ua := accountdomain.UserAccount{
		ID:        f.Node.Generate(),
		UserID:    f.User.ID,
		AccountID: accountID,
		IsValid:   true,
	}
	require.NoError(t, f.DB.Create(&ua).Error)
	return ua
}

// AuthorizeProductAccount adds a valid product-scoped authorization for the fixture user.
func (f *Fixture) AuthorizeProductAccount(t testing.TB, productID, accountID snowflake.ID, percent int) accountdomain.UserProductAccount {
	t.Helper()
	upa := accountdomain.UserProductAccount{
		ID:        f.Node.Generate(),
		UserID:    f.User.ID,
		ProductID: productID,
		AccountID: accountID,
		Percent:   percent,
		IsValid:   true,
	}
	require.NoError(t, f.DB.Create(&upa).Error)
	return upa
}

// AddUsage records quantity of product for the fixture user starting at start (UTC).
func (f *Fixture) AddUsage(t testing.TB, product productdomain.Product, quantity string, units string, start time.Time) usagedomain.ProductUsage {
	t.Helper()
	start = start.UTC()
	usage := usagedomain.ProductUsage{
		ID:             f.Node.Generate(),
		ProductID:      product.ID,
		ProductUserID:  f.User.ID,
		OrganizationID: f.Org.ID,
		Year:           start.Year(),
		Month:          int(start.Month()),
		Quantity:       decimal.RequireFromString(quantity),
		Units:          units,
		StartDate:      start,
		Description:    "usage of " + product.Name,
	}
	require.NoError(t, f.DB.Create(&usage).Error)
	return usage
}

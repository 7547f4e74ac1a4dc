package migration

import (
	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	billingrecorddomain "github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/domain"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
)

// Models lists the gorm models in dependency order.
func Models() []any {
	return []any{
		&productdomain.Facility{},
		&accountdomain.Organization{},
		&accountdomain.ProductUser{},
		&accountdomain.UserAffiliation{},
		&productdomain.Product{},
		&productdomain.Rate{},
		&accountdomain.Account{},
		&accountdomain.UserAccount{},
		&accountdomain.UserProductAccount{},
		&usagedomain.ProductUsage{},
		&usagedomain.ProductUsageProcessing{},
		&billingrecorddomain.BillingRecord{},
		&billingrecorddomain.BillingRecordState{},
		&billingrecorddomain.Transaction{},
	}
}

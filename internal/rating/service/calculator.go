package service

import (
	"fmt"

	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	ratingdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/rating/domain"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Calculator struct{}

func NewCalculator() ratingdomain.Calculator {
	return Calculator{}
}

// Calculate prices percent of usage at rate. Amounts are rounded half away
// from zero to whole minor units. Usage above the rate's quantity ceiling is
// a configuration error; the full quantity is always billed.
func (Calculator) Calculate(usage usagedomain.ProductUsage, rate productdomain.Rate, percent int) (ratingdomain.ChargeLine, error) {
	if percent <= 0 || percent > 100 {
		return ratingdomain.ChargeLine{}, ierr.NewErrorf("percent %d out of range", percent).Mark(ierr.ErrAllocation)
	}

	quantity := usage.Quantity
	if rate.MaxQty != nil && quantity.GreaterThan(decimal.NewFromInt(*rate.MaxQty)) {
		return ratingdomain.ChargeLine{}, ierr.NewErrorf("quantity %s %s exceeds the rate ceiling of %d", quantity, usage.Units, *rate.MaxQty).
			WithHintf("raise max_qty on rate %q or split the usage", rate.Name).
			Mark(ierr.ErrConfiguration)
	}

	amount := decimal.NewFromInt(rate.Price).
		Mul(quantity).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(hundred).
		Round(0)

	return ratingdomain.ChargeLine{
		Amount:          amount.IntPart(),
		Description:     Describe(quantity, usage.Units, rate, percent),
		RateDescription: RateDescription(rate),
	}, nil
}

// Describe renders "[{percent}% of ]{quantity} {units} at {price phrase}".
func Describe(quantity decimal.Decimal, units string, rate productdomain.Rate, percent int) string {
	prefix := ""
	if percent != 100 {
		prefix = fmt.Sprintf("%d%% of ", percent)
	}
	return fmt.Sprintf("%s%s %s at %s", prefix, quantity.String(), units, pricePhrase(rate))
}

// RateDescription is the rate snapshot stored on records and transactions.
func RateDescription(rate productdomain.Rate) string {
	return fmt.Sprintf("%d %s", rate.Price, rate.Units)
}

func pricePhrase(rate productdomain.Rate) string {
	if rate.Units == ratingdomain.UnitEach {
		return fmt.Sprintf("%d %s", rate.Price, rate.Units)
	}
	return fmt.Sprintf("%d per %s", rate.Price, rate.Units)
}

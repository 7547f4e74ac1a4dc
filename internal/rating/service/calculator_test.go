package service

import (
	"testing"

	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usageOf(qty, units string) usagedomain.ProductUsage {
	return usagedomain.ProductUsage{Quantity: decimal.RequireFromString(qty), Units: units}
}

func TestCalculate(t *testing.T) {
	ten := int64(10)
	cases := []struct {
		name        string
		usage       usagedomain.ProductUsage
		rate        productdomain.Rate
		percent     int
		amount      int64
		description string
		rateDesc    string
	}{
		{
			name:        "each unit full share",
			usage:       usageOf("1", "ea"),
			rate:        productdomain.Rate{Price: 100, Units: "ea"},
			percent:     100,
			amount:      100,
			description: "1 ea at 100 ea",
			rateDesc:    "100 ea",
		},
		{
			name:        "partial share",
			usage:       usageOf("1", "ea"),
			rate:        productdomain.Rate{Price: 100, Units: "ea"},
			percent:     25,
			amount:      25,
			description: "25% of 1 ea at 100 ea",
			rateDesc:    "100 ea",
		},
		{
			name:        "per unit phrase",
			usage:       usageOf("2.5", "liters"),
			rate:        productdomain.Rate{Price: 40, Units: "liters"},
			percent:     100,
			amount:      100,
			description: "2.5 liters at 40 per liters",
			rateDesc:    "40 liters",
		},
		{
			name:        "half rounds up",
			usage:       usageOf("0.5", "hours"),
			rate:        productdomain.Rate{Price: 1, Units: "hours"},
			percent:     100,
			amount:      1,
			description: "0.5 hours at 1 per hours",
			rateDesc:    "1 hours",
		},
		{
			name:        "below half rounds down",
			usage:       usageOf("0.4999", "hours"),
			rate:        productdomain.Rate{Price: 1, Units: "hours"},
			percent:     100,
			amount:      0,
			description: "0.4999 hours at 1 per hours",
			rateDesc:    "1 hours",
		},
		{
			name:        "at the ceiling",
			usage:       usageOf("10", "hours"),
			rate:        productdomain.Rate{Price: 7, Units: "hours", MaxQty: &ten},
			percent:     50,
			amount:      35,
			description: "50% of 10 hours at 7 per hours",
			rateDesc:    "7 hours",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line, err := NewCalculator().Calculate(tc.usage, tc.rate, tc.percent)
			require.NoError(t, err)
			assert.Equal(t, tc.amount, line.Amount)
			assert.Equal(t, tc.description, line.Description)
			assert.Equal(t, tc.rateDesc, line.RateDescription)
		})
	}
}

func TestCalculateRejectsQuantityAboveCeiling(t *testing.T) {
	five := int64(5)
	rate := productdomain.Rate{Name: "Internal", Price: 100, Units: "hours", MaxQty: &five}

	_, err := NewCalculator().Calculate(usageOf("10", "hours"), rate, 100)
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))
	assert.Contains(t, err.Error(), "quantity 10 hours exceeds the rate ceiling of 5")
	assert.NotEmpty(t, ierr.Hints(err))
}

func TestCalculateSplitSumsToWhole(t *testing.T) {
	calc := NewCalculator()
	usage := usageOf("3", "hours")
	rate := productdomain.Rate{Price: 33, Units: "hours"}

	var total int64
	for _, pct := range []int{25, 75} {
		line, err := calc.Calculate(usage, rate, pct)
		require.NoError(t, err)
		total += line.Amount
	}
	assert.Equal(t, int64(99), total)
}

func TestCalculateRejectsPercent(t *testing.T) {
	for _, pct := range []int{0, -5, 101} {
		_, err := NewCalculator().Calculate(usageOf("1", "ea"), productdomain.Rate{Price: 1, Units: "ea"}, pct)
		require.Error(t, err)
		assert.True(t, ierr.IsAllocation(err), "percent %d", pct)
	}
}

func TestFormatDollars(t *testing.T) {
	assert.Equal(t, "$0.00", FormatDollars(0))
	assert.Equal(t, "$123.45", FormatDollars(12345))
	assert.Equal(t, "-$12.34", FormatDollars(-1234))
	assert.Equal(t, "$0.05", FormatDollars(5))
}

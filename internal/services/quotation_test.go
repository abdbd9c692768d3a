package services_test

import (
	"testing"

	"crossbuy/internal/domain"
	"crossbuy/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateByCategory(t *testing.T) {
	q := services.NewQuoter()
	cases := []struct {
		category                    string
		shipping, taxes, fee, total string
	}{
		{"electronics", "15.00", "14.95", "10.00", "139.95"},
		{"", "15.00", "14.95", "10.00", "139.95"},
		{"clothing", "10.00", "14.30", "8.00", "132.30"},
		{"home", "18.00", "15.34", "12.00", "145.34"},
		{"toys", "12.00", "14.56", "10.00", "136.56"},
		{"AUTO_PARTS", "20.00", "15.60", "12.00", "147.60"},
	}
	for _, tc := range cases {
		t.Run(tc.category, func(t *testing.T) {
			est, err := q.Estimate(services.EstimateInput{Price: decimal.NewFromInt(100), Category: tc.category})
			require.NoError(t, err)
			assert.Equal(t, tc.shipping, est.ShippingCost.StringFixed(2))
			assert.Equal(t, tc.taxes, est.Taxes.StringFixed(2))
			assert.Equal(t, tc.fee, est.ServiceFee.StringFixed(2))
			assert.Equal(t, tc.total, est.Total.StringFixed(2))
		})
	}
}

func TestEstimateRoundsEachComponent(t *testing.T) {
	est, err := services.NewQuoter().Estimate(services.EstimateInput{
		Price: decimal.RequireFromString("19.99"), Category: "toys",
	})
	require.NoError(t, err)
	// 19.99 * 0.12 = 2.3988 -> 2.40; (19.99 + 2.40) * 0.13 = 2.9107 -> 2.91; 19.99 * 0.10 = 1.999 -> 2.00
	assert.Equal(t, "2.40", est.ShippingCost.StringFixed(2))
	assert.Equal(t, "2.91", est.Taxes.StringFixed(2))
	assert.Equal(t, "2.00", est.ServiceFee.StringFixed(2))
	assert.Equal(t, "27.30", est.Total.StringFixed(2))
}

func TestEstimateRejectsBadInput(t *testing.T) {
	q := services.NewQuoter()

	_, err := q.Estimate(services.EstimateInput{Price: decimal.Zero})
	assert.True(t, domain.IsValidation(err))

	_, err = q.Estimate(services.EstimateInput{Price: decimal.NewFromInt(10), Category: "groceries"})
	assert.True(t, domain.IsValidation(err))
}

package services

import (
	"fmt"
	"strings"

	"crossbuy/internal/domain"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryHome        Category = "home"
	CategoryToys        Category = "toys"
	CategoryAutoParts   Category = "auto_parts"
	CategoryOther       Category = "other"
)

// ParseCategory treats an empty value as "other".
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryOther, nil
	}
	if _, ok := categoryRates[c]; !ok {
		return "", domain.Invalid("category", fmt.Sprintf("unknown category %q", s))
	}
	return c, nil
}

type rates struct {
	shipping decimal.Decimal
	service  decimal.Decimal
}

func rate(shipping, service string) rates {
	return rates{shipping: decimal.RequireFromString(shipping), service: decimal.RequireFromString(service)}
}

var categoryRates = map[Category]rates{
	CategoryElectronics: rate("0.15", "0.10"),
	CategoryClothing:    rate("0.10", "0.08"),
	CategoryHome:        rate("0.18", "0.12"),
	CategoryToys:        rate("0.12", "0.10"),
	CategoryAutoParts:   rate("0.20", "0.12"),
	CategoryOther:       rate("0.15", "0.10"),
}

// TaxRate applies to item price plus shipping.
var TaxRate = decimal.RequireFromString("0.13")

type EstimateInput struct {
	Price    decimal.Decimal
	Category string
	// Advisory only: echoed back, never priced.
	WeightKg   *decimal.Decimal
	Dimensions string
	Origin     string
}

type Estimate struct {
	Category     Category         `json:"category"`
	ItemPrice    decimal.Decimal  `json:"item_price"`
	ShippingCost decimal.Decimal  `json:"shipping_cost"`
	Taxes        decimal.Decimal  `json:"taxes"`
	ServiceFee   decimal.Decimal  `json:"service_fee"`
	Total        decimal.Decimal  `json:"total"`
	WeightKg     *decimal.Decimal `json:"weight_kg,omitempty"`
	Dimensions   string           `json:"dimensions,omitempty"`
	Origin       string           `json:"origin,omitempty"`
}

// Quoter computes price estimates. It holds no state and is safe for concurrent use.
type Quoter struct{}

func NewQuoter() *Quoter { return &Quoter{} }

func (q *Quoter) Estimate(in EstimateInput) (Estimate, error) {
	if !in.Price.IsPositive() {
		return Estimate{}, domain.Invalid("price", "must be greater than zero")
	}
	cat, err := ParseCategory(in.Category)
	if err != nil {
		return Estimate{}, err
	}
	r := categoryRates[cat]

	price := in.Price.Round(2)
	shipping := price.Mul(r.shipping).Round(2)
	taxes := price.Add(shipping).Mul(TaxRate).Round(2)
	fee := price.Mul(r.service).Round(2)

	return Estimate{
		Category:     cat,
		ItemPrice:    price,
		ShippingCost: shipping,
		Taxes:        taxes,
		ServiceFee:   fee,
		Total:        price.Add(shipping).Add(taxes).Add(fee).Round(2),
		WeightKg:     in.WeightKg,
		Dimensions:   in.Dimensions,
		Origin:       in.Origin,
	}, nil
}

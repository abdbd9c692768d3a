package handlers

import (
	"crossbuy/internal/domain"
	"crossbuy/internal/services"
	"crossbuy/internal/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type QuotationHandler struct {
	Quoter *services.Quoter
}

// GET /api/v1/quotations/estimate?price=&category=&weight=&dimensions=&origin=
func (h *QuotationHandler) Estimate(c *fiber.Ctx) error {
	price, err := decimal.NewFromString(c.Query("price"))
	if err != nil {
		return fail(c, "quotation.estimate", domain.Invalid("price", "expected a decimal amount"))
	}
	in := services.EstimateInput{Price: price, Category: c.Query("category")}
	if s := c.Query("weight"); s != "" {
		w, err := decimal.NewFromString(s)
		if err != nil || w.IsNegative() {
			return fail(c, "quotation.estimate", domain.Invalid("weight", "expected a non-negative number"))
		}
		in.WeightKg = &w
	}
	var ok bool
	if in.Dimensions, ok = validate.Text(c.Query("dimensions"), 60); !ok {
		return fail(c, "quotation.estimate", domain.Invalid("dimensions", "too long"))
	}
	if in.Origin, ok = validate.Text(c.Query("origin"), 60); !ok {
		return fail(c, "quotation.estimate", domain.Invalid("origin", "too long"))
	}

	est, err := h.Quoter.Estimate(in)
	if err != nil {
		return fail(c, "quotation.estimate", err)
	}
	return render(c, fiber.StatusOK, est)
}

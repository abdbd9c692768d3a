package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"crossbuy/internal/domain"
	"crossbuy/internal/notify"
	"crossbuy/internal/repos"
	"crossbuy/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderDefaults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.orders.Create(ctx, services.CreateOrderInput{CustomerID: alice, Link: "https://www.bestbuy.com/site/6505727"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, o.Status)
	assert.Equal(t, 1, o.Quantity)
	require.NotNil(t, o.LockerID)
	assert.Equal(t, "lk-miami", *o.LockerID)
	assert.True(t, o.Total.IsZero())

	hist, err := e.orders.History(ctx, o.ID, asAlice)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.StatusCreated, hist[0].Status)
	assert.Equal(t, 1, e.rec.Count(notify.OrderCreated, o.ID))
}

func TestCreateOrderValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.orders.Create(ctx, services.CreateOrderInput{CustomerID: alice, Link: "not a url"})
	assert.True(t, domain.IsValidation(err))

	_, err = e.orders.Create(ctx, services.CreateOrderInput{CustomerID: alice, Link: "https://shop.example.com/x", Quantity: 101})
	assert.True(t, domain.IsValidation(err))
}

func TestPricingAutoQuotes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.newOrder(t, alice)

	res, err := e.orders.Update(ctx, id, asAdmin, services.OrderPatch{
		ItemPrice: dec("100"), ShippingCost: dec("15"), Taxes: dec("14.95"), ServiceFee: dec("10"),
	})
	require.NoError(t, err)
	assert.True(t, res.AutoQuoted)
	assert.Equal(t, domain.StatusQuoted, res.Order.Status)
	assert.Equal(t, "139.95", res.Order.Total.StringFixed(2))
	require.NotNil(t, res.Order.QuotedAt)
	require.NotNil(t, res.Order.QuotationExpiresAt)
	assert.Equal(t, res.Order.QuotedAt.Add(7*24*time.Hour), *res.Order.QuotationExpiresAt)

	stored, err := e.orders.Get(ctx, id, asAlice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQuoted, stored.Status)
	assert.Equal(t, "139.95", stored.Total.StringFixed(2))

	hist, err := e.orders.History(ctx, id, asAdmin)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.StatusQuoted, hist[1].Status)
	assert.Equal(t, 1, e.rec.Count(notify.OrderQuoted, id))

	entries, err := e.audit.List(ctx, "order", id)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestTotalIsAlwaysTheSumOfComponents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.quoted(t, alice)

	res, err := e.orders.Update(ctx, id, asAdmin, services.OrderPatch{ShippingCost: dec("20")})
	require.NoError(t, err)
	o := res.Order
	assert.False(t, res.AutoQuoted)
	assert.Equal(t, domain.StatusQuoted, o.Status)
	assert.True(t, o.Total.Equal(o.ItemPrice.Add(o.ShippingCost).Add(o.Taxes).Add(o.ServiceFee)))
	assert.Equal(t, "144.95", o.Total.StringFixed(2))

	_, err = e.orders.Update(ctx, id, asAdmin, services.OrderPatch{Taxes: dec("-1")})
	assert.True(t, domain.IsValidation(err))
}

func TestCustomerEdits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.newOrder(t, alice)

	name := "Wireless Headphones (black)"
	res, err := e.orders.Update(ctx, id, asAlice, services.OrderPatch{ItemName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, res.Order.ItemName)

	_, err = e.orders.Update(ctx, id, asAlice, services.OrderPatch{ItemPrice: dec("1")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.orders.Update(ctx, id, asBob, services.OrderPatch{ItemName: &name})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	quotedID := e.quoted(t, alice)
	_, err = e.orders.Update(ctx, quotedID, asAlice, services.OrderPatch{ItemName: &name})
	assert.ErrorIs(t, err, domain.ErrNotEditable)
}

func TestAcceptQuotation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.quoted(t, alice)

	_, err := e.orders.AcceptQuotation(ctx, id, bob)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	e.clock.Advance(6 * 24 * time.Hour)
	o, err := e.orders.AcceptQuotation(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentPending, o.Status)
	require.NotNil(t, o.AcceptedAt)

	_, err = e.orders.AcceptQuotation(ctx, id, alice)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestAcceptAfterExpiryKeepsStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.quoted(t, alice)

	e.clock.Advance(7*24*time.Hour + time.Second)
	_, err := e.orders.AcceptQuotation(ctx, id, alice)
	assert.ErrorIs(t, err, domain.ErrQuotationExpired)
	assert.ErrorIs(t, err, domain.ErrConflict)

	o, err := e.orders.Get(ctx, id, asAlice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQuoted, o.Status)
}

func TestAdvanceStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.newOrder(t, alice)

	res, err := e.orders.AdvanceStatus(ctx, id, admin, "in_customs", "CR-123-XYZ", "held for inspection")
	require.NoError(t, err)
	assert.True(t, res.StatusChanged)
	assert.Equal(t, domain.StatusInCustoms, res.Order.Status)
	assert.Equal(t, "CR-123-XYZ", res.Order.TrackingNumber)

	_, err = e.orders.AdvanceStatus(ctx, id, admin, "teleported", "", "")
	assert.True(t, domain.IsValidation(err))

	_, err = e.orders.Cancel(ctx, id, asAlice, "changed my mind")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	_, err = e.orders.Cancel(ctx, id, asAdmin, "customs rejected the item")
	require.NoError(t, err)
	_, err = e.orders.AdvanceStatus(ctx, id, admin, "delivered", "", "")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, 1, e.rec.Count(notify.OrderCancelled, id))
}

func TestSettingCurrentStatusStillRecordsHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.newOrder(t, alice)

	_, err := e.orders.AdvanceStatus(ctx, id, admin, "in_customs", "", "")
	require.NoError(t, err)
	before, err := e.orders.History(ctx, id, asAdmin)
	require.NoError(t, err)
	require.Len(t, before, 2)

	res, err := e.orders.AdvanceStatus(ctx, id, admin, "in_customs", "", "still waiting on the broker")
	require.NoError(t, err)
	assert.False(t, res.StatusChanged)
	assert.Equal(t, domain.StatusInCustoms, res.Order.Status)

	after, err := e.orders.History(ctx, id, asAdmin)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, domain.StatusInCustoms, after[2].Status)
	assert.Equal(t, "still waiting on the broker", after[2].Note)

	_, err = e.orders.AdvanceStatus(ctx, id, admin, "cancelled", "", "")
	require.NoError(t, err)
	_, err = e.orders.AdvanceStatus(ctx, id, admin, "cancelled", "", "")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestRepricingKeepsQuotationWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.quoted(t, alice)
	first, err := e.orders.Get(ctx, id, asAdmin)
	require.NoError(t, err)
	require.NotNil(t, first.QuotationExpiresAt)

	e.clock.Advance(8 * 24 * time.Hour)
	res, err := e.orders.Update(ctx, id, asAdmin, services.OrderPatch{ShippingCost: dec("20")})
	require.NoError(t, err)
	assert.False(t, res.AutoQuoted)
	assert.Equal(t, "144.95", res.Order.Total.StringFixed(2))
	assert.Equal(t, *first.QuotedAt, *res.Order.QuotedAt)
	assert.Equal(t, *first.QuotationExpiresAt, *res.Order.QuotationExpiresAt)

	_, err = e.orders.AcceptQuotation(ctx, id, alice)
	assert.ErrorIs(t, err, domain.ErrQuotationExpired)

	// prices stay editable past quoting but not once the order is closed
	paid := e.awaitingPayment(t, alice)
	res, err = e.orders.Update(ctx, paid, asAdmin, services.OrderPatch{ServiceFee: dec("12")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentPending, res.Order.Status)
	assert.Equal(t, "141.95", res.Order.Total.StringFixed(2))

	_, err = e.orders.Cancel(ctx, paid, asAdmin, "")
	require.NoError(t, err)
	_, err = e.orders.Update(ctx, paid, asAdmin, services.OrderPatch{ServiceFee: dec("1")})
	assert.ErrorIs(t, err, domain.ErrNotEditable)
}

func TestCustomerCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.awaitingPayment(t, alice)

	_, err := e.orders.Cancel(ctx, id, asBob, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	o, err := e.orders.Cancel(ctx, id, asAlice, "found it cheaper")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, o.Status)
}

func TestDeliveredDeductsStockOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	lotID := e.lot(t, headphones, "A-01", 5)

	id := e.newOrder(t, alice)
	qty, product := 2, headphones
	_, err := e.orders.Update(ctx, id, asAdmin, services.OrderPatch{Quantity: &qty, ProductID: &product})
	require.NoError(t, err)

	_, err = e.orders.AdvanceStatus(ctx, id, admin, "out_for_delivery", "", "")
	require.NoError(t, err)
	res, err := e.orders.AdvanceStatus(ctx, id, admin, "delivered", "", "")
	require.NoError(t, err)
	require.NoError(t, res.DeductionErr)
	require.Len(t, res.Deducted, 1)
	assert.Equal(t, -2, res.Deducted[0].Delta)

	// delivered is terminal; a second attempt neither moves nor deducts
	_, err = e.orders.AdvanceStatus(ctx, id, admin, "delivered", "", "")
	require.NoError(t, err)
	rec, err := e.inv.GetRecord(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Quantity)
	assert.Equal(t, 1, e.rec.Count(notify.OrderDelivered, id))
}

func TestDeliveredWithoutStockStillDelivers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id := e.newOrder(t, alice)
	product := headphones
	_, err := e.orders.Update(ctx, id, asAdmin, services.OrderPatch{ProductID: &product})
	require.NoError(t, err)

	res, err := e.orders.AdvanceStatus(ctx, id, admin, "delivered", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, res.Order.Status)
	var short *domain.InsufficientStockError
	require.True(t, errors.As(res.DeductionErr, &short))
	assert.Equal(t, 0, short.Allocated)
}

func TestStaleWriteLoses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.newOrder(t, alice)
	repo := repos.NewOrderRepo(e.db)

	a, err := repo.Get(ctx, id)
	require.NoError(t, err)
	b := a

	a.Status = domain.StatusDelivered
	require.NoError(t, repo.CompareAndSwap(ctx, &a, a.Version))

	b.Status = domain.StatusDelivered
	err = repo.CompareAndSwap(ctx, &b, b.Version)
	assert.ErrorIs(t, err, domain.ErrStaleWrite)
}

func TestListOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.newOrder(t, alice)
	e.clock.Advance(time.Minute)
	second := e.quoted(t, alice)
	e.clock.Advance(time.Minute)
	e.newOrder(t, bob)

	tags := []string{"vip", "fragile"}
	_, err := e.orders.Update(ctx, first, asAdmin, services.OrderPatch{Tags: &tags})
	require.NoError(t, err)

	mine, err := e.orders.List(ctx, asAlice, repos.OrderFilter{CustomerID: bob})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second, mine[0].ID)

	all, err := e.orders.List(ctx, asAdmin, repos.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	quoted, err := e.orders.List(ctx, asAdmin, repos.OrderFilter{Status: domain.StatusQuoted})
	require.NoError(t, err)
	require.Len(t, quoted, 1)
	assert.Equal(t, second, quoted[0].ID)

	tagged, err := e.orders.List(ctx, asAdmin, repos.OrderFilter{Tags: []string{"vip", "fragile"}})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, first, tagged[0].ID)

	none, err := e.orders.List(ctx, asAdmin, repos.OrderFilter{Tags: []string{"vip", "oversize"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	plain := e.newOrder(t, alice)
	assert.ErrorIs(t, e.orders.Delete(ctx, plain, asAlice), domain.ErrForbidden)
	require.NoError(t, e.orders.Delete(ctx, plain, asAdmin))
	_, err := e.orders.Get(ctx, plain, asAdmin)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	paid := e.awaitingPayment(t, alice)
	_, err = e.payments.Create(ctx, paid, asAlice)
	require.NoError(t, err)
	assert.ErrorIs(t, e.orders.Delete(ctx, paid, asAdmin), domain.ErrOrderHasDependents)

	// stock taken for a delivered order keeps it alive even without payments
	e.lot(t, headphones, "A-01", 3)
	delivered := e.newOrder(t, alice)
	product := headphones
	_, err = e.orders.Update(ctx, delivered, asAdmin, services.OrderPatch{ProductID: &product})
	require.NoError(t, err)
	res, err := e.orders.AdvanceStatus(ctx, delivered, admin, "delivered", "", "")
	require.NoError(t, err)
	require.Len(t, res.Deducted, 1)
	pays, err := e.payments.ListForOrder(ctx, delivered, asAdmin)
	require.NoError(t, err)
	require.Empty(t, pays)
	assert.ErrorIs(t, e.orders.Delete(ctx, delivered, asAdmin), domain.ErrOrderHasDependents)
	hist, err := e.orders.History(ctx, delivered, asAdmin)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

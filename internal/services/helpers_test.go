package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"crossbuy/internal/notify"
	"crossbuy/internal/repos"
	"crossbuy/internal/services"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	alice = "u-alice"
	bob   = "u-bob"
	admin = "u-admin"

	headphones = "prod-headphones"
)

var (
	asAlice = services.Actor{ID: alice}
	asBob   = services.Actor{ID: bob}
	asAdmin = services.Actor{ID: admin, Admin: true}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	db       *sqlx.DB
	clock    *fakeClock
	rec      *notify.Recorder
	audit    *services.AuditTrail
	inv      *services.InventoryService
	orders   *services.OrderService
	payments *services.PaymentService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repos.OpenDB(":memory:", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clk := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	rec := &notify.Recorder{}

	audit := services.NewAuditTrail(repos.NewAuditRepo(db))
	audit.Now = clk.Now
	inv := services.NewInventoryService(repos.NewInventoryRepo(db), repos.NewProductRepo(db), audit)
	inv.Now = clk.Now
	orders := services.NewOrderService(repos.NewOrderRepo(db), repos.NewLockerRepo(db), inv, audit, rec)
	orders.Now = clk.Now
	payments := services.NewPaymentService(repos.NewPaymentRepo(db), orders, audit, rec, "CRC")
	payments.Now = clk.Now

	return &env{db: db, clock: clk, rec: rec, audit: audit, inv: inv, orders: orders, payments: payments}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (e *env) newOrder(t *testing.T, customer string) string {
	t.Helper()
	o, err := e.orders.Create(context.Background(), services.CreateOrderInput{
		CustomerID: customer,
		Link:       "https://www.amazon.com/dp/B0EXAMPLE",
		ItemName:   "Wireless Headphones",
	})
	require.NoError(t, err)
	return o.ID
}

// quoted prices the order the way the quotation engine would for a 100.00 electronics item.
func (e *env) quoted(t *testing.T, customer string) string {
	t.Helper()
	id := e.newOrder(t, customer)
	_, err := e.orders.Update(context.Background(), id, asAdmin, services.OrderPatch{
		ItemPrice: dec("100"), ShippingCost: dec("15"), Taxes: dec("14.95"), ServiceFee: dec("10"),
	})
	require.NoError(t, err)
	return id
}

func (e *env) awaitingPayment(t *testing.T, customer string) string {
	t.Helper()
	id := e.quoted(t, customer)
	_, err := e.orders.AcceptQuotation(context.Background(), id, customer)
	require.NoError(t, err)
	return id
}

func (e *env) lot(t *testing.T, productID, location string, qty int) string {
	t.Helper()
	rec, err := e.inv.CreateRecord(context.Background(), services.NewRecord{
		ProductID: productID, Location: location, Warehouse: "MIA-1", Quantity: qty, MinQuantity: 1,
	}, admin)
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	return rec.ID
}

package services_test

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"crossbuy/internal/domain"
	"crossbuy/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reCode = regexp.MustCompile(`^PAY-[0-9A-F]{8}$`)

func TestCreatePayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.awaitingPayment(t, alice)

	p, err := e.payments.Create(ctx, id, asAlice)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, domain.MethodSINPE, p.Method)
	assert.Equal(t, "CRC", p.Currency)
	assert.Equal(t, "139.95", p.Amount.StringFixed(2))
	assert.Regexp(t, reCode, p.Code)

	o, err := e.orders.Get(ctx, id, asAlice)
	require.NoError(t, err)
	assert.Equal(t, "pending", o.PaymentStatus)
	assert.Equal(t, domain.MethodSINPE, o.PaymentMethod)
	assert.Equal(t, 1, e.rec.Count(notify.PaymentCreated, id))
}

func TestCreatePaymentRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	notYet := e.quoted(t, alice)
	_, err := e.payments.Create(ctx, notYet, asAlice)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	id := e.awaitingPayment(t, alice)
	_, err = e.payments.Create(ctx, id, asBob)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.payments.Create(ctx, id, asAlice)
	require.NoError(t, err)
	_, err = e.payments.Create(ctx, id, asAlice)
	assert.ErrorIs(t, err, domain.ErrPendingPaymentExists)
}

func TestConcurrentPaymentCreationYieldsOnePending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.awaitingPayment(t, alice)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.payments.Create(ctx, id, asAlice); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrPendingPaymentExists)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)

	list, err := e.payments.ListForOrder(ctx, id, asAdmin)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConfirmPaymentMarksOrderPaid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.awaitingPayment(t, alice)
	p, err := e.payments.Create(ctx, id, asAlice)
	require.NoError(t, err)

	got, err := e.payments.Confirm(ctx, p.ID, admin, "SINPE-778812")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)

	o, err := e.orders.Get(ctx, id, asAlice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, o.Status)
	assert.Equal(t, "confirmed", o.PaymentStatus)

	hist, err := e.orders.History(ctx, id, asAlice)
	require.NoError(t, err)
	last := hist[len(hist)-1]
	assert.Equal(t, domain.StatusPaid, last.Status)
	assert.Contains(t, last.Note, p.Code)

	_, err = e.payments.Confirm(ctx, p.ID, admin, "again")
	assert.ErrorIs(t, err, domain.ErrPaymentNotPending)
	assert.Equal(t, 1, e.rec.Count(notify.PaymentConfirmed, id))
}

func TestConfirmIsAuditedEvenWhenOrderCannotBePaid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.awaitingPayment(t, alice)
	p, err := e.payments.Create(ctx, id, asAlice)
	require.NoError(t, err)

	_, err = e.db.Exec(`CREATE TRIGGER hold_paid BEFORE UPDATE ON orders
	  WHEN NEW.status = 'paid' AND OLD.status <> 'paid'
	  BEGIN SELECT RAISE(ABORT, 'order locked'); END`)
	require.NoError(t, err)

	got, err := e.payments.Confirm(ctx, p.ID, admin, "SINPE-990001")
	require.Error(t, err)
	assert.Equal(t, domain.PaymentConfirmed, got.Status)

	o, err := e.orders.Get(ctx, id, asAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentPending, o.Status)

	entries, err := e.audit.List(ctx, "payment", p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "payment.confirmed", entries[0].Action)
	assert.Equal(t, admin, entries[0].ActorID)
}

func TestFailedPaymentCannotBeConfirmed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.awaitingPayment(t, alice)
	p, err := e.payments.Create(ctx, id, asAlice)
	require.NoError(t, err)

	_, err = e.payments.Fail(ctx, p.ID, admin, "")
	assert.True(t, domain.IsValidation(err))

	failed, err := e.payments.Fail(ctx, p.ID, admin, "transfer not received")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, failed.Status)
	assert.Equal(t, "transfer not received", failed.FailureReason)

	_, err = e.payments.Confirm(ctx, p.ID, admin, "late")
	assert.ErrorIs(t, err, domain.ErrPaymentNotPending)

	o, err := e.orders.Get(ctx, id, asAlice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentPending, o.Status)
	assert.Equal(t, "failed", o.PaymentStatus)

	// the customer can try again
	_, err = e.payments.Create(ctx, id, asAlice)
	require.NoError(t, err)
}

func TestPaymentVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.awaitingPayment(t, alice)
	p, err := e.payments.Create(ctx, id, asAlice)
	require.NoError(t, err)

	_, err = e.payments.Get(ctx, p.ID, asBob)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.payments.ListForOrder(ctx, id, asBob)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := e.payments.Get(ctx, p.ID, asAlice)
	require.NoError(t, err)
	assert.Equal(t, p.Code, got.Code)
}

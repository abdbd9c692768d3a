package handlers

import (
	"crossbuy/internal/config"
	"crossbuy/internal/notify"
	"crossbuy/internal/repos"
	"crossbuy/internal/services"

	"github.com/jmoiron/sqlx"
)

type Deps struct {
	Auth *services.AuthService

	AuthHandler      *AuthHandler
	OrderHandler     *OrderHandler
	PaymentHandler   *PaymentHandler
	InventoryHandler *InventoryHandler
	QuotationHandler *QuotationHandler
	AdminHandler     *AdminHandler

	// LoginMax is how many login attempts one client gets per LoginWindow.
	LoginMax int
}

func NewDeps(db *sqlx.DB, cfg config.Config, n notify.Dispatcher) *Deps {
	userRepo := repos.NewUserRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	lockerRepo := repos.NewLockerRepo(db)
	paymentRepo := repos.NewPaymentRepo(db)
	invRepo := repos.NewInventoryRepo(db)
	prodRepo := repos.NewProductRepo(db)
	auditRepo := repos.NewAuditRepo(db)

	authSvc := services.NewAuthService(userRepo)
	auditSvc := services.NewAuditTrail(auditRepo)
	invSvc := services.NewInventoryService(invRepo, prodRepo, auditSvc)
	orderSvc := services.NewOrderService(orderRepo, lockerRepo, invSvc, auditSvc, n)
	paySvc := services.NewPaymentService(paymentRepo, orderSvc, auditSvc, n, cfg.Currency)

	return &Deps{
		Auth:             authSvc,
		AuthHandler:      &AuthHandler{Auth: authSvc},
		OrderHandler:     &OrderHandler{Orders: orderSvc, Payments: paySvc},
		PaymentHandler:   &PaymentHandler{Payments: paySvc},
		InventoryHandler: &InventoryHandler{Inv: invSvc},
		QuotationHandler: &QuotationHandler{Quoter: services.NewQuoter()},
		AdminHandler:     &AdminHandler{Orders: orderSvc, Audit: auditSvc},
		LoginMax:         5,
	}
}

package services

import (
	"context"
	"errors"
	"time"

	"crossbuy/internal/domain"
	"crossbuy/internal/log"
	"crossbuy/internal/repos"
	"crossbuy/internal/validate"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryService is the stock ledger: every quantity change is a movement, and a record's
// quantity always equals the sum of its movement deltas.
type InventoryService struct {
	Inv      *repos.InventoryRepo
	Products *repos.ProductRepo
	Audit    *AuditTrail
	Now      func() time.Time
	// MaxRetries bounds how often a lost version race is retried before ErrStaleWrite surfaces.
	MaxRetries int
}

func NewInventoryService(inv *repos.InventoryRepo, products *repos.ProductRepo, audit *AuditTrail) *InventoryService {
	return &InventoryService{Inv: inv, Products: products, Audit: audit, MaxRetries: 8}
}

func (s *InventoryService) now() time.Time { return clock(s.Now).now() }

func (s *InventoryService) retries() int {
	if s.MaxRetries <= 0 {
		return 1
	}
	return s.MaxRetries
}

type NewRecord struct {
	ProductID   string `json:"product_id"`
	Location    string `json:"location"`
	Warehouse   string `json:"warehouse"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"min_quantity"`
	MaxQuantity int    `json:"max_quantity"`
}

// CreateRecord opens a lot. A positive opening quantity is booked as an "in" movement.
func (s *InventoryService) CreateRecord(ctx context.Context, in NewRecord, actorID string) (domain.InventoryRecord, error) {
	loc, ok := validate.Name(in.Location)
	if !ok {
		return domain.InventoryRecord{}, domain.Invalid("location", "required")
	}
	wh, ok := validate.Name(in.Warehouse)
	if !ok {
		return domain.InventoryRecord{}, domain.Invalid("warehouse", "required")
	}
	if in.Quantity < 0 || in.MinQuantity < 0 || in.MaxQuantity < 0 {
		return domain.InventoryRecord{}, domain.Invalid("quantity", "must not be negative")
	}
	if in.MaxQuantity > 0 && in.MaxQuantity < in.MinQuantity {
		return domain.InventoryRecord{}, domain.Invalid("max_quantity", "must be at least min_quantity")
	}
	if _, err := s.Products.Get(ctx, in.ProductID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.InventoryRecord{}, domain.Invalid("product_id", "unknown product")
		}
		return domain.InventoryRecord{}, err
	}

	now := s.now()
	rec := domain.InventoryRecord{
		ID:          uuid.NewString(),
		ProductID:   in.ProductID,
		Location:    loc,
		Warehouse:   wh,
		Quantity:    in.Quantity,
		MinQuantity: in.MinQuantity,
		MaxQuantity: in.MaxQuantity,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var opening *domain.Movement
	if in.Quantity > 0 {
		rec.LastRestockedAt = &now
		opening = &domain.Movement{
			RecordID:  rec.ID,
			ProductID: rec.ProductID,
			Kind:      domain.MovementIn,
			Delta:     in.Quantity,
			Reason:    "opening balance",
			ActorID:   actorID,
			CreatedAt: now,
		}
	}
	if err := s.Inv.CreateRecord(ctx, &rec, opening); err != nil {
		return domain.InventoryRecord{}, err
	}

	s.Audit.Log(ctx, AuditInput{
		ActorID: actorID, EntityType: "inventory_record", EntityID: rec.ID,
		Action: "inventory.record.created", After: rec,
	})
	return rec, nil
}

type MovementInput struct {
	RecordID    string `json:"-"`
	Kind        string `json:"kind"`
	Quantity    int    `json:"quantity"`
	ReferenceID string `json:"reference_id"`
	Reason      string `json:"reason"`
	ActorID     string `json:"-"`
}

// RecordMovement books one movement against a lot. Quantity is a magnitude for every kind except
// adjustment, where its sign is the direction.
func (s *InventoryService) RecordMovement(ctx context.Context, in MovementInput) (domain.Movement, error) {
	kind, err := domain.ParseMovementKind(in.Kind)
	if err != nil {
		return domain.Movement{}, err
	}
	delta, err := kind.SignedDelta(in.Quantity)
	if err != nil {
		return domain.Movement{}, err
	}
	reason, ok := validate.Text(in.Reason, 500)
	if !ok {
		return domain.Movement{}, domain.Invalid("reason", "too long")
	}
	var ref *string
	if in.ReferenceID != "" {
		r := in.ReferenceID
		ref = &r
	}

	for attempt := 0; attempt < s.retries(); attempt++ {
		rec, err := s.Inv.GetRecord(ctx, in.RecordID)
		if err != nil {
			return domain.Movement{}, err
		}
		if rec.Quantity+delta < 0 {
			return domain.Movement{}, domain.ErrNegativeStock
		}
		m := domain.Movement{
			RecordID:    rec.ID,
			ProductID:   rec.ProductID,
			Kind:        kind,
			Delta:       delta,
			ReferenceID: ref,
			Reason:      reason,
			ActorID:     in.ActorID,
			CreatedAt:   s.now(),
		}
		err = s.Inv.ApplyMovement(ctx, &m, rec.Version)
		if errors.Is(err, domain.ErrStaleWrite) {
			continue
		}
		if err != nil {
			return domain.Movement{}, err
		}
		log.Info(nil, "inventory.movement", map[string]any{
			"record_id": m.RecordID, "kind": string(m.Kind), "delta": m.Delta, "actor_id": m.ActorID,
		})
		return m, nil
	}
	return domain.Movement{}, domain.ErrStaleWrite
}

// DeductForOrder consumes qty units of productID from the oldest lots first, one "out" movement per
// lot touched, each referencing the order. Units that earlier fulfillment movements took for the
// order are not taken twice, so a retry after a partial deduction only takes what is still missing. When stock runs
// out the movements already written stay and *domain.InsufficientStockError is returned with them.
func (s *InventoryService) DeductForOrder(ctx context.Context, orderID, productID string, qty int, actorID string) ([]domain.Movement, error) {
	if qty <= 0 {
		return nil, domain.Invalid("quantity", "must be positive")
	}

	already, err := s.Inv.FulfilledForOrder(ctx, orderID, productID)
	if err != nil {
		return nil, err
	}
	remaining := qty - already
	if remaining <= 0 {
		return nil, nil
	}

	ref := orderID
	out := []domain.Movement{}
	raced := false
	for attempt := 0; attempt < s.retries() && remaining > 0; attempt++ {
		lots, err := s.Inv.FIFOLots(ctx, productID)
		if err != nil {
			return out, err
		}
		raced = false
		for _, lot := range lots {
			take := min(lot.Quantity, remaining)
			m := domain.Movement{
				RecordID:    lot.ID,
				ProductID:   productID,
				Kind:        domain.MovementOut,
				Delta:       -take,
				ReferenceID: &ref,
				Reason:      "order fulfillment",
				Source:      domain.SourceFulfillment,
				ActorID:     actorID,
				CreatedAt:   s.now(),
			}
			err := s.Inv.ApplyMovement(ctx, &m, lot.Version)
			if errors.Is(err, domain.ErrStaleWrite) || errors.Is(err, domain.ErrNegativeStock) {
				// someone else moved this lot; re-read the lots and continue from there
				raced = true
				break
			}
			if err != nil {
				return out, err
			}
			out = append(out, m)
			remaining -= take
			if remaining == 0 {
				break
			}
		}
		if !raced {
			break
		}
	}

	if remaining > 0 && raced {
		return out, domain.ErrStaleWrite
	}
	if remaining > 0 {
		err := &domain.InsufficientStockError{ProductID: productID, Required: qty, Allocated: qty - remaining}
		log.Warn(nil, "inventory.deduct.insufficient", err, map[string]any{
			"order_id": orderID, "product_id": productID, "required": qty, "allocated": qty - remaining,
		})
		return out, err
	}
	log.Info(nil, "inventory.deduct", map[string]any{
		"order_id": orderID, "product_id": productID, "qty": qty, "lots": len(out),
	})
	return out, nil
}

func (s *InventoryService) LowStock(ctx context.Context) ([]domain.InventoryRecord, error) {
	return s.Inv.LowStock(ctx)
}

// DeleteRecord removes an empty lot; a lot that still holds stock is rejected.
func (s *InventoryService) DeleteRecord(ctx context.Context, id, actorID string) error {
	rec, err := s.Inv.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Quantity > 0 {
		return domain.ErrRecordNotEmpty
	}
	if err := s.Inv.DeleteRecord(ctx, id); err != nil {
		return err
	}
	s.Audit.Log(ctx, AuditInput{
		ActorID: actorID, EntityType: "inventory_record", EntityID: id,
		Action: "inventory.record.deleted", Before: rec,
	})
	return nil
}

func (s *InventoryService) GetRecord(ctx context.Context, id string) (domain.InventoryRecord, error) {
	return s.Inv.GetRecord(ctx, id)
}

func (s *InventoryService) ListRecords(ctx context.Context, productID string) ([]domain.InventoryRecord, error) {
	return s.Inv.ListRecords(ctx, productID)
}

func (s *InventoryService) Movements(ctx context.Context, recordID string) ([]domain.Movement, error) {
	return s.Inv.Movements(ctx, recordID)
}

type Reconciliation struct {
	RecordID  string `json:"record_id"`
	Quantity  int    `json:"quantity"`
	LedgerSum int    `json:"ledger_sum"`
	Drift     int    `json:"drift"`
	OK        bool   `json:"ok"`
}

// Reconcile compares a lot's quantity with what its movements add up to.
func (s *InventoryService) Reconcile(ctx context.Context, recordID string) (Reconciliation, error) {
	rec, err := s.Inv.GetRecord(ctx, recordID)
	if err != nil {
		return Reconciliation{}, err
	}
	sum, err := s.Inv.LedgerSum(ctx, recordID)
	if err != nil {
		return Reconciliation{}, err
	}
	r := Reconciliation{RecordID: rec.ID, Quantity: rec.Quantity, LedgerSum: sum, Drift: rec.Quantity - sum}
	r.OK = r.Drift == 0
	if !r.OK {
		log.Warn(nil, "inventory.reconcile.drift", nil, map[string]any{"record_id": rec.ID, "drift": r.Drift})
	}
	return r, nil
}

type NewProduct struct {
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Cost  decimal.Decimal `json:"cost"`
	Price decimal.Decimal `json:"price"`
}

func (s *InventoryService) CreateProduct(ctx context.Context, in NewProduct, actorID string) (domain.Product, error) {
	sku, ok := validate.SKU(in.SKU)
	if !ok {
		return domain.Product{}, domain.Invalid("sku", "2-40 letters, digits or dashes")
	}
	name, ok := validate.Name(in.Name)
	if !ok {
		return domain.Product{}, domain.Invalid("name", "required")
	}
	if in.Cost.IsNegative() || in.Price.IsNegative() {
		return domain.Product{}, domain.Invalid("price", "must not be negative")
	}
	p := domain.Product{
		ID:        uuid.NewString(),
		SKU:       sku,
		Name:      name,
		Cost:      in.Cost.Round(2),
		Price:     in.Price.Round(2),
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := s.Products.Create(ctx, &p); err != nil {
		return domain.Product{}, err
	}
	s.Audit.Log(ctx, AuditInput{
		ActorID: actorID, EntityType: "product", EntityID: p.ID, Action: "product.created", After: p,
	})
	return p, nil
}

func (s *InventoryService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.Products.List(ctx, false)
}

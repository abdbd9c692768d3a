package services

import (
	"context"
	"encoding/json"
	"time"

	"crossbuy/internal/domain"
	"crossbuy/internal/log"
	"crossbuy/internal/repos"

	"github.com/google/uuid"
)

// AuditTrail records administrative mutations. Writing is best-effort: a failed insert is logged
// and never fails the operation being audited.
type AuditTrail struct {
	Repo *repos.AuditRepo
	Now  func() time.Time
}

func NewAuditTrail(repo *repos.AuditRepo) *AuditTrail { return &AuditTrail{Repo: repo} }

type AuditInput struct {
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	Before     any
	After      any
	Notes      string
}

func (a *AuditTrail) Log(ctx context.Context, in AuditInput) {
	e := domain.AuditEntry{
		ID:         uuid.NewString(),
		ActorID:    in.ActorID,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Action:     in.Action,
		Before:     snapshot(in.Before),
		After:      snapshot(in.After),
		Notes:      in.Notes,
		CreatedAt:  clock(a.Now).now(),
	}
	if err := a.Repo.Insert(ctx, &e); err != nil {
		log.Error(nil, "audit.write_failed", err, map[string]any{
			"entity_type": in.EntityType, "entity_id": in.EntityID, "action": in.Action,
		})
		return
	}
	log.Audit(nil, in.Action, map[string]any{
		"actor_id": in.ActorID, "entity_type": in.EntityType, "entity_id": in.EntityID,
	})
}

func (a *AuditTrail) List(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	return a.Repo.List(ctx, entityType, entityID, 200)
}

func snapshot(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

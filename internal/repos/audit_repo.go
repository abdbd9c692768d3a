package repos

import (
	"context"

	"crossbuy/internal/domain"

	"github.com/jmoiron/sqlx"
)

type AuditRepo struct{ db *sqlx.DB }

func NewAuditRepo(db *sqlx.DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO audit_logs (id, actor_id, entity_type, entity_id, action, before_json, after_json, notes, created_at)
	  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), e.ID, e.ActorID, e.EntityType, e.EntityID, e.Action, e.Before, e.After, e.Notes, e.CreatedAt)
	return err
}

// List returns the newest entries first. Empty entityType/entityID match everything.
func (r *AuditRepo) List(ctx context.Context, entityType, entityID string, limit int) ([]domain.AuditEntry, error) {
	where, args := `1 = 1`, []any{}
	if entityType != "" {
		where += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	if entityID != "" {
		where += ` AND entity_id = ?`
		args = append(args, entityID)
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	args = append(args, limit)

	out := []domain.AuditEntry{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
	  SELECT id, actor_id, entity_type, entity_id, action, before_json, after_json, notes, created_at
	  FROM audit_logs
	  WHERE `+where+`
	  ORDER BY created_at DESC, id DESC
	  LIMIT ?
	`), args...)
	return out, err
}

package auditrepo

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/pg"
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

// Insert appends an audit record. Records are never updated or deleted.
func (r *Repository) Insert(ctx context.Context, record *domain.AuditRecord) (*domain.AuditRecord, error) {
	payload := record.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("failed to encode audit payload", zap.String("action", record.Action), zap.Error(err))
		return nil, err
	}

	query := `
		INSERT INTO audit_logs (actor_id, action, object_type, object_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	result := *record
	result.Payload = payload
	err = r.db.QueryRow(ctx, query, record.ActorID, record.Action, record.ObjectType, record.ObjectID, raw).
		Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		zap.L().Error("failed to insert audit record",
			zap.String("action", record.Action), zap.Int64("object_id", record.ObjectID), zap.Error(err))
		return nil, err
	}
	return &result, nil
}

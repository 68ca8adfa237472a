package auditservice

import (
	"context"

	"go.uber.org/zap"

	"github.com/GlebRadaev/walletledger/internal/domain"
)

//go:generate mockgen -source=auditservice.go -destination=mock_auditservice.go -package=auditservice Repo

type Repo interface {
	Insert(ctx context.Context, record *domain.AuditRecord) (*domain.AuditRecord, error)
}

type Service struct {
	repo Repo
}

func New(repo Repo) *Service {
	return &Service{
		repo: repo,
	}
}

// Record appends an audit entry for an action taken by actorID on an object.
func (s *Service) Record(
	ctx context.Context, actorID int64, action, objectType string, objectID int64, payload map[string]any,
) error {
	_, err := s.repo.Insert(ctx, &domain.AuditRecord{
		ActorID:    actorID,
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
		Payload:    payload,
	})
	if err != nil {
		zap.L().Error("failed to record audit entry",
			zap.Int64("actor_id", actorID), zap.String("action", action), zap.Int64("object_id", objectID), zap.Error(err))
		return err
	}
	return nil
}

package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
)

// NotificationService emits migration notices. The campus mail relay is not
// reachable from this service yet, so notices are written to the structured
// log where the ops pipeline picks them up.
type NotificationService struct {
	logger *zap.Logger
}

func NewNotificationService(logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{logger: logger}
}

func (s *NotificationService) SendMigrationNotice(ctx context.Context, reg *models.Registration) error {
	s.logger.Info("migration notice",
		zap.String("registration_id", reg.ID),
		zap.String("registration_number", reg.RegistrationNumber),
		zap.String("owner_user_id", reg.OwnerUserID),
	)
	return nil
}

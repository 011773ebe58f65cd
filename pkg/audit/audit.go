package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

// LogConsultationHistory inserts an audit record into
// consultation_histories. Used to track important status changes and
// actions on a consultation. Errors are ignored on purpose (best-effort
// logging).
func LogConsultationHistory(
	ctx context.Context,
	db *gorm.DB,
	consultationID, actorID uuid.UUID,
	action string,
	oldS, newS models.ConsultationStatus,
	reason string,
) {
	_ = db.WithContext(ctx).Create(&models.ConsultationHistory{
		ConsultationID: consultationID,
		ActorID:        actorID,
		Action:         action,
		OldStatus:      oldS,
		NewStatus:      newS,
		Reason:         reason,
	}).Error
}

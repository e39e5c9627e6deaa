package repositories

import (
	"context"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

// ExtractionRunRepository stores the audit trail of extraction calls.
type ExtractionRunRepository interface {
	Create(ctx context.Context, run *entities.ExtractionRun) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*entities.ExtractionRun, error)
}

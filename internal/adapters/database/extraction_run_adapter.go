package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/domain/repositories"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/clinicalorders/pkg/errors"
)

const (
	extractionRunsTable = "extraction_runs"
	defaultRunsLimit    = 50
	maxRunsLimit        = 500
)

// ExtractionRunAdapter implements ExtractionRunRepository in Postgres.
type ExtractionRunAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewExtractionRunAdapter creates a new extraction run adapter.
func NewExtractionRunAdapter(client *postgres.Client) repositories.ExtractionRunRepository {
	return &ExtractionRunAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts an extraction run record.
func (a *ExtractionRunAdapter) Create(ctx context.Context, run *entities.ExtractionRun) error {
	if run == nil {
		return apperrors.NewInternalError("extraction run is nil", fmt.Errorf("extraction run is nil"))
	}

	reasons := run.DropReasons
	if reasons == nil {
		reasons = []string{}
	}

	record := goqu.Record{
		"id":               run.ID,
		"session_id":       run.SessionID,
		"engine":           run.Engine,
		"transcript_chars": run.TranscriptChars,
		"medications":      run.Medications,
		"labs":             run.Labs,
		"dropped":          run.Dropped,
		"drop_reasons":     pq.Array(reasons),
		"duration_ms":      run.DurationMs,
		"error":            sql.NullString{String: run.Error, Valid: run.Error != ""},
		"created_at":       run.CreatedAt,
	}

	query, args, err := a.db.Insert(extractionRunsTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build extraction run insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create extraction run", err)
	}

	return nil
}

// ListBySession returns the newest runs of a session first.
func (a *ExtractionRunAdapter) ListBySession(ctx context.Context, sessionID string, limit int) ([]*entities.ExtractionRun, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	query, args, err := a.db.Select(
		"id", "session_id", "engine", "transcript_chars", "medications", "labs",
		"dropped", "drop_reasons", "duration_ms", "error", "created_at",
	).From(extractionRunsTable).
		Where(goqu.Ex{"session_id": sessionID}).
		Order(goqu.I("created_at").Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build extraction runs query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list extraction runs", err)
	}
	defer rows.Close()

	runs := []*entities.ExtractionRun{}
	for rows.Next() {
		run := &entities.ExtractionRun{}
		var runErr sql.NullString

		err := rows.Scan(
			&run.ID,
			&run.SessionID,
			&run.Engine,
			&run.TranscriptChars,
			&run.Medications,
			&run.Labs,
			&run.Dropped,
			pq.Array(&run.DropReasons),
			&run.DurationMs,
			&runErr,
			&run.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan extraction run", err)
		}
		run.Error = runErr.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate extraction runs", err)
	}

	return runs, nil
}

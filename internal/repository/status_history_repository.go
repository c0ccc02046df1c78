package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/rs/zerolog"
)

type StatusHistoryRepository interface {
	ListByOwner(ctx context.Context, ownerType models.OwnerType, ownerID string) ([]models.StatusHistoryEntry, error)
}

type statusHistoryRepository struct {
	*PostgresRepository
}

func NewStatusHistoryRepository(db *sql.DB, logger zerolog.Logger) StatusHistoryRepository {
	return &statusHistoryRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

// appendHistory inserts e inside tx. The stored change_date is pushed past
// the owner's latest entry when clocks collide, so ordering by change_date
// always matches insertion order. e.ChangeDate is updated to the stored value.
func appendHistory(ctx context.Context, tx *sql.Tx, e *models.StatusHistoryEntry) error {
	query := `
		INSERT INTO status_history (id, owner_type, owner_id, old_status, new_status, change_date, note, changed_by)
		SELECT $1, $2, $3, $4, $5,
			GREATEST(
				$6::timestamptz,
				COALESCE(
					(SELECT MAX(change_date) FROM status_history WHERE owner_type = $2 AND owner_id = $3) + INTERVAL '1 microsecond',
					$6::timestamptz
				)
			),
			$7, $8
		RETURNING change_date
	`

	err := tx.QueryRowContext(ctx, query,
		e.ID,
		e.OwnerType,
		e.OwnerID,
		nullString(e.OldStatus),
		e.NewStatus,
		e.ChangeDate,
		nullString(e.Note),
		e.ChangedBy,
	).Scan(&e.ChangeDate)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", mapError(err))
	}

	return nil
}

func (r *statusHistoryRepository) ListByOwner(ctx context.Context, ownerType models.OwnerType, ownerID string) ([]models.StatusHistoryEntry, error) {
	query := `
		SELECT id, owner_type, owner_id, old_status, new_status, change_date, note, changed_by
		FROM status_history
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY change_date ASC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerType, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.StatusHistoryEntry, 0)
	for rows.Next() {
		var (
			e         models.StatusHistoryEntry
			oldStatus sql.NullString
			note      sql.NullString
		)
		err := rows.Scan(
			&e.ID,
			&e.OwnerType,
			&e.OwnerID,
			&oldStatus,
			&e.NewStatus,
			&e.ChangeDate,
			&note,
			&e.ChangedBy,
		)
		if err != nil {
			return nil, err
		}
		e.OldStatus = stringPtr(oldStatus)
		e.Note = stringPtr(note)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

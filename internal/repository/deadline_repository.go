package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/rs/zerolog"
)

type DeadlineRepository interface {
	// ListUpcomingSessions returns every session with at least one deadline
	// on or after since, each with its full deadline set.
	ListUpcomingSessions(ctx context.Context, since time.Time) ([]models.GraduationSessionWithDeadlines, error)
	CreateSession(ctx context.Context, session *models.GraduationSessionWithDeadlines) error
}

type deadlineRepository struct {
	*PostgresRepository
}

func NewDeadlineRepository(db *sql.DB, logger zerolog.Logger) DeadlineRepository {
	return &deadlineRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *deadlineRepository) ListUpcomingSessions(ctx context.Context, since time.Time) ([]models.GraduationSessionWithDeadlines, error) {
	query := `
		SELECT s.id, s.name, s.name_en, s.start_date, s.end_date,
			d.id, d.deadline_type, d.graduation_session_id, d.deadline_date
		FROM graduation_sessions s
		JOIN deadlines d ON d.graduation_session_id = s.id
		WHERE EXISTS (
			SELECT 1 FROM deadlines f
			WHERE f.graduation_session_id = s.id AND f.deadline_date >= $1::date
		)
		ORDER BY s.start_date, s.id, d.deadline_date
	`

	rows, err := r.db.QueryContext(ctx, query, since.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.GraduationSessionWithDeadlines, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			s models.GraduationSession
			d models.Deadline
		)
		err := rows.Scan(
			&s.ID, &s.Name, &s.NameEn, &s.StartDate, &s.EndDate,
			&d.ID, &d.DeadlineType, &d.GraduationSessionID, &d.DeadlineDate,
		)
		if err != nil {
			return nil, err
		}

		i, ok := index[s.ID]
		if !ok {
			sessions = append(sessions, models.GraduationSessionWithDeadlines{GraduationSession: s})
			i = len(sessions) - 1
			index[s.ID] = i
		}
		sessions[i].Deadlines = append(sessions[i].Deadlines, d)
	}

	return sessions, rows.Err()
}

func (r *deadlineRepository) CreateSession(ctx context.Context, session *models.GraduationSessionWithDeadlines) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO graduation_sessions (id, name, name_en, start_date, end_date) VALUES ($1, $2, $3, $4, $5)`,
			session.ID, session.Name, session.NameEn, session.StartDate, session.EndDate,
		)
		if err != nil {
			return fmt.Errorf("failed to insert graduation session: %w", mapError(err))
		}

		for _, d := range session.Deadlines {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO deadlines (id, deadline_type, graduation_session_id, deadline_date) VALUES ($1, $2, $3, $4)`,
				d.ID, d.DeadlineType, session.ID, d.DeadlineDate,
			)
			if err != nil {
				return fmt.Errorf("failed to insert deadline %s: %w", d.DeadlineType, mapError(err))
			}
		}

		return nil
	})
}

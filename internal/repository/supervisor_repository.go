package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

type SupervisorRepository interface {
	Create(ctx context.Context, supervisor *models.Supervisor) error
	GetByID(ctx context.Context, id string) (*models.Supervisor, error)
	// Missing returns the ids from the input that have no supervisor row.
	Missing(ctx context.Context, ids []string) ([]string, error)
}

type supervisorRepository struct {
	*PostgresRepository
}

func NewSupervisorRepository(db *sql.DB, logger zerolog.Logger) SupervisorRepository {
	return &supervisorRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *supervisorRepository) Create(ctx context.Context, s *models.Supervisor) error {
	query := `
		INSERT INTO supervisors (id, first_name, last_name, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, s.ID, s.FirstName, s.LastName, s.Email, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert supervisor: %w", mapError(err))
	}
	return nil
}

func (r *supervisorRepository) GetByID(ctx context.Context, id string) (*models.Supervisor, error) {
	query := `SELECT id, first_name, last_name, email, created_at FROM supervisors WHERE id = $1`

	s := &models.Supervisor{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return s, err
}

func (r *supervisorRepository) Missing(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT wanted.id
		FROM unnest($1::text[]) AS wanted(id)
		WHERE NOT EXISTS (SELECT 1 FROM supervisors s WHERE s.id = wanted.id)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}

	return missing, rows.Err()
}

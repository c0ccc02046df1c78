package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

type ApplicationRepository interface {
	// Create stores a new application together with its first history entry.
	Create(ctx context.Context, app *models.Application, entry *models.StatusHistoryEntry) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Application, error)
	// Transition moves the application from one status to another and
	// appends entry. It returns models.ErrStaleStatus when the stored status
	// is no longer from.
	Transition(ctx context.Context, id string, from, to models.ApplicationStatus, entry *models.StatusHistoryEntry) (*models.Application, error)
	// HasOpen reports whether the student has a pending application or an
	// approved one that has not been turned into a thesis yet.
	HasOpen(ctx context.Context, studentID string) (bool, error)
}

type applicationRepository struct {
	*PostgresRepository
}

func NewApplicationRepository(db *sql.DB, logger zerolog.Logger) ApplicationRepository {
	return &applicationRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const applicationColumns = `id, student_id, supervisor_id, co_supervisor_ids, company_id, topic, description, submission_date, status, updated_at`

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app         models.Application
		coSup       pq.StringArray
		companyID   sql.NullString
		description sql.NullString
	)

	err := row.Scan(
		&app.ID,
		&app.StudentID,
		&app.SupervisorID,
		&coSup,
		&companyID,
		&app.Topic,
		&description,
		&app.SubmissionDate,
		&app.Status,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	app.CoSupervisorIDs = []string(coSup)
	if app.CoSupervisorIDs == nil {
		app.CoSupervisorIDs = []string{}
	}
	app.CompanyID = stringPtr(companyID)
	app.Description = stringPtr(description)

	return &app, nil
}

func (r *applicationRepository) Create(ctx context.Context, app *models.Application, entry *models.StatusHistoryEntry) error {
	query := `
		INSERT INTO thesis_applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			app.ID,
			app.StudentID,
			app.SupervisorID,
			pq.Array(app.CoSupervisorIDs),
			nullString(app.CompanyID),
			app.Topic,
			nullString(app.Description),
			app.SubmissionDate,
			app.Status,
			app.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert application: %w", mapError(err))
		}

		return appendHistory(ctx, tx, entry)
	})
}

func (r *applicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM thesis_applications WHERE id = $1`

	app, err := scanApplication(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return app, err
}

func (r *applicationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM thesis_applications
		WHERE student_id = $1
		ORDER BY submission_date DESC
	`

	rows, err := r.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apps := make([]models.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}

	return apps, rows.Err()
}

func (r *applicationRepository) Transition(ctx context.Context, id string, from, to models.ApplicationStatus, entry *models.StatusHistoryEntry) (*models.Application, error) {
	query := `
		UPDATE thesis_applications
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + applicationColumns

	var app *models.Application
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		app, err = scanApplication(tx.QueryRowContext(ctx, query, id, from, to, time.Now().UTC()))
		if err == sql.ErrNoRows {
			return models.ErrStaleStatus
		}
		if err != nil {
			return fmt.Errorf("failed to update application status: %w", mapError(err))
		}

		return appendHistory(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("application_id", id).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Application status persisted")

	return app, nil
}

func (r *applicationRepository) HasOpen(ctx context.Context, studentID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM thesis_applications a
			WHERE a.student_id = $1
			  AND (
				a.status = 'pending'
				OR (a.status = 'approved' AND NOT EXISTS (SELECT 1 FROM theses t WHERE t.application_id = a.id))
			  )
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, studentID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

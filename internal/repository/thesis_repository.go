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

type ThesisRepository interface {
	// Create stores a thesis started from an approved application plus its
	// first history entry. It returns models.ErrStaleStatus if the
	// application is no longer approved and models.ErrUniqueViolation if
	// the application already has a thesis.
	Create(ctx context.Context, thesis *models.Thesis, entry *models.StatusHistoryEntry) error
	GetByID(ctx context.Context, id string) (*models.Thesis, error)
	GetByApplicationID(ctx context.Context, applicationID string) (*models.Thesis, error)
	GetActiveByStudent(ctx context.Context, studentID string) (*models.Thesis, error)
	// Save writes every mutable column of thesis, including its embargo,
	// provided the stored status is still from and the stored updated_at is
	// still thesis.UpdatedAt as loaded. Otherwise it returns ErrStaleStatus.
	// A non-nil entry is appended to the history in the same transaction.
	// On success thesis.UpdatedAt holds the new version.
	Save(ctx context.Context, thesis *models.Thesis, from models.ThesisStatus, entry *models.StatusHistoryEntry) error
}

type thesisRepository struct {
	*PostgresRepository
}

func NewThesisRepository(db *sql.DB, logger zerolog.Logger) ThesisRepository {
	return &thesisRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const thesisColumns = `id, application_id, student_id, supervisor_id, co_supervisor_ids, company_id, topic,
	title, title_en, abstract, abstract_en, language, license_id, status,
	thesis_start_date, thesis_conclusion_request_date, thesis_conclusion_confirmation_date, thesis_draft_date,
	thesis_file_path, summary_file_path, resume_file_path, additional_zip_path, final_thesis_file_path,
	updated_at`

const terminalThesisStatuses = `('cancel_approved', 'done')`

func scanThesis(row rowScanner) (*models.Thesis, error) {
	var (
		t                                        models.Thesis
		coSup                                    pq.StringArray
		companyID, title, titleEn                sql.NullString
		abstract, abstractEn, language           sql.NullString
		licenseID                                sql.NullInt64
		requestDate, confirmationDate, draftDate sql.NullTime
		thesisFile, summaryFile, resumeFile      sql.NullString
		zipFile, finalFile                       sql.NullString
	)

	err := row.Scan(
		&t.ID,
		&t.ApplicationID,
		&t.StudentID,
		&t.SupervisorID,
		&coSup,
		&companyID,
		&t.Topic,
		&title,
		&titleEn,
		&abstract,
		&abstractEn,
		&language,
		&licenseID,
		&t.Status,
		&t.ThesisStartDate,
		&requestDate,
		&confirmationDate,
		&draftDate,
		&thesisFile,
		&summaryFile,
		&resumeFile,
		&zipFile,
		&finalFile,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.CoSupervisorIDs = []string(coSup)
	if t.CoSupervisorIDs == nil {
		t.CoSupervisorIDs = []string{}
	}
	t.CompanyID = stringPtr(companyID)
	t.Title = stringPtr(title)
	t.TitleEn = stringPtr(titleEn)
	t.Abstract = stringPtr(abstract)
	t.AbstractEn = stringPtr(abstractEn)
	t.Language = stringPtr(language)
	if licenseID.Valid {
		id := int(licenseID.Int64)
		t.LicenseID = &id
	}
	t.ThesisConclusionRequestDate = timePtr(requestDate)
	t.ThesisConclusionConfirmationDate = timePtr(confirmationDate)
	t.ThesisDraftDate = timePtr(draftDate)
	t.ThesisFilePath = stringPtr(thesisFile)
	t.SummaryFilePath = stringPtr(summaryFile)
	t.ResumeFilePath = stringPtr(resumeFile)
	t.AdditionalZipPath = stringPtr(zipFile)
	t.FinalThesisFilePath = stringPtr(finalFile)

	return &t, nil
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func (r *thesisRepository) Create(ctx context.Context, thesis *models.Thesis, entry *models.StatusHistoryEntry) error {
	lockQuery := `SELECT status FROM thesis_applications WHERE id = $1 FOR UPDATE`
	insertQuery := `
		INSERT INTO theses (id, application_id, student_id, supervisor_id, co_supervisor_ids, company_id, topic,
			status, thesis_start_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	// updated_at is the optimistic version checked by Save; keep it at the
	// precision PostgreSQL stores.
	thesis.UpdatedAt = thesis.UpdatedAt.UTC().Truncate(time.Microsecond)

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var status models.ApplicationStatus
		err := tx.QueryRowContext(ctx, lockQuery, thesis.ApplicationID).Scan(&status)
		if err == sql.ErrNoRows {
			return models.ErrStaleStatus
		}
		if err != nil {
			return fmt.Errorf("failed to lock application: %w", err)
		}
		if status != models.ApplicationStatusApproved {
			return models.ErrStaleStatus
		}

		_, err = tx.ExecContext(ctx, insertQuery,
			thesis.ID,
			thesis.ApplicationID,
			thesis.StudentID,
			thesis.SupervisorID,
			pq.Array(thesis.CoSupervisorIDs),
			nullString(thesis.CompanyID),
			thesis.Topic,
			thesis.Status,
			thesis.ThesisStartDate,
			thesis.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert thesis: %w", mapError(err))
		}

		return appendHistory(ctx, tx, entry)
	})
}

func (r *thesisRepository) get(ctx context.Context, where string, arg any) (*models.Thesis, error) {
	query := `SELECT ` + thesisColumns + ` FROM theses WHERE ` + where

	t, err := scanThesis(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.Embargo, err = r.loadEmbargo(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (r *thesisRepository) GetByID(ctx context.Context, id string) (*models.Thesis, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *thesisRepository) GetByApplicationID(ctx context.Context, applicationID string) (*models.Thesis, error) {
	return r.get(ctx, `application_id = $1`, applicationID)
}

func (r *thesisRepository) GetActiveByStudent(ctx context.Context, studentID string) (*models.Thesis, error) {
	return r.get(ctx, `student_id = $1 AND status NOT IN `+terminalThesisStatuses+` ORDER BY thesis_start_date DESC LIMIT 1`, studentID)
}

func (r *thesisRepository) loadEmbargo(ctx context.Context, thesisID string) (*models.Embargo, error) {
	var (
		e     models.Embargo
		other sql.NullString
		ids   pq.Int64Array
	)

	query := `
		SELECT e.duration, e.other_motivation,
			COALESCE(ARRAY(SELECT m.motivation_id FROM thesis_embargo_motivations m
				WHERE m.thesis_id = e.thesis_id ORDER BY m.motivation_id), '{}')
		FROM thesis_embargoes e
		WHERE e.thesis_id = $1
	`

	err := r.db.QueryRowContext(ctx, query, thesisID).Scan(&e.Duration, &other, &ids)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load embargo: %w", err)
	}

	e.OtherMotivation = stringPtr(other)
	e.MotivationIDs = make([]int, 0, len(ids))
	for _, id := range ids {
		e.MotivationIDs = append(e.MotivationIDs, int(id))
	}

	return &e, nil
}

func (r *thesisRepository) Save(ctx context.Context, t *models.Thesis, from models.ThesisStatus, entry *models.StatusHistoryEntry) error {
	query := `
		UPDATE theses SET
			supervisor_id = $3,
			co_supervisor_ids = $4,
			title = $5,
			title_en = $6,
			abstract = $7,
			abstract_en = $8,
			language = $9,
			license_id = $10,
			status = $11,
			thesis_conclusion_request_date = $12,
			thesis_conclusion_confirmation_date = $13,
			thesis_draft_date = $14,
			thesis_file_path = $15,
			summary_file_path = $16,
			resume_file_path = $17,
			additional_zip_path = $18,
			final_thesis_file_path = $19,
			updated_at = $20
		WHERE id = $1 AND status = $2 AND updated_at = $21
	`

	loaded := t.UpdatedAt
	updatedAt := nextVersion(loaded)

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			t.ID,
			from,
			t.SupervisorID,
			pq.Array(t.CoSupervisorIDs),
			nullString(t.Title),
			nullString(t.TitleEn),
			nullString(t.Abstract),
			nullString(t.AbstractEn),
			nullString(t.Language),
			nullInt(t.LicenseID),
			t.Status,
			nullTime(t.ThesisConclusionRequestDate),
			nullTime(t.ThesisConclusionConfirmationDate),
			nullTime(t.ThesisDraftDate),
			nullString(t.ThesisFilePath),
			nullString(t.SummaryFilePath),
			nullString(t.ResumeFilePath),
			nullString(t.AdditionalZipPath),
			nullString(t.FinalThesisFilePath),
			updatedAt,
			loaded,
		)
		if err != nil {
			return fmt.Errorf("failed to update thesis: %w", mapError(err))
		}
		if err := expectOneRow(res); err != nil {
			return err
		}

		if err := replaceEmbargo(ctx, tx, t.ID, t.Embargo); err != nil {
			return err
		}

		if entry == nil {
			return nil
		}
		return appendHistory(ctx, tx, entry)
	})
	if err != nil {
		return err
	}
	t.UpdatedAt = updatedAt

	r.logger.Debug().
		Str("thesis_id", t.ID).
		Str("from", string(from)).
		Str("status", string(t.Status)).
		Msg("Thesis persisted")

	return nil
}

// nextVersion returns a fresh updated_at that differs from loaded.
func nextVersion(loaded time.Time) time.Time {
	next := time.Now().UTC().Truncate(time.Microsecond)
	if !next.After(loaded) {
		next = loaded.Add(time.Microsecond)
	}
	return next
}

// replaceEmbargo deletes the stored embargo and writes e when non-nil.
func replaceEmbargo(ctx context.Context, tx *sql.Tx, thesisID string, e *models.Embargo) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM thesis_embargoes WHERE thesis_id = $1`, thesisID); err != nil {
		return fmt.Errorf("failed to clear embargo: %w", err)
	}
	if e == nil {
		return nil
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO thesis_embargoes (thesis_id, duration, other_motivation) VALUES ($1, $2, $3)`,
		thesisID, e.Duration, nullString(e.OtherMotivation),
	)
	if err != nil {
		return fmt.Errorf("failed to insert embargo: %w", err)
	}

	for _, id := range e.MotivationIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO thesis_embargo_motivations (thesis_id, motivation_id) VALUES ($1, $2)`,
			thesisID, id,
		)
		if err != nil {
			return fmt.Errorf("failed to insert embargo motivation %d: %w", id, err)
		}
	}

	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/database"
	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("thesis_test"),
		postgres.WithUsername("thesis_test"),
		postgres.WithPassword("thesis_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	migrationDB, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	migrator, err := database.NewMigratorWithDB(migrationDB, "file://../../migrations")
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

type repos struct {
	apps        ApplicationRepository
	theses      ThesisRepository
	history     StatusHistoryRepository
	deadlines   DeadlineRepository
	supervisors SupervisorRepository
}

func newRepos(db *sql.DB) repos {
	log := zerolog.Nop()
	return repos{
		apps:        NewApplicationRepository(db, log),
		theses:      NewThesisRepository(db, log),
		history:     NewStatusHistoryRepository(db, log),
		deadlines:   NewDeadlineRepository(db, log),
		supervisors: NewSupervisorRepository(db, log),
	}
}

func historyEntry(owner models.OwnerType, ownerID string, old *string, next string, at time.Time) *models.StatusHistoryEntry {
	return &models.StatusHistoryEntry{
		ID:         uuid.New().String(),
		OwnerType:  owner,
		OwnerID:    ownerID,
		OldStatus:  old,
		NewStatus:  next,
		ChangeDate: at,
		ChangedBy:  "test",
	}
}

func ptr[T any](v T) *T { return &v }

func newApplication(studentID, supervisorID string) *models.Application {
	now := time.Now().UTC()
	return &models.Application{
		ID:              uuid.New().String(),
		StudentID:       studentID,
		SupervisorID:    supervisorID,
		CoSupervisorIDs: []string{},
		Topic:           "Consensus protocols",
		SubmissionDate:  now,
		Status:          models.ApplicationStatusPending,
		UpdatedAt:       now,
	}
}

func TestPostgresRepositories(t *testing.T) {
	db := setupDB(t)
	r := newRepos(db)
	ctx := context.Background()

	sup := &models.Supervisor{ID: "p100", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.org", CreatedAt: time.Now().UTC()}
	if err := r.supervisors.Create(ctx, sup); err != nil {
		t.Fatalf("create supervisor: %v", err)
	}
	if err := r.supervisors.Create(ctx, &models.Supervisor{ID: "p101", FirstName: "Alan", LastName: "Turing", Email: "alan@example.org", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create supervisor: %v", err)
	}

	t.Run("missing supervisors", func(t *testing.T) {
		missing, err := r.supervisors.Missing(ctx, []string{"p100", "nobody"})
		if err != nil {
			t.Fatal(err)
		}
		if len(missing) != 1 || missing[0] != "nobody" {
			t.Fatalf("missing = %v", missing)
		}
	})

	t.Run("one pending application per student", func(t *testing.T) {
		first := newApplication("s-pending", sup.ID)
		if err := r.apps.Create(ctx, first, historyEntry(models.OwnerTypeApplication, first.ID, nil, "pending", first.SubmissionDate)); err != nil {
			t.Fatalf("create: %v", err)
		}

		second := newApplication("s-pending", sup.ID)
		err := r.apps.Create(ctx, second, historyEntry(models.OwnerTypeApplication, second.ID, nil, "pending", second.SubmissionDate))
		if !errors.Is(err, models.ErrUniqueViolation) {
			t.Fatalf("expected unique violation, got %v", err)
		}

		if got, _ := r.apps.GetByID(ctx, second.ID); got != nil {
			t.Fatal("rolled back application must not exist")
		}
	})

	t.Run("application transition is conditional", func(t *testing.T) {
		app := newApplication("s-cas", sup.ID)
		app.CoSupervisorIDs = []string{"p101"}
		if err := r.apps.Create(ctx, app, historyEntry(models.OwnerTypeApplication, app.ID, nil, "pending", app.SubmissionDate)); err != nil {
			t.Fatal(err)
		}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			won      int
			stale    int
			statuses = []models.ApplicationStatus{models.ApplicationStatusApproved, models.ApplicationStatusRejected}
		)
		for _, to := range statuses {
			wg.Add(1)
			go func(to models.ApplicationStatus) {
				defer wg.Done()
				_, err := r.apps.Transition(ctx, app.ID, models.ApplicationStatusPending, to,
					historyEntry(models.OwnerTypeApplication, app.ID, ptr("pending"), string(to), time.Now().UTC()))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					won++
				case errors.Is(err, models.ErrStaleStatus):
					stale++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(to)
		}
		wg.Wait()

		if won != 1 || stale != 1 {
			t.Fatalf("won = %d, stale = %d", won, stale)
		}

		entries, err := r.history.ListByOwner(ctx, models.OwnerTypeApplication, app.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 {
			t.Fatalf("history length = %d, want 2", len(entries))
		}

		got, err := r.apps.GetByID(ctx, app.ID)
		if err != nil {
			t.Fatal(err)
		}
		if string(got.Status) != entries[1].NewStatus {
			t.Fatalf("stored %s, history ends with %s", got.Status, entries[1].NewStatus)
		}
		if len(got.CoSupervisorIDs) != 1 || got.CoSupervisorIDs[0] != "p101" {
			t.Fatalf("co-supervisors = %v", got.CoSupervisorIDs)
		}
	})

	t.Run("history timestamps stay ordered", func(t *testing.T) {
		app := newApplication("s-clock", sup.ID)
		at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		if err := r.apps.Create(ctx, app, historyEntry(models.OwnerTypeApplication, app.ID, nil, "pending", at)); err != nil {
			t.Fatal(err)
		}
		// An earlier clock reading must still sort after the first entry.
		if _, err := r.apps.Transition(ctx, app.ID, models.ApplicationStatusPending, models.ApplicationStatusCancelled,
			historyEntry(models.OwnerTypeApplication, app.ID, ptr("pending"), "cancelled", at.Add(-time.Hour))); err != nil {
			t.Fatal(err)
		}

		entries, err := r.history.ListByOwner(ctx, models.OwnerTypeApplication, app.ID)
		if err != nil {
			t.Fatal(err)
		}
		if entries[0].NewStatus != "pending" || entries[1].NewStatus != "cancelled" {
			t.Fatalf("order = %s, %s", entries[0].NewStatus, entries[1].NewStatus)
		}
		if !entries[1].ChangeDate.After(entries[0].ChangeDate) {
			t.Fatal("second entry must be strictly later")
		}
	})

	t.Run("thesis lifecycle with embargo", func(t *testing.T) {
		app := newApplication("s-thesis", sup.ID)
		if err := r.apps.Create(ctx, app, historyEntry(models.OwnerTypeApplication, app.ID, nil, "pending", app.SubmissionDate)); err != nil {
			t.Fatal(err)
		}

		now := time.Now().UTC()
		thesis := &models.Thesis{
			ID:              uuid.New().String(),
			ApplicationID:   app.ID,
			StudentID:       app.StudentID,
			SupervisorID:    app.SupervisorID,
			CoSupervisorIDs: []string{},
			Topic:           app.Topic,
			Status:          models.ThesisStatusOngoing,
			ThesisStartDate: now,
			UpdatedAt:       now,
		}

		err := r.theses.Create(ctx, thesis, historyEntry(models.OwnerTypeThesis, thesis.ID, nil, "ongoing", now))
		if !errors.Is(err, models.ErrStaleStatus) {
			t.Fatalf("pending application must not start a thesis, got %v", err)
		}

		if _, err := r.apps.Transition(ctx, app.ID, models.ApplicationStatusPending, models.ApplicationStatusApproved,
			historyEntry(models.OwnerTypeApplication, app.ID, ptr("pending"), "approved", time.Now().UTC())); err != nil {
			t.Fatal(err)
		}
		open, err := r.apps.HasOpen(ctx, app.StudentID)
		if err != nil || !open {
			t.Fatalf("approved unconverted application must count as open: %v %v", open, err)
		}

		if err := r.theses.Create(ctx, thesis, historyEntry(models.OwnerTypeThesis, thesis.ID, nil, "ongoing", now)); err != nil {
			t.Fatalf("create thesis: %v", err)
		}
		if open, _ := r.apps.HasOpen(ctx, app.StudentID); open {
			t.Fatal("converted application must not count as open")
		}

		dup := *thesis
		dup.ID = uuid.New().String()
		err = r.theses.Create(ctx, &dup, historyEntry(models.OwnerTypeThesis, dup.ID, nil, "ongoing", now))
		if !errors.Is(err, models.ErrUniqueViolation) {
			t.Fatalf("second thesis for application: %v", err)
		}

		thesis.Status = models.ThesisStatusConclusionRequested
		thesis.Title = ptr("Title")
		thesis.Language = ptr("it")
		thesis.Embargo = &models.Embargo{Duration: models.EmbargoDuration12Months, MotivationIDs: []int{2, 7}, OtherMotivation: ptr("patent")}
		if err := r.theses.Save(ctx, thesis, models.ThesisStatusOngoing,
			historyEntry(models.OwnerTypeThesis, thesis.ID, ptr("ongoing"), "conclusion_requested", time.Now().UTC())); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := r.theses.GetByID(ctx, thesis.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Embargo == nil || len(got.Embargo.MotivationIDs) != 2 || got.Embargo.MotivationIDs[1] != 7 {
			t.Fatalf("embargo = %+v", got.Embargo)
		}

		err = r.theses.Save(ctx, thesis, models.ThesisStatusOngoing, nil)
		if !errors.Is(err, models.ErrStaleStatus) {
			t.Fatalf("stale save: %v", err)
		}

		thesis.Status = models.ThesisStatusOngoing
		thesis.ClearConclusion()
		if err := r.theses.Save(ctx, thesis, models.ThesisStatusConclusionRequested,
			historyEntry(models.OwnerTypeThesis, thesis.ID, ptr("conclusion_requested"), "ongoing", time.Now().UTC())); err != nil {
			t.Fatal(err)
		}

		got, err = r.theses.GetByID(ctx, thesis.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Embargo != nil {
			t.Fatalf("embargo must be discarded, got %+v", got.Embargo)
		}

		active, err := r.theses.GetActiveByStudent(ctx, app.StudentID)
		if err != nil || active == nil || active.ID != thesis.ID {
			t.Fatalf("active thesis = %v, %v", active, err)
		}

		// Two readers of the same version: an edit that keeps the status
		// must still make the other writer stale.
		first, err := r.theses.GetByID(ctx, thesis.ID)
		if err != nil {
			t.Fatal(err)
		}
		second, err := r.theses.GetByID(ctx, thesis.ID)
		if err != nil {
			t.Fatal(err)
		}
		first.Title = ptr("Draft title")
		if err := r.theses.Save(ctx, first, models.ThesisStatusOngoing, nil); err != nil {
			t.Fatalf("draft save: %v", err)
		}
		second.Status = models.ThesisStatusCancelRequested
		err = r.theses.Save(ctx, second, models.ThesisStatusOngoing, nil)
		if !errors.Is(err, models.ErrStaleStatus) {
			t.Fatalf("save over a newer version: %v", err)
		}
		got, err = r.theses.GetByID(ctx, thesis.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != models.ThesisStatusOngoing || got.Title == nil || *got.Title != "Draft title" {
			t.Fatalf("committed edit lost: status=%s title=%v", got.Status, got.Title)
		}

		other := newApplication(app.StudentID, sup.ID)
		if err := r.apps.Create(ctx, other, historyEntry(models.OwnerTypeApplication, other.ID, nil, "pending", other.SubmissionDate)); err != nil {
			t.Fatal(err)
		}
		if _, err := r.apps.Transition(ctx, other.ID, models.ApplicationStatusPending, models.ApplicationStatusApproved,
			historyEntry(models.OwnerTypeApplication, other.ID, ptr("pending"), "approved", time.Now().UTC())); err != nil {
			t.Fatal(err)
		}
		parallel := *thesis
		parallel.ID = uuid.New().String()
		parallel.ApplicationID = other.ID
		err = r.theses.Create(ctx, &parallel, historyEntry(models.OwnerTypeThesis, parallel.ID, nil, "ongoing", now))
		if !errors.Is(err, models.ErrUniqueViolation) {
			t.Fatalf("second active thesis for student: %v", err)
		}

		entries, err := r.history.ListByOwner(ctx, models.OwnerTypeThesis, thesis.ID)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"ongoing", "conclusion_requested", "ongoing"}
		if len(entries) != len(want) {
			t.Fatalf("history length = %d", len(entries))
		}
		for i, w := range want {
			if entries[i].NewStatus != w {
				t.Fatalf("entry %d = %s, want %s", i, entries[i].NewStatus, w)
			}
		}
	})

	t.Run("deadline sessions", func(t *testing.T) {
		day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
		session := &models.GraduationSessionWithDeadlines{
			GraduationSession: models.GraduationSession{
				ID: uuid.New().String(), Name: "Sessione estiva", NameEn: "Summer session",
				StartDate: day(2031, 7, 1), EndDate: day(2031, 7, 31),
			},
			Deadlines: []models.Deadline{
				{ID: uuid.New().String(), DeadlineType: models.DeadlineTypeThesisRequest, DeadlineDate: day(2031, 3, 1)},
				{ID: uuid.New().String(), DeadlineType: models.DeadlineTypeConclusionRequest, DeadlineDate: day(2031, 6, 1)},
			},
		}
		if err := r.deadlines.CreateSession(ctx, session); err != nil {
			t.Fatal(err)
		}

		sessions, err := r.deadlines.ListUpcomingSessions(ctx, day(2031, 4, 1))
		if err != nil {
			t.Fatal(err)
		}
		if len(sessions) != 1 || len(sessions[0].Deadlines) != 2 {
			t.Fatalf("sessions = %+v", sessions)
		}

		sessions, err = r.deadlines.ListUpcomingSessions(ctx, day(2031, 6, 2))
		if err != nil {
			t.Fatal(err)
		}
		if len(sessions) != 0 {
			t.Fatalf("past session returned: %+v", sessions)
		}
	})
}

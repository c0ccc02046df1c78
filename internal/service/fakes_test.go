package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/service/integration"
)

// memStore backs every fake repository so that cross-table rules (one
// thesis per application, eligibility) behave like the database.
type memStore struct {
	mu          sync.Mutex
	apps        map[string]models.Application
	theses      map[string]models.Thesis
	history     []models.StatusHistoryEntry
	supervisors map[string]bool
	sessions    []models.GraduationSessionWithDeadlines
	saveErr     error
}

func newMemStore(supervisors ...string) *memStore {
	st := &memStore{
		apps:        make(map[string]models.Application),
		theses:      make(map[string]models.Thesis),
		supervisors: make(map[string]bool),
	}
	for _, id := range supervisors {
		st.supervisors[id] = true
	}
	return st
}

// appendLocked keeps change dates strictly increasing per owner.
func (st *memStore) appendLocked(e *models.StatusHistoryEntry) {
	for _, prev := range st.history {
		if prev.OwnerType == e.OwnerType && prev.OwnerID == e.OwnerID && !e.ChangeDate.After(prev.ChangeDate) {
			e.ChangeDate = prev.ChangeDate.Add(time.Microsecond)
		}
	}
	st.history = append(st.history, *e)
}

func (st *memStore) entries(owner models.OwnerType, id string) []models.StatusHistoryEntry {
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []models.StatusHistoryEntry
	for _, e := range st.history {
		if e.OwnerType == owner && e.OwnerID == id {
			out = append(out, e)
		}
	}
	return out
}

type fakeApplicationRepo struct{ st *memStore }

func (r *fakeApplicationRepo) Create(ctx context.Context, app *models.Application, entry *models.StatusHistoryEntry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, a := range r.st.apps {
		if a.StudentID == app.StudentID && a.Status == models.ApplicationStatusPending {
			return models.ErrUniqueViolation
		}
	}
	r.st.apps[app.ID] = *app
	r.st.appendLocked(entry)
	return nil
}

func (r *fakeApplicationRepo) GetByID(ctx context.Context, id string) (*models.Application, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.apps[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *fakeApplicationRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Application, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var out []models.Application
	for _, a := range r.st.apps {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b models.Application) int { return b.SubmissionDate.Compare(a.SubmissionDate) })
	return out, nil
}

func (r *fakeApplicationRepo) Transition(ctx context.Context, id string, from, to models.ApplicationStatus, entry *models.StatusHistoryEntry) (*models.Application, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.apps[id]
	if !ok || a.Status != from {
		return nil, models.ErrStaleStatus
	}
	a.Status = to
	a.UpdatedAt = entry.ChangeDate
	r.st.apps[id] = a
	r.st.appendLocked(entry)
	return &a, nil
}

func (r *fakeApplicationRepo) HasOpen(ctx context.Context, studentID string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, a := range r.st.apps {
		if a.StudentID != studentID {
			continue
		}
		if a.Status == models.ApplicationStatusPending {
			return true, nil
		}
		if a.Status == models.ApplicationStatusApproved && !r.st.hasThesisLocked(a.ID) {
			return true, nil
		}
	}
	return false, nil
}

func (st *memStore) hasThesisLocked(applicationID string) bool {
	for _, t := range st.theses {
		if t.ApplicationID == applicationID {
			return true
		}
	}
	return false
}

type fakeThesisRepo struct{ st *memStore }

func (r *fakeThesisRepo) Create(ctx context.Context, thesis *models.Thesis, entry *models.StatusHistoryEntry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.apps[thesis.ApplicationID]
	if !ok || a.Status != models.ApplicationStatusApproved {
		return models.ErrStaleStatus
	}
	if r.st.hasThesisLocked(thesis.ApplicationID) {
		return models.ErrUniqueViolation
	}
	r.st.theses[thesis.ID] = *thesis
	r.st.appendLocked(entry)
	return nil
}

func (r *fakeThesisRepo) GetByID(ctx context.Context, id string) (*models.Thesis, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	t, ok := r.st.theses[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *fakeThesisRepo) GetByApplicationID(ctx context.Context, applicationID string) (*models.Thesis, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, t := range r.st.theses {
		if t.ApplicationID == applicationID {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *fakeThesisRepo) GetActiveByStudent(ctx context.Context, studentID string) (*models.Thesis, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, t := range r.st.theses {
		if t.StudentID == studentID && !t.Status.IsTerminal() {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *fakeThesisRepo) Save(ctx context.Context, thesis *models.Thesis, from models.ThesisStatus, entry *models.StatusHistoryEntry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if r.st.saveErr != nil {
		return r.st.saveErr
	}
	t, ok := r.st.theses[thesis.ID]
	if !ok || t.Status != from || !t.UpdatedAt.Equal(thesis.UpdatedAt) {
		return models.ErrStaleStatus
	}
	thesis.UpdatedAt = t.UpdatedAt.Add(time.Microsecond)
	r.st.theses[thesis.ID] = *thesis
	if entry != nil {
		r.st.appendLocked(entry)
	}
	return nil
}

type fakeHistoryRepo struct{ st *memStore }

func (r *fakeHistoryRepo) ListByOwner(ctx context.Context, ownerType models.OwnerType, ownerID string) ([]models.StatusHistoryEntry, error) {
	return r.st.entries(ownerType, ownerID), nil
}

type fakeSupervisorRepo struct{ st *memStore }

func (r *fakeSupervisorRepo) Create(ctx context.Context, supervisor *models.Supervisor) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.supervisors[supervisor.ID] = true
	return nil
}

func (r *fakeSupervisorRepo) GetByID(ctx context.Context, id string) (*models.Supervisor, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if !r.st.supervisors[id] {
		return nil, nil
	}
	return &models.Supervisor{ID: id}, nil
}

func (r *fakeSupervisorRepo) Missing(ctx context.Context, ids []string) ([]string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var missing []string
	for _, id := range ids {
		if !r.st.supervisors[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type fakeDeadlineRepo struct{ st *memStore }

func (r *fakeDeadlineRepo) ListUpcomingSessions(ctx context.Context, since time.Time) ([]models.GraduationSessionWithDeadlines, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return slices.Clone(r.st.sessions), nil
}

func (r *fakeDeadlineRepo) CreateSession(ctx context.Context, session *models.GraduationSessionWithDeadlines) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.sessions = append(r.st.sessions, *session)
	return nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Put(ctx context.Context, thesisID string, doc *integration.Document) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	var body []byte
	if doc.Body != nil {
		b, err := io.ReadAll(doc.Body)
		if err != nil {
			return "", err
		}
		body = b
	}

	key := integration.DocumentKey(thesisID, doc.Kind, doc.FileName)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
	return key, nil
}

func (s *fakeStorage) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return "", time.Time{}, fmt.Errorf("object %s not found", key)
	}
	return "https://storage.local/" + key + "?sig=test", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type fakePublisher struct {
	mu       sync.Mutex
	statuses []models.StatusChangedEvent
	uploads  []models.DocumentUploadedEvent
	err      error
}

func (p *fakePublisher) PublishStatusChanged(ctx context.Context, event *models.StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.statuses = append(p.statuses, *event)
	return nil
}

func (p *fakePublisher) PublishDocumentUploaded(ctx context.Context, event *models.DocumentUploadedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.uploads = append(p.uploads, *event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

var errBoom = errors.New("boom")

// clock hands out strictly increasing times, one second apart.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/lifecycle"
	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/repository"
	"github.com/RubachokBoss/thesis-service/internal/service/integration"
	"github.com/RubachokBoss/thesis-service/pkg/keylock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ThesisService interface {
	StartFromApplication(ctx context.Context, actor models.Actor, req *models.StartThesisRequest) (*models.Thesis, error)
	// RequestConclusion uploads docs, validates details against them and
	// moves the thesis to conclusion_requested. Files in details are
	// ignored: only documents sent with the request count.
	RequestConclusion(ctx context.Context, actor models.Actor, id string, details *models.ConclusionDetails, docs map[models.DocumentKind]*integration.Document) (*models.Thesis, error)
	SaveConclusionDraft(ctx context.Context, actor models.Actor, id string, draft *models.ConclusionDraft) (*models.Thesis, error)
	DecideConclusion(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Thesis, error)
	Advance(ctx context.Context, actor models.Actor, id string, note *string) (*models.Thesis, error)
	UploadFinalThesis(ctx context.Context, actor models.Actor, id string, doc *integration.Document) (*models.Thesis, error)
	Finalize(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Thesis, error)
	RequestCancellation(ctx context.Context, actor models.Actor, id string, note *string) (*models.Thesis, error)
	DecideCancellation(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Thesis, error)
	ChangeStatus(ctx context.Context, actor models.Actor, id string, req *models.UpdateThesisStatusRequest) (*models.Thesis, error)
	UpdateSupervisors(ctx context.Context, actor models.Actor, id string, req *models.UpdateSupervisorsRequest) (*models.Thesis, error)
	GetByID(ctx context.Context, actor models.Actor, id string) (*models.Thesis, error)
	DocumentURL(ctx context.Context, actor models.Actor, id string, kind models.DocumentKind) (*models.DocumentURLResponse, error)
}

type thesisService struct {
	thesisRepo      repository.ThesisRepository
	applicationRepo repository.ApplicationRepository
	supervisorRepo  repository.SupervisorRepository
	storage         integration.DocumentStorage
	publisher       integration.EventPublisher
	locks           *keylock.KeyLock
	rules           lifecycle.Rules
	now             func() time.Time
	logger          zerolog.Logger
}

func NewThesisService(
	thesisRepo repository.ThesisRepository,
	applicationRepo repository.ApplicationRepository,
	supervisorRepo repository.SupervisorRepository,
	storage integration.DocumentStorage,
	publisher integration.EventPublisher,
	locks *keylock.KeyLock,
	rules lifecycle.Rules,
	logger zerolog.Logger,
) ThesisService {
	return &thesisService{
		thesisRepo:      thesisRepo,
		applicationRepo: applicationRepo,
		supervisorRepo:  supervisorRepo,
		storage:         storage,
		publisher:       publisher,
		locks:           locks,
		rules:           rules,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger,
	}
}

var conclusionDocumentKinds = map[models.DocumentKind]bool{
	models.DocumentKindThesis:        true,
	models.DocumentKindSummary:       true,
	models.DocumentKindResume:        true,
	models.DocumentKindAdditionalZip: true,
}

func (s *thesisService) StartFromApplication(ctx context.Context, actor models.Actor, req *models.StartThesisRequest) (*models.Thesis, error) {
	if req.ApplicationID == "" {
		ve := models.NewValidationError()
		ve.Add("application_id", "is required")
		return nil, ve
	}

	unlock, err := s.locks.Lock(ctx, applicationLockKey(req.ApplicationID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	app, err := s.applicationRepo.GetByID(ctx, req.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil {
		return nil, &models.NotFoundError{Entity: "application", ID: req.ApplicationID}
	}
	if err := requireOwner(actor, app.StudentID); err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusApproved {
		return nil, &models.ConflictError{Message: "application is " + string(app.Status) + ", a thesis needs an approved application"}
	}

	existing, err := s.thesisRepo.GetByApplicationID(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get thesis by application: %w", err)
	}
	if existing != nil {
		return nil, &models.ConflictError{Message: "a thesis was already started from this application"}
	}

	active, err := s.thesisRepo.GetActiveByStudent(ctx, app.StudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active thesis: %w", err)
	}
	if active != nil {
		return nil, &models.ConflictError{Message: "student already has an active thesis"}
	}

	now := s.now()
	thesis := &models.Thesis{
		ID:              uuid.New().String(),
		ApplicationID:   app.ID,
		StudentID:       app.StudentID,
		SupervisorID:    app.SupervisorID,
		CoSupervisorIDs: append([]string{}, app.CoSupervisorIDs...),
		CompanyID:       app.CompanyID,
		Topic:           app.Topic,
		Status:          models.ThesisStatusOngoing,
		ThesisStartDate: now,
		UpdatedAt:       now,
	}
	entry := newHistoryEntry(models.OwnerTypeThesis, thesis.ID, nil, string(thesis.Status), nil, actor, now)

	if err := s.thesisRepo.Create(ctx, thesis, entry); err != nil {
		if errors.Is(err, models.ErrStaleStatus) || errors.Is(err, models.ErrUniqueViolation) {
			return nil, &models.ConflictError{Message: "application can no longer start a thesis"}
		}
		return nil, fmt.Errorf("failed to create thesis: %w", err)
	}

	s.logger.Info().
		Str("thesis_id", thesis.ID).
		Str("application_id", app.ID).
		Str("student_id", thesis.StudentID).
		Msg("Thesis started")

	publishStatusChanged(ctx, s.publisher, s.logger, entry, thesis.StudentID)

	return thesis, nil
}

func (s *thesisService) RequestConclusion(ctx context.Context, actor models.Actor, id string, details *models.ConclusionDetails, docs map[models.DocumentKind]*integration.Document) (*models.Thesis, error) {
	return s.withThesis(ctx, id, func(t *models.Thesis) (*models.Thesis, error) {
		if err := requireOwner(actor, t.StudentID); err != nil {
			return nil, err
		}
		if _, ok := lifecycle.ThesisTransitionFor(t.Status, lifecycle.ThesisEventRequestConclusion); !ok {
			return nil, invalidThesisTransition(t, string(lifecycle.ThesisEventRequestConclusion))
		}

		if err := s.checkConclusion(details, docs); err != nil {
			return nil, err
		}

		uploaded, err := s.upload(ctx, t.ID, docs)
		if err != nil {
			return nil, err
		}

		now := s.now()
		updated, entry, err := s.apply(ctx, actor, t, lifecycle.ThesisEventRequestConclusion, nil, func(next *models.Thesis) error {
			next.Title = strPtr(details.Title)
			next.TitleEn = details.TitleEn
			next.Abstract = strPtr(details.Abstract)
			next.AbstractEn = details.AbstractEn
			next.Language = strPtr(details.Language)
			next.ThesisConclusionRequestDate = &now
			next.ThesisConclusionConfirmationDate = nil

			next.LicenseID = nil
			next.Embargo = nil
			if details.Authorization == models.AuthorizationAuthorize {
				next.LicenseID = details.LicenseID
			} else {
				next.Embargo = details.Embargo
			}

			for kind, key := range uploaded {
				next.SetDocumentPath(kind, key)
			}
			return nil
		})
		if err != nil {
			s.discard(uploaded)
			return nil, err
		}

		publishStatusChanged(ctx, s.publisher, s.logger, entry, updated.StudentID)
		s.publishUploads(ctx, updated, uploaded)

		return updated, nil
	})
}

// checkConclusion validates the uploads first and then the details, with
// Files rebuilt from the uploads so every problem is reported at once.
func (s *thesisService) checkConclusion(details *models.ConclusionDetails, docs map[models.DocumentKind]*integration.Document) error {
	ve := models.NewValidationError()
	details.Files = models.ConclusionFiles{}

	for kind, doc := range docs {
		if !conclusionDocumentKinds[kind] {
			ve.Add("files."+string(kind), "cannot be attached to a conclusion request")
			continue
		}
		doc.Kind = kind
		if err := lifecycle.ValidateDocument(kind, doc.FileName); err != nil {
			mergeValidation(ve, err)
			continue
		}

		name := doc.FileName
		switch kind {
		case models.DocumentKindThesis:
			details.Files.ThesisFile = &name
		case models.DocumentKindSummary:
			details.Files.SummaryFile = &name
		case models.DocumentKindResume:
			details.Files.ResumeFile = &name
		case models.DocumentKindAdditionalZip:
			details.Files.AdditionalZip = &name
		}
	}

	if err := lifecycle.ValidateConclusion(details, s.rules); err != nil {
		mergeValidation(ve, err)
	}

	return ve.OrNil()
}

func mergeValidation(dst *models.ValidationError, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		for field, msg := range ve.Fields {
			dst.Add(field, msg)
		}
	}
}

// upload stores docs in a stable order and removes what was already stored
// when one of them fails.
func (s *thesisService) upload(ctx context.Context, thesisID string, docs map[models.DocumentKind]*integration.Document) (map[models.DocumentKind]string, error) {
	uploaded := make(map[models.DocumentKind]string, len(docs))
	if len(docs) == 0 {
		return uploaded, nil
	}
	if s.storage == nil {
		return nil, errors.New("document storage is not configured")
	}

	kinds := make([]models.DocumentKind, 0, len(docs))
	for kind := range docs {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, kind := range kinds {
		key, err := s.storage.Put(ctx, thesisID, docs[kind])
		if err != nil {
			s.discard(uploaded)
			return nil, fmt.Errorf("failed to store %s document: %w", kind, err)
		}
		uploaded[kind] = key
	}

	return uploaded, nil
}

func (s *thesisService) discard(uploaded map[models.DocumentKind]string) {
	for kind, key := range uploaded {
		// The request context may already be cancelled here.
		if err := s.storage.Delete(context.Background(), key); err != nil {
			s.logger.Warn().
				Err(err).
				Str("kind", string(kind)).
				Str("object_key", key).
				Msg("Failed to remove orphaned document")
		}
	}
}

func (s *thesisService) publishUploads(ctx context.Context, t *models.Thesis, uploaded map[models.DocumentKind]string) {
	if s.publisher == nil {
		return
	}
	for kind, key := range uploaded {
		event := &models.DocumentUploadedEvent{
			Type:      models.EventTypeThesisDocumentUploaded,
			ThesisID:  t.ID,
			StudentID: t.StudentID,
			Kind:      kind,
			ObjectKey: key,
			Timestamp: s.now().Unix(),
		}
		if err := s.publisher.PublishDocumentUploaded(ctx, event); err != nil {
			s.logger.Error().
				Err(err).
				Str("thesis_id", t.ID).
				Str("kind", string(kind)).
				Msg("Failed to publish document uploaded event")
		}
	}
}

func (s *thesisService) SaveConclusionDraft(ctx context.Context, actor models.Actor, id string, draft *models.ConclusionDraft) (*models.Thesis, error) {
	if err := lifecycle.ValidateConclusionDraft(draft, s.rules); err != nil {
		return nil, err
	}

	return s.withThesis(ctx, id, func(t *models.Thesis) (*models.Thesis, error) {
		if err := requireOwner(actor, t.StudentID); err != nil {
			return nil, err
		}
		if t.Status != models.ThesisStatusOngoing {
			return nil, invalidThesisTransition(t, "save_conclusion_draft")
		}

		now := s.now()
		next := *t
		if draft.Title != nil {
			next.Title = draft.Title
		}
		if draft.TitleEn != nil {
			next.TitleEn = draft.TitleEn
		}
		if draft.Abstract != nil {
			next.Abstract = draft.Abstract
		}
		if draft.AbstractEn != nil {
			next.AbstractEn = draft.AbstractEn
		}
		if draft.Language != nil {
			next.Language = draft.Language
		}
		next.ThesisDraftDate = &now

		if err := s.save(ctx, &next, t.Status, nil); err != nil {
			return nil, err
		}

		s.logger.Info().
			Str("thesis_id", t.ID).
			Msg("Conclusion draft saved")

		return &next, nil
	})
}

func (s *thesisService) DecideConclusion(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Thesis, error) {
	if err := validateDecision(req); err != nil {
		return nil, err
	}
	return s.decide(ctx, actor, id, lifecycle.ConclusionDecisionEvent(req.Decision), req.Note)
}

func (s *thesisService) DecideCancellation(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Thesis, error) {
	if err := validateDecision(req); err != nil {
		return nil, err
	}
	return s.decide(ctx, actor, id, lifecycle.CancellationDecisionEvent(req.Decision), req.Note)
}

func (s *thesisService) Finalize(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Thesis, error) {
	if err := validateDecision(req); err != nil {
		return nil, err
	}
	return s.decide(ctx, actor, id, lifecycle.FinalDecisionEvent(req.Decision), req.Note)
}

func (s *thesisService) Advance(ctx context.Context, actor models.Actor, id string, note *string) (*models.Thesis, error) {
	return s.decide(ctx, actor, id, lifecycle.ThesisEventAdvance, note)
}

func (s *thesisService) RequestCancellation(ctx context.Context, actor models.Actor, id string, note *string) (*models.Thesis, error) {
	return s.withThesis(ctx, id, func(t *models.Thesis) (*models.Thesis, error) {
		if err := requireOwner(actor, t.StudentID); err != nil {
			return nil, err
		}
		return s.transition(ctx, actor, t, lifecycle.ThesisEventRequestCancellation, note)
	})
}

func (s *thesisService) ChangeStatus(ctx context.Context, actor models.Actor, id string, req *models.UpdateThesisStatusRequest) (*models.Thesis, error) {
	if !req.NewStatus.IsValid() {
		ve := models.NewValidationError()
		ve.Add("new_status", "unknown thesis status")
		return nil, ve
	}

	return s.withThesis(ctx, id, func(t *models.Thesis) (*models.Thesis, error) {
		if err := authorizeDecision(actor, t.SupervisorID); err != nil {
			return nil, err
		}

		ev, ok := lifecycle.ThesisEventFor(t.Status, req.NewStatus)
		if !ok {
			return nil, invalidThesisTransition(t, "move to "+string(req.NewStatus))
		}
		if ev == lifecycle.ThesisEventRequestConclusion || ev == lifecycle.ThesisEventRequestCancellation {
			return nil, &models.ForbiddenError{Message: "only the student can " + string(ev)}
		}

		return s.transition(ctx, actor, t, ev, req.Note)
	})
}

// decide runs a staff or supervisor transition.
func (s *thesisService) decide(ctx context.Context, actor models.Actor, id string, ev lifecycle.ThesisEvent, note *string) (*models.Thesis, error) {
	return s.withThesis(ctx, id, func(t *models.Thesis) (*models.Thesis, error) {
		if err := authorizeDecision(actor, t.SupervisorID); err != nil {
			return nil, err
		}
		return s.transition(ctx, actor, t, ev, note)
	})
}

func (s *thesisService) transition(ctx context.Context, actor models.Actor, t *models.Thesis, ev lifecycle.ThesisEvent, note *string) (*models.Thesis, error) {
	updated, entry, err := s.apply(ctx, actor, t, ev, note, s.effect(ev))
	if err != nil {
		return nil, err
	}
	publishStatusChanged(ctx, s.publisher, s.logger, entry, updated.StudentID)
	return updated, nil
}

// effect returns the field changes that go with ev besides the status.
func (s *thesisService) effect(ev lifecycle.ThesisEvent) func(next *models.Thesis) error {
	switch ev {
	case lifecycle.ThesisEventApproveConclusion:
		return func(next *models.Thesis) error {
			now := s.now()
			next.ThesisConclusionConfirmationDate = &now
			return nil
		}
	case lifecycle.ThesisEventRejectConclusion, lifecycle.ThesisEventRejectFinal:
		return func(next *models.Thesis) error {
			next.ClearConclusion()
			return nil
		}
	case lifecycle.ThesisEventApproveFinal:
		return func(next *models.Thesis) error {
			if next.FinalThesisFilePath == nil {
				ve := models.NewValidationError()
				ve.Add("files.final_thesis", "must be uploaded before approval")
				return ve
			}
			return nil
		}
	default:
		return nil
	}
}

// apply moves a copy of t along ev and persists it together with the
// history entry. The stored row is only touched if it still has t.Status.
func (s *thesisService) apply(ctx context.Context, actor models.Actor, t *models.Thesis, ev lifecycle.ThesisEvent, note *string, mutate func(next *models.Thesis) error) (*models.Thesis, *models.StatusHistoryEntry, error) {
	tr, ok := lifecycle.ThesisTransitionFor(t.Status, ev)
	if !ok {
		return nil, nil, invalidThesisTransition(t, string(ev))
	}

	now := s.now()
	next := *t
	next.Status = tr.To
	if mutate != nil {
		if err := mutate(&next); err != nil {
			return nil, nil, err
		}
	}

	entry := newHistoryEntry(models.OwnerTypeThesis, t.ID, strPtr(string(t.Status)), string(tr.To), note, actor, now)
	if err := s.save(ctx, &next, t.Status, entry); err != nil {
		if errors.Is(err, models.ErrStaleStatus) {
			return nil, nil, invalidThesisTransition(t, string(ev))
		}
		return nil, nil, err
	}

	s.logger.Info().
		Str("thesis_id", t.ID).
		Str("event", string(ev)).
		Str("from", string(t.Status)).
		Str("to", string(tr.To)).
		Str("actor_id", actor.ID).
		Msg("Thesis status changed")

	return &next, entry, nil
}

func (s *thesisService) save(ctx context.Context, t *models.Thesis, from models.ThesisStatus, entry *models.StatusHistoryEntry) error {
	if err := s.thesisRepo.Save(ctx, t, from, entry); err != nil {
		if errors.Is(err, models.ErrStaleStatus) {
			return err
		}
		return fmt.Errorf("failed to save thesis: %w", err)
	}
	return nil
}

func (s *thesisService) UploadFinalThesis(ctx context.Context, actor models.Actor, id string, doc *integration.Document) (*models.Thesis, error) {
	if doc == nil {
		ve := models.NewValidationError()
		ve.Add("files.final_thesis", "is required")
		return nil, ve
	}
	doc.Kind = models.DocumentKindFinalThesis
	if err := lifecycle.ValidateDocument(doc.Kind, doc.FileName); err != nil {
		return nil, err
	}

	return s.withThesis(ctx, id, func(t *models.Thesis) (*models.Thesis, error) {
		if err := requireOwner(actor, t.StudentID); err != nil {
			return nil, err
		}
		if t.Status != models.ThesisStatusFinalThesis {
			return nil, invalidThesisTransition(t, "upload_final_thesis")
		}

		uploaded, err := s.upload(ctx, t.ID, map[models.DocumentKind]*integration.Document{doc.Kind: doc})
		if err != nil {
			return nil, err
		}

		previous := t.FinalThesisFilePath
		next := *t
		next.SetDocumentPath(doc.Kind, uploaded[doc.Kind])

		if err := s.save(ctx, &next, t.Status, nil); err != nil {
			s.discard(uploaded)
			if errors.Is(err, models.ErrStaleStatus) {
				return nil, invalidThesisTransition(t, "upload_final_thesis")
			}
			return nil, err
		}
		if previous != nil {
			s.discard(map[models.DocumentKind]string{doc.Kind: *previous})
		}

		s.logger.Info().
			Str("thesis_id", t.ID).
			Str("object_key", *next.FinalThesisFilePath).
			Msg("Final thesis uploaded")

		s.publishUploads(ctx, &next, uploaded)

		return &next, nil
	})
}

func (s *thesisService) UpdateSupervisors(ctx context.Context, actor models.Actor, id string, req *models.UpdateSupervisorsRequest) (*models.Thesis, error) {
	if actor.Role != models.RoleStaff {
		return nil, &models.ForbiddenError{Message: "only staff can change supervisors"}
	}
	if err := lifecycle.ValidateSupervisors(req); err != nil {
		return nil, err
	}

	if err := checkSupervisors(ctx, s.supervisorRepo, req.SupervisorID, req.CoSupervisorIDs); err != nil {
		return nil, err
	}

	return s.withThesis(ctx, id, func(t *models.Thesis) (*models.Thesis, error) {
		if t.Status != models.ThesisStatusOngoing {
			return nil, invalidThesisTransition(t, "update_supervisors")
		}

		next := *t
		next.SupervisorID = req.SupervisorID
		next.CoSupervisorIDs = append([]string{}, req.CoSupervisorIDs...)

		if err := s.save(ctx, &next, t.Status, nil); err != nil {
			if errors.Is(err, models.ErrStaleStatus) {
				return nil, invalidThesisTransition(t, "update_supervisors")
			}
			return nil, err
		}

		s.logger.Info().
			Str("thesis_id", t.ID).
			Str("supervisor_id", next.SupervisorID).
			Int("co_supervisors", len(next.CoSupervisorIDs)).
			Msg("Thesis supervisors updated")

		return &next, nil
	})
}

func (s *thesisService) GetByID(ctx context.Context, actor models.Actor, id string) (*models.Thesis, error) {
	t, err := s.thesisRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get thesis: %w", err)
	}
	if t == nil || !canView(actor, t.StudentID, t.SupervisorID, t.CoSupervisorIDs) {
		return nil, &models.NotFoundError{Entity: "thesis", ID: id}
	}
	return t, nil
}

func (s *thesisService) DocumentURL(ctx context.Context, actor models.Actor, id string, kind models.DocumentKind) (*models.DocumentURLResponse, error) {
	if !kind.IsValid() {
		ve := models.NewValidationError()
		ve.Add("kind", "unknown document kind")
		return nil, ve
	}

	t, err := s.GetByID(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	key := t.DocumentPath(kind)
	if key == nil {
		return nil, &models.NotFoundError{Entity: "document", ID: id + "/" + string(kind)}
	}
	if s.storage == nil {
		return nil, errors.New("document storage is not configured")
	}

	url, expiresAt, err := s.storage.PresignedURL(ctx, *key)
	if err != nil {
		return nil, fmt.Errorf("failed to presign document url: %w", err)
	}

	return &models.DocumentURLResponse{Kind: kind, URL: url, ExpiresAt: expiresAt}, nil
}

// withThesis loads the thesis under its per-entity lock.
func (s *thesisService) withThesis(ctx context.Context, id string, fn func(t *models.Thesis) (*models.Thesis, error)) (*models.Thesis, error) {
	unlock, err := s.locks.Lock(ctx, thesisLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := s.thesisRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get thesis: %w", err)
	}
	if t == nil {
		return nil, &models.NotFoundError{Entity: "thesis", ID: id}
	}

	return fn(t)
}

func invalidThesisTransition(t *models.Thesis, event string) error {
	return &models.InvalidTransitionError{
		Entity: models.OwnerTypeThesis,
		From:   string(t.Status),
		Event:  event,
	}
}

func validateDecision(req *models.DecisionRequest) error {
	if req.Decision.IsValid() {
		return nil
	}
	ve := models.NewValidationError()
	ve.Add("decision", "must be approved or rejected")
	return ve
}

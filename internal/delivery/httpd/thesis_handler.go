package httpd

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/service/integration"
	"github.com/RubachokBoss/thesis-service/pkg/utils"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is how much of a form is kept in memory before the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// conclusionFileFields maps multipart file fields to document kinds.
var conclusionFileFields = map[string]models.DocumentKind{
	"thesis_file":    models.DocumentKindThesis,
	"summary_file":   models.DocumentKindSummary,
	"resume_file":    models.DocumentKindResume,
	"additional_zip": models.DocumentKindAdditionalZip,
}

type noteRequest struct {
	Note *string `json:"note,omitempty"`
}

func (h *Handler) StartThesis(w http.ResponseWriter, r *http.Request) {
	var req models.StartThesisRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	thesis, err := h.thesisService.StartFromApplication(r.Context(), caller(r), &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusCreated, thesis)
}

func (h *Handler) GetThesis(w http.ResponseWriter, r *http.Request) {
	thesis, err := h.thesisService.GetByID(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, thesis)
}

func (h *Handler) GetThesisView(w http.ResponseWriter, r *http.Request) {
	vm, err := h.historyService.ThesisView(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, vm)
}

// RequestConclusion expects a multipart form with the conclusion details as
// JSON in the "details" field and the documents as file fields.
func (h *Handler) RequestConclusion(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	var details models.ConclusionDetails
	raw := r.FormValue("details")
	if raw == "" {
		badRequest(w, "details field is required")
		return
	}
	if err := utils.DecodeStrict(raw, &details); err != nil {
		badRequest(w, "Invalid details: "+err.Error())
		return
	}

	docs := make(map[models.DocumentKind]*integration.Document)
	for field, kind := range conclusionFileFields {
		doc, ok, err := formDocument(r.MultipartForm, field, kind)
		if err != nil {
			badRequest(w, "Failed to read "+field)
			return
		}
		if !ok {
			continue
		}
		defer doc.Body.(multipart.File).Close()
		docs[kind] = doc
	}

	thesis, err := h.thesisService.RequestConclusion(r.Context(), caller(r), chi.URLParam(r, "id"), &details, docs)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, thesis)
}

func (h *Handler) SaveConclusionDraft(w http.ResponseWriter, r *http.Request) {
	var draft models.ConclusionDraft
	if err := utils.ReadJSON(r, &draft); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	thesis, err := h.thesisService.SaveConclusionDraft(r.Context(), caller(r), chi.URLParam(r, "id"), &draft)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, thesis)
}

func (h *Handler) DecideConclusion(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, h.thesisService.DecideConclusion)
}

func (h *Handler) DecideCancellation(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, h.thesisService.DecideCancellation)
}

func (h *Handler) FinalizeThesis(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, h.thesisService.Finalize)
}

type decideFunc func(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Thesis, error)

func (h *Handler) decision(w http.ResponseWriter, r *http.Request, decide decideFunc) {
	var req models.DecisionRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	thesis, err := decide(r.Context(), caller(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, thesis)
}

func (h *Handler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	note, ok := readNote(w, r)
	if !ok {
		return
	}

	thesis, err := h.thesisService.RequestCancellation(r.Context(), caller(r), chi.URLParam(r, "id"), note)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, thesis)
}

func (h *Handler) AdvanceThesis(w http.ResponseWriter, r *http.Request) {
	note, ok := readNote(w, r)
	if !ok {
		return
	}

	thesis, err := h.thesisService.Advance(r.Context(), caller(r), chi.URLParam(r, "id"), note)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, thesis)
}

func (h *Handler) UploadFinalThesis(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	doc, ok, err := formDocument(r.MultipartForm, "file", models.DocumentKindFinalThesis)
	if err != nil {
		badRequest(w, "Failed to read file")
		return
	}
	if !ok {
		badRequest(w, "file is required")
		return
	}
	defer doc.Body.(multipart.File).Close()

	thesis, err := h.thesisService.UploadFinalThesis(r.Context(), caller(r), chi.URLParam(r, "id"), doc)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, thesis)
}

func (h *Handler) UpdateThesisStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateThesisStatusRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	thesis, err := h.thesisService.ChangeStatus(r.Context(), caller(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, thesis)
}

func (h *Handler) UpdateSupervisors(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSupervisorsRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	thesis, err := h.thesisService.UpdateSupervisors(r.Context(), caller(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, thesis)
}

func (h *Handler) GetDocumentURL(w http.ResponseWriter, r *http.Request) {
	kind := models.DocumentKind(chi.URLParam(r, "kind"))

	resp, err := h.thesisService.DocumentURL(r.Context(), caller(r), chi.URLParam(r, "id"), kind)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, resp)
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	if h.maxUploadSize > 0 {
		if r.ContentLength > h.maxUploadSize {
			utils.ErrorResponse(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit", nil)
			return false
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.ErrorResponse(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit", nil)
			return false
		}
		badRequest(w, "Failed to parse form data")
		return false
	}
	return true
}

// formDocument opens the first file of field. The caller closes the body.
func formDocument(form *multipart.Form, field string, kind models.DocumentKind) (*integration.Document, bool, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, false, nil
	}
	header := headers[0]

	file, err := header.Open()
	if err != nil {
		return nil, false, err
	}

	return &integration.Document{
		Kind:        kind,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, true, nil
}

// readNote reads an optional {"note": "..."} body.
func readNote(w http.ResponseWriter, r *http.Request) (*string, bool) {
	var req noteRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		if errors.Is(err, utils.ErrEmptyBody) {
			return nil, true
		}
		badRequest(w, "Invalid request body: "+err.Error())
		return nil, false
	}
	return req.Note, true
}

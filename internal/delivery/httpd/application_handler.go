package httpd

import (
	"net/http"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/pkg/utils"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req models.CreateApplicationRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	app, err := h.applicationService.Submit(r.Context(), caller(r), &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusCreated, app)
}

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.applicationService.GetByID(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, app)
}

func (h *Handler) GetApplicationView(w http.ResponseWriter, r *http.Request) {
	vm, err := h.historyService.ApplicationView(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, vm)
}

func (h *Handler) DecideApplication(w http.ResponseWriter, r *http.Request) {
	var req models.DecisionRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	app, err := h.applicationService.Decide(r.Context(), caller(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, app)
}

func (h *Handler) CancelApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.applicationService.Cancel(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, app)
}

func (h *Handler) UpdateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateApplicationStatusRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	app, err := h.applicationService.ChangeStatus(r.Context(), caller(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, app)
}

func (h *Handler) ListStudentApplications(w http.ResponseWriter, r *http.Request) {
	resp, err := h.applicationService.ListByStudent(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, resp)
}

func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	resp, err := h.eligibilityService.ForStudent(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, resp)
}

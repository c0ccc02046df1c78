package httpd

import (
	"net/http"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/pkg/utils"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetStatusHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ownerType := models.OwnerType(query.Get("owner_type"))
	ownerID := query.Get("owner_id")

	entries, err := h.historyService.List(r.Context(), caller(r), ownerType, ownerID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, entries)
}

func (h *Handler) GetDeadlines(w http.ResponseWriter, r *http.Request) {
	phase := models.Phase(r.URL.Query().Get("phase"))

	resp, err := h.deadlineService.DeadlinesFor(r.Context(), phase)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, resp)
}

func (h *Handler) GetStudentDeadlines(w http.ResponseWriter, r *http.Request) {
	resp, err := h.deadlineService.ForStudent(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	utils.SuccessResponse(w, http.StatusOK, resp)
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type gradeTextRequest struct {
	Text     string  `json:"text"`
	Question string  `json:"question"`
	MaxScore float64 `json:"max_score"`
	Rubric   string  `json:"rubric"`
}

func (h *Handler) handleGradeText(w http.ResponseWriter, r *http.Request) {
	var req gradeTextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.grader.GradeFromText(r.Context(), req.Text, req.Question, req.MaxScore, req.Rubric)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type gradeFilesRequest struct {
	FileURLs []string `json:"file_urls"`
	Question string   `json:"question"`
	MaxScore float64  `json:"max_score"`
	Rubric   string   `json:"rubric"`
}

func (h *Handler) handleGradeFiles(w http.ResponseWriter, r *http.Request) {
	var req gradeFilesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.grader.GradeFromFiles(r.Context(), req.FileURLs, req.Question, req.MaxScore, req.Rubric)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type rubricRequest struct {
	Rubric string `json:"rubric"`
}

// decodeOptional decodes a JSON body when one was sent.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(w, r, v)
}

func (h *Handler) handleGradeSubmission(w http.ResponseWriter, r *http.Request) {
	var req rubricRequest
	if err := decodeOptional(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.grading.GradeSubmission(r.Context(), chi.URLParam(r, "id"), req.Rubric)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetGrading(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetSubmission(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.store.GetGrading(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if result == nil {
		h.writeError(w, r, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGradeAssignment(w http.ResponseWriter, r *http.Request) {
	var req rubricRequest
	if err := decodeOptional(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.grading.GradeAssignment(r.Context(), chi.URLParam(r, "id"), req.Rubric)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

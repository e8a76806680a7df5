package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/assessor/internal/model"
)

func (h *Handler) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var p model.Profile
	if err := decodeJSON(w, r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(p.ID) == "" {
		h.writeError(w, r, errBadRequest)
		return
	}
	if p.Role != "" && p.Role != model.RoleStudent && p.Role != model.RoleLecturer {
		h.writeError(w, r, errBadRequest)
		return
	}
	if err := h.store.UpsertProfile(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	saved, err := h.store.GetProfile(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, r, errBadRequest)
		return
	}
	notes, err := h.store.ListNotifications(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var a model.Assignment
	if err := decodeJSON(w, r, &a); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(a.Title) == "" || a.MaxScore <= 0 {
		h.writeError(w, r, errBadRequest)
		return
	}
	created, err := h.store.CreateAssignment(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Info("created assignment", "id", created.ID, "title", created.Title)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.GetAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type submissionRequest struct {
	StudentID string   `json:"student_id"`
	Text      string   `json:"submission_text"`
	FileURLs  []string `json:"file_urls"`
}

func (h *Handler) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	asg, err := h.store.GetAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req submissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.StudentID) == "" {
		h.writeError(w, r, errBadRequest)
		return
	}
	sub, err := h.store.CreateSubmission(r.Context(), model.Submission{
		AssignmentID: asg.ID,
		StudentID:    req.StudentID,
		Text:         req.Text,
		FileURLs:     req.FileURLs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetAssignment(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	subs, err := h.store.ListSubmissions(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := h.store.ExportAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

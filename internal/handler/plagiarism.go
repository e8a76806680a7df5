package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/plagiarism"
)

type plagiarismResponse struct {
	Report  model.PlagiarismReport   `json:"report"`
	Pairs   []plagiarism.PairView    `json:"pairs"`
	Counts  map[plagiarism.Phase]int `json:"counts"`
	Message string                   `json:"message"`
}

func plagiarismView(r *http.Request, wf *plagiarism.Workflow) plagiarismResponse {
	report := wf.Report()
	return plagiarismResponse{
		Report:  report,
		Pairs:   wf.Pairs(),
		Counts:  wf.Counts(),
		Message: i18n.Tp(r.Context(), "PairsFlagged", len(report.FlaggedPairs)),
	}
}

func (h *Handler) handleRunPlagiarism(w http.ResponseWriter, r *http.Request) {
	wf, err := h.checker.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plagiarismView(r, wf))
}

func (h *Handler) workflow(w http.ResponseWriter, r *http.Request) (*plagiarism.Workflow, bool) {
	wf, ok := h.checker.Workflow(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, r, errNotFound)
	}
	return wf, ok
}

func (h *Handler) handleGetPlagiarism(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, plagiarismView(r, wf))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleSetReason(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	key := chi.URLParam(r, "pairKey")
	if err := wf.SetReason(key, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, _ := wf.State(key)
	writeJSON(w, http.StatusOK, st)
}

type decisionRequest struct {
	Decision model.Decision `json:"decision"`
	ActorID  string         `json:"actor_id"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.ActorID == "" {
		h.writeError(w, r, errBadRequest)
		return
	}
	key := chi.URLParam(r, "pairKey")
	out, err := wf.Decide(r.Context(), key, req.Decision, req.ActorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Info("plagiarism decision", "pair", key, "decision", req.Decision, "applied", out.Applied, "actor_id", req.ActorID)
	writeJSON(w, http.StatusOK, out)
}

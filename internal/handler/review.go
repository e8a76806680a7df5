package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/assessor/internal/docparse"
	"github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/review"
)

type reviewResponse struct {
	ID      string                   `json:"id"`
	Editing int                      `json:"editing"`
	Draft   *model.ExtractedQuestion `json:"draft,omitempty"`
	Items   []review.ItemView        `json:"items"`
	Dirty   []string                 `json:"dirty"`
	Message string                   `json:"message,omitempty"`
}

func reviewView(s *review.Session) reviewResponse {
	resp := reviewResponse{
		ID:      s.ID(),
		Editing: s.Editing(),
		Items:   s.Items(),
		Dirty:   s.Dirty(),
	}
	if d, err := s.Draft(); err == nil {
		resp.Draft = &d
	}
	return resp
}

// handleExtract reads an uploaded document, extracts its questions and
// opens a review session over them.
func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.writeError(w, r, errBadRequest)
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		h.writeError(w, r, errBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	withImages, _ := strconv.ParseBool(r.FormValue("images"))

	doc, err := docparse.Parse(header.Filename, header.Header.Get("Content-Type"), data, withImages)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	questions, err := h.extractor.ExtractQuestions(r.Context(), doc.Text, doc.Images)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	s := h.reviews.Create(questions)
	h.log.Info("review session opened", "review_id", s.ID(), "file", header.Filename,
		"questions", len(questions), "images", len(doc.Images))
	resp := reviewView(s)
	resp.Message = i18n.Tp(r.Context(), "QuestionsExtracted", len(questions))
	writeJSON(w, http.StatusCreated, resp)
}

// withSession resolves the review session of the request.
func (h *Handler) withSession(fn func(w http.ResponseWriter, r *http.Request, s *review.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.reviews.Get(chi.URLParam(r, "reviewID"))
		if !ok {
			h.writeError(w, r, errNotFound)
			return
		}
		fn(w, r, s)
	}
}

func (h *Handler) handleGetReview(w http.ResponseWriter, r *http.Request, s *review.Session) {
	writeJSON(w, http.StatusOK, reviewView(s))
}

func (h *Handler) handleEditItem(w http.ResponseWriter, r *http.Request, s *review.Session) {
	i, err := intParam(r, "index")
	if err != nil {
		h.writeError(w, r, review.ErrOutOfRange)
		return
	}
	if err := s.Edit(i); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewView(s))
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request, s *review.Session) {
	i, err := intParam(r, "index")
	if err != nil {
		h.writeError(w, r, review.ErrOutOfRange)
		return
	}
	removed, err := s.Delete(i)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := reviewView(s)
	if !removed {
		h.log.Debug("delete ignored", "review_id", s.ID(), "index", i)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSetDraft(w http.ResponseWriter, r *http.Request, s *review.Session) {
	var q model.ExtractedQuestion
	if err := decodeJSON(w, r, &q); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.SetDraft(q); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewView(s))
}

func (h *Handler) handleSaveDraft(w http.ResponseWriter, r *http.Request, s *review.Session) {
	if err := s.SaveEdit(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewView(s))
}

func (h *Handler) handleCancelDraft(w http.ResponseWriter, r *http.Request, s *review.Session) {
	s.CancelEdit()
	writeJSON(w, http.StatusOK, reviewView(s))
}

func (h *Handler) handleAddOption(w http.ResponseWriter, r *http.Request, s *review.Session) {
	if err := s.AddOption(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewView(s))
}

type optionRequest struct {
	Value string `json:"value"`
}

func (h *Handler) handleUpdateOption(w http.ResponseWriter, r *http.Request, s *review.Session) {
	i, err := intParam(r, "option")
	if err != nil {
		h.writeError(w, r, review.ErrOptionRange)
		return
	}
	var req optionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.UpdateOption(i, req.Value); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewView(s))
}

func (h *Handler) handleRemoveOption(w http.ResponseWriter, r *http.Request, s *review.Session) {
	i, err := intParam(r, "option")
	if err != nil {
		h.writeError(w, r, review.ErrOptionRange)
		return
	}
	if err := s.RemoveOption(i); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewView(s))
}

type importRequest struct {
	TestID string `json:"test_id"`
}

type importResponse struct {
	TestID      string  `json:"test_id"`
	QuestionIDs []int64 `json:"question_ids"`
	Message     string  `json:"message"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request, s *review.Session) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.TestID = strings.TrimSpace(req.TestID)
	if req.TestID == "" {
		h.writeError(w, r, errBadRequest)
		return
	}

	var ids []int64
	err := s.Commit(r.Context(), review.ImporterFunc(func(ctx context.Context, qs []model.ExtractedQuestion) error {
		var err error
		ids, err = h.store.ImportQuestions(ctx, req.TestID, qs)
		return err
	}))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.reviews.Remove(s.ID())
	h.log.Info("questions imported", "review_id", s.ID(), "test_id", req.TestID, "count", len(ids))
	writeJSON(w, http.StatusOK, importResponse{
		TestID:      req.TestID,
		QuestionIDs: ids,
		Message:     i18n.Td(r.Context(), "QuestionsImported", map[string]any{"Count": len(ids), "TestID": req.TestID}),
	})
}

func (h *Handler) handleCancelReview(w http.ResponseWriter, r *http.Request, s *review.Session) {
	s.Discard(func() { h.reviews.Remove(s.ID()) })
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.store.ListQuestions(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if qs == nil {
		qs = []model.StoredQuestion{}
	}
	writeJSON(w, http.StatusOK, qs)
}

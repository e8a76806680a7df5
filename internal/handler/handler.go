package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/assessor/internal/docparse"
	"github.com/pavelanni/assessor/internal/extract"
	"github.com/pavelanni/assessor/internal/grading"
	"github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/plagiarism"
	"github.com/pavelanni/assessor/internal/review"
	"github.com/pavelanni/assessor/internal/store"
)

const maxUploadSize = 32 << 20

// Deps are the components the handlers serve.
type Deps struct {
	Store     *store.Store
	Extractor *extract.Extractor
	Grader    *grading.Grader
	Grading   *grading.Service
	Checker   *plagiarism.Checker
	Reviews   *review.Registry
	Logger    *slog.Logger
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	extractor *extract.Extractor
	grader    *grading.Grader
	grading   *grading.Service
	checker   *plagiarism.Checker
	reviews   *review.Registry
	log       *slog.Logger
}

// New creates a new Handler.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{
		store:     d.Store,
		extractor: d.Extractor,
		grader:    d.Grader,
		grading:   d.Grading,
		checker:   d.Checker,
		reviews:   d.Reviews,
		log:       d.Logger,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Post("/extract", h.handleExtract)
	r.Route("/reviews/{reviewID}", func(r chi.Router) {
		r.Get("/", h.withSession(h.handleGetReview))
		r.Post("/items/{index}/edit", h.withSession(h.handleEditItem))
		r.Delete("/items/{index}", h.withSession(h.handleDeleteItem))
		r.Put("/draft", h.withSession(h.handleSetDraft))
		r.Post("/draft/save", h.withSession(h.handleSaveDraft))
		r.Post("/draft/cancel", h.withSession(h.handleCancelDraft))
		r.Post("/draft/options", h.withSession(h.handleAddOption))
		r.Put("/draft/options/{option}", h.withSession(h.handleUpdateOption))
		r.Delete("/draft/options/{option}", h.withSession(h.handleRemoveOption))
		r.Post("/import", h.withSession(h.handleImport))
		r.Post("/cancel", h.withSession(h.handleCancelReview))
	})
	r.Get("/tests/{testID}/questions", h.handleListQuestions)

	r.Post("/grade/text", h.handleGradeText)
	r.Post("/grade/files", h.handleGradeFiles)
	r.Post("/submissions/{id}/grade", h.handleGradeSubmission)
	r.Get("/submissions/{id}/grading", h.handleGetGrading)

	r.Post("/profiles", h.handleUpsertProfile)
	r.Get("/profiles/{id}", h.handleGetProfile)
	r.Get("/notifications", h.handleListNotifications)

	r.Post("/assignments", h.handleCreateAssignment)
	r.Route("/assignments/{id}", func(r chi.Router) {
		r.Get("/", h.handleGetAssignment)
		r.Post("/submissions", h.handleCreateSubmission)
		r.Get("/submissions", h.handleListSubmissions)
		r.Post("/grade", h.handleGradeAssignment)
		r.Get("/export", h.handleExport)
		r.Post("/plagiarism", h.handleRunPlagiarism)
		r.Get("/plagiarism", h.handleGetPlagiarism)
		r.Post("/plagiarism/{pairKey}/reason", h.handleSetReason)
		r.Post("/plagiarism/{pairKey}/decision", h.handleDecide)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

type errorBody struct {
	Error  string          `json:"error"`
	Issues []extract.Issue `json:"issues,omitempty"`
}

// statusFor maps an error onto an HTTP status and a message ID.
func statusFor(err error) (int, string) {
	var valErr *review.ValidationError
	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest, "ErrValidation"
	case errors.Is(err, llm.ErrEmptyInput):
		return http.StatusBadRequest, "ErrEmptyInput"
	case errors.Is(err, docparse.ErrPDFUnsupported),
		errors.Is(err, docparse.ErrUnsupportedType),
		errors.Is(err, docparse.ErrCorruptDocument):
		return http.StatusBadRequest, "ErrUnsupportedDocument"
	case errors.Is(err, errBadRequest),
		errors.Is(err, grading.ErrInvalidMaxScore),
		errors.Is(err, plagiarism.ErrInvalidDecision),
		errors.Is(err, review.ErrOutOfRange),
		errors.Is(err, review.ErrOptionRange),
		errors.Is(err, review.ErrNotMultiChoice),
		errors.Is(err, review.ErrNotEditing),
		errors.Is(err, review.ErrEmptyImport):
		return http.StatusBadRequest, "ErrInvalidRequest"
	case errors.Is(err, errNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, plagiarism.ErrUnknownPair):
		return http.StatusNotFound, "ErrNotFound"
	case errors.Is(err, review.ErrAnotherEditing),
		errors.Is(err, review.ErrEditInProgress),
		errors.Is(err, review.ErrCommitInProgress),
		errors.Is(err, plagiarism.ErrNotPending),
		errors.Is(err, plagiarism.ErrDecisionInFlight),
		errors.Is(err, plagiarism.ErrSuperseded):
		return http.StatusConflict, "ErrConflict"
	case errors.Is(err, review.ErrClosed):
		return http.StatusConflict, "ErrSessionClosed"
	case errors.Is(err, llm.ErrConfiguration):
		return http.StatusServiceUnavailable, "ErrConfiguration"
	case errors.Is(err, extract.ErrExtraction):
		return http.StatusUnprocessableEntity, "ErrExtraction"
	case errors.Is(err, grading.ErrGradingParse):
		return http.StatusUnprocessableEntity, "ErrGradingParse"
	case errors.Is(err, grading.ErrNoAttachableContent):
		return http.StatusUnprocessableEntity, "ErrNoAttachableContent"
	case errors.Is(err, grading.ErrUngradable):
		return http.StatusUnprocessableEntity, "ErrUngradable"
	}
	var netErr *llm.NetworkError
	if errors.As(err, &netErr) {
		return http.StatusBadGateway, "ErrUnavailable"
	}
	return http.StatusInternalServerError, "ErrInternal"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	body := errorBody{Error: i18n.T(r.Context(), msgID)}
	var valErr *review.ValidationError
	var exErr *extract.ExtractionError
	switch {
	case errors.As(err, &valErr):
		body.Issues = valErr.Issues
	case errors.As(err, &exErr):
		body.Issues = exErr.Issues
	}
	writeJSON(w, status, body)
}

// Package extract turns source documents into structured test questions.
package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/model"
)

// Invoker sends prompt parts to a model and returns its raw reply.
type Invoker interface {
	Invoke(ctx context.Context, parts []llm.Part) (string, error)
}

// Observer receives the outcome of every extraction.
type Observer interface {
	ObserveExtraction(outcome string, questions int)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithObserver reports extraction outcomes to o.
func WithObserver(o Observer) Option {
	return func(e *Extractor) { e.observer = o }
}

// Extractor extracts questions with a model.
type Extractor struct {
	invoker  Invoker
	log      *slog.Logger
	observer Observer
}

// New creates an Extractor. A nil logger uses slog.Default.
func New(invoker Invoker, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{invoker: invoker, log: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractQuestions asks the model for the questions in a document. Images,
// when present, are sent inline after the prompt. The result is non-empty
// and every question passes Validate.
func (e *Extractor) ExtractQuestions(ctx context.Context, documentText string, images []model.DocumentImage) ([]model.ExtractedQuestion, error) {
	var imageParts []llm.Part
	for _, img := range images {
		if strings.TrimSpace(img.Base64Data) == "" {
			continue
		}
		mt := img.MimeType
		if mt == "" {
			mt = "image/png"
		}
		imageParts = append(imageParts, llm.ImagePart(mt, img.Base64Data))
	}
	if strings.TrimSpace(documentText) == "" && len(imageParts) == 0 {
		return nil, llm.ErrEmptyInput
	}

	prompt, err := prompts.BuildExtractPrompt(documentText, len(imageParts))
	if err != nil {
		return nil, err
	}
	parts := append([]llm.Part{llm.TextPart(prompt)}, imageParts...)

	raw, err := e.invoker.Invoke(ctx, parts)
	if err != nil {
		e.observe("error", 0)
		return nil, err
	}

	questions, err := Parse(raw)
	if err != nil {
		e.log.Warn("extraction rejected", "error", err, "raw_length", len(raw))
		e.observe("invalid", 0)
		return nil, err
	}
	e.log.Info("questions extracted", "count", len(questions), "images", len(imageParts))
	e.observe("ok", len(questions))
	return questions, nil
}

// Parse decodes a model reply into validated questions. Fenced replies are
// accepted; anything but a non-empty JSON array of valid questions is an
// *ExtractionError.
func Parse(raw string) ([]model.ExtractedQuestion, error) {
	body := llm.StripCodeFences(raw)

	var decoded []rawQuestion
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return nil, &ExtractionError{Reason: "response is not a JSON array of questions", Raw: raw, Err: err}
	}
	if len(decoded) == 0 {
		return nil, &ExtractionError{Reason: "no questions found in document", Raw: raw}
	}

	questions := make([]model.ExtractedQuestion, len(decoded))
	for i, r := range decoded {
		questions[i] = normalize(r)
	}
	if issues := Validate(questions); len(issues) > 0 {
		return nil, &ExtractionError{Reason: "extracted questions are invalid", Raw: raw, Issues: issues}
	}
	return questions, nil
}

func (e *Extractor) observe(outcome string, n int) {
	if e.observer != nil {
		e.observer.ObserveExtraction(outcome, n)
	}
}

// Package grading grades essay and file submissions with a model.
package grading

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"path"
	"strings"

	"github.com/pavelanni/assessor/internal/docparse"
	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/model"
)

// Invoker sends prompt parts to a model and returns its raw reply.
type Invoker interface {
	Invoke(ctx context.Context, parts []llm.Part) (string, error)
}

// Observer receives grading outcomes and normalization adjustments.
type Observer interface {
	ObserveGrading(source, outcome string)
	ObserveAdjustment(kind string)
}

// Options tune a Grader.
type Options struct {
	Variant  prompts.PromptVariant
	Observer Observer
}

// Grader builds grading prompts, calls the model and normalizes the result.
type Grader struct {
	invoker  Invoker
	fetcher  Fetcher
	variant  prompts.PromptVariant
	observer Observer
	log      *slog.Logger
}

// New creates a Grader. fetcher may be nil when only text grading is used.
func New(invoker Invoker, fetcher Fetcher, logger *slog.Logger, opts Options) *Grader {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Variant == "" {
		opts.Variant = prompts.PromptStandard
	}
	return &Grader{
		invoker:  invoker,
		fetcher:  fetcher,
		variant:  opts.Variant,
		observer: opts.Observer,
		log:      logger,
	}
}

// GradeFromText grades an essay embedded in the prompt.
func (g *Grader) GradeFromText(ctx context.Context, text, question string, maxScore float64, rubric string) (model.GradingResult, error) {
	if strings.TrimSpace(text) == "" {
		return model.GradingResult{}, llm.ErrEmptyInput
	}
	if maxScore <= 0 {
		return model.GradingResult{}, ErrInvalidMaxScore
	}

	prompt, err := prompts.BuildGradePrompt(prompts.GradeData{
		Question: question,
		Rubric:   rubric,
		MaxScore: maxScore,
		Answer:   text,
		Variant:  g.variant,
	})
	if err != nil {
		return model.GradingResult{}, err
	}
	return g.grade(ctx, "text", []llm.Part{llm.TextPart(prompt)}, maxScore)
}

// GradeFromFiles fetches the files and grades them as inline attachments.
// Files that fail to fetch are logged and skipped.
func (g *Grader) GradeFromFiles(ctx context.Context, urls []string, question string, maxScore float64, rubric string) (model.GradingResult, error) {
	if len(urls) == 0 {
		return model.GradingResult{}, llm.ErrEmptyInput
	}
	if maxScore <= 0 {
		return model.GradingResult{}, ErrInvalidMaxScore
	}
	return g.gradeFiles(ctx, g.fetchAll(ctx, urls), question, maxScore, rubric)
}

// fetchAll downloads what it can, preserving URL order.
func (g *Grader) fetchAll(ctx context.Context, urls []string) []File {
	if g.fetcher == nil {
		g.log.Warn("no file fetcher configured", "urls", len(urls))
		return nil
	}
	var files []File
	for _, u := range urls {
		f, err := g.fetcher.Fetch(ctx, u)
		if err != nil {
			g.log.Warn("skipping submission file", "url", u, "error", err)
			continue
		}
		if len(f.Data) == 0 {
			g.log.Warn("skipping empty submission file", "url", u)
			continue
		}
		files = append(files, f)
	}
	return files
}

func (g *Grader) gradeFiles(ctx context.Context, files []File, question string, maxScore float64, rubric string) (model.GradingResult, error) {
	attachments := g.attachments(files)
	if len(attachments) == 0 {
		return model.GradingResult{}, ErrNoAttachableContent
	}

	prompt, err := prompts.BuildGradePrompt(prompts.GradeData{
		Question:        question,
		Rubric:          rubric,
		MaxScore:        maxScore,
		FromFiles:       true,
		AttachmentCount: len(attachments),
		Variant:         g.variant,
	})
	if err != nil {
		return model.GradingResult{}, err
	}
	return g.grade(ctx, "files", append([]llm.Part{llm.TextPart(prompt)}, attachments...), maxScore)
}

// attachments turns fetched files into model parts: images inline, other
// files as their extracted text. Files with no readable text are skipped.
func (g *Grader) attachments(files []File) []llm.Part {
	var parts []llm.Part
	for _, f := range files {
		kind, mt := classify(f.ContentType)
		if kind == attachImage {
			parts = append(parts, llm.ImagePart(mt, base64.StdEncoding.EncodeToString(f.Data)))
			continue
		}
		text := strings.TrimSpace(docparse.TextFromFile(mt, f.URL, f.Data))
		if text == "" {
			g.log.Warn("skipping attachment without readable text", "url", f.URL, "content_type", mt)
			continue
		}
		parts = append(parts, llm.DocumentPart(fileName(f.URL), prompts.SanitizeAttachment(text)))
	}
	return parts
}

// fileName is the last path element of a file URL, without query.
func fileName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}

func (g *Grader) grade(ctx context.Context, source string, parts []llm.Part, maxScore float64) (model.GradingResult, error) {
	raw, err := g.invoker.Invoke(ctx, parts)
	if err != nil {
		g.observe(source, "error")
		return model.GradingResult{}, err
	}

	result, err := ParseResult(raw)
	if err != nil {
		g.log.Warn("grading response rejected", "source", source, "error", err)
		g.observe(source, "invalid")
		return model.GradingResult{}, err
	}

	result, adjustments := Normalize(result, maxScore)
	for _, a := range adjustments {
		g.log.Warn("grading result adjusted", "adjustment", a, "max_score", maxScore)
		if g.observer != nil {
			g.observer.ObserveAdjustment(a)
		}
	}
	g.observe(source, "ok")
	return result, nil
}

func (g *Grader) observe(source, outcome string) {
	if g.observer != nil {
		g.observer.ObserveGrading(source, outcome)
	}
}

type rawResult struct {
	Score            *float64                `json:"score"`
	Percentage       float64                 `json:"percentage"`
	Feedback         string                  `json:"feedback"`
	Strengths        []string                `json:"strengths"`
	Improvements     []string                `json:"improvements"`
	GradingBreakdown *model.GradingBreakdown `json:"gradingBreakdown"`
}

// ParseResult decodes a model reply into a GradingResult. Fenced replies
// are accepted. A missing score, breakdown or feedback is a
// *GradingParseError.
func ParseResult(raw string) (model.GradingResult, error) {
	body := llm.StripCodeFences(raw)

	var r rawResult
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return model.GradingResult{}, &GradingParseError{Raw: raw, Err: err}
	}
	if r.Score == nil {
		return model.GradingResult{}, &GradingParseError{Raw: raw, Err: fmt.Errorf("score is missing")}
	}
	if r.GradingBreakdown == nil {
		return model.GradingResult{}, &GradingParseError{Raw: raw, Err: fmt.Errorf("gradingBreakdown is missing")}
	}

	result := model.GradingResult{
		Score:            *r.Score,
		Percentage:       r.Percentage,
		Feedback:         strings.TrimSpace(r.Feedback),
		Strengths:        r.Strengths,
		Improvements:     r.Improvements,
		GradingBreakdown: *r.GradingBreakdown,
	}
	if err := model.Validate.Struct(result); err != nil {
		return model.GradingResult{}, &GradingParseError{Raw: raw, Err: err}
	}
	return result, nil
}

// BreakdownTolerance is how far the breakdown sum may stray from the score.
func BreakdownTolerance(maxScore float64) float64 {
	return math.Max(0.5, 0.02*maxScore)
}

// Normalize clamps a result into the valid range for maxScore and returns
// the adjustments it made. Each breakdown component is clamped to its
// ceiling. A non-zero breakdown that disagrees with the score beyond
// BreakdownTolerance replaces it; an all-zero breakdown under a positive
// score is rebuilt from the score by criterion weight. Afterwards the
// breakdown always sums to the score within tolerance, and percentage is
// recomputed.
func Normalize(r model.GradingResult, maxScore float64) (model.GradingResult, []string) {
	var adjustments []string

	switch {
	case r.Score < 0 || math.IsNaN(r.Score):
		r.Score = 0
		adjustments = append(adjustments, "score_below_zero")
	case r.Score > maxScore:
		r.Score = maxScore
		adjustments = append(adjustments, "score_above_max")
	}

	b := &r.GradingBreakdown
	clamped := false
	for _, c := range []struct {
		v      *float64
		weight float64
	}{
		{&b.Content, model.WeightContent},
		{&b.Structure, model.WeightStructure},
		{&b.CriticalThinking, model.WeightCriticalThinking},
		{&b.LanguageGrammar, model.WeightLanguageGrammar},
	} {
		ceiling := maxScore * c.weight
		switch {
		case *c.v < 0 || math.IsNaN(*c.v):
			*c.v = 0
			clamped = true
		case *c.v > ceiling:
			*c.v = ceiling
			clamped = true
		}
	}
	if clamped {
		adjustments = append(adjustments, "breakdown_clamped")
	}
	r.Score = round2(r.Score)
	switch sum := b.Sum(); {
	case sum == 0 && r.Score > 0:
		b.Content = r.Score * model.WeightContent
		b.Structure = r.Score * model.WeightStructure
		b.CriticalThinking = r.Score * model.WeightCriticalThinking
		b.LanguageGrammar = r.Score * model.WeightLanguageGrammar
		adjustments = append(adjustments, "breakdown_from_score")
	case math.Abs(sum-r.Score) > BreakdownTolerance(maxScore):
		r.Score = round2(math.Min(sum, maxScore))
		adjustments = append(adjustments, "score_from_breakdown")
	}

	r.Percentage = round2(r.Score / maxScore * 100)
	if r.Strengths == nil {
		r.Strengths = []string{}
	}
	if r.Improvements == nil {
		r.Improvements = []string{}
	}
	return r, adjustments
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

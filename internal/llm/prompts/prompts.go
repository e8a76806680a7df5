package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/assessor/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
	documentTagRegex        = regexp.MustCompile(`(?i)</?\s*document\b[^>]*>`)
)

const maxAnswerRunes = 20000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict awards marks only for clearly demonstrated work.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is generous with partial credit.
	PromptLenient PromptVariant = "lenient"
)

var tones = map[PromptVariant]string{
	PromptStrict:   "Apply the rubric strictly: award marks only for what the work clearly demonstrates, and be precise in your feedback.",
	PromptStandard: "Be fair, constructive, and encouraging in your feedback.",
	PromptLenient:  "Give generous partial credit wherever the student shows understanding, and keep your feedback encouraging.",
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	_, ok := tones[PromptVariant(v)]
	return ok
}

var (
	loadOnce      sync.Once
	loadErr       error
	extractText   *template.Template
	extractImages *template.Template
	grade         *template.Template
)

var funcs = template.FuncMap{
	"num": func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) },
}

// Load parses the embedded prompt templates once.
func Load() error {
	loadOnce.Do(func() {
		parse := func(name string) *template.Template {
			if loadErr != nil {
				return nil
			}
			content, err := templateFS.ReadFile("templates/" + name)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + name + ": " + err.Error())
				return nil
			}
			tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + name + ": " + err.Error())
				return nil
			}
			return tmpl
		}
		extractText = parse("extract_text.txt")
		extractImages = parse("extract_images.txt")
		grade = parse("grade.txt")
	})
	return loadErr
}

// ExtractData holds template data for extraction prompts.
type ExtractData struct {
	Document   string
	ImageCount int
}

// BuildExtractPrompt builds the question-extraction prompt. A positive
// imageCount selects the multimodal variant.
func BuildExtractPrompt(document string, imageCount int) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	tmpl := extractText
	if imageCount > 0 {
		tmpl = extractImages
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, ExtractData{
		Document:   sanitizeDocument(document),
		ImageCount: imageCount,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	Question        string
	Rubric          string
	MaxScore        float64
	Answer          string
	FromFiles       bool
	AttachmentCount int
	Variant         PromptVariant

	Tone                string
	ContentMax          float64
	StructureMax        float64
	CriticalThinkingMax float64
	LanguageGrammarMax  float64
}

// BuildGradePrompt builds a grading prompt. An empty rubric falls back to
// DefaultRubric and an unknown variant falls back to standard.
func BuildGradePrompt(data GradeData) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	if data.MaxScore <= 0 {
		return "", fmt.Errorf("max score must be positive, got %v", data.MaxScore)
	}

	if strings.TrimSpace(data.Rubric) == "" {
		data.Rubric = DefaultRubric(data.MaxScore)
	}
	tone, ok := tones[data.Variant]
	if !ok {
		tone = tones[PromptStandard]
	}
	data.Tone = tone
	data.ContentMax = data.MaxScore * model.WeightContent
	data.StructureMax = data.MaxScore * model.WeightStructure
	data.CriticalThinkingMax = data.MaxScore * model.WeightCriticalThinking
	data.LanguageGrammarMax = data.MaxScore * model.WeightLanguageGrammar
	if !data.FromFiles {
		data.Answer = sanitizeAnswer(data.Answer)
	}

	var buf bytes.Buffer
	if err := grade.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DefaultRubric is the four-criterion rubric used when none is supplied.
func DefaultRubric(maxScore float64) string {
	return fmt.Sprintf(`Grade this essay based on the following criteria (out of %s marks):
1. Content Quality (40%%): Relevance, accuracy, depth of understanding
2. Structure & Organization (25%%): Logical flow, clear introduction/conclusion
3. Critical Thinking (20%%): Analysis, reasoning, original insights
4. Language & Grammar (15%%): Clarity, grammar, vocabulary

Provide a detailed breakdown and constructive feedback.`, strconv.FormatFloat(maxScore, 'f', -1, 64))
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}
	return truncate(answer, "\n\n[Answer truncated due to length]")
}

func sanitizeDocument(doc string) string {
	doc = documentTagRegex.ReplaceAllString(doc, "")
	doc = systemInstructionsRegex.ReplaceAllString(doc, "")
	return strings.TrimSpace(doc)
}

// SanitizeAttachment strips prompt delimiters from the extracted text of a
// submission file and caps its length.
func SanitizeAttachment(text string) string {
	return truncate(sanitizeDocument(text), "\n\n[Document truncated due to length]")
}

func truncate(s, marker string) string {
	if utf8.RuneCountInString(s) <= maxAnswerRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxAnswerRunes]) + marker
}

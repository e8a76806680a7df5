package extract

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pavelanni/assessor/internal/model"
)

// rawQuestion is the loosely typed shape the model returns.
type rawQuestion struct {
	QuestionText  string          `json:"question_text"`
	QuestionType  string          `json:"question_type"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Explanation   string          `json:"explanation"`
	Marks         json.RawMessage `json:"marks"`
	HasImage      bool            `json:"has_image"`
}

var typeAliases = map[string]model.QuestionType{
	"mcq":             model.QuestionMCQ,
	"multiple_choice": model.QuestionMCQ,
	"multiplechoice":  model.QuestionMCQ,
	"true_false":      model.QuestionTrueFalse,
	"true/false":      model.QuestionTrueFalse,
	"truefalse":       model.QuestionTrueFalse,
	"true_or_false":   model.QuestionTrueFalse,
	"essay":           model.QuestionEssay,
}

// normalize converts a decoded question into canonical form. It never
// invents answers; anything it cannot repair is left for validation.
func normalize(r rawQuestion) model.ExtractedQuestion {
	q := model.ExtractedQuestion{
		QuestionText: strings.TrimSpace(r.QuestionText),
		QuestionType: normalizeType(r.QuestionType),
		Explanation:  strings.TrimSpace(r.Explanation),
		Marks:        parseMarks(r.Marks),
		HasImage:     r.HasImage,
	}
	for _, o := range r.Options {
		q.Options = append(q.Options, strings.TrimSpace(o))
	}
	answer := parseAnswer(r.CorrectAnswer)

	switch q.QuestionType {
	case model.QuestionMCQ:
		if answer != "" {
			q.CorrectAnswer = model.StringPtr(mcqLetter(answer, q.Options))
		}
	case model.QuestionTrueFalse:
		if len(q.Options) == 0 {
			q.Options = []string{"True", "False"}
		}
		if answer != "" {
			q.CorrectAnswer = model.StringPtr(trueFalse(answer))
		}
	case model.QuestionEssay:
		q.Options = nil
		q.CorrectAnswer = nil
	default:
		if answer != "" {
			q.CorrectAnswer = model.StringPtr(answer)
		}
	}
	return q
}

func normalizeType(s string) model.QuestionType {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if t, ok := typeAliases[key]; ok {
		return t
	}
	return model.QuestionType(key)
}

// parseMarks accepts a JSON number or numeric string; anything else is 1.
func parseMarks(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 1
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && f > 0 {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && f > 0 {
			return f
		}
	}
	return 1
}

// parseAnswer accepts a string, boolean, or number answer; null is empty.
func parseAnswer(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "True"
		}
		return "False"
	}
	return strings.TrimSpace(string(raw))
}

// mcqLetter reduces "b", "B)", "B. 4" or the full option text to a letter.
func mcqLetter(answer string, options []string) string {
	for i, o := range options {
		if strings.EqualFold(answer, o) && len(answer) > 1 {
			return model.OptionLetter(i)
		}
	}
	up := strings.ToUpper(answer)
	if len(up) == 1 {
		return up
	}
	if up[0] >= 'A' && up[0] <= 'Z' && strings.IndexByte(").: -", up[1]) >= 0 {
		return up[:1]
	}
	return answer
}

func trueFalse(answer string) string {
	switch strings.ToLower(answer) {
	case "true", "t", "yes":
		return "True"
	case "false", "f", "no":
		return "False"
	}
	return answer
}

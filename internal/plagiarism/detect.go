// Package plagiarism finds similar submissions and tracks the reviewer's
// decision on each flagged pair.
package plagiarism

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pavelanni/assessor/internal/model"
)

const (
	// DefaultThreshold is the similarity percentage that flags a pair.
	DefaultThreshold = 70

	snippetMinLength  = 50
	snippetSimilarity = 80
	snippetMaxLength  = 100
	maxSnippets       = 3
	minWordLength     = 4
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Detect compares every pair of submission texts and flags pairs at or
// above threshold. A non-positive threshold uses DefaultThreshold. Pairs
// in the report are sorted by similarity, highest first.
func Detect(assignmentID string, submissions []model.Submission, threshold float64) model.PlagiarismReport {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	report := model.PlagiarismReport{
		AssignmentID:     assignmentID,
		TotalSubmissions: len(submissions),
		FlaggedPairs:     []model.PlagiarismMatch{},
		CheckedAt:        time.Now().UTC(),
	}
	if len(submissions) < 2 {
		return report
	}

	for i := 0; i < len(submissions); i++ {
		for j := i + 1; j < len(submissions); j++ {
			a, b := submissions[i], submissions[j]
			if !a.HasText() || !b.HasText() {
				continue
			}
			score := Similarity(a.Text, b.Text)
			if score < threshold {
				continue
			}
			report.FlaggedPairs = append(report.FlaggedPairs, model.PlagiarismMatch{
				Submission1ID:       a.ID,
				Submission2ID:       b.ID,
				Student1ID:          a.StudentID,
				Student2ID:          b.StudentID,
				Student1Name:        a.StudentName,
				Student2Name:        b.StudentName,
				SimilarityScore:     math.Round(score),
				MatchedTextSnippets: Snippets(a.Text, b.Text),
			})
		}
	}

	sort.SliceStable(report.FlaggedPairs, func(i, j int) bool {
		return report.FlaggedPairs[i].SimilarityScore > report.FlaggedPairs[j].SimilarityScore
	})
	return report
}

// Similarity is the cosine similarity of the word frequencies of a and b,
// as a percentage. Words shorter than four characters are ignored.
func Similarity(a, b string) float64 {
	fa, fb := frequencies(a), frequencies(b)
	if len(fa) == 0 || len(fb) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for w, ca := range fa {
		dot += float64(ca * fb[w])
		magA += float64(ca * ca)
	}
	for _, cb := range fb {
		magB += float64(cb * cb)
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)) * 100
}

func frequencies(text string) map[string]int {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, text)

	freq := make(map[string]int)
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) >= minWordLength {
			freq[w]++
		}
	}
	return freq
}

// Snippets returns up to three distinct sentences of a that closely match
// a sentence of b, truncated for display.
func Snippets(a, b string) []string {
	sa, sb := longSentences(a), longSentences(b)
	seen := make(map[string]bool)
	snippets := []string{}
	for _, s1 := range sa {
		for _, s2 := range sb {
			if Similarity(s1, s2) <= snippetSimilarity {
				continue
			}
			snip := truncateRunes(s1, snippetMaxLength) + "..."
			if seen[snip] {
				continue
			}
			seen[snip] = true
			snippets = append(snippets, snip)
			if len(snippets) == maxSnippets {
				return snippets
			}
		}
	}
	return snippets
}

func longSentences(text string) []string {
	var out []string
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) > snippetMinLength {
			out = append(out, s)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Severity is the display tier of a similarity score.
type Severity struct {
	Level   string `json:"level"`
	Variant string `json:"variant"`
}

// SeverityOf maps a similarity score to its tier.
func SeverityOf(score float64) Severity {
	switch {
	case score >= 90:
		return Severity{Level: "very_high", Variant: "destructive"}
	case score >= 80:
		return Severity{Level: "high", Variant: "default"}
	case score >= 70:
		return Severity{Level: "moderate", Variant: "secondary"}
	}
	return Severity{Level: "low", Variant: "secondary"}
}

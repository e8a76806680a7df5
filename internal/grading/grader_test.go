package grading

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/model"
)

const validReply = "```json\n" + `{
  "score": 8,
  "percentage": 80,
  "feedback": "Good work",
  "strengths": ["clear"],
  "improvements": ["depth"],
  "gradingBreakdown": {"content": 3.5, "structure": 2, "criticalThinking": 1.5, "languageGrammar": 1}
}` + "\n```"

// fakeInvoker answers each call with reply(call index, parts).
type fakeInvoker struct {
	mu    sync.Mutex
	calls [][]llm.Part
	reply func(n int, parts []llm.Part) (string, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, parts []llm.Part) (string, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, parts)
	f.mu.Unlock()
	return f.reply(n, parts)
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func replyWith(s string) *fakeInvoker {
	return &fakeInvoker{reply: func(int, []llm.Part) (string, error) { return s, nil }}
}

func TestGradeFromText(t *testing.T) {
	inv := replyWith(validReply)
	g := New(inv, nil, nil, Options{})

	res, err := g.GradeFromText(context.Background(), "War began because of alliances.", "Discuss WWI", 10, "")
	if err != nil {
		t.Fatalf("GradeFromText: %v", err)
	}
	if res.Score != 8 || res.Percentage != 80 || res.Feedback != "Good work" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(inv.calls) != 1 || len(inv.calls[0]) != 1 {
		t.Fatalf("expected one text-only call, got %v", inv.calls)
	}
	if !strings.Contains(inv.calls[0][0].Text, "War began because of alliances.") {
		t.Error("prompt should embed the essay")
	}
}

func TestGradeFromTextWithoutBreakdown(t *testing.T) {
	inv := replyWith(`{"score": 7, "feedback": "decent work"}`)
	g := New(inv, nil, nil, Options{})

	_, err := g.GradeFromText(context.Background(), "An essay.", "Q", 10, "")
	if !errors.Is(err, ErrGradingParse) {
		t.Fatalf("expected ErrGradingParse, got %v", err)
	}
}

func TestGradeFromTextRejectsBadInput(t *testing.T) {
	inv := replyWith(validReply)
	g := New(inv, nil, nil, Options{})

	if _, err := g.GradeFromText(context.Background(), "  ", "Q", 10, ""); !errors.Is(err, llm.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := g.GradeFromText(context.Background(), "essay", "Q", 0, ""); !errors.Is(err, ErrInvalidMaxScore) {
		t.Errorf("expected ErrInvalidMaxScore, got %v", err)
	}
	if _, err := g.GradeFromFiles(context.Background(), nil, "Q", 10, ""); !errors.Is(err, llm.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput for no urls, got %v", err)
	}
	if inv.callCount() != 0 {
		t.Errorf("expected no model calls, got %d", inv.callCount())
	}
}

func newFileServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/essay.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 essay"))
		case "/diagram.jpg":
			w.Header().Set("Content-Type", "image/jpg")
			_, _ = w.Write([]byte("jpeg bytes"))
		case "/notes.txt":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("The war began in 1914 because of alliances."))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGradeFromFilesSkipsFailedURLs(t *testing.T) {
	srv := newFileServer(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	inv := replyWith(validReply)
	g := New(inv, NewHTTPFetcher(0, nil), logger, Options{})

	urls := []string{srv.URL + "/notes.txt?sig=abc", srv.URL + "/missing1", srv.URL + "/essay.pdf", srv.URL + "/missing2"}
	res, err := g.GradeFromFiles(context.Background(), urls, "Discuss WWI", 10, "")
	if err != nil {
		t.Fatalf("GradeFromFiles: %v", err)
	}
	if res.Score != 8 {
		t.Errorf("unexpected score %v", res.Score)
	}

	parts := inv.calls[0]
	if len(parts) != 2 {
		t.Fatalf("expected prompt plus one attachment, got %d parts", len(parts))
	}
	doc := parts[1]
	if doc.Kind != llm.PartDocument || doc.Name != "notes.txt" || !strings.Contains(doc.Text, "The war began in 1914") {
		t.Errorf("text file should travel as its extracted text, got %+v", doc)
	}
	if !strings.Contains(parts[0].Text, "1 attached document(s)") {
		t.Error("prompt should count prepared attachments")
	}
	// The PDF fetches fine but has no readable text layer.
	for _, u := range urls[1:] {
		if !strings.Contains(logs.String(), u) {
			t.Errorf("skipped url %s should be logged; logs: %s", u, logs.String())
		}
	}
}

func TestGradeFromFilesNoAttachableContent(t *testing.T) {
	srv := newFileServer(t)
	inv := replyWith(validReply)
	g := New(inv, NewHTTPFetcher(0, nil), nil, Options{})

	_, err := g.GradeFromFiles(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"}, "Q", 10, "")
	if !errors.Is(err, ErrNoAttachableContent) {
		t.Fatalf("expected ErrNoAttachableContent, got %v", err)
	}
	if inv.callCount() != 0 {
		t.Errorf("expected no model call, got %d", inv.callCount())
	}
}

func TestGradeFromFilesImages(t *testing.T) {
	srv := newFileServer(t)
	inv := replyWith(validReply)
	g := New(inv, NewHTTPFetcher(0, nil), nil, Options{})

	if _, err := g.GradeFromFiles(context.Background(), []string{srv.URL + "/diagram.jpg"}, "Q", 10, ""); err != nil {
		t.Fatalf("GradeFromFiles: %v", err)
	}
	p := inv.calls[0][1]
	if p.Kind != llm.PartImage || p.MediaType != "image/jpeg" {
		t.Errorf("jpg should be sent as image/jpeg, got %+v", p)
	}
}

func TestParseResult(t *testing.T) {
	if _, err := ParseResult(validReply); err != nil {
		t.Fatalf("ParseResult: %v", err)
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "The essay deserves an 8."},
		{"array", "[]"},
		{"missing score", `{"feedback": "ok", "gradingBreakdown": {}}`},
		{"missing breakdown", `{"score": 7, "feedback": "decent work"}`},
		{"null breakdown", `{"score": 7, "feedback": "decent work", "gradingBreakdown": null}`},
		{"blank feedback", `{"score": 5, "feedback": "  ", "gradingBreakdown": {}}`},
		{"string score", `{"score": "five", "feedback": "ok", "gradingBreakdown": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResult(tt.raw)
			var perr *GradingParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected GradingParseError, got %v", err)
			}
			if !errors.Is(err, ErrGradingParse) {
				t.Error("should match ErrGradingParse")
			}
			if perr.Raw != tt.raw {
				t.Error("raw reply should be kept")
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	bd := func(c, s, ct, l float64) model.GradingBreakdown {
		return model.GradingBreakdown{Content: c, Structure: s, CriticalThinking: ct, LanguageGrammar: l}
	}
	tests := []struct {
		name      string
		in        model.GradingResult
		max       float64
		wantScore float64
		wantPct   float64
		wantAdj   []string
	}{
		{
			name: "in range", max: 10,
			in:        model.GradingResult{Score: 8, Percentage: 12, GradingBreakdown: bd(3.5, 2, 1.5, 1)},
			wantScore: 8, wantPct: 80,
		},
		{
			name: "above max", max: 10,
			in:        model.GradingResult{Score: 12, GradingBreakdown: bd(4, 2.5, 2, 1.5)},
			wantScore: 10, wantPct: 100, wantAdj: []string{"score_above_max"},
		},
		{
			name: "negative with zero breakdown", max: 10,
			in:        model.GradingResult{Score: -1},
			wantScore: 0, wantPct: 0, wantAdj: []string{"score_below_zero"},
		},
		{
			name: "zero breakdown spread by weight", max: 10,
			in:        model.GradingResult{Score: 7},
			wantScore: 7, wantPct: 70, wantAdj: []string{"breakdown_from_score"},
		},
		{
			name: "zero breakdown after clamp", max: 10,
			in:        model.GradingResult{Score: 14},
			wantScore: 10, wantPct: 100, wantAdj: []string{"score_above_max", "breakdown_from_score"},
		},
		{
			name: "component above ceiling", max: 10,
			in:        model.GradingResult{Score: 8, GradingBreakdown: bd(6, 2, 1, 1)},
			wantScore: 8, wantPct: 80, wantAdj: []string{"breakdown_clamped"},
		},
		{
			name: "breakdown disagrees", max: 10,
			in:        model.GradingResult{Score: 9, GradingBreakdown: bd(3, 2, 1, 1)},
			wantScore: 7, wantPct: 70, wantAdj: []string{"score_from_breakdown"},
		},
		{
			name: "within tolerance", max: 10,
			in:        model.GradingResult{Score: 7.3, GradingBreakdown: bd(3, 2, 1, 1)},
			wantScore: 7.3, wantPct: 73,
		},
		{
			name: "tolerance scales with max", max: 100,
			in:        model.GradingResult{Score: 50, GradingBreakdown: bd(20, 12, 9, 7)},
			wantScore: 50, wantPct: 50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, adj := Normalize(tt.in, tt.max)
			if got.Score != tt.wantScore || got.Percentage != tt.wantPct {
				t.Errorf("score/pct = %v/%v, want %v/%v", got.Score, got.Percentage, tt.wantScore, tt.wantPct)
			}
			if strings.Join(adj, ",") != strings.Join(tt.wantAdj, ",") {
				t.Errorf("adjustments = %v, want %v", adj, tt.wantAdj)
			}
			if got.Score < 0 || got.Score > tt.max {
				t.Errorf("score %v out of range", got.Score)
			}
			b := got.GradingBreakdown
			if diff := b.Sum() - got.Score; diff > BreakdownTolerance(tt.max) || -diff > BreakdownTolerance(tt.max) {
				t.Errorf("breakdown sum %v strays from score %v", b.Sum(), got.Score)
			}
			if b.Content > tt.max*model.WeightContent || b.Structure > tt.max*model.WeightStructure ||
				b.CriticalThinking > tt.max*model.WeightCriticalThinking || b.LanguageGrammar > tt.max*model.WeightLanguageGrammar {
				t.Errorf("breakdown %+v exceeds ceilings", b)
			}
			if got.Strengths == nil || got.Improvements == nil {
				t.Error("lists should never be nil")
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in       string
		wantKind attachmentKind
		wantType string
	}{
		{"image/png", attachImage, "image/png"},
		{"image/jpg", attachImage, "image/jpeg"},
		{"IMAGE/JPEG", attachImage, "image/jpeg"},
		{"image/webp", attachImage, "image/webp"},
		{"image/gif", attachImage, "image/gif"},
		{"application/pdf", attachDocument, "application/pdf"},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", attachDocument, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"text/plain; charset=utf-8", attachDocument, "text/plain"},
		{"", attachDocument, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, mt := classify(tt.in)
			if kind != tt.wantKind || mt != tt.wantType {
				t.Errorf("classify(%q) = %v %q, want %v %q", tt.in, kind, mt, tt.wantKind, tt.wantType)
			}
		})
	}
}

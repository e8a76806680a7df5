package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestObserversExposed(t *testing.T) {
	m := New()
	m.ObserveCall("ok", 1500*time.Millisecond)
	m.ObserveCall("transient", time.Second)
	m.ObserveExtraction("ok", 3)
	m.ObserveGrading("files", "ok")
	m.ObserveAdjustment("score_above_max")
	m.ObserveDecision("reject")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`assessor_llm_calls_total{outcome="ok"} 1`,
		`assessor_llm_calls_total{outcome="transient"} 1`,
		`assessor_extractions_total{outcome="ok"} 1`,
		`assessor_extracted_questions_total 3`,
		`assessor_gradings_total{outcome="ok",source="files"} 1`,
		`assessor_grading_adjustments_total{kind="score_above_max"} 1`,
		`assessor_plagiarism_decisions_total{decision="reject"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/reviews/{reviewID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/reviews/abc", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `assessor_http_requests_total{method="GET",route="/reviews/{reviewID}",status="404"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("expected %q in output", want)
	}
}

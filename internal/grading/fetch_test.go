package grading

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeObjects struct {
	bucket, key string
}

func (f *fakeObjects) GetObject(_ context.Context, bucket, key string, _ int64) ([]byte, string, error) {
	f.bucket, f.key = bucket, key
	if key == "missing.pdf" {
		return nil, "", errors.New("NoSuchKey")
	}
	return []byte("object data"), "application/pdf", nil
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png"))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	f := &HTTPFetcher{MaxSize: 32}

	file, err := f.Fetch(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if file.ContentType != "image/png" || string(file.Data) != "png" {
		t.Errorf("unexpected file %+v", file)
	}

	_, err = f.Fetch(context.Background(), srv.URL+"/denied")
	var ferr *FetchError
	if !errors.As(err, &ferr) || ferr.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 FetchError, got %v", err)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/big"); err == nil {
		t.Error("expected size limit error")
	}
	if _, err := f.Fetch(context.Background(), "ftp://host/file"); err == nil {
		t.Error("expected unsupported scheme error")
	}
	if _, err := f.Fetch(context.Background(), "s3://bucket/key.pdf"); err == nil {
		t.Error("expected error without object store")
	}
}

func TestHTTPFetcherObjectStore(t *testing.T) {
	objects := &fakeObjects{}
	f := NewHTTPFetcher(0, objects)

	file, err := f.Fetch(context.Background(), "s3://submissions/asg-1/essay.pdf")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if objects.bucket != "submissions" || objects.key != "asg-1/essay.pdf" {
		t.Errorf("wrong object addressed: %s/%s", objects.bucket, objects.key)
	}
	if file.ContentType != "application/pdf" || string(file.Data) != "object data" {
		t.Errorf("unexpected file %+v", file)
	}

	if _, err := f.Fetch(context.Background(), "s3://submissions/missing.pdf"); err == nil {
		t.Error("expected object store error")
	}
	if _, err := f.Fetch(context.Background(), "s3://submissions/"); err == nil {
		t.Error("expected error for missing key")
	}
}

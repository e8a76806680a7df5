package grading

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxFileSize  = 25 << 20
)

// File is a downloaded submission attachment.
type File struct {
	URL         string
	ContentType string
	Data        []byte
}

// Fetcher downloads submission files.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (File, error)
}

// ObjectStore reads objects addressed by bucket and key.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string, maxSize int64) (data []byte, contentType string, err error)
}

// HTTPFetcher fetches http(s) URLs, and s3:// URLs when an ObjectStore is set.
type HTTPFetcher struct {
	Client      *http.Client
	Timeout     time.Duration
	MaxSize     int64
	ObjectStore ObjectStore
}

// NewHTTPFetcher returns a fetcher with the given per-file timeout.
func NewHTTPFetcher(timeout time.Duration, objects ObjectStore) *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient, Timeout: timeout, ObjectStore: objects}
}

// Fetch downloads one file. Non-2xx responses are a *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (File, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxSize := f.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(rawURL)
	if err != nil {
		return File{}, &FetchError{URL: rawURL, Err: err}
	}
	switch u.Scheme {
	case "http", "https":
	case "s3":
		return f.fetchObject(ctx, rawURL, u, maxSize)
	default:
		return File{}, &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return File{}, &FetchError{URL: rawURL, Err: err}
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return File{}, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return File{}, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	data, err := readLimited(resp.Body, maxSize)
	if err != nil {
		return File{}, &FetchError{URL: rawURL, Err: err}
	}
	return File{URL: rawURL, ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

func (f *HTTPFetcher) fetchObject(ctx context.Context, rawURL string, u *url.URL, maxSize int64) (File, error) {
	if f.ObjectStore == nil {
		return File{}, &FetchError{URL: rawURL, Err: fmt.Errorf("object store is not configured")}
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return File{}, &FetchError{URL: rawURL, Err: fmt.Errorf("expected s3://bucket/key")}
	}
	data, ct, err := f.ObjectStore.GetObject(ctx, u.Host, key, maxSize)
	if err != nil {
		return File{}, &FetchError{URL: rawURL, Err: err}
	}
	return File{URL: rawURL, ContentType: ct, Data: data}, nil
}

func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("file exceeds %d bytes", maxSize)
	}
	return data, nil
}

// attachmentKind says how a file is sent to the model.
type attachmentKind int

const (
	attachImage attachmentKind = iota
	attachDocument
)

// classify maps a declared content type to an attachment kind and media
// type. Unknown types are sent as documents with their declared type.
func classify(contentType string) (attachmentKind, string) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "image/png", "image/webp", "image/gif":
		return attachImage, mt
	case "image/jpeg", "image/jpg":
		return attachImage, "image/jpeg"
	case "application/pdf":
		return attachDocument, mt
	case "":
		return attachDocument, "application/octet-stream"
	}
	return attachDocument, mt
}

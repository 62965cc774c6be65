package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vistry-ai/vistry/internal/domain"
	logpkg "github.com/vistry-ai/vistry/internal/logger"
	healthuc "github.com/vistry-ai/vistry/internal/usecase/health"
)

type fakeSearch struct {
	hits []domain.Hit
	err  error

	gotText  string
	gotImage string
}

func (f *fakeSearch) SearchText(_ context.Context, text string) ([]domain.Hit, error) {
	f.gotText = text
	if text == "" {
		return nil, domain.ErrMissingTextInput
	}
	return f.hits, f.err
}

func (f *fakeSearch) SearchImage(_ context.Context, image, text string) ([]domain.Hit, error) {
	f.gotImage = image
	f.gotText = text
	if image == "" {
		return nil, domain.ErrMissingImageInput
	}
	return f.hits, f.err
}

func newTestServer(search searchService, checks map[string]error) *httptest.Server {
	return newTestServerTimeout(search, checks, time.Second)
}

func newTestServerTimeout(search searchService, checks map[string]error, timeout time.Duration) *httptest.Server {
	health := healthuc.New(time.Second)
	for name, err := range checks {
		err := err
		health.Register(name, func(context.Context) error { return err })
	}

	srv := NewServer(search, health, timeout, zap.NewNop())
	r := chi.NewRouter()
	srv.Routes(r)
	return httptest.NewServer(r)
}

func TestSearchText(t *testing.T) {
	search := &fakeSearch{hits: []domain.Hit{
		{Score: 0.9, Source: domain.ProductDocument{ImagePath: "https://signed/a.jpg", Description: "Red dress"}},
	}}
	ts := newTestServer(search, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/text", "application/json", strings.NewReader(`{"textInput":"red dress"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header on success response")
	}
	if search.gotText != "red dress" {
		t.Errorf("service received text %q", search.gotText)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Hits) != 1 || body.Hits[0].Source.Description != "Red dress" {
		t.Errorf("hits = %+v", body.Hits)
	}
}

func TestSearchText_MissingInput(t *testing.T) {
	ts := newTestServer(&fakeSearch{}, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/text", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, expected 400", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header on error response")
	}

	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error != domain.ErrMissingTextInput.Error() {
		t.Errorf("error = %q", body.Error)
	}
}

func TestSearchImage(t *testing.T) {
	search := &fakeSearch{hits: []domain.Hit{{Score: 0.8}}}
	ts := newTestServer(search, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/image", "application/json",
		strings.NewReader(`{"imageInput":"aW1n","textInput":"blue shoe"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if search.gotImage != "aW1n" || search.gotText != "blue shoe" {
		t.Errorf("service received image %q text %q", search.gotImage, search.gotText)
	}
}

func TestSearchImage_MissingInput(t *testing.T) {
	ts := newTestServer(&fakeSearch{}, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/image", "application/json", strings.NewReader(`{"textInput":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, expected 400", resp.StatusCode)
	}
}

func TestSearch_ProviderErrorMapsToBadGateway(t *testing.T) {
	search := &fakeSearch{err: domain.ErrEmbeddingProviderError}
	ts := newTestServer(search, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/text", "application/json", strings.NewReader(`{"textInput":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, expected 502", resp.StatusCode)
	}
}

func TestSearch_UnknownErrorHidesDetail(t *testing.T) {
	search := &fakeSearch{err: errors.New("redis node 10.0.0.3 down")}
	ts := newTestServer(search, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/text", "application/json", strings.NewReader(`{"textInput":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, expected 500", resp.StatusCode)
	}

	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if strings.Contains(body.Error, "10.0.0.3") {
		t.Error("internal detail leaked to client")
	}
}

// slowSearch hangs until the request context expires, like a stalled
// embedding provider or database call.
type slowSearch struct{}

func (slowSearch) SearchText(ctx context.Context, _ string) ([]domain.Hit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowSearch) SearchImage(ctx context.Context, _, _ string) ([]domain.Hit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSearch_TimeoutReturnsJSONError(t *testing.T) {
	ts := newTestServerTimeout(slowSearch{}, nil, 30*time.Millisecond)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/text", "application/json", strings.NewReader(`{"textInput":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, expected 504", resp.StatusCode)
	}

	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error != "search timed out" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestSearchImage_TimeoutReturnsJSONError(t *testing.T) {
	ts := newTestServerTimeout(slowSearch{}, nil, 30*time.Millisecond)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/image", "application/json", strings.NewReader(`{"imageInput":"aW1n"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, expected 504", resp.StatusCode)
	}
}

// deadlineCheck records whether the context handed to the service carries a
// deadline.
type deadlineCheck struct {
	hasDeadline bool
}

func (d *deadlineCheck) SearchText(ctx context.Context, _ string) ([]domain.Hit, error) {
	_, d.hasDeadline = ctx.Deadline()
	return nil, nil
}

func (d *deadlineCheck) SearchImage(ctx context.Context, _, _ string) ([]domain.Hit, error) {
	_, d.hasDeadline = ctx.Deadline()
	return nil, nil
}

func TestSearch_ContextCarriesDeadline(t *testing.T) {
	search := &deadlineCheck{}
	ts := newTestServer(search, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/text", "application/json", strings.NewReader(`{"textInput":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if !search.hasDeadline {
		t.Error("search context must carry a deadline")
	}
}

func TestSearch_UsesRequestScopedLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	reqLogger := zap.New(core)

	srv := NewServer(&fakeSearch{err: errors.New("boom")}, healthuc.New(time.Second), time.Second, zap.NewNop())
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(logpkg.ContextWithLogger(req.Context(), reqLogger)))
		})
	})
	srv.Routes(r)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/text", "application/json", strings.NewReader(`{"textInput":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, expected 500", resp.StatusCode)
	}
	if logs.FilterMessage("internal error").Len() != 1 {
		t.Error("error not logged through the request-scoped logger")
	}
}

func TestSearch_InvalidBody(t *testing.T) {
	ts := newTestServer(&fakeSearch{}, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/search/text", "application/json", strings.NewReader(`{broken`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, expected 400", resp.StatusCode)
	}
}

func TestPreflight(t *testing.T) {
	ts := newTestServer(&fakeSearch{}, nil)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/search/text", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, expected 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("missing Allow-Methods header on preflight")
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&fakeSearch{}, map[string]error{"database": nil, "embedder": nil})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHealthz_Degraded(t *testing.T) {
	ts := newTestServer(&fakeSearch{}, map[string]error{
		"database": nil,
		"embedder": errors.New("connection refused"),
	})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, expected 503", resp.StatusCode)
	}
}

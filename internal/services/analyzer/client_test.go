package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"draftdrop/internal/config"
	"draftdrop/internal/services"
	"draftdrop/internal/testsupport"
)

const sampleReply = `{"title":"sunset tee","description":"A warm sunset over the sea.","bullets":["Soft cotton","Vivid print","Unisex fit","Machine washable","Gift ready"],"tags":["#Sunset","beach","Beach","summer"],"theme":"nature","style":"retro"}`

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": content}},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}
}

func testConfig(baseURL string) config.Analyzer {
	return config.Analyzer{Provider: config.ProviderOpenRouter, APIKey: "test", BaseURL: baseURL, Model: "vision-model", Title: "draftdrop"}
}

func noSleep(time.Duration) {}

func TestAnalyzeSendsImageAndParsesReply(t *testing.T) {
	var gotBody []byte
	var gotAuth, gotTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		gotBody, _ = io.ReadAll(r.Body)
		completionHandler(t, "```json\n"+sampleReply+"\n```")(w, r)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	analysis, err := client.Analyze(context.Background(), testsupport.PNGBytes())
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if gotAuth != "Bearer test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotTitle != "draftdrop" {
		t.Fatalf("unexpected title header %q", gotTitle)
	}
	if !strings.Contains(string(gotBody), "data:image/png;base64,") {
		t.Fatalf("expected png data url in request body, got %s", gotBody)
	}
	if !strings.Contains(string(gotBody), `"model":"vision-model"`) {
		t.Fatalf("expected model in request body, got %s", gotBody)
	}
	if analysis.Title != "Sunset Tee" {
		t.Fatalf("expected title-cased title, got %q", analysis.Title)
	}
	if len(analysis.Bullets) != 5 {
		t.Fatalf("expected 5 bullets, got %d", len(analysis.Bullets))
	}
	wantTags := []string{"sunset", "beach", "summer"}
	if strings.Join(analysis.Tags, ",") != strings.Join(wantTags, ",") {
		t.Fatalf("unexpected tags %v", analysis.Tags)
	}
	if analysis.Theme != "nature" || analysis.Style != "retro" {
		t.Fatalf("unexpected theme/style %q/%q", analysis.Theme, analysis.Style)
	}
}

func TestAnalyzeRetriesRateLimitThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithRetryMaxAttempts(3), WithSleeper(noSleep))
	_, err := client.Analyze(context.Background(), testsupport.PNGBytes())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrAnalysis) {
		t.Fatalf("expected analysis error, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if msg := services.Message(err); !strings.HasSuffix(msg, "rate limited") {
		t.Fatalf("expected rate limited message, got %q", msg)
	}
}

func TestAnalyzeRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	var delays []time.Duration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		completionHandler(t, sampleReply)(w, r)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL),
		WithRetryBackoff(50*time.Millisecond, time.Second),
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }))
	if _, err := client.Analyze(context.Background(), testsupport.PNGBytes()); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(delays) != 1 || delays[0] != 50*time.Millisecond {
		t.Fatalf("unexpected backoff delays %v", delays)
	}
}

func TestAnalyzeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(noSleep))
	_, err := client.Analyze(context.Background(), testsupport.PNGBytes())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
	if msg := services.Message(err); msg != "invalid api key" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAnalyzeRejectsIncompleteReply(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, `{"title":"","description":"x"}`))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Analyze(context.Background(), testsupport.PNGBytes())
	if err == nil || !errors.Is(err, services.ErrAnalysis) {
		t.Fatalf("expected analysis error, got %v", err)
	}
}

func TestAnalyzeEnforcesImageLimit(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.MaxImageBytes = 4
	_, err := NewClient(cfg).Analyze(context.Background(), testsupport.PNGBytes())
	if err == nil || !errors.Is(err, services.ErrAnalysis) {
		t.Fatalf("expected analysis error, got %v", err)
	}
}

func TestNewWithoutKeyIsUnavailable(t *testing.T) {
	analyzer, err := New(context.Background(), config.Analyzer{Provider: config.ProviderOpenRouter})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = analyzer.Analyze(context.Background(), testsupport.PNGBytes())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.Analyzer{Provider: "mystery", APIKey: "k"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

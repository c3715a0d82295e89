package gemini

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"vision-assist/config"
)

const testPrompt = "You are a test persona."

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	cfg.Model = "test-model"
	cfg.InitialDelay = time.Second
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestClient(cfg config.Config, recorder *sleepRecorder) *Client {
	return NewClient(cfg, testPrompt,
		WithSleep(recorder.sleep),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

const groundedResponse = `{
  "candidates": [{
    "content": {"parts": [{"text": "The sky is blue."}]},
    "groundingMetadata": {
      "groundingAttributions": [
        {"web": {"uri": "https://a.com", "title": "A"}},
        {"web": {"uri": "https://b.com"}}
      ]
    }
  }]
}`

func TestClient_Ask_Success(t *testing.T) {
	t.Parallel()

	var received GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/models/test-model:generateContent" {
			http.Error(w, "unexpected route "+r.Method+" "+r.URL.Path, http.StatusNotFound)
			return
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			http.Error(w, "bad key "+got, http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, groundedResponse)
	}))
	defer srv.Close()

	recorder := &sleepRecorder{}
	result := newTestClient(testConfig(srv.URL), recorder).Ask(context.Background(), "why is the sky blue?")

	if result.Outcome != OutcomeOK {
		t.Fatalf("expected OutcomeOK, got %s (%v)", result.Outcome, result.Err)
	}
	if result.Display() != "The sky is blue." {
		t.Errorf("unexpected text %q", result.Display())
	}
	if len(result.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(result.Sources))
	}
	if result.Sources[1].Web.Title != nil {
		t.Errorf("expected missing title to stay nil, got %q", *result.Sources[1].Web.Title)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if len(recorder.delays) != 0 {
		t.Errorf("expected no sleeps, got %v", recorder.delays)
	}

	if len(received.Contents) != 1 || received.Contents[0].Parts[0].Text != "why is the sky blue?" {
		t.Errorf("query not forwarded: %+v", received.Contents)
	}
	if received.SystemInstruction == nil || received.SystemInstruction.Parts[0].Text != testPrompt {
		t.Errorf("system instruction not forwarded: %+v", received.SystemInstruction)
	}
	if len(received.Tools) != 1 || received.Tools[0].GoogleSearch == nil {
		t.Errorf("search grounding not requested: %+v", received.Tools)
	}
}

func TestClient_Ask_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, groundedResponse)
	}))
	defer srv.Close()

	recorder := &sleepRecorder{}
	result := newTestClient(testConfig(srv.URL), recorder).Ask(context.Background(), "q")

	if result.Outcome != OutcomeOK {
		t.Fatalf("expected OutcomeOK, got %s: %s", result.Outcome, result.Display())
	}
	if result.Display() != "The sky is blue." {
		t.Errorf("unexpected text %q", result.Display())
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 HTTP calls, got %d", calls.Load())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(recorder.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, recorder.delays)
	}
	for i := range want {
		if recorder.delays[i] != want[i] {
			t.Errorf("delay before attempt %d: expected %s, got %s", i+2, want[i], recorder.delays[i])
		}
	}
}

func TestClient_Ask_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	recorder := &sleepRecorder{}
	result := newTestClient(testConfig(srv.URL), recorder).Ask(context.Background(), "q")

	if result.Outcome != OutcomeExhausted {
		t.Fatalf("expected OutcomeExhausted, got %s", result.Outcome)
	}
	if !strings.Contains(result.Display(), "Failed to connect to the AI system after 3 attempts") {
		t.Errorf("expected exhaustion text, got %q", result.Display())
	}
	if !strings.Contains(result.Display(), "status 500") {
		t.Errorf("expected status detail in text, got %q", result.Display())
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(result.Sources))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 HTTP calls, got %d", calls.Load())
	}
	if len(recorder.delays) != 2 {
		t.Errorf("expected 2 sleeps, got %v", recorder.delays)
	}
}

func TestClient_Ask_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	cfg := testConfig(baseURL)
	cfg.MaxAttempts = 2
	result := newTestClient(cfg, &sleepRecorder{}).Ask(context.Background(), "q")

	if result.Outcome != OutcomeExhausted {
		t.Fatalf("expected OutcomeExhausted, got %s", result.Outcome)
	}
	if !IsRetryable(result.Err) {
		t.Errorf("expected transport error to be retryable: %v", result.Err)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
}

func TestClient_Ask_AttemptTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxAttempts = 2
	cfg.Timeout = 50 * time.Millisecond
	result := newTestClient(cfg, &sleepRecorder{}).Ask(context.Background(), "q")

	if result.Outcome != OutcomeExhausted {
		t.Fatalf("expected OutcomeExhausted, got %s", result.Outcome)
	}
}

func TestClient_Ask_NoCandidates(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{}`, `{"candidates": []}`, `{"candidates": [null]}`, `{"candidates": [{}]}`} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, body)
		}))

		recorder := &sleepRecorder{}
		result := newTestClient(testConfig(srv.URL), recorder).Ask(context.Background(), "q")
		srv.Close()

		if result.Outcome != OutcomeNoCandidates {
			t.Errorf("%s: expected OutcomeNoCandidates, got %s", body, result.Outcome)
		}
		if result.Display() != "Error: API response contained no candidates." {
			t.Errorf("%s: unexpected text %q", body, result.Display())
		}
		if calls.Load() != 1 || len(recorder.delays) != 0 {
			t.Errorf("%s: expected a single call without sleeping, got %d calls and %v", body, calls.Load(), recorder.delays)
		}
	}
}

func TestClient_Ask_MalformedJSONIsCritical(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, `{"candidates": [`)
	}))
	defer srv.Close()

	recorder := &sleepRecorder{}
	result := newTestClient(testConfig(srv.URL), recorder).Ask(context.Background(), "q")

	if result.Outcome != OutcomeCritical {
		t.Fatalf("expected OutcomeCritical, got %s", result.Outcome)
	}
	if !strings.HasPrefix(result.Display(), "Critical Error: An unexpected issue prevented processing.") {
		t.Errorf("unexpected text %q", result.Display())
	}
	if calls.Load() != 1 || len(recorder.delays) != 0 {
		t.Errorf("expected no retries, got %d calls and %v", calls.Load(), recorder.delays)
	}
}

func TestClient_Ask_MissingTextUsesPlaceholder(t *testing.T) {
	t.Parallel()

	bodies := []string{
		`{"candidates": [{"content": {}}]}`,
		`{"candidates": [{"content": {"parts": []}}]}`,
		`{"candidates": [{"content": {"parts": [{}]}}]}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, body)
		}))
		result := newTestClient(testConfig(srv.URL), &sleepRecorder{}).Ask(context.Background(), "q")
		srv.Close()

		if result.Outcome != OutcomeOK {
			t.Errorf("%s: expected OutcomeOK, got %s", body, result.Outcome)
		}
		if result.Display() != "Error: Text content not found." {
			t.Errorf("%s: unexpected text %q", body, result.Display())
		}
		if len(result.Sources) != 0 {
			t.Errorf("%s: expected no sources", body)
		}
	}
}

func TestClient_Ask_GroundingChunksFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"candidates": [{
			"content": {"parts": [{"text": "ok"}]},
			"groundingMetadata": {"groundingChunks": [{"web": {"uri": "https://c.com", "title": "C"}}]}
		}]}`)
	}))
	defer srv.Close()

	result := newTestClient(testConfig(srv.URL), &sleepRecorder{}).Ask(context.Background(), "q")
	if len(result.Sources) != 1 || *result.Sources[0].Web.URI != "https://c.com" {
		t.Errorf("expected groundingChunks to be used, got %+v", result.Sources)
	}
}

func TestClient_Ask_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(testConfig(srv.URL), testPrompt,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return sleepContext(ctx, d)
		}))

	result := client.Ask(ctx, "q")

	if result.Outcome != OutcomeExhausted {
		t.Fatalf("expected OutcomeExhausted, got %s", result.Outcome)
	}
	if calls.Load() != 1 || result.Attempts != 1 {
		t.Errorf("expected to stop after 1 attempt, got %d calls, %d attempts", calls.Load(), result.Attempts)
	}
	if result.Err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", result.Err)
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Minute); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleepContext did not return promptly after cancellation")
	}
}

func TestNewPayload(t *testing.T) {
	t.Parallel()

	payloadBytes, err := json.Marshal(NewPayload("persona", "hello"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"contents":[{"parts":[{"text":"hello"}]}],"systemInstruction":{"parts":[{"text":"persona"}]},"tools":[{"google_search":{}}]}`
	if string(payloadBytes) != want {
		t.Errorf("unexpected payload\n got: %s\nwant: %s", payloadBytes, want)
	}
}

func TestResult_Display(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{"ok", Result{Outcome: OutcomeOK, Text: "hi"}, "hi"},
		{"no candidates", Result{Outcome: OutcomeNoCandidates}, "Error: API response contained no candidates."},
		{"exhausted", Result{Outcome: OutcomeExhausted, Attempts: 3, Err: ErrProviderUnavailable},
			"Error: Failed to connect to the AI system after 3 attempts. Request Exception: gemini: provider unavailable"},
		{"critical", Result{Outcome: OutcomeCritical, Err: io.ErrUnexpectedEOF},
			"Critical Error: An unexpected issue prevented processing. Exception: unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Display(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClient_Backoff(t *testing.T) {
	t.Parallel()

	c := &Client{initialDelay: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 40, want: maxBackoff},
		{attempt: 70, want: maxBackoff},
	}
	for _, tt := range tests {
		if got := c.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}

	if got := (&Client{}).backoff(5); got != 0 {
		t.Errorf("expected no wait with a zero initial delay, got %s", got)
	}
}

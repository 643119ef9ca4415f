package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrWong99/agora/internal/app"
	"github.com/MrWong99/agora/internal/config"
	llmmock "github.com/MrWong99/agora/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/agora/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/agora/pkg/provider/tts/mock"
	storemock "github.com/MrWong99/agora/pkg/store/mock"
)

const testSecret = "test-secret"

// testConfig returns a minimal config for tests.
func testConfig() *config.Config {
	cfg := &config.Config{
		Database: config.DatabaseConfig{PostgresDSN: "postgres://unused"},
		Auth:     config.AuthConfig{JWTSecret: testSecret},
	}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	config.ApplyDefaults(cfg)
	return cfg
}

// testProviders returns mock providers for every capability.
func testProviders() *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Provider{StreamChunks: llmmock.TextChunks("Torque is ", "rotational force.")},
		STT: &sttmock.Provider{},
		TTS: &ttsmock.Provider{},
	}
}

func newApp(t *testing.T, cfg *config.Config, st *storemock.Store, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithStore(st)}, opts...)
	a, err := app.New(context.Background(), cfg, testProviders(), opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return a
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// pingStore adds a failing Ping to the mock store.
type pingStore struct {
	*storemock.Store
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

// ─── New ─────────────────────────────────────────────────────────────────────

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()
	_, err := app.New(context.Background(), testConfig(), &app.Providers{LLM: &llmmock.Provider{}},
		app.WithStore(storemock.New()))
	if err == nil {
		t.Fatal("expected error when stt and tts are missing")
	}
}

func TestNew_RequiresJWTSecret(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""
	_, err := app.New(context.Background(), cfg, testProviders(), app.WithStore(storemock.New()))
	if err == nil {
		t.Fatal("expected error for empty jwt secret")
	}
}

// ─── Handler ─────────────────────────────────────────────────────────────────

func TestHandler_AuthenticatedChat(t *testing.T) {
	t.Parallel()
	st := storemock.New()
	a := newApp(t, testConfig(), st)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "What is torque?"}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-42"))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["response"] != "Torque is rotational force." {
		t.Errorf("response = %q", body["response"])
	}
	conv, ok := st.Conversation(body["chatId"])
	if !ok || conv.UserID != "user-42" {
		t.Errorf("conversation = %+v (found %v)", conv, ok)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}

func TestHandler_BadTokenIsAnonymous(t *testing.T) {
	t.Parallel()
	st := storemock.New()
	a := newApp(t, testConfig(), st)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "hi"}`))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Error-Kind"); got != "auth_required" {
		t.Errorf("X-Error-Kind = %q", got)
	}
	if st.ConversationCount() != 0 {
		t.Error("anonymous chat must not create a conversation")
	}
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), storemock.New())

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestHandler_MetricsOnSeparateListener(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.MetricsAddr = "127.0.0.1:0"
	a := newApp(t, cfg, storemock.New())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code == http.StatusOK {
		t.Error("/metrics must not be served on the API listener when metrics_addr is set")
	}
}

func TestHandler_ReadyzFailsWhenDatabaseDown(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	a, err := app.New(context.Background(), cfg, testProviders(),
		app.WithStore(pingStore{Store: storemock.New(), err: errors.New("connection refused")}))
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "database") {
		t.Errorf("body = %s", rec.Body)
	}
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	var ran atomic.Bool
	a := newApp(t, testConfig(), storemock.New(), app.WithBackground(func(ctx context.Context) error {
		ran.Store(true)
		<-ctx.Done()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !ran.Load() {
		t.Error("background task was not started")
	}
}

func TestRun_BackgroundFailureStopsServers(t *testing.T) {
	t.Parallel()
	boom := errors.New("watcher broke")
	a := newApp(t, testConfig(), storemock.New(), app.WithBackground(func(context.Context) error {
		return boom
	}))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Run returned %v, want %v", err, boom)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after background failure")
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.ListenAddr = "256.0.0.1:bad"
	a := newApp(t, cfg, storemock.New())

	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), storemock.New())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

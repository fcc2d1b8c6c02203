package http

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/backend"
	"github.com/vovakirdan/roomgate/internal/config"
	"github.com/vovakirdan/roomgate/internal/docstore"
	"github.com/vovakirdan/roomgate/internal/identity"
	"github.com/vovakirdan/roomgate/internal/session"
)

// testEnv is a running server backed by a temporary sqlite store.
type testEnv struct {
	cfg    *config.Config
	server *httptest.Server
	pool   *session.Pool
}

// createTestConfig returns a config suitable for tests.
func createTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.Firebase = config.Firebase{
		APIKey:     "test-api-key",
		AuthDomain: "roomgate-test.firebaseapp.com",
		ProjectID:  "roomgate-test",
		AppID:      "1:123:web:abc",
	}
	cfg.Identity.Emulator = true
	cfg.Identity.SigningSecret = "transport-test-secret-0123456789ab"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "test.db")
	cfg.RateLimit = 0
	return &cfg
}

// createTestServer starts a server for cfg. st overrides the configured store when non-nil.
func createTestServer(t *testing.T, cfg *config.Config, st docstore.Store) *testEnv {
	t.Helper()

	disabledLogger := zerolog.Nop()

	h, err := backend.New(context.Background(), cfg, &disabledLogger)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	if st == nil {
		st = h.Store
	}

	pool := session.NewPool(h.NewAuth, st, cfg.SessionIdleTimeout, &disabledLogger)
	server := NewServer(pool, cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{cfg: cfg, server: ts, pool: pool}
}

// newBrowser returns an HTTP client that keeps cookies like a browser does.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

// createTestToken mints an ID token the test server accepts.
func createTestToken(t *testing.T, cfg *config.Config, uid, name string) string {
	t.Helper()

	token, err := identity.GenerateToken(&identity.VerifierConfig{
		ProjectID: cfg.Firebase.ProjectID,
		Secret:    []byte(cfg.Identity.SigningSecret),
	}, identity.User{UID: uid, DisplayName: name}, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/vovakirdan/roomgate/internal/session"
)

// doJSON sends body as JSON and decodes the response into out when out is non-nil.
func doJSON(t *testing.T, client *http.Client, method, url string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("failed to marshal request: %v", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := createTestServer(t, createTestConfig(t), nil)

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("expected 200 ok, got %d %q", resp.StatusCode, body)
	}
}

func TestConfigEndpoint(t *testing.T) {
	env := createTestServer(t, createTestConfig(t), nil)

	var got map[string]string
	resp := doJSON(t, http.DefaultClient, http.MethodGet, env.server.URL+"/api/config", nil, &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	if got["projectId"] != "roomgate-test" {
		t.Errorf("expected projectId roomgate-test, got %q", got["projectId"])
	}
	if got["apiKey"] != "test-api-key" || got["authDomain"] != "roomgate-test.firebaseapp.com" {
		t.Errorf("unexpected config block: %v", got)
	}
	if _, ok := got["messagingSenderId"]; !ok {
		t.Errorf("expected every config key to be present, got %v", got)
	}
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestAnonymousRequestsDoNotCreateSessions(t *testing.T) {
	cfg := createTestConfig(t)
	env := createTestServer(t, cfg, nil)
	base := env.server.URL

	wrong := *cfg
	wrong.Identity.SigningSecret = "other-secret-0123456789abcdefghijk"

	requests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"get session", http.MethodGet, "/api/session", nil},
		{"get room", http.MethodGet, "/api/rooms/ZZZZ9999", nil},
		{"create room", http.MethodPost, "/api/rooms", CreateRoomRequest{Content: "anon"}},
		{"save nickname", http.MethodPut, "/api/session/nickname", NicknameRequest{Nickname: "Ghost"}},
		{"sign out", http.MethodPost, "/api/auth/signout", nil},
		{"bad credential", http.MethodPost, "/api/auth/google", GoogleSignInRequest{Credential: createTestToken(t, &wrong, "uid-x", "X")}},
		{"missing credential", http.MethodPost, "/api/auth/google", `{}`},
	}

	for i := 0; i < 20; i++ {
		for _, r := range requests {
			// A fresh client per request, like a script that ignores cookies.
			resp := doJSON(t, &http.Client{}, r.method, base+r.path, r.body, nil)
			if c := sessionCookie(resp); c != nil {
				t.Fatalf("%s: cookie must not be issued without sign-in", r.name)
			}
		}
	}

	if env.pool.Len() != 0 {
		t.Fatalf("expected no persisted sessions, got %d", env.pool.Len())
	}
}

func TestSessionCookieIsIssuedOnSignIn(t *testing.T) {
	cfg := createTestConfig(t)
	env := createTestServer(t, cfg, nil)
	browser := newBrowser(t)
	base := env.server.URL

	var first SessionResponse
	resp := doJSON(t, browser, http.MethodGet, base+"/api/session", nil, &first)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if sessionCookie(resp) != nil {
		t.Fatalf("anonymous session must not get a cookie")
	}
	if !first.AuthChecked || first.User != nil || first.IsNewUser {
		t.Errorf("unexpected initial state: %+v", first)
	}
	if first.DisplayName != session.DefaultUserName {
		t.Errorf("expected display name %q, got %q", session.DefaultUserName, first.DisplayName)
	}

	token := createTestToken(t, cfg, "uid-cookie", "Cookie")
	resp = doJSON(t, browser, http.MethodPost, base+"/api/auth/google", GoogleSignInRequest{Credential: token}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	cookie := sessionCookie(resp)
	if cookie == nil {
		t.Fatalf("expected %s cookie after sign-in", SessionCookieName)
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("expected HttpOnly Lax cookie, got %+v", cookie)
	}
	if env.pool.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", env.pool.Len())
	}

	var st SessionResponse
	resp = doJSON(t, browser, http.MethodGet, base+"/api/session", nil, &st)
	if sessionCookie(resp) != nil {
		t.Errorf("cookie must not be reissued for a known session")
	}
	if st.User == nil || st.User.UID != "uid-cookie" {
		t.Errorf("expected signed-in session, got %+v", st.User)
	}

	resp = doJSON(t, browser, http.MethodPost, base+"/api/auth/google", GoogleSignInRequest{Credential: token}, nil)
	if sessionCookie(resp) != nil {
		t.Errorf("cookie must not be reissued on repeated sign-in")
	}
	if env.pool.Len() != 1 {
		t.Errorf("expected 1 session, got %d", env.pool.Len())
	}
}

func TestOnboardingFlow(t *testing.T) {
	cfg := createTestConfig(t)
	env := createTestServer(t, cfg, nil)
	browser := newBrowser(t)
	base := env.server.URL

	// Sign in as a brand new user
	var st SessionResponse
	resp := doJSON(t, browser, http.MethodPost, base+"/api/auth/google",
		GoogleSignInRequest{Credential: createTestToken(t, cfg, "uid-bob", "Robert")}, &st)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if st.User == nil || st.User.UID != "uid-bob" {
		t.Fatalf("expected signed-in user, got %+v", st.User)
	}
	if !st.IsNewUser {
		t.Errorf("expected new user")
	}
	if st.DisplayName != "Robert" {
		t.Errorf("expected display name Robert before nickname, got %q", st.DisplayName)
	}

	// Empty nickname is rejected
	st = SessionResponse{}
	resp = doJSON(t, browser, http.MethodPut, base+"/api/session/nickname", NicknameRequest{Nickname: ""}, &st)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.StatusCode)
	}
	if st.NicknameError != session.MsgNicknameRequired {
		t.Errorf("expected nickname error %q, got %q", session.MsgNicknameRequired, st.NicknameError)
	}
	if !st.IsNewUser {
		t.Errorf("expected user to stay new after validation failure")
	}

	// Valid nickname completes onboarding
	st = SessionResponse{}
	resp = doJSON(t, browser, http.MethodPut, base+"/api/session/nickname", NicknameRequest{Nickname: "Bob"}, &st)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if st.IsNewUser || st.Nickname != "Bob" || st.NicknameError != "" || st.DisplayName != "Bob" {
		t.Errorf("unexpected state after nickname: %+v", st)
	}

	// Sign out clears the session
	st = SessionResponse{}
	resp = doJSON(t, browser, http.MethodPost, base+"/api/auth/signout", nil, &st)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if st.User != nil || st.Nickname != "" || st.IsNewUser {
		t.Errorf("expected cleared session, got %+v", st)
	}

	// A second browser signing in as the same user is a returning user
	other := newBrowser(t)
	st = SessionResponse{}
	doJSON(t, other, http.MethodPost, base+"/api/auth/google",
		GoogleSignInRequest{Credential: createTestToken(t, cfg, "uid-bob", "Robert")}, &st)
	if st.IsNewUser || st.Nickname != "Bob" {
		t.Errorf("expected returning user Bob, got %+v", st)
	}
}

func TestSignInRejectsBadCredential(t *testing.T) {
	cfg := createTestConfig(t)
	env := createTestServer(t, cfg, nil)
	browser := newBrowser(t)
	base := env.server.URL

	doJSON(t, browser, http.MethodPost, base+"/api/auth/google",
		GoogleSignInRequest{Credential: createTestToken(t, cfg, "uid-1", "Ann")}, nil)

	wrong := *cfg
	wrong.Identity.SigningSecret = "other-secret-0123456789abcdefghijk"

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"wrong signature", GoogleSignInRequest{Credential: createTestToken(t, &wrong, "uid-2", "Eve")}, http.StatusUnauthorized},
		{"garbage", GoogleSignInRequest{Credential: "not-a-token"}, http.StatusUnauthorized},
		{"missing credential", `{}`, http.StatusBadRequest},
		{"malformed body", `{"credential":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, browser, http.MethodPost, base+"/api/auth/google", tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			var st SessionResponse
			doJSON(t, browser, http.MethodGet, base+"/api/session", nil, &st)
			if st.User == nil || st.User.UID != "uid-1" {
				t.Errorf("failed sign-in must keep previous identity, got %+v", st.User)
			}
		})
	}
}

func TestSaveNicknameRequiresSignIn(t *testing.T) {
	env := createTestServer(t, createTestConfig(t), nil)
	browser := newBrowser(t)

	var st SessionResponse
	resp := doJSON(t, browser, http.MethodPut, env.server.URL+"/api/session/nickname", NicknameRequest{Nickname: "Ghost"}, &st)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.StatusCode)
	}
	if st.NicknameError != session.MsgNicknameSaveFailed {
		t.Errorf("expected save failure message, got %q", st.NicknameError)
	}
}

func TestSessionsAreIsolatedPerBrowser(t *testing.T) {
	cfg := createTestConfig(t)
	env := createTestServer(t, cfg, nil)
	base := env.server.URL

	alice := newBrowser(t)
	anon := newBrowser(t)

	doJSON(t, alice, http.MethodPost, base+"/api/auth/google",
		GoogleSignInRequest{Credential: createTestToken(t, cfg, "uid-alice", "Alice")}, nil)

	var st SessionResponse
	doJSON(t, anon, http.MethodGet, base+"/api/session", nil, &st)
	if st.User != nil {
		t.Errorf("sign-in leaked into another browser: %+v", st.User)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.RateLimit = 0.001
	cfg.RateBurst = 2
	env := createTestServer(t, cfg, nil)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(env.server.URL + "/health")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	env := createTestServer(t, cfg, nil)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/session", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected allowed origin header, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("expected credentials to be allowed, got %q", got)
	}
}

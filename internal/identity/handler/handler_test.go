package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"otp-auth-service/internal/devotp"
	"otp-auth-service/internal/identity/service"
	"otp-auth-service/internal/mfa"
	mfarepo "otp-auth-service/internal/mfa/repository"
	refreshdomain "otp-auth-service/internal/refreshtoken/domain"
	refreshrepo "otp-auth-service/internal/refreshtoken/repository"
	"otp-auth-service/internal/security"
	"otp-auth-service/internal/server/middleware"
	sessionrepo "otp-auth-service/internal/session/repository"
	userrepo "otp-auth-service/internal/user/repository"
)

type testServer struct {
	router http.Handler
	codes  *devotp.MemoryStore
	tokens *security.TokenProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, refreshrepo.NewMemoryRepository())
}

func newTestServerWith(t *testing.T, refresh service.RefreshRepo) *testServer {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	codes := devotp.NewMemoryStore()
	sessions := sessionrepo.NewMemoryStore(time.Hour)
	auth := service.NewAuthService(service.Deps{
		Users:     userrepo.NewMemoryRepository(),
		Sessions:  sessions,
		Challenge: mfa.NewChallenger(mfarepo.NewMemoryRepository(), sessions, mfa.ChallengerConfig{}, codes),
		Refresh:   refresh,
		Hasher:    security.NewHasher(4),
		Tokens:    tokens,
	})
	h := NewHandler(auth, CookieConfig{})
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Route("/auth/v1", func(r chi.Router) { h.Routes(r, nil) })
	s := &testServer{router: r, codes: codes, tokens: tokens}
	if rec := s.do(t, http.MethodPost, "/auth/v1/register",
		`{"username":"ann","email":"ann@example.com","password":"correct"}`); rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", rec.Code, rec.Body)
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// login returns the session cookie and the code sent for it.
func (s *testServer) login(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/v1/login", `{"username":"ann","password":"correct"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body)
	}
	c := cookie(rec, "auth_session")
	if c == nil || c.Value == "" || !c.HttpOnly {
		t.Fatalf("session cookie = %+v", c)
	}
	code, ok := s.codes.Get(context.Background(), c.Value)
	if !ok {
		t.Fatal("no code sent")
	}
	return c, code
}

// verified logs in and returns the refresh cookie and access token.
func (s *testServer) verified(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	sess, code := s.login(t)
	rec := s.do(t, http.MethodPost, "/auth/v1/otp/verify", `{"otp_code":"`+code+`"}`, sess)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d body=%s", rec.Code, rec.Body)
	}
	access := strings.TrimPrefix(rec.Header().Get("Authorization"), "Bearer ")
	return cookie(rec, "refresh_token"), access
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Status string `json:"status"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", rec.Body, err)
	}
	if body.Status != "error" {
		t.Errorf("status field = %q", body.Status)
	}
	return body.Code
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"created", `{"username":"bob","email":"bob@example.com","password":"secret1"}`, http.StatusCreated, ""},
		{"duplicate username", `{"username":"ann","email":"x@example.com","password":"secret1"}`, http.StatusUnauthorized, "CREDENTIAL_TAKEN"},
		{"duplicate email", `{"username":"zed","email":"ann@example.com","password":"secret1"}`, http.StatusUnauthorized, "CREDENTIAL_TAKEN"},
		{"bad email", `{"username":"zed","email":"nope","password":"secret1"}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown field", `{"username":"zed","email":"z@example.com","password":"secret1","admin":true}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"empty body", ``, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/auth/v1/register", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d body=%s", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantErr != "" {
				if got := errorCode(t, rec); got != tt.wantErr {
					t.Errorf("code = %q, want %q", got, tt.wantErr)
				}
				return
			}
			var body struct {
				Data userResponse `json:"data"`
			}
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if body.Data.Username != "bob" || body.Data.ID == 0 {
				t.Errorf("data = %+v", body.Data)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/v1/login", `{"username":"ann","password":"correct"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Data loginResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.SessionID == "" || body.Data.OTPExpiresAt.IsZero() {
		t.Errorf("data = %+v", body.Data)
	}
	if c := cookie(rec, "auth_session"); c == nil || c.Value != body.Data.SessionID {
		t.Errorf("session cookie = %+v", c)
	}

	for _, b := range []string{`{"username":"ann","password":"wrong"}`, `{"username":"nobody","password":"correct"}`, `{}`} {
		rec := s.do(t, http.MethodPost, "/auth/v1/login", b)
		if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_CREDENTIALS" {
			t.Errorf("login %s: status = %d body=%s", b, rec.Code, rec.Body)
		}
	}
}

func TestVerifyOTP(t *testing.T) {
	s := newTestServer(t)
	sess, code := s.login(t)
	rec := s.do(t, http.MethodPost, "/auth/v1/otp/verify", `{"otp_code":"`+code+`"}`, sess)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	auth := rec.Header().Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("Authorization = %q", auth)
	}
	if u, err := s.tokens.ValidateAccess(strings.TrimPrefix(auth, "Bearer ")); err != nil || u != "ann" {
		t.Errorf("access token = %q, %v", u, err)
	}
	rc := cookie(rec, "refresh_token")
	if rc == nil || rc.Value == "" || !rc.HttpOnly || rc.MaxAge <= 0 {
		t.Errorf("refresh cookie = %+v", rc)
	}
	if sc := cookie(rec, "auth_session"); sc == nil || sc.MaxAge >= 0 {
		t.Errorf("session cookie should be cleared: %+v", sc)
	}
}

func TestVerifyOTP_SessionInBody(t *testing.T) {
	s := newTestServer(t)
	sess, code := s.login(t)
	rec := s.do(t, http.MethodPost, "/auth/v1/otp/verify", `{"session_id":"`+sess.Value+`","otp_code":"`+code+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
}

func TestVerifyOTP_WrongCodes(t *testing.T) {
	s := newTestServer(t)
	sess, code := s.login(t)
	bad := "000000"
	if code == bad {
		bad = "111111"
	}
	want := []string{"INVALID_CREDENTIALS", "INVALID_CREDENTIALS", "EXPIRE_OTP"}
	for i, w := range want {
		rec := s.do(t, http.MethodPost, "/auth/v1/otp/verify", `{"otp_code":"`+bad+`"}`, sess)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
		if got := errorCode(t, rec); got != w {
			t.Errorf("attempt %d: code = %q, want %q", i+1, got, w)
		}
		if cookie(rec, "refresh_token") != nil {
			t.Error("failed verify must not set a refresh cookie")
		}
	}
}

func TestResendOTP(t *testing.T) {
	s := newTestServer(t)
	sess, _ := s.login(t)
	rec := s.do(t, http.MethodPost, "/auth/v1/otp/resend", "", sess)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	code, _ := s.codes.Get(context.Background(), sess.Value)
	if rec := s.do(t, http.MethodPost, "/auth/v1/otp/verify", `{"otp_code":"`+code+`"}`, sess); rec.Code != http.StatusOK {
		t.Errorf("verify resent code status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/auth/v1/otp/resend", `{"session_id":"unknown"}`)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_SESSION" {
		t.Errorf("unknown session: status = %d body=%s", rec.Code, rec.Body)
	}
}

func TestVerifyToken(t *testing.T) {
	s := newTestServer(t)
	_, access := s.verified(t)
	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{"valid", "Bearer " + access, http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"malformed", "Bearer not-a-jwt", http.StatusUnprocessableEntity, "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/v1/token/verify", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantErr != "" && errorCode(t, rec) != tt.wantErr {
				t.Errorf("body = %s", rec.Body)
			}
		})
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	s := newTestServer(t)
	_, access := s.verified(t)
	s.tokens.WithClock(func() time.Time { return time.Now().Add(time.Hour) })
	req := httptest.NewRequest(http.MethodGet, "/auth/v1/token/verify", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != "TOKEN_EXPIRED" {
		t.Errorf("status = %d body=%s", rec.Code, rec.Body)
	}
}

func TestRefreshToken(t *testing.T) {
	s := newTestServer(t)
	rc, _ := s.verified(t)
	rec := s.do(t, http.MethodPost, "/auth/v1/token/refresh", "", rc)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	next := cookie(rec, "refresh_token")
	if next == nil || next.Value == "" || next.Value == rc.Value {
		t.Fatalf("rotated cookie = %+v", next)
	}
	if !strings.HasPrefix(rec.Header().Get("Authorization"), "Bearer ") {
		t.Error("missing Authorization header")
	}

	// Replaying the old cookie is reuse: it fails, clears the cookie and kills the rotated token.
	rec = s.do(t, http.MethodPost, "/auth/v1/token/refresh", "", rc)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "MISSING_TOKEN" {
		t.Fatalf("reuse status = %d body=%s", rec.Code, rec.Body)
	}
	if c := cookie(rec, "refresh_token"); c == nil || c.MaxAge >= 0 {
		t.Errorf("refresh cookie should be cleared: %+v", c)
	}
	if rec := s.do(t, http.MethodPost, "/auth/v1/token/refresh", "", next); rec.Code != http.StatusUnauthorized {
		t.Errorf("rotated token after reuse status = %d", rec.Code)
	}
}

// racedRefresh loses every rotation once lose is set, as if a concurrent request won it.
type racedRefresh struct {
	*refreshrepo.MemoryRepository
	lose bool
}

func (r *racedRefresh) Rotate(ctx context.Context, old string, next *refreshdomain.RefreshToken) (bool, error) {
	if r.lose {
		return false, nil
	}
	return r.MemoryRepository.Rotate(ctx, old, next)
}

func TestRefreshToken_LostRaceKeepsCookie(t *testing.T) {
	repo := &racedRefresh{MemoryRepository: refreshrepo.NewMemoryRepository()}
	s := newTestServerWith(t, repo)
	rc, _ := s.verified(t)
	repo.lose = true
	rec := s.do(t, http.MethodPost, "/auth/v1/token/refresh", "", rc)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "MISSING_TOKEN" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if c := cookie(rec, "refresh_token"); c != nil {
		t.Errorf("losing a rotation race must not touch the refresh cookie, got %+v", c)
	}
}

func TestRefreshToken_ReplacedLoginClearsOnlyItsCookie(t *testing.T) {
	s := newTestServer(t)
	deviceA, _ := s.verified(t)
	deviceB, _ := s.verified(t)
	rec := s.do(t, http.MethodPost, "/auth/v1/token/refresh", "", deviceA)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replaced token status = %d", rec.Code)
	}
	if c := cookie(rec, "refresh_token"); c == nil || c.MaxAge >= 0 {
		t.Errorf("replaced token cookie should be cleared: %+v", c)
	}
	if rec := s.do(t, http.MethodPost, "/auth/v1/token/refresh", "", deviceB); rec.Code != http.StatusOK {
		t.Errorf("newest login refresh = %d body=%s", rec.Code, rec.Body)
	}
}

func TestRefreshToken_NoCookie(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/v1/token/refresh", "")
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "MISSING_TOKEN" {
		t.Errorf("status = %d body=%s", rec.Code, rec.Body)
	}
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	rc, _ := s.verified(t)
	rec := s.do(t, http.MethodPost, "/auth/v1/logout", "", rc)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if c := cookie(rec, "refresh_token"); c == nil || c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("refresh cookie = %+v", c)
	}
	if _, ok := rec.Header()["Authorization"]; !ok || rec.Header().Get("Authorization") != "" {
		t.Errorf("Authorization header = %v", rec.Header()["Authorization"])
	}
	if rec := s.do(t, http.MethodPost, "/auth/v1/token/refresh", "", rc); rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d", rec.Code)
	}
	// Logout without any credentials still succeeds.
	if rec := s.do(t, http.MethodPost, "/auth/v1/logout", ""); rec.Code != http.StatusOK {
		t.Errorf("anonymous logout status = %d", rec.Code)
	}
}

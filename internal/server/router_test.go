package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"otp-auth-service/internal/audit"
	audithandler "otp-auth-service/internal/audit/handler"
	auditrepo "otp-auth-service/internal/audit/repository"
	"otp-auth-service/internal/devotp"
	devotphandler "otp-auth-service/internal/devotp/handler"
	healthhandler "otp-auth-service/internal/health/handler"
	identityhandler "otp-auth-service/internal/identity/handler"
	"otp-auth-service/internal/identity/service"
	"otp-auth-service/internal/mfa"
	mfarepo "otp-auth-service/internal/mfa/repository"
	"otp-auth-service/internal/platform/httpx"
	refreshrepo "otp-auth-service/internal/refreshtoken/repository"
	"otp-auth-service/internal/security"
	"otp-auth-service/internal/server/middleware"
	sessionrepo "otp-auth-service/internal/session/repository"
	userrepo "otp-auth-service/internal/user/repository"
)

type routerFixture struct {
	handler http.Handler
	audit   *auditrepo.MemoryRepository
	codes   *devotp.MemoryStore
}

func newRouterFixture(t *testing.T, d Deps) *routerFixture {
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
		Refresh:   refreshrepo.NewMemoryRepository(),
		Hasher:    security.NewHasher(4),
		Tokens:    tokens,
	})
	if _, err := auth.Register(context.Background(), service.RegisterInput{
		Username: "ann", Email: "ann@example.com", Password: "correct",
	}); err != nil {
		t.Fatal(err)
	}
	repo := auditrepo.NewMemoryRepository()
	d.Auth = identityhandler.NewHandler(auth, identityhandler.CookieConfig{})
	d.Audit = audit.NewLogger(repo, middleware.ClientIP)
	d.AuditLog = audithandler.NewHandler(repo)
	d.Tokens = tokens
	d.DevOTP = devotphandler.NewHandler(codes)
	if d.Health == nil {
		d.Health = healthhandler.NewHandler(nil)
	}
	return &routerFixture{handler: NewRouter(d), audit: repo, codes: codes}
}

// post sends body from the client at remote. forwardedFor, when given, is sent as X-Forwarded-For.
func (f *routerFixture) post(path, body, remote string, forwardedFor ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if remote != "" {
		req.RemoteAddr = remote + ":4000"
	}
	for _, v := range forwardedFor {
		req.Header.Add("X-Forwarded-For", v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthRoutes(t *testing.T) {
	down := healthhandler.PingerFunc(func(context.Context) error { return errors.New("down") })
	f := newRouterFixture(t, Deps{Health: healthhandler.NewHandler(map[string]healthhandler.Pinger{"db": down})})
	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestRouter_LoginAuditedAndDevOTP(t *testing.T) {
	f := newRouterFixture(t, Deps{})
	rec := f.post(AuthPrefix+"/login", `{"username":"ann","password":"correct"}`, "203.0.113.7")
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d body=%s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
	f.post(AuthPrefix+"/login", `{"username":"ann","password":"wrong"}`, "203.0.113.7")

	entries := f.audit.All()
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	if entries[0].Action != audit.ActionLogin || entries[0].Username != "ann" || entries[0].SessionID == "" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[0].IP != "203.0.113.7" {
		t.Errorf("ip = %q", entries[0].IP)
	}
	if entries[1].Action != audit.ActionLoginFailed {
		t.Errorf("second action = %q", entries[1].Action)
	}

	devRec := httptest.NewRecorder()
	f.handler.ServeHTTP(devRec, httptest.NewRequest(http.MethodGet, "/dev/otp?session_id="+entries[0].SessionID, nil))
	if devRec.Code != http.StatusOK {
		t.Errorf("dev otp = %d", devRec.Code)
	}
}

func TestRouter_TokenVerifyNotAudited(t *testing.T) {
	f := newRouterFixture(t, Deps{})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, AuthPrefix+"/token/verify", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if n := len(f.audit.All()); n != 0 {
		t.Errorf("audit entries = %d, want 0", n)
	}
}

func TestRouter_RateLimitsLogin(t *testing.T) {
	f := newRouterFixture(t, Deps{Limiter: middleware.NewRateLimiter(0.001, 2)})
	body := `{"username":"ann","password":"wrong"}`
	for i := 0; i < 2; i++ {
		if rec := f.post(AuthPrefix+"/login", body, "198.51.100.1"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d", i+1, rec.Code)
		}
	}
	if rec := f.post(AuthPrefix+"/login", body, "198.51.100.1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third attempt = %d, want 429", rec.Code)
	}
	if rec := f.post(AuthPrefix+"/login", body, "198.51.100.2"); rec.Code != http.StatusUnauthorized {
		t.Errorf("other client = %d", rec.Code)
	}
	// Registration is not throttled.
	if rec := f.post(AuthPrefix+"/register", `{"username":"bob","email":"bob@example.com","password":"secret1"}`, "198.51.100.1"); rec.Code != http.StatusCreated {
		t.Errorf("register = %d body=%s", rec.Code, rec.Body)
	}
}

func TestRouter_DevOTPUnmounted(t *testing.T) {
	r := NewRouter(Deps{Health: healthhandler.NewHandler(nil)})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp?session_id=x", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_SpoofedForwardedForStillLimited(t *testing.T) {
	f := newRouterFixture(t, Deps{Limiter: middleware.NewRateLimiter(0.001, 2)})
	body := `{"username":"ann","password":"wrong"}`
	passed, limited := 0, 0
	for i := 0; i < 20; i++ {
		rec := f.post(AuthPrefix+"/login", body, "198.51.100.1", fmt.Sprintf("203.0.113.%d", i))
		switch rec.Code {
		case http.StatusTooManyRequests:
			limited++
		case http.StatusUnauthorized:
			passed++
		default:
			t.Fatalf("attempt %d = %d", i+1, rec.Code)
		}
	}
	if passed != 2 || limited != 18 {
		t.Errorf("passed=%d limited=%d, want 2 and 18: a rotating X-Forwarded-For must not mint new buckets", passed, limited)
	}
}

func TestRouter_TrustedProxyForwardedFor(t *testing.T) {
	proxies, err := httpx.ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatal(err)
	}
	f := newRouterFixture(t, Deps{Limiter: middleware.NewRateLimiter(0.001, 1), Proxies: proxies})
	body := `{"username":"ann","password":"wrong"}`
	if rec := f.post(AuthPrefix+"/login", body, "10.0.0.2", "198.51.100.1"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("first client = %d", rec.Code)
	}
	if rec := f.post(AuthPrefix+"/login", body, "10.0.0.2", "198.51.100.1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("first client again = %d, want 429", rec.Code)
	}
	if rec := f.post(AuthPrefix+"/login", body, "10.0.0.2", "198.51.100.2"); rec.Code != http.StatusUnauthorized {
		t.Errorf("second client behind the proxy = %d", rec.Code)
	}
	entries := f.audit.All()
	if len(entries) == 0 || entries[0].IP != "198.51.100.1" {
		t.Errorf("audit entries = %+v, want the forwarded client address", entries)
	}
}

func TestRouter_AuditEvents(t *testing.T) {
	f := newRouterFixture(t, Deps{})
	login := f.post(AuthPrefix+"/login", `{"username":"ann","password":"correct"}`, "192.0.2.8")
	if login.Code != http.StatusOK {
		t.Fatalf("login = %d", login.Code)
	}
	sid := f.audit.All()[0].SessionID
	code, ok := f.codes.Get(context.Background(), sid)
	if !ok {
		t.Fatal("no code recorded")
	}
	verify := f.post(AuthPrefix+"/otp/verify", `{"session_id":"`+sid+`","otp_code":"`+code+`"}`, "192.0.2.8")
	if verify.Code != http.StatusOK {
		t.Fatalf("verify = %d body=%s", verify.Code, verify.Body)
	}

	req := httptest.NewRequest(http.MethodGet, AuthPrefix+"/audit/events", nil)
	req.Header.Set("Authorization", verify.Header().Get("Authorization"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit events = %d body=%s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"action":"otp_verify"`) || !strings.Contains(rec.Body.String(), `"action":"login"`) {
		t.Errorf("body = %s, want the caller's login and verification", rec.Body)
	}
	if n := len(f.audit.All()); n != 2 {
		t.Errorf("audit entries = %d, reading the trail must not be audited", n)
	}

	anon := httptest.NewRecorder()
	f.handler.ServeHTTP(anon, httptest.NewRequest(http.MethodGet, AuthPrefix+"/audit/events", nil))
	if anon.Code != http.StatusUnauthorized {
		t.Errorf("anonymous = %d, want 401", anon.Code)
	}
}

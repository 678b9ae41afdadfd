package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"otp-auth-service/internal/audit"
	audithandler "otp-auth-service/internal/audit/handler"
	auditrepo "otp-auth-service/internal/audit/repository"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/db"
	"otp-auth-service/internal/devotp"
	devotphandler "otp-auth-service/internal/devotp/handler"
	healthhandler "otp-auth-service/internal/health/handler"
	identityhandler "otp-auth-service/internal/identity/handler"
	"otp-auth-service/internal/identity/service"
	"otp-auth-service/internal/mfa"
	"otp-auth-service/internal/mfa/email"
	mfarepo "otp-auth-service/internal/mfa/repository"
	"otp-auth-service/internal/platform/httpx"
	refreshrepo "otp-auth-service/internal/refreshtoken/repository"
	"otp-auth-service/internal/security"
	"otp-auth-service/internal/server"
	"otp-auth-service/internal/server/middleware"
	sessionrepo "otp-auth-service/internal/session/repository"
	"otp-auth-service/internal/telemetry"
	telemetryotel "otp-auth-service/internal/telemetry/otel"
	"otp-auth-service/internal/telemetry/producer"
	userrepo "otp-auth-service/internal/user/repository"
)

// sessionStore is what both the orchestrator and the OTP challenge need from session state.
type sessionStore interface {
	service.SessionStore
	mfa.SessionCounter
}

type repositories struct {
	users    service.UserRepo
	otps     mfarepo.Repository
	refresh  service.RefreshRepo
	audit    auditrepo.Repository
	sessions sessionStore
}

type app struct {
	router  http.Handler
	health  *healthhandler.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	pingers := map[string]healthhandler.Pinger{}

	repos, conn, err := openRepositories(cfg)
	if err != nil {
		return nil, err
	}
	if conn != nil {
		a.closers = append(a.closers, func() { _ = conn.Close() })
		pingers["postgres"] = conn
	}

	if cfg.RedisURL != "" {
		client, err := sessionrepo.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		pingers["redis"] = healthhandler.PingerFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
		repos.sessions = sessionrepo.NewRedisStore(client, cfg.SessionTTL())
		log.Println("session: using redis store")
	} else {
		mem := sessionrepo.NewMemoryStore(cfg.SessionTTL())
		mem.StartSweeper(ctx, 0)
		repos.sessions = mem
		log.Println("session: using in-memory store")
	}

	signer, pub, ephemeral, err := security.LoadSigningKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey, !cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	if ephemeral {
		log.Println("security: using an ephemeral ES256 signing key; tokens will not survive a restart")
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "otp-auth",
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.closers = append(a.closers, func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Printf("telemetry: shutdown: %v", err)
		}
	})
	metrics, err := telemetryotel.NewAuthMetrics(providers.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.AuthEventsKafkaBrokersList(), cfg.AuthEventsKafkaTopic); kp != nil {
		emitters = append(emitters, kp)
		a.closers = append(a.closers, func() { _ = kp.Close() })
		log.Printf("telemetry: streaming auth events to kafka topic %s", cfg.AuthEventsKafkaTopic)
	}

	notifiers := []mfa.Notifier{email.NewDispatcher(mailSender(cfg), cfg.MailFrom, cfg.MailOTPSubject)}
	var devHandler *devotphandler.Handler
	if cfg.OTPReturnToClient && !cfg.IsProduction() {
		store := devotp.NewMemoryStore()
		notifiers = append(notifiers, store)
		devHandler = devotphandler.NewHandler(store)
		log.Println("devotp: dev OTP mode enabled; codes are served at GET /dev/otp")
	}

	challenger := mfa.NewChallenger(repos.otps, repos.sessions, mfa.ChallengerConfig{
		TTL:                cfg.OTPTTL(),
		MaxAttempts:        cfg.OTPMaxAttempts,
		SessionMaxAttempts: cfg.SessionMaxAttempts,
	}, notifiers...)
	challenger.StartJanitor(ctx, cfg.OTPSweepInterval())

	auth := service.NewAuthService(service.Deps{
		Users:     repos.users,
		Sessions:  repos.sessions,
		Challenge: challenger,
		Refresh:   repos.refresh,
		Hasher:    security.NewHasher(cfg.BcryptCost),
		Tokens:    tokens,
		Metrics:   metrics,
	})

	proxies, err := httpx.ParseTrustedProxies(cfg.TrustedProxiesList())
	if err != nil {
		return nil, fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
	}

	a.health = healthhandler.NewHandler(pingers)
	a.router = server.NewRouter(server.Deps{
		Auth: identityhandler.NewHandler(auth, identityhandler.CookieConfig{
			RefreshName: cfg.RefreshCookieName,
			SessionName: cfg.SessionCookieName,
			Secure:      cfg.CookieSecure,
			SessionTTL:  cfg.SessionTTL(),
		}),
		Health:   a.health,
		DevOTP:   devHandler,
		Audit:    audit.NewLogger(repos.audit, middleware.ClientIP),
		AuditLog: audithandler.NewHandler(repos.audit),
		Events:   telemetry.Multi(emitters...),
		Tokens:   tokens,
		Limiter:  middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Proxies:  proxies,
	})
	return a, nil
}

// openRepositories selects Postgres when DATABASE_URL is set and in-memory repositories otherwise.
func openRepositories(cfg *config.Config) (*repositories, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Println("db: DATABASE_URL is empty; using in-memory repositories")
		return &repositories{
			users:   userrepo.NewMemoryRepository(),
			otps:    mfarepo.NewMemoryRepository(),
			refresh: refreshrepo.NewMemoryRepository(),
			audit:   auditrepo.NewMemoryRepository(),
		}, nil, nil
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	return &repositories{
		users:   userrepo.NewPostgresRepository(conn),
		otps:    mfarepo.NewPostgresRepository(conn),
		refresh: refreshrepo.NewPostgresRepository(conn),
		audit:   auditrepo.NewPostgresRepository(conn),
	}, conn, nil
}

func mailSender(cfg *config.Config) email.Sender {
	if cfg.MailRelayURL == "" {
		log.Println("email: MAIL_RELAY_URL is empty; OTP mails are logged without their code")
		return email.LogSender{}
	}
	return email.NewRelayClient(cfg.MailRelayURL, cfg.MailRelayAPIKey)
}

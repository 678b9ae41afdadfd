package mfa

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"otp-auth-service/internal/mfa/domain"
	"otp-auth-service/internal/mfa/repository"
	"otp-auth-service/internal/platform/autherr"
	userdomain "otp-auth-service/internal/user/domain"
)

// Notifier receives a freshly generated code for delivery. Implementations must not block.
type Notifier interface {
	NotifyOTP(ctx context.Context, address, sessionID, code string, expiresAt time.Time)
}

// SessionCounter is the part of the session store the challenge needs.
type SessionCounter interface {
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Destroy(ctx context.Context, id string) error
}

// Challenger generates and verifies one-time codes bound to a login session.
type Challenger struct {
	repo           repository.Repository
	sessions       SessionCounter
	notifiers      []Notifier
	ttl            time.Duration
	maxAttempts    int
	sessionAttempt int
	now            func() time.Time
}

// ChallengerConfig holds the limits of a Challenger. Zero values fall back to the defaults.
type ChallengerConfig struct {
	TTL                time.Duration
	MaxAttempts        int
	SessionMaxAttempts int
}

// NewChallenger returns a Challenger. Nil notifiers are skipped.
func NewChallenger(repo repository.Repository, sessions SessionCounter, cfg ChallengerConfig, notifiers ...Notifier) *Challenger {
	if cfg.TTL <= 0 {
		cfg.TTL = repository.DefaultTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = repository.DefaultMaxAttempts
	}
	if cfg.SessionMaxAttempts <= 0 {
		cfg.SessionMaxAttempts = 3
	}
	c := &Challenger{
		repo:           repo,
		sessions:       sessions,
		ttl:            cfg.TTL,
		maxAttempts:    cfg.MaxAttempts,
		sessionAttempt: cfg.SessionMaxAttempts,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, n := range notifiers {
		if n != nil {
			c.notifiers = append(c.notifiers, n)
		}
	}
	return c
}

// Generate creates a new code for user bound to sessionID, superseding any pending one, and
// hands it to the notifiers. The returned OTP carries the plain code.
func (c *Challenger) Generate(ctx context.Context, user *userdomain.User, sessionID string) (*domain.OTP, error) {
	if user == nil || sessionID == "" {
		return nil, errors.New("mfa: user and session id are required")
	}
	code, err := GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("mfa: generate code: %w", err)
	}
	now := c.now()
	o := &domain.OTP{
		UserID:    user.ID,
		SessionID: sessionID,
		Code:      code,
		CodeHash:  HashOTP(code),
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
		Valid:     true,
	}
	if err := c.repo.Replace(ctx, o); err != nil {
		return nil, err
	}
	for _, n := range c.notifiers {
		n.NotifyOTP(ctx, user.Email, sessionID, code, o.ExpiresAt)
	}
	return o, nil
}

// Resend invalidates the pending code of sessionID and generates a new one with a fresh window.
func (c *Challenger) Resend(ctx context.Context, user *userdomain.User, sessionID string) (*domain.OTP, error) {
	return c.Generate(ctx, user, sessionID)
}

// Verify checks code against the pending OTP of sessionID. On success it returns the OTP, whose
// UserID identifies the verified user; the caller clears the session and issues tokens.
//
// Checks run in order: no pending code (session attempt counter), exhausted code, wrong code,
// expired code. Failures are ErrInvalidCredentials or ErrExpireOTP.
func (c *Challenger) Verify(ctx context.Context, sessionID, code string) (*domain.OTP, error) {
	o, err := c.repo.GetValidBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		n, err := c.sessions.IncrementAttempts(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if n >= c.sessionAttempt {
			c.destroy(ctx, sessionID)
		}
		return nil, autherr.New(autherr.KindInvalidCredentials, "no pending code for session")
	}

	if o.Exhausted(c.maxAttempts) {
		c.expire(ctx, o)
		return nil, autherr.New(autherr.KindExpireOTP, "otp attempts exhausted")
	}

	if !OTPEqual(code, o.CodeHash) {
		n, err := c.repo.IncrementAttempts(ctx, o.ID)
		if errors.Is(err, repository.ErrNotValid) {
			return nil, autherr.New(autherr.KindInvalidCredentials, "invalid code")
		}
		if err != nil {
			return nil, err
		}
		if n >= c.maxAttempts {
			c.expire(ctx, o)
			return nil, autherr.New(autherr.KindExpireOTP, "otp attempts exhausted")
		}
		return nil, autherr.New(autherr.KindInvalidCredentials, "invalid code")
	}

	if o.Expired(c.now()) {
		c.expire(ctx, o)
		return nil, autherr.New(autherr.KindExpireOTP, "otp expired")
	}
	return o, nil
}

// SweepExpired invalidates every pending code past its expiry.
func (c *Challenger) SweepExpired(ctx context.Context) (int64, error) {
	return c.repo.InvalidateExpired(ctx, c.now())
}

// StartJanitor runs SweepExpired every interval until ctx is done.
func (c *Challenger) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.SweepExpired(ctx)
				if err != nil {
					log.Printf("mfa: otp sweep: %v", err)
				} else if n > 0 {
					log.Printf("mfa: invalidated %d expired otps", n)
				}
			}
		}
	}()
}

// expire ends the challenge: the code is invalidated and the session destroyed.
func (c *Challenger) expire(ctx context.Context, o *domain.OTP) {
	if err := c.repo.Invalidate(ctx, o.ID); err != nil {
		log.Printf("mfa: invalidate otp %d: %v", o.ID, err)
	}
	c.destroy(ctx, o.SessionID)
}

func (c *Challenger) destroy(ctx context.Context, sessionID string) {
	if err := c.sessions.Destroy(ctx, sessionID); err != nil {
		log.Printf("mfa: destroy session %s: %v", sessionID, err)
	}
}

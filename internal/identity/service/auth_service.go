package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	mfadomain "otp-auth-service/internal/mfa/domain"
	"otp-auth-service/internal/platform/autherr"
	refreshdomain "otp-auth-service/internal/refreshtoken/domain"
	"otp-auth-service/internal/security"
	sessiondomain "otp-auth-service/internal/session/domain"
	userdomain "otp-auth-service/internal/user/domain"
	userrepo "otp-auth-service/internal/user/repository"
)

// ErrInvalidInput wraps request data the service rejects before any auth decision.
var ErrInvalidInput = errors.New("invalid input")

// ErrRefreshRaced is joined to the MissingToken failure of a refresh that lost the rotation of
// its token to a concurrent request. The winner holds the valid successor.
var ErrRefreshRaced = errors.New("rotated by a concurrent request")

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// SessionStore is the minimal pending-login store needed by the auth service.
type SessionStore interface {
	Create(ctx context.Context, id, username string) error
	Get(ctx context.Context, id string) (*sessiondomain.State, error)
	Consume(ctx context.Context, id string) (string, bool, error)
	Destroy(ctx context.Context, id string) error
}

// OTPChallenge is the one-time code flow used between the password and token steps.
type OTPChallenge interface {
	Generate(ctx context.Context, user *userdomain.User, sessionID string) (*mfadomain.OTP, error)
	Resend(ctx context.Context, user *userdomain.User, sessionID string) (*mfadomain.OTP, error)
	Verify(ctx context.Context, sessionID, code string) (*mfadomain.OTP, error)
}

// RefreshRepo is the minimal refresh token store needed by the auth service.
type RefreshRepo interface {
	Put(ctx context.Context, t *refreshdomain.RefreshToken) error
	Get(ctx context.Context, token string) (*refreshdomain.RefreshToken, error)
	Lookup(ctx context.Context, token string) (*refreshdomain.RefreshToken, error)
	Rotate(ctx context.Context, old string, next *refreshdomain.RefreshToken) (bool, error)
	Revoke(ctx context.Context, token string, reason refreshdomain.RevokeReason) error
	RevokeAllByUser(ctx context.Context, userID int64, reason refreshdomain.RevokeReason) error
}

// Recorder counts auth outcomes. outcome is "success" or an error kind.
type Recorder interface {
	Login(ctx context.Context, outcome string)
	Verification(ctx context.Context, outcome string)
	Resend(ctx context.Context, outcome string)
	Refresh(ctx context.Context, outcome string)
}

// RegisterInput holds the fields of a registration.
type RegisterInput struct {
	Username string
	Email    string
	Name     string
	Password string
}

// LoginResult is returned by Login and ResendOTP.
type LoginResult struct {
	SessionID    string
	OTPExpiresAt time.Time
}

// TokenResult is returned by VerifyOTP and RefreshToken.
type TokenResult struct {
	Username         string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthService runs the two-step login and the token lifecycle.
// Failures are *autherr.Error values; anything else is an infrastructure error.
type AuthService struct {
	users      UserRepo
	sessions   SessionStore
	challenge  OTPChallenge
	refresh    RefreshRepo
	validator  *CredentialValidator
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	metrics    Recorder
	now        func() time.Time
	newSession func() string
}

// Deps holds the collaborators of AuthService. Metrics may be nil.
type Deps struct {
	Users     UserRepo
	Sessions  SessionStore
	Challenge OTPChallenge
	Refresh   RefreshRepo
	Hasher    *security.Hasher
	Tokens    *security.TokenProvider
	Metrics   Recorder
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps) *AuthService {
	return &AuthService{
		users:      d.Users,
		sessions:   d.Sessions,
		challenge:  d.Challenge,
		refresh:    d.Refresh,
		validator:  NewCredentialValidator(d.Users, d.Hasher),
		hasher:     d.Hasher,
		tokens:     d.Tokens,
		metrics:    d.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
		newSession: uuid.NewString,
	}
}

// Register creates a user. Returns ErrCredentialTaken when the username or email exists.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*userdomain.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if existing, err := s.users.GetByUsername(ctx, username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, autherr.New(autherr.KindCredentialTaken, "username already taken")
	}
	if existing, err := s.users.GetByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, autherr.New(autherr.KindCredentialTaken, "email already taken")
	}
	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, err
	}
	user := &userdomain.User{
		Username:     username,
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, userrepo.ErrDuplicateUsername):
			return nil, autherr.New(autherr.KindCredentialTaken, "username already taken")
		case errors.Is(err, userrepo.ErrDuplicateEmail):
			return nil, autherr.New(autherr.KindCredentialTaken, "email already taken")
		}
		return nil, err
	}
	return user, nil
}

// Login checks the password, opens a pending session and sends a code.
func (s *AuthService) Login(ctx context.Context, username, password string) (res *LoginResult, err error) {
	defer func() { s.record(ctx, opLogin, err) }()
	user, err := s.validator.Validate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	sessionID := s.newSession()
	if err := s.sessions.Create(ctx, sessionID, user.Username); err != nil {
		return nil, err
	}
	o, err := s.challenge.Generate(ctx, user, sessionID)
	if err != nil {
		s.destroySession(ctx, sessionID)
		return nil, err
	}
	return &LoginResult{SessionID: sessionID, OTPExpiresAt: o.ExpiresAt}, nil
}

// VerifyOTP completes the login: on a correct code the session is consumed and tokens are issued.
// Issuing the refresh token revokes the user's earlier refresh tokens.
func (s *AuthService) VerifyOTP(ctx context.Context, sessionID, code string) (res *TokenResult, err error) {
	defer func() { s.record(ctx, opVerify, err) }()
	if sessionID == "" {
		return nil, autherr.New(autherr.KindInvalidCredentials, "session id is required")
	}
	o, err := s.challenge.Verify(ctx, sessionID, code)
	if err != nil {
		return nil, err
	}
	username, ok, err := s.sessions.Consume(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, autherr.New(autherr.KindInvalidCredentials, "session already completed")
	}
	user, err := s.users.GetByID(ctx, o.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Username != username {
		return nil, autherr.New(autherr.KindInvalidCredentials, "session does not match code owner")
	}
	refresh, refreshExp, err := s.tokens.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	rt := &refreshdomain.RefreshToken{UserID: user.ID, Token: refresh, IssuedAt: s.now(), ExpiresAt: refreshExp}
	if err := s.refresh.Put(ctx, rt); err != nil {
		return nil, err
	}
	access, _, accessExp, err := s.tokens.IssueAccess(user.Username)
	if err != nil {
		return nil, err
	}
	return &TokenResult{
		Username:         user.Username,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ResendOTP replaces the pending code of a session. Returns ErrInvalidSession when the session
// has no pending username.
func (s *AuthService) ResendOTP(ctx context.Context, sessionID string) (res *LoginResult, err error) {
	defer func() { s.record(ctx, opResend, err) }()
	if sessionID == "" {
		return nil, autherr.New(autherr.KindInvalidSession, "session id is required")
	}
	st, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !st.Pending() {
		return nil, autherr.New(autherr.KindInvalidSession, "no pending login for session")
	}
	user, err := s.users.GetByUsername(ctx, st.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.destroySession(ctx, sessionID)
		return nil, autherr.New(autherr.KindInvalidSession, "no pending login for session")
	}
	o, err := s.challenge.Resend(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{SessionID: sessionID, OTPExpiresAt: o.ExpiresAt}, nil
}

// VerifyToken returns the username embedded in a valid access token.
// A malformed token is an unclassified error wrapping security.ErrInvalidToken.
func (s *AuthService) VerifyToken(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", autherr.New(autherr.KindMissingToken, "access token is required")
	}
	username, err := s.tokens.ValidateAccess(token)
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return "", autherr.New(autherr.KindTokenExpired, "access token expired")
	case err != nil:
		return "", fmt.Errorf("verify token: %w", err)
	}
	return username, nil
}

// RefreshToken exchanges a refresh token for a new access token and a rotated refresh token.
// Every failure is ErrMissingToken and destroys sessionID. Presenting a token that was already
// rotated is reuse and revokes every refresh token of its owner; tokens revoked for any other
// reason are simply rejected.
func (s *AuthService) RefreshToken(ctx context.Context, token, sessionID string) (res *TokenResult, err error) {
	defer func() { s.record(ctx, opRefresh, err) }()
	defer func() {
		if autherr.KindOf(err) == autherr.KindMissingToken {
			s.destroySession(ctx, sessionID)
		}
	}()
	if token == "" {
		return nil, autherr.New(autherr.KindMissingToken, "refresh token is required")
	}
	rt, err := s.refresh.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, s.rejectInactive(ctx, token)
	}
	if rt.Expired(s.now()) {
		s.revoke(ctx, token, refreshdomain.RevokedExpired)
		return nil, autherr.New(autherr.KindMissingToken, "refresh token expired")
	}
	user, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.revoke(ctx, token, refreshdomain.RevokedOrphaned)
		return nil, autherr.New(autherr.KindMissingToken, "refresh token owner not found")
	}
	next, nextExp, err := s.tokens.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	rotated, err := s.refresh.Rotate(ctx, token, &refreshdomain.RefreshToken{
		UserID:    user.ID,
		Token:     next,
		IssuedAt:  s.now(),
		ExpiresAt: nextExp,
	})
	if err != nil {
		return nil, err
	}
	if !rotated {
		return nil, fmt.Errorf("%w: %w", autherr.New(autherr.KindMissingToken, "refresh token already used"), ErrRefreshRaced)
	}
	access, _, accessExp, err := s.tokens.IssueAccess(user.Username)
	if err != nil {
		return nil, err
	}
	return &TokenResult{
		Username:         user.Username,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     next,
		RefreshExpiresAt: nextExp,
	}, nil
}

// rejectInactive classifies a token Get did not return. A token that was already rotated is reuse
// and revokes every refresh token of its owner.
func (s *AuthService) rejectInactive(ctx context.Context, token string) error {
	rt, err := s.refresh.Lookup(ctx, token)
	if err != nil {
		return err
	}
	switch {
	case rt == nil:
		return autherr.New(autherr.KindMissingToken, "unknown refresh token")
	case rt.Rotated():
		if err := s.refresh.RevokeAllByUser(ctx, rt.UserID, refreshdomain.RevokedReuse); err != nil {
			log.Printf("auth: revoke all refresh tokens user=%d: %v", rt.UserID, err)
		}
		return autherr.New(autherr.KindMissingToken, "refresh token reuse detected")
	default:
		return autherr.New(autherr.KindMissingToken, "refresh token revoked")
	}
}

// Logout revokes the refresh token when present and destroys the session. It never fails;
// store errors are logged.
func (s *AuthService) Logout(ctx context.Context, refreshToken, sessionID string) {
	if refreshToken != "" {
		s.revoke(ctx, refreshToken, refreshdomain.RevokedLogout)
	}
	s.destroySession(ctx, sessionID)
}

func (s *AuthService) revoke(ctx context.Context, token string, reason refreshdomain.RevokeReason) {
	if err := s.refresh.Revoke(ctx, token, reason); err != nil {
		log.Printf("auth: revoke refresh token: %v", err)
	}
}

func (s *AuthService) destroySession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		log.Printf("auth: destroy session %s: %v", sessionID, err)
	}
}

type metricOp int

const (
	opLogin metricOp = iota
	opVerify
	opResend
	opRefresh
)

func (s *AuthService) record(ctx context.Context, op metricOp, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(autherr.KindOf(err))
	}
	switch op {
	case opLogin:
		s.metrics.Login(ctx, outcome)
	case opVerify:
		s.metrics.Verification(ctx, outcome)
	case opResend:
		s.metrics.Resend(ctx, outcome)
	case opRefresh:
		s.metrics.Refresh(ctx, outcome)
	}
}

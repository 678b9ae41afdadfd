package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or its signature, issuer or audience is wrong.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when an otherwise valid access token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
)

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 32

// AccessClaims holds JWT claims for the access token. The username travels in sub.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// TokenProvider issues and validates JWT access tokens using RS256 or ES256 (private/public key)
// and mints opaque refresh tokens.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on every access token.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// RefreshTTL is the lifetime given to refresh tokens minted by NewRefreshToken.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT for username.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(username string) (token string, jti string, expiresAt time.Time, err error) {
	if username == "" {
		return "", "", time.Time{}, ErrInvalidToken
	}
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   username,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

// NewRefreshToken returns an unguessable opaque refresh token and its expiry.
// The token carries no claims; it is resolved through the refresh token store.
func (p *TokenProvider) NewRefreshToken() (token string, expiresAt time.Time, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	return base64.RawURLEncoding.EncodeToString(b), p.now().UTC().Add(p.refreshTTL), nil
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud) and returns the username.
// Returns ErrTokenExpired when only the expiry check fails and ErrInvalidToken for anything else.
func (p *TokenProvider) ValidateAccess(tokenString string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{KeyAlg(p.publicKey)}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &AccessClaims{}, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

package security

import "time"

// NewTestTokenProvider returns a TokenProvider backed by a freshly generated ES256 key pair.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, pub, err := GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, "test-issuer", "test-audience", 15*time.Minute, 24*time.Hour), nil
}

// WithClock overrides the provider's time source. For tests that need to move past token expiry.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	p.now = now
	return p
}

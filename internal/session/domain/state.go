package domain

import "time"

// State is the pending-login state kept between the password step and the OTP step.
// Attempts counts verify calls that found no valid OTP for this session; wrong codes are counted on the OTP.
type State struct {
	ID        string
	Username  string
	Attempts  int
	ExpiresAt time.Time
}

// Pending reports whether a password check has bound a user to this session.
func (s *State) Pending() bool {
	return s != nil && s.Username != ""
}

package security

import "testing"

func TestHashRefreshToken(t *testing.T) {
	a := HashRefreshToken("token-1")
	if a != HashRefreshToken("token-1") {
		t.Error("HashRefreshToken not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(a))
	}
	if a == HashRefreshToken("token-2") {
		t.Error("different tokens produced the same hash")
	}
}

func TestRefreshTokenHashEqual(t *testing.T) {
	stored := HashRefreshToken("correct-token")
	testCases := []struct {
		name     string
		token    string
		stored   string
		expected bool
	}{
		{"match", "correct-token", stored, true},
		{"wrong token", "wrong-token", stored, false},
		{"longer hash", "correct-token", "a" + stored, false},
		{"same length different content", "correct-token", "a" + stored[1:], stored[0] == 'a'},
		{"empty token", "", HashRefreshToken(""), false},
		{"empty both", "", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RefreshTokenHashEqual(tc.token, tc.stored); got != tc.expected {
				t.Errorf("RefreshTokenHashEqual = %v, want %v", got, tc.expected)
			}
		})
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otp-auth-service/internal/devotp"
)

func TestGetOTP(t *testing.T) {
	store := devotp.NewMemoryStore()
	store.Put(context.Background(), "s1", "123456", time.Now().Add(time.Minute))
	h := NewHandler(store)

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantOTP  string
	}{
		{"found", "?session_id=s1", http.StatusOK, "123456"},
		{"missing param", "", http.StatusBadRequest, ""},
		{"unknown session", "?session_id=nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetOTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp"+tt.query, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantOTP == "" {
				return
			}
			var body struct {
				Data otpResponse `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Data.OTP != tt.wantOTP || body.Data.Note != devOTPNote {
				t.Errorf("data = %+v", body.Data)
			}
		})
	}
}

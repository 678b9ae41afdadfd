package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"otp-auth-service/internal/audit/domain"
)

type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByUsername(context.Context, string, int32, int32) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func TestLogger_LogEvent(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(context.Context) string { return "192.168.1.1" })
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.FixedZone("x", 3600))
	logger.nowF = func() time.Time { return fixed }

	logger.LogEvent(context.Background(), "ann", "s1", ActionLogin, ResourceSession, `{"status":200}`)

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ID == "" {
		t.Error("ID should be set")
	}
	if e.Username != "ann" || e.SessionID != "s1" || e.Action != ActionLogin || e.Resource != ResourceSession {
		t.Errorf("entry = %+v", e)
	}
	if e.IP != "192.168.1.1" {
		t.Errorf("IP = %q", e.IP)
	}
	if !e.CreatedAt.Equal(fixed) || e.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v, want %v in UTC", e.CreatedAt, fixed)
	}
}

func TestLogger_LogEvent_UnknownIP(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil).LogEvent(context.Background(), "", "", ActionLoginFailed, ResourceSession, "")
	NewLogger(repo, func(context.Context) string { return "" }).LogEvent(context.Background(), "", "", ActionLoginFailed, ResourceSession, "")
	for i, e := range repo.entries {
		if e.IP != "unknown" {
			t.Errorf("entry %d IP = %q, want unknown", i, e.IP)
		}
	}
}

func TestLogger_LogEvent_ErrorSwallowed(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	NewLogger(repo, nil).LogEvent(context.Background(), "ann", "", ActionLogout, ResourceSession, "")
	if len(repo.entries) != 0 {
		t.Error("no entry should be stored on error")
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger
	l.LogEvent(context.Background(), "ann", "", ActionLogout, ResourceSession, "")
	NewLogger(nil, nil).LogEvent(context.Background(), "ann", "", ActionLogout, ResourceSession, "")
}

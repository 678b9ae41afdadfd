package domain

import "time"

// AuditLog represents one authentication audit event.
type AuditLog struct {
	ID        string
	Username  string
	SessionID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

// Package middleware holds the HTTP middleware chain of the auth API: request ids, panic
// recovery, access logging, identity context, telemetry, audit and rate limiting.
package middleware

import (
	"context"
	"sync"
)

type contextKey struct{ name string }

var (
	requestInfoKey = contextKey{"request_info"}
	clientIPKey    = contextKey{"client_ip"}
)

// RequestInfo carries the identity a request resolved to. Handlers fill it in as they learn
// the username or session id; middleware reads it after the handler returns.
type RequestInfo struct {
	mu        sync.Mutex
	username  string
	sessionID string
}

// WithRequestInfo returns ctx carrying a fresh RequestInfo, or ctx unchanged when one is present.
func WithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	if info, ok := ctx.Value(requestInfoKey).(*RequestInfo); ok {
		return ctx, info
	}
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey, info), info
}

// SetIdentity records username and session id on the request. Empty values keep the previous value.
func SetIdentity(ctx context.Context, username, sessionID string) {
	info, ok := ctx.Value(requestInfoKey).(*RequestInfo)
	if !ok {
		return
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	if username != "" {
		info.username = username
	}
	if sessionID != "" {
		info.sessionID = sessionID
	}
}

// GetIdentity returns the username and session id recorded on ctx.
func GetIdentity(ctx context.Context) (username, sessionID string) {
	info, ok := ctx.Value(requestInfoKey).(*RequestInfo)
	if !ok {
		return "", ""
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.username, info.sessionID
}

// WithClientIP stores the resolved client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP stored by the ClientIP middleware, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

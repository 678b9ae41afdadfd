package audit

import (
	"net/http"
	"strings"
)

// Audit actions.
const (
	ActionRegister       = "register"
	ActionRegisterFailed = "register_failure"
	ActionLogin          = "login"
	ActionLoginFailed    = "login_failure"
	ActionOTPVerify      = "otp_verify"
	ActionOTPFailed      = "otp_failure"
	ActionOTPResend      = "otp_resend"
	ActionOTPResendFail  = "otp_resend_failure"
	ActionTokenRefresh   = "token_refresh"
	ActionRefreshFailed  = "refresh_failure"
	ActionLogout         = "logout"
)

const (
	ResourceUser         = "user"
	ResourceSession      = "session"
	ResourceOTP          = "otp"
	ResourceRefreshToken = "refresh_token"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

type routeActions struct {
	ok, failed string
	resource   string
}

// routes maps "METHOD /pattern" (relative to the auth API prefix) to its audit actions.
var routes = map[string]routeActions{
	"POST /register":      {ActionRegister, ActionRegisterFailed, ResourceUser},
	"POST /login":         {ActionLogin, ActionLoginFailed, ResourceSession},
	"POST /otp/verify":    {ActionOTPVerify, ActionOTPFailed, ResourceOTP},
	"POST /otp/resend":    {ActionOTPResend, ActionOTPResendFail, ResourceOTP},
	"POST /token/refresh": {ActionTokenRefresh, ActionRefreshFailed, ResourceRefreshToken},
	"POST /logout":        {ActionLogout, ActionLogout, ResourceSession},
}

// ParseRoute returns the audit action for an auth API route pattern and response status.
// ok is false for routes that are not audited (e.g. token verification, health checks).
// prefix is stripped from pattern before lookup.
func ParseRoute(method, pattern, prefix string, status int) (ActionResource, bool) {
	p := strings.TrimPrefix(pattern, prefix)
	if p == "" {
		p = "/"
	}
	ra, ok := routes[strings.ToUpper(method)+" "+p]
	if !ok {
		return ActionResource{}, false
	}
	action := ra.ok
	if status >= http.StatusBadRequest {
		action = ra.failed
	}
	return ActionResource{Action: action, Resource: ra.resource}, true
}

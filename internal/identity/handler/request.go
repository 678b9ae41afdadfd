package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"otp-auth-service/internal/platform/httpx"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=128"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// loginRequest leaves empty fields to the service so they fail as invalid credentials.
type loginRequest struct {
	Username string `json:"username" validate:"max=64"`
	Password string `json:"password" validate:"max=72"`
}

type verifyOTPRequest struct {
	SessionID string `json:"session_id"`
	OTPCode   string `json:"otp_code" validate:"max=16"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// decodeAndValidate writes a 400 for a malformed body and a 422 for a body that fails validation.
// allowEmpty accepts a request without a body.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, op string, dst any, allowEmpty bool) bool {
	if err := httpx.DecodeBody(w, r, dst); err != nil {
		if allowEmpty && errors.Is(err, httpx.ErrEmptyBody) {
			return true
		}
		writeFailure(w, r, op, http.StatusBadRequest, "BAD_REQUEST", err.Error(), err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		msg := validationMessage(err)
		writeFailure(w, r, op, http.StatusUnprocessableEntity, "VALIDATION_ERROR", msg, err)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

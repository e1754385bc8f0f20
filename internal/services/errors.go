package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrDuplicateBiometric = errors.New("biometric already enrolled")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotActive   = errors.New("account not active")
	ErrNoEnrollment       = errors.New("no biometric enrollment")
	ErrBiometricMismatch  = errors.New("biometric mismatch")
	ErrOracleTimeout      = errors.New("similarity oracle timeout")
	ErrOracleError        = errors.New("similarity oracle error")
	ErrThresholdReject    = errors.New("similarity below acceptance threshold")
	ErrExternalTool       = errors.New("external tool error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrConfiguration      = errors.New("configuration error")
	ErrTransient          = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// AccountNotActiveError reports an account whose status forbids the requested login.
type AccountNotActiveError struct {
	Status string
	Reason string
}

func (e *AccountNotActiveError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: status %s: %s", ErrAccountNotActive, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: status %s", ErrAccountNotActive, e.Status)
}

func (e *AccountNotActiveError) Unwrap() error { return ErrAccountNotActive }

// HTTPStatus maps a marker-tagged error to the response status the HTTP layer returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNoEnrollment):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrBiometricMismatch), errors.Is(err, ErrThresholdReject):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountNotActive), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateBiometric), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrOracleTimeout), errors.Is(err, ErrOracleError):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err. Credential failures
// collapse to one generic message so callers cannot tell which factor failed.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid username or password"
	case errors.Is(err, ErrBiometricMismatch):
		return "biometric verification failed"
	case errors.Is(err, ErrDuplicateBiometric):
		return "these biometric images are already enrolled to another account"
	case errors.Is(err, ErrAccountNotActive):
		var inactive *AccountNotActiveError
		if errors.As(err, &inactive) {
			return "account is not active: " + strings.ToLower(inactive.Status)
		}
		return "account is not active"
	case errors.Is(err, ErrNoEnrollment):
		return "no biometric enrollment on file"
	case errors.Is(err, ErrOracleTimeout):
		return "biometric comparison timed out, try again later"
	case errors.Is(err, ErrOracleError):
		return "biometric comparison service unavailable"
	case errors.Is(err, ErrThresholdReject):
		return "biometric verification rejected"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrForbidden):
		return err.Error()
	default:
		return "internal server error"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

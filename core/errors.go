package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BridgeErrorBadInput           = "BRIDGE_BAD_INPUT"
	BridgeErrorNotFound           = "BRIDGE_NOT_FOUND"
	BridgeErrorInvalidCredentials = "BRIDGE_INVALID_CREDENTIALS"
	BridgeErrorConfiguration      = "BRIDGE_CONFIGURATION"
	BridgeErrorDeliveryFailed     = "BRIDGE_DELIVERY_FAILED"
	BridgeErrorIdentityUnresolved = "BRIDGE_IDENTITY_UNRESOLVED"
	BridgeErrorInternal           = "BRIDGE_INTERNAL_ERROR"
)

// ConfigurationError marks fatal-at-startup misconfiguration: a conflicting
// classification rule set or an unresolvable shared secret. It is the only
// error class that should stop process startup.
func ConfigurationError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(BridgeErrorConfiguration)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func EnsureBridgeErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = bridgeHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBridgeTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

// BridgeErrorMapper normalizes arbitrary errors into the bridge envelope so
// HTTP surfaces never leak raw internals.
func BridgeErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return EnsureBridgeErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "credential"), strings.Contains(msg, "token"):
		return EnsureBridgeErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryAuth).
				WithTextCode(BridgeErrorInvalidCredentials),
		)
	case strings.Contains(msg, "not registered"), strings.Contains(msg, "not found"):
		return EnsureBridgeErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryNotFound).
				WithTextCode(BridgeErrorNotFound),
		)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return EnsureBridgeErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryBadInput).
				WithTextCode(BridgeErrorBadInput),
		)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return EnsureBridgeErrorEnvelope(mapped)
}

func defaultBridgeTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BridgeErrorBadInput
	case goerrors.CategoryNotFound:
		return BridgeErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BridgeErrorInvalidCredentials
	case goerrors.CategoryOperation:
		return BridgeErrorDeliveryFailed
	default:
		return BridgeErrorInternal
	}
}

func bridgeHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package sso

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-crm-bridge/core"
)

const defaultLeeway = 30 * time.Second

// Validator verifies HS256 SSO tokens against a shared secret and extracts
// the external identity they carry. It holds no per-token state and is safe
// for concurrent use.
type Validator struct {
	secrets core.SecretSource
	issuer  string

	// Leeway absorbs clock skew between the CRM and the bridge when
	// checking exp and iat.
	Leeway  time.Duration
	Now     func() time.Time
	Logger  core.Logger
	Metrics core.MetricsRecorder
}

// NewValidator builds a validator bound to a secret source. A nil source is a
// deployment mistake and fails construction rather than surfacing later as a
// per-request credentials error.
func NewValidator(secrets core.SecretSource, issuer string) (*Validator, error) {
	if secrets == nil {
		return nil, core.ConfigurationError("sso: secret source is required", nil)
	}
	return &Validator{
		secrets: secrets,
		issuer:  strings.TrimSpace(issuer),
		Leeway:  defaultLeeway,
		Metrics: core.NopMetricsRecorder{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

type tokenClaims struct {
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	ExternalID string `json:"externalId"`
	Issuer     string `json:"iss"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

// Validate checks the token in one pass: signature, then expiry and
// issued-at, then issuer, then claim shape and email syntax. Every rejection,
// whatever the cause, returns the same uniform credentials error so the
// endpoint cannot be used as an oracle. The cause is logged internally.
func (v *Validator) Validate(ctx context.Context, token string) (core.ExternalIdentity, error) {
	if v == nil || v.secrets == nil {
		return core.ExternalIdentity{}, invalidCredentials()
	}

	identity, reason := v.validate(ctx, token)
	if reason != "" {
		v.recordResult(ctx, "rejected")
		v.logDebug(ctx, "sso token rejected", map[string]any{"reason": reason})
		return core.ExternalIdentity{}, invalidCredentials()
	}
	v.recordResult(ctx, "validated")
	return identity, nil
}

func (v *Validator) validate(ctx context.Context, token string) (core.ExternalIdentity, string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.ExternalIdentity{}, "empty token"
	}

	secret, err := v.secrets.SharedSecret(ctx)
	if err != nil {
		return core.ExternalIdentity{}, "secret lookup failed"
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return core.ExternalIdentity{}, "secret not configured"
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return core.ExternalIdentity{}, "malformed token"
	}

	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return core.ExternalIdentity{}, "malformed header"
	}
	var header tokenHeader
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return core.ExternalIdentity{}, "malformed header"
	}
	if header.Algorithm != "HS256" {
		return core.ExternalIdentity{}, "unexpected algorithm"
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return core.ExternalIdentity{}, "malformed signature"
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return core.ExternalIdentity{}, "signature mismatch"
	}

	claimsRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return core.ExternalIdentity{}, "malformed claims"
	}
	var claims tokenClaims
	if err := json.Unmarshal(claimsRaw, &claims); err != nil {
		return core.ExternalIdentity{}, "malformed claims"
	}

	now := v.now()
	leeway := v.leeway()
	if claims.ExpiresAt == 0 {
		return core.ExternalIdentity{}, "missing expiry"
	}
	expiresAt := time.Unix(claims.ExpiresAt, 0).UTC()
	if !now.Before(expiresAt.Add(leeway)) {
		return core.ExternalIdentity{}, "token expired"
	}
	issuedAt := time.Time{}
	if claims.IssuedAt != 0 {
		issuedAt = time.Unix(claims.IssuedAt, 0).UTC()
		if issuedAt.After(now.Add(leeway)) {
			return core.ExternalIdentity{}, "token issued in the future"
		}
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return core.ExternalIdentity{}, "issuer mismatch"
	}

	identity := core.ExternalIdentity{
		Email:      strings.TrimSpace(claims.Email),
		FirstName:  strings.TrimSpace(claims.FirstName),
		LastName:   strings.TrimSpace(claims.LastName),
		ExternalID: strings.TrimSpace(claims.ExternalID),
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
	}
	if err := identity.Validate(); err != nil {
		return core.ExternalIdentity{}, "invalid claim shape"
	}
	return identity, ""
}

func invalidCredentials() error {
	return goerrors.New("sso: invalid credentials", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.BridgeErrorInvalidCredentials)
}

func (v *Validator) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func (v *Validator) leeway() time.Duration {
	if v != nil && v.Leeway > 0 {
		return v.Leeway
	}
	return 0
}

func (v *Validator) recordResult(ctx context.Context, result string) {
	if v == nil || v.Metrics == nil {
		return
	}
	v.Metrics.IncCounter(ctx, "bridge.sso.validate", 1, map[string]string{
		"result": result,
	})
}

func (v *Validator) logDebug(ctx context.Context, message string, fields map[string]any) {
	if v == nil || v.Logger == nil {
		return
	}
	logger := v.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	logger.Debug(message)
}

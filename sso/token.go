package sso

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenSpec describes the token to mint. Zero IssuedAt/ExpiresAt default to
// now and now+TTL; zero TTL defaults to one hour.
type TokenSpec struct {
	Email      string
	FirstName  string
	LastName   string
	ExternalID string
	Issuer     string
	IssuedAt   time.Time
	TTL        time.Duration
}

// SignToken mints a compact HS256 token carrying the identity claims the
// validator expects. Used by the platform's login tooling and by tests; the
// CRM mints its own tokens with the same shared secret.
func SignToken(secret string, spec TokenSpec) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("sso: signing secret is required")
	}

	issuedAt := spec.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}
	ttl := spec.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	claims := map[string]any{
		"email":      strings.TrimSpace(spec.Email),
		"firstName":  strings.TrimSpace(spec.FirstName),
		"lastName":   strings.TrimSpace(spec.LastName),
		"externalId": strings.TrimSpace(spec.ExternalID),
		"iat":        issuedAt.Unix(),
		"exp":        issuedAt.Add(ttl).Unix(),
	}
	if issuer := strings.TrimSpace(spec.Issuer); issuer != "" {
		claims["iss"] = issuer
	}

	header := map[string]any{
		"alg": "HS256",
		"typ": "JWT",
	}
	headerRaw, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("sso: marshal token header: %w", err)
	}
	claimsRaw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("sso: marshal token claims: %w", err)
	}

	signed := base64.RawURLEncoding.EncodeToString(headerRaw) +
		"." + base64.RawURLEncoding.EncodeToString(claimsRaw)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return signed + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

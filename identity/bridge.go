// Package identity resolves CRM-side identities into platform principals.
//
// Two lookups live here: the project-owner walk used when listeners are
// provisioned, and the find-or-create principal resolution that follows a
// successful SSO validation. Both talk to the platform worker API over a
// pluggable HTTP client with bounded response reads.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-crm-bridge/core"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20 // 1 MiB
)

var ErrIdentityUnresolved = errors.New("identity: identity unresolved")

type UnresolvedError struct {
	Cause error
}

func (e *UnresolvedError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrIdentityUnresolved.Error()
	}
	return ErrIdentityUnresolved.Error() + ": " + e.Cause.Error()
}

func (e *UnresolvedError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrIdentityUnresolved
	}
	return errors.Join(ErrIdentityUnresolved, e.Cause)
}

func (e *UnresolvedError) ToBridgeError() *goerrors.Error {
	message := ErrIdentityUnresolved.Error()
	if e != nil && e.Cause != nil {
		message = e.Error()
	}
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.BridgeErrorIdentityUnresolved)
}

func unresolved(cause error) error {
	return &UnresolvedError{Cause: cause}
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Principal is the platform-side user record matched or created for a
// validated external identity.
type Principal struct {
	ID         string
	Email      string
	ExternalID string
	FirstName  string
	LastName   string
	Created    bool
}

type Config struct {
	// BaseURL is the platform worker API root, e.g. https://platform.internal/api.
	BaseURL        string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
	Logger         core.Logger
}

// Bridge is the HTTP client for the platform worker API.
type Bridge struct {
	baseURL        string
	httpClient     HTTPDoer
	requestTimeout time.Duration
	logger         core.Logger
}

func NewBridge(cfg Config) (*Bridge, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, core.ConfigurationError("identity: worker api base url is required", nil)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Bridge{
		baseURL:        baseURL,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		logger:         cfg.Logger,
	}, nil
}

// ResolveOwnerIdentifier walks from the caller's project to the identifier
// listener registrations are scoped by: the project's owner, then that user's
// external id in the CRM. The worker token scopes the project lookup.
func (b *Bridge) ResolveOwnerIdentifier(ctx context.Context, workerToken string) (string, error) {
	if b == nil {
		return "", unresolved(nil)
	}
	workerToken = strings.TrimSpace(workerToken)
	if workerToken == "" {
		return "", unresolved(fmt.Errorf("identity: worker token is required"))
	}

	project, err := b.getJSON(ctx, b.baseURL+"/v1/worker/project", workerToken)
	if err != nil {
		return "", unresolved(err)
	}
	ownerID := strings.TrimSpace(readString(project["ownerId"]))
	if ownerID == "" {
		return "", unresolved(fmt.Errorf("identity: project has no owner"))
	}

	owner, err := b.getJSON(ctx, b.baseURL+"/v1/worker/users/"+ownerID, workerToken)
	if err != nil {
		return "", unresolved(err)
	}
	externalID := strings.TrimSpace(readString(owner["externalId"]))
	if externalID == "" {
		return "", unresolved(fmt.Errorf("identity: owner %s has no external id", ownerID))
	}
	return externalID, nil
}

// ResolvePrincipal finds or creates the platform principal for a validated
// external identity. The platform matches on email and backfills the external
// id and name claims on first sight.
func (b *Bridge) ResolvePrincipal(ctx context.Context, extIdentity core.ExternalIdentity) (Principal, error) {
	if b == nil {
		return Principal{}, unresolved(nil)
	}
	if err := extIdentity.Validate(); err != nil {
		return Principal{}, unresolved(err)
	}

	payload := map[string]any{
		"email":      strings.TrimSpace(extIdentity.Email),
		"firstName":  strings.TrimSpace(extIdentity.FirstName),
		"lastName":   strings.TrimSpace(extIdentity.LastName),
		"externalId": strings.TrimSpace(extIdentity.ExternalID),
	}
	response, err := b.postJSON(ctx, b.baseURL+"/v1/worker/principals", payload)
	if err != nil {
		return Principal{}, unresolved(err)
	}

	principal := Principal{
		ID:         strings.TrimSpace(readString(response["id"])),
		Email:      strings.TrimSpace(readString(response["email"])),
		ExternalID: strings.TrimSpace(readString(response["externalId"])),
		FirstName:  strings.TrimSpace(readString(response["firstName"])),
		LastName:   strings.TrimSpace(readString(response["lastName"])),
		Created:    readBool(response["created"]),
	}
	if principal.ID == "" {
		return Principal{}, unresolved(fmt.Errorf("identity: principal response has no id"))
	}
	return principal, nil
}

func (b *Bridge) getJSON(ctx context.Context, endpoint string, token string) (map[string]any, error) {
	req, err := b.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return b.doJSON(req)
}

func (b *Bridge) postJSON(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal request: %w", err)
	}
	req, err := b.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.doJSON(req)
}

func (b *Bridge) newRequest(ctx context.Context, method string, endpoint string, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (b *Bridge) doJSON(req *http.Request) (map[string]any, error) {
	requestCtx := req.Context()
	cancel := func() {}
	if b.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(requestCtx, b.requestTimeout)
	}
	defer cancel()
	req = req.WithContext(requestCtx)

	res, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if readErr != nil {
		return nil, fmt.Errorf("identity: read response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBytes {
		return nil, fmt.Errorf("identity: response exceeds %d bytes", maxResponseBytes)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("identity: worker api returned status %d", res.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("identity: decode response: %w", err)
	}
	return payload, nil
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		return err == nil && parsed
	default:
		return false
	}
}

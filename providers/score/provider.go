// Package score integrates the Score insurance CRM: the classification rules
// its change feed contributes and a small REST client for the write actions
// the automation platform exposes against it.
package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-crm-bridge/classify"
	"github.com/goliatone/go-crm-bridge/core"
)

const (
	ProviderID     = "score"
	DefaultAPIBase = "https://str8-crm.vercel.app/api"

	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20 // 1 MiB
)

// Rules is the provider's contribution to the bridge's classification table.
func Rules() []classify.Rule {
	return []classify.Rule{
		{Table: "opportunities", ChangeType: core.ChangeTypeInsert, EventName: classify.EventNewLead},
		{Table: "opportunities", ChangeType: core.ChangeTypeUpdate, EventName: classify.EventLeadUpdated},
		{Table: "policies", ChangeType: core.ChangeTypeUpdate, EventName: classify.EventPolicyUpdated},
	}
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL        string
	APIKey         string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
}

// Client is the REST surface for CRM write actions.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     HTTPDoer
	requestTimeout time.Duration
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
	}
}

// OpportunityInput is the opportunity half of a contact-with-opportunity
// create. Status and Type are required by the CRM.
type OpportunityInput struct {
	Status string `json:"status"`
	Type   string `json:"type"`
}

// CreateResult is the CRM's response to a contact-with-opportunity create.
type CreateResult struct {
	Contact     Contact     `json:"contact"`
	Opportunity Opportunity `json:"opportunity"`
}

// CreateContactAndOpportunity creates a contact and its first opportunity in
// one call, matching the CRM's create-with-opportunity endpoint.
func (c *Client) CreateContactAndOpportunity(
	ctx context.Context,
	contact Contact,
	opportunity OpportunityInput,
) (CreateResult, error) {
	if c == nil {
		return CreateResult{}, fmt.Errorf("score: client is nil")
	}
	if strings.TrimSpace(contact.FirstName) == "" || strings.TrimSpace(contact.LastName) == "" {
		return CreateResult{}, fmt.Errorf("score: contact first and last name are required")
	}
	if strings.TrimSpace(opportunity.Status) == "" || strings.TrimSpace(opportunity.Type) == "" {
		return CreateResult{}, fmt.Errorf("score: opportunity status and type are required")
	}

	var result CreateResult
	err := c.postJSON(ctx, c.baseURL+"/contacts/create-with-opportunity", map[string]any{
		"contact":     contact,
		"opportunity": opportunity,
	}, &result)
	if err != nil {
		return CreateResult{}, err
	}
	return result, nil
}

// OpportunityUpdate carries the mutable opportunity fields. Empty fields are
// left untouched by the CRM; at least one must be set.
type OpportunityUpdate struct {
	Status string `json:"status,omitempty"`
	Type   string `json:"type,omitempty"`
}

// UpdateOpportunity patches an opportunity by id.
func (c *Client) UpdateOpportunity(
	ctx context.Context,
	opportunityID string,
	update OpportunityUpdate,
) (Opportunity, error) {
	if c == nil {
		return Opportunity{}, fmt.Errorf("score: client is nil")
	}
	opportunityID = strings.TrimSpace(opportunityID)
	if opportunityID == "" {
		return Opportunity{}, fmt.Errorf("score: opportunity id is required")
	}
	if strings.TrimSpace(update.Status) == "" && strings.TrimSpace(update.Type) == "" {
		return Opportunity{}, fmt.Errorf("score: at least one field must be provided to update")
	}

	var result Opportunity
	err := c.postJSON(ctx, c.baseURL+"/opportunities/"+opportunityID+"/update", update, &result)
	if err != nil {
		return Opportunity{}, err
	}
	return result, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("score: marshal request: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if c.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	responseBody, readErr := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if readErr != nil {
		return fmt.Errorf("score: read response: %w", readErr)
	}
	if int64(len(responseBody)) > maxResponseBytes {
		return fmt.Errorf("score: response exceeds %d bytes", maxResponseBytes)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("score: crm returned status %d: %s", res.StatusCode, strings.TrimSpace(string(responseBody)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("score: decode response: %w", err)
	}
	return nil
}

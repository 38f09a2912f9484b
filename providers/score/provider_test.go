package score

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/goliatone/go-crm-bridge/classify"
)

type stubDoer struct {
	status   int
	body     string
	requests []*http.Request
	payloads []map[string]any
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		d.payloads = append(d.payloads, payload)
	}
	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(d.body)),
	}, nil
}

func TestRulesCoverTheChangeFeed(t *testing.T) {
	ruleSet, err := classify.NewRuleSet(Rules()...)
	if err != nil {
		t.Fatalf("expected valid rule contribution, got %v", err)
	}
	if ruleSet.Len() != 3 {
		t.Fatalf("expected 3 rules, got %d", ruleSet.Len())
	}
}

func TestCreateContactAndOpportunity(t *testing.T) {
	doer := &stubDoer{
		body: `{"contact":{"id":"ct_1","first_name":"Ana"},"opportunity":{"id":"op_1","status":"NEW_LEAD"}}`,
	}
	client := NewClient(Config{BaseURL: "https://crm.example/api", APIKey: "key-1", HTTPClient: doer})

	result, err := client.CreateContactAndOpportunity(context.Background(),
		Contact{FirstName: "Ana", LastName: "Reyes", Email: "ana@score.example"},
		OpportunityInput{Status: OpportunityStatusNewLead, Type: OpportunityTypeLife},
	)
	if err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
	if result.Contact.ID != "ct_1" || result.Opportunity.ID != "op_1" {
		t.Fatalf("unexpected result %+v", result)
	}

	req := doer.requests[0]
	if req.URL.String() != "https://crm.example/api/contacts/create-with-opportunity" {
		t.Fatalf("unexpected endpoint %s", req.URL)
	}
	if req.Header.Get("Authorization") != "Bearer key-1" {
		t.Fatalf("expected api key header")
	}
	payload := doer.payloads[0]
	opportunity, _ := payload["opportunity"].(map[string]any)
	if opportunity["status"] != "NEW_LEAD" || opportunity["type"] != "LIFE" {
		t.Fatalf("unexpected opportunity payload %v", opportunity)
	}
}

func TestCreateContactAndOpportunityValidation(t *testing.T) {
	client := NewClient(Config{HTTPClient: &stubDoer{}})

	_, err := client.CreateContactAndOpportunity(context.Background(),
		Contact{FirstName: "Ana"},
		OpportunityInput{Status: OpportunityStatusNewLead, Type: OpportunityTypeLife},
	)
	if err == nil {
		t.Fatalf("expected rejection for missing last name")
	}

	_, err = client.CreateContactAndOpportunity(context.Background(),
		Contact{FirstName: "Ana", LastName: "Reyes"},
		OpportunityInput{Status: OpportunityStatusNewLead},
	)
	if err == nil {
		t.Fatalf("expected rejection for missing opportunity type")
	}
}

func TestUpdateOpportunity(t *testing.T) {
	doer := &stubDoer{body: `{"id":"op_1","status":"CLOSED_WON"}`}
	client := NewClient(Config{BaseURL: "https://crm.example/api", HTTPClient: doer})

	updated, err := client.UpdateOpportunity(context.Background(), "op_1", OpportunityUpdate{
		Status: OpportunityStatusClosedWon,
	})
	if err != nil {
		t.Fatalf("expected update to succeed, got %v", err)
	}
	if updated.Status != "CLOSED_WON" {
		t.Fatalf("unexpected opportunity %+v", updated)
	}
	if doer.requests[0].URL.Path != "/api/opportunities/op_1/update" {
		t.Fatalf("unexpected path %s", doer.requests[0].URL.Path)
	}
	if _, hasType := doer.payloads[0]["type"]; hasType {
		t.Fatalf("expected unset fields to be omitted, got %v", doer.payloads[0])
	}
}

func TestUpdateOpportunityRequiresAField(t *testing.T) {
	client := NewClient(Config{HTTPClient: &stubDoer{}})
	if _, err := client.UpdateOpportunity(context.Background(), "op_1", OpportunityUpdate{}); err == nil {
		t.Fatalf("expected rejection for empty update")
	}
	if _, err := client.UpdateOpportunity(context.Background(), "  ", OpportunityUpdate{Status: "FOLLOW_UP"}); err == nil {
		t.Fatalf("expected rejection for missing id")
	}
}

func TestClientErrorSurfaceIncludesStatus(t *testing.T) {
	doer := &stubDoer{status: http.StatusUnprocessableEntity, body: `{"error":"bad status"}`}
	client := NewClient(Config{HTTPClient: doer})

	_, err := client.UpdateOpportunity(context.Background(), "op_1", OpportunityUpdate{Status: "NOPE"})
	if err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

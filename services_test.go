package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-crm-bridge/classify"
	"github.com/goliatone/go-crm-bridge/core"
	"github.com/goliatone/go-crm-bridge/dispatch"
	"github.com/goliatone/go-crm-bridge/sso"
)

type recordingTransport struct {
	mu        sync.Mutex
	delivered []string
	events    []core.ClassifiedEvent
}

func (r *recordingTransport) Deliver(_ context.Context, listenerID string, event core.ClassifiedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, listenerID)
	r.events = append(r.events, event)
	return nil
}

func newTestService(t *testing.T, options ...Option) (*Service, *recordingTransport) {
	t.Helper()
	transport := &recordingTransport{}
	cfg := DefaultConfig()
	cfg.Sso.Secret = "test-shared-secret"
	svc, err := NewService(cfg, append([]Option{WithDeliveryTransport(transport)}, options...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, transport
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceName = ""
	if _, err := NewService(cfg); err == nil {
		t.Fatalf("expected invalid config rejection")
	}
}

func TestNewServiceRejectsConflictingRules(t *testing.T) {
	cfg := DefaultConfig()
	_, err := NewService(cfg, WithRules(
		classify.Rule{Table: "opportunities", ChangeType: core.ChangeTypeInsert, EventName: "new_lead"},
		classify.Rule{Table: "opportunities", ChangeType: core.ChangeTypeInsert, EventName: "other"},
	))
	if err == nil {
		t.Fatalf("expected rule conflict to fail construction")
	}
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) || richErr.TextCode != core.BridgeErrorConfiguration {
		t.Fatalf("expected configuration envelope, got %v", err)
	}
}

func TestServiceRegisterAndDispatch(t *testing.T) {
	ctx := context.Background()
	svc, transport := newTestService(t)

	if err := svc.RegisterListener(ctx, core.ListenerRegistration{
		ListenerID:      "flow_1",
		EventNames:      []string{classify.EventNewLead},
		IdentifierValue: "agent_204",
	}); err != nil {
		t.Fatalf("register listener: %v", err)
	}

	delivered, err := svc.DispatchEnvelope(ctx, core.ChangeEnvelope{
		Type:        core.ChangeTypeInsert,
		Table:       "opportunities",
		Record:      map[string]any{"id": "opp_1"},
		AgentUserID: "agent_204",
	})
	if err != nil {
		t.Fatalf("dispatch envelope: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "flow_1" {
		t.Fatalf("expected delivery to flow_1, got %v", delivered)
	}
	if len(transport.events) != 1 || transport.events[0].EventName != classify.EventNewLead {
		t.Fatalf("expected classified delivery, got %#v", transport.events)
	}

	if err := svc.UnregisterListener(ctx, "flow_1"); err != nil {
		t.Fatalf("unregister listener: %v", err)
	}
	delivered, err = svc.DispatchEnvelope(ctx, core.ChangeEnvelope{
		Type:        core.ChangeTypeInsert,
		Table:       "opportunities",
		AgentUserID: "agent_204",
	})
	if err != nil {
		t.Fatalf("dispatch after unregister: %v", err)
	}
	if len(delivered) != 0 {
		t.Fatalf("expected no delivery after unregister, got %v", delivered)
	}
}

func TestServiceHandleWebhook(t *testing.T) {
	ctx := context.Background()
	svc, transport := newTestService(t, WithClaimStore(dispatch.NewInMemoryClaimStore()))

	if err := svc.RegisterListener(ctx, core.ListenerRegistration{
		ListenerID:      "flow_1",
		EventNames:      []string{classify.EventPolicyUpdated},
		IdentifierValue: "agent_204",
	}); err != nil {
		t.Fatalf("register listener: %v", err)
	}

	result, err := svc.HandleWebhook(ctx, core.InboundRequest{
		ProviderID: "score",
		Body: []byte(`{
			"type": "UPDATE",
			"table": "policies",
			"record": {"id": "pol_1", "status": "active"},
			"agent_user_id": "agent_204"
		}`),
	})
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if !result.Accepted || result.Metadata["delivered"] != 1 {
		t.Fatalf("expected accepted single delivery, got %#v", result)
	}
	if len(transport.delivered) != 1 {
		t.Fatalf("expected transport delivery, got %d", len(transport.delivered))
	}
}

func TestServiceValidateSsoTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	token, err := sso.SignToken("test-shared-secret", sso.TokenSpec{
		Email:      "jane.doe@example.com",
		FirstName:  "Jane",
		LastName:   "Doe",
		ExternalID: "usr_3481",
		Issuer:     svc.Config().Sso.Issuer,
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	identity, err := svc.ValidateSsoToken(ctx, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if identity.ExternalID != "usr_3481" || identity.Email != "jane.doe@example.com" {
		t.Fatalf("unexpected identity %#v", identity)
	}

	if _, err := svc.ValidateSsoToken(ctx, "not-a-token"); err == nil {
		t.Fatalf("expected invalid token rejection")
	}
}

func TestServiceInstallRuleSetSwapsClassification(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if err := svc.RegisterListener(ctx, core.ListenerRegistration{
		ListenerID:      "flow_1",
		EventNames:      []string{"contact_created"},
		IdentifierValue: "agent_204",
	}); err != nil {
		t.Fatalf("register listener: %v", err)
	}

	envelope := core.ChangeEnvelope{
		Type:        core.ChangeTypeInsert,
		Table:       "contacts",
		AgentUserID: "agent_204",
	}
	delivered, err := svc.DispatchEnvelope(ctx, envelope)
	if err != nil {
		t.Fatalf("dispatch before swap: %v", err)
	}
	if len(delivered) != 0 {
		t.Fatalf("expected miss before rule swap, got %v", delivered)
	}

	ruleSet, err := classify.NewRuleSet(append(classify.DefaultRules(), classify.Rule{
		Table:      "contacts",
		ChangeType: core.ChangeTypeInsert,
		EventName:  "contact_created",
	})...)
	if err != nil {
		t.Fatalf("new rule set: %v", err)
	}
	svc.InstallRuleSet(ruleSet)

	delivered, err = svc.DispatchEnvelope(ctx, envelope)
	if err != nil {
		t.Fatalf("dispatch after swap: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "flow_1" {
		t.Fatalf("expected delivery after rule swap, got %v", delivered)
	}
}

func TestSetupResolvesConfigLayers(t *testing.T) {
	ctx := context.Background()
	provider := core.NewCfgxConfigProvider(core.NewStaticRawConfigLoader(map[string]any{
		"sso": map[string]any{
			"issuer": "score-crm-staging",
		},
	}))

	runtime := Config{}
	runtime.Sso.Secret = "runtime-secret"
	svc, err := Setup(ctx, runtime, WithConfigProvider(provider), WithDeliveryTransport(&recordingTransport{}))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if svc.Config().Sso.Issuer != "score-crm-staging" {
		t.Fatalf("expected loaded issuer, got %q", svc.Config().Sso.Issuer)
	}

	token, err := sso.SignToken("runtime-secret", sso.TokenSpec{
		Email:      "jane.doe@example.com",
		FirstName:  "Jane",
		LastName:   "Doe",
		ExternalID: "usr_3481",
		Issuer:     "score-crm-staging",
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.ValidateSsoToken(ctx, token); err != nil {
		t.Fatalf("validate against runtime secret: %v", err)
	}
}

package bridge

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-crm-bridge/adapters/gocommand"
	"github.com/goliatone/go-crm-bridge/classify"
	"github.com/goliatone/go-crm-bridge/command"
	"github.com/goliatone/go-crm-bridge/core"
)

func TestNewFacadeRequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected nil service rejection")
	}
}

func TestFacadeBuildsCommands(t *testing.T) {
	svc, _ := newTestService(t)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.RegisterListener == nil || commands.UnregisterListener == nil {
		t.Fatalf("expected listener commands to be built")
	}
	if commands.DispatchEnvelope == nil || commands.ValidateSsoToken == nil {
		t.Fatalf("expected dispatch and sso commands to be built")
	}
	if facade.Service() == nil {
		t.Fatalf("expected service accessor")
	}
}

func TestFacadeCommandsExecuteAgainstService(t *testing.T) {
	ctx := context.Background()
	svc, transport := newTestService(t)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().RegisterListener.Execute(ctx, command.RegisterListenerMessage{
		Registration: core.ListenerRegistration{
			ListenerID:      "flow_1",
			EventNames:      []string{classify.EventNewLead},
			IdentifierValue: "agent_204",
		},
	}); err != nil {
		t.Fatalf("register via command: %v", err)
	}

	collector := gocmd.NewResult[command.DispatchResult]()
	resultCtx := gocmd.ContextWithResult(ctx, collector)
	if err := facade.Commands().DispatchEnvelope.Execute(resultCtx, command.DispatchEnvelopeMessage{
		Envelope: core.ChangeEnvelope{
			Type:        core.ChangeTypeInsert,
			Table:       "opportunities",
			AgentUserID: "agent_204",
		},
	}); err != nil {
		t.Fatalf("dispatch via command: %v", err)
	}

	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected dispatch result stored")
	}
	if len(result.DeliveredListenerIDs) != 1 || result.DeliveredListenerIDs[0] != "flow_1" {
		t.Fatalf("expected flow_1 delivery, got %v", result.DeliveredListenerIDs)
	}
	if len(transport.delivered) != 1 {
		t.Fatalf("expected transport delivery, got %d", len(transport.delivered))
	}
}

func TestFacadeSubscribeWiresDispatcher(t *testing.T) {
	ctx := context.Background()
	svc, transport := newTestService(t)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	adapter := gocommand.NewRegistryAdapter(gocmd.NewRegistry())
	subscriptions, err := facade.Subscribe(adapter)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer func() {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
	}()
	if len(subscriptions) != 4 {
		t.Fatalf("expected 4 subscriptions, got %d", len(subscriptions))
	}

	if err := gocommand.Dispatch(ctx, command.RegisterListenerMessage{
		Registration: core.ListenerRegistration{
			ListenerID:      "flow_1",
			EventNames:      []string{classify.EventNewLead},
			IdentifierValue: "agent_204",
		},
	}); err != nil {
		t.Fatalf("dispatch register message: %v", err)
	}
	if err := gocommand.Dispatch(ctx, command.DispatchEnvelopeMessage{
		Envelope: core.ChangeEnvelope{
			Type:        core.ChangeTypeInsert,
			Table:       "opportunities",
			AgentUserID: "agent_204",
		},
	}); err != nil {
		t.Fatalf("dispatch envelope message: %v", err)
	}

	if len(transport.delivered) != 1 || transport.delivered[0] != "flow_1" {
		t.Fatalf("expected delivery through dispatcher wiring, got %v", transport.delivered)
	}
}

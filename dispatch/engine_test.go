package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-crm-bridge/classify"
	"github.com/goliatone/go-crm-bridge/core"
)

type stubRegistry struct {
	matches map[string][]string
}

func (s *stubRegistry) FindMatches(eventName string, identifierValue string) []string {
	return s.matches[eventName+"|"+identifierValue]
}

type stubTransport struct {
	mu        sync.Mutex
	delivered []string
	events    []core.ClassifiedEvent
	failFor   map[string]error
}

func (s *stubTransport) Deliver(_ context.Context, listenerID string, event core.ClassifiedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[listenerID]; ok {
		return err
	}
	s.delivered = append(s.delivered, listenerID)
	s.events = append(s.events, event)
	return nil
}

type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *countingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *countingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *countingMetrics) count(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func newTestEngine(registry MatchFinder, transport core.DeliveryTransport) (*Engine, *countingMetrics) {
	metrics := &countingMetrics{}
	engine := NewEngine(
		classify.NewClassifier(classify.MustNewRuleSet(classify.DefaultRules()...)),
		registry,
		transport,
	)
	engine.Metrics = metrics
	return engine, metrics
}

func leadEnvelope(agentUserID string) core.ChangeEnvelope {
	return core.ChangeEnvelope{
		Type:        core.ChangeTypeInsert,
		Table:       "opportunities",
		Record:      map[string]any{"id": "opp_1"},
		AgentUserID: agentUserID,
	}
}

func TestHandleDeliversToEveryMatch(t *testing.T) {
	transport := &stubTransport{}
	registry := &stubRegistry{matches: map[string][]string{
		"new_lead|agent_204": {"flow_2", "flow_1"},
	}}
	engine, metrics := newTestEngine(registry, transport)

	delivered, err := engine.Handle(context.Background(), leadEnvelope("agent_204"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(delivered) != 2 || delivered[0] != "flow_1" || delivered[1] != "flow_2" {
		t.Fatalf("expected sorted delivery to both listeners, got %v", delivered)
	}
	if len(transport.events) != 2 {
		t.Fatalf("expected 2 transport calls, got %d", len(transport.events))
	}
	if transport.events[0].EventName != "new_lead" {
		t.Fatalf("expected classified event, got %q", transport.events[0].EventName)
	}
	if metrics.count("bridge.dispatch.total") != 1 {
		t.Fatalf("expected dispatch counter, got %d", metrics.count("bridge.dispatch.total"))
	}
}

func TestHandleClassificationMissIsNotAnError(t *testing.T) {
	transport := &stubTransport{}
	engine, metrics := newTestEngine(&stubRegistry{}, transport)

	delivered, err := engine.Handle(context.Background(), core.ChangeEnvelope{
		Type:  "DELETE",
		Table: "opportunities",
	})
	if err != nil {
		t.Fatalf("expected miss with nil error, got %v", err)
	}
	if len(delivered) != 0 {
		t.Fatalf("expected no deliveries on miss, got %v", delivered)
	}
	if len(transport.delivered) != 0 {
		t.Fatalf("expected transport untouched on miss")
	}
	if metrics.count("bridge.classify.miss") != 1 {
		t.Fatalf("expected miss counter, got %d", metrics.count("bridge.classify.miss"))
	}
}

func TestHandleNoMatchesIsNotAnError(t *testing.T) {
	transport := &stubTransport{}
	engine, metrics := newTestEngine(&stubRegistry{}, transport)

	delivered, err := engine.Handle(context.Background(), leadEnvelope("agent_999"))
	if err != nil {
		t.Fatalf("expected empty result with nil error, got %v", err)
	}
	if len(delivered) != 0 {
		t.Fatalf("expected no deliveries, got %v", delivered)
	}
	if metrics.count("bridge.dispatch.unmatched") != 1 {
		t.Fatalf("expected unmatched counter, got %d", metrics.count("bridge.dispatch.unmatched"))
	}
}

func TestHandleIsolatesPerListenerFailures(t *testing.T) {
	transport := &stubTransport{failFor: map[string]error{
		"flow_2": errors.New("listener gone"),
	}}
	registry := &stubRegistry{matches: map[string][]string{
		"new_lead|agent_204": {"flow_1", "flow_2", "flow_3"},
	}}
	engine, metrics := newTestEngine(registry, transport)

	delivered, err := engine.Handle(context.Background(), leadEnvelope("agent_204"))
	if err != nil {
		t.Fatalf("expected per-listener failure to stay contained, got %v", err)
	}
	if len(delivered) != 2 || delivered[0] != "flow_1" || delivered[1] != "flow_3" {
		t.Fatalf("expected surviving listeners delivered, got %v", delivered)
	}
	if metrics.count("bridge.dispatch.delivery_failed") != 1 {
		t.Fatalf("expected failure counter, got %d", metrics.count("bridge.dispatch.delivery_failed"))
	}
}

func TestHandleDedupesDuplicateMatches(t *testing.T) {
	transport := &stubTransport{}
	registry := &stubRegistry{matches: map[string][]string{
		"new_lead|agent_204": {"flow_1", "flow_1", "flow_1"},
	}}
	engine, _ := newTestEngine(registry, transport)

	delivered, err := engine.Handle(context.Background(), leadEnvelope("agent_204"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected exactly one delivery per listener, got %v", delivered)
	}
	if len(transport.delivered) != 1 {
		t.Fatalf("expected a single transport call, got %d", len(transport.delivered))
	}
}

func TestHandleWebhookRejectsMalformedBody(t *testing.T) {
	engine, _ := newTestEngine(&stubRegistry{}, &stubTransport{})

	_, err := engine.HandleWebhook(context.Background(), core.InboundRequest{
		ProviderID: "score",
		Body:       []byte("{not json"),
	})
	if err == nil {
		t.Fatalf("expected parse error")
	}
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if richErr.Code != http.StatusBadRequest || richErr.TextCode != core.BridgeErrorBadInput {
		t.Fatalf("expected bad-input envelope, got code=%d text=%q", richErr.Code, richErr.TextCode)
	}
}

func TestHandleWebhookDispatchesAndAcks(t *testing.T) {
	transport := &stubTransport{}
	registry := &stubRegistry{matches: map[string][]string{
		"new_lead|agent_204": {"flow_1"},
	}}
	engine, _ := newTestEngine(registry, transport)

	body := []byte(`{
		"type": "INSERT",
		"table": "opportunities",
		"record": {"id": "opp_1"},
		"agent_user_id": "agent_204",
		"contact": {"id": "ct_9"}
	}`)
	result, err := engine.HandleWebhook(context.Background(), core.InboundRequest{
		ProviderID: "score",
		Body:       body,
	})
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result %#v", result)
	}
	if result.Metadata["delivered"] != 1 {
		t.Fatalf("expected one delivery recorded, got %#v", result.Metadata)
	}
	if len(transport.events) != 1 {
		t.Fatalf("expected transport call, got %d", len(transport.events))
	}
	if _, ok := transport.events[0].Payload["contact"]; !ok {
		t.Fatalf("expected enrichment field forwarded to listener payload")
	}
}

func TestHandleWebhookAcknowledgesUnrecognizedShape(t *testing.T) {
	engine, _ := newTestEngine(&stubRegistry{}, &stubTransport{})

	result, err := engine.HandleWebhook(context.Background(), core.InboundRequest{
		ProviderID: "score",
		Body:       []byte(`{"type": "INSERT", "table": "contacts", "record": {"id": "ct_1"}}`),
	})
	if err != nil {
		t.Fatalf("expected unrecognized shape to be acknowledged, got %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 ack, got %#v", result)
	}
	if result.Metadata["delivered"] != 0 {
		t.Fatalf("expected zero deliveries, got %#v", result.Metadata)
	}
}

func TestHandleWebhookDedupesByDeliveryID(t *testing.T) {
	transport := &stubTransport{}
	registry := &stubRegistry{matches: map[string][]string{
		"new_lead|agent_204": {"flow_1"},
	}}
	engine, _ := newTestEngine(registry, transport)
	engine.Claims = NewInMemoryClaimStore()

	req := core.InboundRequest{
		ProviderID: "score",
		Body:       []byte(`{"type": "INSERT", "table": "opportunities", "agent_user_id": "agent_204"}`),
		Metadata:   map[string]any{"delivery_id": "dlv_1"},
	}

	first, err := engine.HandleWebhook(context.Background(), req)
	if err != nil {
		t.Fatalf("first webhook: %v", err)
	}
	if first.Metadata["delivered"] != 1 {
		t.Fatalf("expected delivery on first attempt, got %#v", first.Metadata)
	}

	second, err := engine.HandleWebhook(context.Background(), req)
	if err != nil {
		t.Fatalf("second webhook: %v", err)
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected deduped ack, got %#v", second.Metadata)
	}
	if len(transport.delivered) != 1 {
		t.Fatalf("expected one delivery total, got %d", len(transport.delivered))
	}
}

func TestHandleWebhookReadsDeliveryIDHeader(t *testing.T) {
	transport := &stubTransport{}
	engine, _ := newTestEngine(&stubRegistry{}, transport)
	engine.Claims = NewInMemoryClaimStore()

	req := core.InboundRequest{
		ProviderID: "score",
		Body:       []byte(`{"type": "INSERT", "table": "opportunities"}`),
		Headers:    map[string]string{"X-Delivery-Id": "dlv_77"},
	}
	if _, err := engine.HandleWebhook(context.Background(), req); err != nil {
		t.Fatalf("first webhook: %v", err)
	}
	second, err := engine.HandleWebhook(context.Background(), req)
	if err != nil {
		t.Fatalf("second webhook: %v", err)
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected header-keyed dedupe, got %#v", second.Metadata)
	}
}

func TestHandleConcurrentEnvelopes(t *testing.T) {
	transport := &stubTransport{}
	registry := &stubRegistry{matches: map[string][]string{
		"new_lead|agent_204": {"flow_1"},
	}}
	engine, _ := newTestEngine(registry, transport)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			envelope := leadEnvelope("agent_204")
			envelope.Record = map[string]any{"id": fmt.Sprintf("opp_%d", i)}
			if _, err := engine.Handle(context.Background(), envelope); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent handle: %v", err)
	}
	if len(transport.delivered) != 16 {
		t.Fatalf("expected 16 deliveries, got %d", len(transport.delivered))
	}
}

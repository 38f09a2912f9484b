package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-crm-bridge/classify"
	"github.com/goliatone/go-crm-bridge/core"
)

// MatchFinder is the read side of the listener registry.
type MatchFinder interface {
	FindMatches(eventName string, identifierValue string) []string
}

// Engine classifies inbound envelopes and delivers classified events to
// every matched listener exactly once per envelope.
type Engine struct {
	Classifier *classify.Classifier
	Registry   MatchFinder
	Transport  core.DeliveryTransport

	// Claims enables webhook-level dedupe when the envelope carries a
	// delivery id. Optional; without it every envelope is handled.
	Claims   core.IdempotencyClaimStore
	ClaimTTL time.Duration

	Logger  core.Logger
	Metrics core.MetricsRecorder
	Now     func() time.Time
}

func NewEngine(classifier *classify.Classifier, registry MatchFinder, transport core.DeliveryTransport) *Engine {
	return &Engine{
		Classifier: classifier,
		Registry:   registry,
		Transport:  transport,
		ClaimTTL:   10 * time.Minute,
		Metrics:    core.NopMetricsRecorder{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle classifies the envelope and delivers the event to each matched
// listener. It returns the ids that received the event. A classification
// miss or an empty match set is a normal outcome with a nil error; only a
// misconfigured engine errors.
func (e *Engine) Handle(ctx context.Context, envelope core.ChangeEnvelope) ([]string, error) {
	if e == nil || e.Classifier == nil || e.Registry == nil {
		return nil, dispatchInternal("dispatch: engine requires classifier and registry", nil)
	}
	startedAt := e.now()

	event, ok := e.Classifier.Classify(envelope)
	if !ok {
		e.recordCounter(ctx, "bridge.classify.miss", map[string]string{
			"table":       strings.TrimSpace(envelope.Table),
			"change_type": strings.TrimSpace(string(envelope.Type)),
		})
		e.logDebug(ctx, "envelope not classified", map[string]any{
			"table":       envelope.Table,
			"change_type": string(envelope.Type),
		})
		return []string{}, nil
	}

	// The registry lookup snapshot completes before any delivery begins;
	// delivery never runs inside the registry's critical section.
	matches := e.Registry.FindMatches(event.EventName, event.IdentifierValue)
	if len(matches) == 0 {
		e.recordCounter(ctx, "bridge.dispatch.unmatched", map[string]string{
			"event": event.EventName,
		})
		return []string{}, nil
	}

	delivered := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, listenerID := range matches {
		if _, duplicate := seen[listenerID]; duplicate {
			continue
		}
		seen[listenerID] = struct{}{}
		if err := e.deliver(ctx, listenerID, event); err != nil {
			e.recordCounter(ctx, "bridge.dispatch.delivery_failed", map[string]string{
				"event": event.EventName,
			})
			e.logError(ctx, "event delivery failed", map[string]any{
				"event":       event.EventName,
				"listener_id": listenerID,
				"error":       err.Error(),
			})
			continue
		}
		delivered = append(delivered, listenerID)
	}
	sort.Strings(delivered)

	e.recordCounter(ctx, "bridge.dispatch.total", map[string]string{
		"event": event.EventName,
	})
	e.observeDuration(ctx, "bridge.dispatch.duration_ms", startedAt, map[string]string{
		"event": event.EventName,
	})
	return delivered, nil
}

// HandleWebhook is the inbound HTTP surface: it parses the body into an
// envelope, dedupes re-deliveries through the claim store when a delivery id
// is present, and dispatches. Unrecognized payload shapes are acknowledged
// with 200 so the CRM does not retry them.
func (e *Engine) HandleWebhook(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if e == nil {
		return core.InboundResult{}, dispatchInternal("dispatch: engine is nil", nil)
	}
	envelope, err := core.ParseChangeEnvelope(req.Body)
	if err != nil {
		return core.InboundResult{}, dispatchWrapError(
			err,
			goerrors.CategoryBadInput,
			"dispatch: parse change envelope",
			http.StatusBadRequest,
			core.BridgeErrorBadInput,
			map[string]any{"provider_id": req.ProviderID},
		)
	}
	envelope.Metadata = req.Metadata

	claimID := ""
	if e.Claims != nil {
		if key := deliveryKey(req); key != "" {
			var accepted bool
			claimID, accepted, err = e.Claims.Claim(ctx, key, e.claimTTL())
			if err != nil {
				return core.InboundResult{}, err
			}
			if !accepted {
				return core.InboundResult{
					Accepted:   true,
					StatusCode: http.StatusOK,
					Metadata: map[string]any{
						"deduped": true,
					},
				}, nil
			}
		}
	}

	delivered, err := e.Handle(ctx, envelope)
	if err != nil {
		if e.Claims != nil && claimID != "" {
			_ = e.Claims.Fail(ctx, claimID, err, time.Time{})
		}
		return core.InboundResult{}, err
	}
	if e.Claims != nil && claimID != "" {
		if err := e.Claims.Complete(ctx, claimID); err != nil {
			return core.InboundResult{}, err
		}
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"delivered": len(delivered),
		},
	}, nil
}

func (e *Engine) deliver(ctx context.Context, listenerID string, event core.ClassifiedEvent) error {
	if e.Transport == nil {
		return dispatchInternal("dispatch: delivery transport is not configured", map[string]any{
			"listener_id": listenerID,
		})
	}
	return e.Transport.Deliver(ctx, listenerID, event)
}

func deliveryKey(req core.InboundRequest) string {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value
		}
	}
	if req.Headers != nil {
		for existing, value := range req.Headers {
			if strings.EqualFold(strings.TrimSpace(existing), "x-delivery-id") {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

func (e *Engine) claimTTL() time.Duration {
	if e != nil && e.ClaimTTL > 0 {
		return e.ClaimTTL
	}
	return 10 * time.Minute
}

func (e *Engine) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) recordCounter(ctx context.Context, name string, tags map[string]string) {
	if e == nil || e.Metrics == nil {
		return
	}
	e.Metrics.IncCounter(ctx, name, 1, core.CloneTags(tags))
}

func (e *Engine) observeDuration(ctx context.Context, name string, startedAt time.Time, tags map[string]string) {
	if e == nil || e.Metrics == nil {
		return
	}
	e.Metrics.ObserveHistogram(ctx, name, float64(time.Since(startedAt).Milliseconds()), core.CloneTags(tags))
}

func (e *Engine) logDebug(ctx context.Context, message string, fields map[string]any) {
	e.log(ctx, "debug", message, fields)
}

func (e *Engine) logError(ctx context.Context, message string, fields map[string]any) {
	e.log(ctx, "error", message, fields)
}

func (e *Engine) log(ctx context.Context, level string, message string, fields map[string]any) {
	if e == nil || e.Logger == nil {
		return
	}
	logger := e.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	switch level {
	case "error":
		logger.Error(message)
	case "debug":
		logger.Debug(message)
	default:
		logger.Info(message)
	}
}

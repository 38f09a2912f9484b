package classify

import (
	"strings"

	"github.com/goliatone/go-crm-bridge/core"
)

// Classifier derives a classified event from a change envelope using a rule
// set. It is pure and side-effect free; a single classifier may be shared by
// any number of concurrent callers.
type Classifier struct {
	rules *RuleSet
}

func NewClassifier(rules *RuleSet) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the classified event for the envelope, or false when the
// envelope's shape is not recognized. A miss is the expected outcome for
// payloads the bridge does not yet understand and must never be treated as
// a failure.
func (c *Classifier) Classify(envelope core.ChangeEnvelope) (core.ClassifiedEvent, bool) {
	if c == nil || c.rules == nil {
		return core.ClassifiedEvent{}, false
	}
	table := strings.TrimSpace(envelope.Table)
	changeType := strings.TrimSpace(string(envelope.Type))
	if table == "" || changeType == "" {
		return core.ClassifiedEvent{}, false
	}
	eventName, ok := c.rules.Lookup(table, core.ChangeType(changeType))
	if !ok {
		return core.ClassifiedEvent{}, false
	}
	return core.ClassifiedEvent{
		EventName:       eventName,
		IdentifierValue: envelope.IdentifierValue(),
		Payload:         buildPayload(envelope),
	}, true
}

// buildPayload copies the envelope's business fields into the event payload:
// the record, the prior record for updates, and any enrichment fields the
// webhook function attached (contact snapshot, owner id, timestamp).
func buildPayload(envelope core.ChangeEnvelope) map[string]any {
	payload := map[string]any{}
	if envelope.Record != nil {
		payload["record"] = envelope.Record
	}
	if envelope.OldRecord != nil {
		payload["old_record"] = envelope.OldRecord
	}
	for key, value := range envelope.Extra {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		if _, exists := payload[trimmed]; exists {
			continue
		}
		payload[trimmed] = value
	}
	if strings.TrimSpace(envelope.AgentUserID) != "" {
		payload["agent_user_id"] = strings.TrimSpace(envelope.AgentUserID)
	}
	if strings.TrimSpace(envelope.Timestamp) != "" {
		payload["timestamp"] = strings.TrimSpace(envelope.Timestamp)
	}
	return payload
}

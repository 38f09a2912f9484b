package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidRegistration = errors.New("core: invalid listener registration")
	ErrInvalidIdentity     = errors.New("core: invalid external identity")
)

// IdentifierUnknown is the sentinel identifier assigned when an inbound
// envelope carries no owner identifier. It is a valid, routable value: a
// listener registered against it would match. Callers that need to treat
// "no identifier" specially must compare against this constant.
const IdentifierUnknown = "unknown"

type ChangeType string

const (
	ChangeTypeInsert ChangeType = "INSERT"
	ChangeTypeUpdate ChangeType = "UPDATE"
)

// ChangeEnvelope is one inbound change notification describing a single
// insert or update on a CRM source table. The envelope is received per call
// and never stored; unrecognized shapes are normal input, not errors.
type ChangeEnvelope struct {
	Type        ChangeType
	Table       string
	Schema      string
	Record      map[string]any
	OldRecord   map[string]any
	AgentUserID string
	Timestamp   string

	// Extra holds enrichment fields the CRM webhook function attaches next
	// to the record (contact snapshot and the like). Treated as opaque.
	Extra map[string]any

	// Metadata carries transport hints (delivery id, headers) used for
	// dedupe; it is not part of the business payload.
	Metadata map[string]any
}

type changeEnvelopeWire struct {
	Type        string         `json:"type"`
	Table       string         `json:"table"`
	Schema      string         `json:"schema"`
	Record      map[string]any `json:"record"`
	OldRecord   map[string]any `json:"old_record"`
	AgentUserID string         `json:"agent_user_id"`
	Timestamp   string         `json:"timestamp"`
}

var envelopeWireKeys = map[string]struct{}{
	"type":          {},
	"table":         {},
	"schema":        {},
	"record":        {},
	"old_record":    {},
	"agent_user_id": {},
	"timestamp":     {},
}

// ParseChangeEnvelope decodes a raw webhook body. Missing or unexpected
// fields are preserved rather than rejected; classification decides later
// whether the envelope means anything.
func ParseChangeEnvelope(body []byte) (ChangeEnvelope, error) {
	if len(body) == 0 {
		return ChangeEnvelope{}, fmt.Errorf("core: envelope body is empty")
	}
	var wire changeEnvelopeWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return ChangeEnvelope{}, fmt.Errorf("core: decode envelope: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return ChangeEnvelope{}, fmt.Errorf("core: decode envelope fields: %w", err)
	}
	extra := map[string]any{}
	for key, value := range raw {
		if _, known := envelopeWireKeys[key]; known {
			continue
		}
		extra[key] = value
	}
	return ChangeEnvelope{
		Type:        ChangeType(strings.TrimSpace(wire.Type)),
		Table:       strings.TrimSpace(wire.Table),
		Schema:      strings.TrimSpace(wire.Schema),
		Record:      wire.Record,
		OldRecord:   wire.OldRecord,
		AgentUserID: strings.TrimSpace(wire.AgentUserID),
		Timestamp:   strings.TrimSpace(wire.Timestamp),
		Extra:       extra,
	}, nil
}

// IdentifierValue returns the envelope's owner identifier verbatim, or the
// IdentifierUnknown sentinel when absent.
func (e ChangeEnvelope) IdentifierValue() string {
	if trimmed := strings.TrimSpace(e.AgentUserID); trimmed != "" {
		return trimmed
	}
	return IdentifierUnknown
}

// ClassifiedEvent is the routable result of classifying an envelope.
// Produced fresh per dispatch, never persisted.
type ClassifiedEvent struct {
	EventName       string
	IdentifierValue string
	Payload         map[string]any
}

// ListenerRegistration binds a listener to a set of event names scoped by an
// opaque identifier value. At most one active registration exists per
// listener id; re-registering replaces the prior registration atomically.
type ListenerRegistration struct {
	ListenerID      string
	EventNames      []string
	IdentifierValue string
	CreatedAt       time.Time
}

func (r ListenerRegistration) Validate() error {
	if strings.TrimSpace(r.ListenerID) == "" {
		return fmt.Errorf("%w: listener id is required", ErrInvalidRegistration)
	}
	if len(NormalizeEventNames(r.EventNames)) == 0 {
		return fmt.Errorf("%w: at least one event name is required", ErrInvalidRegistration)
	}
	if strings.TrimSpace(r.IdentifierValue) == "" {
		return fmt.Errorf("%w: identifier value is required", ErrInvalidRegistration)
	}
	return nil
}

// Normalized returns a copy with trimmed fields, deduped sorted event names,
// and CreatedAt defaulted.
func (r ListenerRegistration) Normalized(now time.Time) ListenerRegistration {
	out := ListenerRegistration{
		ListenerID:      strings.TrimSpace(r.ListenerID),
		EventNames:      NormalizeEventNames(r.EventNames),
		IdentifierValue: strings.TrimSpace(r.IdentifierValue),
		CreatedAt:       r.CreatedAt,
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now.UTC()
	}
	return out
}

// Matches reports whether this registration subscribes to the event name and
// is scoped to exactly the given identifier value. No wildcard or prefix
// semantics: both comparisons are exact.
func (r ListenerRegistration) Matches(eventName string, identifierValue string) bool {
	if strings.TrimSpace(r.IdentifierValue) != strings.TrimSpace(identifierValue) {
		return false
	}
	target := strings.TrimSpace(eventName)
	for _, name := range r.EventNames {
		if name == target {
			return true
		}
	}
	return false
}

func NormalizeEventNames(names []string) []string {
	if len(names) == 0 {
		return []string{}
	}
	set := map[string]struct{}{}
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// emailPattern matches local-part@domain.tld; intentionally loose beyond
// that shape to match what the CRM issues.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ExternalIdentity is the set of user-identifying claims carried by a signed
// CRM token. It exists only for the duration of one validation call.
type ExternalIdentity struct {
	Email      string
	FirstName  string
	LastName   string
	ExternalID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

func (i ExternalIdentity) Validate() error {
	if strings.TrimSpace(i.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidIdentity)
	}
	if strings.TrimSpace(i.FirstName) == "" {
		return fmt.Errorf("%w: first name is required", ErrInvalidIdentity)
	}
	if strings.TrimSpace(i.LastName) == "" {
		return fmt.Errorf("%w: last name is required", ErrInvalidIdentity)
	}
	if strings.TrimSpace(i.ExternalID) == "" {
		return fmt.Errorf("%w: external id is required", ErrInvalidIdentity)
	}
	if !emailPattern.MatchString(strings.TrimSpace(i.Email)) {
		return fmt.Errorf("%w: malformed email", ErrInvalidIdentity)
	}
	return nil
}

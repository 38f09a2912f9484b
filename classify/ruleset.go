package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-crm-bridge/core"
)

// Rule maps one exact (table, change type) pair to an event name. Rules are
// append-only across releases: lookups key on the exact pair, so adding a
// rule can never change the outcome for pairs already mapped.
type Rule struct {
	Table      string
	ChangeType core.ChangeType
	EventName  string
}

func (r Rule) key() ruleKey {
	return ruleKey{
		table:      strings.TrimSpace(strings.ToLower(r.Table)),
		changeType: strings.TrimSpace(strings.ToUpper(string(r.ChangeType))),
	}
}

func (r Rule) Validate() error {
	if strings.TrimSpace(r.Table) == "" {
		return fmt.Errorf("classify: rule table is required")
	}
	if strings.TrimSpace(string(r.ChangeType)) == "" {
		return fmt.Errorf("classify: rule change type is required")
	}
	if strings.TrimSpace(r.EventName) == "" {
		return fmt.Errorf("classify: rule event name is required")
	}
	return nil
}

type ruleKey struct {
	table      string
	changeType string
}

// RuleSet is an immutable exact-pair lookup table. Construct with NewRuleSet;
// a constructed set is safe for unsynchronized concurrent lookups.
type RuleSet struct {
	rules map[ruleKey]string
}

// NewRuleSet builds a rule set, rejecting conflicting rules at load time.
// Two rules for the same pair are a conflict only when they disagree on the
// event name; identical restatements are tolerated so provider rule
// contributions can overlap.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	indexed := make(map[ruleKey]string, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		key := rule.key()
		eventName := strings.TrimSpace(rule.EventName)
		if existing, ok := indexed[key]; ok && existing != eventName {
			return nil, core.ConfigurationError(
				fmt.Sprintf(
					"classify: conflicting rules for (%s, %s): %q vs %q",
					key.table, key.changeType, existing, eventName,
				),
				map[string]any{
					"table":       key.table,
					"change_type": key.changeType,
				},
			)
		}
		indexed[key] = eventName
	}
	return &RuleSet{rules: indexed}, nil
}

// MustNewRuleSet panics on conflict; intended for static rule tables.
func MustNewRuleSet(rules ...Rule) *RuleSet {
	set, err := NewRuleSet(rules...)
	if err != nil {
		panic(err)
	}
	return set
}

// Lookup resolves the event name for an exact (table, change type) pair.
func (s *RuleSet) Lookup(table string, changeType core.ChangeType) (string, bool) {
	if s == nil || len(s.rules) == 0 {
		return "", false
	}
	eventName, ok := s.rules[Rule{Table: table, ChangeType: changeType}.key()]
	return eventName, ok
}

// EventNames returns the distinct event names the set can produce, sorted.
func (s *RuleSet) EventNames() []string {
	if s == nil {
		return []string{}
	}
	seen := map[string]struct{}{}
	for _, name := range s.rules {
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of distinct pairs mapped.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

const (
	EventNewLead       = "new_lead"
	EventLeadUpdated   = "lead_updated"
	EventPolicyUpdated = "policy_updated"
)

// DefaultRules is the Score CRM event taxonomy. The list has only ever
// grown: opportunities first emitted inserts, then updates, and policies
// gained update events later.
func DefaultRules() []Rule {
	return []Rule{
		{Table: "opportunities", ChangeType: core.ChangeTypeInsert, EventName: EventNewLead},
		{Table: "opportunities", ChangeType: core.ChangeTypeUpdate, EventName: EventLeadUpdated},
		{Table: "policies", ChangeType: core.ChangeTypeUpdate, EventName: EventPolicyUpdated},
	}
}

package sqlstore

import (
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-crm-bridge/core"
)

type listenerRecord struct {
	bun.BaseModel `bun:"table:bridge_listener_registrations,alias:blr"`

	ID              string     `bun:"id,pk"`
	ListenerID      string     `bun:"listener_id,notnull"`
	EventNames      []string   `bun:"event_names,type:jsonb,notnull"`
	IdentifierValue string     `bun:"identifier_value,notnull"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete"`
}

func (r *listenerRecord) toDomain() core.ListenerRegistration {
	if r == nil {
		return core.ListenerRegistration{}
	}
	return core.ListenerRegistration{
		ListenerID:      strings.TrimSpace(r.ListenerID),
		EventNames:      append([]string(nil), r.EventNames...),
		IdentifierValue: strings.TrimSpace(r.IdentifierValue),
		CreatedAt:       r.CreatedAt,
	}
}

func (r *listenerRecord) applyRegistration(registration core.ListenerRegistration, now time.Time) {
	if r == nil {
		return
	}
	r.ListenerID = strings.TrimSpace(registration.ListenerID)
	r.EventNames = core.NormalizeEventNames(registration.EventNames)
	r.IdentifierValue = strings.TrimSpace(registration.IdentifierValue)
	r.UpdatedAt = now
	r.DeletedAt = nil
	if r.CreatedAt.IsZero() {
		if !registration.CreatedAt.IsZero() {
			r.CreatedAt = registration.CreatedAt.UTC()
		} else {
			r.CreatedAt = now
		}
	}
}

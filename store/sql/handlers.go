package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func listenerHandlers() repository.ModelHandlers[*listenerRecord] {
	return repository.ModelHandlers[*listenerRecord]{
		NewRecord: func() *listenerRecord {
			return &listenerRecord{}
		},
		GetID: func(record *listenerRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *listenerRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "listener_id"
		},
		GetIdentifierValue: func(record *listenerRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ListenerID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

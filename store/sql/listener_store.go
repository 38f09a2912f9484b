// Package sqlstore persists listener registrations behind the core store
// contracts using bun repositories.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-crm-bridge/core"
)

type ListenerStore struct {
	db   *bun.DB
	repo repository.Repository[*listenerRecord]
}

func NewListenerStore(db *bun.DB) (*ListenerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*listenerRecord](db, listenerHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid listener repository wiring: %w", err)
		}
	}
	return &ListenerStore{
		db:   db,
		repo: repo,
	}, nil
}

// Upsert installs or replaces the row for a listener id inside one
// transaction, matching the registry's replace-atomically semantics.
func (s *ListenerStore) Upsert(ctx context.Context, registration core.ListenerRegistration) (core.ListenerRegistration, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.ListenerRegistration{}, fmt.Errorf("sqlstore: listener store is not configured")
	}
	listenerID := strings.TrimSpace(registration.ListenerID)
	if listenerID == "" {
		return core.ListenerRegistration{}, fmt.Errorf("sqlstore: listener id is required")
	}
	if strings.TrimSpace(registration.IdentifierValue) == "" {
		return core.ListenerRegistration{}, fmt.Errorf("sqlstore: identifier value is required")
	}
	if len(core.NormalizeEventNames(registration.EventNames)) == 0 {
		return core.ListenerRegistration{}, fmt.Errorf("sqlstore: at least one event name is required")
	}
	now := time.Now().UTC()

	var out core.ListenerRegistration
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.findByListenerIDTx(ctx, tx, listenerID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := &listenerRecord{ID: uuid.NewString()}
			record.applyRegistration(registration, now)
			if _, createErr := tx.NewInsert().Model(record).Exec(ctx); createErr != nil {
				return createErr
			}
			out = record.toDomain()
			return nil
		}

		existing.applyRegistration(registration, now)
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.ListenerRegistration{}, err
	}
	return out, nil
}

// Delete soft-deletes the row for a listener id. Deleting an unknown id is a
// no-op so the registry's idempotent unregister holds across the store.
func (s *ListenerStore) Delete(ctx context.Context, listenerID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: listener store is not configured")
	}
	listenerID = strings.TrimSpace(listenerID)
	if listenerID == "" {
		return fmt.Errorf("sqlstore: listener id is required")
	}
	now := time.Now().UTC()
	_, err := s.db.NewUpdate().
		Model((*listenerRecord)(nil)).
		Set("deleted_at = ?", now).
		Set("updated_at = ?", now).
		Where("listener_id = ?", listenerID).
		Where("deleted_at IS NULL").
		Exec(ctx)
	return err
}

// List returns every active registration, ordered by listener id for
// deterministic restores.
func (s *ListenerStore) List(ctx context.Context) ([]core.ListenerRegistration, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: listener store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("listener_id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ListenerRegistration, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ListenerStore) findByListenerIDTx(
	ctx context.Context,
	tx bun.Tx,
	listenerID string,
) (*listenerRecord, error) {
	record := &listenerRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.listener_id = ?", listenerID).
		Where("?TableAlias.deleted_at IS NULL").
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, nil
	}
	return record, nil
}

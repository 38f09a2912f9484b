// Package sync keeps the bridge's classification metadata aligned with the
// CRM on a fixed schedule. The scheduler only enqueues work; the refresh
// itself runs on the job worker so a slow CRM cannot stall the scheduler.
package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-bridge/classify"
	"github.com/goliatone/go-crm-bridge/core"
)

const (
	// JobIDMetadataSync is the queue job id refresh messages are enqueued
	// under. Must match the worker-side registration.
	JobIDMetadataSync = "bridge.metadata.sync"

	defaultInterval = time.Hour
)

// MetadataSync enqueues periodic refresh jobs. Messages are deduped by an
// idempotency key derived from the interval window, so overlapping
// schedulers (or a restart mid-window) enqueue at most one job per window.
type MetadataSync struct {
	Enqueuer core.JobEnqueuer
	Interval time.Duration
	Logger   core.Logger
	Now      func() time.Time
}

func NewMetadataSync(enqueuer core.JobEnqueuer, interval time.Duration) *MetadataSync {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &MetadataSync{
		Enqueuer: enqueuer,
		Interval: interval,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// EnqueueRefresh enqueues one refresh job for the current interval window.
func (s *MetadataSync) EnqueueRefresh(ctx context.Context) error {
	if s == nil || s.Enqueuer == nil {
		return fmt.Errorf("sync: metadata sync requires an enqueuer")
	}
	window := s.now().Truncate(s.interval())
	return s.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: JobIDMetadataSync,
		Parameters: map[string]any{
			"window": window.Format(time.RFC3339),
		},
		IdempotencyKey: fmt.Sprintf("%s:%d", JobIDMetadataSync, window.Unix()),
		DedupPolicy:    "drop",
	})
}

// Run enqueues a refresh immediately and then once per interval until the
// context is canceled.
func (s *MetadataSync) Run(ctx context.Context) error {
	if s == nil || s.Enqueuer == nil {
		return fmt.Errorf("sync: metadata sync requires an enqueuer")
	}
	if err := s.EnqueueRefresh(ctx); err != nil {
		s.logError(ctx, "metadata sync enqueue failed", err)
	}
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.EnqueueRefresh(ctx); err != nil {
				s.logError(ctx, "metadata sync enqueue failed", err)
			}
		}
	}
}

func (s *MetadataSync) interval() time.Duration {
	if s != nil && s.Interval > 0 {
		return s.Interval
	}
	return defaultInterval
}

func (s *MetadataSync) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MetadataSync) logError(ctx context.Context, message string, err error) {
	if s == nil || s.Logger == nil {
		return
	}
	logger := s.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error(message, "error", err)
}

// RuleSource contributes classification rules to a refresh, typically a
// provider's rule table.
type RuleSource func() []classify.Rule

// Refresher is the worker-side handler for metadata sync jobs: it collects
// every source's rules, rebuilds the rule set, and hands the result to the
// installer. A conflicting contribution aborts the refresh and keeps the
// previous rule set in place.
type Refresher struct {
	Sources []RuleSource
	Install func(*classify.RuleSet)
	Logger  core.Logger
}

func NewRefresher(install func(*classify.RuleSet), sources ...RuleSource) *Refresher {
	return &Refresher{
		Sources: sources,
		Install: install,
	}
}

func (r *Refresher) Refresh(ctx context.Context) error {
	if r == nil || r.Install == nil {
		return fmt.Errorf("sync: refresher requires an installer")
	}
	if len(r.Sources) == 0 {
		return fmt.Errorf("sync: refresher requires at least one rule source")
	}

	var rules []classify.Rule
	for _, source := range r.Sources {
		if source == nil {
			continue
		}
		rules = append(rules, source()...)
	}
	ruleSet, err := classify.NewRuleSet(rules...)
	if err != nil {
		return err
	}
	r.Install(ruleSet)
	r.logInfo(ctx, "classification rules refreshed", ruleSet.Len())
	return nil
}

// HandleJob adapts Refresh to a job delivery: a failed refresh nacks with
// requeue so the worker retries within its bounded policy.
func (r *Refresher) HandleJob(ctx context.Context, delivery core.JobDelivery) error {
	if delivery == nil {
		return fmt.Errorf("sync: job delivery is required")
	}
	message := delivery.Message()
	if message == nil || strings.TrimSpace(message.JobID) != JobIDMetadataSync {
		return delivery.Nack(ctx, core.JobNackOptions{
			Requeue: false,
			Reason:  "unexpected job id",
		})
	}
	if err := r.Refresh(ctx); err != nil {
		_ = delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Reason:  err.Error(),
		})
		return err
	}
	return delivery.Ack(ctx)
}

func (r *Refresher) logInfo(ctx context.Context, message string, ruleCount int) {
	if r == nil || r.Logger == nil {
		return
	}
	logger := r.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info(message, "rule_count", ruleCount)
}

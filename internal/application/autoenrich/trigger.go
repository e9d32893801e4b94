// Package autoenrich decides, from a page of query results, whether the pipeline
// needs a sync or an enrichment pass and triggers it through the inbound API.
package autoenrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/claimsync/internal/application/returns"
)

// DefaultCooldown is how long a Trigger stays quiet after a failed pass.
const DefaultCooldown = 5 * time.Minute

// State is the lifecycle state of a Trigger.
type State string

const (
	StateIdle        State = "idle"
	StateTriggered   State = "triggered"
	StateCoolingDown State = "cooling_down"
)

// PipelineClient is the subset of the inbound API a Trigger calls.
type PipelineClient interface {
	Sync(ctx context.Context, accountID string) error
	Enrich(ctx context.Context, accountID string) error
}

// Decision is what a result page asks for.
type Decision struct {
	NeedSync   bool
	NeedEnrich bool
	// AccountIDs are the accounts owning an incomplete record, in first-seen order.
	AccountIDs []string
}

// Any reports whether the decision calls for a pass.
func (d Decision) Any() bool {
	return d.NeedSync || d.NeedEnrich
}

// Inspect looks for sync-incomplete and enrichment-incomplete records. A record that
// still needs a sync is not counted towards enrichment: the sync comes first.
func Inspect(page []returns.ReturnClaimView) Decision {
	var d Decision
	seen := make(map[string]struct{})
	for _, v := range page {
		switch {
		case v.NeedsResync:
			d.NeedSync = true
		case v.NeedsEnrichment:
			d.NeedEnrich = true
		default:
			continue
		}
		if _, ok := seen[v.AccountID]; !ok {
			seen[v.AccountID] = struct{}{}
			d.AccountIDs = append(d.AccountIDs, v.AccountID)
		}
	}
	return d
}

// Trigger runs at most one pass at a time and backs off after a failure.
type Trigger struct {
	client   PipelineClient
	logger   *zap.Logger
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	state    State
	deadline time.Time
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(t *Trigger) {
		if d > 0 {
			t.cooldown = d
		}
	}
}

// WithClock sets the clock used for the cooldown deadline.
func WithClock(now func() time.Time) Option {
	return func(t *Trigger) {
		t.now = now
	}
}

// NewTrigger creates an idle Trigger.
func NewTrigger(client PipelineClient, logger *zap.Logger, opts ...Option) *Trigger {
	t := &Trigger{
		client:   client,
		logger:   logger,
		cooldown: DefaultCooldown,
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

// State returns the current state, expiring a passed cooldown.
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireCooldown()
	return t.state
}

// CooldownUntil returns the cooldown deadline, zero unless cooling down.
func (t *Trigger) CooldownUntil() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateCoolingDown {
		return time.Time{}
	}
	return t.deadline
}

// Observe inspects a result page and, when the Trigger is idle and the page calls
// for it, runs the pass: the sync of every flagged account if a record needs one,
// then their enrichment if a record needs that. It returns the decision it acted on; a zero Decision means
// nothing was triggered.
func (t *Trigger) Observe(ctx context.Context, page []returns.ReturnClaimView) (Decision, error) {
	decision := Inspect(page)
	if !decision.Any() {
		return Decision{}, nil
	}
	if !t.begin() {
		return Decision{}, nil
	}

	err := t.run(ctx, decision)
	t.finish(err)
	return decision, err
}

// begin moves idle to triggered.
func (t *Trigger) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireCooldown()
	if t.state != StateIdle {
		return false
	}
	t.state = StateTriggered
	return true
}

func (t *Trigger) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		t.state = StateIdle
		return
	}
	t.state = StateCoolingDown
	t.deadline = t.now().Add(t.cooldown)
	t.logger.Warn("Auto-enrichment pass failed, cooling down",
		zap.Time("until", t.deadline),
		zap.Error(err),
	)
}

func (t *Trigger) run(ctx context.Context, d Decision) error {
	t.logger.Info("Auto-enrichment pass triggered",
		zap.Bool("sync", d.NeedSync),
		zap.Bool("enrich", d.NeedEnrich),
		zap.Strings("account_ids", d.AccountIDs),
	)
	if d.NeedSync {
		for _, id := range d.AccountIDs {
			if err := t.client.Sync(ctx, id); err != nil {
				return fmt.Errorf("sync %s: %w", id, err)
			}
		}
	}
	if !d.NeedEnrich {
		return nil
	}
	for _, id := range d.AccountIDs {
		if err := t.client.Enrich(ctx, id); err != nil {
			return fmt.Errorf("enrich %s: %w", id, err)
		}
	}
	return nil
}

// expireCooldown must be called with mu held.
func (t *Trigger) expireCooldown() {
	if t.state == StateCoolingDown && !t.now().Before(t.deadline) {
		t.state = StateIdle
		t.deadline = time.Time{}
	}
}

package remember

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
)

// PurgerOption configures a Purger
type PurgerOption func(*Purger)

func WithPurgerClock(now func() time.Time) PurgerOption {
	return func(p *Purger) {
		if now != nil {
			p.now = now
		}
	}
}

func WithPurgerLogger(logger Logger) PurgerOption {
	return func(p *Purger) {
		p.logger = logger
	}
}

func WithPurgerLoggerProvider(provider LoggerProvider) PurgerOption {
	return func(p *Purger) {
		p.loggerProvider = provider
	}
}

// Purger periodically deletes persistent series that have not been used
// within the token validity window. Those series can no longer log
// anyone in, the mechanism rejects them as expired.
type Purger struct {
	store          ExpiredTokenPurger
	validity       time.Duration
	now            func() time.Time
	logger         Logger
	loggerProvider LoggerProvider

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

func NewPurger(store ExpiredTokenPurger, validity time.Duration, opts ...PurgerOption) *Purger {
	if validity <= 0 {
		validity = DefaultTokenValidity
	}
	p := &Purger{
		store:    store,
		validity: validity,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.loggerProvider, p.logger = ResolveLogger("remember.purger", p.loggerProvider, p.logger)
	return p
}

// RunOnce removes every series last used before now minus the validity
// window and returns how many were removed.
func (p *Purger) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.validity)
	removed, err := p.store.RemoveTokensUsedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("remember-me purge failed", "cutoff", cutoff, "error", err)
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to purge expired remember-me tokens")
	}
	p.logger.Info("remember-me purge completed", "removed", removed, "cutoff", cutoff)
	return removed, nil
}

// Start schedules RunOnce using a five field cron schedule. Calling
// Start on a running purger is a no-op.
func (p *Purger) Start(schedule string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid purge schedule").
			WithTextCode(TextCodeInvalidConfig).
			WithMetadata(map[string]any{"schedule": schedule})
	}

	p.cron = cron.New(cron.WithParser(cronParser))
	entryID, err := p.cron.AddFunc(schedule, func() {
		_, _ = p.RunOnce(context.Background())
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to schedule remember-me purge")
	}
	p.entryID = entryID
	p.cron.Start()
	p.running = true

	p.logger.Info("remember-me purger started", "schedule", schedule)
	return nil
}

// Running reports whether the schedule is active
func (p *Purger) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextRun returns the next scheduled purge, or nil when stopped
func (p *Purger) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	for _, entry := range p.cron.Entries() {
		if entry.ID == p.entryID {
			next := entry.Next
			return &next
		}
	}
	return nil
}

// Stop halts the schedule and waits for a running purge to finish
func (p *Purger) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.running = false
	p.logger.Info("remember-me purger stopped")
}

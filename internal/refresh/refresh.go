// Package refresh periodically imports ICS subscriptions into the event
// store.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dmailcal/internal/ics"
	appLog "dmailcal/internal/log"
	"dmailcal/internal/model"
)

type Fetcher interface {
	FetchAll(ctx context.Context, subs []ics.Subscription) ([]ics.FetchResult, []error)
}

type Importer interface {
	Parse(text, account string, existing []model.EventRecord) ([]model.EventRecord, ics.Result)
}

type Store interface {
	Snapshot() []model.EventRecord
	Merge(events []model.EventRecord) (int, error)
}

// Report summarises one refresh pass.
type Report struct {
	Fetched  int
	Parsed   int
	Imported int
}

// Refresher runs fetch, import and merge for a fixed set of
// subscriptions, either once or on a cron schedule.
type Refresher struct {
	fetcher  Fetcher
	importer Importer
	store    Store
	subs     []ics.Subscription
	account  string

	mu   sync.Mutex
	cron *cron.Cron
}

func New(f Fetcher, im Importer, st Store, subs []ics.Subscription, account string) *Refresher {
	return &Refresher{fetcher: f, importer: im, store: st, subs: subs, account: account}
}

// RunOnce refreshes every subscription. Each import is deduplicated
// against a fresh store snapshot so feeds that share events do not
// double-insert. Per-subscription failures are joined into the returned
// error; successful feeds are still merged.
func (r *Refresher) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	if len(r.subs) == 0 {
		return rep, nil
	}
	started := time.Now()

	results, errs := r.fetcher.FetchAll(ctx, r.subs)
	rep.Fetched = len(results)
	for _, res := range results {
		events, result := r.importer.Parse(string(res.Body), r.account, r.store.Snapshot())
		if events == nil {
			errs = append(errs, fmt.Errorf("subscription %q: %w", res.Subscription.ID, result.Err))
			continue
		}
		rep.Parsed += result.Raw
		n, err := r.store.Merge(events)
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %q: merge: %w", res.Subscription.ID, err))
			continue
		}
		rep.Imported += n
		appLog.Debug("subscription imported", "id", res.Subscription.ID, "outcome", result.Outcome, "new", n)
	}

	err := errors.Join(errs...)
	appLog.Info("refresh done",
		"subscriptions", len(r.subs),
		"fetched", rep.Fetched,
		"parsed", rep.Parsed,
		"imported", rep.Imported,
		"errors", len(errs),
		"took", time.Since(started).Round(time.Millisecond),
	)
	return rep, err
}

// Start runs RunOnce on the cron schedule in loc. Overlapping runs are skipped.
func (r *Refresher) Start(ctx context.Context, schedule string, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", schedule, err)
	}

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()

	c.Start()
	appLog.Info("refresh scheduler started", "schedule", schedule, "tz", loc.String(), "subscriptions", len(r.subs))
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	appLog.Info("refresh scheduler stopped")
}

// Package engine implements the backtest replay driver, live warmup
// driver and live tick-over driver of spec §4.L: the loop that turns a
// historical window or an inbound data stream into StrategyEvents by
// driving the subscription handler and ledger on a fixed time cursor.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/archive"
	"github.com/fundforge/fundforge/internal/domain"
	"github.com/fundforge/fundforge/internal/ledger"
	"github.com/fundforge/fundforge/internal/subscription"
)

// EventKind tags the variant held by a StrategyEvent.
type EventKind uint8

const (
	EventTimeSlice EventKind = iota
	EventWarmUpComplete
	EventPositionClosed
)

// StrategyEvent is what a driver hands back to the strategy: a combined
// TimeSlice, the one-time warmup-complete marker, or a bracket-triggered
// position close surfaced alongside the tick that caused it.
type StrategyEvent struct {
	Kind      EventKind
	Time      time.Time
	TimeSlice domain.TimeSlice
	Closed    *ledger.ClosedByBracket
}

// EmitFunc delivers one StrategyEvent to the strategy runtime.
type EmitFunc func(StrategyEvent)

// HistoricalStore is the subset of *archive.Archive the engine needs;
// named so tests can supply a fake without pulling in mmap files.
type HistoricalStore interface {
	BulkRange(subs []domain.DataSubscription, from, to time.Time) (map[int64]domain.TimeSlice, error)
}

// Config holds the engine's two time knobs, both named explicitly in
// spec §4.L.
type Config struct {
	BufferDuration time.Duration
	WarmupWindow   time.Duration
}

// DefaultConfig returns a one-second tick with a 24h warmup window.
func DefaultConfig() Config {
	return Config{BufferDuration: time.Second, WarmupWindow: 24 * time.Hour}
}

// Driver ties together the historical store, subscription handler and
// ledger book that a backtest replay, live warmup or live tick-over loop
// all share.
type Driver struct {
	handler *subscription.Handler
	book    *ledger.Book // nil skips ledger price updates entirely
	store   HistoricalStore
	cfg     Config
	emit    EmitFunc
	log     zerolog.Logger
}

// New builds a Driver. book may be nil for a strategy with no paper
// ledger attached (pure signal/alerting use).
func New(handler *subscription.Handler, book *ledger.Book, store HistoricalStore, cfg Config, emit EmitFunc, log zerolog.Logger) *Driver {
	return &Driver{
		handler: handler,
		book:    book,
		store:   store,
		cfg:     cfg,
		emit:    emit,
		log:     log.With().Str("component", "engine").Logger(),
	}
}

// RunBacktest replays [start, end) day by day (spec §4.L "Backtest"),
// keeping each bulk_range pull bounded to one UTC day.
func (d *Driver) RunBacktest(ctx context.Context, start, end time.Time) error {
	day := start.UTC().Truncate(24 * time.Hour)
	end = end.UTC()

	for day.Before(end) {
		dayEnd := day.Add(24 * time.Hour)
		if dayEnd.After(end) {
			dayEnd = end
		}
		if err := d.runWindow(ctx, day, dayEnd); err != nil {
			return err
		}
		day = day.Add(24 * time.Hour)
	}
	return nil
}

// RunWarmup walks from now-WarmupWindow to now (spec §4.L "Live
// warmup"), then emits WarmUpComplete. Callers hand control to a
// LiveTicker afterwards.
func (d *Driver) RunWarmup(ctx context.Context, now time.Time) error {
	start := now.Add(-d.cfg.WarmupWindow)
	if err := d.runWindow(ctx, start, now); err != nil {
		return err
	}
	d.emit(StrategyEvent{Kind: EventWarmUpComplete, Time: now})
	return nil
}

// runWindow implements the per-day stepping loop shared by backtest and
// warmup: fetch bulk_range for the current primary set, walk time in
// BufferDuration steps draining events into a TimeSlice, and re-fetch
// whenever the primary set changes mid-window (spec §4.L).
func (d *Driver) runWindow(ctx context.Context, windowStart, windowEnd time.Time) error {
	cursor := windowStart

	for cursor.Before(windowEnd) {
		primaries := d.handler.PrimarySubscriptions()
		bulk, err := d.store.BulkRange(primaries, cursor, windowEnd)
		if err != nil {
			return fmt.Errorf("engine: bulk range: %w", err)
		}
		keys := archive.SortedKeys(bulk)
		idx := 0

		for cursor.Before(windowEnd) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			next := cursor.Add(d.cfg.BufferDuration)
			if next.After(windowEnd) {
				next = windowEnd
			}

			var slice domain.TimeSlice
			for idx < len(keys) && keys[idx] <= next.UnixNano() {
				slice = append(slice, bulk[keys[idx]]...)
				idx++
			}

			combined := d.dispatch(slice, next)
			cursor = next

			if !samePrimarySet(primaries, d.handler.PrimarySubscriptions()) {
				break // re-fetch bulk_range against the new primary set
			}

			if len(combined) > 0 {
				d.emit(StrategyEvent{Kind: EventTimeSlice, Time: next, TimeSlice: combined})
			}
		}
	}
	return nil
}

// dispatch pushes one buffered batch of raw primary data through the
// subscription handler's update path and the ledger's price-update path,
// then flushes any bars elapsed time alone should close. Bracket closes
// are emitted immediately as their own StrategyEvent; the combined
// TimeSlice (raw + closed bars) is returned for the caller to emit.
func (d *Driver) dispatch(slice domain.TimeSlice, now time.Time) domain.TimeSlice {
	var combined domain.TimeSlice

	for _, data := range slice {
		combined = append(combined, d.handler.Update(data)...)
		if d.book != nil {
			for _, closed := range d.book.PriceUpdate(data) {
				closed := closed
				d.emit(StrategyEvent{Kind: EventPositionClosed, Time: now, Closed: &closed})
			}
		}
	}
	combined = append(combined, d.handler.UpdateTime(now)...)
	return combined
}

// samePrimarySet reports whether a and b name the same set of
// (symbol, SubscriptionResolutionType) pairs, ignoring order.
func samePrimarySet(a, b []domain.DataSubscription) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[primaryKey(s)] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[primaryKey(s)]; !ok {
			return false
		}
	}
	return true
}

func primaryKey(s domain.DataSubscription) string {
	return s.Symbol.String() + "|" + s.SubResType().String()
}

// LiveTicker implements the live tick-over loop of spec §4.L: buffers
// inbound StreamRequest data-updates and flushes a combined TimeSlice
// through the same dispatch path on a fixed timer.
type LiveTicker struct {
	driver *Driver

	mu      sync.Mutex
	pending domain.TimeSlice
}

// NewLiveTicker wraps driver for live dispatch. Call Feed for every
// inbound data update and Run to start the timer loop.
func NewLiveTicker(driver *Driver) *LiveTicker {
	return &LiveTicker{driver: driver}
}

// Feed buffers one inbound data update for the next tick.
func (lt *LiveTicker) Feed(data domain.BaseData) {
	lt.mu.Lock()
	lt.pending = append(lt.pending, data)
	lt.mu.Unlock()
}

// Run drives the BufferDuration timer until ctx is cancelled.
func (lt *LiveTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(lt.driver.cfg.BufferDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			lt.tick(now)
		}
	}
}

func (lt *LiveTicker) tick(now time.Time) {
	lt.mu.Lock()
	batch := lt.pending
	lt.pending = nil
	lt.mu.Unlock()

	combined := lt.driver.dispatch(batch, now)
	if len(combined) > 0 {
		lt.driver.emit(StrategyEvent{Kind: EventTimeSlice, Time: now, TimeSlice: combined})
	}
}

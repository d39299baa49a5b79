// Package backfill implements the continuous forward/backward symbol
// update scheduler described in spec §4.E: per-vendor download lists,
// bounded concurrency across symbols, windowed historical pulls, and
// per-symbol dedup against an in-flight set.
package backfill

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/fundforge/fundforge/internal/domain"
	"github.com/fundforge/fundforge/internal/vendor"
)

const (
	tickWindow        = 4 * time.Hour
	barWindow         = 24 * time.Hour
	pullTimeout       = 180 * time.Second
	maxConsecutiveEmpty = 200
	inFlightDelay     = 60 * time.Second
)

// Target is one (symbol_name, base_data_type, resolution, start_date) row
// from a vendor's download_list.toml (spec §6).
type Target struct {
	Symbol     domain.Symbol
	DataType   domain.BaseDataType
	Resolution domain.Resolution
	StartDate  time.Time
}

func (t Target) subscription() domain.DataSubscription {
	return domain.DataSubscription{Symbol: t.Symbol, Resolution: t.Resolution, BaseDataType: t.DataType, MarketType: t.Symbol.MarketType}
}

func (t Target) key() string {
	return t.Symbol.Key() + "|" + t.DataType.String() + "|" + t.Resolution.String()
}

// Store is the subset of internal/archive.Archive the scheduler needs:
// a place to flush accumulated windows and to discover the saved range's
// current boundaries.
type Store interface {
	Save(data []domain.BaseData) error
	Earliest(sym domain.Symbol, res domain.Resolution, dt domain.BaseDataType) (*time.Time, error)
	Latest(sym domain.Symbol, res domain.Resolution, dt domain.BaseDataType) (*time.Time, error)
}

// Config tunes the scheduler's pacing (spec §4.E "running on a
// configurable interval").
type Config struct {
	ForwardInterval  time.Duration
	BackwardInterval time.Duration
	MaxConcurrent    int64
}

func DefaultConfig() Config {
	return Config{
		ForwardInterval:  time.Minute,
		BackwardInterval: 5 * time.Minute,
		MaxConcurrent:    4,
	}
}

// Scheduler drives one vendor's forward and backward update passes.
type Scheduler struct {
	adapter vendor.Adapter
	store   Store
	cfg     Config
	log     zerolog.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New builds a Scheduler for one vendor adapter against store.
func New(adapter vendor.Adapter, store Store, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		adapter:  adapter,
		store:    store,
		cfg:      cfg,
		log:      log.With().Str("component", "backfill").Str("vendor", adapter.Name()).Logger(),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		inFlight: make(map[string]struct{}),
	}
}

// Run drives both the forward and backward passes over targets until ctx
// is cancelled. Each pass runs on its own ticker; a shutdown signal
// (ctx.Done) aborts the outer loops, and Run returns only after both
// passes, and the per-target goroutines of their current tick, have
// finished.
func (s *Scheduler) Run(ctx context.Context, targets []Target) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.loop(ctx, targets, s.cfg.ForwardInterval, true) }()
	go func() { defer wg.Done(); s.loop(ctx, targets, s.cfg.BackwardInterval, false) }()
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, targets []Target, interval time.Duration, forward bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.anyInFlight() {
				s.log.Debug().Msg("in-flight set non-empty, delaying tick")
				select {
				case <-ctx.Done():
					return
				case <-time.After(inFlightDelay):
				}
			}
			var wg sync.WaitGroup
			for _, t := range targets {
				t := t
				if !s.claim(t) {
					continue
				}
				if err := s.sem.Acquire(ctx, 1); err != nil {
					s.release(t)
					return
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer s.sem.Release(1)
					defer s.release(t)
					if forward {
						s.updateForward(ctx, t)
					} else {
						s.updateBackward(ctx, t)
					}
				}()
			}
			wg.Wait()
		}
	}
}

func (s *Scheduler) anyInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight) > 0
}

func (s *Scheduler) claim(t Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[t.key()]; ok {
		return false
	}
	s.inFlight[t.key()] = struct{}{}
	return true
}

func (s *Scheduler) release(t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, t.key())
}

// updateForward walks [last-saved, now] per spec §4.E's forward pass.
func (s *Scheduler) updateForward(ctx context.Context, t Target) {
	latest, err := s.store.Latest(t.Symbol, t.Resolution, t.DataType)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", t.Symbol.String()).Msg("forward: latest lookup failed")
		return
	}
	from := t.StartDate
	if latest != nil {
		from = *latest
	}
	s.walk(ctx, t, from, time.Now().UTC())
}

// updateBackward walks [configured-start, earliest-saved] per spec §4.E's
// backward pass.
func (s *Scheduler) updateBackward(ctx context.Context, t Target) {
	earliest, err := s.store.Earliest(t.Symbol, t.Resolution, t.DataType)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", t.Symbol.String()).Msg("backward: earliest lookup failed")
		return
	}
	if earliest == nil {
		return
	}
	if !t.StartDate.Before(*earliest) {
		return
	}
	s.walk(ctx, t, t.StartDate, *earliest)
}

// walk implements the per-symbol algorithm of spec §4.E: windowed pulls,
// empty-window counting, day-boundary flush with rewind-and-retry on
// save failure.
func (s *Scheduler) walk(ctx context.Context, t Target, from, to time.Time) {
	windowSize := barWindow
	if t.DataType == domain.TickData {
		windowSize = tickWindow
	}

	windowStart := from
	emptyStreak := 0
	var buffered []domain.BaseData
	dayStart := windowStart.Truncate(24 * time.Hour)

	flush := func(upTo time.Time) bool {
		if len(buffered) == 0 {
			return true
		}
		var lastErr error
		for attempt := 0; attempt < 3; attempt++ {
			lastErr = s.store.Save(buffered)
			if lastErr == nil {
				break
			}
			time.Sleep(time.Second)
		}
		if lastErr != nil {
			s.log.Error().Err(lastErr).Str("symbol", t.Symbol.String()).Msg("save failed after retries, rewinding to day start")
			windowStart = dayStart
			buffered = nil
			return false
		}
		buffered = nil
		return true
	}

	for windowStart.Before(to) {
		select {
		case <-ctx.Done():
			flush(windowStart)
			return
		default:
		}

		we := windowStart.Add(windowSize)
		if we.After(to) {
			we = to
		}

		pullCtx, cancel := context.WithTimeout(ctx, pullTimeout)
		var window []domain.BaseData
		_, err := s.adapter.HistoricalPull(pullCtx, t.subscription(), windowStart, we, func(bd domain.BaseData) {
			window = append(window, bd)
		})
		cancel()

		if err != nil && err != context.DeadlineExceeded {
			s.log.Warn().Err(err).Str("symbol", t.Symbol.String()).Msg("historical pull error")
		}

		if len(window) == 0 {
			emptyStreak++
			windowStart = we
			if emptyStreak >= maxConsecutiveEmpty {
				flush(windowStart)
				return
			}
			continue
		}
		emptyStreak = 0
		buffered = append(buffered, window...)
		last := window[len(window)-1].CloseTime()

		crossedDay := last.Truncate(24 * time.Hour).After(dayStart)
		// Resume just past the last record so the next pull does not
		// return it again.
		windowStart = last.Add(time.Nanosecond)

		if crossedDay {
			if !flush(windowStart) {
				continue
			}
			dayStart = windowStart.Truncate(24 * time.Hour)
		}
	}
	flush(windowStart)
}

// Package subscription implements the per-strategy subscription handler
// (spec §4.I): maps a strategy's requested data subscriptions onto the
// minimal set of vendor primary feeds plus a consolidator chain, fans
// incoming primary data out to derived bars, and maintains per-
// subscription rolling history windows.
package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/consolidate"
	"github.com/fundforge/fundforge/internal/domain"
	"github.com/fundforge/fundforge/internal/vendor"
)

const (
	defaultHistoryToRetain = 500
	defaultWarmupBars      = 20
)

// ErrNoConsolidatableSource is returned when no vendor primary feed can
// feed a consolidator capable of producing sub (spec §4.I step 4).
var ErrNoConsolidatableSource = fmt.Errorf("subscription: no consolidatable source")

// SessionHoursFunc resolves a symbol's trading-hours calendar, backing
// daily/session consolidators. Grounded on the SessionMarketHours
// request in §4.J; callers typically implement it as an RPC round trip.
type SessionHoursFunc func(sym domain.Symbol) (consolidate.TradingHours, error)

// PrimarySetChangedFunc is invoked whenever the registered primary set
// changes, so the caller can broadcast it to the server (spec §4.I step
// 5: "broadcast updated primary set to the server via the
// primary-subscription-update channel").
type PrimarySetChangedFunc func(primaries []domain.DataSubscription)

type primaryEntry struct {
	sub         domain.DataSubscription
	directCount int
	secondaries map[string]*secondaryEntry
}

type secondaryEntry struct {
	sub  domain.DataSubscription
	cons consolidate.Consolidator
}

// Handler holds one strategy's subscription state: strategy_subs,
// primary_subs and secondary_subs as described in §4.I.
type Handler struct {
	vendorAdapter vendor.Adapter
	mode          domain.Mode
	pull          consolidate.RangeFunc
	sessionHours  SessionHoursFunc
	onPrimarySet  PrimarySetChangedFunc
	now           func() time.Time
	log           zerolog.Logger

	historyToRetain int
	warmupBars      int

	mu           sync.Mutex
	strategySubs map[string]domain.DataSubscription
	fundamentals map[string]domain.DataSubscription
	primarySubs  map[domain.SubscriptionResolutionType]*primaryEntry
	subPrimary   map[string]domain.SubscriptionResolutionType
	history      map[string]*consolidate.RollingWindow[domain.BaseData]
}

// NewHandler builds a subscription handler for one strategy. pull backs
// consolidator warmup (may be nil to skip warmup, e.g. in tests);
// sessionHours is required only if the strategy subscribes to
// Days(n)-resolution candles.
func NewHandler(adapter vendor.Adapter, mode domain.Mode, pull consolidate.RangeFunc, sessionHours SessionHoursFunc, onPrimarySet PrimarySetChangedFunc, now func() time.Time, log zerolog.Logger) *Handler {
	return &Handler{
		vendorAdapter:   adapter,
		mode:            mode,
		pull:            pull,
		sessionHours:    sessionHours,
		onPrimarySet:    onPrimarySet,
		now:             now,
		log:             log,
		historyToRetain: defaultHistoryToRetain,
		warmupBars:      defaultWarmupBars,
		strategySubs:    make(map[string]domain.DataSubscription),
		fundamentals:    make(map[string]domain.DataSubscription),
		primarySubs:     make(map[domain.SubscriptionResolutionType]*primaryEntry),
		subPrimary:      make(map[string]domain.SubscriptionResolutionType),
		history:         make(map[string]*consolidate.RollingWindow[domain.BaseData]),
	}
}

// Subscribe implements the §4.I decision tree for a newly requested sub.
func (h *Handler) Subscribe(ctx context.Context, sub domain.DataSubscription) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := sub.String()
	if _, already := h.strategySubs[key]; already {
		return nil
	}

	// Step 1: fundamentals never enter the consolidator pipeline.
	if sub.BaseDataType == domain.FundamentalData {
		h.fundamentals[key] = sub
		h.strategySubs[key] = sub
		return nil
	}

	resolutions, err := h.vendorAdapter.Resolutions(sub.MarketType)
	if err != nil {
		return fmt.Errorf("subscription: vendor resolutions: %w", err)
	}

	// Step 2: a backtest can pull history directly at the target
	// resolution when the vendor already serves it.
	if h.mode == domain.Backtest && containsSubResType(resolutions, sub.SubResType()) {
		h.registerPrimary(sub.SubResType(), sub, true)
		h.strategySubs[key] = sub
		h.ensureHistory(key)
		return nil
	}

	// Step 3/4: pick an ideal lower-level primary, or reject.
	primaryType, ok := idealPrimary(sub, resolutions)
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoConsolidatableSource, sub)
	}

	cons, err := h.buildConsolidator(sub)
	if err != nil {
		return err
	}

	// Step 5: register the primary, warm up the consolidator, insert it.
	primarySub := domain.DataSubscription{
		Symbol:       sub.Symbol,
		Resolution:   primaryType.Resolution,
		BaseDataType: primaryType.BaseDataType,
		MarketType:   sub.MarketType,
	}
	entry := h.registerPrimary(primaryType, primarySub, false)
	h.subPrimary[key] = primaryType

	if h.pull != nil {
		if err := consolidate.Warmup(ctx, cons, primaryType.Resolution, primaryType.BaseDataType, h.now(), h.warmupBars, h.pull); err != nil {
			h.log.Warn().Err(err).Str("sub", sub.String()).Msg("consolidator warmup failed")
		}
	}

	entry.secondaries[key] = &secondaryEntry{sub: sub, cons: cons}
	h.strategySubs[key] = sub
	h.ensureHistory(key)
	return nil
}

// Unsubscribe removes sub from strategy_subs and its secondary map entry;
// when the primary's secondary map empties out and no strategy sub uses
// it directly, the primary is dropped and the updated set broadcast.
func (h *Handler) Unsubscribe(sub domain.DataSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := sub.String()
	if _, ok := h.strategySubs[key]; !ok {
		return
	}
	delete(h.strategySubs, key)
	delete(h.history, key)

	if sub.BaseDataType == domain.FundamentalData {
		delete(h.fundamentals, key)
		return
	}

	pk, ok := h.subPrimary[key]
	if !ok {
		return
	}
	delete(h.subPrimary, key)

	entry, ok := h.primarySubs[pk]
	if !ok {
		return
	}
	if entry.sub.String() == key {
		entry.directCount--
	}
	delete(entry.secondaries, key)

	if entry.directCount <= 0 && len(entry.secondaries) == 0 {
		delete(h.primarySubs, pk)
		h.broadcastPrimarySet()
	}
}

// Update implements the §4.I update path: looks up the primary entry for
// data's SubscriptionResolutionType, feeds every secondary consolidator,
// and returns a TimeSlice of everything the strategy should see this
// tick — the raw primary (when directly subscribed) plus any bar that
// just closed. Rolling history windows are appended alongside.
func (h *Handler) Update(data domain.BaseData) domain.TimeSlice {
	h.mu.Lock()
	defer h.mu.Unlock()

	srt := data.Subscription().SubResType()
	entry, ok := h.primarySubs[srt]
	if !ok {
		return nil
	}

	var out domain.TimeSlice
	if entry.directCount > 0 {
		out = append(out, data)
		h.appendHistory(entry.sub.String(), data)
	}

	for key, se := range entry.secondaries {
		res := se.cons.Update(data)
		if res.Closed != nil {
			out = append(out, res.Closed)
			h.appendHistory(key, res.Closed)
		}
	}
	return out
}

// UpdateTime implements §4.I "Clock ticks": calls update_time(now) on
// every consolidator across every primary, flushing bars whose duration
// elapsed without a trailing datum.
func (h *Handler) UpdateTime(now time.Time) domain.TimeSlice {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out domain.TimeSlice
	for _, entry := range h.primarySubs {
		for key, se := range entry.secondaries {
			for _, closed := range se.cons.UpdateTime(now) {
				out = append(out, closed)
				h.appendHistory(key, closed)
			}
		}
	}
	return out
}

// History returns the rolling history window for a strategy subscription,
// capped to historyToRetain (spec §4.I "per-subscription rolling history
// windows... each capped to history_to_retain").
func (h *Handler) History(sub domain.DataSubscription) (*consolidate.RollingWindow[domain.BaseData], bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.history[sub.String()]
	return w, ok
}

// PrimarySubscriptions reports the current primary set, e.g. for an
// initial broadcast to the server on connect.
func (h *Handler) PrimarySubscriptions() []domain.DataSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.DataSubscription, 0, len(h.primarySubs))
	for _, e := range h.primarySubs {
		out = append(out, e.sub)
	}
	return out
}

func (h *Handler) ensureHistory(key string) {
	if _, ok := h.history[key]; !ok {
		h.history[key] = consolidate.NewRollingWindow[domain.BaseData](h.historyToRetain)
	}
}

func (h *Handler) appendHistory(key string, data domain.BaseData) {
	if w, ok := h.history[key]; ok {
		w.Add(data)
	}
}

func (h *Handler) registerPrimary(pk domain.SubscriptionResolutionType, sub domain.DataSubscription, direct bool) *primaryEntry {
	entry, ok := h.primarySubs[pk]
	isNew := !ok
	if !ok {
		entry = &primaryEntry{sub: sub, secondaries: make(map[string]*secondaryEntry)}
		h.primarySubs[pk] = entry
	}
	if direct {
		entry.directCount++
		h.subPrimary[sub.String()] = pk
	}
	if isNew {
		h.broadcastPrimarySet()
	}
	return entry
}

func (h *Handler) broadcastPrimarySet() {
	if h.onPrimarySet == nil {
		return
	}
	out := make([]domain.DataSubscription, 0, len(h.primarySubs))
	for _, e := range h.primarySubs {
		out = append(out, e.sub)
	}
	h.onPrimarySet(out)
}

// buildConsolidator picks a concrete consolidator for sub per its
// BaseDataType/CandleType/Resolution, mirroring §4.H's five builders.
func (h *Handler) buildConsolidator(sub domain.DataSubscription) (consolidate.Consolidator, error) {
	switch sub.BaseDataType {
	case domain.QuoteBarData:
		return consolidate.NewQuoteBarConsolidator(sub, h.historyToRetain), nil

	case domain.CandleData:
		if sub.CandleType != nil {
			switch sub.CandleType.Kind {
			case domain.CandleRenko:
				return consolidate.NewRenkoConsolidator(sub, sub.CandleType.BrickSize, h.historyToRetain), nil
			case domain.CandleHeikinAshi:
				tickSize, err := h.vendorAdapter.TickSize(sub.Symbol)
				if err != nil {
					return nil, fmt.Errorf("subscription: tick size for %s: %w", sub.Symbol, err)
				}
				return consolidate.NewHeikinAshiConsolidator(sub, tickSize, h.historyToRetain), nil
			}
		}
		if sub.Resolution.Kind == domain.ResDays {
			if h.sessionHours == nil {
				return nil, fmt.Errorf("subscription: daily candle for %s requires session hours", sub.Symbol)
			}
			hours, err := h.sessionHours(sub.Symbol)
			if err != nil {
				return nil, fmt.Errorf("subscription: session hours for %s: %w", sub.Symbol, err)
			}
			return consolidate.NewDailyConsolidator(sub, hours, int(sub.Resolution.N), h.historyToRetain), nil
		}
		if sub.Resolution.Kind == domain.ResTicks {
			return consolidate.NewCountConsolidator(sub, h.historyToRetain), nil
		}
		return consolidate.NewTimeCandleConsolidator(sub, h.historyToRetain), nil

	default:
		return nil, fmt.Errorf("subscription: %s is a primary type, not consolidatable", sub.BaseDataType)
	}
}

// containsSubResType reports whether want is among a vendor's declared
// primary resolutions.
func containsSubResType(available []domain.SubscriptionResolutionType, want domain.SubscriptionResolutionType) bool {
	for _, a := range available {
		if a.Resolution.Equal(want.Resolution) && a.BaseDataType == want.BaseDataType {
			return true
		}
	}
	return false
}

// idealPrimary implements §4.I step 3's per-output-type preference order.
func idealPrimary(sub domain.DataSubscription, available []domain.SubscriptionResolutionType) (domain.SubscriptionResolutionType, bool) {
	has := func(res domain.Resolution, bdt domain.BaseDataType) bool {
		return containsSubResType(available, domain.SubscriptionResolutionType{Resolution: res, BaseDataType: bdt})
	}
	lowestBelow := func(bdt domain.BaseDataType, ceiling domain.Resolution) (domain.SubscriptionResolutionType, bool) {
		var best domain.SubscriptionResolutionType
		found := false
		for _, a := range available {
			if a.BaseDataType != bdt || !a.Resolution.Less(ceiling) {
				continue
			}
			if !found || best.Resolution.Less(a.Resolution) {
				best, found = a, true
			}
		}
		return best, found
	}

	switch sub.BaseDataType {
	case domain.TickData:
		if has(domain.Ticks(1), domain.TickData) {
			return domain.SubscriptionResolutionType{Resolution: domain.Ticks(1), BaseDataType: domain.TickData}, true
		}

	case domain.QuoteData:
		if has(domain.Instant(), domain.QuoteData) {
			return domain.SubscriptionResolutionType{Resolution: domain.Instant(), BaseDataType: domain.QuoteData}, true
		}

	case domain.QuoteBarData:
		if has(domain.Instant(), domain.QuoteData) {
			return domain.SubscriptionResolutionType{Resolution: domain.Instant(), BaseDataType: domain.QuoteData}, true
		}
		if best, ok := lowestBelow(domain.QuoteBarData, sub.Resolution); ok {
			return best, true
		}

	case domain.CandleData:
		if has(domain.Ticks(1), domain.TickData) {
			return domain.SubscriptionResolutionType{Resolution: domain.Ticks(1), BaseDataType: domain.TickData}, true
		}
		if has(domain.Instant(), domain.QuoteData) {
			return domain.SubscriptionResolutionType{Resolution: domain.Instant(), BaseDataType: domain.QuoteData}, true
		}
		if best, ok := lowestBelow(domain.CandleData, sub.Resolution); ok {
			return best, true
		}
		if best, ok := lowestBelow(domain.QuoteBarData, sub.Resolution); ok {
			return best, true
		}
	}
	return domain.SubscriptionResolutionType{}, false
}

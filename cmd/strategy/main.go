// Command strategy runs one strategy runtime (spec §4.I-§4.L): it dials
// the data server over mutually-authenticated TLS, builds the per-
// strategy subscription handler, seeds a paper-trading ledger, drives a
// backtest replay or a live warmup + tick-over loop, and exposes an
// operator console over the same Runtime the engine feeds.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/codec"
	"github.com/fundforge/fundforge/internal/config"
	"github.com/fundforge/fundforge/internal/consolidate"
	"github.com/fundforge/fundforge/internal/domain"
	"github.com/fundforge/fundforge/internal/engine"
	ffxlog "github.com/fundforge/fundforge/internal/ffx/log"
	"github.com/fundforge/fundforge/internal/ledger"
	"github.com/fundforge/fundforge/internal/repl"
	"github.com/fundforge/fundforge/internal/rpc"
	"github.com/fundforge/fundforge/internal/subscription"
	"github.com/fundforge/fundforge/internal/transport"
)

func main() {
	configDir := flag.String("config", ".", "directory holding strategy_settings.toml")
	pretty := flag.Bool("pretty", false, "console-format logs instead of JSON")
	noRepl := flag.Bool("no-repl", false, "run headless (skip the operator console)")
	flag.Parse()

	log := ffxlog.New(os.Stderr, "info", *pretty)

	if err := run(*configDir, *noRepl, *pretty, log); err != nil {
		log.Fatal().Err(err).Msg("strategy: fatal")
	}
}

func run(configDir string, noRepl, pretty bool, log zerolog.Logger) error {
	settings, err := config.LoadStrategySettings(filepath.Join(configDir, "strategy_settings.toml"))
	if err != nil {
		return err
	}
	log = ffxlog.New(os.Stderr, settings.LogLevel, pretty)

	tlsCfg, err := transport.ClientTLSConfig(transport.TLSConfig{
		Address:  settings.Connection.Address,
		CertPath: settings.Connection.TLSCertPath,
		KeyPath:  settings.Connection.TLSKeyPath,
		CAPath:   settings.Connection.CAPath,
	})
	if err != nil {
		return err
	}

	raw, err := tls.Dial("tcp", settings.Connection.Address, tlsCfg)
	if err != nil {
		return fmt.Errorf("strategy: dial %s: %w", settings.Connection.Address, err)
	}

	connType := codec.ConnectionType{Kind: codec.ConnDefault, Vendor: settings.Vendor}
	conn := transport.NewConn(raw, connType, log)

	mode := domain.Backtest
	if strings.EqualFold(settings.Mode, "live") {
		mode = domain.Live
	}

	rt := newRuntime(settings, mode, log)
	client := rpc.NewClient(conn, rt.onEvent, log)
	rt.client = client
	defer client.Close()

	if err := client.Register(settings.Account); err != nil {
		return fmt.Errorf("strategy: register: %w", err)
	}

	currency := domain.Currency(settings.Currency)
	if currency == "" {
		currency = "USD"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acct, err := client.PaperAccountInit(ctx, settings.Account, decimal.NewFromFloat(settings.InitialCash), currency)
	if err != nil {
		return fmt.Errorf("strategy: paper account init: %w", err)
	}
	led := domain.NewLedger(acct.Account, settings.Brokerage, currency, decimal.NewFromFloat(settings.InitialCash))
	rt.book = ledger.NewBook(led, marginFrom(settings), ffxlog.Component(log, "ledger"))

	vendorProxy := rpc.NewVendorProxy(client, settings.Vendor)
	onPrimarySet := func(primaries []domain.DataSubscription) {
		// primary-subscription-update channel of spec §4.I step 5: the
		// server learns what to stream only through the StreamSubscribe
		// acks each new primary already triggers via Handler.Subscribe,
		// so nothing further needs sending here.
	}
	pull := func(ctx context.Context, sym domain.Symbol, res domain.Resolution, bdt domain.BaseDataType, from, to time.Time) ([]domain.BaseData, error) {
		sub := domain.DataSubscription{Symbol: sym, Resolution: res, BaseDataType: bdt, MarketType: sym.MarketType}
		data, err := client.HistoricalBaseDataRange(ctx, sub, from, to)
		if err != nil {
			return nil, err
		}
		return []domain.BaseData(data), nil
	}
	sessionHours := func(sym domain.Symbol) (consolidate.TradingHours, error) {
		return client.SessionMarketHours(context.Background(), sym)
	}
	rt.handler = subscription.NewHandler(vendorProxy, mode, pull, sessionHours, onPrimarySet, time.Now, ffxlog.Component(log, "subscription"))

	driver := engine.New(rt.handler, rt.book, rpc.NewHistoricalSource(client), engine.DefaultConfig(), rt.emit, ffxlog.Component(log, "engine"))
	rt.driver = driver

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runDriver(ctx, mode, settings, driver, log)
	}()

	if mode == domain.Live {
		ticker := engine.NewLiveTicker(driver)
		rt.liveTicker = ticker
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker.Run(ctx)
		}()
	}

	if !noRepl {
		console := repl.New(rt, settings.Vendor, filepath.Join(configDir, ".strategy_history"))
		if err := console.Run(ctx); err != nil && err != context.Canceled {
			log.Warn().Err(err).Msg("repl exited")
		}
		cancel()
	} else {
		<-sig
		log.Info().Msg("shutting down")
		cancel()
	}

	wg.Wait()
	return nil
}

// runDriver drives a backtest replay over [BacktestStart, BacktestEnd) or
// a live warmup handing off into the live tick-over loop already started
// by run, per spec §4.L.
func runDriver(ctx context.Context, mode domain.Mode, settings config.StrategySettings, driver *engine.Driver, log zerolog.Logger) {
	if mode == domain.Backtest {
		start, end, err := parseBacktestWindow(settings)
		if err != nil {
			log.Error().Err(err).Msg("strategy: bad backtest window")
			return
		}
		if err := driver.RunBacktest(ctx, start, end); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("strategy: backtest replay failed")
		}
		return
	}
	if err := driver.RunWarmup(ctx, time.Now()); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("strategy: live warmup failed")
	}
}

func parseBacktestWindow(settings config.StrategySettings) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", settings.BacktestStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("strategy: bad backtest_start %q: %w", settings.BacktestStart, err)
	}
	end, err := time.Parse("2006-01-02", settings.BacktestEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("strategy: bad backtest_end %q: %w", settings.BacktestEnd, err)
	}
	return start.UTC(), end.UTC(), nil
}

// marginFrom returns a flat margin schedule of 100 per contract; settings
// is not consulted. IntradayMarginRequired/
// OvernightMarginRequired are the RPCs a production margin.Provider
// would call instead (spec §4.J).
func marginFrom(settings config.StrategySettings) ledger.MarginProvider {
	return ledger.FlatMargin{PerContract: decimal.NewFromInt(100)}
}

// runtime implements repl.Runtime and is the strategy-side glue the
// engine drives: it holds the subscription handler, the paper ledger,
// the RPC client and a last-trade-price cache market orders fill
// against (spec §4.K — paper-trade fills have no matching engine of
// their own, so a market order fills at the last price this runtime has
// seen for the symbol).
type runtime struct {
	client     *rpc.Client
	handler    *subscription.Handler
	book       *ledger.Book
	driver     *engine.Driver
	liveTicker *engine.LiveTicker
	settings   config.StrategySettings
	mode       domain.Mode
	log        zerolog.Logger

	mu         sync.Mutex
	lastPrice  map[string]decimal.Decimal
	symbolInfo map[string]domain.SymbolInfo
}

func newRuntime(settings config.StrategySettings, mode domain.Mode, log zerolog.Logger) *runtime {
	return &runtime{
		settings:   settings,
		mode:       mode,
		log:        ffxlog.Component(log, "runtime"),
		lastPrice:  make(map[string]decimal.Decimal),
		symbolInfo: make(map[string]domain.SymbolInfo),
	}
}

// onEvent is the rpc.Client's EventHandler: every server-pushed stream
// event (spec §4.J) with no callback id lands here.
func (r *runtime) onEvent(resp codec.DataServerResponse) {
	switch {
	case resp.SubscribeAck != nil:
		if !resp.SubscribeAck.Success {
			r.log.Warn().Str("sub", resp.SubscribeAck.Sub.String()).Str("reason", resp.SubscribeAck.Reason).Msg("subscribe rejected")
		}
	case resp.UnsubscribeAck != nil:
		// no action needed; Handler.Unsubscribe already updated local state.
	case resp.DataUpdates != nil:
		for _, data := range resp.DataUpdates {
			r.recordPrice(data)
			if r.liveTicker != nil {
				r.liveTicker.Feed(data)
			}
		}
	case resp.OrderUpdate != nil:
		r.log.Info().Str("order", resp.OrderUpdate.String()).Msg("order update")
	}
}

// emit is the engine.Driver's EmitFunc: it receives combined TimeSlices,
// warmup-complete markers and bracket-triggered position closes.
func (r *runtime) emit(ev engine.StrategyEvent) {
	switch ev.Kind {
	case engine.EventTimeSlice:
		for _, data := range ev.TimeSlice {
			r.recordPrice(data)
		}
	case engine.EventWarmUpComplete:
		r.log.Info().Time("at", ev.Time).Msg("warmup complete, switching to live tick-over")
	case engine.EventPositionClosed:
		if ev.Closed != nil {
			r.log.Info().Str("symbol", ev.Closed.Position.Symbol.String()).Str("booked", ev.Closed.Booked.String()).Str("reason", ev.Closed.Reason.String()).Msg("position closed by bracket")
		}
	}
}

func (r *runtime) recordPrice(data domain.BaseData) {
	price, ok := referencePrice(data)
	if !ok {
		return
	}
	r.mu.Lock()
	r.lastPrice[data.GetSymbol().Key()] = price
	r.mu.Unlock()
}

// referencePrice extracts the price a paper-trade market order or a
// ledger price-tick update should use from one BaseData item: last trade
// for ticks, close for candles, and the bid/ask midpoint for quotes and
// quote bars.
func referencePrice(data domain.BaseData) (decimal.Decimal, bool) {
	switch d := data.(type) {
	case *domain.Tick:
		return d.Price, true
	case *domain.Candle:
		return d.Close, true
	case *domain.QuoteBar:
		if d.BidClose.IsZero() || d.AskClose.IsZero() {
			return decimal.Zero, false
		}
		return d.BidClose.Add(d.AskClose).Div(decimal.NewFromInt(2)), true
	case *domain.Quote:
		if d.Bid.IsZero() || d.Ask.IsZero() {
			return decimal.Zero, false
		}
		return d.Bid.Add(d.Ask).Div(decimal.NewFromInt(2)), true
	default:
		return decimal.Zero, false
	}
}

// Subscribe implements repl.Runtime.
func (r *runtime) Subscribe(ctx context.Context, sub domain.DataSubscription) error {
	return r.handler.Subscribe(ctx, sub)
}

// Unsubscribe implements repl.Runtime.
func (r *runtime) Unsubscribe(sub domain.DataSubscription) {
	r.handler.Unsubscribe(sub)
}

// Ledger implements repl.Runtime.
func (r *runtime) Ledger() domain.Ledger {
	return r.book.Ledger()
}

// PlaceOrder implements repl.Runtime: it fills the order against the
// local paper ledger using the last known price for the symbol (or the
// request's LimitPrice, if given), and also forwards the request to the
// data server for audit logging and, in live mode, real order routing.
func (r *runtime) PlaceOrder(req domain.OrderRequest) error {
	if err := r.client.OrderRequest(req); err != nil {
		r.log.Warn().Err(err).Msg("order request not delivered to server")
	}
	if r.mode == domain.Live {
		return nil // live fills arrive as OrderUpdate events, not synchronously here
	}

	price := req.LimitPrice
	if price.IsZero() {
		r.mu.Lock()
		price = r.lastPrice[req.Symbol.Key()]
		r.mu.Unlock()
	}
	if price.IsZero() {
		return fmt.Errorf("strategy: no known price for %s, cannot paper-fill", req.Symbol)
	}

	info, err := r.symbolInfoFor(req.Symbol)
	if err != nil {
		return err
	}

	_, _, err = r.book.Fill(info, req.Quantity, price, time.Now(), req.Brackets)
	return err
}

func (r *runtime) symbolInfoFor(sym domain.Symbol) (domain.SymbolInfo, error) {
	r.mu.Lock()
	if info, ok := r.symbolInfo[sym.Key()]; ok {
		r.mu.Unlock()
		return info, nil
	}
	r.mu.Unlock()

	info, err := r.client.SymbolInfo(context.Background(), sym)
	if err != nil {
		return domain.SymbolInfo{}, err
	}
	r.mu.Lock()
	r.symbolInfo[sym.Key()] = info
	r.mu.Unlock()
	return info, nil
}

var _ repl.Runtime = (*runtime)(nil)

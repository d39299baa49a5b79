// Package repl implements the strategy-runtime operator console: a
// readline-driven command loop over subscribe/unsubscribe, position and
// ledger inspection, and manual order entry.
//
// Adapted from the teacher's fixclient/repl.go — same readline
// completer-tree and switch-on-first-word command loop — retargeted from
// FIX market-data/order commands onto the subscription handler and
// paper ledger this repository builds instead.
package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

// Runtime is the strategy-side surface the console drives. cmd/strategy
// wires the concrete subscription.Handler/ledger.Book/rpc.Client behind
// it.
type Runtime interface {
	Subscribe(ctx context.Context, sub domain.DataSubscription) error
	Unsubscribe(sub domain.DataSubscription)
	Ledger() domain.Ledger
	PlaceOrder(req domain.OrderRequest) error
}

// REPL is one operator console bound to a Runtime and a default vendor
// (symbols typed at the prompt are assumed to belong to it).
type REPL struct {
	rt      Runtime
	vendor  string
	prompt  string
	history string
}

// New builds a console. vendor names the default vendor new Symbols are
// stamped with; history is the readline history file path.
func New(rt Runtime, vendor, historyFile string) *REPL {
	if historyFile == "" {
		historyFile = "/tmp/fundforge_history"
	}
	return &REPL{rt: rt, vendor: vendor, prompt: "fundforge> ", history: historyFile}
}

// Run drives the command loop until the operator types exit, an EOF
// arrives, or ctx is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter(
		readline.PcItem("subscribe"),
		readline.PcItem("unsubscribe"),
		readline.PcItem("positions"),
		readline.PcItem("ledger"),
		readline.PcItem("buy"),
		readline.PcItem("sell"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.prompt,
		HistoryFile:     r.history,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("repl: create readline: %w", err)
	}
	defer rl.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := rl.Readline()
		if err != nil {
			return nil
		}

		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "subscribe":
			r.handleSubscribe(ctx, parts)
		case "unsubscribe":
			r.handleUnsubscribe(parts)
		case "positions":
			r.handlePositions()
		case "ledger":
			r.handleLedger()
		case "buy":
			r.handleOrder(parts, false)
		case "sell":
			r.handleOrder(parts, true)
		case "help":
			r.displayHelp()
		case "exit":
			return nil
		default:
			fmt.Println("Unknown command. Type 'help' for available commands.")
		}
	}
}

func (r *REPL) displayHelp() {
	fmt.Print(`Commands:
  subscribe <symbol> <market> <resolution> <datatype>
      market:     forex | cfd | crypto | futures:<exchange>
      resolution: instant | ticks:<n> | <n>s | <n>m | <n>h | <n>d
      datatype:   ticks | quotes | candles | quotebars | fundamentals
      Example: subscribe EUR-USD forex 1m candles

  unsubscribe <symbol> <market> <resolution> <datatype>
      Same arguments as subscribe.

  positions
      List open positions across the ledger.

  ledger
      Show cash value/available/used and total pnl.

  buy <symbol> <qty> [price]
  sell <symbol> <qty> [price]
      Submit a market order (omit price) or limit order.

  help
  exit
`)
}

func (r *REPL) handleSubscribe(ctx context.Context, parts []string) {
	sub, err := r.parseSubscription(parts)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if err := r.rt.Subscribe(ctx, sub); err != nil {
		fmt.Println("Subscribe failed:", err)
		return
	}
	fmt.Println("Subscribed:", sub)
}

func (r *REPL) handleUnsubscribe(parts []string) {
	sub, err := r.parseSubscription(parts)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	r.rt.Unsubscribe(sub)
	fmt.Println("Unsubscribed:", sub)
}

func (r *REPL) parseSubscription(parts []string) (domain.DataSubscription, error) {
	if len(parts) < 5 {
		return domain.DataSubscription{}, fmt.Errorf("usage: %s <symbol> <market> <resolution> <datatype>", parts[0])
	}
	market, err := parseMarket(parts[2])
	if err != nil {
		return domain.DataSubscription{}, err
	}
	res, err := parseResolution(parts[3])
	if err != nil {
		return domain.DataSubscription{}, err
	}
	dt, err := parseBaseDataType(parts[4])
	if err != nil {
		return domain.DataSubscription{}, err
	}
	sym := domain.Symbol{Name: strings.ToUpper(parts[1]), MarketType: market, Vendor: r.vendor}
	return domain.DataSubscription{Symbol: sym, Resolution: res, BaseDataType: dt, MarketType: market}, nil
}

func (r *REPL) handlePositions() {
	ledger := r.rt.Ledger()
	if len(ledger.OpenPositions) == 0 {
		fmt.Println("No open positions")
		return
	}
	for _, pos := range ledger.OpenPositions {
		fmt.Println(pos)
	}
}

func (r *REPL) handleLedger() {
	l := r.rt.Ledger()
	fmt.Printf("account=%s cash_value=%s cash_available=%s cash_used=%s open_pnl=%s booked_pnl=%s\n",
		l.Account, l.CashValue, l.CashAvailable, l.CashUsed, l.OpenPnl, l.BookedPnl)
}

func (r *REPL) handleOrder(parts []string, sell bool) {
	if len(parts) < 3 {
		fmt.Printf("Usage: %s <symbol> <qty> [price]\n", parts[0])
		return
	}
	qty, err := decimal.NewFromString(parts[2])
	if err != nil {
		fmt.Println("Error: invalid quantity:", err)
		return
	}
	if sell {
		qty = qty.Neg()
	}

	var limitPrice decimal.Decimal
	if len(parts) > 3 {
		limitPrice, err = decimal.NewFromString(parts[3])
		if err != nil {
			fmt.Println("Error: invalid price:", err)
			return
		}
	}

	req := domain.OrderRequest{
		Action:     domain.OrderCreate,
		OrderID:    fmt.Sprintf("repl_%d", time.Now().UnixNano()),
		Symbol:     domain.Symbol{Name: strings.ToUpper(parts[1]), Vendor: r.vendor},
		Quantity:   qty,
		LimitPrice: limitPrice,
	}
	if err := r.rt.PlaceOrder(req); err != nil {
		fmt.Println("Order failed:", err)
		return
	}
	fmt.Println("Order submitted:", req.OrderID)
}

func parseMarket(s string) (domain.MarketType, error) {
	if exch, ok := strings.CutPrefix(s, "futures:"); ok {
		return domain.Futures(domain.Exchange(strings.ToUpper(exch))), nil
	}
	switch strings.ToLower(s) {
	case "forex":
		return domain.Forex(), nil
	case "cfd":
		return domain.CFD(), nil
	case "crypto":
		return domain.Crypto(), nil
	default:
		return domain.MarketType{}, fmt.Errorf("unknown market %q", s)
	}
}

func parseResolution(s string) (domain.Resolution, error) {
	s = strings.ToLower(s)
	if s == "instant" {
		return domain.Instant(), nil
	}
	if n, ok := strings.CutPrefix(s, "ticks:"); ok {
		v, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return domain.Resolution{}, fmt.Errorf("invalid tick count %q: %w", n, err)
		}
		return domain.Ticks(v), nil
	}
	if len(s) < 2 {
		return domain.Resolution{}, fmt.Errorf("unrecognized resolution %q", s)
	}
	unit := s[len(s)-1]
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("invalid resolution %q: %w", s, err)
	}
	switch unit {
	case 's':
		return domain.Seconds(n), nil
	case 'm':
		return domain.Minutes(n), nil
	case 'h':
		return domain.Hours(n), nil
	case 'd':
		return domain.Days(n), nil
	default:
		return domain.Resolution{}, fmt.Errorf("unrecognized resolution unit in %q", s)
	}
}

func parseBaseDataType(s string) (domain.BaseDataType, error) {
	switch strings.ToLower(s) {
	case "ticks":
		return domain.TickData, nil
	case "quotes":
		return domain.QuoteData, nil
	case "candles":
		return domain.CandleData, nil
	case "quotebars":
		return domain.QuoteBarData, nil
	case "fundamentals":
		return domain.FundamentalData, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}

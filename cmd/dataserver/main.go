// Command dataserver runs one data-server process (spec §4, §6): it
// opens the historical archive and session audit log, wires one
// vendor.Adapter + fanout.Manager per configured integration, starts each
// vendor's backfill scheduler, and serves strategy connections over
// mutually-authenticated TLS, one listener per server_settings.toml
// connection entry.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/archive"
	"github.com/fundforge/fundforge/internal/backfill"
	"github.com/fundforge/fundforge/internal/codec"
	"github.com/fundforge/fundforge/internal/config"
	"github.com/fundforge/fundforge/internal/dataserver"
	"github.com/fundforge/fundforge/internal/domain"
	ffxlog "github.com/fundforge/fundforge/internal/ffx/log"
	"github.com/fundforge/fundforge/internal/session"
	"github.com/fundforge/fundforge/internal/transport"
	"github.com/fundforge/fundforge/internal/vendor"
	"github.com/fundforge/fundforge/internal/vendor/bitgetws"
	"github.com/fundforge/fundforge/internal/vendor/oandastream"
	"github.com/fundforge/fundforge/internal/vendor/simulated"
)

func main() {
	configDir := flag.String("config", ".", "directory holding server_settings.toml, instruments.toml, exchange_rates.toml")
	pretty := flag.Bool("pretty", false, "console-format logs instead of JSON")
	flag.Parse()

	log := ffxlog.New(os.Stderr, "info", *pretty)

	if err := run(*configDir, *pretty, log); err != nil {
		log.Fatal().Err(err).Msg("dataserver: fatal")
	}
}

func run(configDir string, pretty bool, log zerolog.Logger) error {
	settings, err := config.LoadServerSettings(filepath.Join(configDir, "server_settings.toml"))
	if err != nil {
		return err
	}
	log = ffxlog.New(os.Stderr, settings.LogLevel, pretty)

	instruments, err := config.LoadInstrumentTable(filepath.Join(configDir, "instruments.toml"))
	if err != nil {
		return err
	}
	rates, err := config.LoadExchangeRateTable(filepath.Join(configDir, "exchange_rates.toml"))
	if err != nil {
		log.Warn().Err(err).Msg("no exchange_rates.toml, static FX fallback disabled")
	}

	dataRoot := settings.DataRoot
	if dataRoot == "" {
		dataRoot = configDir
	}

	arch := archive.Open(filepath.Join(dataRoot, "archive"), log)
	defer arch.Close()

	sessions, err := session.Open(filepath.Join(dataRoot, "sessions.db"))
	if err != nil {
		return fmt.Errorf("dataserver: open session store: %w", err)
	}
	defer sessions.Close()

	srv := dataserver.NewServer(arch, instruments, rates, nil, sessions, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vendorNames := distinctVendors(settings.Connections)
	if len(vendorNames) == 0 {
		vendorNames = []string{"simulated"}
	}
	for _, name := range vendorNames {
		adapter, err := buildVendor(name, configDir, instruments, arch, srv, log)
		if err != nil {
			return fmt.Errorf("dataserver: wire vendor %s: %w", name, err)
		}
		if sched, targets, ok := buildScheduler(name, configDir, adapter, arch, log); ok {
			go sched.Run(ctx, targets)
		}
	}

	listeners, err := startListeners(ctx, settings.Connections, srv, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
	cancel()
	return nil
}

func distinctVendors(conns []config.ConnectionEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range conns {
		if c.Vendor == "" || seen[c.Vendor] {
			continue
		}
		seen[c.Vendor] = true
		out = append(out, c.Vendor)
	}
	return out
}

// buildVendor constructs one vendor's adapter + fan-out manager pair
// using the forward-reference thunk dataserver.NewFanoutManager
// documents, then registers it on srv.
func buildVendor(name, configDir string, instruments *config.InstrumentTable, arch *archive.Archive, srv *dataserver.Server, log zerolog.Logger) (vendor.Adapter, error) {
	var adapter vendor.Adapter
	mgr := dataserver.NewFanoutManager(name, func() vendor.Adapter { return adapter }, log)
	symbolMap := instruments.VendorSymbolMap(name)

	switch name {
	case "simulated":
		adapter = simulated.New(arch, symbolMap)

	case "bitgetws":
		creds, err := config.LoadVendorCredentials(filepath.Join(configDir, name+"_credentials", "credentials.toml"))
		if err != nil {
			return nil, err
		}
		adapter = bitgetws.New(bitgetws.Config{
			APIKey:     creds.APIKey,
			APISecret:  creds.APISecret,
			Passphrase: creds.Passphrase,
			WSURL:      creds.WSURL,
			RESTURL:    creds.RESTURL,
		}, symbolMap, mgr.Publish, ffxlog.Component(log, "bitgetws"))

	case "oandastream":
		creds, err := config.LoadVendorCredentials(filepath.Join(configDir, name+"_credentials", "credentials.toml"))
		if err != nil {
			return nil, err
		}
		adapter = oandastream.New(oandastream.Config{
			AccountID: creds.AccountID,
			Token:     creds.Token,
			StreamURL: creds.StreamURL,
			RESTURL:   creds.RESTURL,
		}, symbolMap, mgr.Publish, ffxlog.Component(log, "oandastream"))

	default:
		return nil, fmt.Errorf("unknown vendor %q (coinbasefix requires a FIX session and is wired separately, see DESIGN.md)", name)
	}

	srv.RegisterVendor(name, adapter, mgr)
	return adapter, nil
}

// buildScheduler loads a vendor's download_list.toml, if present, and
// returns a backfill.Scheduler ready to Run. ok is false when the vendor
// has no download list configured (e.g. simulated, which replays the
// archive rather than filling it).
func buildScheduler(name, configDir string, adapter vendor.Adapter, arch *archive.Archive, log zerolog.Logger) (*backfill.Scheduler, []backfill.Target, bool) {
	path := filepath.Join(configDir, name+"_credentials", "download_list.toml")
	list, err := config.LoadDownloadList(path)
	if err != nil {
		return nil, nil, false
	}

	targets := make([]backfill.Target, 0, len(list.Symbols))
	for _, e := range list.Symbols {
		res, err := config.ParseResolution(e.Resolution)
		if err != nil {
			log.Warn().Err(err).Str("vendor", name).Str("symbol", e.SymbolName).Msg("skipping download list entry: bad resolution")
			continue
		}
		dt, err := config.ParseBaseDataType(e.BaseDataType)
		if err != nil {
			log.Warn().Err(err).Str("vendor", name).Str("symbol", e.SymbolName).Msg("skipping download list entry: bad data type")
			continue
		}
		start, err := time.Parse("2006-01-02", e.StartDate)
		if err != nil {
			log.Warn().Err(err).Str("vendor", name).Str("symbol", e.SymbolName).Msg("skipping download list entry: bad start date")
			continue
		}
		targets = append(targets, backfill.Target{
			Symbol:     symbolFor(adapter, e.SymbolName),
			DataType:   dt,
			Resolution: res,
			StartDate:  start,
		})
	}
	sched := backfill.New(adapter, arch, backfill.DefaultConfig(), ffxlog.Component(log, "backfill-"+name))
	return sched, targets, true
}

func symbolFor(adapter vendor.Adapter, name string) (sym domain.Symbol) {
	// Resolved against every market the adapter declares, first match
	// wins; download_list.toml names a symbol once per vendor, not once
	// per market.
	markets, err := adapter.Markets()
	if err != nil {
		return sym
	}
	for _, m := range markets {
		syms, err := adapter.Symbols(m)
		if err != nil {
			continue
		}
		for _, s := range syms {
			if s.Name == name {
				return s
			}
		}
	}
	return sym
}

func startListeners(ctx context.Context, conns []config.ConnectionEntry, srv *dataserver.Server, log zerolog.Logger) ([]net.Listener, error) {
	var listeners []net.Listener
	for _, c := range conns {
		kind, err := parseConnectionKind(c.Kind)
		if err != nil {
			return listeners, err
		}
		tlsCfg, err := transport.ServerTLSConfig(transport.TLSConfig{
			Address:  c.Address,
			CertPath: c.TLSCertPath,
			KeyPath:  c.TLSKeyPath,
			CAPath:   c.CAPath,
		})
		if err != nil {
			return listeners, err
		}

		ln, err := tls.Listen("tcp", c.Address, tlsCfg)
		if err != nil {
			return listeners, fmt.Errorf("dataserver: listen %s: %w", c.Address, err)
		}
		listeners = append(listeners, ln)

		connType := codec.ConnectionType{Kind: kind, Vendor: c.Vendor}
		go acceptLoop(ctx, ln, connType, srv, log)
		log.Info().Str("address", c.Address).Str("kind", c.Kind).Str("vendor", c.Vendor).Msg("listening")
	}
	return listeners, nil
}

func acceptLoop(ctx context.Context, ln net.Listener, connType codec.ConnectionType, srv *dataserver.Server, log zerolog.Logger) {
	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Warn().Err(err).Msg("accept failed")
				return
			}
		}
		conn := transport.NewConn(raw, connType, log)
		go srv.HandleConn(ctx, connType, conn, raw.RemoteAddr().String())
	}
}

func parseConnectionKind(s string) (codec.ConnectionKind, error) {
	switch s {
	case "default":
		return codec.ConnDefault, nil
	case "strategy_registry":
		return codec.ConnStrategyRegistry, nil
	case "vendor":
		return codec.ConnVendor, nil
	case "broker":
		return codec.ConnBroker, nil
	default:
		return 0, fmt.Errorf("dataserver: unknown connection kind %q", s)
	}
}

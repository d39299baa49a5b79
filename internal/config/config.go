// Package config loads server_settings.toml and the per-vendor
// download_list.toml files (spec §6), using github.com/BurntSushi/toml
// the way the rest of the retrieval pack configures its services.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

// ConnectionEntry is one row of server_settings.toml: the address and TLS
// material for a given ConnectionType. Kind is one of "default",
// "strategy_registry", "vendor", "broker"; Vendor names the counterparty
// when Kind is "vendor" or "broker".
type ConnectionEntry struct {
	Kind        string `toml:"kind"`
	Vendor      string `toml:"vendor"`
	Address     string `toml:"address"`
	TLSCertPath string `toml:"tls_cert_path"`
	TLSKeyPath  string `toml:"tls_key_path"`
	CAPath      string `toml:"ca_path"`
}

// ServerSettings is the parsed form of server_settings.toml.
type ServerSettings struct {
	Connections []ConnectionEntry `toml:"connections"`
	DataRoot    string            `toml:"data_root"`
	LogLevel    string            `toml:"log_level"`
}

// LoadServerSettings parses server_settings.toml at path.
func LoadServerSettings(path string) (ServerSettings, error) {
	var s ServerSettings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return ServerSettings{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return s, nil
}

// DownloadEntry is one [[symbols]] row of a vendor's download_list.toml.
type DownloadEntry struct {
	SymbolName   string `toml:"symbol_name"`
	BaseDataType string `toml:"base_data_type"`
	Resolution   string `toml:"resolution"`
	StartDate    string `toml:"start_date"` // RFC-3339 date, parsed by cmd/dataserver when it builds backfill targets
}

// DownloadList is the parsed form of a {vendor}_credentials/download_list.toml.
type DownloadList struct {
	Symbols []DownloadEntry `toml:"symbols"`
}

// LoadDownloadList parses a vendor's download_list.toml at path.
func LoadDownloadList(path string) (DownloadList, error) {
	var d DownloadList
	if _, err := toml.DecodeFile(path, &d); err != nil {
		return DownloadList{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return d, nil
}

// ExchangeRateEntry is one static FX rate used as a backtest fallback when
// no vendor ExchangeRate lookup is available (Open Question, spec.md §9).
type ExchangeRateEntry struct {
	From string  `toml:"from"`
	To   string  `toml:"to"`
	Rate float64 `toml:"rate"`
}

// ExchangeRateTable is the parsed form of a static exchange_rates.toml
// fallback table.
type ExchangeRateTable struct {
	Rates []ExchangeRateEntry `toml:"rates"`
}

// LoadExchangeRateTable parses a static fallback FX table at path.
func LoadExchangeRateTable(path string) (ExchangeRateTable, error) {
	var t ExchangeRateTable
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return ExchangeRateTable{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return t, nil
}

// StrategySettings is the parsed form of strategy_settings.toml: the TLS
// connection material for the one data-server connection a strategy
// runtime dials, plus the paper-trading account it seeds on startup.
type StrategySettings struct {
	Connection      ConnectionEntry `toml:"connection"`
	Account         string          `toml:"account"`
	Brokerage       string          `toml:"brokerage"`
	Currency        string          `toml:"currency"`
	InitialCash     float64         `toml:"initial_cash"`
	Vendor          string          `toml:"vendor"`
	Mode            string          `toml:"mode"` // "backtest" or "live"
	BacktestStart   string          `toml:"backtest_start"`
	BacktestEnd     string          `toml:"backtest_end"`
	LogLevel        string          `toml:"log_level"`
}

// LoadStrategySettings parses strategy_settings.toml at path.
func LoadStrategySettings(path string) (StrategySettings, error) {
	var s StrategySettings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return StrategySettings{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return s, nil
}

// VendorCredentials is the parsed form of a vendor's credentials.toml
// (spec §6 "{vendor}_credentials/"): the union of every field one of
// bitgetws/oandastream/coinbasefix's Config types needs, so cmd/dataserver
// loads one file shape regardless of which vendor it's wiring.
type VendorCredentials struct {
	APIKey       string `toml:"api_key"`
	APISecret    string `toml:"api_secret"`
	Passphrase   string `toml:"passphrase"`
	AccountID    string `toml:"account_id"`
	Token        string `toml:"token"`
	WSURL        string `toml:"ws_url"`
	RESTURL      string `toml:"rest_url"`
	StreamURL    string `toml:"stream_url"`
	SenderCompID string `toml:"sender_comp_id"`
	TargetCompID string `toml:"target_comp_id"`
	PortfolioID  string `toml:"portfolio_id"`
	FIXSettingsPath string `toml:"fix_settings_path"`
}

// LoadVendorCredentials parses a vendor's credentials.toml at path.
func LoadVendorCredentials(path string) (VendorCredentials, error) {
	var c VendorCredentials
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return VendorCredentials{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return c, nil
}

// Rate looks up the static from->to rate, trying the inverse pair if the
// direct one isn't configured. Satisfies internal/ledger.RateProvider so
// a config-loaded table can back commission currency conversion without
// this package importing internal/ledger.
func (t ExchangeRateTable) Rate(from, to domain.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	for _, r := range t.Rates {
		if domain.Currency(r.From) == from && domain.Currency(r.To) == to {
			return decimal.NewFromFloat(r.Rate), nil
		}
	}
	for _, r := range t.Rates {
		if domain.Currency(r.From) == to && domain.Currency(r.To) == from && r.Rate != 0 {
			return decimal.NewFromInt(1).Div(decimal.NewFromFloat(r.Rate)), nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("config: no exchange rate for %s/%s", from, to)
}

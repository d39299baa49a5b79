package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadServerSettings(t *testing.T) {
	path := writeTemp(t, "server_settings.toml", `
data_root = "/var/lib/fundforge"
log_level = "debug"

[[connections]]
kind = "default"
address = "0.0.0.0:9443"
tls_cert_path = "certs/server.pem"
tls_key_path = "certs/server.key"
ca_path = "certs/ca.pem"

[[connections]]
kind = "vendor"
vendor = "oanda"
address = "0.0.0.0:9444"
tls_cert_path = "certs/oanda.pem"
tls_key_path = "certs/oanda.key"
ca_path = "certs/ca.pem"
`)

	got, err := LoadServerSettings(path)
	if err != nil {
		t.Fatalf("LoadServerSettings: %v", err)
	}
	if got.DataRoot != "/var/lib/fundforge" {
		t.Errorf("DataRoot = %q", got.DataRoot)
	}
	if len(got.Connections) != 2 {
		t.Fatalf("got %d connections, want 2", len(got.Connections))
	}
	if got.Connections[1].Vendor != "oanda" {
		t.Errorf("Connections[1].Vendor = %q, want oanda", got.Connections[1].Vendor)
	}
}

func TestLoadStrategySettings(t *testing.T) {
	path := writeTemp(t, "strategy_settings.toml", `
account = "acct-1"
brokerage = "oanda"
currency = "USD"
initial_cash = 100000.0
vendor = "oanda"
mode = "backtest"
backtest_start = "2024-01-01"
backtest_end = "2024-02-01"
log_level = "info"

[connection]
kind = "default"
address = "127.0.0.1:9443"
tls_cert_path = "certs/strategy.pem"
tls_key_path = "certs/strategy.key"
ca_path = "certs/ca.pem"
`)

	got, err := LoadStrategySettings(path)
	if err != nil {
		t.Fatalf("LoadStrategySettings: %v", err)
	}
	if got.Account != "acct-1" {
		t.Errorf("Account = %q", got.Account)
	}
	if got.InitialCash != 100000.0 {
		t.Errorf("InitialCash = %v", got.InitialCash)
	}
	if got.Connection.Address != "127.0.0.1:9443" {
		t.Errorf("Connection.Address = %q", got.Connection.Address)
	}
}

func TestLoadDownloadList(t *testing.T) {
	path := writeTemp(t, "download_list.toml", `
[[symbols]]
symbol_name = "EUR-USD"
base_data_type = "Quotes"
resolution = "Instant"
start_date = "2020-01-01"

[[symbols]]
symbol_name = "GBP-USD"
base_data_type = "Candles"
resolution = "Minutes(1)"
start_date = "2021-06-01"
`)

	got, err := LoadDownloadList(path)
	if err != nil {
		t.Fatalf("LoadDownloadList: %v", err)
	}
	if len(got.Symbols) != 2 {
		t.Fatalf("got %d symbols, want 2", len(got.Symbols))
	}
	if got.Symbols[0].SymbolName != "EUR-USD" {
		t.Errorf("Symbols[0].SymbolName = %q", got.Symbols[0].SymbolName)
	}
}

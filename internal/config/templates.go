package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Daily Equity Trader Configuration

[trading]
# Trading mode: only "paper" is supported
mode = "paper"
# Skip the decision and execution steps entirely
kill_switch = false
# Strategy profile passed to the decision engine
strategy_profile = "trend_pullback"
# Starting cash for "trader init"
initial_cash = 10000.0

[pricing]
# Adverse price move applied to every fill, in basis points
slippage_bps = 10
# Stamp duty on domestic equity purchases, in basis points
stamp_duty_bps = 50
# Days before sell proceeds become spendable cash
settlement_days = 1

[pricing.fee_model]
# "per_trade" charges value GBP per order, "bps" charges value bps of notional
type = "per_trade"
value = 0.0

[indicators]
# Minimum bars of history before a ticker gets a snapshot
min_rows = 20
# Concurrent snapshot workers
workers = 4

[paths]
# Relative paths are resolved against this directory
data_dir = "data"
output_dir = "output"
universe = "universe.csv"
holidays = "holidays.yaml"
ledger = "positions.json"
bars_dir = "data/bars"
database = "trader.db"
trade_log = "logs/trade_log.json"

[ledger]
# Ledger persistence: "json" or "sqlite"
backend = "json"

[decision]
# Decision engine: "file" reads an inbox directory, "llm" calls a chat model
engine = "file"
inbox_dir = "inbox"
model = "gpt-4o-mini"
max_tokens = 8000
system_prompt = "system_prompt.txt"

[logging]
# Log level: debug, info, warn, error
level = "info"
console = true
file = true
file_path = "logs/trader.log"

[notifications]
# Enable notifications
enabled = false
# Notification level: all, trades_only, errors_only
level = "all"

[notifications.webhook]
enabled = false
url = ""
`

const credentialsTemplate = `# Daily Equity Trader Credentials
# Keep this file private. OPENAI_API_KEY overrides the value below.

[openai]
api_key = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}

// ConfigPath returns the path of config.toml inside configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Package cli provides the command-line interface for the trading application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"daily-equity-trader/internal/config"
	"daily-equity-trader/internal/logging"
	"daily-equity-trader/internal/security"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2025-06-02"
)

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// once flags are parsed, so --config takes effect for every subcommand.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Daily Equity Trader - end-of-day UK paper trading",
		Long: `Daily Equity Trader runs one paper-trading cycle per London trading day.

It builds an indicator snapshot for the universe, rolls the ledger forward,
asks the decision engine for orders and fills them at the close with
slippage, fees and stamp duty.

Use 'trader init' to create a ledger and 'trader run' after the close.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Logger = logging.NewLoggerWithConfig(cfg.Logging)

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/daily-equity-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addPaperCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addJournalCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Daily Equity Trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Dir})
			}
			output.Println(app.Config.Dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			// Load already validated; re-run for an explicit answer.
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Trading Configuration")
	output.Printf("  Mode:             %s\n", cfg.Trading.Mode)
	output.Printf("  Kill Switch:      %v\n", cfg.Trading.KillSwitch)
	output.Printf("  Strategy Profile: %s\n", cfg.Trading.StrategyProfile)
	output.Println()

	output.Bold("Pricing")
	output.Printf("  Slippage:         %.1f bps\n", cfg.Pricing.SlippageBps)
	output.Printf("  Stamp Duty:       %.1f bps\n", cfg.Pricing.StampDutyBps)
	output.Printf("  Fee Model:        %s %.2f\n", cfg.Pricing.FeeModel.Type, cfg.Pricing.FeeModel.Value)
	output.Printf("  Settlement:       T+%d\n", cfg.Pricing.SettlementDays)
	output.Println()

	output.Bold("Indicators")
	output.Printf("  Min Rows:         %d\n", cfg.Indicators.MinRows)
	output.Printf("  Workers:          %d\n", cfg.Indicators.Workers)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Ledger Backend:   %s\n", cfg.Ledger.Backend)
	output.Printf("  Ledger File:      %s\n", cfg.Paths.Ledger)
	output.Printf("  Database:         %s\n", cfg.Paths.Database)
	output.Printf("  Universe:         %s\n", cfg.Paths.Universe)
	output.Printf("  Bars:             %s\n", cfg.Paths.BarsDir)
	output.Printf("  Outputs:          %s\n", cfg.Paths.OutputDir)
	output.Println()

	output.Bold("Decision Engine")
	output.Printf("  Engine:           %s\n", cfg.Decision.Engine)
	switch cfg.Decision.Engine {
	case config.EngineLLM:
		output.Printf("  Model:            %s\n", cfg.Decision.Model)
		output.Printf("  API Key:          %s\n", maskSecret(cfg.Credentials.OpenAI.APIKey))
	default:
		output.Printf("  Inbox:            %s\n", cfg.Decision.InboxDir)
	}
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:            %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:          %v\n", cfg.Notifications.Webhook.Enabled)

	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	return security.MaskCredential(s)
}

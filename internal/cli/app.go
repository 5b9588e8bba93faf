package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"daily-equity-trader/internal/analysis/indicators"
	"daily-equity-trader/internal/calendar"
	"daily-equity-trader/internal/config"
	"daily-equity-trader/internal/decision"
	"daily-equity-trader/internal/marketdata"
	"daily-equity-trader/internal/models"
	"daily-equity-trader/internal/notify"
	"daily-equity-trader/internal/resilience"
	"daily-equity-trader/internal/store"
	"daily-equity-trader/internal/trading"
	"daily-equity-trader/pkg/utils"
)

// App holds the application dependencies. Resources are opened on first use
// and released by Close.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	db *store.SQLiteStore
}

// Close releases the database handle.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// DB opens the SQLite journal and bar cache.
func (a *App) DB() (*store.SQLiteStore, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := store.NewSQLiteStore(a.Config.Paths.Database)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", a.Config.Paths.Database).Msg("SQLite store initialized")
	a.db = db
	return db, nil
}

// Ledgers returns the configured ledger store.
func (a *App) Ledgers() (store.LedgerStore, error) {
	var db *store.SQLiteStore
	if a.Config.Ledger.Backend == config.BackendSQLite {
		var err error
		if db, err = a.DB(); err != nil {
			return nil, err
		}
	}
	return store.NewLedgerStore(a.Config.Ledger.Backend, a.Config.Paths.Ledger, db)
}

// Calendar loads the holiday file, falling back to the bundled list.
func (a *App) Calendar() (*calendar.Calendar, error) {
	src, err := calendar.LoadHolidayFile(a.Config.Paths.Holidays)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading holidays: %w", err)
		}
		a.Logger.Warn().Str("path", a.Config.Paths.Holidays).Msg("Holiday file missing, using bundled list")
		if src, err = calendar.ParseHolidays([]byte(calendar.DefaultHolidaysYAML)); err != nil {
			return nil, err
		}
	}
	return calendar.New(src), nil
}

// Universe loads the active tickers.
func (a *App) Universe() ([]models.TickerMeta, error) {
	return marketdata.LoadUniverse(a.Config.Paths.Universe)
}

// Bars reads the bars directory through the SQLite cache. Without a database
// the files are read directly.
func (a *App) Bars() indicators.BarSource {
	files := marketdata.NewCSVProvider(a.Config.Paths.BarsDir)
	db, err := a.DB()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Bar cache unavailable, reading files directly")
		return files
	}
	return marketdata.NewCachedProvider(files, db, utils.DefaultRetryConfig(), a.Logger).
		WithBreaker(resilience.NewBreaker("bars", resilience.DefaultBreakerConfig()))
}

// Decider builds the configured decision engine.
func (a *App) Decider() (decision.Engine, error) {
	cfg := a.Config.Decision
	switch cfg.Engine {
	case config.EngineLLM:
		if a.Config.Credentials.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("decision engine %q needs an OpenAI API key (credentials.toml or OPENAI_API_KEY)", cfg.Engine)
		}
		prompt, err := decision.LoadSystemPrompt(cfg.SystemPrompt)
		if err != nil {
			return nil, fmt.Errorf("loading system prompt: %w", err)
		}
		client := decision.NewOpenAIClient(a.Config.Credentials.OpenAI.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens, a.Logger)
		a.Logger.Debug().Str("model", cfg.Model).Msg("OpenAI decision engine initialized")
		return decision.NewLLMEngine(client, prompt, a.Config.Paths.OutputDir, a.Logger), nil
	default:
		return decision.NewFileEngine(cfg.InboxDir, a.Logger), nil
	}
}

// Notifier returns the configured channels plus the log channel.
func (a *App) Notifier() notify.Notifier {
	n := notify.NewMultiNotifier(a.Config.Notifications)
	n.AddChannel(notify.NewLogNotifier(a.Logger))
	return n
}

// Cycle wires a trading cycle from configuration.
func (a *App) Cycle() (*trading.Cycle, error) {
	cal, err := a.Calendar()
	if err != nil {
		return nil, err
	}
	universe, err := a.Universe()
	if err != nil {
		return nil, err
	}
	ledgers, err := a.Ledgers()
	if err != nil {
		return nil, err
	}
	decider, err := a.Decider()
	if err != nil {
		return nil, err
	}

	deps := trading.CycleDeps{
		Config:   a.Config,
		Calendar: cal,
		Universe: universe,
		Bars:     a.Bars(),
		Ledgers:  ledgers,
		Decider:  decider,
		Notifier: a.Notifier(),
		Logger:   a.Logger,
	}
	if db, err := a.DB(); err == nil {
		deps.Journal = db
	}
	return trading.NewCycle(deps)
}

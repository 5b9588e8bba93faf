// Package notify provides notification functionality for the trading application.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"daily-equity-trader/internal/config"
	"daily-equity-trader/internal/models"
	"daily-equity-trader/internal/security"
	"daily-equity-trader/pkg/utils"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendCycle(ctx context.Context, summary *CycleSummary) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTrade   NotificationType = "trade"
	NotificationError   NotificationType = "error"
	NotificationSummary NotificationType = "summary"
	NotificationInfo    NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// CycleSummary describes one finished cycle.
type CycleSummary struct {
	RunID      string
	Date       models.Date
	Status     models.RunStatus
	Reason     string
	DryRun     bool
	Fills      []models.Fill
	Rejections []models.Rejection
	Cash       decimal.Decimal
	Unsettled  decimal.Decimal
	Equity     decimal.Decimal
	Peak       decimal.Decimal
	Drawdown   decimal.Decimal
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a new MultiNotifier with the given configuration.
// With notifications disabled it has no channels and every send is a no-op.
func NewMultiNotifier(cfg config.NotificationConfig) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		level:    NotificationLevel(cfg.Level),
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	if cfg.Enabled && cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// shouldSend checks if a notification should be sent based on the level filter.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return notifType == NotificationTrade
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendCycle sends the cycle summary. Cycles with fills are trade
// notifications; the rest are summaries.
func (mn *MultiNotifier) SendCycle(ctx context.Context, s *CycleSummary) error {
	notifType := NotificationSummary
	if len(s.Fills) > 0 {
		notifType = NotificationTrade
	}

	title := fmt.Sprintf("Cycle %s: %s", s.Date, s.Status)
	if s.DryRun {
		title += " (dry run)"
	}

	var sb strings.Builder
	if s.Reason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", s.Reason))
	}
	for _, f := range s.Fills {
		sb.WriteString(fmt.Sprintf("%s %s %s @ %s (cash %s)\n",
			f.Side, utils.FormatQuantity(f.Quantity), f.Ticker,
			utils.FormatGBP(f.FillPrice), utils.FormatPnL(f.CashImpact)))
	}
	for _, r := range s.Rejections {
		sb.WriteString(fmt.Sprintf("Skipped %s %s: %s\n", r.Order.Side, r.Order.Ticker, r.Reason))
	}
	sb.WriteString(fmt.Sprintf("Cash: %s | Unsettled: %s\n", utils.FormatGBP(s.Cash), utils.FormatGBP(s.Unsettled)))
	sb.WriteString(fmt.Sprintf("Equity: %s | Peak: %s | Drawdown: %s",
		utils.FormatGBP(s.Equity), utils.FormatGBP(s.Peak), utils.FormatRatio(s.Drawdown)))

	return mn.Send(ctx, Notification{
		Type:    notifType,
		Title:   title,
		Message: sb.String(),
		Data: map[string]interface{}{
			"run_id":     s.RunID,
			"date":       s.Date.String(),
			"status":     s.Status,
			"fills":      len(s.Fills),
			"rejections": len(s.Rejections),
			"equity_gbp": s.Equity.String(),
			"drawdown":   s.Drawdown.String(),
			"dry_run":    s.DryRun,
		},
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	errText := security.MaskSensitive(err.Error())
	message := fmt.Sprintf("Context: %s\nError: %s\nTime: %s",
		errContext, errText, time.Now().Format("15:04:05"))

	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Cycle error",
		Message: message,
		Data: map[string]interface{}{
			"context": errContext,
			"error":   errText,
		},
	})
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send sends a notification via webhook.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "DailyEquityTrader/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a channel that logs every notification.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) Name() string    { return "log" }
func (l *LogNotifier) IsEnabled() bool { return true }

func (l *LogNotifier) Send(ctx context.Context, n Notification) error {
	event := l.logger.Info()
	if n.Type == NotificationError {
		event = l.logger.Error()
	}
	event.Str("type", string(n.Type)).Str("title", n.Title).Msg(n.Message)
	return nil
}

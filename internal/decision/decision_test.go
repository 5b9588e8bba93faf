package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-equity-trader/internal/analysis/indicators"
	"daily-equity-trader/internal/calendar"
	apperrors "daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func buy(ticker, qty string) models.Order {
	return models.Order{Ticker: ticker, Side: models.OrderSideBuy, Quantity: d(qty)}
}

var asOf = models.MustParseDate("2025-06-02")

const sampleResponse = "Here is today's output.\n\n" +
	"=== run_status.json ===\n```json\n{\"status\": \"ok\", \"reason\": \"Pullback entries\"}\n```\n\n" +
	"=== trade_plan.json ===\n{\"decisions\": [" +
	"{\"ticker\": \"VOD.L\", \"action\": \"BUY\", \"stop\": {\"price_gbp\": 0.68}}," +
	"{\"ticker\": \"BP.L\", \"action\": \"HOLD\", \"stop\": {\"price_gbp\": null}}," +
	"{\"ticker\": \"HSBA.L\", \"action\": \"HOLD\"}]}\n\n" +
	"=== orders.csv ===\n" + OrdersHeader + "\nO-1,VOD.L,BUY,MARKET,100,,DAY,0.68,entry\n\n" +
	"=== daily_report.md ===\n# Daily report\n\nBought Vodafone.\n\n" +
	"=== trade_log_update.json ===\nThe log follows: {\"entries\": [{\"ticker\": \"VOD.L\"}]}\n"

func TestSplitSections(t *testing.T) {
	sections := SplitSections(sampleResponse)
	assert.Len(t, sections, 5)
	assert.True(t, strings.HasPrefix(sections[OrdersName], OrdersHeader))
	assert.Equal(t, "# Daily report\n\nBought Vodafone.", sections[ReportName])
	assert.NotContains(t, sections[RunStatusName], "Here is")
}

func TestOutcomeFromSections(t *testing.T) {
	out, err := outcomeFromSections(SplitSections(sampleResponse), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusOK, out.Status)
	assert.Equal(t, "Pullback entries", out.Reason)
	require.Len(t, out.Orders, 1)
	assert.Equal(t, "VOD.L", out.Orders[0].Ticker)
	assert.True(t, out.Orders[0].Quantity.Equal(d("100")))

	require.Len(t, out.Stops, 1, "null and missing stops are ignored")
	assert.True(t, out.Stops["VOD.L"].Equal(d("0.68")))

	assert.JSONEq(t, `{"entries":[{"ticker":"VOD.L"}]}`, string(out.TradeLog))
	assert.Contains(t, out.Report, "Bought Vodafone")
}

func TestOutcomeFromSections_StatusHandling(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   models.RunStatus
	}{
		{"missing", "", models.RunStatusBlocked},
		{"garbage", "not json at all", models.RunStatusBlocked},
		{"unknown code", `{"status": "MAYBE"}`, models.RunStatusBlocked},
		{"no trades", `{"status": "NO_TRADES", "reason": "quiet"}`, models.RunStatusNoTrades},
		{"ok", `{"status": "OK"}`, models.RunStatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := outcomeFromSections(map[string]string{RunStatusName: tt.status}, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
			assert.Empty(t, out.Orders)
		})
	}
}

func writeInbox(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
}

func TestFileEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("empty inbox blocks", func(t *testing.T) {
		out, err := NewFileEngine(t.TempDir(), zerolog.Nop()).Decide(ctx, Input{AsOf: asOf})
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusBlocked, out.Status)
	})

	t.Run("reads every file", func(t *testing.T) {
		dir := t.TempDir()
		writeInbox(t, dir, map[string]string{
			RunStatusName: `{"status": "OK", "as_of_date": "2025-06-02", "reason": "go"}`,
			TradePlanName: `{"decisions": [{"ticker": "BP.L", "stop": {"price_gbp": 4.2}}]}`,
			OrdersName:    OrdersHeader + "\nO-1,BP.L,SELL,MARKET,5,,DAY,,trim\n",
			ReportName:    "# Report\n",
		})
		out, err := NewFileEngine(dir, zerolog.Nop()).Decide(ctx, Input{AsOf: asOf})
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusOK, out.Status)
		require.Len(t, out.Orders, 1)
		assert.Equal(t, models.OrderSideSell, out.Orders[0].Side)
		assert.True(t, out.Stops["BP.L"].Equal(d("4.2")))
		assert.Nil(t, out.TradeLog)
	})

	t.Run("stale decision blocks", func(t *testing.T) {
		dir := t.TempDir()
		writeInbox(t, dir, map[string]string{
			RunStatusName: `{"status": "OK", "as_of_date": "2025-05-30"}`,
			OrdersName:    OrdersHeader + "\nO-1,BP.L,SELL,MARKET,5,,DAY,,trim\n",
		})
		out, err := NewFileEngine(dir, zerolog.Nop()).Decide(ctx, Input{AsOf: asOf})
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusBlocked, out.Status)
		assert.Contains(t, out.Reason, "stale")
		assert.Empty(t, out.Orders)
	})
}

type fakeCompleter struct {
	response string
	err      error
	system   string
	user     string
}

func (f *fakeCompleter) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.system, f.user = systemPrompt, userPrompt
	return f.response, f.err
}

func sampleInput() Input {
	table := indicators.NewSnapshotTable()
	table.Add(&models.Snapshot{Ticker: "VOD.L", Date: asOf, Close: models.Some(0.75)})
	return Input{
		AsOf:      asOf,
		Settings:  map[string]interface{}{"mode": "paper"},
		Snapshots: table,
		Ledger:    models.NewLedger(asOf, d("1000")),
		Universe:  []models.TickerMeta{{Ticker: "VOD.L", Sector: "Telecoms", Status: "ACTIVE"}},
		Calendar:  calendar.Info{AsOfDate: asOf, IsTradingDay: true, NextTradingDay: asOf.AddDays(1), BankHolidaysNext5Days: []string{}},
	}
}

func TestBuildUserMessage(t *testing.T) {
	msg, err := BuildUserMessage(sampleInput())
	require.NoError(t, err)

	sections := SplitSections(msg)
	for _, name := range []string{"config.json", "market_data.csv", "positions.json", "universe.csv", "trading_calendar.json"} {
		assert.Contains(t, sections, name)
	}
	assert.Contains(t, sections["market_data.csv"], "VOD.L")
	assert.Contains(t, sections["positions.json"], `"cash_balance_gbp"`)
	assert.Contains(t, msg, "OUTPUT INSTRUCTIONS")
}

func TestLLMEngine_WritesOutputs(t *testing.T) {
	dir := t.TempDir()
	client := &fakeCompleter{response: sampleResponse}
	engine := NewLLMEngine(client, "", dir, zerolog.Nop())

	out, err := engine.Decide(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusOK, out.Status)
	assert.Equal(t, DefaultSystemPrompt, client.system)
	assert.Contains(t, client.user, "=== market_data.csv ===")

	raw, err := os.ReadFile(filepath.Join(dir, RawResponseName))
	require.NoError(t, err)
	assert.Equal(t, sampleResponse, string(raw))

	status, err := ReadRunStatus(dir)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusOK, status.Status)
	assert.Equal(t, asOf, status.AsOfDate)
	assert.Equal(t, "GBP", status.Currency)

	orders, err := ReadOrdersFile(filepath.Join(dir, OrdersName))
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	for _, name := range []string{TradePlanName, ReportName, TradeLogName} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestLLMEngine_ClientError(t *testing.T) {
	engine := NewLLMEngine(&fakeCompleter{err: errors.New("rate limited")}, "prompt", t.TempDir(), zerolog.Nop())
	_, err := engine.Decide(context.Background(), sampleInput())
	assert.ErrorIs(t, err, apperrors.ErrDecisionFailed)
}

func TestOpenAIClient_CompleteWithSystem(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"=== run_status.json ===\n{\"status\":\"NO_TRADES\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient("test-key", "gpt-test", srv.URL+"/v1", 800, zerolog.Nop())
	resp, err := client.CompleteWithSystem(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Contains(t, resp, "NO_TRADES")

	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 800, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Content)
}

func TestWriteRunStatus(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteRunStatus(dir, models.RunStatusNoTrades, asOf, "Non-trading day"))

	status, err := ReadRunStatus(dir)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusNoTrades, status.Status)
	assert.Equal(t, "Non-trading day", status.Reason)

	data, err := os.ReadFile(filepath.Join(dir, OrdersName))
	require.NoError(t, err)
	assert.Equal(t, OrdersHeader, strings.TrimSpace(string(data)))
}

func TestAppendTradeLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trade_log.json")

	wrote, _, err := AppendTradeLog(path, json.RawMessage(`{"entries": []}`))
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.NoFileExists(t, path)

	wrote, n, err := AppendTradeLog(path, json.RawMessage(`{"entries": [{"ticker": "VOD.L"}]}`))
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 1, n)

	_, n, err = AppendTradeLog(path, json.RawMessage(`{"date": "2025-06-03", "entries": [{"ticker": "BP.L"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var entries []map[string]interface{}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Len(t, entries, 2)
	assert.Equal(t, "2025-06-03", entries[1]["date"])
}

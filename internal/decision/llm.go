package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/logging"
)

// Completer sends one system + user exchange to a chat model.
type Completer interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIClient implements Completer using the OpenAI API.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    zerolog.Logger
}

// NewOpenAIClient creates a new OpenAI client. An empty baseURL uses the
// public endpoint.
func NewOpenAIClient(apiKey, model, baseURL string, maxTokens int, logger zerolog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// CompleteWithSystem sends a prompt with system message to the model.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.logger.Info().
		Str("model", c.model).
		Int("max_tokens", c.maxTokens).
		Int("system_chars", len(systemPrompt)).
		Int("user_chars", len(userPrompt)).
		Msg("Calling chat model")

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	c.logger.Info().
		Int("response_chars", len(resp.Choices[0].Message.Content)).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Chat model responded")
	return resp.Choices[0].Message.Content, nil
}

// GetModel returns the model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

// LLMEngine asks a chat model for the day's decision and keeps its answer in
// outputDir.
type LLMEngine struct {
	client       Completer
	systemPrompt string
	outputDir    string
	logger       zerolog.Logger
}

// NewLLMEngine creates an engine. An empty systemPrompt uses DefaultSystemPrompt.
func NewLLMEngine(client Completer, systemPrompt, outputDir string, logger zerolog.Logger) *LLMEngine {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &LLMEngine{
		client:       client,
		systemPrompt: systemPrompt,
		outputDir:    outputDir,
		logger:       logger,
	}
}

// LoadSystemPrompt reads a prompt file. A missing path yields the default prompt.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSystemPrompt, nil
		}
		return "", err
	}
	return string(data), nil
}

func (e *LLMEngine) Decide(ctx context.Context, in Input) (*Outcome, error) {
	log := logging.WithOperation(logging.FromContext(ctx, e.logger), "decide_llm")
	msg, err := BuildUserMessage(in)
	if err != nil {
		return nil, errors.Wrap(err, "assembling decision input")
	}

	response, err := e.client.CompleteWithSystem(ctx, e.systemPrompt, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecisionFailed, err)
	}

	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(e.outputDir, RawResponseName), []byte(response), 0644); err != nil {
		log.Warn().Err(err).Msg("Failed to save raw response")
	}

	sections := SplitSections(response)
	for _, name := range OutputNames {
		if sections[name] == "" {
			log.Warn().Str("section", name).Msg("Missing or empty section")
		}
	}

	out, err := outcomeFromSections(sections, log)
	if err != nil {
		return nil, err
	}
	if err := WriteOutcome(e.outputDir, in.AsOf, out); err != nil {
		return nil, errors.Wrap(err, "writing decision outputs")
	}
	return out, nil
}

// BuildUserMessage renders the input files, each under an "=== name ===" header,
// followed by the output instructions.
func BuildUserMessage(in Input) (string, error) {
	var b strings.Builder
	section := func(name, body string) {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n%s", name, strings.TrimRight(body, "\n"))
	}

	settings := in.Settings
	if settings == nil {
		settings = map[string]interface{}{}
	}
	cfgJSON, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return "", err
	}
	section("config.json", string(cfgJSON))

	var market bytes.Buffer
	if in.Snapshots != nil {
		if err := in.Snapshots.WriteCSV(&market); err != nil {
			return "", err
		}
	}
	section("market_data.csv", market.String())

	positions := []byte("{}")
	if in.Ledger != nil {
		if positions, err = json.MarshalIndent(in.Ledger, "", "  "); err != nil {
			return "", err
		}
	}
	section("positions.json", string(positions))

	universe, err := gocsv.MarshalString(in.Universe)
	if err != nil {
		return "", err
	}
	section("universe.csv", universe)

	cal, err := json.MarshalIndent(in.Calendar, "", "  ")
	if err != nil {
		return "", err
	}
	section("trading_calendar.json", string(cal))

	b.WriteString("\n\n--- OUTPUT INSTRUCTIONS ---\n")
	b.WriteString("Output each file delimited by === filename === headers, in this exact order:\n")
	for _, name := range OutputNames {
		fmt.Fprintf(&b, "=== %s ===\n", name)
	}
	b.WriteString("Output valid JSON for .json files (no markdown code fences). " +
		"Output raw CSV for orders.csv with header " + OrdersHeader + ". " +
		"Output raw markdown for daily_report.md.")
	return b.String(), nil
}

// DefaultSystemPrompt is used when no prompt file is configured.
const DefaultSystemPrompt = `You are the decision engine of a UK paper-trading account.
You receive the account configuration, a per-ticker indicator table, the current
ledger, the tradeable universe and the trading calendar.

Decide whether to trade today. Respect available cash_balance_gbp; sell proceeds
settle later and cannot fund today's buys. Quantities may be fractional.

run_status.json must be {"status": "OK" | "NO_TRADES" | "BLOCKED", "reason": "..."}.
trade_plan.json must hold {"decisions": [{"ticker": "...", "action": "...", "stop": {"price_gbp": 0.0}}]}
with a protective stop for every holding you keep.
orders.csv lists the orders to execute at today's close.
daily_report.md summarises the reasoning for a human reader.
trade_log_update.json must hold {"entries": [...]} describing today's trades.`

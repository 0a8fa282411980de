package ai

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrAnalyticsDisabled is returned by Ask when no ClickHouse archive is configured.
var ErrAnalyticsDisabled = errors.New("ai: analytics archive not configured")

// AgentConfig holds configuration for the AI agent.
type AgentConfig struct {
	// ClickHouse connection settings. Leave ClickHouseAddr empty to run
	// without analytics; ExplainFailure still works.
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// OpenRouter / LLM settings.
	OpenRouterAPIKey string
	// Model name as understood by OpenRouter, e.g. "openai/gpt-4.1-mini".
	Model string

	Logger *logrus.Logger
}

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Agent answers questions about settled swaps and explains failures.
type Agent struct {
	generate generateFunc
	db       *sql.DB
	database string
	logger   *logrus.Logger
}

// NewAgent creates a new Agent with its own ClickHouse and LLM clients.
func NewAgent(ctx context.Context, cfg AgentConfig) (*Agent, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	if cfg.Model == "" {
		cfg.Model = "openai/gpt-4.1-mini"
	}
	if cfg.ClickHouseDatabase == "" {
		cfg.ClickHouseDatabase = "crosschain"
	}

	// OpenRouter speaks the OpenAI API.
	llm, err := openai.New(
		openai.WithToken(cfg.OpenRouterAPIKey),
		openai.WithBaseURL("https://openrouter.ai/api/v1"),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter LLM: %w", err)
	}

	var db *sql.DB
	if cfg.ClickHouseAddr != "" {
		db = clickhouse.OpenDB(&clickhouse.Options{
			Addr: []string{cfg.ClickHouseAddr},
			Auth: clickhouse.Auth{
				Database: cfg.ClickHouseDatabase,
				Username: cfg.ClickHouseUsername,
				Password: cfg.ClickHousePassword,
			},
		})
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping ClickHouse from AI agent: %w", err)
		}
	}

	cfg.Logger.WithFields(logrus.Fields{
		"analytics": db != nil,
		"database":  cfg.ClickHouseDatabase,
		"model":     cfg.Model,
	}).Info("initialized AI agent")

	return &Agent{
		generate: func(ctx context.Context, prompt string) (string, error) {
			return llms.GenerateFromSinglePrompt(ctx, llm, prompt, llms.WithMaxTokens(512))
		},
		db:       db,
		database: cfg.ClickHouseDatabase,
		logger:   cfg.Logger,
	}, nil
}

// Close closes underlying resources.
func (a *Agent) Close() error {
	if a.db != nil {
		a.logger.Debug("closing AI agent ClickHouse connection")
		return a.db.Close()
	}
	return nil
}

// AskResult is the structured result of an Ask call.
type AskResult struct {
	SQL    string `json:"sql"`
	Answer string `json:"answer"`
}

// Ask takes a natural language question, generates SQL, executes it, and summarises the result.
func (a *Agent) Ask(ctx context.Context, question string) (*AskResult, error) {
	if a.db == nil {
		return nil, ErrAnalyticsDisabled
	}
	sqlQuery, err := a.generateSQL(ctx, question)
	if err != nil {
		return nil, err
	}

	rowsJSON, err := a.runQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}

	answer, err := a.summariseResult(ctx, question, sqlQuery, rowsJSON)
	if err != nil {
		return nil, err
	}

	return &AskResult{SQL: sqlQuery, Answer: answer}, nil
}

// ExplainFailure turns a FAILED record into a short explanation and a
// suggested next step. The record never contains key material.
func (a *Agent) ExplainFailure(ctx context.Context, rec *models.SwapRecord) (string, error) {
	if rec == nil || rec.Status != models.StatusFailed {
		return "", fmt.Errorf("only FAILED swaps can be explained")
	}
	prompt := fmt.Sprintf(`
You are a support assistant for a cross-chain token swap wallet.

A swap failed. Details:
- Sold: %s %s on chain %d
- Expected to receive: %s %s on chain %d
- Aggregator substatus: %q
- Aggregator message: %q

Instructions:
- In two or three short sentences, explain what most likely happened in plain language.
- Then suggest one next step. Retrying always means requesting a fresh quote.
- Do not invent transaction ids or amounts that are not listed above.
`,
		rec.FromToken.Format(rec.FromAmount), rec.FromToken.Symbol, rec.FromChain,
		rec.ToToken.Format(rec.ToAmount), rec.ToToken.Symbol, rec.ToChain,
		rec.Substatus, rec.SubstatusMessage)

	resp, err := a.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("LLM explanation failed: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// generateSQL asks the LLM to produce a safe SELECT over swap_outcomes.
func (a *Agent) generateSQL(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(`
You are an expert ClickHouse SQL generator.

Use ONLY the following table:
%s

Rules:
- Return a single SELECT query in ClickHouse SQL.
- Do NOT include any explanation or comments, only the SQL.
- The table is %s.swap_outcomes.
- Use created_at for time filtering.
- Use aggregate functions like sum, avg, count when appropriate.
- If user asks for \"top\" or \"slowest\" something, use ORDER BY ... DESC and LIMIT.
- Never modify data: no INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, TRUNCATE.

User question:
%s
`, outcomesSchemaDescription(a.database), a.database, question)

	resp, err := a.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("LLM SQL generation failed: %w", err)
	}

	sqlQuery := sanitizeSQL(resp)
	if err := validateSQL(sqlQuery, a.database); err != nil {
		return "", err
	}
	sqlQuery = withRowLimit(sqlQuery)

	a.logger.WithField("sql", sqlQuery).Debug("generated SQL from question")
	return sqlQuery, nil
}

// summariseResult asks the LLM to answer the question given SQL + JSON results.
func (a *Agent) summariseResult(ctx context.Context, question, sqlQuery, rowsJSON string) (string, error) {
	prompt := fmt.Sprintf(`
You are a helpful assistant analysing cross-chain swap settlement history.

User question:
%s

SQL that was executed:
%s

Query results in JSON (array of objects, can be empty):
%s

Instructions:
- If the result set is empty, say that no data was found for the question.
- Otherwise, answer the question concisely using bullet points and short sentences.
- Include key numbers (counts, volumes, durations, success rates) rounded reasonably.
- Do not restate the raw JSON.
`, question, sqlQuery, rowsJSON)

	resp, err := a.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("LLM summarisation failed: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

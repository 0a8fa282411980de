package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/ai"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var askModel string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask questions about settled swaps in plain language",
	Long: `Translate a question into ClickHouse SQL over the swap outcome archive and
summarise the rows. With no argument, starts an interactive session; an empty
line exits.

Examples:
  swapctl ask "how many swaps failed on polygon this week?"
  swapctl ask --model openai/gpt-4.1`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askModel, "model", "", "OpenRouter model name (default from config)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if svc.AIBase.OpenRouterAPIKey == "" {
		return errors.New("OPENROUTER_API_KEY is required for ask")
	}
	agent := svc.Agent
	if askModel != "" && askModel != svc.AIBase.Model {
		cfg := svc.AIBase
		cfg.Model = askModel
		if agent, err = ai.NewAgent(cmd.Context(), cfg); err != nil {
			return fmt.Errorf("create agent: %w", err)
		}
		defer agent.Close()
	}
	if agent == nil {
		return errors.New("AI agent is unavailable; run with --verbose for details")
	}

	if len(args) > 0 {
		return askOnce(cmd, agent, strings.Join(args, " "))
	}
	return askREPL(cmd, agent)
}

func askOnce(cmd *cobra.Command, agent *ai.Agent, question string) error {
	var res *ai.AskResult
	err := withSpinner(cmd, "Thinking...", func(ctx context.Context) error {
		var err error
		res, err = agent.Ask(ctx, question)
		return err
	})
	if errors.Is(err, ai.ErrAnalyticsDisabled) {
		return errors.New("analytics are disabled; set CLICKHOUSE_ADDR")
	}
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(res)
	}
	fmt.Printf("\n%s\n%s\n\n", color.CyanString("SQL:"), res.SQL)
	fmt.Printf("%s\n%s\n", color.GreenString("Answer:"), res.Answer)
	return nil
}

func askREPL(cmd *cobra.Command, agent *ai.Agent) error {
	fmt.Println("Swap analytics (question → ClickHouse SQL)")
	fmt.Println("Type your question and press Enter. Empty line to exit.")

	for {
		fmt.Println()
		q, err := prompt("> ")
		if err != nil || q == "" {
			fmt.Println("bye")
			return nil
		}
		if cmd.Context().Err() != nil {
			return nil
		}
		// Short cooldown so a held Enter key does not flood the model.
		time.Sleep(200 * time.Millisecond)

		if err := askOnce(cmd, agent, q); err != nil {
			color.Red("error: %v", err)
		}
	}
}

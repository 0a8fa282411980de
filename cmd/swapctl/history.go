package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	tokenSymbol  string
	tokenRefresh bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded swaps, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		if historyLimit < 1 || historyLimit > 200 {
			return fmt.Errorf("--limit must be between 1 and 200")
		}
		records, err := svc.Ledger.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(records)
		}
		if len(records) == 0 {
			fmt.Println("\nNo swaps recorded yet.")
			return nil
		}
		fmt.Println()
		fmt.Printf("  %-19s  %-14s  %-22s  %-22s  %s\n", "CREATED", "STATUS", "SENT", "RECEIVED", "TX")
		for _, rec := range records {
			fmt.Printf("  %-19s  %-14s  %-22s  %-22s  %s\n",
				rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				statusColor(rec.Status),
				amountLabel(rec.FromToken, rec.FromAmount),
				amountLabel(rec.ToToken, rec.ToAmount),
				shortID(rec.TxID))
		}
		return nil
	},
}

var tokensCmd = &cobra.Command{
	Use:     "tokens <chain>",
	Aliases: []string{"list-tokens"},
	Short:   "List priced tokens on a chain",
	Long: `List tokens the aggregator can route on a chain.

Examples:
  swapctl tokens polygon
  swapctl tokens solana --symbol USDC`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		c, err := svc.Chains.Resolve(args[0])
		if err != nil {
			return err
		}
		if tokenRefresh {
			svc.Catalog.Invalidate(c.ID)
		}
		var tokens []models.Token
		err = withSpinner(cmd, "Fetching supported tokens...", func(ctx context.Context) error {
			tokens, err = svc.Catalog.List(ctx, c.ID)
			return err
		})
		if err != nil {
			return err
		}
		tokens = filterTokens(tokens, tokenSymbol)
		if jsonOutput(cmd) {
			return printJSON(tokens)
		}

		fmt.Printf("\n%s tokens on %s\n\n", color.GreenString("%d", len(tokens)), c.Name)
		for _, t := range tokens {
			fmt.Printf("  %-10s  %-44s  $%.4f\n", color.YellowString(t.Symbol), t.Address, t.PriceUSD)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd, tokensCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of swaps to show")
	tokensCmd.Flags().StringVar(&tokenSymbol, "symbol", "", "Filter by symbol")
	tokensCmd.Flags().BoolVar(&tokenRefresh, "refresh", false, "Bypass the token cache")
}

func filterTokens(tokens []models.Token, symbol string) []models.Token {
	if symbol == "" {
		return tokens
	}
	var out []models.Token
	for _, t := range tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			out = append(out, t)
		}
	}
	return out
}

func amountLabel(t models.Token, amount string) string {
	if amount == "" {
		return "-"
	}
	return t.Format(amount) + " " + t.Symbol
}

func shortID(id string) string {
	if len(id) <= 18 {
		return id
	}
	return id[:10] + "…" + id[len(id)-6:]
}

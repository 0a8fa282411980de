package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aman-zulfiqar/crosschain-swap/internal/aggregator"
	"github.com/aman-zulfiqar/crosschain-swap/internal/app"
	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type routeFlags struct {
	fromChain   string
	toChain     string
	fromAddress string
	toAddress   string
	slippageBps uint16
	order       string
}

func (f *routeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.fromChain, "from-chain", "", "Origin chain key or id (required)")
	cmd.Flags().StringVar(&f.toChain, "to-chain", "", "Destination chain key or id (defaults to origin)")
	cmd.Flags().StringVar(&f.fromAddress, "from-address", os.Getenv("FROM_ADDRESS"), "Sending wallet address")
	cmd.Flags().StringVar(&f.toAddress, "to-address", "", "Receiving address (defaults to sender on same-kind chains)")
	cmd.Flags().Uint16Var(&f.slippageBps, "slippage-bps", 0, "Slippage tolerance in bps (default from config)")
	cmd.Flags().StringVar(&f.order, "order", "", "Route preference: FASTEST or CHEAPEST")
	_ = cmd.MarkFlagRequired("from-chain")
}

var quoteFlags routeFlags

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <from-token> <to-token>",
	Short: "Price a swap without executing it",
	Long: `Request a route from the aggregator. Amounts are in whole tokens; tokens
may be given by symbol or address.

Examples:
  swapctl quote 0.5 SOL USDC --from-chain solana --from-address <pubkey>
  swapctl quote 100 USDC USDC --from-chain polygon --to-chain base --from-address 0x...`,
	Args: cobra.ExactArgs(3),
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteFlags.register(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	q, err := fetchQuote(cmd, svc, quoteFlags, args)
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(q)
	}
	displayQuote(svc.Chains, q)
	return nil
}

// fetchQuote resolves chains and tokens, converts the human amount and asks
// the aggregator for a route.
func fetchQuote(cmd *cobra.Command, svc *app.App, f routeFlags, args []string) (*models.Quote, error) {
	from, err := svc.Chains.Resolve(f.fromChain)
	if err != nil {
		return nil, err
	}
	to := from
	if f.toChain != "" {
		if to, err = svc.Chains.Resolve(f.toChain); err != nil {
			return nil, err
		}
	}
	if f.fromAddress == "" {
		return nil, fmt.Errorf("--from-address is required")
	}
	toAddress := f.toAddress
	if toAddress == "" {
		if from.Kind != to.Kind {
			return nil, fmt.Errorf("--to-address is required when the destination chain uses a different address format")
		}
		toAddress = f.fromAddress
	}
	slippage := f.slippageBps
	if slippage == 0 {
		slippage = svc.Config.DefaultSlippageBps
	}

	var fromToken, toToken models.Token
	var q *models.Quote
	err = withSpinner(cmd, "Fetching quote...", func(ctx context.Context) error {
		if fromToken, err = findToken(ctx, svc, from, args[1]); err != nil {
			return err
		}
		if toToken, err = findToken(ctx, svc, to, args[2]); err != nil {
			return err
		}
		amount, err := fromToken.ToBaseUnits(args[0])
		if err != nil {
			return err
		}
		q, err = svc.Aggregator.Quote(ctx, aggregator.QuoteRequest{
			FromChain:   from.ID,
			ToChain:     to.ID,
			FromToken:   fromToken.Address,
			ToToken:     toToken.Address,
			FromAmount:  amount,
			FromAddress: f.fromAddress,
			ToAddress:   toAddress,
			SlippageBps: slippage,
			Order:       strings.ToUpper(f.order),
		})
		return err
	})
	return q, err
}

// findToken accepts a symbol or address. The chain's native symbol maps to
// its sentinel address even when the catalog omits it.
func findToken(ctx context.Context, svc *app.App, c chain.Chain, ref string) (models.Token, error) {
	t, err := svc.Catalog.Find(ctx, c.ID, ref)
	if err == nil {
		return t, nil
	}
	if strings.EqualFold(ref, c.NativeSymbol) || c.IsNative(ref) {
		decimals := int32(18)
		if !c.IsEVM() {
			decimals = 9
		}
		return models.Token{ChainID: c.ID, Address: c.NativeAddress, Symbol: c.NativeSymbol, Decimals: decimals}, nil
	}
	return models.Token{}, err
}

func displayQuote(chains *chain.Registry, q *models.Quote) {
	fromName, toName := chainName(chains, q.FromChain), chainName(chains, q.ToChain)

	fmt.Println()
	rule()
	color.Green("                       SWAP QUOTE")
	rule()
	fmt.Printf("\n  Route:             %s → %s", fromName, toName)
	if q.Tool != "" {
		fmt.Printf(" via %s", color.MagentaString(q.Tool))
	}
	fmt.Println()
	fmt.Printf("  You send:          %s %s\n", q.FromToken.Format(q.FromAmount), color.YellowString(q.FromToken.Symbol))
	fmt.Printf("  You receive:       ~%s %s\n", q.ToToken.Format(q.ToAmount), color.YellowString(q.ToToken.Symbol))
	fmt.Printf("  Minimum received:  %s %s\n", q.ToToken.Format(q.ToAmountMin), q.ToToken.Symbol)
	fmt.Printf("  Slippage:          %.2f%%\n", float64(q.SlippageBps)/100)
	if v := q.FromToken.ValueUSD(q.FromAmount); v.IsPositive() {
		fmt.Printf("  Value:             $%s\n", v.StringFixed(2))
	}
	if q.EstimatedDurationSeconds > 0 {
		fmt.Printf("  Estimated time:    %d seconds\n", q.EstimatedDurationSeconds)
	}
	if q.ApprovalAddress != "" {
		fmt.Printf("  Approval spender:  %s\n", color.CyanString(q.ApprovalAddress))
	}
	fmt.Println()
	rule()
}

func chainName(chains *chain.Registry, id int64) string {
	if c, ok := chains.ByID(id); ok {
		return c.Name
	}
	return fmt.Sprintf("chain %d", id)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/app"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/settlement"
	"github.com/aman-zulfiqar/crosschain-swap/internal/swapengine"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	swapFlags routeFlags
	noConfirm bool
	watchSwap bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <from-token> <to-token>",
	Short: "Quote, sign, broadcast and track a swap",
	Long: `Fetch a fresh quote, confirm it, unlock the vault with your PIN and broadcast.
The swap is recorded as PENDING and tracked until it settles.

Examples:
  swapctl swap 25 USDC USDC --from-chain polygon --to-chain arbitrum --from-address 0x... --watch
  swapctl swap 0.2 SOL USDC --from-chain solana --from-address <pubkey> --yes`,
	Args: cobra.ExactArgs(3),
	RunE: runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)
	swapFlags.register(swapCmd)
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	swapCmd.Flags().BoolVarP(&watchSwap, "watch", "w", false, "Wait until the swap settles")
}

func runSwap(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	q, err := fetchQuote(cmd, svc, swapFlags, args)
	if err != nil {
		return fmt.Errorf("%s (%w)", swapengine.UserMessage(err), err)
	}
	if !jsonOutput(cmd) {
		displayQuote(svc.Chains, q)
	}
	if risk := svc.Engine.CheckRisk(q); !risk.Allowed {
		return fmt.Errorf("quote rejected: %s", risk.Reason)
	}
	if !noConfirm && !jsonOutput(cmd) && !confirm("\nProceed with swap?") {
		fmt.Println("\nSwap cancelled.")
		return nil
	}

	pin, err := promptSecret("Vault PIN: ")
	if err != nil {
		return err
	}

	var res *swapengine.ExecuteResult
	err = withSpinner(cmd, "Signing and broadcasting...", func(ctx context.Context) error {
		res, err = svc.Engine.Execute(ctx, swapengine.ExecuteRequest{Quote: q, PIN: pin})
		return err
	})
	if err != nil {
		return errors.New(swapengine.UserMessage(err))
	}

	if jsonOutput(cmd) && !watchSwap {
		return printJSON(res.Record)
	}
	if !jsonOutput(cmd) {
		if res.ApprovalTxID != "" {
			fmt.Printf("\n  Approval tx:  %s\n", color.CyanString(res.ApprovalTxID))
		}
		color.Green("\n✓ Swap broadcast")
		fmt.Printf("  Transaction:  %s\n", color.CyanString(res.TxID))
	}
	if res.Handle == nil {
		color.Yellow("\nThe swap was sent but could not be recorded locally; track it with:")
		color.Cyan("  swapctl status %s --from-chain %d --to-chain %d --watch\n", res.TxID, q.FromChain, q.ToChain)
		return nil
	}
	if !watchSwap {
		fmt.Println("\nYou can monitor the swap status using:")
		color.Cyan("  swapctl status %s --watch\n", res.TxID)
		return nil
	}
	return awaitSettlement(cmd, svc, res.Handle)
}

// awaitSettlement blocks on the tracker until the loop exits, then prints
// the stored record.
func awaitSettlement(cmd *cobra.Command, svc *app.App, h *settlement.Handle) error {
	var state settlement.State
	_ = withSpinner(cmd, "Waiting for settlement...", func(ctx context.Context) error {
		state = h.Wait(ctx)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rec, err := svc.Ledger.Get(ctx, h.TxID)
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(rec)
	}
	switch state {
	case settlement.StateLost:
		color.Yellow("\nLost contact with the routing service; the swap is still pending.")
	case settlement.StateTracking, settlement.StateCancelled:
		color.Yellow("\nStopped waiting; the swap is still pending.")
	}
	displayRecord(svc, rec)
	return nil
}

func displayRecord(svc *app.App, rec *models.SwapRecord) {
	fmt.Println()
	rule()
	fmt.Printf("  Transaction:   %s\n", color.CyanString(rec.TxID))
	fmt.Printf("  Route:         %s → %s\n", chainName(svc.Chains, rec.FromChain), chainName(svc.Chains, rec.ToChain))
	fmt.Printf("  Sent:          %s %s\n", rec.FromToken.Format(rec.FromAmount), rec.FromToken.Symbol)
	fmt.Printf("  Received:      %s %s\n", rec.ToToken.Format(rec.ToAmount), rec.ToToken.Symbol)
	fmt.Printf("  Status:        %s\n", statusColor(rec.Status))
	if rec.Substatus != "" {
		fmt.Printf("  Substatus:     %s\n", rec.Substatus)
	}
	if rec.SubstatusMessage != "" {
		fmt.Printf("  Message:       %s\n", rec.SubstatusMessage)
	}
	if rec.ReceivingTxID != "" {
		fmt.Printf("  Receiving tx:  %s\n", color.CyanString(rec.ReceivingTxID))
	}
	rule()
}

func statusColor(s models.Status) string {
	switch s {
	case models.StatusDone:
		return color.GreenString(string(s))
	case models.StatusFailed:
		return color.RedString(string(s))
	}
	return color.YellowString(string(s))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/app"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	statusFromChain string
	statusToChain   string
	watchStatus     bool
	watchInterval   time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-id>",
	Short: "Check the settlement status of a swap",
	Long: `Ask the routing service where a swap stands. Chains are read from the local
history when the swap is known, otherwise pass them as flags.

Examples:
  swapctl status 0xabc...
  swapctl status 0xabc... --watch --interval 5s
  swapctl status <signature> --from-chain solana --to-chain base`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusFromChain, "from-chain", "", "Origin chain (when not in local history)")
	statusCmd.Flags().StringVar(&statusToChain, "to-chain", "", "Destination chain (when not in local history)")
	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the swap settles")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 10*time.Second, "Polling interval when watching")
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	txID := args[0]
	from, to, err := statusChains(cmd.Context(), svc, txID)
	if err != nil {
		return err
	}

	for {
		var st models.SwapStatus
		_ = withSpinner(cmd, "Checking swap status...", func(ctx context.Context) error {
			st = svc.Tracker.Poll(ctx, txID, from, to)
			return nil
		})
		if jsonOutput(cmd) {
			if err := printJSON(st); err != nil {
				return err
			}
		} else {
			displayStatus(txID, st)
		}

		if !watchStatus || st.Status == models.PollDone || st.Status == models.PollFailed {
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-time.After(watchInterval):
		}
	}
}

func statusChains(ctx context.Context, svc *app.App, txID string) (int64, int64, error) {
	rec, err := svc.Ledger.Get(ctx, txID)
	if err == nil {
		return rec.FromChain, rec.ToChain, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, 0, err
	}
	if statusFromChain == "" {
		return 0, 0, fmt.Errorf("swap %s is not in local history; pass --from-chain", txID)
	}
	from, err := svc.Chains.Resolve(statusFromChain)
	if err != nil {
		return 0, 0, err
	}
	to := from
	if statusToChain != "" {
		if to, err = svc.Chains.Resolve(statusToChain); err != nil {
			return 0, 0, err
		}
	}
	return from.ID, to.ID, nil
}

func displayStatus(txID string, st models.SwapStatus) {
	label := string(st.Status)
	switch st.Status {
	case models.PollDone:
		label = color.GreenString(label)
	case models.PollFailed:
		label = color.RedString(label)
	case models.PollUnknown:
		label = color.YellowString(label + " (routing service unreachable)")
	default:
		label = color.YellowString(label)
	}
	fmt.Printf("\n  %s  %s", color.CyanString(txID), label)
	if st.Substatus != "" {
		fmt.Printf("  %s", st.Substatus)
	}
	fmt.Println()
	if st.SubstatusMessage != "" {
		fmt.Printf("  %s\n", st.SubstatusMessage)
	}
	if st.ReceivingTxID != "" {
		fmt.Printf("  Receiving tx: %s\n", color.CyanString(st.ReceivingTxID))
	}
}

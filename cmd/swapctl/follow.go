package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var followCmd = &cobra.Command{
	Use:   "follow [tx-id]",
	Short: "Stream settlement events published by running trackers",
	Long: `Subscribe to settlement events on Redis. Every swap settled by any tracker
sharing the Redis instance is printed as it lands. Pass a transaction id to
follow a single swap; the command then exits once it settles.

Examples:
  swapctl follow
  swapctl follow 0xabc...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFollow,
}

func init() {
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if svc.PubSub == nil {
		return errors.New("REDIS_ADDR is required to follow settlements")
	}
	var txID string
	if len(args) == 1 {
		txID = args[0]
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if !jsonOutput(cmd) {
		color.Cyan("Listening for settlements. Press Ctrl+C to stop.")
	}
	return svc.PubSub.SubscribeSettlements(ctx, txID, func(rec *models.SwapRecord) {
		if jsonOutput(cmd) {
			_ = printJSON(rec)
		} else {
			fmt.Printf("%s  %s  %s  %s → %s\n",
				rec.UpdatedAt.Local().Format(time.TimeOnly),
				statusColor(rec.Status),
				color.CyanString(shortID(rec.TxID)),
				amountLabel(rec.FromToken, rec.FromAmount),
				amountLabel(rec.ToToken, rec.ToAmount))
			if rec.SubstatusMessage != "" {
				fmt.Printf("          %s\n", rec.SubstatusMessage)
			}
		}
		if txID != "" {
			cancel()
		}
	})
}

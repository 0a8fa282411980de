package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/app"
	"github.com/aman-zulfiqar/crosschain-swap/internal/config"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "swapctl",
	Short: "Quote, execute and track cross-chain token swaps",
	Long: `swapctl quotes routes through the aggregator, signs with keys from the
local PIN-protected vault, broadcasts, and follows the swap until it settles.

Examples:
  swapctl vault init
  swapctl quote 25 USDC USDC --from-chain polygon --to-chain arbitrum --from-address 0x...
  swapctl swap 25 USDC USDC --from-chain polygon --to-chain arbitrum --from-address 0x... --watch
  swapctl status 0xabc... --watch
  swapctl history --limit 20`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var stdin = bufio.NewReader(os.Stdin)

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

// bootstrap loads configuration and wires services. Logs stay quiet unless
// --verbose is set so they do not interleave with command output.
func bootstrap(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.NewLogger()
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		logger.SetLevel(logrus.WarnLevel)
		logger.SetOutput(io.Discard)
	}
	return app.New(cmd.Context(), cfg, logger)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// withSpinner runs fn behind a spinner unless output is JSON.
func withSpinner(cmd *cobra.Command, label string, fn func(ctx context.Context) error) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput(cmd) {
		s.Suffix = " " + label
		s.Start()
	}
	err := fn(cmd.Context())
	if !jsonOutput(cmd) {
		s.Stop()
	}
	return err
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Print(label)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func confirm(label string) bool {
	answer, err := prompt(label + " (y/N): ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func printError(err error) {
	color.Red("\nError: %v\n", err)
}

func rule() {
	fmt.Println(strings.Repeat("=", 60))
}

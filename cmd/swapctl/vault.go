package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

var forceInit bool

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the PIN-protected key vault",
}

var vaultInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Seal private keys under a new PIN",
	Long: `Import private keys and seal them under a PIN. Keys are read from
EVM_PRIVATE_KEY (hex) and SOLANA_PRIVATE_KEY (base58 or keygen JSON array),
or prompted for when unset. Existing vault contents are replaced only with --force.`,
	Args: cobra.NoArgs,
	RunE: runVaultInit,
}

var vaultStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a vault is provisioned",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		ok, err := svc.Vault.Provisioned(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(map[string]bool{"provisioned": ok})
		}
		if ok {
			color.Green("\n✓ Vault is provisioned")
		} else {
			color.Yellow("\nNo vault yet. Run: swapctl vault init")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultInitCmd, vaultStatusCmd)
	vaultInitCmd.Flags().BoolVar(&forceInit, "force", false, "Replace an existing vault")
}

func runVaultInit(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	exists, err := svc.Vault.Provisioned(cmd.Context())
	if err != nil {
		return err
	}
	if exists && !forceInit {
		return fmt.Errorf("a vault already exists; use --force to replace it")
	}

	secrets := make(map[string][]byte)
	if raw, err := secretInput("EVM_PRIVATE_KEY", "EVM private key (hex, empty to skip): "); err != nil {
		return err
	} else if raw != "" {
		key, err := vault.ParseEVMKey(raw)
		if err != nil {
			return err
		}
		pk, err := crypto.ToECDSA(key)
		if err != nil {
			return err
		}
		fmt.Printf("  EVM address:    %s\n", color.CyanString(crypto.PubkeyToAddress(pk.PublicKey).Hex()))
		secrets["evm"] = key
	}
	if raw, err := secretInput("SOLANA_PRIVATE_KEY", "Solana private key (base58, empty to skip): "); err != nil {
		return err
	} else if raw != "" {
		key, err := vault.ParseSolanaKey(raw)
		if err != nil {
			return err
		}
		fmt.Printf("  Solana address: %s\n", color.CyanString(solana.PrivateKey(key).PublicKey().String()))
		secrets["solana"] = key
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no keys provided")
	}

	pin, err := promptSecret("New PIN: ")
	if err != nil {
		return err
	}
	again, err := promptSecret("Repeat PIN: ")
	if err != nil {
		return err
	}
	if pin != again {
		return fmt.Errorf("PINs do not match")
	}

	err = withSpinner(cmd, "Sealing vault...", func(ctx context.Context) error {
		return svc.Vault.Seal(ctx, pin, secrets)
	})
	if err != nil {
		return err
	}
	color.Green("\n✓ Vault sealed (%d keys)", len(secrets))
	return nil
}

func secretInput(env, label string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return promptSecret(label)
}

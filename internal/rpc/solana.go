package rpc

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SendOptions configures transaction sending behavior
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *int
}

// DefaultSendOptions returns recommended send settings: simulate before
// accepting so a failing transaction is rejected instead of landing.
func DefaultSendOptions() SendOptions {
	maxRetries := 3
	return SendOptions{
		SkipPreflight:       false,
		PreflightCommitment: "processed",
		MaxRetries:          &maxRetries,
	}
}

// GetAccountInfo returns nil, nil when the account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey, commitment string) (*AccountInfo, error) {
	if commitment == "" {
		commitment = "confirmed"
	}
	params := []any{
		pubkey.String(),
		map[string]any{
			"encoding":   "base64",
			"commitment": commitment,
		},
	}

	res, err := call[contextValue[*accountInfoValue]](ctx, c, "getAccountInfo", params)
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo: %w", err)
	}
	v := res.Value
	if v == nil {
		return nil, nil
	}

	info := &AccountInfo{Owner: v.Owner, Lamports: v.Lamports, Executable: v.Executable}
	if len(v.Data) > 0 && v.Data[0] != "" {
		if len(v.Data) > 1 && v.Data[1] != "base64" {
			return nil, fmt.Errorf("getAccountInfo: unexpected encoding %q", v.Data[1])
		}
		data, err := base64.StdEncoding.DecodeString(v.Data[0])
		if err != nil {
			return nil, fmt.Errorf("getAccountInfo: decode data: %w", err)
		}
		info.Data = data
	}
	return info, nil
}

// AccountExists checks if an account exists on-chain (getAccountInfo != nil).
func (c *Client) AccountExists(ctx context.Context, pubkey solana.PublicKey) (bool, error) {
	info, err := c.GetAccountInfo(ctx, pubkey, "")
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// GetLatestBlockhash fetches the most recent blockhash with commitment level
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment string) (solana.Hash, error) {
	if commitment == "" {
		commitment = "finalized"
	}
	params := []any{map[string]any{"commitment": commitment}}

	res, err := call[contextValue[blockhashValue]](ctx, c, "getLatestBlockhash", params)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}

	hash, err := solana.HashFromBase58(res.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("invalid blockhash format: %w", err)
	}
	return hash, nil
}

// SendTransaction submits a signed, serialized transaction. A preflight
// rejection comes back as *RPCError; transport failures wrap ErrTransport.
func (c *Client) SendTransaction(ctx context.Context, raw []byte, opts *SendOptions) (string, error) {
	if opts == nil {
		d := DefaultSendOptions()
		opts = &d
	}

	cfg := map[string]any{
		"encoding":            "base64",
		"skipPreflight":       opts.SkipPreflight,
		"preflightCommitment": opts.PreflightCommitment,
	}
	if opts.MaxRetries != nil {
		cfg["maxRetries"] = *opts.MaxRetries
	}
	params := []any{base64.StdEncoding.EncodeToString(raw), cfg}

	return call[string](ctx, c, "sendTransaction", params)
}

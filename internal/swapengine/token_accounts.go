package swapengine

import (
	"context"
	"fmt"

	"github.com/aman-zulfiqar/crosschain-swap/internal/rpc"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
)

// SolanaRPC is the read side of the Solana JSON-RPC client used while
// building transactions.
type SolanaRPC interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey, commitment string) (*rpc.AccountInfo, error)
	GetLatestBlockhash(ctx context.Context, commitment string) (solana.Hash, error)
}

// ResolvedTokenAccount describes the owner's token account for a mint plus
// the instructions needed to make it usable.
type ResolvedTokenAccount struct {
	Account solana.PublicKey
	Created bool // true if PreIxs creates the account
	PreIxs  []solana.Instruction
}

// TokenAccountResolver decides whether a destination token account must be
// created before the routed instructions run.
type TokenAccountResolver interface {
	Resolve(ctx context.Context, owner, mint solana.PublicKey) (*ResolvedTokenAccount, error)
}

// DefaultTokenAccountResolver resolves the owner's associated token account.
// The owner pays for creation.
type DefaultTokenAccountResolver struct {
	rpc        SolanaRPC
	commitment string
}

func NewDefaultTokenAccountResolver(c SolanaRPC, commitment string) *DefaultTokenAccountResolver {
	return &DefaultTokenAccountResolver{rpc: c, commitment: commitment}
}

func (r *DefaultTokenAccountResolver) Resolve(ctx context.Context, owner, mint solana.PublicKey) (*ResolvedTokenAccount, error) {
	if r == nil || r.rpc == nil {
		return nil, fmt.Errorf("token account resolver: rpc is nil")
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated token address: %w", err)
	}

	info, err := r.rpc.GetAccountInfo(ctx, ata, r.commitment)
	if err != nil {
		return nil, fmt.Errorf("check token account %s: %w", ata, err)
	}
	if info != nil {
		return &ResolvedTokenAccount{Account: ata}, nil
	}

	create := associatedtokenaccount.NewCreateInstruction(owner, owner, mint).Build()
	return &ResolvedTokenAccount{
		Account: ata,
		Created: true,
		PreIxs:  []solana.Instruction{create},
	}, nil
}

package swapengine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/metrics"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

type solanaBuilder struct {
	rpc        SolanaRPC
	accounts   TokenAccountResolver
	commitment string
	logger     *logrus.Logger
}

func (b *solanaBuilder) build(ctx context.Context, ch chain.Chain, q *models.Quote, key []byte) (*models.SignedExecution, error) {
	if q.Transaction == nil || strings.TrimSpace(q.Transaction.Data) == "" {
		return nil, ErrMissingTransactionData
	}
	raw, err := base64.StdEncoding.DecodeString(q.Transaction.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction is not base64: %v", ErrMissingTransactionData, err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %v", ErrMissingTransactionData, err)
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("%w: malformed Solana key", ErrSignerMismatch)
	}
	priv := solana.PrivateKey(key)
	signer := priv.PublicKey()
	idx, ok := signerIndex(&tx.Message, signer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSignerMismatch, signer)
	}

	log := b.logger.WithFields(logrus.Fields{"chain": ch.Key, "quote_id": q.ID, "signer": signer.String()})

	if q.ToChain == ch.ID && !ch.IsNative(q.ToToken.Address) {
		mint, err := solana.PublicKeyFromBase58(q.ToToken.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: destination mint %q: %v", ErrMissingTransactionData, q.ToToken.Address, err)
		}
		resolved, err := b.accounts.Resolve(ctx, signer, mint)
		if err != nil {
			return nil, err
		}
		if resolved.Created && !hasCreateFor(&tx.Message, resolved.Account) {
			out, err := b.rewrite(ctx, tx, resolved.PreIxs, signer, priv)
			if err != nil {
				metrics.TransactionRewrites.WithLabelValues(ch.Key, "failed").Inc()
				return nil, err
			}
			metrics.TransactionRewrites.WithLabelValues(ch.Key, "rewritten").Inc()
			out.ChainID = ch.ID
			log.WithFields(logrus.Fields{"token_account": resolved.Account.String(), "tx_id": out.TxID}).
				Info("destination token account missing, transaction rewritten")
			return out, nil
		}
		metrics.TransactionRewrites.WithLabelValues(ch.Key, "not_needed").Inc()
	}

	signed, sig, err := signInPlace(raw, idx, priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingTransactionData, err)
	}
	log.WithField("tx_id", sig.String()).Info("swap transaction signed")
	return &models.SignedExecution{ChainID: ch.ID, Raw: signed, TxID: sig.String()}, nil
}

// rewrite prepends pre to the routed instructions and recompiles against
// the same lookup tables with a fresh blockhash.
func (b *solanaBuilder) rewrite(
	ctx context.Context,
	tx *solana.Transaction,
	pre []solana.Instruction,
	signer solana.PublicKey,
	priv solana.PrivateKey,
) (*models.SignedExecution, error) {
	tables, err := resolveLookupTables(ctx, b.rpc, &tx.Message, b.commitment)
	if err != nil {
		return nil, err
	}
	routed, err := decompile(&tx.Message, tables)
	if err != nil {
		return nil, err
	}

	ixs := make([]solana.Instruction, 0, len(pre)+len(routed))
	ixs = append(ixs, pre...)
	ixs = append(ixs, routed...)

	hash, err := b.rpc.GetLatestBlockhash(ctx, b.commitment)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh blockhash: %v", ErrRecompileFailed, err)
	}

	opts := []solana.TransactionOption{solana.TransactionPayer(signer)}
	if len(tables) > 0 {
		opts = append(opts, solana.TransactionAddressTables(tables))
	}
	rebuilt, err := solana.NewTransaction(ixs, hash, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecompileFailed, err)
	}
	if n := rebuilt.Message.Header.NumRequiredSignatures; n != 1 {
		return nil, fmt.Errorf("%w: rebuilt message needs %d signers", ErrRecompileFailed, n)
	}

	if _, err := rebuilt.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(signer) {
			return &priv
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: sign: %v", ErrRecompileFailed, err)
	}
	raw, err := rebuilt.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrRecompileFailed, err)
	}
	return &models.SignedExecution{Raw: raw, TxID: rebuilt.Signatures[0].String()}, nil
}

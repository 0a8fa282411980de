package swapengine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/metrics"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// EVMClient is the subset of *ethclient.Client the builder uses.
type EVMClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

const erc20ABI = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return a
}

type evmBuilder struct {
	clients         map[int64]EVMClient
	approvalTimeout time.Duration
	receiptPoll     time.Duration
	logger          *logrus.Logger
}

func (b *evmBuilder) build(ctx context.Context, ch chain.Chain, q *models.Quote, key []byte) (*models.SignedExecution, error) {
	txReq := q.Transaction
	if txReq == nil || strings.TrimSpace(txReq.To) == "" || strings.TrimSpace(txReq.Data) == "" {
		return nil, ErrMissingTransactionData
	}
	if !common.IsHexAddress(txReq.To) {
		return nil, fmt.Errorf("%w: invalid target %q", ErrMissingTransactionData, txReq.To)
	}
	data, err := hexutil.Decode(txReq.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: calldata: %v", ErrMissingTransactionData, err)
	}
	client, ok := b.clients[ch.ID]
	if !ok {
		return nil, fmt.Errorf("%w: no EVM client for %s", ErrUnsupportedChain, ch.Key)
	}

	priv, err := crypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed EVM key", ErrSignerMismatch)
	}
	defer wipeECDSA(priv)

	from := crypto.PubkeyToAddress(priv.PublicKey)
	if q.FromAddress != "" && !strings.EqualFold(q.FromAddress, from.Hex()) {
		return nil, fmt.Errorf("%w: quote is for %s", ErrSignerMismatch, q.FromAddress)
	}
	chainID := big.NewInt(ch.ID)
	to := common.HexToAddress(txReq.To)
	log := b.logger.WithFields(logrus.Fields{"chain": ch.Key, "quote_id": q.ID, "from": from.Hex()})

	out := &models.SignedExecution{ChainID: ch.ID}

	if !ch.IsNative(q.FromToken.Address) {
		spender := to
		if common.IsHexAddress(q.ApprovalAddress) {
			spender = common.HexToAddress(q.ApprovalAddress)
		}
		hash, err := b.ensureAllowance(ctx, client, ch, chainID, priv, from, q, spender)
		if err != nil {
			return nil, err
		}
		out.ApprovalTxID = hash
	}

	// Nonce is read after any approval confirmed so the swap follows it.
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	value, err := parseQuantity(txReq.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrMissingTransactionData, err)
	}

	gasPrice, err := parseQuantity(txReq.GasPrice)
	if err != nil || gasPrice.Sign() == 0 {
		gasPrice, err = client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
	}

	gasLimit := uint64(0)
	if gl, err := parseQuantity(txReq.GasLimit); err == nil && gl.IsUint64() {
		gasLimit = gl.Uint64()
	}
	if gasLimit == 0 {
		est, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = est + est/5
	}

	if err := checkNativeBalance(ctx, client, from, value, gasLimit, gasPrice); err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), priv)
	if err != nil {
		return nil, fmt.Errorf("sign swap: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode swap: %w", err)
	}

	out.Raw = raw
	out.TxID = signed.Hash().Hex()
	log.WithFields(logrus.Fields{"nonce": nonce, "gas": gasLimit, "tx_id": out.TxID}).Info("swap transaction signed")
	return out, nil
}

// ensureAllowance approves spender for the maximum amount when the current
// allowance is below the swap amount, and waits for the approval receipt.
func (b *evmBuilder) ensureAllowance(
	ctx context.Context,
	client EVMClient,
	ch chain.Chain,
	chainID *big.Int,
	priv *ecdsa.PrivateKey,
	owner common.Address,
	q *models.Quote,
	spender common.Address,
) (string, error) {
	token := common.HexToAddress(q.FromToken.Address)
	amount, ok := models.ParseAmount(q.FromAmount)
	if !ok {
		return "", fmt.Errorf("%w: fromAmount %q", ErrMissingTransactionData, q.FromAmount)
	}

	allowance, err := b.allowance(ctx, client, token, owner, spender)
	if err != nil {
		return "", err
	}
	if allowance.Cmp(amount) >= 0 {
		return "", nil
	}

	log := b.logger.WithFields(logrus.Fields{"chain": ch.Key, "token": token.Hex(), "spender": spender.Hex()})
	log.Info("allowance too low, sending approval")

	calldata, err := parsedERC20.Pack("approve", spender, math.MaxBig256)
	if err != nil {
		return "", fmt.Errorf("%w: pack approve: %v", ErrApprovalFailed, err)
	}
	nonce, err := client.PendingNonceAt(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrApprovalFailed, err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price: %v", ErrApprovalFailed, err)
	}
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: owner, To: &token, Data: calldata})
	if err != nil {
		return "", fmt.Errorf("%w: estimate: %v", ErrApprovalFailed, err)
	}
	gas += gas / 5

	if err := checkNativeBalance(ctx, client, owner, new(big.Int), gas, gasPrice); err != nil {
		return "", err
	}

	tx := types.NewTx(&types.LegacyTx{Nonce: nonce, To: &token, Value: new(big.Int), Gas: gas, GasPrice: gasPrice, Data: calldata})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), priv)
	if err != nil {
		return "", fmt.Errorf("%w: sign: %v", ErrApprovalFailed, err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		metrics.ApprovalsTotal.WithLabelValues(ch.Key, "send_failed").Inc()
		return "", fmt.Errorf("%w: send: %v", ErrApprovalFailed, err)
	}

	if err := b.awaitReceipt(ctx, client, signed.Hash()); err != nil {
		metrics.ApprovalsTotal.WithLabelValues(ch.Key, "failed").Inc()
		return "", err
	}
	metrics.ApprovalsTotal.WithLabelValues(ch.Key, "ok").Inc()
	log.WithField("approval_tx", signed.Hash().Hex()).Info("approval confirmed")
	return signed.Hash().Hex(), nil
}

func (b *evmBuilder) allowance(ctx context.Context, client EVMClient, token, owner, spender common.Address) (*big.Int, error) {
	calldata, err := parsedERC20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{From: owner, To: &token, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("read allowance: %w", err)
	}
	vals, err := parsedERC20.Unpack("allowance", res)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("decode allowance: %v", err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode allowance: unexpected type %T", vals[0])
	}
	return v, nil
}

// awaitReceipt polls with backoff until the receipt appears or the approval
// timeout elapses.
func (b *evmBuilder) awaitReceipt(ctx context.Context, client EVMClient, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, b.approvalTimeout)
	defer cancel()

	backoff := b.receiptPoll
	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: approval %s reverted", ErrApprovalFailed, hash.Hex())
			}
			return nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			b.logger.WithError(err).Debug("receipt lookup failed, retrying")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: approval %s not confirmed: %v", ErrApprovalFailed, hash.Hex(), ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < 8*b.receiptPoll {
			backoff *= 2
		}
	}
}

func checkNativeBalance(ctx context.Context, client EVMClient, from common.Address, value *big.Int, gas uint64, gasPrice *big.Int) error {
	balance, err := client.BalanceAt(ctx, from, nil)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	need := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	need.Add(need, value)
	if balance.Cmp(need) < 0 {
		return fmt.Errorf("%w: have %s wei, need %s wei", ErrInsufficientNative, balance, need)
	}
	return nil
}

// parseQuantity accepts 0x-prefixed hex or decimal. Empty means zero.
func parseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
		if s == "" {
			return new(big.Int), nil
		}
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return n, nil
}

// wipeECDSA zeroes the scalar's limbs in place before resetting D. The vault
// bytes are zeroed separately.
func wipeECDSA(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	words := k.D.Bits()
	words = words[:cap(words)]
	for i := range words {
		words[i] = 0
	}
	k.D.SetInt64(0)
}

package swapengine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	polygonUSDC = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
	routerAddr  = "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"
)

type fakeEVM struct {
	mu            sync.Mutex
	allowance     *big.Int
	balance       *big.Int
	nonce         uint64
	gasPrice      *big.Int
	estimate      uint64
	receiptStatus uint64
	receiptMisses int
	sent          []*types.Transaction
	allowanceHits int
}

func newFakeEVM() *fakeEVM {
	return &fakeEVM{
		allowance:     new(big.Int),
		balance:       new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
		nonce:         7,
		gasPrice:      big.NewInt(30e9),
		estimate:      100_000,
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (f *fakeEVM) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowanceHits++
	return parsedERC20.Methods["allowance"].Outputs.Pack(f.allowance)
}

func (f *fakeEVM) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce + uint64(len(f.sent)), nil
}

func (f *fakeEVM) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeEVM) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, nil
}

func (f *fakeEVM) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeEVM) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEVM) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptMisses > 0 {
		f.receiptMisses--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.receiptStatus}, nil
}

func newEVMBuilder(client *fakeEVM, approvalTimeout time.Duration) *Builder {
	return NewBuilder(BuilderConfig{
		EVMClients:           map[int64]EVMClient{137: client},
		ApprovalTimeout:      approvalTimeout,
		ApprovalPollInterval: time.Millisecond,
	})
}

func evmKeys(t *testing.T) (*ecdsa.PrivateKey, *vault.Keys) {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k, vault.NewKeys(map[string][]byte{"evm": crypto.FromECDSA(k)})
}

func evmQuote(from common.Address, fromToken string) *models.Quote {
	return &models.Quote{
		ID:          "q-evm",
		FromChain:   137,
		ToChain:     42161,
		FromToken:   models.Token{ChainID: 137, Address: fromToken, Symbol: "USDC", Decimals: 6},
		ToToken:     models.Token{ChainID: 42161, Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Symbol: "USDC", Decimals: 6},
		FromAmount:  "1000000",
		ToAmount:    "998000",
		ToAmountMin: "993010",
		FromAddress: from.Hex(),
		ToAddress:   from.Hex(),
		Transaction: &models.TransactionRequest{
			ChainID:  137,
			To:       routerAddr,
			Data:     "0xdeadbeef",
			Value:    "0x0",
			GasLimit: "0x30d40",
			GasPrice: "30000000000",
		},
	}
}

func decodeSigned(t *testing.T, raw []byte, chainID int64) (*types.Transaction, common.Address) {
	t.Helper()
	tx := new(types.Transaction)
	require.NoError(t, tx.UnmarshalBinary(raw))
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(chainID)), tx)
	require.NoError(t, err)
	return tx, sender
}

func TestEVM_NativeSkipsAllowance(t *testing.T) {
	client := newFakeEVM()
	b := newEVMBuilder(client, time.Second)
	k, keys := evmKeys(t)
	from := crypto.PubkeyToAddress(k.PublicKey)

	q := evmQuote(from, chain.EVMNative)
	q.Transaction.Value = "1000000"
	out, err := b.BuildAndSign(context.Background(), q, keys)
	require.NoError(t, err)

	assert.Zero(t, client.allowanceHits)
	assert.Empty(t, client.sent)
	assert.Empty(t, out.ApprovalTxID)
	assert.Equal(t, int64(137), out.ChainID)

	tx, sender := decodeSigned(t, out.Raw, 137)
	assert.Equal(t, from, sender)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(200_000), tx.Gas())
	assert.Equal(t, big.NewInt(30e9), tx.GasPrice())
	assert.Equal(t, big.NewInt(1000000), tx.Value())
	assert.Equal(t, common.HexToAddress(routerAddr), *tx.To())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, tx.Data())
	assert.Equal(t, tx.Hash().Hex(), out.TxID)
	assert.True(t, keys.Wiped())
}

func TestEVM_ApprovesMaxThenSwapsWithNextNonce(t *testing.T) {
	client := newFakeEVM()
	client.receiptMisses = 2
	b := newEVMBuilder(client, time.Second)
	k, keys := evmKeys(t)
	from := crypto.PubkeyToAddress(k.PublicKey)

	q := evmQuote(from, polygonUSDC)
	q.ApprovalAddress = "0x2222222222222222222222222222222222222222"
	out, err := b.BuildAndSign(context.Background(), q, keys)
	require.NoError(t, err)

	require.Len(t, client.sent, 1)
	approval := client.sent[0]
	assert.Equal(t, common.HexToAddress(polygonUSDC), *approval.To())
	assert.Equal(t, uint64(7), approval.Nonce())
	assert.Equal(t, approval.Hash().Hex(), out.ApprovalTxID)

	method := parsedERC20.Methods["approve"]
	assert.Equal(t, method.ID, approval.Data()[:4])
	args, err := method.Inputs.Unpack(approval.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(q.ApprovalAddress), args[0])
	assert.Equal(t, 0, math.MaxBig256.Cmp(args[1].(*big.Int)))

	swap, sender := decodeSigned(t, out.Raw, 137)
	assert.Equal(t, from, sender)
	assert.Equal(t, uint64(8), swap.Nonce())
}

func TestEVM_SufficientAllowanceSendsNoApproval(t *testing.T) {
	client := newFakeEVM()
	client.allowance = big.NewInt(5_000_000)
	b := newEVMBuilder(client, time.Second)
	k, keys := evmKeys(t)

	out, err := b.BuildAndSign(context.Background(), evmQuote(crypto.PubkeyToAddress(k.PublicKey), polygonUSDC), keys)
	require.NoError(t, err)
	assert.Equal(t, 1, client.allowanceHits)
	assert.Empty(t, client.sent)
	assert.Empty(t, out.ApprovalTxID)
}

func TestEVM_ApprovalFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakeEVM)
		timeout time.Duration
	}{
		{
			name:    "reverted",
			setup:   func(f *fakeEVM) { f.receiptStatus = types.ReceiptStatusFailed },
			timeout: time.Second,
		},
		{
			name:    "never mined",
			setup:   func(f *fakeEVM) { f.receiptMisses = 1 << 20 },
			timeout: 20 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeEVM()
			tt.setup(client)
			b := newEVMBuilder(client, tt.timeout)
			k, keys := evmKeys(t)

			out, err := b.BuildAndSign(context.Background(), evmQuote(crypto.PubkeyToAddress(k.PublicKey), polygonUSDC), keys)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrApprovalFailed)
			assert.Len(t, client.sent, 1, "only the approval was sent")
			assert.True(t, keys.Wiped())
		})
	}
}

func TestEVM_InsufficientNative(t *testing.T) {
	client := newFakeEVM()
	client.balance = big.NewInt(1)
	b := newEVMBuilder(client, time.Second)
	k, keys := evmKeys(t)

	q := evmQuote(crypto.PubkeyToAddress(k.PublicKey), chain.EVMNative)
	_, err := b.BuildAndSign(context.Background(), q, keys)
	assert.ErrorIs(t, err, ErrInsufficientNative)
	assert.True(t, keys.Wiped())
}

func TestEVM_EstimatesGasWithHeadroom(t *testing.T) {
	client := newFakeEVM()
	b := newEVMBuilder(client, time.Second)
	k, keys := evmKeys(t)

	q := evmQuote(crypto.PubkeyToAddress(k.PublicKey), chain.EVMNative)
	q.Transaction.GasLimit = ""
	q.Transaction.GasPrice = ""
	out, err := b.BuildAndSign(context.Background(), q, keys)
	require.NoError(t, err)

	tx, _ := decodeSigned(t, out.Raw, 137)
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, client.gasPrice, tx.GasPrice())
}

func TestEVM_Rejections(t *testing.T) {
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(q *models.Quote)
		want   error
	}{
		{"quote for another wallet", func(q *models.Quote) { q.FromAddress = crypto.PubkeyToAddress(other.PublicKey).Hex() }, ErrSignerMismatch},
		{"no transaction", func(q *models.Quote) { q.Transaction = nil }, ErrMissingTransactionData},
		{"bad calldata", func(q *models.Quote) { q.Transaction.Data = "not-hex" }, ErrMissingTransactionData},
		{"unconfigured chain", func(q *models.Quote) { q.FromChain = 8453 }, ErrUnsupportedChain},
		{"unknown chain", func(q *models.Quote) { q.FromChain = 999 }, ErrUnsupportedChain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeEVM()
			b := newEVMBuilder(client, time.Second)
			k, keys := evmKeys(t)
			q := evmQuote(crypto.PubkeyToAddress(k.PublicKey), chain.EVMNative)
			tt.mutate(q)

			_, err := b.BuildAndSign(context.Background(), q, keys)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, client.sent)
			assert.True(t, keys.Wiped())
		})
	}
}

func TestEVM_MissingSlot(t *testing.T) {
	b := newEVMBuilder(newFakeEVM(), time.Second)
	keys := vault.NewKeys(map[string][]byte{"solana": make([]byte, 64)})

	_, err := b.BuildAndSign(context.Background(), evmQuote(common.Address{}, chain.EVMNative), keys)
	assert.True(t, errors.Is(err, vault.ErrUnavailable))
	assert.True(t, keys.Wiped())
}

func TestWipeECDSA_ZeroesScalarWords(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	words := priv.D.Bits()
	require.NotEmpty(t, words)

	wipeECDSA(priv)

	assert.Zero(t, priv.D.Sign())
	for i, w := range words {
		assert.Zero(t, w, "word %d", i)
	}
	wipeECDSA(priv)
	wipeECDSA(nil)
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"", 0, true},
		{"0x", 0, true},
		{"0x1f", 31, true},
		{"0X10", 16, true},
		{"12345", 12345, true},
		{"-1", 0, false},
		{"0xzz", 0, false},
		{"1.5", 0, false},
	}
	for _, tt := range tests {
		got, err := parseQuantity(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.Int64(), tt.in)
	}
}

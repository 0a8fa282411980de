package swapengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/broadcast"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/settlement"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage/memory"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPIN = "482913"

type countingVault struct {
	*vault.Vault
	calls int32
}

func (v *countingVault) Unlock(ctx context.Context, pin string) (*vault.Keys, error) {
	atomic.AddInt32(&v.calls, 1)
	return v.Vault.Unlock(ctx, pin)
}

// stubSigner checks the slot it needs exists and wipes like Builder does.
type stubSigner struct {
	wiped []*vault.Keys
	err   error
}

func (s *stubSigner) BuildAndSign(_ context.Context, q *models.Quote, keys *vault.Keys) (*models.SignedExecution, error) {
	defer keys.Wipe()
	s.wiped = append(s.wiped, keys)
	if s.err != nil {
		return nil, s.err
	}
	if _, err := keys.For("evm"); err != nil {
		return nil, err
	}
	return &models.SignedExecution{ChainID: q.FromChain, Raw: []byte{0x02, 0xf8}, TxID: "0xlocal"}, nil
}

type stubSender struct {
	txID  string
	err   error
	calls int32
}

func (s *stubSender) Submit(context.Context, int64, []byte) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.txID, s.err
}

type stubGate struct {
	paused map[string]bool
	err    error
}

func (g *stubGate) Allowed(_ context.Context, chainKey string) (bool, error) {
	return !g.paused[chainKey], g.err
}

type scriptedStatus struct {
	mu      sync.Mutex
	results []models.SwapStatus
}

func (s *scriptedStatus) Status(context.Context, string, int64, int64) (models.SwapStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return st, nil
}

type countingRegistry struct {
	*memory.Assets
	calls int32
}

func (a *countingRegistry) Add(ctx context.Context, asset models.KnownAsset) (bool, error) {
	atomic.AddInt32(&a.calls, 1)
	return a.Assets.Add(ctx, asset)
}

type failingLedger struct{ storage.SwapLedger }

func (failingLedger) Create(context.Context, *models.SwapRecord) error {
	return errors.New("connection reset")
}

type engineFixture struct {
	vault   *countingVault
	signer  *stubSigner
	sender  *stubSender
	ledger  storage.SwapLedger
	assets  *countingRegistry
	status  *scriptedStatus
	tracker *settlement.Tracker
	gate    *stubGate
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	v, err := vault.New(vault.Config{Store: vault.NewMemoryStore(), Params: vault.Params{N: 1 << 10, R: 8, P: 1}})
	require.NoError(t, err)
	require.NoError(t, v.Seal(context.Background(), testPIN, map[string][]byte{"evm": make32(0x42)}))

	f := &engineFixture{
		vault:  &countingVault{Vault: v},
		signer: &stubSigner{},
		sender: &stubSender{txID: "0xabc123"},
		ledger: memory.NewLedger(),
		assets: &countingRegistry{Assets: memory.NewAssets()},
		status: &scriptedStatus{results: []models.SwapStatus{
			{Status: models.PollPending},
			{Status: models.PollDone, Substatus: "COMPLETED", ReceivingTxID: "0xdest", ReceivingAmount: "998000"},
		}},
		gate: &stubGate{paused: map[string]bool{}},
	}
	return f
}

func make32(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}
	return out
}

func (f *engineFixture) engine(t *testing.T, risk RiskConfig) *Engine {
	t.Helper()
	tr, err := settlement.New(settlement.Config{
		Source:      f.status,
		Ledger:      f.ledger,
		Assets:      f.assets,
		Balances:    memory.NopRefresher{},
		Interval:    5 * time.Millisecond,
		PollTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(tr.Shutdown)
	f.tracker = tr

	e, err := NewEngine(EngineConfig{
		Vault:   f.vault,
		Builder: f.signer,
		Sender:  f.sender,
		Ledger:  f.ledger,
		Tracker: tr,
		Gate:    f.gate,
		Risk:    risk,
	})
	require.NoError(t, err)
	return e
}

func crossChainQuote() *models.Quote {
	return &models.Quote{
		ID:          "q-1",
		FromChain:   137,
		ToChain:     42161,
		FromToken:   models.Token{ChainID: 137, Address: polygonUSDC, Symbol: "USDC", Decimals: 6, PriceUSD: 1},
		ToToken:     models.Token{ChainID: 42161, Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Symbol: "USDC", Decimals: 6, PriceUSD: 1},
		FromAmount:  "1000000",
		ToAmount:    "998000",
		ToAmountMin: "993010",
		SlippageBps: 50,
		FetchedAt:   time.Now(),
	}
}

func TestEngine_ExecuteTracksToDone(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(t, DefaultRiskConfig())
	ctx := context.Background()

	res, err := e.Execute(ctx, ExecuteRequest{Quote: crossChainQuote(), PIN: testPIN})
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", res.TxID)
	require.NotNil(t, res.Handle)
	assert.Equal(t, models.StatusPending, res.Record.Status)
	require.Len(t, f.signer.wiped, 1)
	assert.True(t, f.signer.wiped[0].Wiped())

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.Equal(t, settlement.StateSettled, res.Handle.Wait(waitCtx))

	rec, err := f.ledger.Get(ctx, "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, rec.Status)
	assert.Equal(t, "0xdest", rec.ReceivingTxID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.assets.calls))

	known, err := f.assets.List(ctx, 42161)
	require.NoError(t, err)
	require.Len(t, known, 1)
	assert.Equal(t, "USDC", known[0].Symbol)

	assert.InDelta(t, 1.0, e.RiskStatus().DailyUsedUSD, 1e-9)
}

func TestEngine_WrongPinSendsNothing(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(t, DefaultRiskConfig())

	_, err := e.Execute(context.Background(), ExecuteRequest{Quote: crossChainQuote(), PIN: "000000"})
	assert.ErrorIs(t, err, vault.ErrInvalidPin)
	assert.Empty(t, f.signer.wiped)
	assert.Zero(t, atomic.LoadInt32(&f.sender.calls))
}

func TestEngine_PausedChainSkipsVault(t *testing.T) {
	f := newEngineFixture(t)
	f.gate.paused["polygon"] = true
	e := f.engine(t, DefaultRiskConfig())

	_, err := e.Execute(context.Background(), ExecuteRequest{Quote: crossChainQuote(), PIN: testPIN})
	assert.ErrorIs(t, err, ErrChainPaused)
	assert.Zero(t, atomic.LoadInt32(&f.vault.calls))

	f.gate.paused = map[string]bool{}
	f.gate.err = errors.New("redis down")
	_, err = e.Execute(context.Background(), ExecuteRequest{Quote: crossChainQuote(), PIN: testPIN})
	assert.ErrorIs(t, err, ErrChainPaused)
	assert.Zero(t, atomic.LoadInt32(&f.vault.calls))
}

func TestEngine_RiskRejections(t *testing.T) {
	tests := []struct {
		name   string
		risk   RiskConfig
		mutate func(*models.Quote)
	}{
		{"stale quote", DefaultRiskConfig(), func(q *models.Quote) { q.FetchedAt = time.Now().Add(-time.Hour) }},
		{"slippage", RiskConfig{MaxSlippageBps: 100}, func(q *models.Quote) { q.SlippageBps = 300 }},
		{"whitelist", RiskConfig{AllowedTokens: []string{"ETH"}}, func(*models.Quote) {}},
		{"value cap", RiskConfig{MaxSwapValueUSD: 0.5}, func(*models.Quote) {}},
		{"invalid amounts", DefaultRiskConfig(), func(q *models.Quote) { q.ToAmountMin = "999999" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			e := f.engine(t, tt.risk)
			q := crossChainQuote()
			tt.mutate(q)

			_, err := e.Execute(context.Background(), ExecuteRequest{Quote: q, PIN: testPIN})
			assert.ErrorIs(t, err, ErrQuoteRejected)
			assert.Zero(t, atomic.LoadInt32(&f.vault.calls))
		})
	}
}

func TestEngine_BroadcastRejectedLeavesNoRecord(t *testing.T) {
	f := newEngineFixture(t)
	f.sender.err = &broadcast.RejectedError{Reason: "insufficient funds for rent"}
	e := f.engine(t, DefaultRiskConfig())

	_, err := e.Execute(context.Background(), ExecuteRequest{Quote: crossChainQuote(), PIN: testPIN})
	assert.ErrorIs(t, err, broadcast.ErrRejected)
	assert.Contains(t, UserMessage(err), "insufficient funds for rent")

	list, err := f.ledger.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.tracker.Active())
}

func TestEngine_BuildErrorSurfaces(t *testing.T) {
	f := newEngineFixture(t)
	f.signer.err = ErrApprovalFailed
	e := f.engine(t, DefaultRiskConfig())

	_, err := e.Execute(context.Background(), ExecuteRequest{Quote: crossChainQuote(), PIN: testPIN})
	assert.ErrorIs(t, err, ErrApprovalFailed)
	require.Len(t, f.signer.wiped, 1)
	assert.True(t, f.signer.wiped[0].Wiped())
	assert.Zero(t, atomic.LoadInt32(&f.sender.calls))
}

func TestEngine_LedgerFailureAfterBroadcast(t *testing.T) {
	f := newEngineFixture(t)
	f.ledger = failingLedger{SwapLedger: memory.NewLedger()}
	e := f.engine(t, DefaultRiskConfig())

	res, err := e.Execute(context.Background(), ExecuteRequest{Quote: crossChainQuote(), PIN: testPIN})
	require.NoError(t, err, "a broadcast swap is never reported as failed")
	assert.Equal(t, "0xabc123", res.TxID)
	assert.Nil(t, res.Handle)
	assert.Empty(t, f.tracker.Active())
}

func TestRiskManager_DailyLimit(t *testing.T) {
	rm := NewRiskManager(RiskConfig{DailyLimitUSD: 2.5})
	q := crossChainQuote()

	assert.True(t, rm.CheckQuote(q).Allowed)
	rm.RecordSwap(q)
	rm.RecordSwap(q)

	res := rm.CheckQuote(q)
	assert.False(t, res.Allowed)
	assert.True(t, res.ExceedsDailyLimit)
	assert.InDelta(t, 2.0, res.DailyUsedUSD, 1e-9)

	// Usage older than a day no longer counts.
	rm.dailyTracker.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	assert.True(t, rm.CheckQuote(q).Allowed)
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "Incorrect PIN.", UserMessage(vault.ErrInvalidPin))
	assert.Equal(t, "Swaps on this network are temporarily disabled.", UserMessage(ErrChainPaused))
	assert.Equal(t, "Token approval failed. No swap was sent.", UserMessage(ErrApprovalFailed))
	assert.Equal(t, "Swap failed.", UserMessage(errors.New("boom")))
}

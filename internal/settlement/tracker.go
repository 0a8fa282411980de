// Package settlement follows submitted swaps until the routing service
// reports a terminal outcome, then records it exactly once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/constants"
	"github.com/aman-zulfiqar/crosschain-swap/internal/metrics"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/sirupsen/logrus"
)

// ErrStatusUnavailable wraps a poll that produced no answer.
var ErrStatusUnavailable = errors.New("settlement: status unavailable")

// StatusSource is the routing service's status endpoint.
type StatusSource interface {
	Status(ctx context.Context, txID string, fromChain, toChain int64) (models.SwapStatus, error)
}

// State is the lifecycle of one tracking loop.
type State string

const (
	StateTracking  State = "TRACKING"
	StateSettled   State = "SETTLED"
	StateCancelled State = "CANCELLED"
	// StateLost means polling gave up after too many consecutive failures.
	// The record stays PENDING and Reconcile picks it up again.
	StateLost State = "LOST"
)

type Config struct {
	Source    StatusSource
	Ledger    storage.SwapLedger
	Assets    storage.AssetRegistry
	Balances  storage.BalanceRefresher
	Observers []storage.OutcomeObserver

	Interval               time.Duration
	PollTimeout            time.Duration
	MaxConsecutiveFailures int

	Logger *logrus.Logger
}

// Tracker runs one polling goroutine per active transaction id.
type Tracker struct {
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time

	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	active map[string]*Handle
}

func New(cfg Config) (*Tracker, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("settlement: status source is nil")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("settlement: ledger is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = constants.DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = constants.DefaultPollTimeout
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = constants.DefaultMaxConsecutiveFailures
	}

	base, stop := context.WithCancel(context.Background())
	return &Tracker{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
		base:   base,
		stop:   stop,
		active: make(map[string]*Handle),
	}, nil
}

// Poll makes one status request. Any failure comes back as UNKNOWN.
func (t *Tracker) Poll(ctx context.Context, txID string, fromChain, toChain int64) models.SwapStatus {
	st, err := t.poll(ctx, txID, fromChain, toChain)
	if err != nil {
		t.logger.WithError(err).WithField("tx_id", txID).Debug("status poll failed")
		return models.SwapStatus{Status: models.PollUnknown}
	}
	return st
}

func (t *Tracker) poll(ctx context.Context, txID string, fromChain, toChain int64) (models.SwapStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.PollTimeout)
	defer cancel()

	st, err := t.cfg.Source.Status(ctx, txID, fromChain, toChain)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		return models.SwapStatus{}, fmt.Errorf("%w: %w", ErrStatusUnavailable, err)
	}
	metrics.PollsTotal.WithLabelValues(string(st.Status)).Inc()
	return st, nil
}

// Track starts polling rec until it settles. A second call for a txID that
// is already tracked returns the existing handle. The loop ends when ctx
// is done, on Cancel, or on Shutdown.
func (t *Tracker) Track(ctx context.Context, rec *models.SwapRecord) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.active[rec.TxID]; ok {
		return h
	}

	h := newHandle(rec.TxID)
	if rec.Status.Terminal() {
		h.finish(StateSettled)
		return h
	}

	loopCtx, cancel := context.WithCancel(ctx)
	stopOnShutdown := context.AfterFunc(t.base, cancel)
	h.cancel = func() {
		stopOnShutdown()
		cancel()
	}
	t.active[rec.TxID] = h
	metrics.TrackedSwaps.Inc()

	cp := *rec
	go t.run(loopCtx, h, &cp)
	return h
}

// Cancel stops tracking txID and waits for its loop to exit. No poll starts
// after Cancel returns.
func (t *Tracker) Cancel(txID string) bool {
	t.mu.Lock()
	h, ok := t.active[txID]
	t.mu.Unlock()
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

// Active lists the transaction ids currently tracked.
func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.active))
	for id := range t.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Handle returns the active handle for txID.
func (t *Tracker) Handle(txID string) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.active[txID]
	return h, ok
}

// Reconcile resumes tracking for every record still PENDING in the ledger.
func (t *Tracker) Reconcile(ctx context.Context) (int, error) {
	pending, err := t.cfg.Ledger.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending swaps: %w", err)
	}
	for _, rec := range pending {
		t.Track(t.base, rec)
	}
	if len(pending) > 0 {
		t.logger.WithField("count", len(pending)).Info("resumed tracking for pending swaps")
	}
	return len(pending), nil
}

// Shutdown cancels every loop and waits for them to exit.
func (t *Tracker) Shutdown() {
	t.stop()
	t.mu.Lock()
	handles := make([]*Handle, 0, len(t.active))
	for _, h := range t.active {
		handles = append(handles, h)
	}
	t.mu.Unlock()
	for _, h := range handles {
		<-h.done
	}
}

func (t *Tracker) run(ctx context.Context, h *Handle, rec *models.SwapRecord) {
	state := StateCancelled
	defer func() {
		t.mu.Lock()
		delete(t.active, rec.TxID)
		t.mu.Unlock()
		metrics.TrackedSwaps.Dec()
		h.finish(state)
	}()

	log := t.logger.WithFields(logrus.Fields{"tx_id": rec.TxID, "from_chain": rec.FromChain, "to_chain": rec.ToChain})
	log.Info("tracking settlement")

	failures := 0
	lastSubstatus := rec.Substatus
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		st, err := t.poll(ctx, rec.TxID, rec.FromChain, rec.ToChain)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			log.WithError(err).WithField("failures", failures).Debug("status poll failed")
			if t.cfg.MaxConsecutiveFailures > 0 && failures >= t.cfg.MaxConsecutiveFailures {
				log.WithField("failures", failures).Warn("tracking lost, swap remains pending")
				state = StateLost
				return
			}
			timer.Reset(t.cfg.Interval)
			continue
		}
		failures = 0
		h.observe(st)

		switch st.Status {
		case models.PollDone, models.PollFailed:
			if t.settle(ctx, log, rec, st) {
				state = StateSettled
				return
			}
		case models.PollPending, models.PollNotFound:
			if st.Substatus != "" && st.Substatus != lastSubstatus {
				if err := t.cfg.Ledger.UpdatePending(ctx, rec.TxID, st.Substatus, st.SubstatusMessage); err != nil {
					log.WithError(err).Warn("failed to record pending progress")
				} else {
					lastSubstatus = st.Substatus
				}
			}
		}
		timer.Reset(t.cfg.Interval)
	}
}

// settle writes the terminal state and runs side effects when this call
// performed the transition. It returns false when the loop should retry.
func (t *Tracker) settle(ctx context.Context, log *logrus.Entry, rec *models.SwapRecord, st models.SwapStatus) bool {
	status := models.StatusFailed
	if st.Status == models.PollDone {
		status = models.StatusDone
	}
	fields := models.TerminalFields{
		Substatus:        st.Substatus,
		SubstatusMessage: st.SubstatusMessage,
		ReceivingTxID:    st.ReceivingTxID,
		CompletedAt:      t.now().UTC(),
	}
	if status == models.StatusDone {
		fields.ToAmount = st.ReceivingAmount
	}

	// Side effects must not be cut short by a Cancel racing the write.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.PollTimeout)
	defer cancel()

	applied, err := t.cfg.Ledger.UpdateTerminal(wctx, rec.TxID, status, fields)
	switch {
	case errors.Is(err, storage.ErrTerminalConflict):
		log.WithError(err).WithField("status", status).Error("conflicting terminal status, ignoring")
		return true
	case errors.Is(err, storage.ErrNotFound):
		log.WithError(err).Error("tracked swap missing from ledger")
		return true
	case err != nil:
		log.WithError(err).Warn("failed to record terminal status, will retry")
		return false
	case !applied:
		log.WithField("status", status).Debug("terminal status already recorded")
		return true
	}

	metrics.SettlementsTotal.WithLabelValues(string(status)).Inc()
	log.WithFields(logrus.Fields{"status": status, "receiving_tx": st.ReceivingTxID, "message": st.SubstatusMessage}).Info("swap settled")

	if status == models.StatusDone {
		t.onDone(wctx, log, rec)
	}

	settled, err := t.cfg.Ledger.Get(wctx, rec.TxID)
	if err != nil {
		log.WithError(err).Warn("failed to reload settled swap")
		return true
	}
	for _, o := range t.cfg.Observers {
		if err := o.OnSettled(wctx, settled); err != nil {
			log.WithError(err).Warn("settlement observer failed")
		}
	}
	return true
}

func (t *Tracker) onDone(ctx context.Context, log *logrus.Entry, rec *models.SwapRecord) {
	if t.cfg.Assets != nil {
		token := rec.ToToken
		token.ChainID = rec.ToChain
		added, err := t.cfg.Assets.Add(ctx, models.AssetFromToken(token))
		if err != nil {
			log.WithError(err).Warn("failed to register received asset")
		} else if added {
			log.WithFields(logrus.Fields{"chain": token.ChainID, "token": token.Symbol}).Info("registered received asset")
		}
	}
	if t.cfg.Balances != nil {
		chains := []int64{rec.FromChain}
		if rec.ToChain != rec.FromChain {
			chains = append(chains, rec.ToChain)
		}
		for _, id := range chains {
			if err := t.cfg.Balances.Refresh(ctx, id); err != nil {
				log.WithError(err).WithField("chain", id).Warn("balance refresh failed")
			}
		}
	}
}

// Handle observes one tracking loop.
type Handle struct {
	TxID string

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	last  models.SwapStatus
}

func newHandle(txID string) *Handle {
	return &Handle{TxID: txID, done: make(chan struct{}), state: StateTracking}
}

// Done is closed when the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the loop and waits for it to exit.
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

// Wait blocks until the loop exits or ctx ends, and returns the state.
func (h *Handle) Wait(ctx context.Context) State {
	select {
	case <-h.done:
	case <-ctx.Done():
	}
	return h.State()
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Last is the most recent successful poll result.
func (h *Handle) Last() models.SwapStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Handle) observe(st models.SwapStatus) {
	h.mu.Lock()
	h.last = st
	h.mu.Unlock()
}

func (h *Handle) finish(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
	close(h.done)
}

package aggregator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/google/uuid"
)

func normalizeToken(rt *rawToken, fallbackChain int64, fallbackAddress string) models.Token {
	if rt == nil {
		return models.Token{ChainID: fallbackChain, Address: fallbackAddress}
	}
	t := models.Token{
		ChainID:  rt.ChainID,
		Address:  strings.TrimSpace(rt.Address),
		Symbol:   strings.TrimSpace(rt.Symbol),
		Name:     strings.TrimSpace(rt.Name),
		Decimals: rt.Decimals,
		LogoURI:  rt.LogoURI,
		PriceUSD: parsePrice(rt.PriceUSD),
	}
	if t.ChainID == 0 {
		t.ChainID = fallbackChain
	}
	if t.Address == "" {
		t.Address = fallbackAddress
	}
	return t
}

// parsePrice accepts both "1.23" and 1.23.
func parsePrice(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	return f
}

// normalizeQuote converts the wire quote into a models.Quote, defaulting every
// optional field. req supplies values the response may omit.
func normalizeQuote(rq *rawQuote, req QuoteRequest, now time.Time) (*models.Quote, error) {
	if rq.Estimate == nil {
		return nil, fmt.Errorf("%w: quote has no estimate", ErrInvalidResponse)
	}
	action := rq.Action
	if action == nil {
		action = &rawAction{}
	}
	est := rq.Estimate

	q := &models.Quote{
		ID:              strings.TrimSpace(rq.ID),
		Tool:            rq.Tool,
		FromChain:       firstNonZero(action.FromChainID, req.FromChain),
		ToChain:         firstNonZero(action.ToChainID, req.ToChain),
		FromAmount:      firstNonEmpty(est.FromAmount, action.FromAmount, req.FromAmount),
		ToAmount:        strings.TrimSpace(est.ToAmount),
		ToAmountMin:     strings.TrimSpace(est.ToAmountMin),
		FromAddress:     firstNonEmpty(action.FromAddress, req.FromAddress),
		ToAddress:       firstNonEmpty(action.ToAddress, req.ToAddress, req.FromAddress),
		ApprovalAddress: strings.TrimSpace(est.ApprovalAddress),
		SlippageBps:     req.SlippageBps,
		GasCosts:        []models.GasCost{},
		FeeCosts:        []models.FeeCost{},
		FetchedAt:       now.UTC(),
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Tool == "" && rq.ToolDetails != nil {
		q.Tool = rq.ToolDetails.Key
	}
	if q.Tool == "" {
		q.Tool = est.Tool
	}
	q.FromToken = normalizeToken(action.FromToken, q.FromChain, req.FromToken)
	q.ToToken = normalizeToken(action.ToToken, q.ToChain, req.ToToken)

	if est.ExecutionDuration != nil && *est.ExecutionDuration > 0 {
		q.EstimatedDurationSeconds = int64(math.Ceil(*est.ExecutionDuration))
	}

	for _, g := range est.GasCosts {
		q.GasCosts = append(q.GasCosts, models.GasCost{
			Type:      g.Type,
			Amount:    g.Amount,
			AmountUSD: g.AmountUSD,
			Limit:     g.Limit,
			Token:     normalizeToken(g.Token, q.FromChain, ""),
		})
	}
	for _, f := range est.FeeCosts {
		q.FeeCosts = append(q.FeeCosts, models.FeeCost{
			Name:      f.Name,
			Amount:    f.Amount,
			AmountUSD: f.AmountUSD,
			Included:  f.Included,
			Token:     normalizeToken(f.Token, q.FromChain, ""),
		})
	}

	if q.ToAmountMin == "" {
		floor, err := deriveMinimum(q.ToAmount, req.SlippageBps)
		if err != nil {
			return nil, err
		}
		q.ToAmountMin = floor
	}

	if tr := rq.TransactionRequest; tr != nil && strings.TrimSpace(tr.Data) != "" {
		q.Transaction = &models.TransactionRequest{
			ChainID:  firstNonZero(tr.ChainID, q.FromChain),
			To:       tr.To,
			From:     tr.From,
			Data:     tr.Data,
			Value:    tr.Value,
			GasLimit: tr.GasLimit,
			GasPrice: tr.GasPrice,
		}
	}

	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return q, nil
}

// deriveMinimum applies slippage to toAmount when the aggregator omits toAmountMin.
func deriveMinimum(toAmount string, slippageBps uint16) (string, error) {
	to, ok := models.ParseAmount(toAmount)
	if !ok {
		return "", fmt.Errorf("%w: toAmount %q is not an integer", ErrInvalidResponse, toAmount)
	}
	n := new(big.Int).Mul(to, big.NewInt(int64(10000-int(slippageBps))))
	n.Quo(n, big.NewInt(10000))
	return n.String(), nil
}

func normalizeStatus(rs *rawStatus) models.SwapStatus {
	out := models.SwapStatus{
		Substatus:        rs.Substatus,
		SubstatusMessage: rs.SubstatusMessage,
	}
	switch strings.ToUpper(strings.TrimSpace(rs.Status)) {
	case "DONE":
		out.Status = models.PollDone
	case "FAILED", "INVALID":
		out.Status = models.PollFailed
	case "PENDING":
		out.Status = models.PollPending
	case "NOT_FOUND":
		out.Status = models.PollNotFound
	default:
		out.Status = models.PollUnknown
	}
	if r := rs.Receiving; r != nil {
		out.ReceivingChainID = r.ChainID
		out.ReceivingTxID = r.TxHash
		out.ReceivingAmount = r.Amount
		if r.Token != nil {
			t := normalizeToken(r.Token, r.ChainID, "")
			out.ReceivingToken = &t
		}
	}
	return out
}

func firstNonZero(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

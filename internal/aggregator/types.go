package aggregator

import "encoding/json"

// QuoteRequest describes a route to price. Amounts are integer strings in
// the source token's smallest unit.
type QuoteRequest struct {
	FromChain   int64
	ToChain     int64
	FromToken   string
	ToToken     string
	FromAmount  string
	FromAddress string
	ToAddress   string
	SlippageBps uint16
	// Order is passed through to the aggregator ("FASTEST", "CHEAPEST").
	Order string
}

// Wire shapes. These never leave the package; see normalize.go.

type rawToken struct {
	Address  string          `json:"address"`
	ChainID  int64           `json:"chainId"`
	Symbol   string          `json:"symbol"`
	Decimals int32           `json:"decimals"`
	Name     string          `json:"name"`
	LogoURI  string          `json:"logoURI"`
	PriceUSD json.RawMessage `json:"priceUSD"`
}

type rawFeeCost struct {
	Name      string    `json:"name"`
	Amount    string    `json:"amount"`
	AmountUSD string    `json:"amountUSD"`
	Token     *rawToken `json:"token"`
	Included  bool      `json:"included"`
}

type rawGasCost struct {
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	AmountUSD string    `json:"amountUSD"`
	Limit     string    `json:"limit"`
	Token     *rawToken `json:"token"`
}

type rawAction struct {
	FromChainID int64     `json:"fromChainId"`
	ToChainID   int64     `json:"toChainId"`
	FromToken   *rawToken `json:"fromToken"`
	ToToken     *rawToken `json:"toToken"`
	FromAmount  string    `json:"fromAmount"`
	FromAddress string    `json:"fromAddress"`
	ToAddress   string    `json:"toAddress"`
	Slippage    *float64  `json:"slippage"`
}

type rawEstimate struct {
	Tool              string       `json:"tool"`
	FromAmount        string       `json:"fromAmount"`
	ToAmount          string       `json:"toAmount"`
	ToAmountMin       string       `json:"toAmountMin"`
	ApprovalAddress   string       `json:"approvalAddress"`
	ExecutionDuration *float64     `json:"executionDuration"`
	FeeCosts          []rawFeeCost `json:"feeCosts"`
	GasCosts          []rawGasCost `json:"gasCosts"`
}

type rawTxRequest struct {
	ChainID  int64  `json:"chainId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit string `json:"gasLimit"`
	GasPrice string `json:"gasPrice"`
}

type rawToolDetails struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type rawQuote struct {
	ID                 string          `json:"id"`
	Type               string          `json:"type"`
	Tool               string          `json:"tool"`
	ToolDetails        *rawToolDetails `json:"toolDetails"`
	Action             *rawAction      `json:"action"`
	Estimate           *rawEstimate    `json:"estimate"`
	TransactionRequest *rawTxRequest   `json:"transactionRequest"`
}

type rawTokensResponse struct {
	Tokens map[string][]rawToken `json:"tokens"`
}

type rawReceiving struct {
	TxHash  string    `json:"txHash"`
	ChainID int64     `json:"chainId"`
	Amount  string    `json:"amount"`
	Token   *rawToken `json:"token"`
}

type rawStatus struct {
	Status           string        `json:"status"`
	Substatus        string        `json:"substatus"`
	SubstatusMessage string        `json:"substatusMessage"`
	Receiving        *rawReceiving `json:"receiving"`
}

type rawError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

package domain

// Bridge pricing constants.
const (
	SlippageBps      = 50  // 0.50%
	BridgeFeePercent = 0.1 // 0.1%

	// EstimatedTimeLabel is shown to users for every quote and submission.
	EstimatedTimeLabel = "~5 minutes"
)

// Quote is an indicative bridge quote. Monetary fields are decimal strings.
// Built per request and never persisted as-is.
type Quote struct {
	InputAmount    string     `json:"inputAmount"`
	InputToken     Symbol     `json:"inputToken"`
	InputUSDValue  string     `json:"inputUsdValue"`
	OutputAmount   string     `json:"outputAmount"`
	OutputToken    Symbol     `json:"outputToken"`
	SlippageBps    int        `json:"slippageBps"`
	FeePercent     float64    `json:"feePercent"`
	FeeAmount      string     `json:"feeAmount"`
	SlippageAmount string     `json:"slippageAmount"`
	EstimatedTime  string     `json:"estimatedTime"`
	ExchangeRate   string     `json:"exchangeRate"`
	Prices         PriceTable `json:"prices"`
}

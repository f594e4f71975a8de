// Package quote computes indicative bridge quotes from a price table.
//
// All arithmetic is decimal. Amounts, fees, slippage and the exchange rate are
// formatted with AmountPlaces decimals; the USD value with USDPlaces. Rounding is
// half away from zero.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"megabridge/internal/domain"
	"megabridge/internal/observability"
)

// Output precision.
const (
	AmountPlaces = 6
	USDPlaces    = 2
)

// Input bounds. An amount may carry at most MaxAmountScale decimals and may
// not exceed MaxAmount.
const (
	MaxAmountScale = 18
	maxAmountExp   = 15
	maxAmountLen   = 64
)

// MaxAmount is the largest accepted input amount.
var MaxAmount = decimal.New(1, maxAmountExp)

var (
	// ErrInvalidAmount is returned for an amount that is not a positive decimal.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrPriceUnavailable is returned when the table cannot price even the ETH default.
	ErrPriceUnavailable = errors.New("price unavailable")
)

var (
	bpsDenominator     = decimal.NewFromInt(10000)
	percentDenominator = decimal.NewFromInt(100)
	slippageRate       = decimal.NewFromInt(domain.SlippageBps).Div(bpsDenominator)
	feeRate            = decimal.NewFromFloat(domain.BridgeFeePercent).Div(percentDenominator)
)

// PriceProvider supplies the current price table. *pricing.Cache implements it.
type PriceProvider interface {
	Prices(ctx context.Context) (domain.PriceTable, error)
}

// Request is a quote request. All fields but Amount are optional.
type Request struct {
	Amount      string
	ChainID     domain.ChainKey // source chain; its token is used when InputToken is empty
	InputToken  string          // explicit source symbol, any case
	OutputToken string          // destination symbol, any case; ETH when empty
}

// Pair is a resolved source/destination token pair.
type Pair struct {
	Input  domain.Symbol
	Output domain.Symbol
}

// Calculator produces quotes against a PriceProvider.
type Calculator struct {
	prices PriceProvider
	chains domain.ChainTokenMap
}

// NewCalculator creates a calculator. A nil chains map uses DefaultChainTokens.
func NewCalculator(prices PriceProvider, chains domain.ChainTokenMap) *Calculator {
	if chains == nil {
		chains = domain.DefaultChainTokens()
	}
	return &Calculator{prices: prices, chains: chains}
}

// Quote validates the amount, fetches prices and computes the quote.
func (c *Calculator) Quote(ctx context.Context, req Request) (*domain.Quote, error) {
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		observability.RecordQuote("invalid_amount")
		return nil, err
	}

	table, err := c.prices.Prices(ctx)
	if err != nil {
		observability.RecordQuote("error")
		return nil, fmt.Errorf("get prices: %w", err)
	}

	q, err := Compute(strings.TrimSpace(req.Amount), amount, ResolvePair(c.chains, table, req), table)
	if err != nil {
		observability.RecordQuote("error")
		return nil, err
	}
	observability.RecordQuote("ok")
	return q, nil
}

// ParseAmount parses a strictly positive decimal amount no larger than MaxAmount.
// Exponent notation is accepted within the same bounds.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxAmountLen {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	// Bound the exponent first; GreaterThan rescales.
	if exp := d.Exponent(); exp < -MaxAmountScale || exp > maxAmountExp {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ResolvePair picks the source and destination symbols for req.
// An explicit input token wins over the chain lookup. Missing chain means the
// default source chain. Symbols the table cannot price resolve to ETH.
func ResolvePair(chains domain.ChainTokenMap, table domain.PriceTable, req Request) Pair {
	var input domain.Symbol
	switch {
	case strings.TrimSpace(req.InputToken) != "":
		input = domain.NormalizeSymbol(req.InputToken)
	case req.ChainID != "":
		input = chains.Token(req.ChainID)
	default:
		input = chains.Token(domain.ChainKeyBase)
	}
	if !table.Valid(input) {
		input = domain.SymbolETH
	}

	output := domain.NormalizeSymbol(req.OutputToken)
	if output == "" || !table.Valid(output) {
		output = domain.SymbolETH
	}

	return Pair{Input: input, Output: output}
}

// Compute builds the quote for amount of pair.Input into pair.Output.
// rawAmount is echoed back as InputAmount.
func Compute(rawAmount string, amount decimal.Decimal, pair Pair, table domain.PriceTable) (*domain.Quote, error) {
	if !table.Valid(pair.Input) || !table.Valid(pair.Output) {
		return nil, fmt.Errorf("%w: %s/%s", ErrPriceUnavailable, pair.Input, pair.Output)
	}
	srcPrice := table[pair.Input]
	dstPrice := table[pair.Output]

	src := decimal.NewFromFloat(srcPrice)
	dst := decimal.NewFromFloat(dstPrice)

	rate := src.Div(dst)
	usdValue := amount.Mul(src)
	gross := amount.Mul(src).Div(dst)
	slippage := gross.Mul(slippageRate)
	fee := gross.Mul(feeRate)
	net := gross.Sub(slippage).Sub(fee)

	prices := domain.PriceTable{
		pair.Input:  srcPrice,
		pair.Output: dstPrice,
	}
	if table.Valid(domain.SymbolETH) {
		prices[domain.SymbolETH] = table[domain.SymbolETH]
	}

	return &domain.Quote{
		InputAmount:    rawAmount,
		InputToken:     pair.Input,
		InputUSDValue:  usdValue.StringFixed(USDPlaces),
		OutputAmount:   net.StringFixed(AmountPlaces),
		OutputToken:    pair.Output,
		SlippageBps:    domain.SlippageBps,
		FeePercent:     domain.BridgeFeePercent,
		FeeAmount:      fee.StringFixed(AmountPlaces),
		SlippageAmount: slippage.StringFixed(AmountPlaces),
		EstimatedTime:  domain.EstimatedTimeLabel,
		ExchangeRate:   rate.StringFixed(AmountPlaces),
		Prices:         prices,
	}, nil
}

package pricing

import "megabridge/internal/domain"

// ConstantPrices seed every aggregation before any source is merged.
var ConstantPrices = domain.PriceTable{
	domain.SymbolUSDC: 1,
	domain.SymbolXDAI: 1,
}

// FallbackPrices are last-resort values for symbols no source could price.
var FallbackPrices = domain.PriceTable{
	domain.SymbolETH:     3500,
	domain.SymbolSOL:     180,
	domain.SymbolMATIC:   0.5,
	domain.SymbolBNB:     600,
	domain.SymbolAVAX:    35,
	domain.SymbolFTM:     0.5,
	domain.SymbolCRO:     0.1,
	domain.SymbolMNT:     0.8,
	domain.SymbolHYPE:    25,
	domain.SymbolXDAI:    1,
	domain.SymbolUSDC:    1,
	domain.SymbolFLUFFEY: 0.0001,
	domain.SymbolMEKA:    0.00002,
	domain.SymbolKUMA:    0.000015,
	domain.SymbolSIGMA:   0.00001,
}

// RequiredSymbols returns the symbols every published table must contain.
func RequiredSymbols() []domain.Symbol {
	return FallbackPrices.Symbols()
}

package domain

import (
	"math"
	"sort"
	"strings"
)

// Symbol is a canonical token ticker: trimmed and upper-case.
type Symbol string

// Well-known symbols.
const (
	SymbolETH     Symbol = "ETH"
	SymbolSOL     Symbol = "SOL"
	SymbolMATIC   Symbol = "MATIC"
	SymbolBNB     Symbol = "BNB"
	SymbolAVAX    Symbol = "AVAX"
	SymbolFTM     Symbol = "FTM"
	SymbolCRO     Symbol = "CRO"
	SymbolMNT     Symbol = "MNT"
	SymbolXDAI    Symbol = "XDAI"
	SymbolHYPE    Symbol = "HYPE"
	SymbolUSDC    Symbol = "USDC"
	SymbolFLUFFEY Symbol = "FLUFFEY"
	SymbolMEKA    Symbol = "MEKA"
	SymbolKUMA    Symbol = "KUMA"
	SymbolSIGMA   Symbol = "SIGMA"
)

// NormalizeSymbol returns the canonical form of a ticker.
func NormalizeSymbol(s string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(s)))
}

// String returns the string representation of Symbol.
func (s Symbol) String() string {
	return string(s)
}

// PriceTable maps symbols to USD prices.
type PriceTable map[Symbol]float64

// ValidPrice reports whether p is finite and strictly positive.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// Valid reports whether the table holds a usable price for s.
func (t PriceTable) Valid(s Symbol) bool {
	p, ok := t[s]
	return ok && ValidPrice(p)
}

// Clone returns a copy of the table.
func (t PriceTable) Clone() PriceTable {
	out := make(PriceTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Merge copies every valid price from other into t, overwriting existing entries.
// Invalid prices in other never replace anything.
func (t PriceTable) Merge(other PriceTable) {
	for k, v := range other {
		if ValidPrice(v) {
			t[k] = v
		}
	}
}

// Subset returns a new table holding only the given symbols that are present in t.
func (t PriceTable) Subset(symbols ...Symbol) PriceTable {
	out := make(PriceTable, len(symbols))
	for _, s := range symbols {
		if p, ok := t[s]; ok {
			out[s] = p
		}
	}
	return out
}

// Symbols returns the table keys sorted alphabetically.
func (t PriceTable) Symbols() []Symbol {
	out := make([]Symbol, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

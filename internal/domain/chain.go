package domain

import (
	"strconv"
	"strings"
)

// ChainKey identifies a source chain: a decimal EVM chain id ("8453")
// or the reserved non-EVM marker ChainKeySolana.
type ChainKey string

const (
	// ChainKeySolana is the reserved key for Solana.
	ChainKeySolana ChainKey = "solana"

	// ChainKeyBase is the default source chain.
	ChainKeyBase ChainKey = "8453"

	// MegaETHChainID is the destination chain for every bridge transaction.
	MegaETHChainID int64 = 4326

	// MegaETHNetworkSlug is the chain slug DEX aggregators use for MegaETH.
	MegaETHNetworkSlug = "megaeth"
)

// ParseChainKey parses a chain identifier. It accepts positive integers and
// the Solana marker (case-insensitive). ok is false for anything else.
func ParseChainKey(raw string) (ChainKey, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", false
	}
	if raw == string(ChainKeySolana) {
		return ChainKeySolana, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", false
	}
	return ChainKey(strconv.FormatInt(id, 10)), true
}

// ChainKeyFromID returns the key for an EVM chain id.
func ChainKeyFromID(id int64) ChainKey {
	return ChainKey(strconv.FormatInt(id, 10))
}

// IsSolana reports whether the key is the Solana marker.
func (k ChainKey) IsSolana() bool {
	return k == ChainKeySolana
}

// EVMChainID returns the numeric chain id, or 0 for non-EVM keys.
func (k ChainKey) EVMChainID() int64 {
	id, err := strconv.ParseInt(string(k), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// String returns the string representation of ChainKey.
func (k ChainKey) String() string {
	return string(k)
}

// ChainTokenMap maps a chain to its native/bridgeable token.
type ChainTokenMap map[ChainKey]Symbol

// Token returns the token for the chain, defaulting to ETH when unmapped.
func (m ChainTokenMap) Token(k ChainKey) Symbol {
	if s, ok := m[k]; ok {
		return s
	}
	return SymbolETH
}

// DefaultChainTokens returns the built-in chain → token table.
func DefaultChainTokens() ChainTokenMap {
	return ChainTokenMap{
		"1":       SymbolETH,   // Ethereum
		"8453":    SymbolETH,   // Base
		"42161":   SymbolETH,   // Arbitrum One
		"10":      SymbolETH,   // Optimism
		"324":     SymbolETH,   // zkSync Era
		"59144":   SymbolETH,   // Linea
		"534352":  SymbolETH,   // Scroll
		"81457":   SymbolETH,   // Blast
		"1101":    SymbolETH,   // Polygon zkEVM
		"7777777": SymbolETH,   // Zora
		"34443":   SymbolETH,   // Mode
		"169":     SymbolETH,   // Manta Pacific
		"137":     SymbolMATIC, // Polygon
		"56":      SymbolBNB,   // BNB Chain
		"43114":   SymbolAVAX,  // Avalanche C-Chain
		"250":     SymbolFTM,   // Fantom
		"25":      SymbolCRO,   // Cronos
		"5000":    SymbolMNT,   // Mantle
		"100":     SymbolXDAI,  // Gnosis
		"999":     SymbolHYPE,  // HyperEVM

		ChainKeySolana: SymbolSOL,
	}
}

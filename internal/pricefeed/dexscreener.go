package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"megabridge/internal/domain"
)

// DexScreenerSource prices tokens from DEX pairs returned by the DexScreener API.
type DexScreenerSource struct {
	baseURL        string
	tokens         map[domain.Symbol]string
	preferredChain string
	preferredDex   string
	client         *Client
	logger         *zap.Logger
}

// DexScreenerConfig configures a DexScreenerSource.
type DexScreenerConfig struct {
	BaseURL        string                   // e.g. https://api.dexscreener.com
	Tokens         map[domain.Symbol]string // defaults to MegaETHTokens
	PreferredChain string                   // chain slug, defaults to "megaeth"
	PreferredDex   string                   // dex id, optional
}

// NewDexScreenerSource creates a DexScreener source.
func NewDexScreenerSource(cfg DexScreenerConfig, client *Client, logger *zap.Logger) *DexScreenerSource {
	if cfg.Tokens == nil {
		cfg.Tokens = MegaETHTokens
	}
	if cfg.PreferredChain == "" {
		cfg.PreferredChain = domain.MegaETHNetworkSlug
	}
	tokens := make(map[domain.Symbol]string, len(cfg.Tokens))
	for s, addr := range cfg.Tokens {
		tokens[s] = strings.ToLower(addr)
	}
	return &DexScreenerSource{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		tokens:         tokens,
		preferredChain: strings.ToLower(cfg.PreferredChain),
		preferredDex:   strings.ToLower(cfg.PreferredDex),
		client:         client,
		logger:         orNop(logger),
	}
}

// Name implements Source.
func (s *DexScreenerSource) Name() string {
	return "dexscreener"
}

// DexPair is the subset of a DexScreener pair used for pricing.
type DexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD string `json:"priceUsd"`
}

type dexTokensResponse struct {
	Pairs []*DexPair `json:"pairs"`
}

// Fetch implements Source.
func (s *DexScreenerSource) Fetch(ctx context.Context, symbols []domain.Symbol) domain.PriceTable {
	requested := symbolSet(symbols)
	wanted := make(map[domain.Symbol]string)
	for sym, addr := range s.tokens {
		if wants(requested, sym) {
			wanted[sym] = addr
		}
	}
	if len(wanted) == 0 {
		return domain.PriceTable{}
	}

	return guard(ctx, s.Name(), s.logger, func(ctx context.Context) (domain.PriceTable, error) {
		addrs := make([]string, 0, len(wanted))
		for _, addr := range wanted {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)

		var resp dexTokensResponse
		endpoint := s.baseURL + "/latest/dex/tokens/" + strings.Join(addrs, ",")
		if err := s.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		if resp.Pairs == nil {
			return nil, errors.New("response without pairs")
		}

		// token address → pairs in response order
		byToken := make(map[string][]*DexPair)
		for _, p := range resp.Pairs {
			if p == nil {
				continue
			}
			addr := strings.ToLower(p.BaseToken.Address)
			byToken[addr] = append(byToken[addr], p)
		}

		out := make(domain.PriceTable, len(wanted))
		for sym, addr := range wanted {
			pair := SelectPair(byToken[addr], s.preferredChain, s.preferredDex)
			if pair == nil {
				continue
			}
			price, err := strconv.ParseFloat(pair.PriceUSD, 64)
			if err != nil {
				s.logger.Debug("skip pair with unparsable price",
					zap.String("symbol", sym.String()),
					zap.String("pair", pair.PairAddress),
					zap.String("price", pair.PriceUSD),
				)
				continue
			}
			out[sym] = price
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no priced pairs for %d tokens", len(wanted))
		}
		return out, nil
	})
}

// SelectPair picks the pair to price a token from: the first pair on the preferred
// chain or the preferred dex, otherwise the first pair. Returns nil for no pairs.
func SelectPair(pairs []*DexPair, preferredChain, preferredDex string) *DexPair {
	for _, p := range pairs {
		if preferredChain != "" && strings.EqualFold(p.ChainID, preferredChain) {
			return p
		}
		if preferredDex != "" && strings.EqualFold(p.DexID, preferredDex) {
			return p
		}
	}
	if len(pairs) > 0 {
		return pairs[0]
	}
	return nil
}

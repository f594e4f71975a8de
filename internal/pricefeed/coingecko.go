package pricefeed

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"megabridge/internal/domain"
)

// MajorCoinGeckoIDs is the basket of well-known assets fetched in one call.
var MajorCoinGeckoIDs = map[domain.Symbol]string{
	domain.SymbolETH:   "ethereum",
	domain.SymbolSOL:   "solana",
	domain.SymbolMATIC: "matic-network",
	domain.SymbolBNB:   "binancecoin",
	domain.SymbolAVAX:  "avalanche-2",
	domain.SymbolFTM:   "fantom",
}

// HyperliquidCoinGeckoID is fetched on its own so its failure cannot block the basket.
const HyperliquidCoinGeckoID = "hyperliquid"

// CoinGeckoSource queries the CoinGecko simple price endpoint for a set of coin ids.
type CoinGeckoSource struct {
	name    string
	baseURL string
	apiKey  string
	ids     map[domain.Symbol]string
	client  *Client
	logger  *zap.Logger
}

// CoinGeckoConfig configures a CoinGeckoSource.
type CoinGeckoConfig struct {
	Name    string                   // source name, e.g. "coingecko_majors"
	BaseURL string                   // e.g. https://api.coingecko.com
	APIKey  string                   // optional demo API key
	IDs     map[domain.Symbol]string // symbol → CoinGecko coin id
}

// NewCoinGeckoSource creates a CoinGecko source.
func NewCoinGeckoSource(cfg CoinGeckoConfig, client *Client, logger *zap.Logger) *CoinGeckoSource {
	ids := make(map[domain.Symbol]string, len(cfg.IDs))
	for s, id := range cfg.IDs {
		ids[s] = id
	}
	return &CoinGeckoSource{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		ids:     ids,
		client:  client,
		logger:  orNop(logger),
	}
}

// NewMajorsSource creates the basket source.
func NewMajorsSource(baseURL, apiKey string, client *Client, logger *zap.Logger) *CoinGeckoSource {
	return NewCoinGeckoSource(CoinGeckoConfig{
		Name:    "coingecko_majors",
		BaseURL: baseURL,
		APIKey:  apiKey,
		IDs:     MajorCoinGeckoIDs,
	}, client, logger)
}

// NewSingleAssetSource creates a source for one asset outside the basket.
func NewSingleAssetSource(baseURL, apiKey string, symbol domain.Symbol, coinID string, client *Client, logger *zap.Logger) *CoinGeckoSource {
	return NewCoinGeckoSource(CoinGeckoConfig{
		Name:    "coingecko_" + strings.ToLower(symbol.String()),
		BaseURL: baseURL,
		APIKey:  apiKey,
		IDs:     map[domain.Symbol]string{symbol: coinID},
	}, client, logger)
}

// Name implements Source.
func (s *CoinGeckoSource) Name() string {
	return s.name
}

// simplePriceResponse is {"ethereum": {"usd": 3500.12}, ...}.
type simplePriceResponse map[string]struct {
	USD *float64 `json:"usd"`
}

// Fetch implements Source.
func (s *CoinGeckoSource) Fetch(ctx context.Context, symbols []domain.Symbol) domain.PriceTable {
	requested := symbolSet(symbols)

	// coin id → symbols mapped to it
	byID := make(map[string][]domain.Symbol)
	for sym, id := range s.ids {
		if wants(requested, sym) {
			byID[id] = append(byID[id], sym)
		}
	}
	if len(byID) == 0 {
		return domain.PriceTable{}
	}

	return guard(ctx, s.name, s.logger, func(ctx context.Context) (domain.PriceTable, error) {
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		q := url.Values{}
		q.Set("ids", strings.Join(ids, ","))
		q.Set("vs_currencies", "usd")
		endpoint := s.baseURL + "/api/v3/simple/price?" + q.Encode()

		var header http.Header
		if s.apiKey != "" {
			header = http.Header{"x-cg-demo-api-key": []string{s.apiKey}}
		}

		var resp simplePriceResponse
		if err := s.client.GetJSON(ctx, endpoint, header, &resp); err != nil {
			return nil, err
		}

		out := make(domain.PriceTable, len(ids))
		for id, syms := range byID {
			entry, ok := resp[id]
			if !ok || entry.USD == nil {
				continue
			}
			for _, sym := range syms {
				out[sym] = *entry.USD
			}
		}
		if len(out) == 0 {
			return nil, errors.New("response contained none of the requested ids")
		}
		return out, nil
	})
}

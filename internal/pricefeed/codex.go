package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"megabridge/internal/domain"
)

// MegaETHTokens are the destination-chain tokens priced by address.
var MegaETHTokens = map[domain.Symbol]string{
	domain.SymbolFLUFFEY: "0xc5808cf8be4e4ce012aa65bf6f60e24a3cc82071",
	domain.SymbolMEKA:    "0x238214f6026601d5136ed88b5905e909ba06997b",
	domain.SymbolKUMA:    "0xd34f85ba2a331514666f3040f43d83306c7a85df",
	domain.SymbolSIGMA:   "0x023bb18826845645b121c5dfb65d23e834158491",
}

// CodexSource queries the Codex GraphQL getTokenPrices endpoint.
// It is inert when no API key is configured.
type CodexSource struct {
	endpoint  string
	apiKey    string
	networkID int64
	tokens    map[domain.Symbol]string
	client    *Client
	logger    *zap.Logger
}

// CodexConfig configures a CodexSource.
type CodexConfig struct {
	Endpoint  string
	APIKey    string
	NetworkID int64                    // defaults to MegaETH
	Tokens    map[domain.Symbol]string // defaults to MegaETHTokens
}

// NewCodexSource creates a Codex source.
func NewCodexSource(cfg CodexConfig, client *Client, logger *zap.Logger) *CodexSource {
	if cfg.NetworkID == 0 {
		cfg.NetworkID = domain.MegaETHChainID
	}
	if cfg.Tokens == nil {
		cfg.Tokens = MegaETHTokens
	}
	tokens := make(map[domain.Symbol]string, len(cfg.Tokens))
	for s, addr := range cfg.Tokens {
		tokens[s] = strings.ToLower(addr)
	}
	return &CodexSource{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		networkID: cfg.NetworkID,
		tokens:    tokens,
		client:    client,
		logger:    orNop(logger),
	}
}

// Name implements Source.
func (s *CodexSource) Name() string {
	return "codex"
}

// Enabled reports whether an API key is configured.
func (s *CodexSource) Enabled() bool {
	return s.apiKey != ""
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type codexTokenPrice struct {
	Address  string   `json:"address"`
	PriceUSD *float64 `json:"priceUsd"`
}

type codexResponse struct {
	Data *struct {
		GetTokenPrices []*codexTokenPrice `json:"getTokenPrices"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Fetch implements Source.
func (s *CodexSource) Fetch(ctx context.Context, symbols []domain.Symbol) domain.PriceTable {
	if !s.Enabled() {
		return domain.PriceTable{}
	}

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
		header := http.Header{"Authorization": []string{s.apiKey}}

		var resp codexResponse
		if err := s.client.PostJSON(ctx, s.endpoint, header, graphQLRequest{Query: s.query(wanted)}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("graphql error: %s", resp.Errors[0].Message)
		}
		if resp.Data == nil {
			return nil, errors.New("graphql response without data")
		}

		out := make(domain.PriceTable, len(wanted))
		for sym, addr := range wanted {
			for _, tp := range resp.Data.GetTokenPrices {
				if tp == nil || tp.PriceUSD == nil {
					continue
				}
				if strings.EqualFold(tp.Address, addr) {
					out[sym] = *tp.PriceUSD
					break
				}
			}
		}
		return out, nil
	})
}

// query builds the getTokenPrices document. Addresses come from configuration only.
func (s *CodexSource) query(wanted map[domain.Symbol]string) string {
	addrs := make([]string, 0, len(wanted))
	for _, addr := range wanted {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	inputs := make([]string, len(addrs))
	for i, addr := range addrs {
		inputs[i] = fmt.Sprintf(`{address: "%s", networkId: %d}`, addr, s.networkID)
	}
	return fmt.Sprintf(`{ getTokenPrices(inputs: [%s]) { address priceUsd } }`, strings.Join(inputs, ", "))
}

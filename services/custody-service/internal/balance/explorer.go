package balance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
)

const (
	DefaultExplorerTimeout = 10 * time.Second
	maxExplorerBody        = 4 << 20
)

// ExplorerClient talks to Blockscout- and Etherscan-compatible account APIs
type ExplorerClient struct {
	httpClient *http.Client
}

func NewExplorerClient(timeout time.Duration) *ExplorerClient {
	if timeout <= 0 {
		timeout = DefaultExplorerTimeout
	}
	return &ExplorerClient{httpClient: &http.Client{Timeout: timeout}}
}

// explorerEnvelope is the shared response shape; Result is decoded per action
type explorerEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type blockscoutToken struct {
	Balance         string `json:"balance"`
	ContractAddress string `json:"contractAddress"`
	Decimals        string `json:"decimals"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Type            string `json:"type"`
}

type etherscanTransfer struct {
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// discoveredToken is a token seen by the explorer; Raw is nil when the balance must be read on-chain
type discoveredToken struct {
	Info domain.TokenInfo
	Raw  *big.Int
}

func (c *ExplorerClient) get(ctx context.Context, baseURL string, params url.Values) (json.RawMessage, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("explorer url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExternalAPIUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrExternalAPIUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExplorerBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrExternalAPIUnavailable, err)
	}

	var env explorerEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %w", domain.ErrExternalAPIUnavailable, err)
	}
	if env.Status != "1" {
		return nil, fmt.Errorf("%w: status %q: %s", domain.ErrExternalAPIUnavailable, env.Status, env.Message)
	}
	return env.Result, nil
}

// BlockscoutTokenList returns ERC-20 holdings with balances as reported by the explorer
func (c *ExplorerClient) BlockscoutTokenList(ctx context.Context, caps domain.ChainCapabilities, address string) ([]discoveredToken, error) {
	params := url.Values{
		"module":  {"account"},
		"action":  {"tokenlist"},
		"address": {address},
	}
	if caps.ExplorerAPIKey != "" {
		params.Set("apikey", caps.ExplorerAPIKey)
	}
	raw, err := c.get(ctx, caps.ExplorerAPIURL, params)
	if err != nil {
		return nil, err
	}

	var rows []blockscoutToken
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: malformed tokenlist: %w", domain.ErrExternalAPIUnavailable, err)
	}

	out := make([]discoveredToken, 0, len(rows))
	for _, row := range rows {
		if row.Type != "" && row.Type != "ERC-20" {
			continue
		}
		bal, ok := new(big.Int).SetString(row.Balance, 10)
		if !ok {
			continue
		}
		decimals, err := strconv.ParseUint(row.Decimals, 10, 8)
		if err != nil {
			continue
		}
		out = append(out, discoveredToken{
			Info: domain.TokenInfo{
				Symbol:          row.Symbol,
				ContractAddress: row.ContractAddress,
				Decimals:        uint8(decimals),
				Name:            row.Name,
			},
			Raw: bal,
		})
	}
	return out, nil
}

// EtherscanTokenContracts returns each distinct token the address has transferred.
// Balances are not included and must be read with balanceOf.
func (c *ExplorerClient) EtherscanTokenContracts(ctx context.Context, caps domain.ChainCapabilities, address string) ([]discoveredToken, error) {
	params := url.Values{
		"module":  {"account"},
		"action":  {"tokentx"},
		"address": {address},
		"sort":    {"desc"},
	}
	if caps.ExplorerAPIKey != "" {
		params.Set("apikey", caps.ExplorerAPIKey)
	}
	raw, err := c.get(ctx, caps.ExplorerAPIURL, params)
	if err != nil {
		return nil, err
	}

	var rows []etherscanTransfer
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: malformed tokentx: %w", domain.ErrExternalAPIUnavailable, err)
	}

	seen := make(map[string]bool, len(rows))
	out := make([]discoveredToken, 0)
	for _, row := range rows {
		key := strings.ToLower(row.ContractAddress)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		decimals, err := strconv.ParseUint(row.TokenDecimal, 10, 8)
		if err != nil {
			continue
		}
		out = append(out, discoveredToken{Info: domain.TokenInfo{
			Symbol:          row.TokenSymbol,
			ContractAddress: row.ContractAddress,
			Decimals:        uint8(decimals),
			Name:            row.TokenName,
		}})
	}
	return out, nil
}

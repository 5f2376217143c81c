package balance

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/chain"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
	"github.com/quangdang46/DeFi-Wallet/shared/metrics"
	"github.com/quangdang46/DeFi-Wallet/shared/resilience"
)

const (
	sourceExplorer = "explorer"
	sourceFallback = "fallback"
	sourceSkipped  = "skipped"
)

type Config struct {
	ExplorerTimeout time.Duration
	MinInterval     time.Duration
	Breaker         *resilience.CircuitBreakerConfig
}

// Discovery assembles the balances an address holds on one chain
type Discovery struct {
	registry *chain.Registry
	tokens   *TokenLists
	explorer *ExplorerClient
	limiter  *Limiter
	breakers *resilience.CircuitBreakerGroup
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

func NewDiscovery(registry *chain.Registry, cfg Config, logger *logging.Logger, m *metrics.Metrics) *Discovery {
	if logger == nil {
		logger = logging.Nop()
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = &resilience.CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: 30 * time.Second}
	}
	return &Discovery{
		registry: registry,
		tokens:   NewTokenLists(registry.SupportedChains()),
		explorer: NewExplorerClient(cfg.ExplorerTimeout),
		limiter:  NewLimiter(cfg.MinInterval),
		breakers: resilience.NewCircuitBreakerGroup(breaker),
		logger:   logger,
		metrics:  m,
	}
}

// GetAllTokenBalances returns the native balance first, followed by every
// non-zero ERC-20 balance found by the chain's discovery strategy.
func (d *Discovery) GetAllTokenBalances(ctx context.Context, chainID domain.ChainID, address string) ([]domain.TokenBalance, error) {
	cfg, err := d.registry.ChainConfig(chainID)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	owner := common.HexToAddress(address)

	var (
		wg     sync.WaitGroup
		native domain.TokenBalance
		tokens []domain.TokenBalance
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		native = d.nativeBalance(ctx, cfg, owner)
	}()
	go func() {
		defer wg.Done()
		tokens = d.discoverTokens(ctx, cfg, owner)
	}()
	wg.Wait()

	out := make([]domain.TokenBalance, 0, len(tokens)+1)
	out = append(out, native)
	for _, t := range tokens {
		if t.ContractAddress == domain.ZeroAddress {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (d *Discovery) nativeBalance(ctx context.Context, cfg domain.ChainConfig, owner common.Address) domain.TokenBalance {
	raw, err := d.registry.Balance(ctx, cfg.ChainID, owner)
	if err != nil {
		d.logger.WithError(err).WithField("chain_id", cfg.ChainID).Warn("native balance read failed")
		raw = new(big.Int)
	}
	return toBalance(domain.TokenInfo{
		Symbol:          cfg.NativeSymbol,
		ContractAddress: domain.ZeroAddress,
		Decimals:        cfg.NativeDecimals,
		Name:            cfg.Name,
	}, raw)
}

func (d *Discovery) discoverTokens(ctx context.Context, cfg domain.ChainConfig, owner common.Address) []domain.TokenBalance {
	caps := cfg.Capabilities
	log := d.logger.WithFields(map[string]interface{}{
		"chain_id": cfg.ChainID,
		"strategy": caps.Discovery,
	})

	if caps.Discovery == domain.DiscoveryNone {
		d.metrics.RecordTokenDiscovery(cfg.ChainID, sourceFallback)
		return d.fallback(ctx, cfg.ChainID, owner)
	}

	endpoint := caps.ExplorerAPIURL
	if !d.limiter.Allow(endpoint) {
		log.Debug("explorer call rate limited, using token list")
		d.metrics.RecordTokenDiscovery(cfg.ChainID, sourceSkipped)
		return d.fallback(ctx, cfg.ChainID, owner)
	}

	var found []discoveredToken
	err := d.breakers.Get(endpoint).Execute(ctx, func(ctx context.Context) error {
		var err error
		switch caps.Discovery {
		case domain.DiscoveryBlockscout:
			found, err = d.explorer.BlockscoutTokenList(ctx, caps, owner.Hex())
		case domain.DiscoveryEtherscan:
			found, err = d.explorer.EtherscanTokenContracts(ctx, caps, owner.Hex())
		default:
			err = fmt.Errorf("unknown discovery strategy %q", caps.Discovery)
		}
		return err
	})
	if err != nil {
		log.WithError(err).Warn("explorer discovery failed, using token list")
		d.metrics.RecordTokenDiscovery(cfg.ChainID, sourceFallback)
		return d.fallback(ctx, cfg.ChainID, owner)
	}

	d.metrics.RecordTokenDiscovery(cfg.ChainID, sourceExplorer)
	return d.resolve(ctx, cfg.ChainID, owner, found)
}

// resolve reads balanceOf for tokens the explorer listed without one and drops zeros
func (d *Discovery) resolve(ctx context.Context, chainID domain.ChainID, owner common.Address, found []discoveredToken) []domain.TokenBalance {
	results := make([]*domain.TokenBalance, len(found))
	var wg sync.WaitGroup
	for i, tok := range found {
		if tok.Raw != nil {
			b := toBalance(tok.Info, tok.Raw)
			results[i] = &b
			continue
		}
		wg.Add(1)
		go func(i int, tok discoveredToken) {
			defer wg.Done()
			raw, err := d.registry.TokenBalance(ctx, chainID, common.HexToAddress(tok.Info.ContractAddress), owner)
			if err != nil {
				return
			}
			b := toBalance(tok.Info, raw)
			results[i] = &b
		}(i, tok)
	}
	wg.Wait()
	return nonZero(results)
}

// fallback queries balanceOf and decimals for each listed token, discarding any that error
func (d *Discovery) fallback(ctx context.Context, chainID domain.ChainID, owner common.Address) []domain.TokenBalance {
	list := d.tokens.List(chainID)
	results := make([]*domain.TokenBalance, len(list))

	var wg sync.WaitGroup
	for i, info := range list {
		wg.Add(1)
		go func(i int, info domain.TokenInfo) {
			defer wg.Done()
			token := common.HexToAddress(info.ContractAddress)
			raw, err := d.registry.TokenBalance(ctx, chainID, token, owner)
			if err != nil {
				return
			}
			decimals, err := d.registry.TokenDecimals(ctx, chainID, token)
			if err != nil {
				return
			}
			info.Decimals = decimals
			b := toBalance(info, raw)
			results[i] = &b
		}(i, info)
	}
	wg.Wait()
	return nonZero(results)
}

func nonZero(results []*domain.TokenBalance) []domain.TokenBalance {
	out := make([]domain.TokenBalance, 0, len(results))
	for _, b := range results {
		if b == nil || b.RawBalance == "0" {
			continue
		}
		out = append(out, *b)
	}
	return out
}

func toBalance(info domain.TokenInfo, raw *big.Int) domain.TokenBalance {
	return domain.TokenBalance{
		Symbol:           info.Symbol,
		RawBalance:       raw.String(),
		FormattedBalance: chain.FormatUnits(raw, info.Decimals),
		ContractAddress:  info.ContractAddress,
		Decimals:         info.Decimals,
		Name:             info.Name,
	}
}

// TokenList returns the chain's predefined and custom tokens
func (d *Discovery) TokenList(chainID domain.ChainID) ([]domain.TokenInfo, error) {
	if !d.registry.IsChainSupported(chainID) {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, chainID)
	}
	return d.tokens.List(chainID), nil
}

func (d *Discovery) FindTokenByAddress(chainID domain.ChainID, address string) (domain.TokenInfo, bool) {
	return d.tokens.FindByAddress(chainID, address)
}

func (d *Discovery) FindTokenBySymbol(chainID domain.ChainID, symbol string) (domain.TokenInfo, bool) {
	return d.tokens.FindBySymbol(chainID, symbol)
}

// AddCustomToken lists token for chainID; a duplicate address is a no-op and returns false
func (d *Discovery) AddCustomToken(chainID domain.ChainID, token domain.TokenInfo) (bool, error) {
	if !d.registry.IsChainSupported(chainID) {
		return false, fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, chainID)
	}
	if !common.IsHexAddress(token.ContractAddress) {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, token.ContractAddress)
	}
	return d.tokens.Add(chainID, token), nil
}

// ValidateTokenContract returns nil, nil when the contract does not answer as an ERC-20
func (d *Discovery) ValidateTokenContract(ctx context.Context, chainID domain.ChainID, address string) (*domain.TokenInfo, error) {
	if !d.registry.IsChainSupported(chainID) {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, chainID)
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	info, err := d.registry.ReadTokenMetadata(ctx, chainID, common.HexToAddress(address))
	if err != nil {
		d.logger.WithError(err).WithFields(map[string]interface{}{
			"chain_id":      chainID,
			"token_address": address,
		}).Debug("token metadata read failed")
		return nil, nil
	}
	return &info, nil
}

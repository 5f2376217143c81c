package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
	"github.com/quangdang46/DeFi-Wallet/shared/metrics"
)

const (
	DefaultRPCTimeout   = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Registry owns the chain table and one long-lived client per chain.
// Every chain-aware method checks the table before touching the network.
type Registry struct {
	chains  map[domain.ChainID]domain.ChainConfig
	clients map[domain.ChainID]Client
	ids     []domain.ChainID

	rpcTimeout time.Duration
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

type Option func(*Registry)

func WithRPCTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.rpcTimeout = d
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry validates the table and dials every chain once
func NewRegistry(ctx context.Context, chains []domain.ChainConfig, dial DialFunc, opts ...Option) (*Registry, error) {
	if dial == nil {
		dial = DialEth
	}
	r := &Registry{
		chains:     make(map[domain.ChainID]domain.ChainConfig, len(chains)),
		clients:    make(map[domain.ChainID]Client, len(chains)),
		rpcTimeout: DefaultRPCTimeout,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, cfg := range chains {
		if err := validateChain(cfg); err != nil {
			r.Close()
			return nil, err
		}
		if _, dup := r.chains[cfg.ChainID]; dup {
			r.Close()
			return nil, fmt.Errorf("chain %d configured twice", cfg.ChainID)
		}
		client, err := dial(ctx, cfg.RPCURL)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("chain %d: %w", cfg.ChainID, err)
		}
		r.chains[cfg.ChainID] = WithCapabilityDefaults(cfg)
		r.clients[cfg.ChainID] = client
		r.ids = append(r.ids, cfg.ChainID)
	}
	sort.Slice(r.ids, func(i, j int) bool { return r.ids[i] < r.ids[j] })

	r.logger.WithField("chains", r.ids).Info("chain registry ready")
	return r, nil
}

func validateChain(cfg domain.ChainConfig) error {
	switch {
	case cfg.ChainID <= 0:
		return fmt.Errorf("chain id must be positive, got %d", cfg.ChainID)
	case strings.TrimSpace(cfg.RPCURL) == "":
		return fmt.Errorf("chain %d: rpc url is required", cfg.ChainID)
	case cfg.NativeSymbol == "":
		return fmt.Errorf("chain %d: native symbol is required", cfg.ChainID)
	}
	return nil
}

// Close releases every client
func (r *Registry) Close() {
	for _, c := range r.clients {
		c.Close()
	}
}

func (r *Registry) IsChainSupported(chainID domain.ChainID) bool {
	_, ok := r.chains[chainID]
	return ok
}

func (r *Registry) ChainConfig(chainID domain.ChainID) (domain.ChainConfig, error) {
	cfg, ok := r.chains[chainID]
	if !ok {
		return domain.ChainConfig{}, unsupported(chainID)
	}
	return cfg, nil
}

// SupportedChains returns the table ordered by chain id
func (r *Registry) SupportedChains() []domain.ChainConfig {
	out := make([]domain.ChainConfig, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.chains[id])
	}
	return out
}

// Client returns the chain's provider
func (r *Registry) Client(chainID domain.ChainID) (Client, error) {
	c, ok := r.clients[chainID]
	if !ok {
		return nil, unsupported(chainID)
	}
	return c, nil
}

// NativeToken describes the chain's native asset under the zero address
func (r *Registry) NativeToken(chainID domain.ChainID) (domain.TokenInfo, error) {
	cfg, err := r.ChainConfig(chainID)
	if err != nil {
		return domain.TokenInfo{}, err
	}
	return domain.TokenInfo{
		Symbol:          cfg.NativeSymbol,
		ContractAddress: domain.ZeroAddress,
		Decimals:        cfg.NativeDecimals,
		Name:            cfg.Name,
	}, nil
}

func (r *Registry) Capabilities(chainID domain.ChainID) (domain.ChainCapabilities, error) {
	cfg, err := r.ChainConfig(chainID)
	if err != nil {
		return domain.ChainCapabilities{}, err
	}
	return cfg.Capabilities, nil
}

// GasAdjustment is the percentage applied to the provider's gas price
func (r *Registry) GasAdjustment(chainID domain.ChainID) (uint64, error) {
	caps, err := r.Capabilities(chainID)
	if err != nil {
		return 0, err
	}
	return caps.GasPriceMultiplierPercent, nil
}

func (r *Registry) TokenDiscoveryStrategy(chainID domain.ChainID) (domain.DiscoveryStrategy, error) {
	caps, err := r.Capabilities(chainID)
	if err != nil {
		return "", err
	}
	return caps.Discovery, nil
}

// rpc resolves the client and bounds the call with the registry timeout
func (r *Registry) rpc(ctx context.Context, chainID domain.ChainID) (Client, context.Context, context.CancelFunc, error) {
	c, err := r.Client(chainID)
	if err != nil {
		return nil, nil, nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, r.rpcTimeout)
	return c, cctx, cancel, nil
}

// HealthCheck reports whether the chain returns a positive block number
func (r *Registry) HealthCheck(ctx context.Context, chainID domain.ChainID) bool {
	c, cctx, cancel, err := r.rpc(ctx, chainID)
	if err != nil {
		return false
	}
	defer cancel()

	n, err := c.BlockNumber(cctx)
	healthy := err == nil && n > 0
	if err != nil {
		r.logger.WithError(err).WithField("chain_id", chainID).Warn("chain health check failed")
	}
	r.metrics.RecordChainHealth(chainID, healthy)
	return healthy
}

// HealthCheckAll checks every chain concurrently
func (r *Registry) HealthCheckAll(ctx context.Context) map[domain.ChainID]bool {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[domain.ChainID]bool, len(r.ids))
	)
	for _, id := range r.ids {
		wg.Add(1)
		go func(id domain.ChainID) {
			defer wg.Done()
			ok := r.HealthCheck(ctx, id)
			mu.Lock()
			out[id] = ok
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

// GasPrice returns the provider's suggested price without adjustment
func (r *Registry) GasPrice(ctx context.Context, chainID domain.ChainID) (*big.Int, error) {
	c, cctx, cancel, err := r.rpc(ctx, chainID)
	if err != nil {
		return nil, err
	}
	defer cancel()
	p, err := c.SuggestGasPrice(cctx)
	if err != nil {
		return nil, networkErr("eth_gasPrice", err)
	}
	return p, nil
}

// AdjustedGasPrice returns the provider price scaled by the chain's multiplier
func (r *Registry) AdjustedGasPrice(ctx context.Context, chainID domain.ChainID) (*big.Int, error) {
	pct, err := r.GasAdjustment(chainID)
	if err != nil {
		return nil, err
	}
	p, err := r.GasPrice(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return ApplyPercent(p, pct), nil
}

func (r *Registry) EstimateGas(ctx context.Context, chainID domain.ChainID, msg ethereum.CallMsg) (uint64, error) {
	c, cctx, cancel, err := r.rpc(ctx, chainID)
	if err != nil {
		return 0, err
	}
	defer cancel()
	g, err := c.EstimateGas(cctx, msg)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrGasEstimationFailure, err)
	}
	return g, nil
}

// Balance returns the latest native balance in wei
func (r *Registry) Balance(ctx context.Context, chainID domain.ChainID, account common.Address) (*big.Int, error) {
	c, cctx, cancel, err := r.rpc(ctx, chainID)
	if err != nil {
		return nil, err
	}
	defer cancel()
	b, err := c.BalanceAt(cctx, account, nil)
	if err != nil {
		return nil, networkErr("eth_getBalance", err)
	}
	return b, nil
}

// TransactionCount returns the pending nonce for account
func (r *Registry) TransactionCount(ctx context.Context, chainID domain.ChainID, account common.Address) (uint64, error) {
	c, cctx, cancel, err := r.rpc(ctx, chainID)
	if err != nil {
		return 0, err
	}
	defer cancel()
	n, err := c.PendingNonceAt(cctx, account)
	if err != nil {
		return 0, networkErr("eth_getTransactionCount", err)
	}
	return n, nil
}

func (r *Registry) CallContract(ctx context.Context, chainID domain.ChainID, msg ethereum.CallMsg) ([]byte, error) {
	c, cctx, cancel, err := r.rpc(ctx, chainID)
	if err != nil {
		return nil, err
	}
	defer cancel()
	out, err := c.CallContract(cctx, msg, nil)
	if err != nil {
		return nil, networkErr("eth_call", err)
	}
	return out, nil
}

// SendTransaction broadcasts tx. Node errors keep their message behind ErrBroadcastFailure.
func (r *Registry) SendTransaction(ctx context.Context, chainID domain.ChainID, tx *types.Transaction) error {
	c, cctx, cancel, err := r.rpc(ctx, chainID)
	if err != nil {
		return err
	}
	defer cancel()
	if err := c.SendTransaction(cctx, tx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBroadcastFailure, err)
	}
	return nil
}

// TransactionReceipt returns ethereum.NotFound (wrapped) while the tx is unmined
func (r *Registry) TransactionReceipt(ctx context.Context, chainID domain.ChainID, hash common.Hash) (*types.Receipt, error) {
	c, cctx, cancel, err := r.rpc(ctx, chainID)
	if err != nil {
		return nil, err
	}
	defer cancel()
	rcpt, err := c.TransactionReceipt(cctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		return nil, networkErr("eth_getTransactionReceipt", err)
	}
	return rcpt, nil
}

// WaitForTransaction polls for a receipt until it exists or ctx ends
func (r *Registry) WaitForTransaction(ctx context.Context, chainID domain.ChainID, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if !r.IsChainSupported(chainID) {
		return nil, unsupported(chainID)
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rcpt, err := r.TransactionReceipt(ctx, chainID, hash)
		if err == nil {
			return rcpt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ApplyPercent returns v * pct / 100
func ApplyPercent(v *big.Int, pct uint64) *big.Int {
	if pct == 0 || pct == 100 {
		return new(big.Int).Set(v)
	}
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(pct))
	return out.Div(out, big.NewInt(100))
}

func unsupported(chainID domain.ChainID) error {
	return fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, chainID)
}

func networkErr(method string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrNetwork, method, err)
}

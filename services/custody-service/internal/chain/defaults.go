package chain

import (
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
)

const (
	NativeTransferGas        uint64 = 21_000
	TokenTransferGas         uint64 = 100_000
	ContractCallGas          uint64 = 500_000
	ContractGasBufferPercent uint64 = 120
)

// WithCapabilityDefaults fills unset capability fields
func WithCapabilityDefaults(cfg domain.ChainConfig) domain.ChainConfig {
	c := &cfg.Capabilities
	if c.NativeTransferGas == 0 {
		c.NativeTransferGas = NativeTransferGas
	}
	if c.TokenTransferGas == 0 {
		c.TokenTransferGas = TokenTransferGas
	}
	if c.ContractCallGas == 0 {
		c.ContractCallGas = ContractCallGas
	}
	if c.ContractGasBufferPercent == 0 {
		c.ContractGasBufferPercent = ContractGasBufferPercent
	}
	if c.GasPriceMultiplierPercent == 0 {
		c.GasPriceMultiplierPercent = 100
	}
	if c.Discovery == "" || c.ExplorerAPIURL == "" {
		c.Discovery = domain.DiscoveryNone
	}
	if cfg.NativeDecimals == 0 {
		cfg.NativeDecimals = 18
	}
	return cfg
}

// DefaultChains is the built-in table used when no chains file is configured
func DefaultChains() []domain.ChainConfig {
	return []domain.ChainConfig{
		{
			ChainID:          3888,
			Name:             "KalyChain",
			NativeSymbol:     "KLC",
			NativeDecimals:   18,
			RPCURL:           "https://rpc.kalychain.io/rpc",
			BlockExplorerURL: "https://kalyscan.io",
			Capabilities: domain.ChainCapabilities{
				Discovery:      domain.DiscoveryBlockscout,
				ExplorerAPIURL: "https://kalyscan.io/api",
			},
		},
		{
			ChainID:          3889,
			Name:             "KalyChain Testnet",
			NativeSymbol:     "KLC",
			NativeDecimals:   18,
			RPCURL:           "https://testnetrpc.kalychain.io/rpc",
			BlockExplorerURL: "https://testnet.kalyscan.io",
			Capabilities: domain.ChainCapabilities{
				Discovery:      domain.DiscoveryBlockscout,
				ExplorerAPIURL: "https://testnet.kalyscan.io/api",
			},
		},
		{
			ChainID:          56,
			Name:             "BNB Smart Chain",
			NativeSymbol:     "BNB",
			NativeDecimals:   18,
			RPCURL:           "https://bsc-dataseed.binance.org",
			BlockExplorerURL: "https://bscscan.com",
			Capabilities: domain.ChainCapabilities{
				GasPriceMultiplierPercent: 110,
				Discovery:                 domain.DiscoveryEtherscan,
				ExplorerAPIURL:            "https://api.bscscan.com/api",
			},
			Tokens: []domain.TokenInfo{
				{Symbol: "USDT", ContractAddress: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18, Name: "Tether USD"},
				{Symbol: "USDC", ContractAddress: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18, Name: "USD Coin"},
				{Symbol: "BUSD", ContractAddress: "0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56", Decimals: 18, Name: "BUSD Token"},
				{Symbol: "WBNB", ContractAddress: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", Decimals: 18, Name: "Wrapped BNB"},
			},
		},
		{
			ChainID:          42161,
			Name:             "Arbitrum One",
			NativeSymbol:     "ETH",
			NativeDecimals:   18,
			RPCURL:           "https://arb1.arbitrum.io/rpc",
			BlockExplorerURL: "https://arbiscan.io",
			Capabilities: domain.ChainCapabilities{
				// L2 gas accounting includes the L1 data fee
				TokenTransferGas: 200_000,
				Discovery:        domain.DiscoveryEtherscan,
				ExplorerAPIURL:   "https://api.arbiscan.io/api",
			},
			Tokens: []domain.TokenInfo{
				{Symbol: "USDC", ContractAddress: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6, Name: "USD Coin"},
				{Symbol: "USDT", ContractAddress: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6, Name: "Tether USD"},
				{Symbol: "WETH", ContractAddress: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18, Name: "Wrapped Ether"},
				{Symbol: "ARB", ContractAddress: "0x912CE59144191C1204E64559FE8253a0e49E6548", Decimals: 18, Name: "Arbitrum"},
			},
		},
	}
}

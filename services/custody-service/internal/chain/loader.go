package chain

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/shared/env"
)

// LoadChains reads the chain table from a JSON file, or returns DefaultChains
// when path is empty. RPC_URL_<id> and EXPLORER_API_KEY_<id> override each row.
func LoadChains(path string) ([]domain.ChainConfig, error) {
	chains := DefaultChains()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read chains file: %w", err)
		}
		chains = nil
		if err := json.Unmarshal(raw, &chains); err != nil {
			return nil, fmt.Errorf("parse chains file %s: %w", path, err)
		}
		if len(chains) == 0 {
			return nil, fmt.Errorf("chains file %s defines no chains", path)
		}
	}

	for i := range chains {
		id := chains[i].ChainID
		chains[i].RPCURL = env.GetString(fmt.Sprintf("RPC_URL_%d", id), chains[i].RPCURL)
		chains[i].Capabilities.ExplorerAPIKey = env.GetString(
			fmt.Sprintf("EXPLORER_API_KEY_%d", id), chains[i].Capabilities.ExplorerAPIKey)
	}
	return chains, nil
}

package balance

import (
	"strings"
	"sync"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
)

// TokenLists holds the predefined and custom tokens for each chain
type TokenLists struct {
	mu    sync.RWMutex
	lists map[domain.ChainID][]domain.TokenInfo
}

func NewTokenLists(chains []domain.ChainConfig) *TokenLists {
	t := &TokenLists{lists: make(map[domain.ChainID][]domain.TokenInfo, len(chains))}
	for _, c := range chains {
		t.lists[c.ChainID] = append([]domain.TokenInfo(nil), c.Tokens...)
	}
	return t
}

// List returns a copy of the chain's tokens
func (t *TokenLists) List(chainID domain.ChainID) []domain.TokenInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.TokenInfo(nil), t.lists[chainID]...)
}

func (t *TokenLists) FindByAddress(chainID domain.ChainID, address string) (domain.TokenInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, tok := range t.lists[chainID] {
		if strings.EqualFold(tok.ContractAddress, address) {
			return tok, true
		}
	}
	return domain.TokenInfo{}, false
}

func (t *TokenLists) FindBySymbol(chainID domain.ChainID, symbol string) (domain.TokenInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, tok := range t.lists[chainID] {
		if strings.EqualFold(tok.Symbol, symbol) {
			return tok, true
		}
	}
	return domain.TokenInfo{}, false
}

// Add appends token unless its address is already listed; it reports whether it was added
func (t *TokenLists) Add(chainID domain.ChainID, token domain.TokenInfo) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tok := range t.lists[chainID] {
		if strings.EqualFold(tok.ContractAddress, token.ContractAddress) {
			return false
		}
	}
	t.lists[chainID] = append(t.lists[chainID], token)
	return true
}

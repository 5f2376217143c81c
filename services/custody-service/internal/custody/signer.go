package custody

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrSignerReleased is returned by a Signer used after its scope ended
var ErrSignerReleased = errors.New("signer released")

// Signer holds a decrypted key for the duration of one operation.
// It exposes the address and signing only; the key itself is never returned.
type Signer struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
}

func newSigner(key *ecdsa.PrivateKey, address common.Address) *Signer {
	return &Signer{key: key, address: address}
}

func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs tx for chainID with the latest signer the chain supports
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, ErrSignerReleased
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// Release zeroes the key scalar and disables the signer. Safe to call twice.
func (s *Signer) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return
	}
	wipeKey(s.key)
	s.key = nil
}

func wipeKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	words := key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	key.D.SetInt64(0)
}

func (s *Signer) released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key == nil
}

// withKey runs fn with the raw key under the signer lock; used by export only
func (s *Signer) withKey(fn func(*ecdsa.PrivateKey) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return ErrSignerReleased
	}
	return fn(s.key)
}

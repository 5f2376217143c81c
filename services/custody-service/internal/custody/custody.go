package custody

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
)

// Custody encrypts keys at rest and hands out short-lived signers
type Custody struct {
	rand    io.Reader
	scryptN int
	scryptP int
	logger  *logging.Logger
}

type Option func(*Custody)

// WithKeystoreScrypt sets the scrypt cost used by keystore export
func WithKeystoreScrypt(n, p int) Option {
	return func(c *Custody) {
		if n > 0 && p > 0 {
			c.scryptN, c.scryptP = n, p
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Custody) { c.logger = l }
}

func New(opts ...Option) *Custody {
	c := &Custody{
		rand:    rand.Reader,
		scryptN: keystore.StandardScryptN,
		scryptP: keystore.StandardScryptP,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateEncryptedWallet creates a key pair and returns only its encrypted form.
// Identity fields (ID, UserID, ChainID, CreatedAt) are left to the caller.
func (c *Custody) GenerateEncryptedWallet(password string) (*domain.EncryptedWallet, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	defer wipeKey(key)

	return c.seal(key, password)
}

// ImportEncryptedWallet encrypts a caller-supplied hex key; the address is derived from it
func (c *Custody) ImportEncryptedWallet(privateKey, password string) (*domain.EncryptedWallet, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not a valid secp256k1 key", domain.ErrInvalidInput)
	}
	defer wipeKey(key)

	return c.seal(key, password)
}

func (c *Custody) seal(key *ecdsa.PrivateKey, password string) (*domain.EncryptedWallet, error) {
	raw := crypto.FromECDSA(key)
	defer zero(raw)

	plaintext := make([]byte, 0, 2+hex.EncodedLen(len(raw)))
	plaintext = append(plaintext, "0x"...)
	plaintext = hex.AppendEncode(plaintext, raw)
	defer zero(plaintext)

	s, err := encrypt(c.rand, plaintext, password)
	if err != nil {
		return nil, err
	}
	return &domain.EncryptedWallet{
		Address:             crypto.PubkeyToAddress(key.PublicKey).Hex(),
		EncryptedPrivateKey: s.ciphertext,
		Salt:                s.salt,
		IV:                  s.iv,
	}, nil
}

// DecryptWallet returns a signer for wallet. Every failure maps to ErrInvalidPassword.
// The caller must Release the signer; prefer WithSigner.
func (c *Custody) DecryptWallet(wallet *domain.EncryptedWallet, password string) (*Signer, error) {
	if wallet == nil || password == "" {
		return nil, domain.ErrInvalidPassword
	}
	plaintext, err := decrypt(&sealed{
		ciphertext: wallet.EncryptedPrivateKey,
		salt:       wallet.Salt,
		iv:         wallet.IV,
	}, password)
	if err != nil {
		return nil, domain.ErrInvalidPassword
	}
	defer zero(plaintext)

	if len(plaintext) < 2 || string(plaintext[:2]) != "0x" {
		return nil, domain.ErrInvalidPassword
	}
	raw := make([]byte, hex.DecodedLen(len(plaintext)-2))
	defer zero(raw)
	if _, err := hex.Decode(raw, plaintext[2:]); err != nil {
		return nil, domain.ErrInvalidPassword
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, domain.ErrInvalidPassword
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	if wallet.Address != "" && !strings.EqualFold(address.Hex(), wallet.Address) {
		c.logger.WithField("wallet_id", wallet.ID).Security("wallet_address_mismatch", "high", nil)
		wipeKey(key)
		return nil, domain.ErrInvalidPassword
	}
	return newSigner(key, address), nil
}

// WithSigner decrypts wallet, runs fn, and releases the signer on every path
func (c *Custody) WithSigner(wallet *domain.EncryptedWallet, password string, fn func(*Signer) error) error {
	s, err := c.DecryptWallet(wallet, password)
	if err != nil {
		return err
	}
	defer s.Release()
	return fn(s)
}

// ExportWalletToKeystore re-encrypts the key as Web3 Secret Storage JSON under newPassword
func (c *Custody) ExportWalletToKeystore(wallet *domain.EncryptedWallet, password, newPassword string) ([]byte, error) {
	if err := checkPassword(newPassword); err != nil {
		return nil, err
	}
	var out []byte
	err := c.WithSigner(wallet, password, func(s *Signer) error {
		return s.withKey(func(key *ecdsa.PrivateKey) error {
			id, err := uuid.NewRandom()
			if err != nil {
				return fmt.Errorf("keystore id: %w", err)
			}
			out, err = keystore.EncryptKey(&keystore.Key{
				Id:         id,
				Address:    s.Address(),
				PrivateKey: key,
			}, newPassword, c.scryptN, c.scryptP)
			if err != nil {
				return fmt.Errorf("encrypt keystore: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkPassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/balance"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/chain"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/custody"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/ledger"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
)

// Service owns wallet lifecycle, balances and ledger reads scoped to the caller
type Service struct {
	registry  *chain.Registry
	wallets   domain.WalletRepository
	custody   *custody.Custody
	discovery *balance.Discovery
	ledger    *ledger.Ledger
	publisher domain.EventPublisher
	logger    *logging.Logger
	now       func() time.Time
}

func NewWalletService(
	registry *chain.Registry,
	wallets domain.WalletRepository,
	keys *custody.Custody,
	discovery *balance.Discovery,
	txLedger *ledger.Ledger,
	publisher domain.EventPublisher,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		registry:  registry,
		wallets:   wallets,
		custody:   keys,
		discovery: discovery,
		ledger:    txLedger,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateWallet generates a key for userID on chainID and stores it encrypted
func (s *Service) CreateWallet(ctx context.Context, userID domain.UserID, chainID domain.ChainID, password string) (*domain.EncryptedWallet, error) {
	if _, err := s.registry.ChainConfig(chainID); err != nil {
		return nil, err
	}
	w, err := s.custody.GenerateEncryptedWallet(password)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, userID, chainID, w, false)
}

// ImportWallet stores an existing private key encrypted under password
func (s *Service) ImportWallet(ctx context.Context, userID domain.UserID, chainID domain.ChainID, privateKey, password string) (*domain.EncryptedWallet, error) {
	if _, err := s.registry.ChainConfig(chainID); err != nil {
		return nil, err
	}
	w, err := s.custody.ImportEncryptedWallet(privateKey, password)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, userID, chainID, w, true)
}

func (s *Service) store(ctx context.Context, userID domain.UserID, chainID domain.ChainID, w *domain.EncryptedWallet, imported bool) (*domain.EncryptedWallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrInvalidInput)
	}
	w.ID = uuid.NewString()
	w.UserID = userID
	w.ChainID = chainID
	w.CreatedAt = s.now().UTC()

	if err := s.wallets.Create(ctx, w); err != nil {
		return nil, err
	}

	event := "wallet_created"
	if imported {
		event = "wallet_imported"
	}
	s.logger.WithContext(ctx).Audit(event, map[string]interface{}{
		"wallet_id": w.ID,
		"user_id":   userID,
		"chain_id":  chainID,
		"address":   w.Address,
	})

	if s.publisher != nil {
		if err := s.publisher.PublishWalletCreated(ctx, &domain.WalletCreatedEvent{
			WalletID:  w.ID,
			UserID:    userID,
			Address:   w.Address,
			ChainID:   chainID,
			Imported:  imported,
			CreatedAt: w.CreatedAt,
		}); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("wallet_id", w.ID).Warn("failed to publish wallet created event")
		}
	}
	return w, nil
}

func (s *Service) ListWallets(ctx context.Context, userID domain.UserID) ([]*domain.EncryptedWallet, error) {
	return s.wallets.ListByUser(ctx, userID)
}

func (s *Service) GetWallet(ctx context.Context, userID domain.UserID, walletID domain.WalletID) (*domain.EncryptedWallet, error) {
	return s.wallets.GetByIDAndUser(ctx, walletID, userID)
}

// ExportKeystore returns the wallet as Web3 Secret Storage JSON encrypted under newPassword
func (s *Service) ExportKeystore(ctx context.Context, userID domain.UserID, walletID domain.WalletID, password, newPassword string) ([]byte, error) {
	w, err := s.wallets.GetByIDAndUser(ctx, walletID, userID)
	if err != nil {
		return nil, err
	}
	out, err := s.custody.ExportWalletToKeystore(w, password, newPassword)
	if err != nil {
		return nil, err
	}
	s.logger.WithContext(ctx).Audit("wallet_exported", map[string]interface{}{
		"wallet_id": w.ID,
		"user_id":   userID,
	})
	return out, nil
}

func (s *Service) SupportedChains() []domain.ChainConfig {
	return s.registry.SupportedChains()
}

func (s *Service) ChainHealth(ctx context.Context) map[domain.ChainID]bool {
	return s.registry.HealthCheckAll(ctx)
}

func (s *Service) GetBalances(ctx context.Context, chainID domain.ChainID, address string) ([]domain.TokenBalance, error) {
	return s.discovery.GetAllTokenBalances(ctx, chainID, address)
}

func (s *Service) TokenList(chainID domain.ChainID) ([]domain.TokenInfo, error) {
	return s.discovery.TokenList(chainID)
}

func (s *Service) ValidateToken(ctx context.Context, chainID domain.ChainID, address string) (*domain.TokenInfo, error) {
	return s.discovery.ValidateTokenContract(ctx, chainID, address)
}

// AddCustomToken reads the contract's metadata on chain and lists it. It reports
// false when the address was already listed.
func (s *Service) AddCustomToken(ctx context.Context, chainID domain.ChainID, address string) (*domain.TokenInfo, bool, error) {
	info, err := s.discovery.ValidateTokenContract(ctx, chainID, address)
	if err != nil {
		return nil, false, err
	}
	if info == nil {
		return nil, false, fmt.Errorf("%w: %s", domain.ErrInvalidToken, address)
	}
	info.ContractAddress = common.HexToAddress(address).Hex()
	added, err := s.discovery.AddCustomToken(chainID, *info)
	if err != nil {
		return nil, false, err
	}
	return info, added, nil
}

// GetTransaction hides records owned by another user
func (s *Service) GetTransaction(ctx context.Context, userID domain.UserID, hash string) (*domain.TransactionRecord, error) {
	rec, err := s.ledger.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, domain.ErrTransactionNotFound
	}
	return rec, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID domain.UserID, limit, offset int) ([]*domain.TransactionRecord, error) {
	return s.ledger.GetByUserID(ctx, userID, limit, offset)
}

func (s *Service) ListWalletTransactions(ctx context.Context, userID domain.UserID, walletID domain.WalletID, limit, offset int) ([]*domain.TransactionRecord, error) {
	if _, err := s.wallets.GetByIDAndUser(ctx, walletID, userID); err != nil {
		return nil, err
	}
	return s.ledger.GetByWalletID(ctx, walletID, limit, offset)
}

func (s *Service) ConfirmTransaction(ctx context.Context, userID domain.UserID, hash string, blockNumber uint64) (*domain.TransactionRecord, error) {
	if _, err := s.GetTransaction(ctx, userID, hash); err != nil {
		return nil, err
	}
	return s.ledger.ConfirmTransaction(ctx, hash, blockNumber)
}

func (s *Service) FailTransaction(ctx context.Context, userID domain.UserID, hash string) (*domain.TransactionRecord, error) {
	if _, err := s.GetTransaction(ctx, userID, hash); err != nil {
		return nil, err
	}
	return s.ledger.FailTransaction(ctx, hash)
}

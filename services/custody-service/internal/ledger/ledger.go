package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/shared/contracts"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
)

// Ledger records broadcast transactions and their terminal outcome
type Ledger struct {
	repo      domain.TransactionRepository
	publisher domain.EventPublisher
	logger    *logging.Logger
	now       func() time.Time
}

// New builds a Ledger. publisher may be nil.
func New(repo domain.TransactionRepository, publisher domain.EventPublisher, logger *logging.Logger) *Ledger {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Ledger{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateTransaction stores record as PENDING, filling ID and timestamp when unset
func (l *Ledger) CreateTransaction(ctx context.Context, record *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}
	rec := *record
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}
	rec.Hash = NormalizeHash(rec.Hash)
	rec.Status = domain.TxStatusPending

	if err := l.repo.Create(ctx, &rec); err != nil {
		return nil, err
	}
	l.publish(ctx, contracts.TransactionBroadcastKey, &rec)
	return &rec, nil
}

func validateRecord(r *domain.TransactionRecord) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: record is required", domain.ErrInvalidInput)
	case r.Hash == "":
		return fmt.Errorf("%w: hash is required", domain.ErrInvalidInput)
	case !r.Type.Valid():
		return fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, r.Type)
	case r.UserID == "" || r.WalletID == "":
		return fmt.Errorf("%w: user and wallet are required", domain.ErrInvalidInput)
	}
	return nil
}

func (l *Ledger) GetByHash(ctx context.Context, hash string) (*domain.TransactionRecord, error) {
	return l.repo.GetByHash(ctx, NormalizeHash(hash))
}

func (l *Ledger) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	return l.repo.GetByID(ctx, id)
}

// GetByUserID lists newest first; limit defaults to 20 and is capped at 100
func (l *Ledger) GetByUserID(ctx context.Context, userID domain.UserID, limit, offset int) ([]*domain.TransactionRecord, error) {
	return l.repo.ListByUser(ctx, userID, domain.Page{Limit: limit, Offset: offset}.Normalize())
}

func (l *Ledger) GetByWalletID(ctx context.Context, walletID domain.WalletID, limit, offset int) ([]*domain.TransactionRecord, error) {
	return l.repo.ListByWallet(ctx, walletID, domain.Page{Limit: limit, Offset: offset}.Normalize())
}

// ConfirmTransaction moves a PENDING record to CONFIRMED at blockNumber
func (l *Ledger) ConfirmTransaction(ctx context.Context, hash string, blockNumber uint64) (*domain.TransactionRecord, error) {
	rec, err := l.repo.UpdateStatus(ctx, NormalizeHash(hash), domain.TxStatusConfirmed, &blockNumber)
	if err != nil {
		return nil, err
	}
	l.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"hash":         rec.Hash,
		"block_number": blockNumber,
	}).Info("transaction confirmed")
	l.publish(ctx, contracts.TransactionConfirmedKey, rec)
	return rec, nil
}

// FailTransaction moves a PENDING record to FAILED
func (l *Ledger) FailTransaction(ctx context.Context, hash string) (*domain.TransactionRecord, error) {
	rec, err := l.repo.UpdateStatus(ctx, NormalizeHash(hash), domain.TxStatusFailed, nil)
	if err != nil {
		return nil, err
	}
	l.logger.WithContext(ctx).WithField("hash", rec.Hash).Warn("transaction failed")
	l.publish(ctx, contracts.TransactionFailedKey, rec)
	return rec, nil
}

// publish never fails the caller; the ledger row is the source of truth
func (l *Ledger) publish(ctx context.Context, routingKey string, rec *domain.TransactionRecord) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishTransactionEvent(ctx, routingKey, rec); err != nil {
		l.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"routing_key": routingKey,
			"hash":        rec.Hash,
		}).Warn("failed to publish transaction event")
	}
}

// NormalizeHash lowercases a hash and ensures the 0x prefix
func NormalizeHash(hash string) string {
	h := strings.ToLower(strings.TrimSpace(hash))
	if h != "" && !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	return h
}

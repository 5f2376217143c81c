package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/shared/metrics"
	"github.com/quangdang46/DeFi-Wallet/shared/postgres"
)

const transactionColumns = `id, type, status, hash, from_address, to_address, amount, token_address,
	token_symbol, token_decimals, fee, block_number, chain_id, timestamp, user_id, wallet_id`

// TransactionRepository stores the ledger in wallet_transactions
type TransactionRepository struct {
	postgres *postgres.Postgres
	metrics  *metrics.Metrics
}

var _ domain.TransactionRepository = (*TransactionRepository)(nil)

func NewTransactionRepository(pg *postgres.Postgres, m *metrics.Metrics) *TransactionRepository {
	return &TransactionRepository{postgres: pg, metrics: m}
}

// Create inserts record. A hash that is already recorded is left untouched, so a
// retried write after a lost acknowledgement succeeds.
func (r *TransactionRepository) Create(ctx context.Context, record *domain.TransactionRecord) error {
	query := `
		INSERT INTO wallet_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (hash) DO NOTHING
	`
	var decimals sql.NullInt16
	if record.TokenDecimals != nil {
		decimals = sql.NullInt16{Int16: int16(*record.TokenDecimals), Valid: true}
	}

	start := time.Now()
	_, err := r.postgres.GetClient().ExecContext(ctx, query,
		record.ID,
		string(record.Type),
		string(record.Status),
		record.Hash,
		record.FromAddress,
		record.ToAddress,
		record.Amount,
		nullString(record.TokenAddress),
		nullString(record.TokenSymbol),
		decimals,
		nullString(record.Fee),
		nullBlock(record.BlockNumber),
		record.ChainID,
		record.Timestamp,
		record.UserID,
		record.WalletID,
	)
	r.metrics.RecordDBQuery("insert", "wallet_transactions", time.Since(start), err)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown wallet %s", domain.ErrInvalidInput, record.WalletID)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, id)
}

func (r *TransactionRepository) GetByHash(ctx context.Context, hash string) (*domain.TransactionRecord, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE hash = $1`, hash)
}

func (r *TransactionRepository) getOne(ctx context.Context, query string, arg interface{}) (*domain.TransactionRecord, error) {
	start := time.Now()
	rec, err := scanTransaction(r.postgres.GetClient().QueryRowContext(ctx, query, arg))
	r.metrics.RecordDBQuery("select", "wallet_transactions", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return rec, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID domain.UserID, page domain.Page) ([]*domain.TransactionRecord, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`, userID, page.Normalize())
}

func (r *TransactionRepository) ListByWallet(ctx context.Context, walletID domain.WalletID, page domain.Page) ([]*domain.TransactionRecord, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`, walletID, page.Normalize())
}

func (r *TransactionRepository) list(ctx context.Context, query, owner string, page domain.Page) ([]*domain.TransactionRecord, error) {
	start := time.Now()
	rows, err := r.postgres.GetClient().QueryContext(ctx, query, owner, page.Limit, page.Offset)
	if err != nil {
		r.metrics.RecordDBQuery("select", "wallet_transactions", time.Since(start), err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.TransactionRecord, 0)
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		records = append(records, rec)
	}
	err = rows.Err()
	r.metrics.RecordDBQuery("select", "wallet_transactions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return records, nil
}

// UpdateStatus only moves PENDING rows; the WHERE clause is the transition guard
func (r *TransactionRepository) UpdateStatus(ctx context.Context, hash string, status domain.TransactionStatus, blockNumber *uint64) (*domain.TransactionRecord, error) {
	query := `
		UPDATE wallet_transactions
		SET status = $2, block_number = COALESCE($3, block_number)
		WHERE hash = $1 AND status = 'PENDING'
		RETURNING ` + transactionColumns

	start := time.Now()
	row := r.postgres.GetClient().QueryRowContext(ctx, query, hash, string(status), nullBlock(blockNumber))
	rec, err := scanTransaction(row)
	r.metrics.RecordDBQuery("update", "wallet_transactions", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := r.GetByHash(ctx, hash); gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrTransactionNotPending, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	return rec, nil
}

func scanTransaction(s scanner) (*domain.TransactionRecord, error) {
	var (
		rec                       domain.TransactionRecord
		txType, status            string
		tokenAddress, tokenSymbol sql.NullString
		tokenDecimals             sql.NullInt16
		fee                       sql.NullString
		blockNumber               sql.NullInt64
	)
	if err := s.Scan(
		&rec.ID,
		&txType,
		&status,
		&rec.Hash,
		&rec.FromAddress,
		&rec.ToAddress,
		&rec.Amount,
		&tokenAddress,
		&tokenSymbol,
		&tokenDecimals,
		&fee,
		&blockNumber,
		&rec.ChainID,
		&rec.Timestamp,
		&rec.UserID,
		&rec.WalletID,
	); err != nil {
		return nil, err
	}

	rec.Type = domain.TransactionType(txType)
	rec.Status = domain.TransactionStatus(status)
	if tokenAddress.Valid {
		rec.TokenAddress = &tokenAddress.String
	}
	if tokenSymbol.Valid {
		rec.TokenSymbol = &tokenSymbol.String
	}
	if tokenDecimals.Valid {
		d := uint8(tokenDecimals.Int16)
		rec.TokenDecimals = &d
	}
	if fee.Valid {
		rec.Fee = &fee.String
	}
	if blockNumber.Valid {
		b := uint64(blockNumber.Int64)
		rec.BlockNumber = &b
	}
	return &rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBlock(b *uint64) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*b), Valid: true}
}

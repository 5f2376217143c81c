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

const walletColumns = `id, user_id, address, encrypted_private_key, salt, iv, chain_id, created_at`

// WalletRepository stores encrypted wallets in encrypted_wallets
type WalletRepository struct {
	postgres *postgres.Postgres
	metrics  *metrics.Metrics
}

var _ domain.WalletRepository = (*WalletRepository)(nil)

func NewWalletRepository(pg *postgres.Postgres, m *metrics.Metrics) *WalletRepository {
	return &WalletRepository{postgres: pg, metrics: m}
}

func (r *WalletRepository) Create(ctx context.Context, wallet *domain.EncryptedWallet) error {
	query := `
		INSERT INTO encrypted_wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	start := time.Now()
	_, err := r.postgres.GetClient().ExecContext(ctx, query,
		wallet.ID,
		wallet.UserID,
		wallet.Address,
		wallet.EncryptedPrivateKey,
		wallet.Salt,
		wallet.IV,
		wallet.ChainID,
		wallet.CreatedAt,
	)
	r.metrics.RecordDBQuery("insert", "encrypted_wallets", time.Since(start), err)

	if err != nil {
		if postgres.IsUniqueViolation(err, "address_chain") {
			return fmt.Errorf("%w: %s on chain %d", domain.ErrWalletAlreadyExists, wallet.Address, wallet.ChainID)
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *WalletRepository) GetByIDAndUser(ctx context.Context, walletID domain.WalletID, userID domain.UserID) (*domain.EncryptedWallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM encrypted_wallets
		WHERE id = $1 AND user_id = $2
	`
	start := time.Now()
	row := r.postgres.GetClient().QueryRowContext(ctx, query, walletID, userID)
	w, err := scanWallet(row)
	r.metrics.RecordDBQuery("select", "encrypted_wallets", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (r *WalletRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.EncryptedWallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM encrypted_wallets
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	start := time.Now()
	rows, err := r.postgres.GetClient().QueryContext(ctx, query, userID)
	if err != nil {
		r.metrics.RecordDBQuery("select", "encrypted_wallets", time.Since(start), err)
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	wallets := make([]*domain.EncryptedWallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	err = rows.Err()
	r.metrics.RecordDBQuery("select", "encrypted_wallets", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(s scanner) (*domain.EncryptedWallet, error) {
	var w domain.EncryptedWallet
	if err := s.Scan(
		&w.ID,
		&w.UserID,
		&w.Address,
		&w.EncryptedPrivateKey,
		&w.Salt,
		&w.IV,
		&w.ChainID,
		&w.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &w, nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

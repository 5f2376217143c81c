package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedChain         = errors.New("unsupported chain")
	ErrWalletNotFound           = errors.New("wallet not found")
	ErrWalletAlreadyExists      = errors.New("wallet already exists")
	ErrChainMismatch            = errors.New("wallet chain does not match request chain")
	ErrInvalidPassword          = errors.New("invalid password")
	ErrInsufficientFunds        = errors.New("insufficient funds for amount plus fee")
	ErrInsufficientTokenBalance = errors.New("insufficient token balance")
	ErrGasEstimationFailure     = errors.New("gas estimation failed")
	ErrExternalAPIUnavailable   = errors.New("block explorer unavailable")
	ErrBroadcastFailure         = errors.New("broadcast failed")
	ErrNetwork                  = errors.New("network error")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionNotPending    = errors.New("transaction is not pending")
	ErrLedgerWriteFailure       = errors.New("ledger write failed")
	ErrInvalidInput             = errors.New("invalid input")
	ErrInvalidAddress           = errors.New("invalid address")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidToken             = errors.New("not a valid ERC-20 contract")
	ErrWalletBusy               = errors.New("wallet has a send in progress")
)

// InsufficientTokenBalanceError names the token whose balance was short
type InsufficientTokenBalanceError struct {
	Symbol string
}

func (e *InsufficientTokenBalanceError) Error() string {
	return fmt.Sprintf("Insufficient %s balance", e.Symbol)
}

func (e *InsufficientTokenBalanceError) Is(target error) bool {
	return target == ErrInsufficientTokenBalance
}

// LedgerWriteError is returned when a broadcast succeeded but the record could not be stored.
// Hash lets the caller reconcile the ledger later.
type LedgerWriteError struct {
	Hash string
	Err  error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("transaction %s broadcast but not recorded: %v", e.Hash, e.Err)
}

func (e *LedgerWriteError) Unwrap() error { return e.Err }

func (e *LedgerWriteError) Is(target error) bool {
	return target == ErrLedgerWriteFailure
}

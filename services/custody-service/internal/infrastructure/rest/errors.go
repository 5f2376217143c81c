package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	apperrors "github.com/quangdang46/DeFi-Wallet/shared/errors"
)

// toAppError maps domain errors onto the typed HTTP error. Client-facing
// messages are the wrapped error text, which never carries key material.
func toAppError(err error) *apperrors.Error {
	if e, ok := apperrors.As(err); ok {
		return e
	}

	var lwe *domain.LedgerWriteError
	switch {
	case errors.As(err, &lwe):
		return apperrors.New(apperrors.ErrorTypeInternal, "LEDGER_WRITE_FAILED",
			"transaction was broadcast but could not be recorded").
			WithDetails("hash", lwe.Hash)

	case errors.Is(err, domain.ErrUnsupportedChain):
		return apperrors.New(apperrors.ErrorTypeInvalidInput, "UNSUPPORTED_CHAIN", err.Error())
	case errors.Is(err, domain.ErrInvalidAddress):
		return apperrors.New(apperrors.ErrorTypeValidation, "INVALID_ADDRESS", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		return apperrors.New(apperrors.ErrorTypeValidation, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, domain.ErrInvalidToken):
		return apperrors.New(apperrors.ErrorTypeValidation, "INVALID_TOKEN", err.Error())
	case errors.Is(err, domain.ErrChainMismatch):
		return apperrors.New(apperrors.ErrorTypeValidation, "CHAIN_MISMATCH", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return apperrors.New(apperrors.ErrorTypeInvalidInput, "INVALID_INPUT", err.Error())

	case errors.Is(err, domain.ErrInvalidPassword):
		return apperrors.New(apperrors.ErrorTypeForbidden, "INVALID_PASSWORD", "invalid password")
	case errors.Is(err, domain.ErrWalletNotFound):
		return apperrors.New(apperrors.ErrorTypeNotFound, "WALLET_NOT_FOUND", "wallet not found")
	case errors.Is(err, domain.ErrTransactionNotFound):
		return apperrors.New(apperrors.ErrorTypeNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
	case errors.Is(err, domain.ErrWalletAlreadyExists):
		return apperrors.New(apperrors.ErrorTypeDuplicate, "WALLET_EXISTS", err.Error())
	case errors.Is(err, domain.ErrTransactionNotPending):
		return apperrors.New(apperrors.ErrorTypeConflict, "TRANSACTION_NOT_PENDING", err.Error())
	case errors.Is(err, domain.ErrWalletBusy):
		return apperrors.New(apperrors.ErrorTypeConflict, "WALLET_BUSY", err.Error())

	case errors.Is(err, domain.ErrInsufficientTokenBalance):
		return apperrors.BusinessRule("INSUFFICIENT_TOKEN_BALANCE", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		return apperrors.BusinessRule("INSUFFICIENT_FUNDS", err.Error())

	case errors.Is(err, domain.ErrBroadcastFailure):
		return apperrors.New(apperrors.ErrorTypeBadGateway, "BROADCAST_FAILED", err.Error())
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrExternalAPIUnavailable):
		return apperrors.Unavailable("chain rpc").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("request")
	}
	return apperrors.Internal("internal server error").WithCause(err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"code":   appErr.Code,
		}).Error("request failed")
	}
	apperrors.WriteJSON(w, appErr)
}

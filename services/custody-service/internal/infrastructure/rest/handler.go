package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	apperrors "github.com/quangdang46/DeFi-Wallet/shared/errors"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
)

const maxBodyBytes = 1 << 20

// WalletService is the wallet, balance and ledger surface used by the API
type WalletService interface {
	CreateWallet(ctx context.Context, userID domain.UserID, chainID domain.ChainID, password string) (*domain.EncryptedWallet, error)
	ImportWallet(ctx context.Context, userID domain.UserID, chainID domain.ChainID, privateKey, password string) (*domain.EncryptedWallet, error)
	ListWallets(ctx context.Context, userID domain.UserID) ([]*domain.EncryptedWallet, error)
	ExportKeystore(ctx context.Context, userID domain.UserID, walletID domain.WalletID, password, newPassword string) ([]byte, error)
	ListWalletTransactions(ctx context.Context, userID domain.UserID, walletID domain.WalletID, limit, offset int) ([]*domain.TransactionRecord, error)

	SupportedChains() []domain.ChainConfig
	ChainHealth(ctx context.Context) map[domain.ChainID]bool
	GetBalances(ctx context.Context, chainID domain.ChainID, address string) ([]domain.TokenBalance, error)
	TokenList(chainID domain.ChainID) ([]domain.TokenInfo, error)
	AddCustomToken(ctx context.Context, chainID domain.ChainID, address string) (*domain.TokenInfo, bool, error)
	ValidateToken(ctx context.Context, chainID domain.ChainID, address string) (*domain.TokenInfo, error)

	GetTransaction(ctx context.Context, userID domain.UserID, hash string) (*domain.TransactionRecord, error)
	ListTransactions(ctx context.Context, userID domain.UserID, limit, offset int) ([]*domain.TransactionRecord, error)
	ConfirmTransaction(ctx context.Context, userID domain.UserID, hash string, blockNumber uint64) (*domain.TransactionRecord, error)
	FailTransaction(ctx context.Context, userID domain.UserID, hash string) (*domain.TransactionRecord, error)
}

// TransactionExecutor signs and broadcasts on behalf of the caller
type TransactionExecutor interface {
	SendTransaction(ctx context.Context, input domain.SendTransactionInput, userID domain.UserID) (*domain.TransactionResponse, error)
	SendContractTransaction(ctx context.Context, input domain.ContractTransactionInput, userID domain.UserID) (*domain.TransactionResponse, error)
	RefreshTransactionStatus(ctx context.Context, userID domain.UserID, hash string) (*domain.TransactionRecord, error)
}

type Handler struct {
	wallets  WalletService
	executor TransactionExecutor
	logger   *logging.Logger
}

func NewHandler(wallets WalletService, executor TransactionExecutor, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{wallets: wallets, executor: executor, logger: logger}
}

type createWalletRequest struct {
	ChainID  domain.ChainID `json:"chainId"`
	Password string         `json:"password"`
}

type importWalletRequest struct {
	ChainID    domain.ChainID `json:"chainId"`
	PrivateKey string         `json:"privateKey"`
	Password   string         `json:"password"`
}

type exportKeystoreRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

type addTokenRequest struct {
	ContractAddress string `json:"contractAddress"`
}

type confirmRequest struct {
	BlockNumber *uint64 `json:"blockNumber"`
}

type tokenValidation struct {
	Valid bool              `json:"valid"`
	Token *domain.TokenInfo `json:"token,omitempty"`
}

type addTokenResponse struct {
	Token *domain.TokenInfo `json:"token"`
	Added bool              `json:"added"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createWallet(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	wallet, err := h.wallets.CreateWallet(r.Context(), userID(r), req.ChainID, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wallet)
}

func (h *Handler) importWallet(w http.ResponseWriter, r *http.Request) {
	var req importWalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	wallet, err := h.wallets.ImportWallet(r.Context(), userID(r), req.ChainID, req.PrivateKey, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wallet)
}

func (h *Handler) listWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.wallets.ListWallets(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallets)
}

func (h *Handler) exportKeystore(w http.ResponseWriter, r *http.Request) {
	var req exportKeystoreRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.wallets.ExportKeystore(r.Context(), userID(r), mux.Vars(r)["id"], req.Password, req.NewPassword)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *Handler) walletTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records, err := h.wallets.ListWalletTransactions(r.Context(), userID(r), mux.Vars(r)["id"], limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) listChains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.wallets.SupportedChains())
}

func (h *Handler) chainHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.wallets.ChainHealth(r.Context()))
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	balances, err := h.wallets.GetBalances(r.Context(), chainID, mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (h *Handler) listTokens(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tokens, err := h.wallets.TokenList(chainID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) addToken(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req addTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	info, added, err := h.wallets.AddCustomToken(r.Context(), chainID, req.ContractAddress)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, addTokenResponse{Token: info, Added: added})
}

func (h *Handler) validateToken(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	info, err := h.wallets.ValidateToken(r.Context(), chainID, mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenValidation{Valid: info != nil, Token: info})
}

func (h *Handler) sendTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.SendTransactionInput
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.executor.SendTransaction(r.Context(), req, userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) sendContractTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.ContractTransactionInput
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.executor.SendContractTransaction(r.Context(), req, userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records, err := h.wallets.ListTransactions(r.Context(), userID(r), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := h.wallets.GetTransaction(r.Context(), userID(r), mux.Vars(r)["hash"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) refreshTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := h.executor.RefreshTransactionStatus(r.Context(), userID(r), mux.Vars(r)["hash"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) confirmTransaction(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.BlockNumber == nil {
		apperrors.WriteJSON(w, apperrors.InvalidInput("blockNumber", "required"))
		return
	}
	rec, err := h.wallets.ConfirmTransaction(r.Context(), userID(r), mux.Vars(r)["hash"], *req.BlockNumber)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) failTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := h.wallets.FailTransaction(r.Context(), userID(r), mux.Vars(r)["hash"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func userID(r *http.Request) domain.UserID {
	return logging.GetUserID(r.Context())
}

func chainParam(r *http.Request) (domain.ChainID, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["chainId"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: chainId", domain.ErrInvalidInput)
	}
	return id, nil
}

func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: limit", domain.ErrInvalidInput)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: offset", domain.ErrInvalidInput)
		}
	}
	return limit, offset, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apperrors.WriteJSON(w, apperrors.InvalidInput("body", "too large"))
			return false
		}
		apperrors.WriteJSON(w, apperrors.InvalidInput("body", "malformed JSON"))
		return false
	}
	return true
}

func notFound(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, apperrors.NotFound("route", r.URL.Path))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/shared/metrics"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) CreateWallet(ctx context.Context, userID domain.UserID, chainID domain.ChainID, password string) (*domain.EncryptedWallet, error) {
	args := m.Called(ctx, userID, chainID, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EncryptedWallet), args.Error(1)
}

func (m *MockWalletService) ImportWallet(ctx context.Context, userID domain.UserID, chainID domain.ChainID, privateKey, password string) (*domain.EncryptedWallet, error) {
	args := m.Called(ctx, userID, chainID, privateKey, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EncryptedWallet), args.Error(1)
}

func (m *MockWalletService) ListWallets(ctx context.Context, userID domain.UserID) ([]*domain.EncryptedWallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EncryptedWallet), args.Error(1)
}

func (m *MockWalletService) ExportKeystore(ctx context.Context, userID domain.UserID, walletID domain.WalletID, password, newPassword string) ([]byte, error) {
	args := m.Called(ctx, userID, walletID, password, newPassword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockWalletService) ListWalletTransactions(ctx context.Context, userID domain.UserID, walletID domain.WalletID, limit, offset int) ([]*domain.TransactionRecord, error) {
	args := m.Called(ctx, userID, walletID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TransactionRecord), args.Error(1)
}

func (m *MockWalletService) SupportedChains() []domain.ChainConfig {
	return m.Called().Get(0).([]domain.ChainConfig)
}

func (m *MockWalletService) ChainHealth(ctx context.Context) map[domain.ChainID]bool {
	return m.Called(ctx).Get(0).(map[domain.ChainID]bool)
}

func (m *MockWalletService) GetBalances(ctx context.Context, chainID domain.ChainID, address string) ([]domain.TokenBalance, error) {
	args := m.Called(ctx, chainID, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TokenBalance), args.Error(1)
}

func (m *MockWalletService) TokenList(chainID domain.ChainID) ([]domain.TokenInfo, error) {
	args := m.Called(chainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TokenInfo), args.Error(1)
}

func (m *MockWalletService) AddCustomToken(ctx context.Context, chainID domain.ChainID, address string) (*domain.TokenInfo, bool, error) {
	args := m.Called(ctx, chainID, address)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.TokenInfo), args.Bool(1), args.Error(2)
}

func (m *MockWalletService) ValidateToken(ctx context.Context, chainID domain.ChainID, address string) (*domain.TokenInfo, error) {
	args := m.Called(ctx, chainID, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenInfo), args.Error(1)
}

func (m *MockWalletService) GetTransaction(ctx context.Context, userID domain.UserID, hash string) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, userID, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionRecord), args.Error(1)
}

func (m *MockWalletService) ListTransactions(ctx context.Context, userID domain.UserID, limit, offset int) ([]*domain.TransactionRecord, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TransactionRecord), args.Error(1)
}

func (m *MockWalletService) ConfirmTransaction(ctx context.Context, userID domain.UserID, hash string, blockNumber uint64) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, userID, hash, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionRecord), args.Error(1)
}

func (m *MockWalletService) FailTransaction(ctx context.Context, userID domain.UserID, hash string) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, userID, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionRecord), args.Error(1)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) SendTransaction(ctx context.Context, input domain.SendTransactionInput, userID domain.UserID) (*domain.TransactionResponse, error) {
	args := m.Called(ctx, input, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionResponse), args.Error(1)
}

func (m *MockExecutor) SendContractTransaction(ctx context.Context, input domain.ContractTransactionInput, userID domain.UserID) (*domain.TransactionResponse, error) {
	args := m.Called(ctx, input, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionResponse), args.Error(1)
}

func (m *MockExecutor) RefreshTransactionStatus(ctx context.Context, userID domain.UserID, hash string) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, userID, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionRecord), args.Error(1)
}

type RouterTestSuite struct {
	suite.Suite
	wallets  *MockWalletService
	executor *MockExecutor
	router   http.Handler
}

func (s *RouterTestSuite) SetupTest() {
	s.wallets = new(MockWalletService)
	s.executor = new(MockExecutor)
	reg := prometheus.NewRegistry()
	s.router = NewRouter(NewHandler(s.wallets, s.executor, nil), RouterConfig{
		JWTSecret: testSecret,
		Metrics:   metrics.NewMetrics("test", reg),
		Gatherer:  reg,
	})
}

func (s *RouterTestSuite) TearDownTest() {
	s.wallets.AssertExpectations(s.T())
	s.executor.AssertExpectations(s.T())
}

func (s *RouterTestSuite) token(sub string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString(testSecret)
	s.Require().NoError(err)
	return signed
}

func (s *RouterTestSuite) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+s.token("user-1"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var env struct {
		Error map[string]interface{} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func (s *RouterTestSuite) TestHealthIsPublic() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *RouterTestSuite) TestMetricsIsPublic() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterTestSuite) TestMissingTokenIsUnauthorized() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/wallets", nil))
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("UNAUTHORIZED", decodeError(s.T(), rec)["code"])
}

func (s *RouterTestSuite) TestForeignSignatureIsUnauthorized() {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"})
	signed, err := tok.SignedString([]byte("another-secret-another-secret-xx"))
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/v1/wallets", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterTestSuite) TestCreateWalletHidesKeyMaterial() {
	wallet := &domain.EncryptedWallet{
		ID:                  "wallet-1",
		Address:             "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		EncryptedPrivateKey: "deadbeef",
		Salt:                "00",
		IV:                  "11",
		ChainID:             3888,
		UserID:              "user-1",
	}
	s.wallets.On("CreateWallet", mock.Anything, "user-1", int64(3888), "pw").Return(wallet, nil)

	rec := s.do(http.MethodPost, "/v1/wallets", map[string]interface{}{"chainId": 3888, "password": "pw"})

	s.Equal(http.StatusCreated, rec.Code)
	body := rec.Body.String()
	s.Contains(body, `"id":"wallet-1"`)
	s.NotContains(body, "deadbeef")
	s.NotContains(body, "encrypted")
}

func (s *RouterTestSuite) TestCreateWalletUnsupportedChain() {
	s.wallets.On("CreateWallet", mock.Anything, "user-1", int64(1), "pw").
		Return(nil, domain.ErrUnsupportedChain)

	rec := s.do(http.MethodPost, "/v1/wallets", map[string]interface{}{"chainId": 1, "password": "pw"})

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("UNSUPPORTED_CHAIN", decodeError(s.T(), rec)["code"])
}

func (s *RouterTestSuite) TestMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/v1/wallets", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+s.token("user-1"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterTestSuite) TestImportDuplicate() {
	s.wallets.On("ImportWallet", mock.Anything, "user-1", int64(3888), "0xabc", "pw").
		Return(nil, domain.ErrWalletAlreadyExists)

	rec := s.do(http.MethodPost, "/v1/wallets/import", map[string]interface{}{
		"chainId": 3888, "privateKey": "0xabc", "password": "pw",
	})

	s.Equal(http.StatusConflict, rec.Code)
}

func (s *RouterTestSuite) TestExportKeystoreWritesRawJSON() {
	ks := []byte(`{"address":"f39fd6e51aad88f6f4ce6ab8827279cfffb92266","version":3}`)
	s.wallets.On("ExportKeystore", mock.Anything, "user-1", "wallet-1", "pw", "new").Return(ks, nil)

	rec := s.do(http.MethodPost, "/v1/wallets/wallet-1/keystore", map[string]string{"password": "pw", "newPassword": "new"})

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(string(ks), rec.Body.String())
}

func (s *RouterTestSuite) TestExportKeystoreWrongPassword() {
	s.wallets.On("ExportKeystore", mock.Anything, "user-1", "wallet-1", "bad", "new").
		Return(nil, domain.ErrInvalidPassword)

	rec := s.do(http.MethodPost, "/v1/wallets/wallet-1/keystore", map[string]string{"password": "bad", "newPassword": "new"})

	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterTestSuite) TestWalletTransactionsPagination() {
	s.wallets.On("ListWalletTransactions", mock.Anything, "user-1", "wallet-1", 10, 30).
		Return([]*domain.TransactionRecord{}, nil)

	rec := s.do(http.MethodGet, "/v1/wallets/wallet-1/transactions?limit=10&offset=30", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())
}

func (s *RouterTestSuite) TestBadPagination() {
	rec := s.do(http.MethodGet, "/v1/transactions?limit=ten", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterTestSuite) TestBalances() {
	s.wallets.On("GetBalances", mock.Anything, int64(56), "0xabc").Return([]domain.TokenBalance{
		{Symbol: "BNB", RawBalance: "1000000000000000000", FormattedBalance: "1", ContractAddress: domain.ZeroAddress, Decimals: 18},
	}, nil)

	rec := s.do(http.MethodGet, "/v1/chains/56/balances/0xabc", nil)

	s.Equal(http.StatusOK, rec.Code)
	var got []domain.TokenBalance
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Require().Len(got, 1)
	s.Equal("BNB", got[0].Symbol)
}

func (s *RouterTestSuite) TestAddTokenStatus() {
	info := &domain.TokenInfo{Symbol: "KST", ContractAddress: "0x1111111111111111111111111111111111111111", Decimals: 18}
	s.wallets.On("AddCustomToken", mock.Anything, int64(3888), info.ContractAddress).Return(info, true, nil).Once()
	s.wallets.On("AddCustomToken", mock.Anything, int64(3888), info.ContractAddress).Return(info, false, nil).Once()

	first := s.do(http.MethodPost, "/v1/chains/3888/tokens", map[string]string{"contractAddress": info.ContractAddress})
	second := s.do(http.MethodPost, "/v1/chains/3888/tokens", map[string]string{"contractAddress": info.ContractAddress})

	s.Equal(http.StatusCreated, first.Code)
	s.Equal(http.StatusOK, second.Code)
	s.Contains(second.Body.String(), `"added":false`)
}

func (s *RouterTestSuite) TestValidateTokenNotAToken() {
	s.wallets.On("ValidateToken", mock.Anything, int64(3888), "0xabc").Return(nil, nil)

	rec := s.do(http.MethodGet, "/v1/chains/3888/tokens/0xabc/validate", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"valid":false}`, rec.Body.String())
}

func (s *RouterTestSuite) TestSendInsufficientTokenBalance() {
	s.executor.On("SendTransaction", mock.Anything, mock.AnythingOfType("domain.SendTransactionInput"), "user-1").
		Return(nil, &domain.InsufficientTokenBalanceError{Symbol: "USDT"})

	rec := s.do(http.MethodPost, "/v1/transactions/send", map[string]interface{}{
		"walletId": "wallet-1", "toAddress": "0xabc", "amount": "5", "asset": "0xdef", "password": "pw", "chainId": 56,
	})

	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("Insufficient USDT balance", decodeError(s.T(), rec)["message"])
}

func (s *RouterTestSuite) TestSendPassesCallerInput() {
	resp := &domain.TransactionResponse{ID: "tx-1", Hash: "0xaaa", Status: domain.TxStatusPending}
	s.executor.On("SendTransaction", mock.Anything, mock.MatchedBy(func(in domain.SendTransactionInput) bool {
		return in.WalletID == "wallet-1" && in.Amount == "1.5" && in.ChainID == 3888
	}), "user-1").Return(resp, nil)

	rec := s.do(http.MethodPost, "/v1/transactions/send", map[string]interface{}{
		"walletId": "wallet-1", "toAddress": "0xabc", "amount": "1.5", "password": "pw", "chainId": 3888,
	})

	s.Equal(http.StatusCreated, rec.Code)
	s.Contains(rec.Body.String(), `"status":"PENDING"`)
}

func (s *RouterTestSuite) TestLedgerFailureReturnsHash() {
	s.executor.On("SendContractTransaction", mock.Anything, mock.Anything, "user-1").
		Return(nil, &domain.LedgerWriteError{Hash: "0xfeed", Err: errors.New("db down")})

	rec := s.do(http.MethodPost, "/v1/transactions/contract", map[string]interface{}{
		"walletId": "wallet-1", "toAddress": "0xabc", "value": "0", "data": "0x", "password": "pw", "chainId": 3888,
	})

	s.Equal(http.StatusInternalServerError, rec.Code)
	e := decodeError(s.T(), rec)
	s.Equal("LEDGER_WRITE_FAILED", e["code"])
	s.Equal("0xfeed", e["details"].(map[string]interface{})["hash"])
	s.NotContains(rec.Body.String(), "db down")
}

func (s *RouterTestSuite) TestGetTransactionNotFound() {
	s.wallets.On("GetTransaction", mock.Anything, "user-1", "0xaaa").Return(nil, domain.ErrTransactionNotFound)

	rec := s.do(http.MethodGet, "/v1/transactions/0xaaa", nil)

	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterTestSuite) TestConfirmRequiresBlockNumber() {
	rec := s.do(http.MethodPost, "/v1/transactions/0xaaa/confirm", map[string]interface{}{})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterTestSuite) TestConfirmTerminalConflict() {
	s.wallets.On("ConfirmTransaction", mock.Anything, "user-1", "0xaaa", uint64(9)).
		Return(nil, domain.ErrTransactionNotPending)

	rec := s.do(http.MethodPost, "/v1/transactions/0xaaa/confirm", map[string]interface{}{"blockNumber": 9})

	s.Equal(http.StatusConflict, rec.Code)
}

func (s *RouterTestSuite) TestRefresh() {
	block := uint64(12)
	s.executor.On("RefreshTransactionStatus", mock.Anything, "user-1", "0xaaa").
		Return(&domain.TransactionRecord{Hash: "0xaaa", Status: domain.TxStatusConfirmed, BlockNumber: &block}, nil)

	rec := s.do(http.MethodPost, "/v1/transactions/0xaaa/refresh", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"blockNumber":12`)
}

func (s *RouterTestSuite) TestUnknownRoute() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	s.Equal(http.StatusNotFound, rec.Code)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wallet missing", domain.ErrWalletNotFound, http.StatusNotFound, "WALLET_NOT_FOUND"},
		{"wallet busy", domain.ErrWalletBusy, http.StatusConflict, "WALLET_BUSY"},
		{"chain mismatch", domain.ErrChainMismatch, http.StatusBadRequest, "CHAIN_MISMATCH"},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{"broadcast", domain.ErrBroadcastFailure, http.StatusBadGateway, "BROADCAST_FAILED"},
		{"network", domain.ErrNetwork, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{"gas estimation", domain.ErrGasEstimationFailure, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAppError(tt.err)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

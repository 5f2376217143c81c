package executor_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/chain"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/chain/chainmock"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/custody"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/executor"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/infrastructure/lock"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/ledger"
	"github.com/quangdang46/DeFi-Wallet/shared/resilience"
)

const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	recipient   = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	userID      = "user-1"
	walletID    = "wallet-1"
)

var (
	gwei   = big.NewInt(1_000_000_000)
	arbUSD = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	bscUSD = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// MockWalletRepository mocks the wallet repository
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) Create(ctx context.Context, wallet *domain.EncryptedWallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockWalletRepository) GetByIDAndUser(ctx context.Context, walletID domain.WalletID, userID domain.UserID) (*domain.EncryptedWallet, error) {
	args := m.Called(ctx, walletID, userID)
	if w := args.Get(0); w != nil {
		return w.(*domain.EncryptedWallet), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockWalletRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.EncryptedWallet, error) {
	args := m.Called(ctx, userID)
	if w := args.Get(0); w != nil {
		return w.([]*domain.EncryptedWallet), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTransactionRepository mocks the ledger store
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, record *domain.TransactionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*domain.TransactionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransactionRepository) GetByHash(ctx context.Context, hash string) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, hash)
	if r := args.Get(0); r != nil {
		return r.(*domain.TransactionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransactionRepository) ListByUser(ctx context.Context, userID domain.UserID, page domain.Page) ([]*domain.TransactionRecord, error) {
	args := m.Called(ctx, userID, page)
	return args.Get(0).([]*domain.TransactionRecord), args.Error(1)
}

func (m *MockTransactionRepository) ListByWallet(ctx context.Context, walletID domain.WalletID, page domain.Page) ([]*domain.TransactionRecord, error) {
	args := m.Called(ctx, walletID, page)
	return args.Get(0).([]*domain.TransactionRecord), args.Error(1)
}

func (m *MockTransactionRepository) UpdateStatus(ctx context.Context, hash string, status domain.TransactionStatus, blockNumber *uint64) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, hash, status, blockNumber)
	if r := args.Get(0); r != nil {
		return r.(*domain.TransactionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type ExecutorTestSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	clients  map[domain.ChainID]*chainmock.MockClient
	wallets  *MockWalletRepository
	txRepo   *MockTransactionRepository
	keys     *custody.Custody
	executor *executor.Executor
	sealed   *domain.EncryptedWallet
}

func (suite *ExecutorTestSuite) SetupSuite() {
	suite.keys = custody.New()
	w, err := suite.keys.ImportEncryptedWallet(testKey, "pw")
	suite.Require().NoError(err)
	w.ID = walletID
	w.UserID = userID
	suite.sealed = w
}

func (suite *ExecutorTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.ctrl = gomock.NewController(suite.T())

	chains := chain.DefaultChains()
	suite.clients = make(map[domain.ChainID]*chainmock.MockClient)
	byURL := make(map[string]chain.Client)
	for _, c := range chains {
		m := chainmock.NewMockClient(suite.ctrl)
		m.EXPECT().Close().AnyTimes()
		suite.clients[c.ChainID] = m
		byURL[c.RPCURL] = m
	}
	reg, err := chain.NewRegistry(suite.ctx, chains, func(_ context.Context, u string) (chain.Client, error) {
		return byURL[u], nil
	})
	suite.Require().NoError(err)

	suite.wallets = new(MockWalletRepository)
	suite.txRepo = new(MockTransactionRepository)
	txLedger := ledger.New(suite.txRepo, nil, nil)

	suite.executor = executor.New(reg, suite.wallets, suite.keys, txLedger, lock.NewMemoryLocker(time.Second),
		executor.WithLedgerRetry(&resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}),
	)
}

func (suite *ExecutorTestSuite) TearDownTest() {
	suite.wallets.AssertExpectations(suite.T())
	suite.txRepo.AssertExpectations(suite.T())
}

// walletOn makes the stored wallet resolvable on chainID
func (suite *ExecutorTestSuite) walletOn(chainID domain.ChainID) {
	w := *suite.sealed
	w.ChainID = chainID
	suite.wallets.On("GetByIDAndUser", suite.ctx, walletID, userID).Return(&w, nil)
}

type broadcast struct {
	tx *types.Transaction
}

// captureBroadcast records the transaction handed to the node
func (suite *ExecutorTestSuite) captureBroadcast(chainID domain.ChainID) *broadcast {
	sent := &broadcast{}
	suite.clients[chainID].EXPECT().SendTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx *types.Transaction) error {
			sent.tx = tx
			return nil
		})
	return sent
}

func (suite *ExecutorTestSuite) expectLedgerWrite() {
	suite.txRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.TransactionRecord) bool {
		return r.Status == domain.TxStatusPending && r.UserID == userID && r.WalletID == walletID
	})).Return(nil).Once()
}

func (suite *ExecutorTestSuite) sender(tx *types.Transaction) string {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	suite.Require().NoError(err)
	return from.Hex()
}

func (suite *ExecutorTestSuite) TestSendNative_KalyChain() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	c.EXPECT().BalanceAt(gomock.Any(), common.HexToAddress(testAddress), gomock.Any()).Return(ether(10), nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), common.HexToAddress(testAddress)).Return(uint64(5), nil)
	sent := suite.captureBroadcast(3888)
	suite.expectLedgerWrite()

	resp, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1.5", Asset: "KLC", Password: "pw", ChainID: 3888,
	}, userID)
	suite.Require().NoError(err)

	suite.Equal(domain.TxStatusPending, resp.Status)
	suite.Len(resp.Hash, 66)
	suite.Equal("1000000000", resp.GasPrice)
	suite.Equal(new(big.Int).Mul(big.NewInt(21_000), gwei).String(), resp.Fee)
	suite.NotEmpty(resp.ID)
	suite.Nil(resp.BlockNumber)

	suite.Equal("3888", sent.tx.ChainId().String())
	suite.Equal(uint64(5), sent.tx.Nonce())
	suite.Equal(uint64(21_000), sent.tx.Gas())
	suite.Equal("1500000000000000000", sent.tx.Value().String())
	suite.Equal(recipient, sent.tx.To().Hex())
	suite.Equal(testAddress, suite.sender(sent.tx))
	suite.Equal(sent.tx.Hash().Hex(), common.HexToHash(resp.Hash).Hex())
}

func (suite *ExecutorTestSuite) TestSendNative_ZeroAddressAssetIsNative() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	c.EXPECT().BalanceAt(gomock.Any(), gomock.Any(), gomock.Any()).Return(ether(10), nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
	sent := suite.captureBroadcast(3888)
	suite.expectLedgerWrite()

	_, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1", Asset: domain.ZeroAddress, Password: "pw", ChainID: 3888,
	}, userID)
	suite.Require().NoError(err)
	suite.Empty(sent.tx.Data())
}

func (suite *ExecutorTestSuite) TestSendNative_InsufficientFunds() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	c.EXPECT().BalanceAt(gomock.Any(), gomock.Any(), gomock.Any()).Return(ether(1), nil)
	// no PendingNonceAt, SendTransaction or ledger write

	_, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1", Asset: "KLC", Password: "pw", ChainID: 3888,
	}, userID)
	suite.ErrorIs(err, domain.ErrInsufficientFunds)
}

func (suite *ExecutorTestSuite) TestSendNative_BSCGasMultiplier() {
	suite.walletOn(56)
	c := suite.clients[56]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(big.NewInt(5_000_000_000), nil)
	c.EXPECT().BalanceAt(gomock.Any(), gomock.Any(), gomock.Any()).Return(ether(10), nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(1), nil)
	sent := suite.captureBroadcast(56)
	suite.expectLedgerWrite()

	resp, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "0.1", Asset: "bnb", Password: "pw", ChainID: 56,
	}, userID)
	suite.Require().NoError(err)
	suite.Equal("5500000000", resp.GasPrice)
	suite.Equal("5500000000", sent.tx.GasPrice().String())
}

func (suite *ExecutorTestSuite) TestSendNative_EstimationFallback() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(0), errors.New("execution reverted"))
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	c.EXPECT().BalanceAt(gomock.Any(), gomock.Any(), gomock.Any()).Return(ether(10), nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
	sent := suite.captureBroadcast(3888)
	suite.expectLedgerWrite()

	_, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1", Asset: "KLC", Password: "pw", ChainID: 3888,
	}, userID)
	suite.Require().NoError(err)
	suite.Equal(uint64(21_000), sent.tx.Gas())
}

func (suite *ExecutorTestSuite) TestSendNative_CallerGasOverrides() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	// no EstimateGas or SuggestGasPrice
	c.EXPECT().BalanceAt(gomock.Any(), gomock.Any(), gomock.Any()).Return(ether(10), nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
	sent := suite.captureBroadcast(3888)
	suite.expectLedgerWrite()

	resp, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1", Asset: "KLC", Password: "pw", ChainID: 3888,
		GasLimit: "30000", GasPrice: "2000000000",
	}, userID)
	suite.Require().NoError(err)
	suite.Equal(uint64(30_000), sent.tx.Gas())
	suite.Equal("60000000000000", resp.Fee)
}

func (suite *ExecutorTestSuite) TestSendERC20_InsufficientTokenBalance() {
	suite.walletOn(56)
	contracts := chainmock.Contracts{
		bscUSD: {Symbol: "USDT", Decimals: 18, Balances: map[common.Address]*big.Int{
			common.HexToAddress(testAddress): ether(5),
		}},
	}
	suite.clients[56].EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(contracts.Call).Times(3)

	_, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "10", Asset: bscUSD.Hex(), Password: "pw", ChainID: 56,
	}, userID)
	suite.ErrorIs(err, domain.ErrInsufficientTokenBalance)
	suite.EqualError(err, "Insufficient USDT balance")
}

func (suite *ExecutorTestSuite) TestSendERC20_ArbitrumFallbackGas() {
	suite.walletOn(42161)
	contracts := chainmock.Contracts{
		arbUSD: {Symbol: "USDC", Decimals: 6, Balances: map[common.Address]*big.Int{
			common.HexToAddress(testAddress): big.NewInt(100_000_000),
		}},
	}
	c := suite.clients[42161]
	c.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(contracts.Call).Times(3)
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(0), errors.New("gas required exceeds allowance"))
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(big.NewInt(10_000_000), nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(3), nil)
	sent := suite.captureBroadcast(42161)
	suite.txRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.TransactionRecord) bool {
		return r.TokenSymbol != nil && *r.TokenSymbol == "USDC" &&
			r.TokenDecimals != nil && *r.TokenDecimals == 6 &&
			r.TokenAddress != nil && *r.TokenAddress == arbUSD.Hex() &&
			r.Amount == "25" && r.ToAddress == recipient
	})).Return(nil)

	_, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "25", Asset: arbUSD.Hex(), Password: "pw", ChainID: 42161,
	}, userID)
	suite.Require().NoError(err)

	suite.Equal(uint64(200_000), sent.tx.Gas())
	suite.Equal(arbUSD, *sent.tx.To())
	suite.Zero(sent.tx.Value().Sign())

	expected, err := chain.PackTransfer(common.HexToAddress(recipient), big.NewInt(25_000_000))
	suite.Require().NoError(err)
	suite.Equal(expected, sent.tx.Data())
}

func (suite *ExecutorTestSuite) TestSend_ValidationBeforeAnyWork() {
	cases := []struct {
		name  string
		input domain.SendTransactionInput
		want  error
	}{
		{"unsupported chain", domain.SendTransactionInput{ChainID: 999999, ToAddress: recipient, Amount: "1"}, domain.ErrUnsupportedChain},
		{"bad recipient", domain.SendTransactionInput{ChainID: 3888, ToAddress: "0x123", Amount: "1"}, domain.ErrInvalidAddress},
		{"zero amount", domain.SendTransactionInput{ChainID: 3888, ToAddress: recipient, Amount: "0"}, domain.ErrInvalidAmount},
		{"garbage amount", domain.SendTransactionInput{ChainID: 3888, ToAddress: recipient, Amount: "one"}, domain.ErrInvalidAmount},
		{"bad gas limit", domain.SendTransactionInput{ChainID: 3888, ToAddress: recipient, Amount: "1", GasLimit: "lots"}, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		tc.input.WalletID = walletID
		tc.input.Password = "pw"
		_, err := suite.executor.SendTransaction(suite.ctx, tc.input, userID)
		suite.ErrorIs(err, tc.want, tc.name)
	}
}

func (suite *ExecutorTestSuite) TestSend_WalletErrors() {
	suite.wallets.On("GetByIDAndUser", suite.ctx, "missing", userID).Return(nil, domain.ErrWalletNotFound)
	_, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: "missing", ToAddress: recipient, Amount: "1", Password: "pw", ChainID: 3888,
	}, userID)
	suite.ErrorIs(err, domain.ErrWalletNotFound)

	suite.walletOn(56)
	_, err = suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1", Password: "pw", ChainID: 3888,
	}, userID)
	suite.ErrorIs(err, domain.ErrChainMismatch)

	_, err = suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1", Password: "nope", ChainID: 56,
	}, userID)
	suite.ErrorIs(err, domain.ErrInvalidPassword)
}

func (suite *ExecutorTestSuite) TestSend_BroadcastFailureLeavesNoRecord() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	c.EXPECT().BalanceAt(gomock.Any(), gomock.Any(), gomock.Any()).Return(ether(10), nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
	c.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).Return(errors.New("replacement transaction underpriced"))

	_, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1", Asset: "KLC", Password: "pw", ChainID: 3888,
	}, userID)
	suite.ErrorIs(err, domain.ErrBroadcastFailure)
	suite.Contains(err.Error(), "replacement transaction underpriced")
}

func (suite *ExecutorTestSuite) TestSend_LedgerWriteFailureCarriesHash() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	c.EXPECT().BalanceAt(gomock.Any(), gomock.Any(), gomock.Any()).Return(ether(10), nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
	sent := suite.captureBroadcast(3888)
	suite.txRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Times(3)

	_, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1", Asset: "KLC", Password: "pw", ChainID: 3888,
	}, userID)
	suite.ErrorIs(err, domain.ErrLedgerWriteFailure)

	var lwe *domain.LedgerWriteError
	suite.Require().ErrorAs(err, &lwe)
	suite.Equal(ledger.NormalizeHash(sent.tx.Hash().Hex()), lwe.Hash)
}

func (suite *ExecutorTestSuite) TestSend_LedgerRetryAnswersWithStoredRow() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	c.EXPECT().BalanceAt(gomock.Any(), gomock.Any(), gomock.Any()).Return(ether(10), nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
	suite.captureBroadcast(3888)

	// the first insert lands but its acknowledgement is lost
	var attempts []domain.TransactionRecord
	capture := func(args mock.Arguments) {
		attempts = append(attempts, *args.Get(1).(*domain.TransactionRecord))
	}
	suite.txRepo.On("Create", mock.Anything, mock.Anything).Run(capture).Return(errors.New("connection reset")).Once()
	suite.txRepo.On("Create", mock.Anything, mock.Anything).Run(capture).Return(nil).Once()

	resp, err := suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
		WalletID: walletID, ToAddress: recipient, Amount: "1", Asset: "KLC", Password: "pw", ChainID: 3888,
	}, userID)
	suite.Require().NoError(err)
	suite.Require().Len(attempts, 2)

	stored := attempts[0]
	suite.NotEmpty(stored.ID)
	suite.Equal(stored.ID, attempts[1].ID)
	suite.Equal(stored.Timestamp, attempts[1].Timestamp)
	suite.Equal(stored.ID, resp.ID)
	suite.Equal(stored.Timestamp, resp.Timestamp)
}

func (suite *ExecutorTestSuite) TestSend_ConcurrentSendsReadNonceAfterBroadcast() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil).Times(2)
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil).Times(2)
	c.EXPECT().BalanceAt(gomock.Any(), gomock.Any(), gomock.Any()).Return(ether(10), nil).Times(2)

	// the node's pending nonce only advances once a transaction is accepted
	var (
		mu        sync.Mutex
		accepted  uint64
		nonceRead []uint64
		nonces    []uint64
	)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, common.Address) (uint64, error) {
		mu.Lock()
		defer mu.Unlock()
		nonceRead = append(nonceRead, accepted)
		return accepted, nil
	}).Times(2)
	c.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, tx *types.Transaction) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		nonces = append(nonces, tx.Nonce())
		accepted++
		return nil
	}).Times(2)
	suite.txRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Times(2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = suite.executor.SendTransaction(suite.ctx, domain.SendTransactionInput{
				WalletID: walletID, ToAddress: recipient, Amount: "1", Asset: "KLC", Password: "pw", ChainID: 3888,
			}, userID)
		}()
	}
	wg.Wait()

	suite.Require().NoError(errs[0])
	suite.Require().NoError(errs[1])
	suite.Equal([]uint64{0, 1}, nonceRead, "second nonce read happens after the first broadcast")
	suite.Equal([]uint64{0, 1}, nonces)
}

func (suite *ExecutorTestSuite) TestSendContract_GasBuffer() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(100_000), nil)
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(9), nil)
	sent := suite.captureBroadcast(3888)
	suite.txRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.TransactionRecord) bool {
		return r.Type == domain.TxTypeSwap && r.Amount == "0.5"
	})).Return(nil)

	resp, err := suite.executor.SendContractTransaction(suite.ctx, domain.ContractTransactionInput{
		WalletID: walletID, ToAddress: recipient, Value: "500000000000000000", Data: "0xdeadbeef",
		Password: "pw", ChainID: 3888, Type: domain.TxTypeSwap,
	}, userID)
	suite.Require().NoError(err)

	suite.Equal(uint64(120_000), sent.tx.Gas())
	suite.Equal([]byte{0xde, 0xad, 0xbe, 0xef}, sent.tx.Data())
	suite.Equal("500000000000000000", sent.tx.Value().String())
	suite.Equal(domain.TxStatusPending, resp.Status)
}

func (suite *ExecutorTestSuite) TestSendContract_EstimationFallback() {
	suite.walletOn(3888)
	c := suite.clients[3888]
	c.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(0), errors.New("execution reverted"))
	c.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	c.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
	sent := suite.captureBroadcast(3888)
	suite.expectLedgerWrite()

	_, err := suite.executor.SendContractTransaction(suite.ctx, domain.ContractTransactionInput{
		WalletID: walletID, ToAddress: recipient, Data: "a9059cbb", Password: "pw", ChainID: 3888,
	}, userID)
	suite.Require().NoError(err)
	suite.Equal(uint64(500_000), sent.tx.Gas())
}

func (suite *ExecutorTestSuite) TestSendContract_Validation() {
	base := domain.ContractTransactionInput{WalletID: walletID, ToAddress: recipient, Password: "pw", ChainID: 3888}

	bad := base
	bad.Data = "0xzz"
	_, err := suite.executor.SendContractTransaction(suite.ctx, bad, userID)
	suite.ErrorIs(err, domain.ErrInvalidInput)

	bad = base
	bad.Value = "-1"
	_, err = suite.executor.SendContractTransaction(suite.ctx, bad, userID)
	suite.ErrorIs(err, domain.ErrInvalidAmount)

	bad = base
	bad.Type = "BRIDGE"
	_, err = suite.executor.SendContractTransaction(suite.ctx, bad, userID)
	suite.ErrorIs(err, domain.ErrInvalidInput)

	bad = base
	bad.ChainID = 1
	_, err = suite.executor.SendContractTransaction(suite.ctx, bad, userID)
	suite.ErrorIs(err, domain.ErrUnsupportedChain)
}

func pending(hash string) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID: "tx-1", Type: domain.TxTypeSend, Status: domain.TxStatusPending, Hash: hash,
		ChainID: 3888, UserID: userID, WalletID: walletID,
	}
}

func (suite *ExecutorTestSuite) TestRefresh_Confirms() {
	hash := common.HexToHash("0x01").Hex()
	block := uint64(99)
	confirmed := pending(hash)
	confirmed.Status = domain.TxStatusConfirmed
	confirmed.BlockNumber = &block

	suite.txRepo.On("GetByHash", suite.ctx, hash).Return(pending(hash), nil)
	suite.clients[3888].EXPECT().TransactionReceipt(gomock.Any(), common.HexToHash(hash)).
		Return(&types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(99)}, nil)
	suite.txRepo.On("UpdateStatus", suite.ctx, hash, domain.TxStatusConfirmed, &block).Return(confirmed, nil)

	rec, err := suite.executor.RefreshTransactionStatus(suite.ctx, userID, hash)
	suite.Require().NoError(err)
	suite.Equal(domain.TxStatusConfirmed, rec.Status)
}

func (suite *ExecutorTestSuite) TestRefresh_Reverted() {
	hash := common.HexToHash("0x02").Hex()
	failed := pending(hash)
	failed.Status = domain.TxStatusFailed

	suite.txRepo.On("GetByHash", suite.ctx, hash).Return(pending(hash), nil)
	suite.clients[3888].EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).
		Return(&types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}, nil)
	suite.txRepo.On("UpdateStatus", suite.ctx, hash, domain.TxStatusFailed, (*uint64)(nil)).Return(failed, nil)

	rec, err := suite.executor.RefreshTransactionStatus(suite.ctx, userID, hash)
	suite.Require().NoError(err)
	suite.Equal(domain.TxStatusFailed, rec.Status)
}

func (suite *ExecutorTestSuite) TestRefresh_NotMinedYet() {
	hash := common.HexToHash("0x03").Hex()
	suite.txRepo.On("GetByHash", suite.ctx, hash).Return(pending(hash), nil)
	suite.clients[3888].EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, ethereum.NotFound)

	rec, err := suite.executor.RefreshTransactionStatus(suite.ctx, userID, hash)
	suite.Require().NoError(err)
	suite.Equal(domain.TxStatusPending, rec.Status)
}

func (suite *ExecutorTestSuite) TestRefresh_OtherUsersTransaction() {
	hash := common.HexToHash("0x04").Hex()
	suite.txRepo.On("GetByHash", suite.ctx, hash).Return(pending(hash), nil)

	_, err := suite.executor.RefreshTransactionStatus(suite.ctx, "someone-else", hash)
	suite.ErrorIs(err, domain.ErrTransactionNotFound)
}

func (suite *ExecutorTestSuite) TestRefresh_TerminalUntouched() {
	hash := common.HexToHash("0x05").Hex()
	done := pending(hash)
	done.Status = domain.TxStatusFailed
	suite.txRepo.On("GetByHash", suite.ctx, hash).Return(done, nil)

	rec, err := suite.executor.RefreshTransactionStatus(suite.ctx, userID, hash)
	suite.Require().NoError(err)
	suite.Equal(domain.TxStatusFailed, rec.Status)
}

func TestExecutorTestSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}

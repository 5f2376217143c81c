package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/chain"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/custody"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/ledger"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
	"github.com/quangdang46/DeFi-Wallet/shared/metrics"
	"github.com/quangdang46/DeFi-Wallet/shared/resilience"
)

const (
	kindNative   = "native"
	kindERC20    = "erc20"
	kindContract = "contract"
)

var contractAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Executor validates, signs, broadcasts and records outgoing transactions
type Executor struct {
	registry *chain.Registry
	wallets  domain.WalletRepository
	custody  *custody.Custody
	ledger   *ledger.Ledger
	locker   domain.WalletLocker
	retry    *resilience.RetryConfig
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

type Option func(*Executor)

func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLedgerRetry sets the retry policy for recording a broadcast transaction
func WithLedgerRetry(cfg *resilience.RetryConfig) Option {
	return func(e *Executor) { e.retry = cfg }
}

func New(
	registry *chain.Registry,
	wallets domain.WalletRepository,
	keys *custody.Custody,
	txLedger *ledger.Ledger,
	locker domain.WalletLocker,
	opts ...Option,
) *Executor {
	e := &Executor{
		registry: registry,
		wallets:  wallets,
		custody:  keys,
		ledger:   txLedger,
		locker:   locker,
		retry:    resilience.DefaultRetryConfig(),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// plan is an unsigned transaction whose nonce is read under the wallet lock
type plan struct {
	kind     string
	to       common.Address
	value    *big.Int
	data     []byte
	gasLimit uint64
	gasPrice *big.Int

	// native transfers check balance >= value + fee before signing
	checkBalance bool
}

func (p *plan) fee() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(p.gasLimit), p.gasPrice)
}

// overrides are the caller-supplied gas values, parsed before any network work
type overrides struct {
	gasLimit uint64
	gasPrice *big.Int
}

func parseOverrides(gasLimit, gasPrice string) (overrides, error) {
	var o overrides
	if s := strings.TrimSpace(gasLimit); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil || v == 0 {
			return o, fmt.Errorf("%w: gasLimit %q", domain.ErrInvalidInput, gasLimit)
		}
		o.gasLimit = v
	}
	if s := strings.TrimSpace(gasPrice); s != "" {
		v, err := chain.ParseWei(s)
		if err != nil || v.Sign() == 0 {
			return o, fmt.Errorf("%w: gasPrice %q", domain.ErrInvalidInput, gasPrice)
		}
		o.gasPrice = v
	}
	return o, nil
}

// loadWallet resolves the caller's wallet and checks it lives on chainID
func (e *Executor) loadWallet(ctx context.Context, userID domain.UserID, walletID domain.WalletID, chainID domain.ChainID) (*domain.EncryptedWallet, error) {
	if userID == "" || walletID == "" {
		return nil, domain.ErrWalletNotFound
	}
	w, err := e.wallets.GetByIDAndUser(ctx, walletID, userID)
	if err != nil {
		return nil, err
	}
	if w.ChainID != chainID {
		return nil, fmt.Errorf("%w: wallet is on %d, request is for %d", domain.ErrChainMismatch, w.ChainID, chainID)
	}
	return w, nil
}

// SendTransaction transfers the native asset or an ERC-20 token
func (e *Executor) SendTransaction(ctx context.Context, input domain.SendTransactionInput, userID domain.UserID) (*domain.TransactionResponse, error) {
	cfg, err := e.registry.ChainConfig(input.ChainID)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(input.ToAddress) {
		return nil, fmt.Errorf("%w: toAddress %q", domain.ErrInvalidAddress, input.ToAddress)
	}
	if d, err := decimal.NewFromString(strings.TrimSpace(input.Amount)); err != nil || d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, input.Amount)
	}
	over, err := parseOverrides(input.GasLimit, input.GasPrice)
	if err != nil {
		return nil, err
	}

	wallet, err := e.loadWallet(ctx, userID, input.WalletID, input.ChainID)
	if err != nil {
		return nil, err
	}

	to := common.HexToAddress(input.ToAddress)
	record := &domain.TransactionRecord{
		Type:        domain.TxTypeSend,
		FromAddress: wallet.Address,
		ToAddress:   to.Hex(),
		Amount:      strings.TrimSpace(input.Amount),
		ChainID:     cfg.ChainID,
		UserID:      userID,
		WalletID:    wallet.ID,
	}

	var (
		signed *types.Transaction
		p      *plan
	)
	err = e.custody.WithSigner(wallet, input.Password, func(signer *custody.Signer) error {
		from := signer.Address()
		if isNativeAsset(input.Asset, cfg) {
			p, err = e.planNative(ctx, cfg, from, to, input.Amount, over)
		} else {
			p, err = e.planERC20(ctx, cfg, from, to, common.HexToAddress(strings.TrimSpace(input.Asset)), input.Amount, over, record)
		}
		if err != nil {
			return err
		}
		signed, err = e.signAndBroadcast(ctx, cfg, wallet, signer, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	fee := p.fee().String()
	record.Hash = signed.Hash().Hex()
	record.Fee = &fee
	return e.record(ctx, record, p)
}

func isNativeAsset(asset string, cfg domain.ChainConfig) bool {
	a := strings.TrimSpace(asset)
	return strings.EqualFold(a, cfg.NativeSymbol) ||
		strings.EqualFold(a, domain.ZeroAddress) ||
		!contractAddressPattern.MatchString(a)
}

func (e *Executor) planNative(ctx context.Context, cfg domain.ChainConfig, from, to common.Address, amount string, over overrides) (*plan, error) {
	value, err := chain.ParseUnits(amount, cfg.NativeDecimals)
	if err != nil {
		return nil, err
	}
	p := &plan{kind: kindNative, to: to, value: value, checkBalance: true}

	p.gasLimit = over.gasLimit
	if p.gasLimit == 0 {
		p.gasLimit = e.estimate(ctx, cfg, p.kind, ethereum.CallMsg{From: from, To: &to, Value: value}, cfg.Capabilities.NativeTransferGas, 100)
	}
	if p.gasPrice, err = e.gasPrice(ctx, cfg, over); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Executor) planERC20(ctx context.Context, cfg domain.ChainConfig, from, to, token common.Address, amount string, over overrides, record *domain.TransactionRecord) (*plan, error) {
	symbol, err := e.registry.TokenSymbol(ctx, cfg.ChainID, token)
	if err != nil {
		return nil, err
	}
	decimals, err := e.registry.TokenDecimals(ctx, cfg.ChainID, token)
	if err != nil {
		return nil, err
	}
	raw, err := chain.ParseUnits(amount, decimals)
	if err != nil {
		return nil, err
	}
	bal, err := e.registry.TokenBalance(ctx, cfg.ChainID, token, from)
	if err != nil {
		return nil, err
	}
	if bal.Cmp(raw) < 0 {
		return nil, &domain.InsufficientTokenBalanceError{Symbol: symbol}
	}

	data, err := chain.PackTransfer(to, raw)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	p := &plan{kind: kindERC20, to: token, value: new(big.Int), data: data}

	p.gasLimit = over.gasLimit
	if p.gasLimit == 0 {
		p.gasLimit = e.estimate(ctx, cfg, p.kind, ethereum.CallMsg{From: from, To: &token, Data: data}, cfg.Capabilities.TokenTransferGas, 100)
	}
	if p.gasPrice, err = e.gasPrice(ctx, cfg, over); err != nil {
		return nil, err
	}

	tokenAddr := token.Hex()
	record.TokenAddress = &tokenAddr
	record.TokenSymbol = &symbol
	record.TokenDecimals = &decimals
	return p, nil
}

// SendContractTransaction signs and broadcasts an arbitrary call. The node is
// the only balance check.
func (e *Executor) SendContractTransaction(ctx context.Context, input domain.ContractTransactionInput, userID domain.UserID) (*domain.TransactionResponse, error) {
	cfg, err := e.registry.ChainConfig(input.ChainID)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(input.ToAddress) {
		return nil, fmt.Errorf("%w: toAddress %q", domain.ErrInvalidAddress, input.ToAddress)
	}
	value, err := chain.ParseWei(input.Value)
	if err != nil {
		return nil, err
	}
	data, err := decodeCallData(input.Data)
	if err != nil {
		return nil, err
	}
	txType := input.Type
	if txType == "" {
		txType = domain.TxTypeSend
	}
	if !txType.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, txType)
	}
	over, err := parseOverrides(input.GasLimit, input.GasPrice)
	if err != nil {
		return nil, err
	}

	wallet, err := e.loadWallet(ctx, userID, input.WalletID, input.ChainID)
	if err != nil {
		return nil, err
	}

	to := common.HexToAddress(input.ToAddress)
	var (
		signed *types.Transaction
		p      *plan
	)
	err = e.custody.WithSigner(wallet, input.Password, func(signer *custody.Signer) error {
		p = &plan{kind: kindContract, to: to, value: value, data: data}
		p.gasLimit = over.gasLimit
		if p.gasLimit == 0 {
			msg := ethereum.CallMsg{From: signer.Address(), To: &to, Value: value, Data: data}
			p.gasLimit = e.estimate(ctx, cfg, p.kind, msg, cfg.Capabilities.ContractCallGas, cfg.Capabilities.ContractGasBufferPercent)
		}
		if p.gasPrice, err = e.gasPrice(ctx, cfg, over); err != nil {
			return err
		}
		signed, err = e.signAndBroadcast(ctx, cfg, wallet, signer, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	fee := p.fee().String()
	return e.record(ctx, &domain.TransactionRecord{
		Type:        txType,
		Hash:        signed.Hash().Hex(),
		FromAddress: wallet.Address,
		ToAddress:   to.Hex(),
		Amount:      chain.FormatUnits(value, cfg.NativeDecimals),
		Fee:         &fee,
		ChainID:     cfg.ChainID,
		UserID:      userID,
		WalletID:    wallet.ID,
	}, p)
}

func decodeCallData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: data is not hex: %v", domain.ErrInvalidInput, err)
	}
	return b, nil
}

// estimate returns the provider estimate scaled by bufferPct, or fallback when estimation fails
func (e *Executor) estimate(ctx context.Context, cfg domain.ChainConfig, kind string, msg ethereum.CallMsg, fallback, bufferPct uint64) uint64 {
	g, err := e.registry.EstimateGas(ctx, cfg.ChainID, msg)
	if err != nil || g == 0 {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"chain_id":  cfg.ChainID,
			"kind":      kind,
			"gas_limit": fallback,
		}).Warn("gas estimation failed, using chain default")
		e.metrics.RecordGasFallback(cfg.ChainID, kind)
		return fallback
	}
	if bufferPct > 100 {
		return g * bufferPct / 100
	}
	return g
}

func (e *Executor) gasPrice(ctx context.Context, cfg domain.ChainConfig, over overrides) (*big.Int, error) {
	if over.gasPrice != nil {
		return over.gasPrice, nil
	}
	return e.registry.AdjustedGasPrice(ctx, cfg.ChainID)
}

// signAndBroadcast holds the wallet lock from the balance check and nonce read until the node accepts the transaction
func (e *Executor) signAndBroadcast(ctx context.Context, cfg domain.ChainConfig, wallet *domain.EncryptedWallet, signer *custody.Signer, p *plan) (*types.Transaction, error) {
	unlock, err := e.locker.Lock(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	from := signer.Address()
	if p.checkBalance {
		bal, err := e.registry.Balance(ctx, cfg.ChainID, from)
		if err != nil {
			return nil, err
		}
		need := new(big.Int).Add(p.value, p.fee())
		if bal.Cmp(need) < 0 {
			return nil, fmt.Errorf("%w: balance %s, need %s", domain.ErrInsufficientFunds, bal, need)
		}
	}

	nonce, err := e.registry.TransactionCount(ctx, cfg.ChainID, from)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &p.to,
		Value:    p.value,
		Gas:      p.gasLimit,
		GasPrice: p.gasPrice,
		Data:     p.data,
	})
	signed, err := signer.SignTx(tx, big.NewInt(cfg.ChainID))
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := e.registry.SendTransaction(ctx, cfg.ChainID, signed); err != nil {
		e.metrics.RecordBroadcastFailure(cfg.ChainID)
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"chain_id":  cfg.ChainID,
			"wallet_id": wallet.ID,
			"nonce":     nonce,
		}).Warn("broadcast rejected")
		return nil, err
	}

	e.metrics.RecordTransactionSent(cfg.ChainID, p.kind)
	e.logger.WithContext(ctx).Audit("transaction_broadcast", map[string]interface{}{
		"chain_id":  cfg.ChainID,
		"wallet_id": wallet.ID,
		"hash":      signed.Hash().Hex(),
		"kind":      p.kind,
		"nonce":     nonce,
	})
	return signed, nil
}

// record stores the broadcast transaction. The chain already has it, so the
// write outlives request cancellation and is retried before giving up.
// ID and timestamp are fixed before the first attempt so a retry after a lost
// acknowledgement answers with the row that was actually stored.
func (e *Executor) record(ctx context.Context, rec *domain.TransactionRecord, p *plan) (*domain.TransactionResponse, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	wctx := context.WithoutCancel(ctx)
	retry := *e.retry
	retry.RetryableErrors = func(err error) bool { return !errors.Is(err, domain.ErrInvalidInput) }

	var stored *domain.TransactionRecord
	err := resilience.RetryWithConfig(wctx, &retry, func(ctx context.Context) error {
		var err error
		stored, err = e.ledger.CreateTransaction(ctx, rec)
		return err
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"hash":      rec.Hash,
			"chain_id":  rec.ChainID,
			"wallet_id": rec.WalletID,
		}).Error("transaction broadcast but ledger write failed")
		return nil, &domain.LedgerWriteError{Hash: ledger.NormalizeHash(rec.Hash), Err: err}
	}

	return &domain.TransactionResponse{
		ID:          stored.ID,
		Hash:        stored.Hash,
		Status:      stored.Status,
		GasPrice:    p.gasPrice.String(),
		Fee:         p.fee().String(),
		BlockNumber: stored.BlockNumber,
		Timestamp:   stored.Timestamp,
	}, nil
}

// RefreshTransactionStatus reads the receipt once and settles a pending record.
// An unmined transaction is returned unchanged.
func (e *Executor) RefreshTransactionStatus(ctx context.Context, userID domain.UserID, hash string) (*domain.TransactionRecord, error) {
	rec, err := e.ledger.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, domain.ErrTransactionNotFound
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	rcpt, err := e.registry.TransactionReceipt(ctx, rec.ChainID, common.HexToHash(rec.Hash))
	if errors.Is(err, ethereum.NotFound) {
		return rec, nil
	}
	if err != nil {
		return nil, err
	}

	if rcpt.Status == types.ReceiptStatusSuccessful {
		rec, err = e.ledger.ConfirmTransaction(ctx, rec.Hash, rcpt.BlockNumber.Uint64())
	} else {
		rec, err = e.ledger.FailTransaction(ctx, rec.Hash)
	}
	if errors.Is(err, domain.ErrTransactionNotPending) {
		// settled concurrently
		return e.ledger.GetByHash(ctx, hash)
	}
	return rec, err
}

package domain

import (
	"context"
	"time"
)

// Type aliases for better readability
type WalletID = string
type UserID = string
type Address = string
type ChainID = int64

// ZeroAddress identifies the native asset in balances and transfers
const ZeroAddress = "0x0000000000000000000000000000000000000000"

type TransactionType string

const (
	TxTypeSend             TransactionType = "SEND"
	TxTypeReceive          TransactionType = "RECEIVE"
	TxTypeSwap             TransactionType = "SWAP"
	TxTypeStake            TransactionType = "STAKE"
	TxTypeUnstake          TransactionType = "UNSTAKE"
	TxTypeClaimReward      TransactionType = "CLAIM_REWARD"
	TxTypeProvideLiquidity TransactionType = "PROVIDE_LIQUIDITY"
	TxTypeRemoveLiquidity  TransactionType = "REMOVE_LIQUIDITY"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxTypeSend, TxTypeReceive, TxTypeSwap, TxTypeStake, TxTypeUnstake,
		TxTypeClaimReward, TxTypeProvideLiquidity, TxTypeRemoveLiquidity:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "PENDING"
	TxStatusConfirmed TransactionStatus = "CONFIRMED"
	TxStatusFailed    TransactionStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed
func (s TransactionStatus) Terminal() bool {
	return s == TxStatusConfirmed || s == TxStatusFailed
}

// DiscoveryStrategy selects how a chain's token holdings are found
type DiscoveryStrategy string

const (
	// DiscoveryBlockscout uses ?module=account&action=tokenlist, which returns balances directly
	DiscoveryBlockscout DiscoveryStrategy = "blockscout"
	// DiscoveryEtherscan uses ?module=account&action=tokentx and reads balanceOf per contract seen
	DiscoveryEtherscan DiscoveryStrategy = "etherscan"
	// DiscoveryNone always uses the predefined token list
	DiscoveryNone DiscoveryStrategy = "none"
)

// ChainCapabilities replaces per-chain conditionals with data
type ChainCapabilities struct {
	NativeTransferGas         uint64            `json:"nativeTransferGas"`
	TokenTransferGas          uint64            `json:"tokenTransferGas"`
	ContractCallGas           uint64            `json:"contractCallGas"`
	ContractGasBufferPercent  uint64            `json:"contractGasBufferPercent"`
	GasPriceMultiplierPercent uint64            `json:"gasPriceMultiplierPercent"`
	Discovery                 DiscoveryStrategy `json:"discovery"`
	ExplorerAPIURL            string            `json:"explorerApiUrl,omitempty"`
	ExplorerAPIKey            string            `json:"-"`
}

type ChainConfig struct {
	ChainID          ChainID           `json:"chainId"`
	Name             string            `json:"name"`
	NativeSymbol     string            `json:"symbol"`
	NativeDecimals   uint8             `json:"decimals"`
	RPCURL           string            `json:"rpcUrl"`
	BlockExplorerURL string            `json:"blockExplorer"`
	Capabilities     ChainCapabilities `json:"capabilities"`
	Tokens           []TokenInfo       `json:"tokens,omitempty"`
}

type TokenInfo struct {
	Symbol          string `json:"symbol"`
	ContractAddress string `json:"contractAddress"`
	Decimals        uint8  `json:"decimals"`
	Name            string `json:"name"`
}

type TokenBalance struct {
	Symbol           string `json:"symbol"`
	RawBalance       string `json:"rawBalance"`
	FormattedBalance string `json:"formattedBalance"`
	ContractAddress  string `json:"contractAddress"`
	Decimals         uint8  `json:"decimals"`
	Name             string `json:"name"`
}

// EncryptedWallet never carries the plaintext key
type EncryptedWallet struct {
	ID                  WalletID  `json:"id"`
	Address             Address   `json:"address"`
	EncryptedPrivateKey string    `json:"-"`
	Salt                string    `json:"-"`
	IV                  string    `json:"-"`
	ChainID             ChainID   `json:"chainId"`
	UserID              UserID    `json:"userId"`
	CreatedAt           time.Time `json:"createdAt"`
}

type TransactionRecord struct {
	ID            string            `json:"id"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Hash          string            `json:"hash"`
	FromAddress   Address           `json:"fromAddress"`
	ToAddress     Address           `json:"toAddress"`
	Amount        string            `json:"amount"`
	TokenAddress  *string           `json:"tokenAddress,omitempty"`
	TokenSymbol   *string           `json:"tokenSymbol,omitempty"`
	TokenDecimals *uint8            `json:"tokenDecimals,omitempty"`
	Fee           *string           `json:"fee,omitempty"`
	BlockNumber   *uint64           `json:"blockNumber,omitempty"`
	ChainID       ChainID           `json:"chainId"`
	Timestamp     time.Time         `json:"timestamp"`
	UserID        UserID            `json:"userId"`
	WalletID      WalletID          `json:"walletId"`
}

type SendTransactionInput struct {
	WalletID  WalletID `json:"walletId"`
	ToAddress Address  `json:"toAddress"`
	Amount    string   `json:"amount"`
	Asset     string   `json:"asset"`
	Password  string   `json:"password"`
	ChainID   ChainID  `json:"chainId"`
	GasLimit  string   `json:"gasLimit,omitempty"`
	GasPrice  string   `json:"gasPrice,omitempty"`
}

// ContractTransactionInput carries an arbitrary call; Value is in wei and Data is hex.
// Type labels the ledger record and defaults to SEND.
type ContractTransactionInput struct {
	WalletID  WalletID        `json:"walletId"`
	ToAddress Address         `json:"toAddress"`
	Value     string          `json:"value"`
	Data      string          `json:"data"`
	Password  string          `json:"password"`
	ChainID   ChainID         `json:"chainId"`
	GasLimit  string          `json:"gasLimit,omitempty"`
	GasPrice  string          `json:"gasPrice,omitempty"`
	Type      TransactionType `json:"type,omitempty"`
}

type TransactionResponse struct {
	ID          string            `json:"id"`
	Hash        string            `json:"hash"`
	Status      TransactionStatus `json:"status"`
	GasPrice    string            `json:"gasPrice,omitempty"`
	Fee         string            `json:"fee,omitempty"`
	BlockNumber *uint64           `json:"blockNumber,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Page bounds list queries; Normalize applies the defaults
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// WalletRepository defines the data persistence interface for encrypted wallets
type WalletRepository interface {
	Create(ctx context.Context, wallet *EncryptedWallet) error
	// GetByIDAndUser returns ErrWalletNotFound when the wallet is absent or owned by someone else
	GetByIDAndUser(ctx context.Context, walletID WalletID, userID UserID) (*EncryptedWallet, error)
	ListByUser(ctx context.Context, userID UserID) ([]*EncryptedWallet, error)
}

// TransactionRepository defines the data persistence interface for the ledger
type TransactionRepository interface {
	Create(ctx context.Context, record *TransactionRecord) error
	GetByID(ctx context.Context, id string) (*TransactionRecord, error)
	GetByHash(ctx context.Context, hash string) (*TransactionRecord, error)
	ListByUser(ctx context.Context, userID UserID, page Page) ([]*TransactionRecord, error)
	ListByWallet(ctx context.Context, walletID WalletID, page Page) ([]*TransactionRecord, error)
	// UpdateStatus moves a PENDING record to status. It returns ErrTransactionNotFound
	// for an unknown hash and ErrTransactionNotPending when the record is terminal.
	UpdateStatus(ctx context.Context, hash string, status TransactionStatus, blockNumber *uint64) (*TransactionRecord, error)
}

type EventPublisher interface {
	PublishWalletCreated(ctx context.Context, event *WalletCreatedEvent) error
	PublishTransactionEvent(ctx context.Context, routingKey string, record *TransactionRecord) error
}

// WalletLocker serializes sends from one wallet between nonce read and broadcast
type WalletLocker interface {
	Lock(ctx context.Context, walletID WalletID) (unlock func(), err error)
}

type WalletCreatedEvent struct {
	WalletID  WalletID  `json:"wallet_id"`
	UserID    UserID    `json:"user_id"`
	Address   Address   `json:"address"`
	ChainID   ChainID   `json:"chain_id"`
	Imported  bool      `json:"imported"`
	CreatedAt time.Time `json:"created_at"`
}

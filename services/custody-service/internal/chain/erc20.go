package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// ERC20ABI exposes the parsed ABI for callers that encode responses (tests, mocks)
func ERC20ABI() abi.ABI { return erc20ABI }

// PackTransfer encodes transfer(to, amount) calldata
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

func (r *Registry) callERC20(ctx context.Context, chainID domain.ChainID, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := r.CallContract(ctx, chainID, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, err
	}
	values, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s from %s: %w", method, token.Hex(), err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack %s from %s: expected 1 value, got %d", method, token.Hex(), len(values))
	}
	return values, nil
}

func (r *Registry) TokenBalance(ctx context.Context, chainID domain.ChainID, token, owner common.Address) (*big.Int, error) {
	v, err := r.callERC20(ctx, chainID, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := v[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf from %s: unexpected type %T", token.Hex(), v[0])
	}
	return bal, nil
}

func (r *Registry) TokenDecimals(ctx context.Context, chainID domain.ChainID, token common.Address) (uint8, error) {
	v, err := r.callERC20(ctx, chainID, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := v[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals from %s: unexpected type %T", token.Hex(), v[0])
	}
	return d, nil
}

func (r *Registry) TokenSymbol(ctx context.Context, chainID domain.ChainID, token common.Address) (string, error) {
	return r.stringCall(ctx, chainID, token, "symbol")
}

func (r *Registry) TokenName(ctx context.Context, chainID domain.ChainID, token common.Address) (string, error) {
	return r.stringCall(ctx, chainID, token, "name")
}

func (r *Registry) stringCall(ctx context.Context, chainID domain.ChainID, token common.Address, method string) (string, error) {
	v, err := r.callERC20(ctx, chainID, token, method)
	if err != nil {
		return "", err
	}
	s, ok := v[0].(string)
	if !ok {
		return "", fmt.Errorf("%s from %s: unexpected type %T", method, token.Hex(), v[0])
	}
	return s, nil
}

// ReadTokenMetadata reads symbol, name and decimals; any failing call fails the read
func (r *Registry) ReadTokenMetadata(ctx context.Context, chainID domain.ChainID, token common.Address) (domain.TokenInfo, error) {
	symbol, err := r.TokenSymbol(ctx, chainID, token)
	if err != nil {
		return domain.TokenInfo{}, err
	}
	name, err := r.TokenName(ctx, chainID, token)
	if err != nil {
		return domain.TokenInfo{}, err
	}
	decimals, err := r.TokenDecimals(ctx, chainID, token)
	if err != nil {
		return domain.TokenInfo{}, err
	}
	return domain.TokenInfo{
		Symbol:          symbol,
		ContractAddress: token.Hex(),
		Decimals:        decimals,
		Name:            name,
	}, nil
}

package chainmock

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	common "github.com/ethereum/go-ethereum/common"
)

// ErrExecutionReverted mimics a node rejecting an eth_call
var ErrExecutionReverted = errors.New("execution reverted")

const tokenABIJSON = `[
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var tokenABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Token is an in-memory ERC-20 that answers eth_call for the read methods
type Token struct {
	Symbol   string
	Name     string
	Decimals uint8
	Balances map[common.Address]*big.Int
	// Revert makes every call fail, as for an address that is not a token
	Revert bool
}

// Contracts routes eth_call by target address; unknown targets revert
type Contracts map[common.Address]*Token

// Call is shaped for gomock DoAndReturn on CallContract
func (c Contracts) Call(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, ErrExecutionReverted
	}
	tok, ok := c[*msg.To]
	if !ok || tok.Revert || len(msg.Data) < 4 {
		return nil, ErrExecutionReverted
	}

	method, err := tokenABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, ErrExecutionReverted
	}

	switch method.Name {
	case "balanceOf":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		owner := args[0].(common.Address)
		bal := tok.Balances[owner]
		if bal == nil {
			bal = big.NewInt(0)
		}
		return method.Outputs.Pack(bal)
	case "decimals":
		return method.Outputs.Pack(tok.Decimals)
	case "symbol":
		return method.Outputs.Pack(tok.Symbol)
	case "name":
		return method.Outputs.Pack(tok.Name)
	default:
		return nil, fmt.Errorf("%w: %s is not callable", ErrExecutionReverted, method.Name)
	}
}

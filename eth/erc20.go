package eth

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ERC20TransferData returns the calldata of an ERC20 transfer
func ERC20TransferData(to ethCommon.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return data, nil
}

// DecodeERC20Transfer returns the recipient and amount of ERC20 transfer
// calldata
func DecodeERC20Transfer(data []byte) (ethCommon.Address, *big.Int, error) {
	method, ok := erc20ABI.Methods["transfer"]
	if !ok || len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return ethCommon.Address{}, nil, tracerr.Wrap(fmt.Errorf("not an ERC20 transfer"))
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return ethCommon.Address{}, nil, tracerr.Wrap(err)
	}
	to, ok := args[0].(ethCommon.Address)
	if !ok {
		return ethCommon.Address{}, nil, tracerr.Wrap(fmt.Errorf("transfer recipient is %T", args[0]))
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return ethCommon.Address{}, nil, tracerr.Wrap(fmt.Errorf("transfer amount is %T", args[1]))
	}
	return to, amount, nil
}

func (c *EthereumClient) erc20(token ethCommon.Address) *bind.BoundContract {
	return bind.NewBoundContract(token, erc20ABI, c.client, c.client, c.client)
}

// ERC20BalanceOf returns the token balance of account
func (c *EthereumClient) ERC20BalanceOf(ctx context.Context, token,
	account ethCommon.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.erc20(token).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf",
		account); err != nil {
		return nil, tracerr.Wrap(err)
	}
	if len(out) != 1 {
		return nil, tracerr.Wrap(fmt.Errorf("balanceOf returned %d values", len(out)))
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, tracerr.Wrap(fmt.Errorf("balanceOf returned %T", out[0]))
	}
	return balance, nil
}

// ERC20Token returns the symbol and decimals of an ERC20 token
func (c *EthereumClient) ERC20Token(ctx context.Context, address ethCommon.Address) (*common.Token, error) {
	contract := c.erc20(address)
	opts := &bind.CallOpts{Context: ctx}
	var symbol, decimals []interface{}
	if err := contract.Call(opts, &symbol, "symbol"); err != nil {
		return nil, tracerr.Wrap(err)
	}
	if err := contract.Call(opts, &decimals, "decimals"); err != nil {
		return nil, tracerr.Wrap(err)
	}
	token := &common.Token{Address: address}
	if len(symbol) == 1 {
		token.Symbol, _ = symbol[0].(string)
	}
	if len(decimals) == 1 {
		d, _ := decimals[0].(uint8)
		token.Decimals = uint64(d)
	}
	return token, nil
}

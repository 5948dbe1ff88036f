package common

import (
	ethCommon "github.com/ethereum/go-ethereum/common"
)

// NativeTokenAddress is the canonical address of the native, fee paying token
// (ETH).  It is the same on both layers.
var NativeTokenAddress = ethCommon.Address{}

// Token is a struct that represents a token whose balances can be checked
type Token struct {
	Address  ethCommon.Address `meddler:"address"`
	Symbol   string            `meddler:"symbol"`
	Decimals uint64            `meddler:"decimals"`
}

// NativeToken is the native token of both layers
var NativeToken = Token{
	Address:  NativeTokenAddress,
	Symbol:   "ETH",
	Decimals: 18, //nolint:gomnd
}

// IsNative returns true if the token is the fee paying token
func (t Token) IsNative() bool {
	return IsNativeToken(t.Address)
}

// IsNativeToken returns true if addr is the canonical address of the native token
func IsNativeToken(addr ethCommon.Address) bool {
	return addr == NativeTokenAddress
}

// BridgedToken holds the addresses of the same token on each layer
type BridgedToken struct {
	L1 ethCommon.Address
	L2 ethCommon.Address
}

// On returns the address of the token on the given layer
func (t BridgedToken) On(layer Layer) ethCommon.Address {
	if layer == LayerL1 {
		return t.L1
	}
	return t.L2
}

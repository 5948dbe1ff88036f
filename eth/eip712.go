package eth

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
)

// DefaultGasPerPubdataByte is the pubdata price limit used when none is given
const DefaultGasPerPubdataByte = 50000

// EIP712Tx is the rollup native transaction.  It is signed as typed
// structured data and sent with the type prefix 0x71.
type EIP712Tx struct {
	ChainID       *big.Int
	Nonce         uint64
	GasTipCap     *big.Int
	GasFeeCap     *big.Int
	Gas           uint64
	From          ethCommon.Address
	To            ethCommon.Address
	Value         *big.Int
	Data          []byte
	GasPerPubdata *big.Int
}

var eip712Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Transaction": {
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func addrUint(a ethCommon.Address) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).SetBytes(a.Bytes()))
}

func hexOrDec(v *big.Int) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).Set(orZero(v)))
}

// TypedData returns the structured data signed by the sender
func (tx *EIP712Tx) TypedData() apitypes.TypedData {
	data := tx.Data
	if data == nil {
		data = []byte{}
	}
	return apitypes.TypedData{
		Types:       eip712Types,
		PrimaryType: "Transaction",
		Domain: apitypes.TypedDataDomain{
			Name:    "zkSync",
			Version: "2",
			ChainId: hexOrDec(tx.ChainID),
		},
		Message: apitypes.TypedDataMessage{
			"txType":                 hexOrDec(big.NewInt(int64(common.TxTypeEIP712))),
			"from":                   addrUint(tx.From),
			"to":                     addrUint(tx.To),
			"gasLimit":               hexOrDec(new(big.Int).SetUint64(tx.Gas)),
			"gasPerPubdataByteLimit": hexOrDec(tx.GasPerPubdata),
			"maxFeePerGas":           hexOrDec(tx.GasFeeCap),
			"maxPriorityFeePerGas":   hexOrDec(tx.GasTipCap),
			"paymaster":              hexOrDec(nil),
			"nonce":                  hexOrDec(new(big.Int).SetUint64(tx.Nonce)),
			"value":                  hexOrDec(tx.Value),
			"data":                   hexutil.Bytes(data),
			"factoryDeps":            []interface{}{},
			"paymasterInput":         hexutil.Bytes{},
		},
	}
}

// SigningHash returns the EIP712 hash signed by the sender
func (tx *EIP712Tx) SigningHash() (ethCommon.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(tx.TypedData())
	if err != nil {
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	return ethCommon.BytesToHash(hash), nil
}

// Sign signs the transaction with key and returns the raw encoding ready to
// be sent with eth_sendRawTransaction
func (tx *EIP712Tx) Sign(key *ecdsa.PrivateKey) ([]byte, error) {
	if crypto.PubkeyToAddress(key.PublicKey) != tx.From {
		return nil, tracerr.Wrap(fmt.Errorf("key does not match sender %s", tx.From.Hex()))
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return tx.encode(sig)
}

// encode returns 0x71 || rlp(fields).  The signature is carried both split in
// (v, r, s) and whole as the custom signature field.
func (tx *EIP712Tx) encode(sig []byte) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, tracerr.Wrap(fmt.Errorf("invalid signature length %d", len(sig)))
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := new(big.Int).SetUint64(uint64(sig[64]))
	fields := []interface{}{
		tx.Nonce,
		orZero(tx.GasTipCap),
		orZero(tx.GasFeeCap),
		tx.Gas,
		tx.To,
		orZero(tx.Value),
		tx.Data,
		v,
		r,
		s,
		orZero(tx.ChainID),
		tx.From,
		orZero(tx.GasPerPubdata),
		[][]byte{},
		sig,
		[]interface{}{},
	}
	payload, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return append([]byte{byte(common.TxTypeEIP712)}, payload...), nil
}

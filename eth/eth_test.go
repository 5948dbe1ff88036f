package eth

import (
	"context"
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "test test test test test test test test test test test junk"

var (
	_ WalletInterface = (*Wallet)(nil)
	_ AccountFactory  = (*HDAccountFactory)(nil)
	_ BalanceReader   = (*Client)(nil)
)

func TestEIP712Sign(t *testing.T) {
	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	tx := &EIP712Tx{
		ChainID:       big.NewInt(270),
		Nonce:         3,
		GasTipCap:     big.NewInt(0),
		GasFeeCap:     big.NewInt(250000000),
		Gas:           300000,
		From:          from,
		To:            ethCommon.HexToAddress("0x0000000000000000000000000000000000000002"),
		Value:         big.NewInt(200),
		GasPerPubdata: big.NewInt(DefaultGasPerPubdataByte),
	}
	raw, err := tx.Sign(key)
	require.NoError(t, err)
	assert.Equal(t, byte(common.TxTypeEIP712), raw[0])

	var fields []rlp.RawValue
	require.NoError(t, rlp.DecodeBytes(raw[1:], &fields))
	require.Len(t, fields, 16)
	var sender ethCommon.Address
	require.NoError(t, rlp.DecodeBytes(fields[11], &sender))
	assert.Equal(t, from, sender)
	var sig []byte
	require.NoError(t, rlp.DecodeBytes(fields[14], &sig))

	hash, err := tx.SigningHash()
	require.NoError(t, err)
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, from, crypto.PubkeyToAddress(*pub))

	// The signing hash commits to the value
	tx.Value = big.NewInt(201)
	other, err := tx.SigningHash()
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestEIP712SignWrongKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := &EIP712Tx{ChainID: big.NewInt(270), From: ethCommon.HexToAddress("0x01")}
	_, err = tx.Sign(key)
	assert.Error(t, err)
}

func TestCalldata(t *testing.T) {
	to := ethCommon.HexToAddress("0x0000000000000000000000000000000000000abc")

	data, err := ERC20TransferData(to, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, "a9059cbb", ethCommon.Bytes2Hex(data[:4]))
	decodedTo, amount, err := DecodeERC20Transfer(data)
	require.NoError(t, err)
	assert.Equal(t, to, decodedTo)
	assert.Equal(t, big.NewInt(5), amount)
	_, _, err = DecodeERC20Transfer([]byte{0x01, 0x02})
	assert.Error(t, err)

	data, err = RequestL2TransactionData(to, big.NewInt(200), big.NewInt(10000000),
		big.NewInt(800), to)
	require.NoError(t, err)
	method := mailboxABI.Methods["requestL2Transaction"]
	assert.Equal(t, method.ID, data[:4])
	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, to, args[0])
	assert.Equal(t, big.NewInt(200), args[1])
	assert.Equal(t, big.NewInt(800), args[4])

	data, err = WithdrawData(to)
	require.NoError(t, err)
	assert.Equal(t, l2BaseTokenABI.Methods["withdraw"].ID, data[:4])

	proof := []ethCommon.Hash{ethCommon.HexToHash("0x01"), ethCommon.HexToHash("0x02")}
	data, err = FinalizeEthWithdrawalData(big.NewInt(9), big.NewInt(1), 4, []byte{0xaa}, proof)
	require.NoError(t, err)
	assert.Equal(t, mailboxABI.Methods["finalizeEthWithdrawal"].ID, data[:4])
}

func TestDepositL2Hash(t *testing.T) {
	mailbox := ethCommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	l2Hash := ethCommon.HexToHash("0xdeadbeef")
	data := append(ethCommon.LeftPadBytes([]byte{7}, 32), l2Hash.Bytes()...)
	logs := []*types.Log{
		{Address: ethCommon.HexToAddress("0x01"), Data: make([]byte, 64)},
		{Address: mailbox, Data: data},
	}
	hash, err := DepositL2Hash(mailbox, logs)
	require.NoError(t, err)
	assert.Equal(t, l2Hash, hash)

	_, err = DepositL2Hash(mailbox, logs[:1])
	assert.Equal(t, ErrDepositHashNotFound, tracerr.Unwrap(err))
}

func TestWithdrawalMessage(t *testing.T) {
	event := l1MessengerABI.Events["L1MessageSent"]
	message := []byte{0x6c, 0x09, 0x60, 0xf9, 0x01, 0x02}
	data, err := event.Inputs.NonIndexed().Pack(message)
	require.NoError(t, err)
	logs := []*types.Log{{
		Address: L1MessengerAddress,
		Topics:  []ethCommon.Hash{event.ID, {}, {}},
		Data:    data,
	}}
	got, err := WithdrawalMessage(logs)
	require.NoError(t, err)
	assert.Equal(t, message, got)

	_, err = WithdrawalMessage(nil)
	assert.Equal(t, ErrWithdrawalMessageNotFound, tracerr.Unwrap(err))
}

func TestHDAccountFactory(t *testing.T) {
	f, err := NewHDAccountFactory(testMnemonic, nil, WalletConfig{})
	require.NoError(t, err)
	addr, err := f.DeriveAddress(0)
	require.NoError(t, err)
	assert.Equal(t, ethCommon.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), addr)

	w0, err := f.NewWallet(context.Background())
	require.NoError(t, err)
	w1, err := f.NewWallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, addr, w0.Address())
	assert.NotEqual(t, w0.Address(), w1.Address())

	_, err = NewHDAccountFactory("not a mnemonic", nil, WalletConfig{})
	assert.Error(t, err)

	random, err := NewHDAccountFactory("", nil, WalletConfig{})
	require.NoError(t, err)
	assert.NotNil(t, random)
}

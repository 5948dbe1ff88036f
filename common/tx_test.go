package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTxTypeCodes(t *testing.T) {
	assert.Equal(t, uint8(0), uint8(TxTypeLegacy))
	assert.Equal(t, uint8(1), uint8(TxTypeAccessList))
	assert.Equal(t, uint8(2), uint8(TxTypeDynamicFee))
	assert.Equal(t, uint8(0x71), uint8(TxTypeEIP712))
	assert.True(t, TxTypeEIP712.Known())
	assert.False(t, TxType(3).Known())
	assert.Equal(t, "TxType(0x3)", TxType(3).String())
}

func TestOpKind(t *testing.T) {
	assert.True(t, OpDeposit.CrossLayer())
	assert.True(t, OpWithdrawal.CrossLayer())
	assert.False(t, OpL2Tx.CrossLayer())
	assert.Equal(t, LayerL1, OpDeposit.SourceLayer())
	assert.Equal(t, LayerL2, OpWithdrawal.SourceLayer())
	assert.Equal(t, LayerL1, OpL1Tx.SourceLayer())
}

func TestParseLayer(t *testing.T) {
	l, err := ParseLayer("L1")
	assert.NoError(t, err)
	assert.Equal(t, LayerL1, l)
	l, err = ParseLayer(" rollup ")
	assert.NoError(t, err)
	assert.Equal(t, LayerL2, l)
	_, err = ParseLayer("l3")
	assert.Error(t, err)

	var layer Layer
	assert.NoError(t, layer.UnmarshalText([]byte("l2")))
	assert.Equal(t, LayerL2, layer)
	text, err := layer.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "L2", string(text))
}

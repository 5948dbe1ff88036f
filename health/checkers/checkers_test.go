package checkers

import (
	"errors"
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/txverifier/common"
	dbUtils "github.com/hermeznetwork/txverifier/db"
	"github.com/hermeznetwork/txverifier/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBChecker(t *testing.T) {
	db, err := dbUtils.InitTestSQLDB()
	require.NoError(t, err)
	checker := NewCheckerWithDB(db.DB, dbUtils.DriverSQLite)
	h := checker.Check()
	assert.True(t, h.IsUp())
	assert.Equal(t, "0001.sql", h.GetInfo("last_migration"))

	require.NoError(t, db.Close())
	h = checker.Check()
	assert.True(t, h.IsDown())
}

func TestLayerChecker(t *testing.T) {
	client := test.NewClient(false, test.NewClientSetupExample())
	account := ethCommon.HexToAddress("0x000000000000000000000000000000000000a1ce")
	client.CtlSetBalance(common.LayerL1, common.NativeTokenAddress, account, big.NewInt(77))
	checker := NewLayerChecker(client, common.LayerL1, account)

	h := checker.Check()
	assert.True(t, h.IsUp())
	assert.Equal(t, "77", h.GetInfo("balance"))

	client.CtlSetQueryError(common.LayerL1, errors.New("connection refused"))
	h = checker.Check()
	assert.True(t, h.IsDown())
	assert.Contains(t, h.GetInfo("error"), "connection refused")
}

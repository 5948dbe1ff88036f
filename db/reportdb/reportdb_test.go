package reportdb

import (
	"errors"
	"math/big"
	"os"
	"testing"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/db"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/hermeznetwork/txverifier/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportDB *ReportDB

func TestMain(m *testing.M) {
	log.Init("debug", "")
	database, err := db.InitTestSQLDB()
	if err != nil {
		panic(err)
	}
	reportDB = NewReportDB(database)
	result := m.Run()
	if err := database.Close(); err != nil {
		log.Error(err)
	}
	os.Exit(result)
}

func wipe(t *testing.T) {
	_, err := reportDB.DB().Exec("DELETE FROM violation;")
	require.NoError(t, err)
	_, err = reportDB.DB().Exec("DELETE FROM scenario_result;")
	require.NoError(t, err)
}

func testResults() []scenario.Result {
	account := ethCommon.HexToAddress("0x000000000000000000000000000000000000a11c")
	failed := &common.Verdict{Checks: 4}
	failed.Add(common.Violation{
		Kind:     common.ViolationBalance,
		Key:      &common.BalanceKey{Account: account, Layer: common.LayerL2, Token: common.NativeTokenAddress},
		Expected: big.NewInt(-200),
		Actual:   big.NewInt(-210),
		Fee:      big.NewInt(42000),
	})
	failed.Add(common.Violation{Kind: common.ViolationReceipt,
		Message: "receipt type should be 2 (DynamicFee)"})
	return []scenario.Result{
		{Name: "transfer-legacy", Verdict: &common.Verdict{Checks: 5}, Duration: 1500 * time.Millisecond},
		{Name: "transfer-eip1559", Verdict: failed},
		{Name: "deposit", Err: &common.QueryError{Op: "balance", Err: errors.New("connection refused")}},
		{Name: "withdrawal", Skipped: true},
	}
}

func TestAddResults(t *testing.T) {
	wipe(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	runID := NewRunID(now)
	assert.Equal(t, "20261019T120000.000Z", runID)
	require.NoError(t, reportDB.AddResults(runID, testResults(), now))

	results, err := reportDB.GetRun(runID)
	require.NoError(t, err)
	require.Len(t, results, 4)
	byName := make(map[string]Result)
	for _, r := range results {
		byName[r.Scenario] = r
		assert.Equal(t, now.Unix(), r.CreatedAt.Unix())
	}

	legacy := byName["transfer-legacy"]
	assert.Equal(t, scenario.OutcomePass, legacy.Outcome)
	assert.Equal(t, 5, legacy.Checks)
	assert.Equal(t, int64(1500), legacy.DurationMs)
	assert.Nil(t, legacy.Error)
	assert.Empty(t, legacy.Violations)

	failed := byName["transfer-eip1559"]
	assert.Equal(t, scenario.OutcomeFail, failed.Outcome)
	require.Len(t, failed.Violations, 2)
	balance := failed.Violations[0]
	assert.Equal(t, 0, balance.Position)
	assert.Equal(t, string(common.ViolationBalance), balance.Kind)
	require.NotNil(t, balance.Account)
	assert.Equal(t, ethCommon.HexToAddress("0x000000000000000000000000000000000000a11c"),
		ethCommon.HexToAddress(*balance.Account))
	require.NotNil(t, balance.Layer)
	assert.Equal(t, common.LayerL2.String(), *balance.Layer)
	assert.Equal(t, big.NewInt(-200), balance.Expected)
	assert.Equal(t, big.NewInt(-210), balance.Actual)
	assert.Equal(t, big.NewInt(42000), balance.Fee)
	receipt := failed.Violations[1]
	assert.Equal(t, 1, receipt.Position)
	assert.Nil(t, receipt.Account)
	assert.Nil(t, receipt.Expected)
	assert.Equal(t, "receipt: receipt type should be 2 (DynamicFee)", receipt.Message)

	deposit := byName["deposit"]
	assert.Equal(t, scenario.OutcomeInconclusive, deposit.Outcome)
	require.NotNil(t, deposit.Error)
	assert.Contains(t, *deposit.Error, "connection refused")

	assert.Equal(t, scenario.OutcomeSkipped, byName["withdrawal"].Outcome)

	failures, err := reportDB.GetFailures(runID)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	names := []string{failures[0].Scenario, failures[1].Scenario}
	assert.ElementsMatch(t, []string{"transfer-eip1559", "deposit"}, names)

	lastRunID, err := reportDB.GetLastRunID()
	require.NoError(t, err)
	assert.Equal(t, runID, lastRunID)
}

func TestAddResultDuplicated(t *testing.T) {
	wipe(t)
	now := time.Now()
	runID := NewRunID(now)
	results := testResults()
	require.NoError(t, reportDB.AddResult(NewResult(runID, &results[1], now)))
	// The result is stored once per run, and the failed insert is rolled
	// back
	assert.Error(t, reportDB.AddResult(NewResult(runID, &results[1], now)))
	stored, err := reportDB.GetRun(runID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Len(t, stored[0].Violations, 2)

	empty, err := reportDB.GetRun("unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

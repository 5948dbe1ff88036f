package db

import (
	"math/big"
	"testing"

	"github.com/hermeznetwork/txverifier/log"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type foo struct {
	V int
}

func init() {
	log.Init("debug", "")
}

func TestSlicePtrsToSlice(t *testing.T) {
	n := 16
	a := make([]*foo, n)
	for i := 0; i < n; i++ {
		a[i] = &foo{V: i}
	}
	b := SlicePtrsToSlice(a).([]foo)
	for i := 0; i < len(a); i++ {
		assert.Equal(t, *a[i], b[i])
	}
}

type bigIntEntry struct {
	ItemID int      `meddler:"item_id"`
	Value1 *big.Int `meddler:"value1,bigint"`
	Value2 *big.Int `meddler:"value2,bigintnull"`
	Value3 *big.Int `meddler:"value3,bigintnull"`
}

func TestBigInt(t *testing.T) {
	db, err := InitTestSQLDB()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, db.Close())
	}()

	_, err = db.Exec(`CREATE TABLE test_big_int (
		item_id INTEGER PRIMARY KEY,
		value1 TEXT NOT NULL,
		value2 TEXT,
		value3 TEXT
	);`)
	require.NoError(t, err)

	// Larger than an int64
	large, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)
	entry := bigIntEntry{ItemID: 1, Value1: big.NewInt(1234567890), Value2: large, Value3: nil}
	err = meddler.Insert(db, "test_big_int", &entry)
	require.NoError(t, err)

	var dbEntry bigIntEntry
	err = meddler.QueryRow(db, &dbEntry, "SELECT * FROM test_big_int WHERE item_id = 1;")
	require.NoError(t, err)
	assert.Equal(t, entry, dbEntry)

	entries := []bigIntEntry{
		{ItemID: 2, Value1: big.NewInt(-5), Value2: nil, Value3: big.NewInt(7)},
		{ItemID: 3, Value1: big.NewInt(1), Value2: big.NewInt(1), Value3: nil},
	}
	err = BulkInsert(db, "INSERT INTO test_big_int (item_id, value1, value2, value3) VALUES %s;",
		entries[:])
	require.NoError(t, err)
	var dbEntries []*bigIntEntry
	err = meddler.QueryAll(db, &dbEntries,
		"SELECT * FROM test_big_int WHERE item_id > 1 ORDER BY item_id;")
	require.NoError(t, err)
	assert.Equal(t, entries, SlicePtrsToSlice(dbEntries).([]bigIntEntry))

	// Nothing to insert
	assert.NoError(t, BulkInsert(db, "INSERT INTO test_big_int VALUES %s;", []bigIntEntry{}))

	// value1 is not nullable
	err = meddler.Insert(db, "test_big_int", &bigIntEntry{ItemID: 4})
	assert.Error(t, err)
	_, err = db.Exec("INSERT INTO test_big_int (item_id, value1) VALUES (5, 'abc');")
	require.NoError(t, err)
	err = meddler.QueryRow(db, &dbEntry, "SELECT * FROM test_big_int WHERE item_id = 5;")
	assert.Error(t, err)
}

func TestMigrations(t *testing.T) {
	db, err := InitTestSQLDB()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, db.Close())
	}()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM scenario_result;"))
	assert.Equal(t, 0, n)

	last, err := LastMigration(db.DB, DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, "0001.sql", last)

	require.NoError(t, MigrationsDown(db.DB, DriverSQLite, 1))
	assert.Error(t, db.Get(&n, "SELECT COUNT(*) FROM scenario_result;"))
	last, err = LastMigration(db.DB, DriverSQLite)
	require.NoError(t, err)
	assert.Empty(t, last)
	// Reverting more migrations than the applied ones fails
	assert.Error(t, MigrationsDown(db.DB, DriverSQLite, 1))

	require.NoError(t, MigrationsUp(db.DB, DriverSQLite))
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM scenario_result;"))
}

func TestConnectUnsupportedDriver(t *testing.T) {
	_, err := ConnectSQLDB("mysql", "")
	assert.Error(t, err)
}

/*
Package db connects to the report DB, which is PostgreSQL for a shared
journal or SQLite for a local one.  The schema is managed with the migration
files under db/migrations, applied in the order of their file names, and the
amounts of the violations are stored as decimal strings with the meddlers of
this package.
*/
package db

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/gobuffalo/packr/v2"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/jmoiron/sqlx"

	//nolint:errcheck // driver for postgres DB
	_ "github.com/lib/pq"
	//nolint:errcheck // driver for sqlite DB
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/russross/meddler"
)

const (
	// DriverPostgres is the driver name of PostgreSQL
	DriverPostgres = "postgres"
	// DriverSQLite is the driver name of SQLite
	DriverSQLite = "sqlite3"
)

var migrations *migrate.PackrMigrationSource

func init() {
	migrations = &migrate.PackrMigrationSource{
		Box: packr.New("txverifier-db-migrations", "./migrations"),
	}
	ms, err := migrations.FindMigrations()
	if err != nil {
		panic(err)
	}
	if len(ms) == 0 {
		panic(fmt.Errorf("no SQL migrations found"))
	}
}

// MigrationsUp runs the SQL migrations Up
func MigrationsUp(db *sql.DB, driver string) error {
	nMigrations, err := migrate.Exec(db, driver, migrations, migrate.Up)
	if err != nil {
		return tracerr.Wrap(err)
	}
	log.Info("successfully ran ", nMigrations, " migrations Up")
	return nil
}

// MigrationsDown runs the SQL migrations Down,
// migrationsToRun specifies how many migrations will be run, 0 means any.
func MigrationsDown(db *sql.DB, driver string, migrationsToRun uint) error {
	nMigrations, err := migrate.ExecMax(db, driver, migrations, migrate.Down, int(migrationsToRun))
	if err != nil {
		return tracerr.Wrap(err)
	}
	if migrationsToRun != 0 && nMigrations != int(migrationsToRun) {
		return tracerr.Wrap(
			fmt.Errorf("Unexpected amount of migrations applied. Expected = %d, actual = %d", migrationsToRun, nMigrations),
		)
	}
	log.Info("successfully ran ", nMigrations, " migrations Down")
	return nil
}

// LastMigration returns the id of the last migration applied, empty when
// none was applied
func LastMigration(db *sql.DB, driver string) (string, error) {
	records, err := migrate.GetMigrationRecords(db, driver)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[len(records)-1].Id, nil
}

// ConnectSQLDB connects to the SQL DB
func ConnectSQLDB(driver, dsn string) (*sqlx.DB, error) {
	// Init meddler
	initMeddler()
	switch driver {
	case DriverPostgres:
		meddler.Default = meddler.PostgreSQL
	case DriverSQLite:
		meddler.Default = meddler.SQLite
	default:
		return nil, tracerr.Wrap(fmt.Errorf("unsupported SQL driver %q", driver))
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if driver == DriverSQLite {
		// Every connection to an in-memory database opens a new database
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	return db, nil
}

// InitSQLDB runs migrations and registers meddlers
func InitSQLDB(driver, dsn string) (*sqlx.DB, error) {
	db, err := ConnectSQLDB(driver, dsn)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	// Run DB migrations
	if err := MigrationsUp(db.DB, driver); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return db, nil
}

// InitTestSQLDB opens an in-memory SQLite database with every migration
// applied
func InitTestSQLDB() (*sqlx.DB, error) {
	return InitSQLDB(DriverSQLite, ":memory:")
}

// initMeddler registers tags to be used to read/write from SQL DBs using meddler
func initMeddler() {
	meddler.Register("bigint", BigIntMeddler{})
	meddler.Register("bigintnull", BigIntMeddler{Nullable: true})
}

// BulkInsert inserts every element of rows, a slice of meddler structs, with
// a single statement.  q has one %s verb where the values are placed, and it
// must name every column of the struct in order.  Example:
// `db.BulkInsert(myDB, "INSERT INTO violation (run_id, scenario, position) VALUES %s;", violations)`
func BulkInsert(db sqlx.Ext, q string, rows interface{}) error {
	slice := reflect.ValueOf(rows)
	if slice.Len() == 0 {
		return nil
	}
	var values strings.Builder
	var args []interface{}
	for i := 0; i < slice.Len(); i++ {
		rowArgs, err := meddler.Default.Values(slice.Index(i).Addr().Interface(), true)
		if err != nil {
			return tracerr.Wrap(err)
		}
		if i > 0 {
			values.WriteString(", ")
		}
		values.WriteString("(?" + strings.Repeat(", ?", len(rowArgs)-1) + ")")
		args = append(args, rowArgs...)
	}
	_, err := db.Exec(db.Rebind(fmt.Sprintf(q, values.String())), args...)
	return tracerr.Wrap(err)
}

// SlicePtrsToSlice converts any []*Foo to []Foo
func SlicePtrsToSlice(slice interface{}) interface{} {
	v := reflect.ValueOf(slice)
	vLen := v.Len()
	typ := v.Type().Elem().Elem()
	res := reflect.MakeSlice(reflect.SliceOf(typ), vLen, vLen)
	for i := 0; i < vLen; i++ {
		res.Index(i).Set(v.Index(i).Elem())
	}
	return res.Interface()
}

// Rollback an sql transaction, and log the error if it's not nil
func Rollback(txn *sqlx.Tx) {
	if err := txn.Rollback(); err != nil {
		log.Errorw("Rollback", "err", err)
	}
}

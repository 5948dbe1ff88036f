package checkers

import (
	"database/sql"

	"github.com/dimiro1/health"
	dbHealth "github.com/dimiro1/health/db"
	dbUtils "github.com/hermeznetwork/txverifier/db"
)

// DBChecker struct to check current status of the report db
type DBChecker struct {
	dbChecker dbHealth.Checker
	driver    string
}

// NewCheckerWithDB creates new instance of the DBChecker for a db opened
// with driver
func NewCheckerWithDB(db *sql.DB, driver string) DBChecker {
	versionSQL := "SELECT VERSION()"
	if driver == dbUtils.DriverSQLite {
		versionSQL = "SELECT sqlite_version()"
	}
	return DBChecker{
		dbChecker: dbHealth.NewChecker("SELECT 1", versionSQL, db),
		driver:    driver,
	}
}

// Check function check is db is responding and returns status, version of db and id of the last migration
func (c DBChecker) Check() health.Health {
	h := c.dbChecker.Check()
	if h.IsDown() {
		return h
	}

	id, err := dbUtils.LastMigration(c.dbChecker.DB, c.driver)
	if err != nil {
		h.Down().AddInfo("error", err.Error())
		return h
	}

	h.Up().AddInfo("last_migration", id)

	return h
}

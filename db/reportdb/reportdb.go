/*
Package reportdb keeps a journal of the scenario results of every run, so that
failures can be inspected after the run ends.  Every result is stored with the
violations of its verdict, in the order they were found.
*/
package reportdb

import (
	"time"

	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/db"
	"github.com/hermeznetwork/txverifier/scenario"
	"github.com/jmoiron/sqlx"
	"github.com/russross/meddler"
)

// Result is the stored result of a scenario
type Result struct {
	RunID      string      `meddler:"run_id"`
	Scenario   string      `meddler:"scenario"`
	Outcome    string      `meddler:"outcome"`
	Checks     int         `meddler:"checks"`
	Error      *string     `meddler:"error"`
	DurationMs int64       `meddler:"duration_ms"`
	CreatedAt  time.Time   `meddler:"created_at,utctime"`
	Violations []Violation `meddler:"-"`
}

// NewResult creates the stored Result of a scenario result
func NewResult(runID string, r *scenario.Result, createdAt time.Time) *Result {
	result := &Result{
		RunID:      runID,
		Scenario:   r.Name,
		Outcome:    r.Outcome(),
		DurationMs: r.Duration.Milliseconds(),
		CreatedAt:  createdAt,
	}
	if r.Err != nil {
		msg := r.Err.Error()
		result.Error = &msg
	}
	if r.Verdict != nil {
		result.Checks = r.Verdict.Checks
		for i, v := range r.Verdict.Violations {
			result.Violations = append(result.Violations, newViolation(runID, r.Name, i, v))
		}
	}
	return result
}

// NewRunID returns the identifier of a run started at t
func NewRunID(t time.Time) string {
	return t.UTC().Format("20060102T150405.000Z")
}

// ReportDB persists the results of the runs
type ReportDB struct {
	db *sqlx.DB
}

// NewReportDB initialize the DB
func NewReportDB(db *sqlx.DB) *ReportDB {
	return &ReportDB{db: db}
}

// DB returns a pointer to the ReportDB.db. This method should be used only
// for internal testing purposes.
func (r *ReportDB) DB() *sqlx.DB {
	return r.db
}

// AddResult inserts a result and its violations
func (r *ReportDB) AddResult(result *Result) (err error) {
	txn, err := r.db.Beginx()
	if err != nil {
		return tracerr.Wrap(err)
	}
	defer func() {
		if err != nil {
			db.Rollback(txn)
		}
	}()
	if err := meddler.Insert(txn, "scenario_result", result); err != nil {
		return tracerr.Wrap(err)
	}
	if err := db.BulkInsert(
		txn,
		`INSERT INTO violation (
			run_id,
			scenario,
			position,
			kind,
			layer,
			account,
			token,
			expected,
			actual,
			fee,
			message
		) VALUES %s;`,
		result.Violations[:],
	); err != nil {
		return tracerr.Wrap(err)
	}
	return tracerr.Wrap(txn.Commit())
}

// AddResults inserts the results of a run
func (r *ReportDB) AddResults(runID string, results []scenario.Result, createdAt time.Time) error {
	for i := range results {
		if err := r.AddResult(NewResult(runID, &results[i], createdAt)); err != nil {
			return tracerr.Wrap(err)
		}
	}
	return nil
}

func (r *ReportDB) getResults(query string, args ...interface{}) ([]Result, error) {
	var resultPtrs []*Result
	if err := meddler.QueryAll(r.db, &resultPtrs, r.db.Rebind(query), args...); err != nil {
		return nil, tracerr.Wrap(err)
	}
	results := db.SlicePtrsToSlice(resultPtrs).([]Result)
	for i := range results {
		var violationPtrs []*Violation
		if err := meddler.QueryAll(
			r.db, &violationPtrs, r.db.Rebind(
				"SELECT * FROM violation WHERE run_id = ? AND scenario = ? ORDER BY position;"),
			results[i].RunID, results[i].Scenario,
		); err != nil {
			return nil, tracerr.Wrap(err)
		}
		results[i].Violations = db.SlicePtrsToSlice(violationPtrs).([]Violation)
	}
	return results, nil
}

// GetRun returns every result of a run
func (r *ReportDB) GetRun(runID string) ([]Result, error) {
	return r.getResults(
		"SELECT * FROM scenario_result WHERE run_id = ? ORDER BY created_at, scenario;", runID,
	)
}

// GetFailures returns the results of a run that did not pass and were not
// skipped
func (r *ReportDB) GetFailures(runID string) ([]Result, error) {
	return r.getResults(
		`SELECT * FROM scenario_result WHERE run_id = ? AND outcome NOT IN (?, ?)
		ORDER BY created_at, scenario;`,
		runID, scenario.OutcomePass, scenario.OutcomeSkipped,
	)
}

// GetLastRunID returns the identifier of the last run stored
func (r *ReportDB) GetLastRunID() (string, error) {
	var runID string
	err := r.db.Get(&runID,
		"SELECT run_id FROM scenario_result ORDER BY created_at DESC, run_id DESC LIMIT 1;")
	return runID, tracerr.Wrap(err)
}

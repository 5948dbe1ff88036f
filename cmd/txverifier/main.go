package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dimiro1/health"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/config"
	dbUtils "github.com/hermeznetwork/txverifier/db"
	"github.com/hermeznetwork/txverifier/db/reportdb"
	"github.com/hermeznetwork/txverifier/harness"
	"github.com/hermeznetwork/txverifier/health/checkers"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/hermeznetwork/txverifier/scenario"
	"github.com/hermeznetwork/txverifier/statusapi"
	"github.com/urfave/cli/v2"
)

const (
	flagCfg      = "cfg"
	flagScenario = "scenario"
	flagReport   = "report"
	flagAccount  = "account"
	flagLayer    = "layer"
	flagToken    = "token"
	flagRun      = "run"
	flagYes      = "yes"
	nMigrations  = "nMigrations"
)

var (
	// version represents the program based on the git tag
	version = "v0.1.0"
	// commit represents the program based on the git commit
	commit = "dev"
	// date represents the date of application was built
	date = ""
)

func cmdVersion(*cli.Context) error {
	fmt.Printf("Version = \"%v\"\n", version)
	fmt.Printf("Build = \"%v\"\n", commit)
	fmt.Printf("Date = \"%v\"\n", date)
	return nil
}

func cmdScenarios(*cli.Context) error {
	for _, s := range scenario.All() {
		if s.NeedsFinalization {
			fmt.Printf("%s (skipped in fast mode)\n", s.Name)
		} else {
			fmt.Println(s.Name)
		}
	}
	return nil
}

// signalContext returns a context canceled on the first interrupt signal
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ossig := make(chan os.Signal, 1)
	signal.Notify(ossig, os.Interrupt)
	const forceStopCount = 3
	go func() {
		n := 0
		for sig := range ossig {
			if sig == os.Interrupt {
				log.Info("Received Interrupt Signal")
				cancel()
				n++
				if n == forceStopCount {
					log.Fatalf("Received %v Interrupt Signals", forceStopCount)
				}
			}
		}
	}()
	return ctx, cancel
}

// healthRoute reports the health of the nodes and the report DB
func healthRoute(env *harness.Env, cfg *config.Config, report *reportdb.ReportDB) http.Handler {
	healthHandler := health.NewHandler()
	mainAddr := env.Main.Address()
	healthHandler.AddChecker("l1", checkers.NewLayerChecker(env.Reader, common.LayerL1, mainAddr))
	healthHandler.AddChecker("l2", checkers.NewLayerChecker(env.Reader, common.LayerL2, mainAddr))
	if report != nil {
		healthHandler.AddChecker("reportDB", checkers.NewCheckerWithDB(report.DB().DB, cfg.Report.Driver))
	}
	healthHandler.AddInfo("version", version)
	healthHandler.AddInfo("fastMode", env.FastMode)
	return healthHandler
}

// serveStatus serves the metrics and the health until the returned function
// is called
func serveStatus(ctx context.Context, address string, healthHandler http.Handler) func() {
	if address == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := statusapi.NewStatusAPI(address, healthHandler).Run(ctx); err != nil {
			log.Errorw("StatusAPI.Run", "err", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func openReportDB(cfg *config.Config) (*reportdb.ReportDB, error) {
	if cfg.Report.Driver == "" {
		return nil, tracerr.Wrap(fmt.Errorf("Report.Driver is required to store results"))
	}
	db, err := dbUtils.InitSQLDB(cfg.Report.Driver, cfg.Report.DSN)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("dbUtils.InitSQLDB: %w", err))
	}
	return reportdb.NewReportDB(db), nil
}

func cmdRun(c *cli.Context) error {
	cfg, err := parseCli(c)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("error parsing flags and config: %w", err))
	}
	log.InitWith(cfg.Log.Conf())
	names := c.StringSlice(flagScenario)
	known := scenario.Names()
	for _, name := range names {
		if !contains(known, name) {
			return tracerr.Wrap(fmt.Errorf("unknown scenario %q, expected one of %s", name,
				strings.Join(known, ", ")))
		}
	}
	var report *reportdb.ReportDB
	if c.Bool(flagReport) {
		if report, err = openReportDB(cfg); err != nil {
			return tracerr.Wrap(err)
		}
	}
	ctx, cancel := signalContext()
	defer cancel()
	env, err := harness.NewEnv(ctx, cfg)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("harness.NewEnv: %w", err))
	}
	stopStatus := serveStatus(ctx, cfg.Metrics.Address, healthRoute(env, cfg, report))
	defer stopStatus()
	start := time.Now()
	results := scenario.Run(ctx, env, names)

	failed := 0
	for i := range results {
		r := &results[i]
		if !r.Passed() {
			failed++
		}
		switch {
		case r.Err != nil:
			log.Infof("%-22s %-16s %v", r.Name, r.Outcome(), r.Err)
		case r.Verdict != nil:
			log.Infof("%-22s %-16s %s", r.Name, r.Outcome(), r.Verdict)
		default:
			log.Infof("%-22s %-16s", r.Name, r.Outcome())
		}
	}
	if report != nil {
		runID := reportdb.NewRunID(start)
		if err := report.AddResults(runID, results, start); err != nil {
			return tracerr.Wrap(fmt.Errorf("reportDB.AddResults: %w", err))
		}
		log.Infow("Results stored", "run", runID)
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d scenarios failed", failed, len(results)), 1)
	}
	log.Infof("%d scenarios passed", len(results))
	return nil
}

func cmdBalance(c *cli.Context) error {
	cfg, err := parseCli(c)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("error parsing flags and config: %w", err))
	}
	log.InitWith(cfg.Log.Conf())
	account := c.String(flagAccount)
	if !ethCommon.IsHexAddress(account) {
		return tracerr.Wrap(fmt.Errorf("invalid account %q", account))
	}
	var layer common.Layer
	switch strings.ToLower(c.String(flagLayer)) {
	case "l1":
		layer = common.LayerL1
	case "l2":
		layer = common.LayerL2
	default:
		return tracerr.Wrap(fmt.Errorf("invalid layer %q, expected l1 or l2", c.String(flagLayer)))
	}
	ctx, cancel := signalContext()
	defer cancel()
	env, err := harness.NewEnv(ctx, cfg)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("harness.NewEnv: %w", err))
	}
	token := common.NativeTokenAddress
	if symbol := c.String(flagToken); symbol != "" {
		t, ok := env.Token(symbol)
		switch {
		case ok:
			token = t.On(layer)
		case ethCommon.IsHexAddress(symbol):
			token = ethCommon.HexToAddress(symbol)
		default:
			return tracerr.Wrap(fmt.Errorf("unknown token %q", symbol))
		}
	}
	balance, err := env.Oracle.Query(ctx, ethCommon.HexToAddress(account), layer, token)
	if err != nil {
		return tracerr.Wrap(err)
	}
	fmt.Println(balance.String())
	return nil
}

func cmdReport(c *cli.Context) error {
	cfg, err := parseCli(c)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("error parsing flags and config: %w", err))
	}
	log.InitWith(cfg.Log.Conf())
	report, err := openReportDB(cfg)
	if err != nil {
		return tracerr.Wrap(err)
	}
	runID := c.String(flagRun)
	if runID == "" {
		if runID, err = report.GetLastRunID(); err != nil {
			return tracerr.Wrap(fmt.Errorf("reportDB.GetLastRunID: %w", err))
		}
	}
	failures, err := report.GetFailures(runID)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("reportDB.GetFailures: %w", err))
	}
	log.Infof("Run %s: %d failure(s)", runID, len(failures))
	for _, f := range failures {
		log.Infof(" - %s: %s", f.Scenario, f.Outcome)
		if f.Error != nil {
			log.Infof("   %s", *f.Error)
		}
		for _, v := range f.Violations {
			log.Infof("   %s", v.Message)
		}
	}
	return nil
}

func cmdSQLMigrationDown(c *cli.Context) error {
	cfg, err := parseCli(c)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("error parsing flags and config: %w", err))
	}
	log.InitWith(cfg.Log.Conf())
	if !c.Bool(flagYes) {
		fmt.Print("*WARNING* Are you sure you want to revert the report DB migrations? " +
			"[y/N]: ")
		var input string
		if _, err := fmt.Scanln(&input); err != nil {
			return tracerr.Wrap(err)
		}
		if !strings.EqualFold(strings.TrimSpace(input), "y") {
			return nil
		}
	}
	db, err := dbUtils.ConnectSQLDB(cfg.Report.Driver, cfg.Report.DSN)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("dbUtils.ConnectSQLDB: %w", err))
	}
	if err := dbUtils.MigrationsDown(db.DB, cfg.Report.Driver, c.Uint(nMigrations)); err != nil {
		return tracerr.Wrap(fmt.Errorf("dbUtils.MigrationsDown: %w", err))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func parseCli(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(flagCfg))
	if err != nil {
		if err := cli.ShowAppHelp(c); err != nil {
			panic(err)
		}
		return nil, tracerr.Wrap(err)
	}
	return cfg, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "txverifier"
	app.Usage = "Verify the outcome of L1 and L2 value transfers of a rollup"
	app.Version = version
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     flagCfg,
			Usage:    "Configuration `FILE`",
			Required: false,
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:    "version",
			Aliases: []string{},
			Usage:   "Show the application version and build",
			Action:  cmdVersion,
		},
		{
			Name:    "scenarios",
			Aliases: []string{},
			Usage:   "List the built-in scenarios",
			Action:  cmdScenarios,
		},
		{
			Name:    "run",
			Aliases: []string{},
			Usage:   "Run the scenarios against the configured nodes",
			Action:  cmdRun,
			Flags: append(flags,
				&cli.StringSliceFlag{
					Name:     flagScenario,
					Usage:    "`NAME` of a scenario to run, all of them if not set",
					Required: false,
				},
				&cli.BoolFlag{
					Name:     flagReport,
					Usage:    "store the results in the report DB",
					Required: false,
				}),
		},
		{
			Name:    "balance",
			Aliases: []string{},
			Usage:   "Show the balance of an account",
			Action:  cmdBalance,
			Flags: append(flags,
				&cli.StringFlag{
					Name:     flagAccount,
					Usage:    "`ADDRESS` of the account",
					Required: true,
				},
				&cli.StringFlag{
					Name:     flagLayer,
					Usage:    "`LAYER` of the balance (l1 or l2)",
					Value:    "l2",
					Required: false,
				},
				&cli.StringFlag{
					Name:     flagToken,
					Usage:    "`SYMBOL` or address of the token, the native token if not set",
					Required: false,
				}),
		},
		{
			Name:    "report",
			Aliases: []string{},
			Usage:   "Show the failures of a stored run",
			Action:  cmdReport,
			Flags: append(flags,
				&cli.StringFlag{
					Name:     flagRun,
					Usage:    "`ID` of the run, the last one if not set",
					Required: false,
				}),
		},
		{
			Name:    "migratesqldown",
			Aliases: []string{},
			Usage:   "Revert migrations of the report DB",
			Action:  cmdSQLMigrationDown,
			Flags: append(flags,
				&cli.BoolFlag{
					Name:     flagYes,
					Usage:    "automatic yes to the prompt",
					Required: false,
				},
				&cli.UintFlag{
					Name:     nMigrations,
					Usage:    "amount of migrations to be reverted",
					Required: true,
				}),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Printf("\nError: %v\n", tracerr.Sprint(err))
		os.Exit(1)
	}
}

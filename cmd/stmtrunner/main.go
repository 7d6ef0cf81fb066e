// Command stmtrunner executes a script of statements against a store one at a
// time, keeping going past failures and writing them to an error log and a
// replay script.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/dan-strohschein/stmtrunner/client"
	"github.com/dan-strohschein/stmtrunner/config"
	"github.com/dan-strohschein/stmtrunner/logger"
	"github.com/dan-strohschein/stmtrunner/runner"
	"github.com/dan-strohschein/stmtrunner/sink"
	"github.com/dan-strohschein/stmtrunner/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("stmtrunner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(fs) }
	showVersion := fs.Bool("version", false, "print version and exit")

	cfg, err := config.Load(fs, args, os.LookupEnv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		printError(fmt.Sprintf("Invalid configuration: %v", err))
		return 1
	}
	if *showVersion {
		fmt.Fprintf(stdout, "stmtrunner %s\n", client.Version)
		return 0
	}
	if err := cfg.Validate(); err != nil {
		printError(fmt.Sprintf("Invalid configuration: %v", err))
		return 1
	}

	log := logger.New(cfg.LogLevel, os.Stderr)
	runID := uuid.New().String()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := sink.New(sink.Options{
		ErrorLogPath: cfg.ErrorLog,
		ReplayPath:   cfg.ReplayFile,
		FlushEvery:   cfg.FlushEvery,
		RunID:        runID,
		Logger:       log,
	})
	if err != nil {
		printError(err.Error())
		return 1
	}
	if err := s.Open(); err != nil {
		if errors.Is(err, sink.ErrLockHeld) {
			printError("Another run is writing the same artifacts")
		}
		printError(err.Error())
		return 1
	}
	defer s.Close()

	exec, closeSession, err := newExecutor(ctx, cfg, log)
	if err != nil {
		printError(summary(err))
		return 1
	}
	defer closeSession()

	if cfg.ConfigPath != "" {
		printInfo(fmt.Sprintf("Using config %s", colorCyan(cfg.ConfigPath)))
	}
	printInfo(fmt.Sprintf("Running %s against %s", colorCyan(cfg.File), colorCyan(target(cfg))))

	r := runner.New(exec, s, runner.Options{RunID: runID, Logger: log})
	rep, runErr := r.RunFile(ctx, cfg.File)
	if rep != nil {
		printHeader("stmtrunner")
		fmt.Fprint(stdout, runner.FormatReport(rep, s.ErrorLogPath(), s.ReplayPath()))
		fmt.Fprintln(stdout)
	}
	if runErr != nil {
		printError(summary(runErr))
		return 1
	}

	switch {
	case rep.Failed > 0:
		printWarning(fmt.Sprintf("%s statement(s) failed; rerun them with -f %s",
			colorBold(rep.Failed), s.ReplayPath()))
	case rep.Unterminated != nil || rep.ReadErr != nil:
		printWarning("Script did not end cleanly; see the summary above")
	default:
		printSuccess(fmt.Sprintf("All %d statement(s) executed", rep.Counters.CommandCount))
	}
	return 0
}

// newExecutor connects and logs in, or returns a dry-run executor.
func newExecutor(ctx context.Context, cfg *config.Config, log logger.Logger) (runner.Executor, func(), error) {
	if cfg.DryRun {
		return runner.DryRunExecutor{Logger: log}, func() {}, nil
	}

	sess, err := store.Connect(ctx, cfg.Address, store.Options{
		Logger:    log,
		DebugMode: logger.ParseLogLevel(cfg.LogLevel) == logger.DEBUG,
	})
	if err != nil {
		return nil, nil, runner.ErrSessionFailed("connect", cfg.Address, err)
	}
	if err := store.Login(ctx, sess, cfg.Username, cfg.Password, cfg.Namespace, cfg.Database); err != nil {
		return nil, nil, runner.ErrSessionFailed("login", cfg.Address, err)
	}

	closeSession := func() {
		if err := sess.Close(); err != nil {
			log.Warn("closing session failed", logger.Error("error", err))
		}
	}
	return runner.NewSessionExecutor(sess, cfg.Timeout), closeSession, nil
}

func summary(err error) string {
	var re *runner.RunError
	if errors.As(err, &re) {
		return re.Summary()
	}
	return err.Error()
}

func target(cfg *config.Config) string {
	if cfg.DryRun {
		return "nothing (dry run)"
	}
	return fmt.Sprintf("%s [%s/%s]", cfg.Address, cfg.Namespace, cfg.Database)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintln(stderr, colorHeader("stmtrunner")+" - run a statement script, recording failures for replay")
	fmt.Fprintln(stderr)
	fmt.Fprintln(stderr, "Usage:")
	fmt.Fprintln(stderr, "  stmtrunner "+colorYellow("[options]"))
	fmt.Fprintln(stderr)
	fmt.Fprintln(stderr, "Options:")
	fs.PrintDefaults()
	fmt.Fprintln(stderr)
	fmt.Fprintln(stderr, "Connection, file and run options can also be set with STMTRUNNER_<NAME>")
	fmt.Fprintln(stderr, "environment variables (for example "+colorGreen("STMTRUNNER_ADDRESS")+") or in a JSON file given with -config.")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/config"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/engine"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/firefly"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/firestore"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/ledger"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/registry"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/server"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/ui"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/watermark"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	configFile = flag.String("config", "", "Configuration file (required)")
	once       = flag.Bool("once", false, "Run a single sync pass and exit")
	dryRun     = flag.Bool("dry-run", false, "List source accounts without applying anything")
	verbose    = flag.Bool("verbose", false, "Show detailed sync logs")
	listen     = flag.String("listen", "", "Status server address (overrides config)")
)

func main() {
	// Custom usage message
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `ledgersync - Incremental bank-to-ledger synchronization daemon

Usage:
  ledgersync [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Run the daemon with the default 6-hour cadence
  ledgersync -config ledgersync.yaml

  # One sync pass, e.g. from cron
  ledgersync -config ledgersync.yaml -once

  # Check connectivity and account discovery without writing
  ledgersync -config ledgersync.yaml -dry-run

`)
	}

	flag.Parse()

	// Handle version flag
	if *versionFlag {
		fmt.Printf("ledgersync version %s\n", version)
		os.Exit(0)
	}

	// Validate required flags
	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// daemon holds everything one sync pass needs. Source readers are rebuilt
// per pass (the file source caches its directory scan per reader), while the
// destination client, watermark store, and halt latch live for the process.
type daemon struct {
	cfg      *config.Config
	dest     ledger.Ledger
	marks    watermark.Store
	halt     *engine.Halt
	status   *server.Server
	fsClient *firestore.Client
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}

	d := &daemon{
		cfg:  cfg,
		dest: firefly.New(cfg.Firefly.URL, cfg.Firefly.Token),
		halt: &engine.Halt{},
	}
	d.status = server.New(d.halt)

	switch cfg.Watermark.Backend {
	case config.BackendNotes:
		d.marks = watermark.NewNotesStore(d.dest)
	case config.BackendSQLite:
		store, err := watermark.OpenSQLite(cfg.Watermark.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		d.marks = store
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Watermark.FirestoreProject, cfg.Watermark.FirestoreCredentials)
		if err != nil {
			return err
		}
		defer client.Close()
		d.fsClient = client
		d.marks = firestore.NewWatermarkStore(client)
		d.status.SetRunHistory(client)
	}

	if *dryRun {
		return d.listAccounts(ctx)
	}

	addr := cfg.Listen
	if *listen != "" {
		addr = *listen
	}
	if addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, d.status.Handler()); err != nil {
				log.Printf("ERROR: status server on %s: %v", addr, err)
			}
		}()
		if *verbose {
			log.Printf("status server listening on %s", addr)
		}
	}

	if *once {
		return d.pass(ctx)
	}
	return d.loop(ctx)
}

// loop runs a pass immediately and then on every tick until the context is
// cancelled. The daemon outlives failing passes: a transient source failure
// is reported and retried on the next tick, and a halted daemon stays alive
// so the status server keeps reporting the cause, but no further passes run.
func (d *daemon) loop(ctx context.Context) error {
	interval := time.Duration(d.cfg.IntervalHours) * time.Hour

	d.tryPass(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if cause, halted := d.halt.Halted(); halted {
				ui.Error(fmt.Sprintf("sync is HALTED and needs manual intervention: %v", cause))
				ui.Info("restart the process after fixing the source to resume syncing")
				continue
			}
			d.tryPass(ctx)
		}
	}
}

// tryPass runs one pass and contains its error. pass already reports halts
// and per-source failures loudly; a non-zero exit is reserved for -once mode
// and startup failures.
func (d *daemon) tryPass(ctx context.Context) {
	if err := d.pass(ctx); err != nil && !errors.Is(err, engine.ErrHalted) {
		ui.Error(fmt.Sprintf("sync pass failed: %v (retrying at the next interval)", err))
	}
}

// pass syncs every enabled source once, sequentially.
func (d *daemon) pass(ctx context.Context) error {
	readers := registry.FromConfig(d.cfg).Readers()

	if !*verbose {
		ui.Header("Syncing ledgers")
	}

	var firstErr error
	for i, reader := range readers {
		if !*verbose {
			ui.Step(i+1, len(readers), fmt.Sprintf("Syncing %s", reader.Name()))
		} else {
			log.Printf("syncing source %s", reader.Name())
		}

		eng := engine.New(reader, d.dest, d.marks, d.halt)
		report, err := eng.Run(ctx)
		if report != nil {
			d.status.Record(*report)
			d.recordRun(ctx, report, err)
		}
		if err != nil {
			if errors.Is(err, engine.ErrHalted) {
				ui.Error(fmt.Sprintf("sync HALTED: %v", err))
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
			ui.Error(fmt.Sprintf("syncing %s failed: %v", reader.Name(), err))
			continue
		}

		if *verbose {
			log.Printf("%s: %d applied, %d duplicates, %d failures across %d accounts (%d created, %d skipped)",
				reader.Name(), report.Applied, report.Duplicates, report.Failures,
				report.AccountsSynced, report.AccountsCreated, report.AccountsSkipped)
		} else {
			ui.Success(fmt.Sprintf("%s: %d new, %d already present", reader.Name(), report.Applied, report.Duplicates))
			if report.Failures > 0 || report.AccountsSkipped > 0 {
				ui.Warning(fmt.Sprintf("%s: %d transactions failed, %d accounts skipped (will retry next pass)",
					reader.Name(), report.Failures, report.AccountsSkipped))
			}
		}
	}
	return firstErr
}

// recordRun persists the pass outcome when a Firestore client is configured.
func (d *daemon) recordRun(ctx context.Context, report *engine.Report, runErr error) {
	if d.fsClient == nil {
		return
	}

	rec := &firestore.RunRecord{Status: firestore.RunStatusCompleted, Report: *report}
	switch {
	case errors.Is(runErr, engine.ErrHalted):
		rec.Status = firestore.RunStatusHalted
		rec.Error = runErr.Error()
	case runErr != nil:
		rec.Status = firestore.RunStatusError
		rec.Error = runErr.Error()
	}
	if err := d.fsClient.RecordRun(ctx, rec); err != nil {
		log.Printf("ERROR: recording run for %s: %v", report.Source, err)
	}
}

// listAccounts prints every source account and its balance, then exits
// without touching the destination or the watermarks.
func (d *daemon) listAccounts(ctx context.Context) error {
	readers := registry.FromConfig(d.cfg).Readers()

	ui.Header("Dry run: source account discovery")
	for _, reader := range readers {
		accounts, err := reader.Accounts(ctx)
		if err != nil {
			return fmt.Errorf("listing %s accounts: %w", reader.Name(), err)
		}

		ui.BlueText(fmt.Sprintf("%s: %d accounts", reader.Name(), len(accounts)))
		for _, account := range accounts {
			ui.Info(fmt.Sprintf("%s  %s  %s", account.Reference, account.Name, ui.FormatMoney(account.Balance, account.Currency)))
		}
	}
	fmt.Println("Dry run complete. Nothing was written.")
	return nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	gosync "sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/fieldsync/fieldsync/internal/api"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/entity"
	"github.com/fieldsync/fieldsync/internal/exitcodes"
	"github.com/fieldsync/fieldsync/internal/logging"
	"github.com/fieldsync/fieldsync/internal/notify"
	"github.com/fieldsync/fieldsync/internal/store"
	syncpkg "github.com/fieldsync/fieldsync/internal/sync"
	"github.com/fieldsync/fieldsync/internal/tui"
)

var version = "0.3.0"

func main() {
	app := &cli.App{
		Name:    "fieldsync",
		Usage:   "Offline-first incremental sync for field sales data",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format: text or json",
			},
			&cli.StringFlag{
				Name:    "verbosity",
				Aliases: []string{"v"},
				Value:   "info",
				Usage:   "Log verbosity level (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return err
			}
			logging.SetLevel(level)

			if c.String("log-format") == "json" {
				logging.SetFormat("json")
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				// No command: run a sync under the live monitor.
				return runSync(c, true)
			}
			return cli.ShowAppHelp(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Run one incremental sync session",
				Action: func(c *cli.Context) error { return runSync(c, false) },
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Suppress the progress bar (for cron/headless use)",
					},
				},
			},
			{
				Name:   "login",
				Usage:  "Authenticate and store the API token",
				Action: runLogin,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "username",
						Aliases: []string{"u"},
						Usage:   "Account username (prompted if omitted)",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show local record counts and the last session",
				Action: showStatus,
			},
			{
				Name:   "history",
				Usage:  "Show recent sync sessions",
				Action: showHistory,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Number of sessions to show",
					},
				},
			},
			{
				Name:   "checkpoints",
				Usage:  "Show per-collection sync checkpoints",
				Action: showCheckpoints,
			},
			{
				Name:   "retry",
				Usage:  "Re-attempt parked single-record failures",
				Action: runRetry,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "list",
						Usage: "List the queue without retrying",
					},
				},
			},
			{
				Name:      "fetch",
				Usage:     "Fetch one record out of band",
				ArgsUsage: "<collection> <record-id>",
				Action:    runFetch,
			},
			{
				Name:   "wipe",
				Usage:  "Delete all local data, checkpoints, and credentials",
				Action: runWipe,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Skip the confirmation prompt",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitcodes.FromError(err))
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// buildEngine assembles the client, store, and engine from config.
// Callers own closing the returned store.
func buildEngine(c *cli.Context) (*syncpkg.Engine, *store.Store, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}

	token, err := cfg.API.ReadToken()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading token: %w", err)
	}

	st, err := store.Open(cfg.Sync.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}

	client := api.NewClient(cfg.API.BaseURL, token, cfg.API.Timeout())
	engine := syncpkg.New(client, st, syncpkg.Options{
		PageSize:         cfg.Sync.PageSize,
		ProgressInterval: cfg.Sync.ProgressInterval(),
	})
	return engine, st, cfg, nil
}

func runSync(c *cli.Context, useTUI bool) error {
	engine, st, cfg, err := buildEngine(c)
	if err != nil {
		return err
	}
	defer st.Close()

	notifier := notify.New(&cfg.Notify)
	var startedOnce gosync.Once
	engine.Subscribe(func(snap syncpkg.Snapshot) {
		if snap.State == syncpkg.StateSyncing {
			startedOnce.Do(func() {
				go func() {
					if err := notifier.SyncStarted(snap.SessionID, snap.CollectionCount); err != nil {
						logging.Warn("notify: %v", err)
					}
				}()
			})
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal stops at the next collection boundary, a second one
	// cancels the in-flight page.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logging.Info("stop requested, finishing current collection")
		engine.Stop()
		<-sigCh
		cancel()
	}()

	var syncErr error
	if useTUI {
		syncErr = tui.Run(ctx, engine)
	} else {
		if !c.Bool("no-progress") {
			attachProgressBar(engine)
		}
		syncErr = engine.Sync(ctx)
	}

	snap := engine.Snapshot()
	elapsed := time.Since(snap.StartedAt)
	var notifyErr error
	switch snap.State {
	case syncpkg.StateCompleted:
		notifyErr = notifier.SyncCompleted(snap.SessionID, snap.StartedAt, elapsed, snap.RecordsApplied)
		fmt.Printf("Sync completed: %d records in %s\n", snap.RecordsApplied, elapsed.Round(time.Millisecond))
	case syncpkg.StateStopped:
		notifyErr = notifier.SyncStopped(snap.SessionID, elapsed)
		fmt.Println("Sync stopped; saved checkpoints are kept")
	case syncpkg.StateFailed:
		notifyErr = notifier.SyncFailed(snap.SessionID, snap.Err, elapsed)
	}
	if notifyErr != nil {
		logging.Warn("notify: %v", notifyErr)
	}

	return syncErr
}

// attachProgressBar renders engine snapshots as a terminal progress bar
// scaled to 1000 steps.
func attachProgressBar(engine *syncpkg.Engine) {
	bar := progressbar.NewOptions64(
		1000,
		progressbar.OptionSetDescription("Syncing"),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
	engine.Subscribe(func(snap syncpkg.Snapshot) {
		if snap.State == syncpkg.StateSyncing && snap.Collection != "" {
			bar.Describe("Syncing " + snap.Collection)
		}
		bar.Set64(int64(snap.Fraction * 1000))
		if snap.State == syncpkg.StateCompleted {
			bar.Finish()
			fmt.Println()
		}
	})
}

func runLogin(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	username := c.String("username")
	if username == "" {
		fmt.Print("Username: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	client := api.NewClient(cfg.API.BaseURL, "", cfg.API.Timeout())
	token, err := client.Login(context.Background(), username, string(password))
	if err != nil {
		return err
	}

	if err := cfg.API.WriteToken(token); err != nil {
		return err
	}
	fmt.Println("Login successful; token stored")
	return nil
}

func showStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Sync.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	sessions, err := st.ListSessions(ctx, 1)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sync sessions yet")
	} else {
		s := sessions[0]
		fmt.Printf("Last session: %s  %s  started %s\n",
			s.ID, s.Status, s.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if s.ErrorMessage != "" {
			fmt.Printf("  error: %s\n", s.ErrorMessage)
		}
	}

	ops, err := st.ListFailedOps(ctx)
	if err != nil {
		return err
	}
	if len(ops) > 0 {
		fmt.Printf("Parked failures: %d (run 'fieldsync retry')\n", len(ops))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nCOLLECTION\tRECORDS")
	for _, table := range entity.AllTables() {
		count, err := st.CountRecords(ctx, table.String())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", table, count)
	}
	return w.Flush()
}

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Sync.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(context.Background(), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sync sessions yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTATUS\tSTARTED\tDURATION")
	for _, s := range sessions {
		duration := "-"
		if !s.CompletedAt.IsZero() {
			duration = s.CompletedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.ID, s.Status, s.StartedAt.Local().Format("2006-01-02 15:04:05"), duration)
	}
	return w.Flush()
}

func showCheckpoints(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Sync.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	cps, err := st.LoadCheckpoints(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tSYNCED AS OF")
	for _, col := range syncpkg.Collections() {
		asOf := "never"
		if cp, ok := cps[col.Name]; ok {
			asOf = cp.SyncedAsOf
		}
		fmt.Fprintf(w, "%s\t%s\n", col.Name, asOf)
	}
	return w.Flush()
}

func runRetry(c *cli.Context) error {
	engine, st, _, err := buildEngine(c)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if c.Bool("list") {
		ops, err := st.ListFailedOps(ctx)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("Retry queue is empty")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COLLECTION\tRECORD\tENQUEUED")
		for _, op := range ops {
			fmt.Fprintf(w, "%s\t%d\t%s\n",
				op.TableID, op.RecordID, op.EnqueuedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	}

	retried, remaining, err := engine.RetryFailedOperations(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Recovered %d, still parked %d\n", retried, remaining)
	return nil
}

func runFetch(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: fieldsync fetch <collection> <record-id>")
	}
	table, err := entity.ParseTableID(c.Args().Get(0))
	if err != nil {
		return err
	}
	var recordID int64
	if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &recordID); err != nil || recordID <= 0 {
		return fmt.Errorf("invalid record id %q", c.Args().Get(1))
	}

	engine, st, _, err := buildEngine(c)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := engine.FetchSingle(context.Background(), table, recordID); err != nil {
		return err
	}
	fmt.Printf("Fetched %s/%d\n", table, recordID)
	return nil
}

func runWipe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if !c.Bool("yes") {
		fmt.Print("This deletes all local data and credentials. Type 'yes' to continue: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil || line != "yes\n" {
			fmt.Println("Aborted")
			return nil
		}
	}

	st, err := store.Open(cfg.Sync.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ClearAll(context.Background()); err != nil {
		return err
	}
	if err := os.Remove(cfg.API.TokenFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token: %w", err)
	}
	fmt.Println("Local data cleared")
	return nil
}

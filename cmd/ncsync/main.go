// Command ncsync runs the bidirectional synchronization engine between
// a local directory and a Nextcloud/WebDAV account, per the
// configuration read from the environment (see pkg/config).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ncsync/ncsync/pkg/cache"
	"github.com/ncsync/ncsync/pkg/config"
	"github.com/ncsync/ncsync/pkg/entrytree"
	"github.com/ncsync/ncsync/pkg/exclude"
	"github.com/ncsync/ncsync/pkg/localwatch"
	"github.com/ncsync/ncsync/pkg/logging"
	"github.com/ncsync/ncsync/pkg/netprobe"
	"github.com/ncsync/ncsync/pkg/reconcile"
	"github.com/ncsync/ncsync/pkg/repair"
	"github.com/ncsync/ncsync/pkg/stash"
	"github.com/ncsync/ncsync/pkg/webdav"
)

var rootCommand = &cobra.Command{
	Use:   "ncsync",
	Short: "ncsync synchronizes a local directory with a Nextcloud account",
	RunE:  run,
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const metaDirName = ".ncs"

func run(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}

	level, ok := logging.NameToLevel(cfg.LogLevel)
	if !ok {
		level = logging.LevelInfo
	}
	logging.SetLevel(level)

	metaDir := filepath.Join(cfg.LocalRoot, metaDirName)
	if logFile, err := logging.ToFile(metaDir); err == nil {
		defer logFile.Close()
	}

	runID := uuid.New().String()
	logger := logging.RootLogger.Sublogger(runID[:8])
	logger.Infof("starting run %s against %s%s as %s", runID, cfg.Host, cfg.RemoteRoot, cfg.Username)

	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelCtx()

	for {
		retry, err := runOnce(ctx, cfg, metaDir, logger)
		if err != nil {
			logger.Error(err)
			return err
		}
		if !retry {
			return nil
		}
		logger.Info("restarting reconciliation after repair")
	}
}

func runOnce(ctx context.Context, cfg *config.Config, metaDir string, logger *logging.Logger) (bool, error) {
	if err := os.MkdirAll(cfg.LocalRoot, 0700); err != nil {
		return false, fmt.Errorf("unable to create local root: %w", err)
	}

	client := webdav.NewClient(cfg.Host, cfg.Username, cfg.Password, cfg.RemoteRoot, logger.Sublogger("webdav"))

	excludeList, err := exclude.LoadOrCreate(filepath.Join(metaDir, "excludes.json"))
	if err != nil {
		return false, fmt.Errorf("unable to load exclude list: %w", err)
	}
	excludeChecker := exclude.NewChecker(excludeList)

	st := stash.New(metaDir, cfg.AutostashEnabled, cfg.AutostashKeepSpan)
	if err := st.Prune(time.Now()); err != nil {
		logger.Warnf("unable to prune stale stash entries: %v", err)
	}

	root, cursor, err := bootstrap(ctx, &repair.Context{
		Client:    client,
		Exclude:   excludeChecker,
		Stash:     st,
		LocalRoot: cfg.LocalRoot,
		Logger:    logger,
	}, metaDir)
	if err != nil {
		return false, fmt.Errorf("unable to bootstrap: %w", err)
	}

	engine := reconcile.New(root, cursor, cfg.LocalRoot, metaDir, client, excludeChecker, st, logger)

	watcher, err := localwatch.New(cfg.LocalRoot, logger.Sublogger("localwatch"))
	if err != nil {
		return false, fmt.Errorf("unable to start local watcher: %w", err)
	}
	defer watcher.Close()

	prober := netprobe.New(cfg.Host)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	go pumpLocalEvents(runCtx, watcher, engine)
	go pollActivity(runCtx, client, engine, logger)
	go watchNetwork(runCtx, prober, engine)
	go readOperatorCommands(runCtx, engine, logger)

	return engine.Run(runCtx)
}

// bootstrap restores the tree and cursor from cache.json if present,
// otherwise performs a normal repair to seed them from the server.
func bootstrap(ctx context.Context, rc *repair.Context, metaDir string) (*entrytree.Entry, string, error) {
	snapshot, err := cache.Load(filepath.Join(metaDir, "cache.json"))
	if err == nil {
		root, convErr := cache.JSONToEntry(snapshot.Root)
		if convErr == nil {
			return root, snapshot.LatestActivityID, nil
		}
	}

	root, cursor, err := repair.Normal(ctx, rc)
	if err != nil {
		return nil, "", err
	}
	return root, cursor, nil
}

func pumpLocalEvents(ctx context.Context, watcher *localwatch.Watcher, engine *reconcile.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-watcher.Events:
			select {
			case engine.Commands <- reconcile.Command{Kind: reconcile.CommandLocEvent, LocalEvent: ev}:
			case <-ctx.Done():
				return
			}
		case err := <-watcher.Errors:
			select {
			case engine.Commands <- reconcile.Command{Kind: reconcile.CommandError, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

const activityPollInterval = 10 * time.Second

func pollActivity(ctx context.Context, client *webdav.Client, engine *reconcile.Engine, logger *logging.Logger) {
	ticker := time.NewTicker(activityPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := engine.Cursor()
			events, newCursor, err := client.PollActivities(ctx, current)
			if err != nil {
				logger.Warnf("activity poll failed: %v", err)
				continue
			}
			if len(events) == 0 && newCursor == current {
				continue
			}
			select {
			case engine.Commands <- reconcile.Command{Kind: reconcile.CommandNCEvents, RemoteEvents: events, NewCursor: newCursor}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func watchNetwork(ctx context.Context, prober *netprobe.Prober, engine *reconcile.Engine) {
	ticker := time.NewTicker(netprobe.ProbeInterval)
	defer ticker.Stop()

	wasOnline := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := prober.IsOnline(ctx)
			if online == wasOnline {
				continue
			}
			wasOnline = online

			kind := reconcile.CommandNetworkDisconnect
			if online {
				kind = reconcile.CommandNetworkConnect
			}
			select {
			case engine.Commands <- reconcile.Command{Kind: kind}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// readOperatorCommands implements the operator control surface: a line
// of "RESET" on standard input requests a hard repair, anything else
// is ignored.
func readOperatorCommands(ctx context.Context, engine *reconcile.Engine, logger *logging.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToUpper(line) {
		case "RESET":
			logger.Info("operator requested reset")
			select {
			case engine.Commands <- reconcile.Command{Kind: reconcile.CommandHardRepair}:
			case <-ctx.Done():
				return
			}
		case "":
		default:
			logger.Warnf("unrecognized operator command %q", line)
		}
	}
}

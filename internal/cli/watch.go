package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Entity    string
	ServerURL string
	Dir       string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and import new files",
		Long: `Watch a drop directory and import every CSV or XLSX file that appears
in it. Writes are debounced so a file still being copied is picked up
once, when it settles.`,
		Example: `  # Import payment spreadsheets dropped into ./incoming
  pdimport watch --dir ./incoming --entity Payment`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Entity, "entity", "", "Entity type for imported files (required)")
	cmd.Flags().StringVar(&opts.ServerURL, "server", "", "Import server base URL")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "Directory to watch")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()

	dir := cfg.Watch.Dir
	if opts.Dir != "" {
		dir = opts.Dir
	}
	if dir == "" {
		return fmt.Errorf("no watch directory configured (use --dir or watch.dir)")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("watch directory does not exist: %s", dir)
	}
	debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("watching for import files", "dir", dir, "entity", opts.Entity)

	// Debounce timers per file, so two files settling at once both import.
	timers := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if ext != ".csv" && ext != ".xlsx" {
				continue
			}

			path := event.Name
			if timer, ok := timers[path]; ok {
				timer.Stop()
			}
			timers[path] = time.AfterFunc(debounce, func() {
				logger.Info("importing file", "file", path)
				importOpts := &ImportOptions{Entity: opts.Entity, ServerURL: opts.ServerURL}
				if err := importFile(ctx, cmd.OutOrStdout(), cfg, logger, path, importOpts); err != nil {
					logger.Error("import failed", "file", path, "error", err)
				}
			})

		case err := <-watcher.Errors:
			logger.Error("watcher error", "error", err)
		}
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch configured sources and keep them indexed",
		Long: `Runs the configured watchers until interrupted. The local watcher
indexes the watch directory and reacts to filesystem events; the Drive
watcher polls the configured folder. The memory sweeper also runs here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context())
		},
	}
}

func runWatch(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var wg sync.WaitGroup
	started := 0

	if a.Config.WatchDir != "" {
		local, err := a.LocalWatcher()
		if err != nil {
			return err
		}
		started++
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := local.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error("local watcher stopped", "error", err)
			}
		}()
		a.Logger.Info("local watcher started", "dir", a.Config.WatchDir)
	}

	if a.Config.DriveFolderID != "" {
		drive, err := a.DriveWatcher(ctx)
		if err != nil {
			return err
		}
		started++
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := drive.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error("drive watcher stopped", "error", err)
			}
		}()
		a.Logger.Info("drive watcher started", "folder_id", a.Config.DriveFolderID)
	}

	if started == 0 {
		return fmt.Errorf("no watchers configured: set watch_dir or drive_folder_id")
	}

	// Expired memories are swept while the process runs.
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.MemoryScheduler().Run(ctx)
	}()

	<-ctx.Done()
	a.Logger.Info("shutting down watchers")
	wg.Wait()
	return nil
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/logger"
)

var (
	ingestDir   string
	ingestWatch bool
)

// watchDebounce batches bursts of filesystem events into one run.
const watchDebounce = 2 * time.Second

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest documents into the vector index",
	Long: `Parses, chunks, embeds and indexes documents.

Without arguments the configured corpus directory is ingested.
Unchanged documents (same content hash) are skipped; modified ones are
re-chunked and their stale chunks removed from the index.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "directory to ingest (default: corpus dir from config)")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep running and re-ingest on file changes")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()

	if len(args) > 0 {
		report, err := a.ingestService.Ingest(ctx, args)
		if err != nil {
			return err
		}
		printReport(cmd, report)
		return nil
	}

	dir := ingestDir
	if dir == "" {
		dir = a.cfg.Corpus.Dir
	}

	report, err := a.ingestService.IngestDir(ctx, dir)
	if err != nil {
		return err
	}
	printReport(cmd, report)

	if ingestWatch {
		return watchAndIngest(ctx, a, dir, cmd)
	}
	return nil
}

// watchAndIngest re-runs ingestion whenever the corpus directory
// changes, debouncing event bursts.
func watchAndIngest(ctx context.Context, a *app, dir string, cmd *cobra.Command) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	cmd.Printf("Watching %s for changes...\n", dir)

	var timer *time.Timer
	runs := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case runs <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher: %v", err)
		case <-runs:
			report, err := a.ingestService.IngestDir(ctx, dir)
			if err != nil {
				logger.Error("Re-ingestion: %v", err)
				continue
			}
			printReport(cmd, report)
		}
	}
}

// printReport writes an ingestion summary to the command output.
func printReport(cmd *cobra.Command, report domain.IngestionReport) {
	cmd.Printf("Ingested %d documents (%d unchanged) in %s\n",
		report.DocumentsProcessed, report.DocumentsSkipped,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	cmd.Printf("  chunks indexed: %d, stale chunks removed: %d, index size: %d\n",
		report.ChunksCreated, report.ChunksDeleted, report.IndexSize)
	for _, f := range report.Failures {
		cmd.Printf("  FAILED %s (%s): %s\n", f.SourcePath, f.Stage, f.Reason)
	}
}

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/output"
	"github.com/quarry-search/quarry/internal/scanner"
	"github.com/quarry-search/quarry/internal/store"
	"github.com/quarry-search/quarry/internal/ui"
	"github.com/quarry-search/quarry/internal/watcher"
	"github.com/quarry-search/quarry/pkg/retrieval"
)

// indexBatchSize is how many files are chunked and stored per round trip.
const indexBatchSize = 32

func newIndexCmd() *cobra.Command {
	var (
		noTUI bool
		force bool
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This scans files, chunks code and documents, and writes every configured
search backend. Use --force to clear existing index data and rebuild
from scratch, and --watch to keep re-indexing as files change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, noTUI, force, watch)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index and rebuild from scratch")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep watching for file changes after indexing")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, noTUI, force, watch bool) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return errors.IOError("resolve index path", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return errors.IOError("stat index path", err).WithDetail("path", root)
	}
	if !info.IsDir() {
		return errors.ValidationError("index path is not a directory", nil).
			WithDetail("path", root)
	}

	cfg, indexDir, err := loadProjectConfig(root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return errors.IOError("create index directory", err).WithDetail("path", indexDir)
	}
	if cleanup := setupCommandLogging(cfg, indexDir); cleanup != nil {
		defer cleanup()
	}

	lock := store.NewIndexLock(indexDir)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: noTUI || watch,
		NoColor:    ui.DetectNoColor(),
		ProjectDir: root,
	})
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	onEmbed := func(processed, total int) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageEmbedding,
			Current: processed,
			Total:   total,
		})
	}

	eng, err := openEngine(ctx, cfg, indexDir, onEmbed)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if force {
		if err := eng.orch.Clear(ctx); err != nil {
			return err
		}
		slog.Info("index cleared", "index_dir", indexDir)
	}

	start := time.Now()
	stats, err := indexTree(ctx, eng, root, renderer)
	if err != nil {
		return err
	}
	if err := eng.save(); err != nil {
		return err
	}

	stats.Duration = time.Since(start)
	renderer.Complete(stats)
	_ = renderer.Stop()

	slog.Info("index complete",
		"files", stats.Files,
		"chunks", stats.Chunks,
		"duration", stats.Duration,
		"errors", stats.Errors)

	if watch {
		return runWatch(ctx, cmd, eng, root)
	}
	return nil
}

// indexTree scans the root and feeds every readable file through the
// orchestrator in batches.
func indexTree(ctx context.Context, eng *engine, root string, renderer ui.Renderer) (ui.CompletionStats, error) {
	var stats ui.CompletionStats

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning})
	files, err := scanner.Scan(ctx, scanner.Options{
		RootDir: root,
		OnProgress: func(found int, path string) {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageScanning,
				Current:     found,
				CurrentFile: path,
			})
		},
	})
	if err != nil {
		return stats, err
	}

	for start := 0; start < len(files); start += indexBatchSize {
		end := start + indexBatchSize
		if end > len(files) {
			end = len(files)
		}

		docs := make([]retrieval.Document, 0, end-start)
		for _, f := range files[start:end] {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageChunking,
				Current:     stats.Files + len(docs),
				Total:       len(files),
				CurrentFile: f.Path,
			})

			data, readErr := os.ReadFile(f.AbsPath)
			if readErr != nil {
				renderer.AddError(ui.ErrorEvent{File: f.Path, Err: readErr, IsWarn: true})
				stats.Warnings++
				continue
			}
			docs = append(docs, retrieval.Document{
				ID:      f.Path,
				Content: string(data),
				Metadata: map[string]any{
					"path":     f.Path,
					"language": f.Language,
				},
			})
		}
		if len(docs) == 0 {
			continue
		}

		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageIndexing,
			Current: stats.Files,
			Total:   len(files),
		})
		n, err := eng.orch.Index(ctx, docs)
		if err != nil {
			return stats, err
		}
		stats.Files += len(docs)
		stats.Chunks += n
	}

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageComplete,
		Current: stats.Files,
		Total:   len(files),
	})
	return stats, nil
}

// runWatch re-indexes on debounced file change batches until ctx is done.
func runWatch(ctx context.Context, cmd *cobra.Command, eng *engine, root string) error {
	out := output.New(cmd.OutOrStdout())

	w := watcher.New(watcher.Options{})
	if err := w.Start(ctx, root); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	out.Status("~", "watching for changes (ctrl-c to stop)")

	for {
		select {
		case <-ctx.Done():
			out.Newline()
			out.Success("watch stopped")
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			applyWatchBatch(ctx, eng, root, batch, out)
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

func applyWatchBatch(ctx context.Context, eng *engine, root string, batch []watcher.FileEvent, out *output.Writer) {
	var docs []retrieval.Document
	var removed []string

	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case watcher.OpDelete:
			removed = append(removed, ev.Path)
		case watcher.OpCreate, watcher.OpModify:
			if scanner.DetectLanguage(ev.Path) == "" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(root, ev.Path))
			if err != nil {
				continue
			}
			docs = append(docs, retrieval.Document{
				ID:      ev.Path,
				Content: string(data),
				Metadata: map[string]any{
					"path":     ev.Path,
					"language": scanner.DetectLanguage(ev.Path),
				},
			})
		}
	}

	if len(removed) > 0 {
		if _, err := eng.orch.Remove(ctx, removed); err != nil {
			out.Errorf("remove failed: %v", err)
		} else {
			out.Statusf("-", "removed %d file(s)", len(removed))
		}
	}
	if len(docs) > 0 {
		n, err := eng.orch.Index(ctx, docs)
		if err != nil {
			out.Errorf("re-index failed: %v", err)
		} else {
			out.Statusf("+", "re-indexed %d file(s), %d chunk(s)", len(docs), n)
		}
	}
	if len(removed) > 0 || len(docs) > 0 {
		if err := eng.save(); err != nil {
			slog.Warn("failed to save vector index", "error", err)
		}
	}
}

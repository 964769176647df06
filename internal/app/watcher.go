package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
)

// Default watcher configuration values.
const (
	DefaultExtension   = ".properties"
	DefaultSettleDelay = 100 * time.Millisecond
)

// FileSender transmits the entries of one source file.
type FileSender interface {
	Send(ctx context.Context, path, filename string, entries domain.EntrySet) (Outcome, error)
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Dir is the monitored directory.
	Dir string
	// Extension selects which created files are processed.
	Extension string
	// SettleDelay is waited before reading a newly created file.
	SettleDelay time.Duration
	// ProcessInterval is paused after each processed file.
	ProcessInterval time.Duration
	// ScanExisting processes files already present when watching starts.
	ScanExisting bool
}

// Watcher reacts to files created in the monitored directory, one at a time.
type Watcher struct {
	cfg    WatcherConfig
	filter *KeyFilter
	reader ports.EntryReader
	sender FileSender
	logger ports.Logger
}

// NewWatcher creates a Watcher.
func NewWatcher(cfg WatcherConfig, filter *KeyFilter, reader ports.EntryReader, sender FileSender, logger ports.Logger) *Watcher {
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	return &Watcher{
		cfg:    cfg,
		filter: filter,
		reader: reader,
		sender: sender,
		logger: logger,
	}
}

// Run watches the directory until ctx is done or the watch becomes invalid.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Clean(w.cfg.Dir)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching directory",
		ports.String("dir", dir),
		ports.String("extension", w.cfg.Extension),
		ports.String("filter", w.filter.String()),
	)

	if w.cfg.ScanExisting {
		if err := w.scan(ctx, dir); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return domain.ErrWatchInvalid
			}
			if filepath.Clean(event.Name) == dir && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
				return fmt.Errorf("%w: %s was removed", domain.ErrWatchInvalid, dir)
			}
			if !event.Has(fsnotify.Create) || !w.wanted(event.Name) {
				continue
			}
			if err := w.handle(ctx, event.Name); err != nil {
				return err
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return domain.ErrWatchInvalid
			}
			w.logger.Error("watcher error", ports.Err(err))
		}
	}
}

func (w *Watcher) wanted(path string) bool {
	return strings.HasSuffix(filepath.Base(path), w.cfg.Extension)
}

// scan processes matching files already in dir, oldest name first.
func (w *Watcher) scan(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && w.wanted(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) > 0 {
		w.logger.Info("processing existing files", ports.Int("count", len(names)))
	}
	for _, name := range names {
		if err := w.handle(ctx, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// handle settles, processes and paces a single file. It only returns an
// error when ctx is done.
func (w *Watcher) handle(ctx context.Context, path string) error {
	if err := sleepCtx(ctx, w.cfg.SettleDelay); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		w.logger.Debug("file vanished before processing", ports.String("path", path))
		return nil
	}

	outcome, err := w.ProcessFile(ctx, path)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	w.logger.Debug("file processed",
		ports.String("path", path),
		ports.String("outcome", outcome.String()),
	)
	return sleepCtx(ctx, w.cfg.ProcessInterval)
}

// ProcessFile reads, filters and sends one file. Unreadable files are left
// in place.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (Outcome, error) {
	entries, err := w.reader.ReadEntries(path)
	if err != nil {
		w.logger.Error("read source failed",
			ports.String("path", path),
			ports.Err(err),
		)
		return OutcomeSkipped, err
	}
	filtered := w.filter.Apply(entries)
	w.logger.Debug("entries selected",
		ports.String("path", path),
		ports.Int("read", len(entries)),
		ports.Int("kept", len(filtered)),
	)
	return w.sender.Send(ctx, path, filepath.Base(path), filtered)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

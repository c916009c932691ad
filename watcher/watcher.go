// Package watcher ingests images dropped into a directory, converting them
// to the configured storage format and persisting them through the storage
// backend.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
	"github.com/pixelserve/pixelserve/utils"
)

// Config controls directory ingestion.
type Config struct {
	InputDir       string
	StorageFormat  core.Format
	Quality        int
	DeleteOriginal bool
	// SettleDelay is how long to wait after a create event before reading
	// the file, so writers get a chance to finish.  Defaults to 200ms.
	SettleDelay time.Duration
}

// Watcher converts dropped-in files and stores the result.
type Watcher struct {
	cfg      Config
	executor core.PipelineExecutor
	storage  core.StorageBackend
	limits   core.Limits
	logger   core.Logger

	fs     *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Watcher.  Call Start to begin processing.
func New(cfg Config, executor core.PipelineExecutor, storage core.StorageBackend, limits core.Limits) (*Watcher, error) {
	if cfg.InputDir == "" {
		return nil, apperrors.Newf(apperrors.KindInvalidParameter, "watcher", "input directory is required")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 200 * time.Millisecond
	}
	return &Watcher{
		cfg:      cfg,
		executor: executor,
		storage:  storage,
		limits:   limits,
		done:     make(chan struct{}),
	}, nil
}

// SetLogger attaches a structured logger.
func (w *Watcher) SetLogger(l core.Logger) { w.logger = l }

// Start scans the input directory for existing files, then watches for new
// ones until Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "watcher.start", err)
	}
	if err := fs.Add(w.cfg.InputDir); err != nil {
		fs.Close()
		return apperrors.Wrap(apperrors.KindInternal, "watcher.start", err)
	}
	w.fs = fs

	ctx, w.cancel = context.WithCancel(ctx)

	if err := w.scan(ctx); err != nil {
		w.warnf("watcher.scan.failed", "error", err.Error())
	}

	go w.loop(ctx)
	return nil
}

// Stop halts the event loop and releases the filesystem watch.
func (w *Watcher) Stop() {
	if w.fs == nil {
		return
	}
	if w.cancel != nil {
		w.cancel()
	}
	if w.fs != nil {
		w.fs.Close()
	}
	<-w.done
}

// scan ingests files already present when the watcher starts.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.InputDir)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.InputDir, e.Name())
		g.Go(func() error {
			if err := w.Ingest(gctx, path); err != nil {
				w.warnf("watcher.ingest.failed", "path", path, "error", err.Error())
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			select {
			case <-time.After(w.cfg.SettleDelay):
			case <-ctx.Done():
				return
			}
			if err := w.Ingest(ctx, ev.Name); err != nil {
				w.warnf("watcher.ingest.failed", "path", ev.Name, "error", err.Error())
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.warnf("watcher.fs.error", "error", err.Error())
		}
	}
}

// Ingest converts a single file to the storage format and persists it under
// the file's stem.  Files that are not recognized images are skipped.
func (w *Watcher) Ingest(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Transient("watcher.ingest", err)
	}
	if utils.DetectFormat(data) == "unknown" {
		w.debugf("watcher.ingest.skipped", "path", path)
		return nil
	}

	d := core.Descriptor{
		Format:  w.cfg.StorageFormat,
		Quality: w.cfg.Quality,
	}
	d = d.Normalize(w.limits)

	res, err := w.executor.Execute(ctx, data, d)
	if err != nil {
		return err
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	key := stem + w.cfg.StorageFormat.Extension()
	if err := w.storage.Put(ctx, key, res.Bytes); err != nil {
		return err
	}
	w.infof("watcher.ingest.stored", "path", path, "key", key, "bytes", len(res.Bytes))

	if w.cfg.DeleteOriginal {
		if err := os.Remove(path); err != nil {
			w.warnf("watcher.ingest.cleanup_failed", "path", path, "error", err.Error())
		}
	}
	return nil
}

func (w *Watcher) debugf(msg string, fields ...interface{}) {
	if w.logger != nil {
		w.logger.Debug(msg, fields...)
	}
}

func (w *Watcher) infof(msg string, fields ...interface{}) {
	if w.logger != nil {
		w.logger.Info(msg, fields...)
	}
}

func (w *Watcher) warnf(msg string, fields ...interface{}) {
	if w.logger != nil {
		w.logger.Warn(msg, fields...)
	}
}

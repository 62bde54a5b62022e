// Package inbox ingests text files dropped into a watched directory.
//
// Files ending in .txt or .md are read once their writes settle, passed to
// the workspace as new documents and moved to processed/ or failed/.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

const (
	// ProcessedDir receives files that were ingested.
	ProcessedDir = "processed"
	// FailedDir receives files whose ingestion failed.
	FailedDir = "failed"

	defaultSettle  = 500 * time.Millisecond
	maxFileSize    = 1 << 20
	readyQueueSize = 64
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Ingester adds captured text as a document.
type Ingester interface {
	AddDocument(ctx context.Context, text string) (knowledge.Document, error)
}

// Options configures a Watcher.
type Options struct {
	// Settle is how long a file must stay unchanged before it is read.
	Settle time.Duration
	Logger *zap.Logger
}

// Watcher ingests files from a directory.
type Watcher struct {
	dir      string
	ingester Ingester
	settle   time.Duration
	logger   *zap.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	started bool
	pending map[string]*time.Timer
	ready   chan string
	stop    chan struct{}
	done    chan struct{}
}

// New creates a watcher for dir, creating it and its archive directories.
func New(dir string, ingester Ingester, opts Options) (*Watcher, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("inbox dir is required")
	}
	for _, sub := range []string{"", ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0700); err != nil {
			return nil, fmt.Errorf("creating inbox directory: %w", err)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Watcher{
		dir:      dir,
		ingester: ingester,
		settle:   opts.Settle,
		logger:   opts.Logger,
		watcher:  fw,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, readyQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directory and queues files already present.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			w.schedule(filepath.Join(w.dir, entry.Name()))
		}
	}

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.run(ctx)
	w.logger.Info("inbox watcher started", zap.String("dir", w.dir))
	return nil
}

// Stop stops watching and waits for the in-flight file to finish.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}

	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		case path := <-w.ready:
			w.ingest(ctx, path)
		}
	}
}

// schedule (re)arms the settle timer for path.
func (w *Watcher) schedule(path string) {
	if !Accepts(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.deliver(path)
	})
}

// deliver hands a settled path to the run loop. It gives up once the loop
// has exited, whether through Stop or a cancelled context.
func (w *Watcher) deliver(path string) {
	select {
	case w.ready <- path:
	case <-w.stop:
	case <-w.done:
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	logger := w.logger.With(zap.String("file", filepath.Base(path)))

	text, err := readText(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Warn("reading inbox file failed", zap.Error(err))
		w.archive(path, FailedDir, logger)
		return
	}

	doc, err := w.ingester.AddDocument(ctx, text)
	if err != nil {
		logger.Warn("inbox ingestion failed", zap.Error(err))
		w.archive(path, FailedDir, logger)
		return
	}
	logger.Info("inbox file ingested", zap.String("document.id", doc.ID), zap.String("title", doc.Title))
	w.archive(path, ProcessedDir, logger)
}

func (w *Watcher) archive(path, sub string, logger *zap.Logger) {
	target := filepath.Join(w.dir, sub, time.Now().UTC().Format("20060102T150405")+"-"+filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		logger.Warn("archiving inbox file failed", zap.String("target", sub), zap.Error(err))
	}
}

// Accepts reports whether path names a file the inbox ingests.
func Accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func readText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file")
	}
	if info.Size() > maxFileSize {
		return "", fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxFileSize))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

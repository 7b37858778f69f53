// Package watch ingests captured snippets dropped into an inbox directory.
//
// Each *.json file holds one capture (service.CaptureInput). Writers should
// create the file under another name and rename it into place; a plain
// write also works, since events for a path are settled before reading.
// A file is removed once stored. A file that can never be stored (bad JSON,
// empty code) is renamed with a ".rejected" suffix. Any other failure leaves
// the file for the next start.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/model"
	"github.com/sakif/codepocket/internal/service"
)

// RejectedSuffix is appended to files that cannot be ingested.
const RejectedSuffix = ".rejected"

// DefaultSettle is how long a path must stay quiet before it is read.
const DefaultSettle = 100 * time.Millisecond

// Capturer stores a capture. service.SnippetService implements it.
type Capturer interface {
	Capture(ctx context.Context, in service.CaptureInput) (*model.Snippet, error)
}

// Inbox watches one directory.
type Inbox struct {
	dir      string
	capturer Capturer
	logger   *slog.Logger
	settle   time.Duration
}

// New returns an Inbox for dir. settle <= 0 means DefaultSettle.
func New(dir string, c Capturer, settle time.Duration, logger *slog.Logger) *Inbox {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Inbox{dir: dir, capturer: c, logger: logger, settle: settle}
}

// Run creates the directory if needed, ingests files already there, then
// ingests new ones until ctx ends. All ingestion happens on the calling
// goroutine.
func (in *Inbox) Run(ctx context.Context) error {
	if err := os.MkdirAll(in.dir, 0o700); err != nil {
		return fmt.Errorf("watch: creating inbox %s: %w", in.dir, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(in.dir); err != nil {
		return fmt.Errorf("watch: watching %s: %w", in.dir, err)
	}
	in.logger.Info("watching inbox", slog.String("dir", in.dir))

	in.sweep(ctx)

	ready := make(chan string, 16)
	stop := make(chan struct{})
	defer close(stop)
	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isCapture(ev.Name) {
				continue
			}
			path := ev.Name
			mu.Lock()
			if t, ok := pending[path]; ok {
				t.Reset(in.settle)
			} else {
				pending[path] = time.AfterFunc(in.settle, func() {
					mu.Lock()
					delete(pending, path)
					mu.Unlock()
					select {
					case ready <- path:
					case <-stop:
					}
				})
			}
			mu.Unlock()

		case path := <-ready:
			in.ingestLogged(ctx, path)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("inbox watcher error", slog.String("error", err.Error()))
		}
	}
}

// sweep ingests every capture file present in the inbox.
func (in *Inbox) sweep(ctx context.Context) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Warn("reading inbox", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() && isCapture(e.Name()) {
			in.ingestLogged(ctx, filepath.Join(in.dir, e.Name()))
		}
	}
}

func (in *Inbox) ingestLogged(ctx context.Context, path string) {
	sn, err := in.Ingest(ctx, path)
	switch {
	case err == nil && sn != nil:
		in.logger.Info("inbox capture stored",
			slog.String("file", filepath.Base(path)),
			slog.String("id", sn.ID),
		)
	case err != nil:
		in.logger.Warn("inbox capture failed",
			slog.String("file", filepath.Base(path)),
			slog.String("error", err.Error()),
		)
	}
}

// Ingest stores the capture in path and removes the file. It returns a nil
// snippet and no error when the file is already gone.
func (in *Inbox) Ingest(ctx context.Context, path string) (*model.Snippet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("watch: reading %s: %w", path, err)
	}

	var capture service.CaptureInput
	if err := json.Unmarshal(data, &capture); err != nil {
		return nil, in.reject(path, apperror.Parse("capture file is not valid JSON", err))
	}

	sn, err := in.capturer.Capture(ctx, capture)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return nil, in.reject(path, err)
		}
		return nil, err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return sn, fmt.Errorf("watch: removing %s: %w", path, err)
	}
	return sn, nil
}

// reject moves path aside and returns cause.
func (in *Inbox) reject(path string, cause error) error {
	if err := os.Rename(path, path+RejectedSuffix); err != nil {
		return errors.Join(cause, fmt.Errorf("watch: rejecting %s: %w", path, err))
	}
	return cause
}

func isCapture(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}

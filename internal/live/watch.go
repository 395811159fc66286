// Package live watches a drop directory and ingests transcript files as they
// land in it.
package live

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Napageneral/dailwatch/internal/ingest"
)

// IngestFunc persists one transcript file.
type IngestFunc func(ctx context.Context, path string) error

// Watcher ingests "<chamber>-<YYYY-MM-DD>.xml" files from Dir. Files are
// ingested one at a time, after writes to them have been quiet for Debounce.
type Watcher struct {
	Dir      string
	Debounce time.Duration
	Ingest   IngestFunc

	// Beat is called every HeartbeatInterval while watching, if both are set.
	Beat              func()
	HeartbeatInterval time.Duration

	Logf func(format string, args ...any)
}

// Watch runs a Watcher until ctx is cancelled.
func Watch(ctx context.Context, dir string, debounce time.Duration, fn IngestFunc, logf func(format string, args ...any)) error {
	w := &Watcher{Dir: dir, Debounce: debounce, Ingest: fn, Logf: logf}
	return w.Run(ctx)
}

func (w *Watcher) logf(format string, args ...any) {
	if w.Logf != nil {
		w.Logf(format, args...)
	}
}

func matches(path string) bool {
	_, _, ok := ingest.ParseFileName(path)
	return ok
}

// Run ingests files already present, then watches for new ones. It returns
// nil when ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Ingest == nil {
		return fmt.Errorf("no ingest function configured")
	}
	info, err := os.Stat(w.Dir)
	if err != nil {
		return fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch dir %s is not a directory", w.Dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	w.logf("[watch] watching %s (debounce %s)", w.Dir, debounce)

	stopBeat := w.startHeartbeat()
	defer stopBeat()

	existing, err := filepath.Glob(filepath.Join(w.Dir, "*"))
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.Dir, err)
	}
	sort.Strings(existing)
	for _, path := range existing {
		if ctx.Err() != nil {
			return nil
		}
		if matches(path) {
			w.ingest(ctx, path)
		}
	}

	ready := make(chan string, 16)
	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Stop()
		}
		timers[path] = time.AfterFunc(debounce, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-ready:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			w.ingest(ctx, path)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if matches(event.Name) {
				schedule(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logf("[watch] error: %v", err)
		}
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	start := time.Now()
	if err := w.Ingest(ctx, path); err != nil {
		w.logf("[watch] %s: %v", filepath.Base(path), err)
		return
	}
	w.logf("[watch] ingested %s in %s", filepath.Base(path), time.Since(start).Round(time.Millisecond))
}

func (w *Watcher) startHeartbeat() func() {
	if w.HeartbeatInterval <= 0 || w.Beat == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		w.Beat()
		ticker := time.NewTicker(w.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Beat()
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

package server

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/caffeineduck/runit/cache"
)

// Watcher evicts cached function tables when project files change, so the
// next request rediscovers them without waiting for the TTL.
type Watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching dir until ctx is done or Close is called.
func Watch(ctx context.Context, dir string, c *cache.Cache, log hclog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(abs); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", abs, err)
	}

	w := &Watcher{fs: fw, done: make(chan struct{})}
	go w.loop(ctx, c, log)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context, c *cache.Cache, log hclog.Logger) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			c.Remove(event.Name)
			log.Debug("file changed, cache entry evicted", "file", filepath.Base(event.Name), "op", event.Op.String())
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn("watch error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}

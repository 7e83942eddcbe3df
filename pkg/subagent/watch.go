package subagent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch reloads the registry when definition files change, debounced so a
// burst of editor writes causes one reload. Blocks until ctx is cancelled.
// Running subagent instances keep the definition they started with.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watching := 0
	for _, dir := range r.loader.Dirs() {
		if err := watcher.Add(dir); err == nil {
			watching++
		}
	}
	if watching == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	var (
		mu      sync.Mutex
		timer   *time.Timer
		pending bool
	)
	fire := func() {
		mu.Lock()
		pending = false
		mu.Unlock()
		r.Reload()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			mu.Lock()
			if pending {
				timer.Reset(watchDebounce)
			} else {
				pending = true
				timer = time.AfterFunc(watchDebounce, fire)
			}
			mu.Unlock()

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// watcher errors are transient, keep going
		}
	}
}

package persona

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads system personas whenever a profile file in dir changes.
// Events are debounced because editors fire several writes per save.
// Blocks until ctx is cancelled.
func Watch(ctx context.Context, dir string, store Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[persona] watcher error: %v", err)
		case <-reload:
			items, err := LoadDir(dir)
			if err != nil {
				log.Printf("[persona] reload failed: %v", err)
				continue
			}
			loaded, removed := store.ReplaceSystem(items)
			log.Printf("[persona] reloaded from %s: loaded=%d removed=%d", dir, loaded, removed)
		}
	}
}

package cache

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/labstack/gommon/log"
)

// WatchFile calls onChange every time path is written or replaced. It runs
// until ctx is cancelled. onChange runs on its own goroutine; changes that
// arrive while it is busy collapse into one further call.
func WatchFile(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log.Infof("cache: watching %s for changes", path)

	pending := make(chan struct{}, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-pending:
				onChange()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts too.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Infof("cache: %s changed", path)
			select {
			case pending <- struct{}{}:
			default:
			}

			// Re-add the file in case an atomic save replaced the inode.
			if err := watcher.Add(path); err != nil {
				log.Warnf("cache: re-watch %s failed: %v", path, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("cache: watcher error: %v", err)
		}
	}
}

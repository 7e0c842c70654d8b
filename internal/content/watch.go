package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the provider whenever a file under its directory changes.
// Bursts of events are coalesced. It returns when ctx is done.
func (p *FileProvider) Watch(ctx context.Context) error {
	if p.dir == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create content watcher: %w", err)
	}
	defer w.Close()

	for _, dir := range []string{p.dir, filepath.Join(p.dir, "tasks"), filepath.Join(p.dir, "prompts")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	p.log.Info("Watching content directory", "dir", p.dir)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignoredContentFile(ev.Name) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(p.debounce)
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.log.Warn("Content watcher error", "error", err)

		case <-fire:
			fire = nil
			if err := p.Reload(); err != nil {
				p.log.Error("Failed to reload content", "error", err)
				continue
			}
			p.log.Info("Content reloaded", "units", len(p.Units()))
		}
	}
}

// ignoredContentFile skips editor swap and backup files.
func ignoredContentFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasPrefix(base, "#") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp")
}

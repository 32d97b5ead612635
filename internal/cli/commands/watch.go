package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses the burst of events an editor save produces.
const watchDebounce = 200 * time.Millisecond

// watchEval evaluates once, then again after every change to a project file,
// until ctx is canceled. Evaluation errors are reported and watching goes on.
func watchEval(ctx context.Context, cc *CommandContext, opts *EvalOptions) error {
	files := cc.Paths().Files()
	if cc.Cfg.DataCube.Path != "" && cc.Cfg.DataCube.Path != ":memory:" {
		files = append(files, cc.Cfg.DataCube.Path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch directories, not files, so files replaced on save stay watched.
	var dirs []string
	for _, f := range files {
		dir := filepath.Dir(f)
		if slices.Contains(dirs, dir) {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs = append(dirs, dir)
	}

	run := func() {
		if _, err := evalOnce(ctx, cc, opts); err != nil && !errors.Is(err, ErrResultsFailed) {
			cc.Renderer.Error(err.Error())
		}
		cc.Renderer.Muted("Watching for changes (Ctrl+C to stop)")
	}

	run()
	return watchLoop(ctx, watcher, files, watchDebounce, func(changed string) {
		cc.Logger.Info("change detected", "file", changed)
		run()
	})
}

// watchLoop calls onChange with the last changed file once the watched files
// have been quiet for debounce. It returns when ctx is canceled or the
// watcher is closed.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, files []string, debounce time.Duration, onChange func(changed string)) error {
	watched := make(map[string]bool, len(files))
	for _, f := range files {
		watched[filepath.Clean(f)] = true
	}

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		changed string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			changed = event.Name
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			onChange(changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watcher failed: %w", err)
		}
	}
}

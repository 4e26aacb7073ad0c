package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces bursts of writes from editors.
const reloadDebounce = 100 * time.Millisecond

// watchFiles re-reads the model files when one of them changes.
func (s *Server) watchFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	watched := make(map[string]bool, len(s.watch))
	dirs := make(map[string]bool)
	for _, p := range s.watch {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	// Directories rather than files, so that editors replacing the file
	// on save keep triggering events.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	// pending counts scheduled and running reloads so that none outlives
	// the watcher.
	var (
		pending sync.WaitGroup
		timer   *time.Timer
	)
	stop := func() {
		if timer != nil && timer.Stop() {
			pending.Done()
		}
	}
	defer func() {
		stop()
		pending.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !watched[name] {
				continue
			}

			stop()
			pending.Add(1)
			timer = time.AfterFunc(reloadDebounce, func() {
				defer pending.Done()
				s.logger.Debug("file changed, re-reading model", "file", name)
				if err := s.Reload(ctx); err != nil {
					s.logger.Error("reload failed", "error", err)
					return
				}
				s.notifier.Broadcast(name)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// Reload resets the session and reads every watched file in order.
func (s *Server) Reload(ctx context.Context) error {
	out, err := s.run(func() error {
		if err := s.sess.Reset(ctx); err != nil {
			return err
		}
		for _, p := range s.watch {
			if err := s.sess.Read(ctx, p); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		}
		return nil
	})
	for _, line := range out {
		s.logger.Info("interpreter output", "kind", string(line.Kind), "message", line.Message)
	}
	return err
}

package hitl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitForResponse blocks until response.json appears and parses, the context
// is canceled, or never: an absent operator keeps the supervisor suspended
// indefinitely. Uses fsnotify for prompt wakeups with a polling fallback for
// filesystems that drop events.
func (s *State) WaitForResponse(ctx context.Context, pollInterval time.Duration) (*OperatorResponse, error) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	// response may already be there
	if resp, ok, err := s.Response(); err == nil && ok {
		return resp, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.dir); err != nil {
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev := <-watcher.Events:
			if ev.Name != s.responsePath() {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
		case err := <-watcher.Errors:
			slog.Warn("hitl: watcher error, relying on polling", "error", err)
		case <-ticker.C:
		}

		resp, ok, err := s.Response()
		if err != nil {
			// partially written file; retry on the next event or tick
			slog.Debug("hitl: response not yet readable", "error", err)
			continue
		}
		if ok {
			return resp, nil
		}
	}
}

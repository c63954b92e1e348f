package server

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/osaibot/osaibot/internal/config"
	"github.com/osaibot/osaibot/internal/logger"
)

// WatchCollaborators logs when the shell binary or the launcher script
// change on disk. Running sessions keep their sealed memfd copy; only new
// sessions pick up the replacement, which is worth a line in the log.
func WatchCollaborators(cfg *config.Config) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	targets := map[string]bool{
		cfg.ShellPath:    true,
		cfg.LauncherPath: true,
	}
	dirs := map[string]bool{}
	for t := range targets {
		dirs[filepath.Dir(t)] = true
	}
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if targets[ev.Name] && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					logger.Warnf("collaborator %s changed (%s); new sessions will use the new file", ev.Name, ev.Op)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("collaborator watcher: %v", err)
			}
		}
	}()

	return watcher, nil
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// LocalOverride is the optional runner.local.yaml document: per-machine
// parameter overrides layered between the XML config and SF_
// environment variables.
type LocalOverride struct {
	Parameters map[string]string `yaml:"parameters"`
}

// ApplyLocalOverride loads path (if it exists) and sets each of its
// parameters on cfg. A missing file is not an error: the override layer
// is entirely optional.
func ApplyLocalOverride(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var override LocalOverride
	if err := yaml.Unmarshal(data, &override); err != nil {
		return err
	}
	for name, value := range override.Parameters {
		cfg.SetParameter(name, value)
	}
	return nil
}

// WatchLocalOverride re-applies path's overrides to cfg every time it
// changes on disk, logging failures rather than propagating them: a
// malformed local override must never bring down an already-running
// agent. Returns the watcher so the caller can close it on shutdown; nil
// if fsnotify could not be initialized.
func WatchLocalOverride(cfg *Config, path string, mu *sync.Mutex, log *slog.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		// The file may not exist yet; watch its parent directory instead
		// so the watcher picks it up once created.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			_ = watcher.Close()
			return nil, err
		}
	}

	go func() {
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if mu != nil {
				mu.Lock()
			}
			if err := ApplyLocalOverride(cfg, path); err != nil && log != nil {
				log.Warn("config: failed to reload local override", "path", path, "error", err)
			}
			if mu != nil {
				mu.Unlock()
			}
		}
	}()

	return watcher, nil
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/mockgate/mockgate/internal/storage"
	"github.com/mockgate/mockgate/pkg/service"
)

// SeedFile is the YAML shape of a service seed file.
type SeedFile struct {
	Services []*service.Create `yaml:"services"`
}

// LoadSeedFile parses a YAML seed file into service definitions.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %q: %w", path, err)
	}
	return &seed, nil
}

// SeedStore loads the seed file into the store, replacing the current
// service set.
func SeedStore(store storage.Store, path string) error {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	if err := store.Replace(seed.Services); err != nil {
		return fmt.Errorf("seed file %q: %w", path, err)
	}
	return nil
}

// WatchSeedFile re-seeds the store whenever the file changes. An
// invalid rewrite logs an error and keeps the previous service set.
// The returned stop function ends the watch.
func WatchSeedFile(store storage.Store, path string, log *slog.Logger) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch held on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		target := filepath.Clean(path)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := SeedStore(store, path); err != nil {
					log.Error("seed file reload failed, keeping previous services",
						"file", path, "error", err)
					continue
				}
				log.Info("services reloaded from seed file", "file", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("seed file watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}

// Package catalogfile loads setting catalogs from YAML files and reloads
// them when the file changes. The catalog remains deploy-time data: a
// reload swaps in a whole new catalog, it never mutates a live one.
package catalogfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	settings "github.com/workforcekit/go-settings"
	"gopkg.in/yaml.v3"
)

type fileCatalog struct {
	Definitions []fileDefinition `yaml:"definitions"`
}

type fileDefinition struct {
	Module        string        `yaml:"module"`
	Key           string        `yaml:"key"`
	Type          string        `yaml:"type"`
	Default       any           `yaml:"default"`
	Lockable      bool          `yaml:"lockable"`
	AllowedLevels []string      `yaml:"allowed_levels"`
	Constraint    string        `yaml:"constraint"`
	Features      []fileFeature `yaml:"features"`
}

type fileFeature struct {
	Name     string   `yaml:"name"`
	Surfaces []string `yaml:"surfaces"`
}

// Load reads a YAML catalog file and builds a validated catalog.
func Load(path string) (*settings.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogfile: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a validated catalog from YAML bytes.
func Parse(data []byte) (*settings.Catalog, error) {
	var file fileCatalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalogfile: parse: %w", err)
	}
	defs := make([]settings.Definition, 0, len(file.Definitions))
	for _, fd := range file.Definitions {
		def := settings.Definition{
			Module:     fd.Module,
			Key:        fd.Key,
			Type:       settings.ValueType(fd.Type),
			Default:    fd.Default,
			Lockable:   fd.Lockable,
			Constraint: fd.Constraint,
		}
		for _, name := range fd.AllowedLevels {
			level := settings.ParseLevel(name)
			if level == settings.LevelUnknown {
				return nil, fmt.Errorf("catalogfile: %s/%s names unknown level %q", fd.Module, fd.Key, name)
			}
			def.AllowedLevels = append(def.AllowedLevels, level)
		}
		for _, feature := range fd.Features {
			surfaces := make([]settings.Surface, 0, len(feature.Surfaces))
			for _, surface := range feature.Surfaces {
				surfaces = append(surfaces, settings.Surface(surface))
			}
			def.Features = append(def.Features, settings.Feature{Name: feature.Name, Surfaces: surfaces})
		}
		defs = append(defs, def)
	}
	return settings.NewCatalog(defs...)
}

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
	onError  func(error)
}

// WithDebounce sets how long to wait after the last file event before
// reloading. Defaults to 300ms, enough to ride out editors that write in
// several steps.
func WithDebounce(debounce time.Duration) WatchOption {
	return func(cfg *watchConfig) {
		if debounce > 0 {
			cfg.debounce = debounce
		}
	}
}

// WithErrorHandler receives reload and watch errors. A failed reload keeps
// the previous catalog; without a handler errors are dropped.
func WithErrorHandler(onError func(error)) WatchOption {
	return func(cfg *watchConfig) {
		cfg.onError = onError
	}
}

// Watch loads the catalog at path, hands it to onReload, and keeps
// reloading on file changes until ctx is done. The watch is registered on
// the parent directory so atomic rename-based writes are observed.
func Watch(ctx context.Context, path string, onReload func(*settings.Catalog), opts ...WatchOption) error {
	cfg := watchConfig{debounce: 300 * time.Millisecond}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	reportError := func(err error) {
		if cfg.onError != nil {
			cfg.onError(err)
		}
	}

	catalog, err := Load(path)
	if err != nil {
		return err
	}
	onReload(catalog)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalogfile: watch init: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("catalogfile: watch %s: %w", path, err)
	}

	reload := func() {
		catalog, err := Load(path)
		if err != nil {
			reportError(err)
			return
		}
		onReload(catalog)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(cfg.debounce, reload)
		case err := <-watcher.Errors:
			reportError(fmt.Errorf("catalogfile: watch: %w", err))
		}
	}
}

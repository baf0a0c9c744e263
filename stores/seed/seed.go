// Package seed loads product templates from a YAML or TOML file into the
// template store and reloads them when the file changes.
package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"printdesign-server/core"
)

const DefaultDebounce = 250 * time.Millisecond

type file struct {
	Templates []*core.Template `yaml:"templates" toml:"templates"`
}

// Load reads a seed file. The format follows the extension: .yaml, .yml or
// .toml.
func Load(path string) ([]*core.Template, error) {
	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported seed file %s: want .yaml, .yml or .toml", path)
	}

	seen := make(map[string]bool, len(f.Templates))
	for i, t := range f.Templates {
		if t == nil || t.ID == "" {
			return nil, fmt.Errorf("template %d in %s has no id", i, path)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("template %q declared twice in %s", t.ID, path)
		}
		seen[t.ID] = true
		for _, v := range t.Views {
			if v.ID == "" {
				return nil, fmt.Errorf("template %q has a view without id", t.ID)
			}
		}
	}
	return f.Templates, nil
}

// Apply saves every template and returns their ids.
func Apply(ctx context.Context, store core.TemplateStore, templates []*core.Template) ([]string, error) {
	ids := make([]string, 0, len(templates))
	for _, t := range templates {
		if err := store.SaveTemplate(ctx, t); err != nil {
			return ids, fmt.Errorf("save template %s: %w", t.ID, err)
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// LoadAndApply is Load followed by Apply.
func LoadAndApply(ctx context.Context, store core.TemplateStore, path string) ([]string, error) {
	templates, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Apply(ctx, store, templates)
}

// Watcher reapplies a seed file after it changes.
type Watcher struct {
	path     string
	store    core.TemplateStore
	debounce time.Duration
	onReload func(ids []string)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// Watch starts watching path. The parent directory is watched so editors
// that replace the file by rename are noticed too. onReload runs after every
// successful reload.
func Watch(ctx context.Context, path string, store core.TemplateStore, debounce time.Duration, onReload func(ids []string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if onReload == nil {
		onReload = func([]string) {}
	}

	w := &Watcher{
		path:     abs,
		store:    store,
		debounce: debounce,
		onReload: onReload,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	log := logrus.WithField("path", w.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Stop()
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			ids, err := LoadAndApply(ctx, w.store, w.path)
			if err != nil {
				log.WithError(err).Error("Failed to reload templates, keeping the previous ones")
				continue
			}
			log.WithField("templates", len(ids)).Info("Templates reloaded")
			w.onReload(ids)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("Template file watcher error")
		}
	}
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

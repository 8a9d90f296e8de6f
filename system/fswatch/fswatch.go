// Package fswatch watches the profile directories, script directories
// and the daemon config file, and classifies change events for the
// scheduler.
package fswatch

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ChangeKind classifies a filesystem change.
type ChangeKind int

const (
	// ProfilesChanged fires for *.profile and *.profile.state files.
	ProfilesChanged ChangeKind = iota
	// ScriptsChanged fires for *.js and *.manifest files.
	ScriptsChanged
	// ConfigChanged fires for the daemon's own config file; logged
	// only, a restart is required to apply it.
	ConfigChanged
)

func (k ChangeKind) String() string {
	return [...]string{"profiles", "scripts", "config"}[k]
}

// Event is one classified change.
type Event struct {
	Kind ChangeKind
	Path string
}

// Watcher is a suture service wrapping fsnotify.
type Watcher struct {
	profileDirs []string
	scriptDirs  []string
	configFile  string

	events chan Event
}

func New(profileDirs, scriptDirs []string, configFile string) *Watcher {
	return &Watcher{
		profileDirs: profileDirs,
		scriptDirs:  scriptDirs,
		configFile:  configFile,
		events:      make(chan Event, 16),
	}
}

func (w *Watcher) String() string {
	return "FilesystemWatcher"
}

// Events returns the classified change channel.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Serve runs until the context ends. Watch errors return so the
// supervisor restarts the watcher with fresh descriptors.
func (w *Watcher) Serve(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "fswatch")
	}
	defer fsw.Close()

	for _, dir := range w.profileDirs {
		if err := fsw.Add(dir); err != nil {
			log.Printf("[fswatch] cannot watch %s: %v\n", dir, err)
		}
	}
	for _, dir := range w.scriptDirs {
		if err := fsw.Add(dir); err != nil {
			log.Printf("[fswatch] cannot watch %s: %v\n", dir, err)
		}
	}
	if w.configFile != "" {
		if err := fsw.Add(filepath.Dir(w.configFile)); err != nil {
			log.Printf("[fswatch] cannot watch %s: %v\n", w.configFile, err)
		}
	}

	log.Println("[fswatch] starting filesystem watcher")
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return errors.New("fswatch: event channel closed")
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			kind, ok := w.classify(ev.Name)
			if !ok {
				continue
			}
			select {
			case w.events <- Event{Kind: kind, Path: ev.Name}:
			default:
				// scheduler drains in bursts; dropping a duplicate
				// change notification is harmless
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("fswatch: error channel closed")
			}
			return errors.Wrap(err, "fswatch")
		case <-ctx.Done():
			log.Println("[fswatch] exiting filesystem watcher")
			return ctx.Err()
		}
	}
}

func (w *Watcher) classify(path string) (ChangeKind, bool) {
	if w.configFile != "" && path == w.configFile {
		return ConfigChanged, true
	}
	switch {
	case strings.HasSuffix(path, ".profile"), strings.HasSuffix(path, ".profile.state"):
		return ProfilesChanged, true
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".manifest"):
		return ScriptsChanged, true
	}
	return 0, false
}

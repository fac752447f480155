package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventSource delivers raw change notifications. Paths may be absolute or
// relative to the watch root.
type EventSource interface {
	Events() <-chan string
	Errors() <-chan error
	Close() error
}

// FSNotifySource is an EventSource backed by fsnotify. fsnotify does not
// watch recursively, so directories are added by walking the tree at start
// and again whenever a directory is created.
type FSNotifySource struct {
	w         *fsnotify.Watcher
	root      string
	recursive bool
	skip      IgnoreRule
	logger    *slog.Logger

	events chan string
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

// NewFSNotifySource opens the notification facility and registers root.
// Directories matched by skip are not descended into.
func NewFSNotifySource(root string, recursive bool, skip IgnoreRule, logger *slog.Logger) (*FSNotifySource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	s := &FSNotifySource{
		w:         w,
		root:      root,
		recursive: recursive,
		skip:      skip,
		logger:    logger,
		events:    make(chan string, 64),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}

	if recursive {
		err = s.addDirsRecursive(root)
	} else {
		err = w.Add(root)
	}
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	go s.loop()
	return s, nil
}

func (s *FSNotifySource) Events() <-chan string { return s.events }
func (s *FSNotifySource) Errors() <-chan error  { return s.errs }

// Close stops delivering events. It is safe to call more than once.
func (s *FSNotifySource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.w.Close()
	})
	return err
}

func (s *FSNotifySource) loop() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.w.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.w.Errors:
			if !ok {
				return
			}
			select {
			case s.errs <- err:
			case <-s.done:
				return
			}
		}
	}
}

func (s *FSNotifySource) handle(ev fsnotify.Event) {
	// Metadata-only changes never alter build inputs.
	if ev.Op == fsnotify.Chmod {
		return
	}
	if s.recursive && ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := s.addDirsRecursive(ev.Name); err != nil {
				s.logger.Warn("watch add failed", "dir", ev.Name, "error", err)
			}
		}
	}
	select {
	case s.events <- ev.Name:
	case <-s.done:
	}
}

func (s *FSNotifySource) addDirsRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != s.root && s.skip != nil {
			if rel, relErr := filepath.Rel(s.root, path); relErr == nil && s.skip(filepath.ToSlash(rel), true) {
				return filepath.SkipDir
			}
		}
		if err := s.w.Add(path); err != nil {
			if path == s.root {
				return err
			}
			s.logger.Warn("watch add failed", "dir", path, "error", err)
		}
		return nil
	})
}

package fswatch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/arlojansen/mediaforge/internal/ingest/ports"
	"github.com/fsnotify/fsnotify"
)

// FsnotifyWatcher adapts *fsnotify.Watcher to ports.OSWatcher, recursively
// registering every subdirectory the way the teacher's
// Watcher.addRecursive does.
type FsnotifyWatcher struct {
	fw *fsnotify.Watcher
}

func NewFsnotifyWatcher() (*FsnotifyWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FsnotifyWatcher{fw: fw}, nil
}

func (w *FsnotifyWatcher) Close() error { return w.fw.Close() }

func (w *FsnotifyWatcher) Watch(ctx context.Context, root string, recursive bool) (<-chan ports.WatchEvent, <-chan error, error) {
	if recursive {
		if err := addRecursive(w.fw, root); err != nil {
			return nil, nil, err
		}
	} else if err := w.fw.Add(root); err != nil {
		return nil, nil, err
	}

	events := make(chan ports.WatchEvent, 256)
	errs := make(chan error, 16)

	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.fw.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						w.fw.Add(ev.Name)
					}
				}
				select {
				case events <- ports.WatchEvent{Kind: toPortsKind(classifyOp(ev.Op)), Paths: []string{ev.Name}}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				select {
				case errs <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, errs, nil
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			fw.Add(path)
		}
		return nil
	})
}

func toPortsKind(k Kind) ports.WatchEventKind {
	switch k {
	case Created:
		return ports.WatchEventCreate
	case Modified:
		return ports.WatchEventWrite
	case Deleted:
		return ports.WatchEventRemove
	case Moved:
		return ports.WatchEventRename
	default:
		return ports.WatchEventOverflow
	}
}

package plugin

import (
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a plugin directory's manifests whenever a
// *.plugin.toml file is created, modified, or removed.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	events  chan []Plugin
}

// Watch starts watching dir for manifest changes, reloading and pushing
// the updated plugin set onto the returned channel. Call Close to stop.
func Watch(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{dir: dir, watcher: fw, events: make(chan []Plugin, 1)}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, manifestSuffix) {
				continue
			}
			plugins, _ := Load(w.dir)
			select {
			case w.events <- plugins:
			default:
				// Drain stale entry so the channel always carries the
				// latest plugin set, never a backlog.
				select {
				case <-w.events:
				default:
				}
				w.events <- plugins
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Events delivers the reloaded plugin set after each relevant filesystem
// change.
func (w *Watcher) Events() <-chan []Plugin {
	return w.events
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long a config file must stay quiet before it is reloaded.
// Editors often write a file in several steps.
const settle = 100 * time.Millisecond

// Reloader watches one config file and delivers each new valid Config.
// Edits that fail to load or validate are reported on Errors and the last
// good config stays in force.
type Reloader struct {
	path    string
	watcher *fsnotify.Watcher
	Updates chan Config
	Errors  chan error
	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once

	current Config
}

// Watch starts reloading path. The directory is watched rather than the
// file so that rename-on-save keeps working.
func Watch(path string) (*Reloader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	current, err := Load(abs)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	r := &Reloader{
		path:    abs,
		watcher: w,
		Updates: make(chan Config, 1),
		Errors:  make(chan error, 1),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		current: current,
	}
	go r.run()
	return r, nil
}

func (r *Reloader) Path() string {
	return r.path
}

func (r *Reloader) Close() error {
	var err error
	r.once.Do(func() {
		close(r.closeCh)
		err = r.watcher.Close()
		<-r.done
		close(r.Updates)
		close(r.Errors)
	})
	return err
}

func (r *Reloader) run() {
	defer close(r.done)
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			timer.Reset(settle)
		case <-timer.C:
			if !r.reload() {
				return
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if !r.report(fmt.Errorf("config: watch %s: %w", r.path, err)) {
				return
			}
		case <-r.closeCh:
			return
		}
	}
}

// reload loads the file and sends it if it differs from the config in
// force. It reports false once the reloader is closing.
func (r *Reloader) reload() bool {
	cfg, err := Load(r.path)
	if err != nil {
		return r.report(err)
	}
	if cfg == r.current {
		return true
	}
	r.current = cfg
	// only the newest config matters to a slow consumer
	select {
	case <-r.Updates:
	default:
	}
	select {
	case r.Updates <- cfg:
		return true
	case <-r.closeCh:
		return false
	}
}

func (r *Reloader) report(err error) bool {
	select {
	case r.Errors <- err:
		return true
	case <-r.closeCh:
		return false
	default:
		return true
	}
}

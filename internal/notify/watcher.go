package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/memvault/internal/engine"
)

// Watcher consumes event files from {dataPath}/events and hands each event
// to a callback. Consumed files are removed.
type Watcher struct {
	dir      string
	callback func(engine.Event)
	log      *bolt.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher for dataPath.
func NewWatcher(dataPath string, log *bolt.Logger, callback func(engine.Event)) *Watcher {
	return &Watcher{
		dir:      filepath.Join(dataPath, "events"),
		callback: callback,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start drains event files already present, then watches for new ones.
// Call Stop to clean up.
func (ew *Watcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	ew.drainExisting()

	go ew.loop()
	ew.log.Info().Str("dir", ew.dir).Msg("notify: watching for events")
	return nil
}

// Stop shuts down the watcher.
func (ew *Watcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *Watcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&fsnotify.Create != 0 && strings.HasSuffix(evt.Name, eventExt) {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.log.Warn().Err(err).Msg("notify: watcher error")
		}
	}
}

func (ew *Watcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), eventExt) {
			ew.processFile(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *Watcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // consumed by another watcher
	}
	_ = os.Remove(path)

	var ev engine.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		ew.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("notify: invalid event file")
		return
	}
	if ev.UserID != "" && ew.callback != nil {
		ew.callback(ev)
	}
}

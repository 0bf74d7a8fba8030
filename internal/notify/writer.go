// Package notify carries engine events between processes that share a data
// directory. The operator CLI writes one file per event; a running server
// watches the directory and forwards each event to its websocket clients.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/scrypster/memvault/internal/engine"
)

const eventExt = ".event"

var seq atomic.Uint64

// Writer writes event files into {dataPath}/events.
type Writer struct {
	dir string
}

// NewWriter creates a Writer for dataPath.
func NewWriter(dataPath string) *Writer {
	return &Writer{dir: filepath.Join(dataPath, "events")}
}

// Notify writes ev as a new event file. The file appears atomically under its
// final name so a watcher never reads a partial event. Safe for concurrent use.
func (w *Writer) Notify(ev engine.Event) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	name := fmt.Sprintf("%d-%d-%d", ev.At.UnixNano(), os.Getpid(), seq.Add(1))
	tmp := filepath.Join(w.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write event: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, name+eventExt)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("notify: publish event: %w", err)
	}
	return nil
}

package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
)

// doneSuffix is appended to inbox files once ingested.
const doneSuffix = ".done"

// Inbox watches a directory for *.json files holding one Entry or an array
// of entries, appends them to a Store and renames each file with a .done
// suffix. Files that fail to parse are left in place so a later write can
// complete them.
type Inbox struct {
	dir     string
	store   Store
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewInbox creates dir if needed and prepares a watcher on it.
func NewInbox(dir string, store Store) (*Inbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox %s: %w", dir, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Inbox{dir: dir, store: store, watcher: w, logger: logging.New("feedback")}, nil
}

// Drain ingests every pending file once and returns how many entries were
// appended.
func (in *Inbox) Drain() (int, error) {
	matches, err := filepath.Glob(filepath.Join(in.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	total := 0
	for _, path := range matches {
		n, err := in.ingest(path)
		if err != nil {
			in.logger.Warn("inbox file skipped", "path", path, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}

// Start drains existing files then blocks handling events until ctx is
// cancelled or the watcher is closed.
func (in *Inbox) Start(ctx context.Context) error {
	if err := in.watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watch %s: %w", in.dir, err)
	}
	if _, err := in.Drain(); err != nil {
		return err
	}
	in.logger.Info("feedback inbox watching", "dir", in.dir)

	for {
		select {
		case event, ok := <-in.watcher.Events:
			if !ok {
				return nil
			}
			in.handleEvent(event)
		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("inbox watcher error", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop releases the watcher.
func (in *Inbox) Stop() error {
	return in.watcher.Close()
}

func (in *Inbox) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if filepath.Ext(event.Name) != ".json" {
		return
	}
	n, err := in.ingest(event.Name)
	if err != nil {
		in.logger.Debug("inbox file not ready", "path", event.Name, "error", err)
		return
	}
	in.logger.Info("feedback ingested", "path", event.Name, "entries", n)
}

func (in *Inbox) ingest(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	entries, err := decodeEntries(data)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if err := in.store.Append(e); err != nil {
			in.logger.Warn("feedback entry rejected", "path", path, "error", err)
			continue
		}
		n++
	}
	if err := os.Rename(path, path+doneSuffix); err != nil {
		return n, fmt.Errorf("mark %s done: %w", path, err)
	}
	return n, nil
}

func decodeEntries(data []byte) ([]Entry, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []Entry
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode entries: %w", err)
		}
		return list, nil
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return []Entry{e}, nil
}

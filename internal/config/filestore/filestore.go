package filestore

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/avolkov/hostrun/internal/config/configstore"
	"github.com/avolkov/hostrun/internal/lg"
)

var _ configstore.ConfigStore = (*FileStore)(nil)

// FileStore persists configuration as YAML on disk.
type FileStore struct {
	Path string
	log  lg.Logger
}

func New(path string, log lg.Logger) *FileStore {
	if log == nil {
		log = lg.Discard
	}
	return &FileStore{Path: path, log: log}
}

func (f *FileStore) Load(out any) error {
	if out == nil {
		return fmt.Errorf("Load: output parameter must not be nil")
	}

	bytes, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("Load: failed to read file %s: %w", f.Path, err)
	}
	if len(bytes) == 0 {
		return fmt.Errorf("Load: config file %s is empty", f.Path)
	}
	if err := yaml.Unmarshal(bytes, out); err != nil {
		return fmt.Errorf("Load: failed to parse YAML in %s: %w", f.Path, err)
	}
	return nil
}

func (f *FileStore) Save(in any) error {
	if in == nil {
		return fmt.Errorf("Save: input parameter must not be nil")
	}

	bytes, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("Save: failed to marshal YAML: %w", err)
	}

	// Write to temp file first, then atomic rename
	tmpPath := f.Path + ".tmp"
	if err := os.WriteFile(tmpPath, bytes, 0600); err != nil {
		return fmt.Errorf("Save: failed to write temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, f.Path); err != nil {
		return fmt.Errorf("Save: failed to replace %s with %s: %w", f.Path, tmpPath, err)
	}
	return nil
}

// Watch invokes onChange whenever the file is rewritten. Atomic saves
// replace the inode, which drops an inode-based watch; Rename/Remove
// events therefore re-add the path before reporting the change.
func (f *FileStore) Watch(onChange func()) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback cannot be nil")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(f.Path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch file %s: %w", f.Path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange()
				}
				if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
					if !f.rewatch(watcher) {
						f.log.Warn("config file vanished, watch stopped",
							lg.String("path", f.Path))
						return
					}
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.log.Warn("config watcher error",
					lg.String("path", f.Path), lg.Err(err))
			}
		}
	}()

	return nil
}

// rewatch re-adds the path after the watched inode went away. The
// replacement file appears in the same rename that triggered the event,
// but a brief retry covers editors that remove before recreating.
func (f *FileStore) rewatch(watcher *fsnotify.Watcher) bool {
	for i := 0; i < 20; i++ {
		if err := watcher.Add(f.Path); err == nil {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

package importer

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of write events editors produce while
// saving a single note.
const debounceWindow = 500 * time.Millisecond

// VaultWatcher watches a Markdown directory tree and invokes a callback for
// each changed note, debounced per file. New subdirectories are added to
// the watch as they appear; hidden directories are ignored.
type VaultWatcher struct {
	root     string
	onChange func(path string)
	watcher  *fsnotify.Watcher
	done     chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewVaultWatcher creates a watcher over root. onChange receives the
// absolute path of each created or modified Markdown file.
func NewVaultWatcher(root string, onChange func(path string)) *VaultWatcher {
	return &VaultWatcher{
		root:     root,
		onChange: onChange,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}
}

// Start begins watching. Call Stop to clean up.
func (vw *VaultWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	vw.watcher = w

	err = filepath.WalkDir(vw.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != vw.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
	if err != nil {
		_ = w.Close()
		return err
	}

	go vw.loop()
	log.Printf("importer: watching %s for note changes", vw.root)
	return nil
}

// Stop shuts down the watcher and cancels pending debounce timers.
func (vw *VaultWatcher) Stop() {
	if vw.watcher != nil {
		_ = vw.watcher.Close()
	}
	<-vw.done

	vw.mu.Lock()
	defer vw.mu.Unlock()
	for path, timer := range vw.pending {
		timer.Stop()
		delete(vw.pending, path)
	}
}

func (vw *VaultWatcher) loop() {
	defer close(vw.done)
	for {
		select {
		case evt, ok := <-vw.watcher.Events:
			if !ok {
				return
			}
			vw.handle(evt)
		case err, ok := <-vw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("importer: watcher error: %v", err)
		}
	}
}

func (vw *VaultWatcher) handle(evt fsnotify.Event) {
	if evt.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	// New directories join the watch so notes created inside them are seen.
	if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
		if !strings.HasPrefix(filepath.Base(evt.Name), ".") {
			_ = vw.watcher.Add(evt.Name)
		}
		return
	}

	ext := strings.ToLower(filepath.Ext(evt.Name))
	if ext != ".md" && ext != ".markdown" {
		return
	}
	vw.debounce(evt.Name)
}

// debounce schedules the callback once per file per quiet period.
func (vw *VaultWatcher) debounce(path string) {
	vw.mu.Lock()
	defer vw.mu.Unlock()

	if timer, ok := vw.pending[path]; ok {
		timer.Reset(debounceWindow)
		return
	}
	vw.pending[path] = time.AfterFunc(debounceWindow, func() {
		vw.mu.Lock()
		delete(vw.pending, path)
		vw.mu.Unlock()
		vw.onChange(path)
	})
}

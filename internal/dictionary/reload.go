package dictionary

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch begins watching the ignore-words file for edits, reloading the
// in-memory ignore set whenever it changes, until stop is closed. It is
// a no-op if no ignore file path was configured.
func (d *Dictionary) Watch(stop <-chan struct{}) error {
	if d.ignoreFilePath == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(d.ignoreFilePath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(d.ignoreFilePath) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					d.reloadIgnoreWords()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.log.Warn("ignore-words watcher error", "error", err)
			case <-stop:
				return
			}
		}
	}()
	return nil
}

func (d *Dictionary) reloadIgnoreWords() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ignoredWords = make(map[string]struct{})
	d.loadIgnoreWords()
	d.log.Info("reloaded ignore words", "count", len(d.ignoredWords))
}

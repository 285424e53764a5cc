package file

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"toolhost/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads definitions edited on disk by other tools until Close is
// called. Writes made through the Registry also trigger a reload, which is
// harmless: the document on disk already matches the cache.
func (r *Registry) Watch() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := r.storage.EntityDir(entityServers)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	r.watcher = watcher
	r.stopCh = make(chan struct{})
	r.wg.Add(1)
	go r.processEvents(watcher, r.stopCh)

	logging.Info("FileRegistry", "Watching %s for definition changes", dir)
	return nil
}

func (r *Registry) processEvents(watcher *fsnotify.Watcher, stopCh <-chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			r.handleFsEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("FileRegistry", err, "Filesystem watcher error")
		}
	}
}

func (r *Registry) handleFsEvent(event fsnotify.Event) {
	ext := filepath.Ext(event.Name)
	if ext != ".yaml" && ext != ".yml" {
		return
	}
	name := strings.TrimSuffix(filepath.Base(event.Name), ext)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		def, err := r.readServer(name)
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		if err != nil {
			logging.Warn("FileRegistry", "Ignoring change to %s: %v", name, err)
			return
		}
		if prev, ok := r.files[name]; ok && prev != def.ID {
			r.cache.Remove(prev)
		}
		r.cache.Put(def)
		r.files[name] = def.ID
		logging.Debug("FileRegistry", "Reloaded server %s", def.ID)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if _, err := os.Stat(event.Name); err == nil {
			return
		}
		id, ok := r.files[name]
		if !ok {
			return
		}
		delete(r.files, name)
		r.cache.Remove(id)
		logging.Info("FileRegistry", "Server %s removed on disk", id)
	}
}

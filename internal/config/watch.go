package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/mhismail3/tron-sub003/internal/logging"
)

// Watcher hot-reloads a project's config layer whenever its files change
// on disk, so a long-running process picks up a new compaction threshold
// or log level without a restart. It never watches the global layer —
// only the project-local directory named at construction time.
type Watcher struct {
	directory string
	fsw       *fsnotify.Watcher
	onChange  func(Config)
	done      chan struct{}
}

// Watch starts watching directory/.sessioncore for changes, invoking
// onChange with the freshly reloaded Config after every write. The
// returned Watcher must be closed by the caller.
func Watch(directory string, onChange func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	localDir := directory + "/.sessioncore"
	// Watching a directory that doesn't exist yet is not an error for
	// fsnotify callers in this codebase's style — best-effort only.
	_ = fsw.Add(localDir)

	w := &Watcher{directory: directory, fsw: fsw, onChange: onChange, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	log := logging.Component("config")
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.directory)
			if err != nil {
				log.Warn().Err(err).Msg("config reload failed")
				continue
			}
			log.Info().Str("path", event.Name).Msg("config reloaded")
			w.onChange(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

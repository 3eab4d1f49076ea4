package orchestrator

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mesactl/internal/module"
)

// Activity is a file star wrote during a run.
type Activity struct {
	Kind module.EventType
	Path string
}

// ActivityMonitor watches the LOGS and photos directories while star runs
// and reports new profiles and photos. It also logs a periodic heartbeat.
type ActivityMonitor struct {
	logsDir       string
	photosDir     string
	profilePrefix string
	interval      time.Duration
	logger        *slog.Logger
	onActivity    func(Activity)

	mu       sync.Mutex
	runLabel string
	runStart time.Time
	last     string
	seen     map[string]bool

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewActivityMonitor creates a monitor. onActivity may be nil.
func NewActivityMonitor(logsDir, photosDir, profilePrefix string, interval time.Duration, logger *slog.Logger, onActivity func(Activity)) *ActivityMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityMonitor{
		logsDir:       filepath.Clean(logsDir),
		photosDir:     filepath.Clean(photosDir),
		profilePrefix: profilePrefix,
		interval:      interval,
		logger:        logger,
		onActivity:    onActivity,
	}
}

// Start begins watching. Directories that cannot be watched are skipped
// with a warning; the run goes ahead regardless.
func (a *ActivityMonitor) Start(label string) error {
	a.mu.Lock()
	if a.stopChan != nil {
		a.mu.Unlock()
		return nil // Already running
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("creating watcher: %w", err)
	}
	for _, dir := range []string{a.logsDir, a.photosDir} {
		if err := watcher.Add(dir); err != nil {
			a.logger.Warn("not watching directory", "dir", dir, "error", err)
		}
	}

	a.watcher = watcher
	a.runLabel = label
	a.runStart = time.Now()
	a.last = ""
	a.seen = make(map[string]bool)
	a.stopChan = make(chan struct{})
	a.doneChan = make(chan struct{})
	stop, done := a.stopChan, a.doneChan
	a.mu.Unlock()

	go a.loop(watcher, stop, done)
	return nil
}

func (a *ActivityMonitor) loop(watcher *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if a.interval > 0 {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				a.handle(ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			a.logger.Warn("watch error", "error", err)
		case <-tick:
			a.writeHeartbeat()
		case <-stop:
			return
		}
	}
}

// Stop halts the monitor and waits for it to finish.
func (a *ActivityMonitor) Stop() {
	a.mu.Lock()
	stop, done, watcher := a.stopChan, a.doneChan, a.watcher
	a.stopChan, a.doneChan, a.watcher = nil, nil, nil
	a.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	watcher.Close()
}

// Seen returns the files reported since Start.
func (a *ActivityMonitor) Seen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

func (a *ActivityMonitor) handle(path string) {
	kind, ok := a.classify(path)
	if !ok {
		return
	}

	a.mu.Lock()
	if a.seen[path] {
		a.mu.Unlock()
		return
	}
	a.seen[path] = true
	a.last = filepath.Base(path)
	a.mu.Unlock()

	a.logger.Info("run output", "kind", kind, "file", path)
	if a.onActivity != nil {
		a.onActivity(Activity{Kind: kind, Path: path})
	}
}

func (a *ActivityMonitor) classify(path string) (module.EventType, bool) {
	dir, base := filepath.Dir(path), filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	switch dir {
	case a.logsDir:
		if strings.HasPrefix(base, a.profilePrefix) && strings.HasSuffix(base, ".data") {
			return module.EventProfileWritten, true
		}
	case a.photosDir:
		return module.EventPhotoWritten, true
	}
	return "", false
}

// writeHeartbeat logs how long the current run has been going.
func (a *ActivityMonitor) writeHeartbeat() {
	a.mu.Lock()
	label, start, last, n := a.runLabel, a.runStart, a.last, len(a.seen)
	a.mu.Unlock()

	a.logger.Info("run in progress",
		"inlist", label,
		"elapsed", formatElapsed(time.Since(start).Round(time.Second)),
		"files", n,
		"last", last)
}

// formatElapsed formats a duration as Xh Ym Zs, Xm Ys or Xs.
func formatElapsed(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

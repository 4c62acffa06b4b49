package account

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/vuraweg/prepgate/pkg/observability"
)

// allowlistFile is the on-disk format:
//
//	admins:
//	  - ops@prepgate.in
//	  - founder@prepgate.in
type allowlistFile struct {
	Admins []string `yaml:"admins"`
}

// AdminList is the file-backed admin allow-list, hot-reloaded on write
// so membership changes don't need a redeploy.
type AdminList struct {
	path    string
	logger  *observability.Logger
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	emails map[string]struct{}

	done chan struct{}
}

// NewAdminList loads the file and starts watching it. The watcher is on
// the directory, not the file, so editors that replace-and-rename still
// trigger a reload.
func NewAdminList(path string, logger *observability.Logger) (*AdminList, error) {
	l := &AdminList{
		path:   path,
		logger: logger.WithComponent("allowlist"),
		emails: make(map[string]struct{}),
		done:   make(chan struct{}),
	}
	if err := l.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create allow-list watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch allow-list directory: %w", err)
	}
	l.watcher = watcher

	go l.watch()
	return l, nil
}

// NewStaticAdminList builds an AdminList from a fixed set of emails,
// with no file or watcher behind it.
func NewStaticAdminList(emails []string, logger *observability.Logger) *AdminList {
	l := &AdminList{
		logger: logger.WithComponent("allowlist"),
		emails: make(map[string]struct{}, len(emails)),
		done:   make(chan struct{}),
	}
	for _, e := range emails {
		l.emails[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return l
}

// IsAdmin reports membership, case-insensitively.
func (l *AdminList) IsAdmin(email string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Len returns the current membership count.
func (l *AdminList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.emails)
}

// Close stops the watcher. Idempotent.
func (l *AdminList) Close() error {
	select {
	case <-l.done:
		return nil
	default:
		close(l.done)
	}
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func (l *AdminList) reload() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read allow-list: %w", err)
	}

	var file allowlistFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse allow-list: %w", err)
	}

	emails := make(map[string]struct{}, len(file.Admins))
	for _, e := range file.Admins {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			emails[e] = struct{}{}
		}
	}

	l.mu.Lock()
	l.emails = emails
	l.mu.Unlock()

	l.logger.WithField("admins", len(emails)).Info("Admin allow-list loaded")
	return nil
}

func (l *AdminList) watch() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			// A bad edit keeps the last good membership.
			if err := l.reload(); err != nil {
				l.logger.WithError(err).Warn("Failed to reload admin allow-list, keeping previous")
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.WithError(err).Warn("Allow-list watcher error")
		}
	}
}

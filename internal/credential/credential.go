// Package credential supplies the bearer token sent with remote requests.
package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Source yields the current token, or "" when no credential is held.
type Source interface {
	Token() string
}

type Static string

func (s Static) Token() string { return string(s) }

// FileSource reads the token from a file and reloads it whenever the file
// changes, so a login in another process takes effect without a restart.
// A missing file is treated as "no credential".
type FileSource struct {
	path    string
	logger  *log.Logger
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	token string

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewFileSource loads path and starts watching its directory. Watching the
// directory rather than the file survives editors that replace on save.
func NewFileSource(path string, logger *log.Logger) (*FileSource, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[Credential] ", log.LstdFlags)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve token file: %w", err)
	}

	s := &FileSource{path: abs, logger: logger, done: make(chan struct{})}
	if err := s.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	s.watcher = watcher

	s.wg.Add(1)
	go s.loop()
	return s, nil
}

func (s *FileSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *FileSource) Path() string { return s.path }

// Close stops watching. It is safe to call more than once.
func (s *FileSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
		s.wg.Wait()
	})
	return err
}

func (s *FileSource) reload() error {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = nil
	case err != nil:
		return fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	s.mu.Lock()
	changed := token != s.token
	s.token = token
	s.mu.Unlock()

	if changed {
		if token == "" {
			s.logger.Printf("credential cleared (%s)", s.path)
		} else {
			s.logger.Printf("credential loaded from %s", s.path)
		}
	}
	return nil
}

func (s *FileSource) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				s.logger.Printf("reload failed: %v", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("watch error: %v", err)
		}
	}
}

package config

import (
	"context"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the live configuration and reloads it when the file changes
// on disk. Reloads that fail validation keep the previous configuration.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
	onReload func(*Config)
}

func NewManager() (*Manager, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(path)
}

func NewManagerAt(path string) (*Manager, error) {
	config, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		log.Printf("config: validation warning: %v", err)
	}

	return &Manager{config: config, path: path}, nil
}

func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modification
	configCopy := *m.config
	return &configCopy
}

// OnReload registers a callback invoked with each successfully reloaded
// configuration. Must be called before StartWatching.
func (m *Manager) OnReload(fn func(*Config)) {
	m.onReload = fn
}

func (m *Manager) StartWatching(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}

	m.wg.Add(1)
	go m.watchLoop(ctx)

	log.Printf("config: watching %s for changes", m.path)
	return nil
}

func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()
	configFileName := filepath.Base(m.path)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != configFileName {
				continue
			}

			// editors rewrite via Write or Create; ignore Chmod and Remove
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				log.Printf("config: file change detected, reloading")
				m.reloadConfig()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)

		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) reloadConfig() {
	newConfig, err := LoadFrom(m.path)
	if err != nil {
		log.Printf("config: reload failed, keeping previous configuration: %v", err)
		return
	}

	if err := newConfig.Validate(); err != nil {
		log.Printf("config: invalid config after reload, keeping previous configuration: %v", err)
		return
	}

	m.mu.Lock()
	m.config = newConfig
	m.mu.Unlock()

	log.Printf("config: configuration reloaded")

	if m.onReload != nil {
		m.onReload(newConfig)
	}
}

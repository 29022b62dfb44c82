package config

import (
	"sync"

	logx "remindbot/pkg/logx"
)

// ConfigManager holds the committed config and fans reloads out to
// subscribers.
type ConfigManager struct {
	path string
	log  logx.Logger

	mu  sync.RWMutex
	cfg *Config

	// subsMu also serializes publish with Unsubscribe so a closed channel
	// is never written to.
	subsMu sync.Mutex
	subs   map[chan *Config]struct{}
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, subs: map[chan *Config]struct{}{}}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// Parse reads and validates the file without committing it.
func (m *ConfigManager) Parse() (*Config, error) { return load(m.path) }

// Load parses the file and commits it as the current config.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// commit stores cfg and reports whether it differs from the previous one.
func (m *ConfigManager) commit(cfg *Config) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := m.cfg == nil || *m.cfg != *cfg
	m.cfg = cfg
	return changed
}

func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

// publish hands cfg to every subscriber. A full subscriber loses its oldest
// pending config; only the latest one matters.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

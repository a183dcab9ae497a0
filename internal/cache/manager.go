package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/smorand/slides-mirror/internal/fingerprint"
)

// ErrNoRoot is returned when the manager has no cache root configured.
var ErrNoRoot = errors.New("cache root directory is not configured")

// ManagerConfig holds configuration for the cache manager.
type ManagerConfig struct {
	// Root is the directory under which one subdirectory per presentation
	// fingerprint is created.
	Root   string
	Logger *slog.Logger
}

// Manager hands out one Store per presentation fingerprint and reuses it for
// later passes. Stores of older fingerprints are never removed automatically;
// Clear wipes the whole root.
type Manager struct {
	config ManagerConfig
	logger *slog.Logger
	mu     sync.Mutex
	stores map[fingerprint.Presentation]*Store
}

// NewManager creates a new cache manager.
func NewManager(config ManagerConfig) *Manager {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Manager{
		config: config,
		logger: config.Logger,
		stores: make(map[fingerprint.Presentation]*Store),
	}
}

// Root returns the cache root directory.
func (m *Manager) Root() string {
	return m.config.Root
}

// Open returns the store for fp, opening it on first use.
func (m *Manager) Open(fp fingerprint.Presentation, trackFingerprints bool) (*Store, error) {
	if m.config.Root == "" {
		return nil, ErrNoRoot
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[fp]; ok {
		m.logger.Debug("reusing cache store",
			slog.String("fingerprint", fp.Short()),
		)
		return s, nil
	}

	s, err := Open(filepath.Join(m.config.Root, string(fp)), StoreOptions{
		TrackFingerprints: trackFingerprints,
		Logger:            m.logger,
	})
	if err != nil {
		return nil, err
	}
	m.stores[fp] = s

	m.logger.Debug("opened cache store",
		slog.String("fingerprint", fp.Short()),
		slog.String("dir", s.Dir()),
		slog.Int("entries", s.Len()),
	)
	return s, nil
}

// Clear removes every cached presentation from disk. Open stores stay usable
// and start again from an empty manifest.
func (m *Manager) Clear() error {
	if m.config.Root == "" {
		return ErrNoRoot
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.RemoveAll(m.config.Root); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	for _, s := range m.stores {
		s.reset()
	}

	m.logger.Info("cleared cache", slog.String("root", m.config.Root))
	return nil
}

// DirStats describes one presentation directory under the root.
type DirStats struct {
	Fingerprint fingerprint.Presentation
	Images      int
	Open        bool
}

// Stats lists the presentation directories currently on disk.
func (m *Manager) Stats() ([]DirStats, error) {
	if m.config.Root == "" {
		return nil, ErrNoRoot
	}

	entries, err := os.ReadDir(m.config.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache root: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]DirStats, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fp := fingerprint.Presentation(e.Name())
		probe := &Store{dir: filepath.Join(m.config.Root, e.Name())}
		_, open := m.stores[fp]
		stats = append(stats, DirStats{
			Fingerprint: fp,
			Images:      probe.countImages(),
			Open:        open,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Fingerprint < stats[j].Fingerprint })
	return stats, nil
}

// LogStats logs one line per cached presentation directory.
func (m *Manager) LogStats() {
	stats, err := m.Stats()
	if err != nil {
		m.logger.Warn("failed to read cache statistics", slog.Any("error", err))
		return
	}
	if len(stats) == 0 {
		m.logger.Info("cache is empty", slog.String("root", m.config.Root))
		return
	}
	for _, st := range stats {
		m.logger.Info("cached presentation",
			slog.String("fingerprint", st.Fingerprint.Short()),
			slog.Int("images", st.Images),
			slog.Bool("open", st.Open),
		)
	}
}

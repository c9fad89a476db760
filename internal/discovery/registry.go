package discovery

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/steveyegge/devpulse/internal/storage"
)

// MinerRegistry manages miner registration.
// Miners have no ordering dependencies; the coordinator runs them in parallel.
type MinerRegistry struct {
	mu     sync.RWMutex
	miners map[string]Miner
}

// NewMinerRegistry creates an empty registry.
func NewMinerRegistry() *MinerRegistry {
	return &MinerRegistry{
		miners: make(map[string]Miner),
	}
}

// Register adds a miner to the registry.
func (r *MinerRegistry) Register(miner Miner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := miner.Name()
	if _, exists := r.miners[name]; exists {
		return fmt.Errorf("miner %q already registered", name)
	}
	for other, m := range r.miners {
		if m.Family() == miner.Family() {
			return fmt.Errorf("miner %q writes family %s already owned by %q", name, miner.Family(), other)
		}
	}

	r.miners[name] = miner
	return nil
}

// Get returns a registered miner by name.
func (r *MinerRegistry) Get(name string) (Miner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	miner, exists := r.miners[name]
	return miner, exists
}

// List returns all registered miner names, sorted.
func (r *MinerRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.miners))
	for name := range r.miners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps names to miners in the given order, failing on unknown or
// repeated names.
func (r *MinerRegistry) Resolve(names []string) ([]Miner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(names))
	miners := make([]Miner, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("miner %q listed twice", name)
		}
		seen[name] = true

		miner, exists := r.miners[name]
		if !exists {
			return nil, fmt.Errorf("miner %q not registered", name)
		}
		miners = append(miners, miner)
	}
	return miners, nil
}

// DefaultRegistry creates a registry with the four built-in miners.
func DefaultRegistry(store storage.Storage, cfg *Config, logger *slog.Logger) (*MinerRegistry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewMinerRegistry()
	builtins := []Miner{
		NewCooccurrenceMiner(store, cfg.Cooccurrence),
		NewTemporalMiner(store, cfg.Temporal),
		NewDeveloperMiner(store, cfg.Developer),
		NewChangeMagnitudeMiner(store, cfg.Magnitude, logger),
	}
	for _, m := range builtins {
		if err := registry.Register(m); err != nil {
			return nil, fmt.Errorf("registering %s miner: %w", m.Name(), err)
		}
	}
	return registry, nil
}

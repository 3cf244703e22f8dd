package connector

import (
	"errors"
	"sort"
	"sync"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Registry holds one connector per configured source, keyed by source name.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry builds the legacy connector and one file connector per
// reference source.
func NewRegistry(cfg *config.Config, opener Opener, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{connectors: make(map[string]Connector)}

	legacy, err := NewLegacyConnector(&cfg.Legacy, WithLegacyLogger(logger))
	if err != nil {
		return nil, err
	}
	r.Register(legacy)

	for i := range cfg.References {
		fc, err := NewFileConnector(&cfg.References[i], opener, logger)
		if err != nil {
			return nil, err
		}
		r.Register(fc)
	}
	return r, nil
}

// NewRegistryWith wraps already built connectors.
func NewRegistryWith(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a connector.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Name()] = c
}

// Get returns the connector for a source.
func (r *Registry) Get(source string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[source]
	if !ok {
		return nil, datasync.NewConfigurationError("connector", "no source named "+quote(source), nil)
	}
	return c, nil
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close closes every connector.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, c := range r.connectors {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

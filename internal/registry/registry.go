// Package registry assembles the enabled source readers from configuration.
package registry

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/config"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/ofxfile"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/pluxee"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/ponto"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/source"
)

// Registry holds the source readers for one sync pass.
type Registry struct {
	readers []source.Reader
}

// FromConfig builds readers for every enabled source. The configuration has
// already been validated, so a source that is enabled here has its settings.
func FromConfig(cfg *config.Config) *Registry {
	r := &Registry{}

	if cfg.Sources.Ponto.Enabled {
		r.Register(ponto.New(cfg.Sources.Ponto.URL, cfg.Sources.Ponto.ClientID, cfg.Sources.Ponto.ClientSecret))
	}
	if cfg.Sources.Pluxee.Enabled {
		r.Register(pluxee.New(cfg.Sources.Pluxee.URL, cfg.Sources.Pluxee.Username, cfg.Sources.Pluxee.Password))
	}
	if cfg.Sources.OFXFile.Enabled {
		r.Register(ofxfile.New(cfg.Sources.OFXFile.Dir))
	}

	return r
}

// Register adds a custom reader (for extensibility).
func (r *Registry) Register(reader source.Reader) {
	r.readers = append(r.readers, reader)
}

// Readers returns the readers in registration order.
func (r *Registry) Readers() []source.Reader {
	return r.readers
}

// Find returns the reader with the given name.
func (r *Registry) Find(name string) (source.Reader, error) {
	for _, reader := range r.readers {
		if reader.Name() == name {
			return reader, nil
		}
	}
	return nil, fmt.Errorf("no source registered with name: %s", name)
}

// ListSources returns the names of all registered readers.
func (r *Registry) ListSources() []string {
	names := make([]string, len(r.readers))
	for i, reader := range r.readers {
		names[i] = reader.Name()
	}
	return names
}

package settings

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"gitea.knapp/jacoknapp/simpl/internal/config"
)

// Store holds the config as read from its YAML file and writes every
// accepted change back. Environment overrides never pass through it.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *config.Config
}

func New(path string, cfg *config.Config) *Store { return &Store{path: path, cfg: cfg} }
func (s *Store) Get() *config.Config             { s.mu.RLock(); defer s.mu.RUnlock(); return s.cfg }
func (s *Store) Path() string                    { return s.path }

func (s *Store) Update(newCfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(newCfg)
}

// Modify applies fn to a copy of the current config and stores the result.
// Concurrent calls are serialized, so no change is lost.
func (s *Store) Modify(fn func(c *config.Config)) (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.cfg.Clone()
	fn(cp)
	if err := s.save(cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// save requires s.mu.
func (s *Store) save(newCfg *config.Config) error {
	if err := newCfg.Validate(); err != nil {
		return err
	}
	b, err := yaml.Marshal(newCfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return err
	}
	s.cfg = newCfg
	return nil
}

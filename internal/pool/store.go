package pool

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/proxyforge/llmgate/internal/protocol"
)

// Store is the sole writer of provider_pools.json: a single JSON document
// whose top-level keys are the provider types themselves, with no
// wrapper key (spec.md §4.3, §6). Writes are idempotent: writing the
// same snapshot twice produces byte-identical files modulo map key
// ordering, since encoding/json sorts map keys for stable map-typed
// fields.
type Store struct {
	path string
}

func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, "provider_pools.json")}
}

// NewStoreAtPath points the Store directly at path rather than deriving
// the filename beneath a directory — used when the operator overrides
// the pool file's full location (PROVIDER_POOLS_FILE_PATH).
func NewStoreAtPath(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Save(snap map[protocol.ProviderType][]Snapshot) error {
	byType := make(map[string][]Snapshot, len(snap))
	for t, accounts := range snap {
		byType[string(t)] = accounts
	}

	data, err := json.MarshalIndent(byType, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Load() (map[protocol.ProviderType][]Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var byType map[string][]Snapshot
	if err := json.Unmarshal(data, &byType); err != nil {
		return nil, err
	}

	out := make(map[protocol.ProviderType][]Snapshot, len(byType))
	for t, accounts := range byType {
		out[protocol.ProviderType(t)] = accounts
	}
	return out, nil
}

// Package paramstore implements the per-block keyed parameter store (C5): a
// TOML file read lazily, defaulted on miss, and written back atomically.
// Access is not safe for concurrent use — the store is only touched during
// single-threaded graph build, per spec.md §4.5.
package paramstore

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/nimbusfly/graphctl/internal/errs"
)

// Store is a persisted map from (section, block name) to an opaque blob,
// serialized as one TOML table per pair.
type Store struct {
	path     string
	sections map[string]map[string]interface{}
}

// Load reads path if it exists, or returns an empty store if it does not.
// A present-but-unparsable file is a KindMissingOrCorruptStore error.
func Load(path string) (*Store, error) {
	s := &Store{path: path, sections: make(map[string]map[string]interface{})}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errs.New("paramstore/load", errs.KindMissingOrCorruptStore, errs.WithCause(err))
	}
	if len(data) == 0 {
		return s, nil
	}
	if _, err := toml.Decode(string(data), &s.sections); err != nil {
		return nil, errs.New("paramstore/load", errs.KindMissingOrCorruptStore, errs.WithCause(err))
	}
	return s, nil
}

// GetBlockParams looks up (section, blockName). If absent, def is inserted
// (to be picked up by the next Save) and returned as-is. If present, the
// stored TOML table is decoded into T; a decode failure is
// KindDeserializeFailure.
func GetBlockParams[T any](s *Store, section, blockName string, def T) (T, error) {
	sec, ok := s.sections[section]
	if !ok {
		sec = make(map[string]interface{})
		s.sections[section] = sec
	}

	raw, ok := sec[blockName]
	if !ok {
		sec[blockName] = def
		return def, nil
	}

	var out T
	if err := remarshal(raw, &out); err != nil {
		return def, errs.New("paramstore/get_block_params", errs.KindDeserializeFailure,
			errs.WithBlock(blockName), errs.WithCause(err))
	}
	return out, nil
}

// PutBlockParams overwrites the stored section unconditionally, used when a
// block wants to persist tuned parameters back to disk.
func PutBlockParams[T any](s *Store, section, blockName string, value T) {
	sec, ok := s.sections[section]
	if !ok {
		sec = make(map[string]interface{})
		s.sections[section] = sec
	}
	sec[blockName] = value
}

// Save serializes the full store atomically: write to a temp file in the
// same directory, then rename over the target path.
func (s *Store) Save() error {
	dir := filepath.Dir(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".paramstore-*.tmp")
	if err != nil {
		return errs.New("paramstore/save", errs.KindMissingOrCorruptStore, errs.WithCause(err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := toml.NewEncoder(tmp).Encode(s.sections); err != nil {
		tmp.Close()
		return errs.New("paramstore/save", errs.KindDeserializeFailure, errs.WithCause(err))
	}
	if err := tmp.Close(); err != nil {
		return errs.New("paramstore/save", errs.KindMissingOrCorruptStore, errs.WithCause(err))
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errs.New("paramstore/save", errs.KindMissingOrCorruptStore, errs.WithCause(err))
	}
	return nil
}

// remarshal round-trips v through the TOML encoder/decoder to coerce a
// generically-decoded map[string]interface{} into a concrete struct T,
// avoiding a hand-rolled reflection-based converter.
func remarshal(v interface{}, out interface{}) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	_, err := toml.Decode(buf.String(), out)
	return err
}

package installer

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/cipherhq/mcpc/internal/manifest"
)

// stateFileName is the install-state record written inside the base env
// directory after a successful full install.
const stateFileName = "state.toml"

// State records which packages a completed full install covered. The
// skip-install fast path consults it so a fresh or interrupted environment
// is never mistaken for an installed one.
type State struct {
	Version  int                 `toml:"version"`
	Packages map[string][]string `toml:"packages"`
}

// stateVersion is the current state file schema version.
const stateVersion = 1

// newState builds a State from collected package groups, with packages
// sorted for a stable file.
func newState(groups map[manifest.Runtime][]string) *State {
	st := &State{
		Version:  stateVersion,
		Packages: make(map[string][]string, len(groups)),
	}
	for rt, pkgs := range groups {
		sorted := append([]string{}, pkgs...)
		sort.Strings(sorted)
		st.Packages[string(rt)] = sorted
	}
	return st
}

// Covers reports whether the state records an install of pkg for rt.
func (s *State) Covers(rt manifest.Runtime, pkg string) bool {
	for _, p := range s.Packages[string(rt)] {
		if p == pkg {
			return true
		}
	}
	return false
}

// writeState atomically writes the state record under base.
func writeState(base string, st *State) error {
	data, err := toml.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "marshaling install state")
	}

	path := filepath.Join(base, stateFileName)
	tmp, err := os.CreateTemp(base, ".state-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating state temp file")
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing state temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing state temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "renaming state file")
	}
	tmpPath = ""
	return nil
}

// loadState reads the state record under base. A missing file returns
// (nil, nil): no prior full install has completed.
func loadState(base string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(base, stateFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading install state")
	}

	var st State
	if err := toml.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrap(err, "parsing install state")
	}
	return &st, nil
}

package compiler

import (
	"github.com/cockroachdb/errors"

	mcpcerrors "github.com/cipherhq/mcpc/internal/errors"
	"github.com/cipherhq/mcpc/internal/manifest"
)

// Collect scans every package-runner entry and groups package identifiers
// by runtime. Within a group, duplicates are dropped and first-seen
// document order is preserved, which keeps install logs reproducible.
func Collect(reg *manifest.Registry) (map[manifest.Runtime][]string, error) {
	groups := make(map[manifest.Runtime][]string)
	seen := make(map[manifest.Runtime]map[string]bool)

	for _, key := range reg.Keys() {
		srv := reg.Get(key)
		if !srv.Runtime.IsRunner() {
			continue
		}
		if srv.Package == "" {
			// Normalize catches this at load; a bare registry built in
			// code can still violate it.
			return nil, errors.Wrapf(mcpcerrors.ErrMalformedManifest,
				"server %q: package-runner entry has no package identifier", key)
		}

		if seen[srv.Runtime] == nil {
			seen[srv.Runtime] = make(map[string]bool)
		}
		if seen[srv.Runtime][srv.Package] {
			continue
		}
		seen[srv.Runtime][srv.Package] = true
		groups[srv.Runtime] = append(groups[srv.Runtime], srv.Package)
	}
	return groups, nil
}

// Runtimes returns the runner runtime kinds present in the collected
// groups, the set the bootstrapper must ensure roots for.
func Runtimes(groups map[manifest.Runtime][]string) []manifest.Runtime {
	kinds := make([]manifest.Runtime, 0, len(groups))
	for rt := range groups {
		kinds = append(kinds, rt)
	}
	return kinds
}

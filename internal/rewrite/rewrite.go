// Package rewrite transforms loaded server entries into their compiled
// form: package-runner invocations are replaced with resolved binary paths
// inside the installation roots, and literal secret values are replaced
// with ${VAR} placeholders.
package rewrite

import (
	"github.com/cockroachdb/errors"

	"github.com/cipherhq/mcpc/internal/envdir"
	"github.com/cipherhq/mcpc/internal/installer"
	"github.com/cipherhq/mcpc/internal/manifest"
)

// Rewriter produces compiled entries from loaded ones.
type Rewriter struct {
	roots    map[manifest.Runtime]envdir.Root
	redactor *Redactor
}

// New creates a Rewriter over the bootstrapped installation roots.
func New(roots map[manifest.Runtime]envdir.Root, redactor *Redactor) *Rewriter {
	return &Rewriter{
		roots:    roots,
		redactor: redactor,
	}
}

// Rewrite returns the compiled form of a server entry. The input is never
// mutated; the result is a fresh value that is not modified again after
// being returned. Already-resolved binary and remote entries skip path
// resolution and only undergo redaction.
func (rw *Rewriter) Rewrite(s *manifest.Server) (*manifest.Server, error) {
	c := s.Clone()

	if c.Runtime.IsRunner() {
		root, ok := rw.roots[c.Runtime]
		if !ok {
			return nil, errors.Newf("server %q: no installation root for runtime %s",
				c.Name, c.Runtime)
		}

		bin := installer.Binary(root, c.Package)
		_, rest, ok := c.RunnerInvocation()
		if !ok {
			rest = nil
		}
		c.Command = append([]string{bin}, rest...)
		c.MarkResolved()
	}

	rw.redactor.redactEnv(c)
	rw.redactor.redactArgs(c)
	return c, nil
}

// RewriteAll compiles every entry of the registry into a new registry,
// preserving document order and any unknown top-level fields.
func (rw *Rewriter) RewriteAll(reg *manifest.Registry) (*manifest.Registry, error) {
	compiled := manifest.NewRegistry()
	compiled.SetUnknownFields(reg.UnknownFields())

	for _, key := range reg.Keys() {
		c, err := rw.Rewrite(reg.Get(key))
		if err != nil {
			return nil, err
		}
		compiled.Add(key, c)
	}
	return compiled, nil
}

package manifest

import (
	"strings"

	"github.com/cockroachdb/errors"

	mcpcerrors "github.com/cipherhq/mcpc/internal/errors"
)

// Normalize infers omitted runtimes, extracts package identifiers from
// runner invocations, and enforces the registry's structural invariants.
// It must be called once after loading, before any other component reads
// the registry. Violations are reported as MalformedManifest errors.
func (r *Registry) Normalize() error {
	for _, key := range r.keys {
		if err := r.Servers[key].normalize(); err != nil {
			return errors.Wrapf(err, "server %q", key)
		}
	}
	return nil
}

func (s *Server) normalize() error {
	if s.Runtime == "" {
		s.Runtime = s.inferRuntime()
	}
	if !s.Runtime.Valid() {
		return errors.Wrapf(mcpcerrors.ErrMalformedManifest,
			"unknown runtime %q (valid: node, python, binary, remote)", s.Runtime)
	}

	switch {
	case s.Runtime.IsRunner():
		if s.Package == "" {
			pkg, _, ok := s.RunnerInvocation()
			if !ok {
				return errors.Wrap(mcpcerrors.ErrMalformedManifest,
					"package-runner entry has no package identifier")
			}
			s.Package = pkg
		}
	case s.Runtime == RuntimeRemote:
		if s.URL == "" {
			return errors.Wrap(mcpcerrors.ErrMalformedManifest,
				"remote entry requires url")
		}
		if s.Package != "" {
			return errors.Wrap(mcpcerrors.ErrMalformedManifest,
				"remote entry must not declare a package")
		}
	default: // RuntimeBinary
		if len(s.Command) == 0 {
			return errors.Wrap(mcpcerrors.ErrMalformedManifest,
				"binary entry requires command")
		}
		if s.Package != "" {
			return errors.Wrap(mcpcerrors.ErrMalformedManifest,
				"binary entry must not declare a package")
		}
	}
	return nil
}

// inferRuntime derives the runtime kind from the entry's shape, matching
// how hand-maintained manifests without a runtime field are written.
func (s *Server) inferRuntime() Runtime {
	if s.URL != "" && len(s.Command) == 0 {
		return RuntimeRemote
	}
	if len(s.Command) > 0 {
		switch s.Command[0] {
		case runnerNode:
			return RuntimeNode
		case runnerPython:
			return RuntimePython
		}
	}
	return RuntimeBinary
}

// RunnerInvocation splits the command of a package-runner entry into the
// package argument and the trailing arguments that follow it. ok is false
// when the command does not contain a recognizable runner invocation.
//
// Node form:   npx [-y|--yes] <package> [args...]
// Python form: uvx <package> [args...]
func (s *Server) RunnerInvocation() (pkg string, rest []string, ok bool) {
	if len(s.Command) == 0 {
		return "", nil, false
	}

	switch s.Command[0] {
	case runnerNode:
		i := 1
		for i < len(s.Command) && strings.HasPrefix(s.Command[i], "-") {
			i++
		}
		if i >= len(s.Command) {
			return "", nil, false
		}
		return s.Command[i], s.Command[i+1:], true

	case runnerPython:
		if len(s.Command) < 2 {
			return "", nil, false
		}
		return s.Command[1], s.Command[2:], true
	}

	// Explicit runtime with a declared package but no runner token in the
	// command: the whole command is trailing arguments.
	if s.Package != "" {
		return s.Package, s.Command, true
	}
	return "", nil, false
}

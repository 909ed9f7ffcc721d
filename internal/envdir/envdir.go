// Package envdir manages the isolated per-runtime installation roots that
// pre-installed server packages live in. One root exists per package
// ecosystem (Node, Python) under a common base directory, conventionally
// .mcp_env in the working directory.
package envdir

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"

	mcpcerrors "github.com/cipherhq/mcpc/internal/errors"
	"github.com/cipherhq/mcpc/internal/manifest"
)

// DefaultBase is the conventional base directory for installation roots.
const DefaultBase = ".mcp_env"

// Root is an isolated installation directory for one runtime kind. It is a
// value handle over filesystem state owned by the directory, not by any
// in-memory object.
type Root struct {
	// Runtime is the package ecosystem this root serves.
	Runtime manifest.Runtime

	// Path is the absolute root directory.
	Path string
}

// marker returns the file whose presence means the root has already been
// bootstrapped.
func (r Root) marker() string {
	switch r.Runtime {
	case manifest.RuntimePython:
		return filepath.Join(r.Path, "pyvenv.cfg")
	default:
		return filepath.Join(r.Path, "package.json")
	}
}

// Bootstrapped reports whether the root's ecosystem has been initialized.
func (r Root) Bootstrapped() bool {
	_, err := os.Stat(r.marker())
	return err == nil
}

// CommandRunner executes a bootstrap subprocess in the given directory.
// It exists so tests can substitute a stub for npm and python.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) error

// defaultRunner runs the command silently, surfacing its combined output
// only on failure.
func defaultRunner(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s: %s", name, string(out))
	}
	return nil
}

// Bootstrapper creates installation roots on demand.
type Bootstrapper struct {
	base string
	run  CommandRunner
	log  *slog.Logger
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithRunner substitutes the subprocess runner, for tests.
func WithRunner(run CommandRunner) Option {
	return func(b *Bootstrapper) {
		b.run = run
	}
}

// New creates a Bootstrapper rooted at base. If base is empty, DefaultBase
// is used.
func New(base string, log *slog.Logger, opts ...Option) *Bootstrapper {
	if base == "" {
		base = DefaultBase
	}
	b := &Bootstrapper{
		base: base,
		run:  defaultRunner,
		log:  log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RootFor returns the root handle for a runtime without touching the
// filesystem. The directory layout is stable: <base>/node, <base>/python.
func (b *Bootstrapper) RootFor(rt manifest.Runtime) Root {
	abs, err := filepath.Abs(filepath.Join(b.base, string(rt)))
	if err != nil {
		abs = filepath.Join(b.base, string(rt))
	}
	return Root{Runtime: rt, Path: abs}
}

// Ensure creates the installation roots for the given runtime kinds.
// It is idempotent: existing roots are recognized by their ecosystem marker
// and left untouched, and nothing is ever deleted or overwritten. Failures
// are reported as BootstrapError.
func (b *Bootstrapper) Ensure(ctx context.Context, runtimes []manifest.Runtime) (map[manifest.Runtime]Root, error) {
	roots := make(map[manifest.Runtime]Root, len(runtimes))

	for _, rt := range runtimes {
		if !rt.IsRunner() {
			continue
		}
		root := b.RootFor(rt)
		if err := os.MkdirAll(root.Path, 0o755); err != nil {
			return nil, errors.Wrapf(mcpcerrors.ErrBootstrap,
				"creating root %s: %v", root.Path, err)
		}

		if root.Bootstrapped() {
			b.log.Debug("root already bootstrapped, skipping",
				"runtime", rt, "path", root.Path)
			roots[rt] = root
			continue
		}

		if err := b.initRoot(ctx, root); err != nil {
			return nil, errors.Wrapf(mcpcerrors.ErrBootstrap,
				"initializing %s root: %v", rt, err)
		}
		b.log.Info("bootstrapped installation root", "runtime", rt, "path", root.Path)
		roots[rt] = root
	}
	return roots, nil
}

// initRoot initializes the ecosystem inside a fresh root directory.
func (b *Bootstrapper) initRoot(ctx context.Context, root Root) error {
	switch root.Runtime {
	case manifest.RuntimeNode:
		return b.run(ctx, root.Path, npmCommand(), "init", "-y")
	case manifest.RuntimePython:
		return b.run(ctx, root.Path, pythonCommand(), "-m", "venv", root.Path)
	default:
		return errors.Newf("runtime %s has no installation root", root.Runtime)
	}
}

func npmCommand() string {
	if runtime.GOOS == "windows" {
		return "npm.cmd"
	}
	return "npm"
}

func pythonCommand() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

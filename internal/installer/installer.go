// Package installer bulk-installs collected packages into their isolated
// installation roots and resolves the binaries the rewriter points compiled
// entries at.
package installer

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cipherhq/mcpc/internal/envdir"
	mcpcerrors "github.com/cipherhq/mcpc/internal/errors"
	"github.com/cipherhq/mcpc/internal/manifest"
)

// DefaultTimeout bounds each runtime's install batch.
const DefaultTimeout = 10 * time.Minute

// CommandRunner executes an install subprocess in the given directory.
// Tests substitute a stub so no real package manager is invoked.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) error

func defaultRunner(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s: %s", name, string(out))
	}
	return nil
}

// Report summarizes a completed install for observability.
type Report struct {
	// Counts holds the number of packages installed per runtime.
	Counts map[manifest.Runtime]int
}

// Installer installs package batches into installation roots.
type Installer struct {
	base    string
	timeout time.Duration
	run     CommandRunner
	log     *slog.Logger
}

// Option configures an Installer.
type Option func(*Installer)

// WithRunner substitutes the subprocess runner, for tests.
func WithRunner(run CommandRunner) Option {
	return func(i *Installer) {
		i.run = run
	}
}

// WithTimeout sets the per-batch install timeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Installer) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// New creates an Installer. base is the env directory holding the
// installation roots and the install-state record.
func New(base string, log *slog.Logger, opts ...Option) *Installer {
	inst := &Installer{
		base:    base,
		timeout: DefaultTimeout,
		run:     defaultRunner,
		log:     log,
	}
	for _, opt := range opts {
		opt(inst)
	}
	return inst
}

// Install bulk-installs every collected package group into its root. The
// per-runtime batches are independent and run concurrently; packages within
// a batch are installed in sorted order in a single invocation. Any batch
// failure aborts the whole compile, and the install-state record is written
// only after every batch succeeds so an interrupted install is never
// mistaken for a complete one.
func (i *Installer) Install(ctx context.Context, groups map[manifest.Runtime][]string, roots map[manifest.Runtime]envdir.Root) (*Report, error) {
	report := &Report{Counts: make(map[manifest.Runtime]int)}

	var wg sync.WaitGroup
	errs := make([]error, 0, len(groups))
	var mu sync.Mutex

	for rt, pkgs := range groups {
		if len(pkgs) == 0 {
			continue
		}
		root, ok := roots[rt]
		if !ok {
			return nil, errors.Wrapf(mcpcerrors.ErrInstallFailure,
				"no installation root for runtime %s", rt)
		}
		report.Counts[rt] = len(pkgs)

		wg.Add(1)
		go func(rt manifest.Runtime, root envdir.Root, pkgs []string) {
			defer wg.Done()
			if err := i.installBatch(ctx, rt, root, pkgs); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(rt, root, pkgs)
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := writeState(i.base, newState(groups)); err != nil {
		return nil, errors.Wrap(err, "recording install state")
	}
	return report, nil
}

// installBatch installs one runtime's packages in a single bulk invocation.
func (i *Installer) installBatch(ctx context.Context, rt manifest.Runtime, root envdir.Root, pkgs []string) error {
	sorted := append([]string{}, pkgs...)
	sort.Strings(sorted)

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	i.log.Info("installing packages", "runtime", rt, "count", len(sorted))
	i.log.Debug("install batch", "runtime", rt, "packages", sorted)

	var err error
	switch rt {
	case manifest.RuntimeNode:
		args := append([]string{"install", "--prefix", root.Path}, sorted...)
		err = i.run(ctx, root.Path, npmCommand(), args...)
	case manifest.RuntimePython:
		args := append([]string{"install", "--upgrade"}, sorted...)
		err = i.run(ctx, root.Path, pipPath(root), args...)
	default:
		return errors.Wrapf(mcpcerrors.ErrInstallFailure, "runtime %s is not installable", rt)
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Wrapf(mcpcerrors.ErrInstallTimeout,
				"%s batch exceeded %s: %v", rt, i.timeout, err)
		}
		return errors.Wrapf(mcpcerrors.ErrInstallFailure, "%s batch: %v", rt, err)
	}
	return nil
}

// Verify implements the skip-install fast path: it checks that a prior
// full install covers every collected package and that each package's
// binary actually resolves. Any gap is fatal, because a compiled manifest
// referencing an unresolved binary is worse than no compiled manifest.
func (i *Installer) Verify(groups map[manifest.Runtime][]string, roots map[manifest.Runtime]envdir.Root) error {
	// Nothing collected means nothing to verify: a manifest of only
	// binary and remote entries needs no prior install.
	empty := true
	for _, pkgs := range groups {
		if len(pkgs) > 0 {
			empty = false
			break
		}
	}
	if empty {
		return nil
	}

	st, err := loadState(i.base)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.Wrap(mcpcerrors.ErrUnresolvedPackage,
			"no prior install recorded; run a full compile first")
	}

	for rt, pkgs := range groups {
		root, ok := roots[rt]
		if !ok || !root.Bootstrapped() {
			return errors.Wrapf(mcpcerrors.ErrUnresolvedPackage,
				"%s root is not bootstrapped", rt)
		}
		for _, pkg := range pkgs {
			if !st.Covers(rt, pkg) {
				return errors.Wrapf(mcpcerrors.ErrUnresolvedPackage,
					"%s package %q is not covered by the recorded install", rt, pkg)
			}
			bin := Binary(root, pkg)
			if _, err := os.Stat(bin); err != nil {
				return errors.Wrapf(mcpcerrors.ErrUnresolvedPackage,
					"%s package %q has no binary at %s", rt, pkg, bin)
			}
		}
	}
	return nil
}

func npmCommand() string {
	if runtime.GOOS == "windows" {
		return "npm.cmd"
	}
	return "npm"
}

func pipPath(root envdir.Root) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(root.Path, "Scripts", "pip.exe")
	}
	return filepath.Join(root.Path, "bin", "pip")
}

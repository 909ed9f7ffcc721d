// Package compiler orchestrates the ahead-of-time compile pipeline: load,
// secret validation, bootstrap, dependency collection, install, rewrite,
// and emission of the compiled manifest.
package compiler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cipherhq/mcpc/internal/envdir"
	mcpcerrors "github.com/cipherhq/mcpc/internal/errors"
	"github.com/cipherhq/mcpc/internal/installer"
	"github.com/cipherhq/mcpc/internal/manifest/parser"
	"github.com/cipherhq/mcpc/internal/rewrite"
	"github.com/cipherhq/mcpc/internal/secrets"
)

// Options configures one compile invocation.
type Options struct {
	// Input is the registry document path.
	Input string

	// Output is the compiled manifest path.
	Output string

	// EnvDir is the base directory for installation roots.
	EnvDir string

	// SkipInstall verifies a prior full install instead of installing.
	SkipInstall bool

	// InstallTimeout bounds each runtime's install batch.
	InstallTimeout time.Duration

	// Out receives user-facing progress and the pre-flight secret report.
	// Defaults to os.Stdout.
	Out io.Writer
}

// Compiler runs the compile pipeline.
type Compiler struct {
	opts  Options
	store *secrets.Store
	log   *slog.Logger

	bootstrapOpts []envdir.Option
	installOpts   []installer.Option
}

// Option configures a Compiler beyond its Options, mainly test hooks.
type Option func(*Compiler)

// WithBootstrapRunner substitutes the bootstrap subprocess runner.
func WithBootstrapRunner(run envdir.CommandRunner) Option {
	return func(c *Compiler) {
		c.bootstrapOpts = append(c.bootstrapOpts, envdir.WithRunner(run))
	}
}

// WithInstallRunner substitutes the install subprocess runner.
func WithInstallRunner(run installer.CommandRunner) Option {
	return func(c *Compiler) {
		c.installOpts = append(c.installOpts, installer.WithRunner(run))
	}
}

// New creates a Compiler.
func New(opts Options, store *secrets.Store, log *slog.Logger, copts ...Option) *Compiler {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	c := &Compiler{
		opts:  opts,
		store: store,
		log:   log,
	}
	for _, opt := range copts {
		opt(c)
	}
	return c
}

// Run executes a full compile. Secret validation runs before any
// filesystem mutation so a doomed run never spends install time, and no
// compiled manifest is emitted unless every prior stage succeeded.
func (c *Compiler) Run(ctx context.Context) error {
	reg, err := parser.Load(c.opts.Input)
	if err != nil {
		return mcpcerrors.NewUserError(err, "Check the manifest syntax and server entries")
	}
	c.log.Info("loaded manifest", "path", c.opts.Input, "servers", len(reg.Keys()))

	report := secrets.Validate(reg, c.store)
	if !report.Empty() {
		reporter := secrets.NewReporter(c.opts.Out, secrets.FormatText)
		if err := reporter.Report(report, len(reg.Keys())); err != nil {
			return mcpcerrors.NewSystemError(err, "")
		}
		return mcpcerrors.NewUserError(
			errors.Wrapf(mcpcerrors.ErrMissingSecret, "%d unresolved reference(s)", report.Total()),
			"Fill in the missing values in your .env file, or run --validate-env to iterate")
	}

	groups, err := Collect(reg)
	if err != nil {
		return mcpcerrors.NewUserError(err, "")
	}

	boot := envdir.New(c.opts.EnvDir, c.log, c.bootstrapOpts...)
	roots, err := boot.Ensure(ctx, Runtimes(groups))
	if err != nil {
		return mcpcerrors.NewSystemError(err, "Check that the env directory is writable")
	}

	inst := installer.New(c.opts.EnvDir, c.log,
		append([]installer.Option{installer.WithTimeout(c.opts.InstallTimeout)}, c.installOpts...)...)

	if c.opts.SkipInstall {
		if err := inst.Verify(groups, roots); err != nil {
			return mcpcerrors.NewUserError(err, "Run a full compile without --skip-install")
		}
		c.log.Info("skip-install verification passed")
	} else if len(groups) > 0 {
		installReport, err := inst.Install(ctx, groups, roots)
		if err != nil {
			return mcpcerrors.NewSystemError(err, "")
		}
		for rt, count := range installReport.Counts {
			fmt.Fprintf(c.opts.Out, "installed %d %s package(s)\n", count, rt)
		}
	}

	rewriter := rewrite.New(roots, rewrite.NewRedactor(c.store, c.log))
	compiled, err := rewriter.RewriteAll(reg)
	if err != nil {
		return mcpcerrors.NewSystemError(err, "")
	}

	if err := parser.WriteFile(c.opts.Output, compiled); err != nil {
		return mcpcerrors.NewSystemError(err, "Check that the output path is writable")
	}

	fmt.Fprintf(c.opts.Out, "compiled %d server(s) -> %s\n", len(compiled.Keys()), c.opts.Output)
	return nil
}

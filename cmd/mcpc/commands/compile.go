package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cipherhq/mcpc/internal/compiler"
	"github.com/cipherhq/mcpc/internal/errors"
	"github.com/cipherhq/mcpc/internal/secrets"
)

// Package-level flag variables for the compile command.
var (
	compileInput       string
	compileOutput      string
	compileEnvDir      string
	compileDotenv      string
	compileSkipInstall bool
	compileValidateEnv bool
)

func init() {
	compileCmd.Flags().StringVar(&compileInput, "input", "",
		"source manifest (default: mcp-enterprise.json)")
	compileCmd.Flags().StringVar(&compileOutput, "output", "",
		"compiled output (default: mcp-compiled.json)")
	compileCmd.Flags().StringVar(&compileEnvDir, "env-dir", "",
		"installation root base directory (default: .mcp_env)")
	compileCmd.Flags().StringVar(&compileDotenv, "dotenv", "",
		"secrets file in NAME=value form (default: .env)")
	compileCmd.Flags().BoolVar(&compileSkipInstall, "skip-install", false,
		"verify a prior full install instead of installing")
	compileCmd.Flags().BoolVar(&compileValidateEnv, "validate-env", false,
		"only check that every referenced env var is set and non-placeholder")
	rootCmd.AddCommand(compileCmd)
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a server manifest into its pre-resolved form",
	Long: `Compile reads the server manifest, pre-installs every npx/uvx package
into an isolated env directory, rewrites each entry to launch the installed
binary directly, redacts literal secrets into ${VAR} placeholders, and
writes the compiled manifest.

Secret validation runs before any installation: a compile with unresolved
environment references aborts without touching the filesystem.

With --validate-env, only the secret check runs and nothing is written.`,
	Example: `  mcpc compile
  mcpc compile --validate-env
  mcpc compile --skip-install
  mcpc compile --input servers.yaml --output compiled.json`,
	Args: cobra.NoArgs,
	RunE: runCompile,
}

// runCompile implements the compile command logic.
func runCompile(cmd *cobra.Command, _ []string) error {
	input := firstNonEmpty(compileInput, cfg.Input)
	output := firstNonEmpty(compileOutput, cfg.Output)
	envDir := firstNonEmpty(compileEnvDir, cfg.EnvDir)
	dotenv := firstNonEmpty(compileDotenv, cfg.DotenvFile)

	store, err := buildStore(dotenv)
	if err != nil {
		return err
	}

	if compileValidateEnv {
		return runValidateEnv(cmd, input, store, secrets.FormatText)
	}

	comp := compiler.New(compiler.Options{
		Input:          input,
		Output:         output,
		EnvDir:         envDir,
		SkipInstall:    compileSkipInstall,
		InstallTimeout: cfg.InstallTimeout,
		Out:            cmd.OutOrStdout(),
	}, store, slog.Default())

	return comp.Run(cmd.Context())
}

// buildStore layers the process environment over the dotenv file under the
// configured sentinel policy.
func buildStore(dotenv string) (*secrets.Store, error) {
	store := secrets.FromEnviron(
		secrets.WithSentinels(cfg.Sentinels),
		secrets.WithMatchMode(cfg.MatchMode()),
	)
	if err := store.LoadDotenv(dotenv); err != nil {
		return nil, errors.NewUserError(err, "Check the dotenv file syntax")
	}
	return store, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

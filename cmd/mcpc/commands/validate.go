package commands

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	mcpcerrors "github.com/cipherhq/mcpc/internal/errors"
	"github.com/cipherhq/mcpc/internal/manifest/parser"
	"github.com/cipherhq/mcpc/internal/secrets"
)

// Package-level flag variables for the validate command.
var (
	validateInput  string
	validateDotenv string
	validateJSON   bool
)

func init() {
	validateCmd.Flags().StringVar(&validateInput, "input", "",
		"source manifest (default: mcp-enterprise.json)")
	validateCmd.Flags().StringVar(&validateDotenv, "dotenv", "",
		"secrets file in NAME=value form (default: .env)")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false,
		"output the report as JSON")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every referenced env var resolves",
	Long: `Validate checks that every environment variable referenced by the
manifest is set in the active secret store (process environment layered
over the dotenv file) and is not still a template placeholder.

Unresolved references are reported grouped by server, so one server's
secrets can be fixed without re-reading the whole list. Validation
performs no writes.

This is the same check that runs as the pre-flight of a full compile;
"mcpc compile --validate-env" is equivalent.`,
	Example: `  mcpc validate
  mcpc validate --input servers.yaml
  mcpc validate --json`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

// runValidate implements the validate command logic.
func runValidate(cmd *cobra.Command, _ []string) error {
	input := firstNonEmpty(validateInput, cfg.Input)
	dotenv := firstNonEmpty(validateDotenv, cfg.DotenvFile)

	store, err := buildStore(dotenv)
	if err != nil {
		return err
	}

	format := secrets.FormatText
	if validateJSON {
		format = secrets.FormatJSON
	}
	return runValidateEnv(cmd, input, store, format)
}

// runValidateEnv is the shared validate-env path: load the manifest, check
// the store, report, and map an unresolved reference to a failing exit.
func runValidateEnv(cmd *cobra.Command, input string, store *secrets.Store, format secrets.Format) error {
	reg, err := parser.Load(input)
	if err != nil {
		return mcpcerrors.NewUserError(err, "Check the manifest syntax and server entries")
	}

	report := secrets.Validate(reg, store)
	reporter := secrets.NewReporter(cmd.OutOrStdout(), format)
	if err := reporter.Report(report, len(reg.Keys())); err != nil {
		return mcpcerrors.NewSystemError(err, "")
	}

	if !report.Empty() {
		return mcpcerrors.NewExitError(
			errors.Wrapf(mcpcerrors.ErrMissingSecret,
				"%d unresolved reference(s)", report.Total()),
			mcpcerrors.ExitUser)
	}
	return nil
}

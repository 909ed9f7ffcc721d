package compiler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcpcerrors "github.com/cipherhq/mcpc/internal/errors"
	"github.com/cipherhq/mcpc/internal/logging"
	"github.com/cipherhq/mcpc/internal/manifest/parser"
	"github.com/cipherhq/mcpc/internal/secrets"
)

const testManifest = `{
	"mcpServers": {
		"github": {
			"command": ["npx", "-y", "server-github", "--stdio"],
			"env": {"TOKEN_A": "${TOKEN_A}"}
		},
		"fetch": {
			"command": ["uvx", "mcp-server-fetch", "--token", "${TOKEN_B}"]
		},
		"local": {
			"command": ["/usr/local/bin/tool"]
		}
	}
}`

// stubBootstrap drops the ecosystem marker the real tool would create.
func stubBootstrap(ctx context.Context, dir, name string, args ...string) error {
	marker := "package.json"
	if !strings.HasPrefix(name, "npm") {
		marker = "pyvenv.cfg"
	}
	return os.WriteFile(filepath.Join(dir, marker), []byte("{}"), 0o644)
}

// stubInstall fabricates the binaries a real install would produce, at the
// paths the rewriter resolves.
func stubInstall(ctx context.Context, dir, name string, args ...string) error {
	binDir := filepath.Join(dir, "bin")
	if strings.HasPrefix(name, "npm") {
		binDir = filepath.Join(dir, "node_modules", ".bin")
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") || arg == "install" || arg == dir ||
			strings.HasSuffix(arg, "pip") {
			continue
		}
		if err := os.WriteFile(filepath.Join(binDir, arg), []byte("#!/bin/sh\n"), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func testCompiler(t *testing.T, dir string, store *secrets.Store, skipInstall bool) (*Compiler, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts := Options{
		Input:       filepath.Join(dir, "mcp.json"),
		Output:      filepath.Join(dir, "mcp.compiled.json"),
		EnvDir:      filepath.Join(dir, ".mcp_env"),
		SkipInstall: skipInstall,
		Out:         &out,
	}
	c := New(opts, store, logging.NewDiscard(),
		WithBootstrapRunner(stubBootstrap),
		WithInstallRunner(stubInstall))
	return c, &out
}

func writeTestManifest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mcp.json"), []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func resolvedStore() *secrets.Store {
	return secrets.New(map[string]string{
		"TOKEN_A": "ghp_real_a",
		"TOKEN_B": "tvly-real-b",
	})
}

func TestRun(t *testing.T) {
	dir := writeTestManifest(t)
	c, out := testCompiler(t, dir, resolvedStore(), false)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	compiled, err := parser.Load(filepath.Join(dir, "mcp.compiled.json"))
	if err != nil {
		t.Fatalf("loading compiled output: %v", err)
	}

	// All three servers survive, in document order.
	if got := compiled.Keys(); len(got) != 3 || got[0] != "github" {
		t.Errorf("Keys() = %v", got)
	}

	// Runner tokens are gone; resolved binaries live under the env dir.
	github := compiled.Get("github")
	if !strings.Contains(github.Command[0], ".mcp_env") {
		t.Errorf("github binary = %q, want a path under .mcp_env", github.Command[0])
	}
	fetch := compiled.Get("fetch")
	raw, err := os.ReadFile(filepath.Join(dir, "mcp.compiled.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, token := range []string{`"npx"`, `"uvx"`, `"-y"`} {
		if bytes.Contains(raw, []byte(token)) {
			t.Errorf("compiled output still contains %s:\n%s", token, raw)
		}
	}

	// Trailing args and placeholders survive untouched.
	if got := github.Command[len(github.Command)-1]; got != "--stdio" {
		t.Errorf("github trailing arg = %q", got)
	}
	if got := fetch.Command[len(fetch.Command)-1]; got != "${TOKEN_B}" {
		t.Errorf("fetch token arg = %q", got)
	}
	if github.Env["TOKEN_A"] != "${TOKEN_A}" {
		t.Errorf("github env = %v", github.Env)
	}

	// No live secret values anywhere in the emitted file.
	for _, literal := range []string{"ghp_real_a", "tvly-real-b"} {
		if bytes.Contains(raw, []byte(literal)) {
			t.Errorf("compiled output leaks secret %q", literal)
		}
	}

	// The binary entry passes through unchanged.
	local := compiled.Get("local")
	if local.Command[0] != "/usr/local/bin/tool" {
		t.Errorf("local command = %v", local.Command)
	}

	if !strings.Contains(out.String(), "compiled 3 server(s)") {
		t.Errorf("progress output = %q", out.String())
	}
}

func TestRun_Idempotent(t *testing.T) {
	dir := writeTestManifest(t)
	outPath := filepath.Join(dir, "mcp.compiled.json")

	c, _ := testCompiler(t, dir, resolvedStore(), false)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}

	c2, _ := testCompiler(t, dir, resolvedStore(), false)
	if err := c2.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Error("repeated compiles of the same input should be byte-identical")
	}
}

func TestRun_MissingSecretAbortsEarly(t *testing.T) {
	dir := writeTestManifest(t)
	store := secrets.New(map[string]string{
		"TOKEN_A": "ghp_real_a",
		"TOKEN_B": "REPLACE_ME",
	})
	c, out := testCompiler(t, dir, store, false)

	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail on unresolved secrets")
	}
	if !errors.Is(err, mcpcerrors.ErrMissingSecret) {
		t.Errorf("error should wrap ErrMissingSecret, got %v", err)
	}
	if mcpcerrors.Code(err) != mcpcerrors.ExitUser {
		t.Errorf("exit code = %d, want %d", mcpcerrors.Code(err), mcpcerrors.ExitUser)
	}

	// Validation runs before any filesystem mutation.
	if _, statErr := os.Stat(filepath.Join(dir, ".mcp_env")); !os.IsNotExist(statErr) {
		t.Error("env dir should not exist after a failed pre-flight")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "mcp.compiled.json")); !os.IsNotExist(statErr) {
		t.Error("no compiled manifest should be emitted")
	}
	if !strings.Contains(out.String(), "TOKEN_B -- still a placeholder") {
		t.Errorf("report output = %q", out.String())
	}
}

func TestRun_SkipInstallFreshEnv(t *testing.T) {
	dir := writeTestManifest(t)
	c, _ := testCompiler(t, dir, resolvedStore(), true)

	err := c.Run(context.Background())
	if !errors.Is(err, mcpcerrors.ErrUnresolvedPackage) {
		t.Fatalf("fresh env with --skip-install should fail, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "mcp.compiled.json")); !os.IsNotExist(statErr) {
		t.Error("no compiled manifest should be emitted")
	}
}

func TestRun_SkipInstallBinaryOnlyManifest(t *testing.T) {
	dir := t.TempDir()
	content := `{"mcpServers": {"local": {"command": ["/usr/local/bin/tool"]}}}`
	if err := os.WriteFile(filepath.Join(dir, "mcp.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// No runner entries means nothing to install, so skip-install has
	// nothing to verify even in a fresh environment.
	c, out := testCompiler(t, dir, secrets.New(nil), true)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mcp.compiled.json")); err != nil {
		t.Errorf("compiled manifest should be emitted: %v", err)
	}
	if !strings.Contains(out.String(), "compiled 1 server(s)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_SkipInstallAfterFullCompile(t *testing.T) {
	dir := writeTestManifest(t)
	outPath := filepath.Join(dir, "mcp.compiled.json")

	c, _ := testCompiler(t, dir, resolvedStore(), false)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	full, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}

	c2, out := testCompiler(t, dir, resolvedStore(), true)
	if err := c2.Run(context.Background()); err != nil {
		t.Fatalf("skip-install after a full compile should pass, got %v", err)
	}
	if !strings.Contains(out.String(), "compiled 3 server(s)") {
		t.Errorf("output = %q", out.String())
	}

	// The fast path emits exactly what the full compile emits.
	skipped, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(full, skipped) {
		t.Error("skip-install output should be byte-identical to the full compile's")
	}
}

func TestRun_MalformedManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mcp.json"), []byte(`{"mcpServers": {`), 0o644); err != nil {
		t.Fatal(err)
	}

	c, _ := testCompiler(t, dir, resolvedStore(), false)
	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail on a malformed manifest")
	}
	if mcpcerrors.Code(err) != mcpcerrors.ExitUser {
		t.Errorf("exit code = %d, want %d", mcpcerrors.Code(err), mcpcerrors.ExitUser)
	}
}

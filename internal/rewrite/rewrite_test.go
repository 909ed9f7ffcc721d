package rewrite

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cipherhq/mcpc/internal/envdir"
	"github.com/cipherhq/mcpc/internal/logging"
	"github.com/cipherhq/mcpc/internal/manifest"
	"github.com/cipherhq/mcpc/internal/secrets"
)

func testRewriter(t *testing.T) (*Rewriter, map[manifest.Runtime]envdir.Root) {
	t.Helper()
	base := t.TempDir()
	roots := map[manifest.Runtime]envdir.Root{
		manifest.RuntimeNode:   {Runtime: manifest.RuntimeNode, Path: filepath.Join(base, "node")},
		manifest.RuntimePython: {Runtime: manifest.RuntimePython, Path: filepath.Join(base, "python")},
	}
	redactor := NewRedactor(secrets.New(nil), logging.NewDiscard())
	return New(roots, redactor), roots
}

func TestRewrite_NodeRunner(t *testing.T) {
	rw, roots := testRewriter(t)

	s := &manifest.Server{
		Name:    "github",
		Runtime: manifest.RuntimeNode,
		Command: []string{"npx", "-y", "server-github", "--stdio"},
		Package: "server-github",
		Env:     map[string]string{"GITHUB_TOKEN": "${GITHUB_TOKEN}"},
	}

	c, err := rw.Rewrite(s)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}

	// The runner token and its flags are gone; trailing args survive.
	wantBin := filepath.Join(roots[manifest.RuntimeNode].Path, "node_modules", ".bin", "server-github")
	if !reflect.DeepEqual(c.Command, []string{wantBin, "--stdio"}) {
		t.Errorf("command = %v", c.Command)
	}
	for _, arg := range c.Command {
		if arg == "npx" || arg == "-y" {
			t.Errorf("runner token %q survived rewrite", arg)
		}
	}

	// Input untouched.
	if s.Command[0] != "npx" {
		t.Error("Rewrite must not mutate its input")
	}
}

func TestRewrite_PythonRunner(t *testing.T) {
	rw, roots := testRewriter(t)

	s := &manifest.Server{
		Name:    "fetch",
		Runtime: manifest.RuntimePython,
		Command: []string{"uvx", "mcp-server-fetch"},
		Package: "mcp-server-fetch",
	}

	c, err := rw.Rewrite(s)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if !strings.HasPrefix(c.Command[0], roots[manifest.RuntimePython].Path) {
		t.Errorf("binary %q should live under the python root", c.Command[0])
	}
	if len(c.Command) != 1 {
		t.Errorf("command = %v, want bare binary", c.Command)
	}
}

func TestRewrite_ResolvedEntrySerializesBare(t *testing.T) {
	rw, _ := testRewriter(t)

	s := &manifest.Server{
		Name:    "github",
		Runtime: manifest.RuntimeNode,
		Command: []string{"npx", "-y", "server-github"},
		Package: "server-github",
	}
	c, err := rw.Rewrite(s)
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"package"`, `"runtime"`} {
		if strings.Contains(string(data), field) {
			t.Errorf("compiled entry should not serialize %s: %s", field, data)
		}
	}
}

func TestRewrite_BinaryPassthrough(t *testing.T) {
	rw, _ := testRewriter(t)

	s := &manifest.Server{
		Name:    "local",
		Runtime: manifest.RuntimeBinary,
		Command: []string{"/usr/local/bin/tool", "--flag"},
	}
	c, err := rw.Rewrite(s)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.Command, s.Command) {
		t.Errorf("binary entry command changed: %v", c.Command)
	}
}

func TestRewrite_RemotePassthrough(t *testing.T) {
	rw, _ := testRewriter(t)

	s := &manifest.Server{
		Name:    "api",
		Runtime: manifest.RuntimeRemote,
		URL:     "https://mcp.example.com/sse",
	}
	c, err := rw.Rewrite(s)
	if err != nil {
		t.Fatal(err)
	}
	if c.URL != s.URL {
		t.Errorf("url = %q", c.URL)
	}
}

func TestRewrite_MissingRoot(t *testing.T) {
	rw := New(nil, NewRedactor(secrets.New(nil), logging.NewDiscard()))
	_, err := rw.Rewrite(&manifest.Server{
		Name:    "github",
		Runtime: manifest.RuntimeNode,
		Command: []string{"npx", "-y", "server-github"},
		Package: "server-github",
	})
	if err == nil {
		t.Fatal("Rewrite() should fail without an installation root")
	}
}

func TestRewriteAll_NoNewPlaceholders(t *testing.T) {
	rw, _ := testRewriter(t)

	reg := manifest.NewRegistry()
	reg.Add("github", &manifest.Server{
		Runtime: manifest.RuntimeNode,
		Command: []string{"npx", "-y", "server-github"},
		Package: "server-github",
		Env:     map[string]string{"GITHUB_TOKEN": "ghp_literal"},
	})
	reg.Add("local", &manifest.Server{
		Runtime: manifest.RuntimeBinary,
		Command: []string{"/bin/tool"},
	})

	compiled, err := rw.RewriteAll(reg)
	if err != nil {
		t.Fatalf("RewriteAll() error = %v", err)
	}

	if !reflect.DeepEqual(compiled.Keys(), reg.Keys()) {
		t.Errorf("order changed: %v", compiled.Keys())
	}

	// Every placeholder in the compiled output must come from the input's
	// declared references; compilation introduces no new variables.
	inputRefs := make(map[string]bool)
	for _, key := range reg.Keys() {
		for _, ref := range reg.Get(key).EnvRefs() {
			inputRefs[ref] = true
		}
	}
	for _, key := range compiled.Keys() {
		for _, ref := range compiled.Get(key).EnvRefs() {
			if !inputRefs[ref] {
				t.Errorf("compiled output introduced new reference %q", ref)
			}
		}
	}
}

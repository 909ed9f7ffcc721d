package installer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/cipherhq/mcpc/internal/envdir"
	"github.com/cipherhq/mcpc/internal/manifest"
)

// npmSpecRE splits an npm package spec into its name, tolerating a version
// pin and a scope: "@scope/pkg@1.2.3" -> "@scope/pkg".
var npmSpecRE = regexp.MustCompile(`^(@[^/]+/[^@]+|[^@]+)(?:@.+)?$`)

// pipConstraintRE matches the first version-constraint operator in a pip
// requirement spec.
var pipConstraintRE = regexp.MustCompile(`[<>=!~]`)

// NPMPackageName extracts the npm package name from a possibly
// version-pinned spec.
func NPMPackageName(spec string) string {
	if m := npmSpecRE.FindStringSubmatch(spec); m != nil {
		return m[1]
	}
	return spec
}

// PipPackageName extracts the pip distribution name from a possibly
// constrained spec such as "mcp-server-fetch[extra]>=1.0".
func PipPackageName(spec string) string {
	base, _, _ := strings.Cut(spec, "[")
	if loc := pipConstraintRE.FindStringIndex(base); loc != nil {
		return base[:loc[0]]
	}
	return base
}

// Binary returns the resolved executable path for a package inside its
// installation root. For installed packages the real binary name is read
// from package metadata; otherwise the conventional name is returned so
// callers get a concrete path for error messages.
func Binary(root envdir.Root, pkg string) string {
	switch root.Runtime {
	case manifest.RuntimePython:
		return pythonBinary(root, pkg)
	default:
		return nodeBinary(root, pkg)
	}
}

// nodeBinary resolves the .bin entry for an npm package. The installed
// package.json bin field names the executable: a string form means the
// binary is named after the package, a map form names one or more binaries
// and the first key wins.
func nodeBinary(root envdir.Root, pkg string) string {
	name := NPMPackageName(pkg)
	binName := name[strings.LastIndex(name, "/")+1:]

	metaPath := filepath.Join(root.Path, "node_modules", filepath.FromSlash(name), "package.json")
	if data, err := os.ReadFile(metaPath); err == nil {
		var meta struct {
			Bin json.RawMessage `json:"bin"`
		}
		if json.Unmarshal(data, &meta) == nil && len(meta.Bin) > 0 {
			var binMap map[string]string
			if json.Unmarshal(meta.Bin, &binMap) == nil && len(binMap) > 0 {
				keys := make([]string, 0, len(binMap))
				for k := range binMap {
					keys = append(keys, k)
				}
				// Deterministic pick when the map names several binaries.
				binName = minString(keys)
			}
		}
	}

	if runtime.GOOS == "windows" {
		binName += ".cmd"
	}
	return filepath.Join(root.Path, "node_modules", ".bin", binName)
}

// pythonBinary resolves the console script for a pip package inside the
// venv. Distribution names normalize "-" to "_" in some script names, so
// both spellings are probed.
func pythonBinary(root envdir.Root, pkg string) string {
	name := PipPackageName(pkg)

	scripts := "bin"
	suffix := ""
	if runtime.GOOS == "windows" {
		scripts = "Scripts"
		suffix = ".exe"
	}

	candidates := []string{name, strings.ReplaceAll(name, "-", "_")}
	for _, candidate := range candidates {
		p := filepath.Join(root.Path, scripts, candidate+suffix)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(root.Path, scripts, name+suffix)
}

func minString(ss []string) string {
	m := ss[0]
	for _, s := range ss[1:] {
		if s < m {
			m = s
		}
	}
	return m
}

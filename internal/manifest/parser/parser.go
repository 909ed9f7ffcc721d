// Package parser loads tool-server registry documents and emits compiled
// manifests. Input may be JSON with comments and trailing commas (JSONC) or
// YAML; output is always strict, deterministically ordered JSON written with
// an atomic rename so a crash never leaves a truncated manifest.
package parser

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	mcpcerrors "github.com/cipherhq/mcpc/internal/errors"
	"github.com/cipherhq/mcpc/internal/manifest"
)

// Load reads, parses, normalizes, and schema-validates a registry document.
// The format is chosen by file extension: .yaml/.yml is parsed as YAML,
// everything else as JSONC. Loading has no side effects beyond reading the
// one file.
func Load(path string) (*manifest.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}

	var reg *manifest.Registry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		reg, err = parseYAML(data)
	default:
		reg, err = parseJSON(data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing manifest %s", path)
	}

	if err := reg.Normalize(); err != nil {
		return nil, errors.Wrapf(err, "validating manifest %s", path)
	}
	return reg, nil
}

// parseJSON parses a JSONC registry document. Comments and trailing commas
// are standardized away before strict decoding.
func parseJSON(data []byte) (*manifest.Registry, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(std, &top); err != nil {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
	}

	reg := manifest.NewRegistry()

	rawServers, ok := top[manifest.ServersKey]
	if !ok {
		return nil, errors.Wrapf(mcpcerrors.ErrMalformedManifest,
			"missing top-level %q object", manifest.ServersKey)
	}
	delete(top, manifest.ServersKey)
	if len(top) > 0 {
		reg.SetUnknownFields(top)
	}

	// encoding/json silently keeps the last value for duplicate keys, so
	// document order and key uniqueness come from a token scan.
	keys, err := objectKeys(rawServers)
	if err != nil {
		return nil, err
	}

	var servers map[string]*manifest.Server
	if err := json.Unmarshal(rawServers, &servers); err != nil {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
	}
	for _, key := range keys {
		reg.Add(key, servers[key])
	}
	return reg, nil
}

// objectKeys returns the keys of a JSON object in document order, failing
// on duplicates.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.Wrapf(mcpcerrors.ErrMalformedManifest,
			"%q must be an object", manifest.ServersKey)
	}

	var keys []string
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
		}
		key := tok.(string)
		if seen[key] {
			return nil, errors.Wrapf(mcpcerrors.ErrMalformedManifest,
				"duplicate server key %q", key)
		}
		seen[key] = true
		keys = append(keys, key)

		if err := skipValue(dec); err != nil {
			return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
		}
	}
	return keys, nil
}

// skipValue consumes one complete JSON value from the decoder.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return errors.New("unexpected end of document")
			}
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// parseYAML parses a YAML registry document, preserving server order from
// the document.
func parseYAML(data []byte) (*manifest.Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, "empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest,
			"document must be a mapping")
	}

	reg := manifest.NewRegistry()
	unknown := make(map[string]json.RawMessage)
	var foundServers bool

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		if keyNode.Value != manifest.ServersKey {
			var v any
			if err := valNode.Decode(&v); err != nil {
				return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
			}
			unknown[keyNode.Value] = raw
			continue
		}

		foundServers = true
		if valNode.Kind != yaml.MappingNode {
			return nil, errors.Wrapf(mcpcerrors.ErrMalformedManifest,
				"%q must be a mapping", manifest.ServersKey)
		}
		seen := make(map[string]bool)
		for j := 0; j+1 < len(valNode.Content); j += 2 {
			name := valNode.Content[j].Value
			if seen[name] {
				return nil, errors.Wrapf(mcpcerrors.ErrMalformedManifest,
					"duplicate server key %q", name)
			}
			seen[name] = true

			srv, err := yamlServer(valNode.Content[j+1])
			if err != nil {
				return nil, errors.Wrapf(err, "server %q", name)
			}
			reg.Add(name, srv)
		}
	}

	if !foundServers {
		return nil, errors.Wrapf(mcpcerrors.ErrMalformedManifest,
			"missing top-level %q mapping", manifest.ServersKey)
	}
	if len(unknown) > 0 {
		reg.SetUnknownFields(unknown)
	}
	return reg, nil
}

// yamlServer converts one YAML server entry into the manifest model by
// routing it through the JSON codec, which also captures unknown fields.
func yamlServer(node *yaml.Node) (*manifest.Server, error) {
	var fields map[string]any
	if err := node.Decode(&fields); err != nil {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
	}
	var srv manifest.Server
	if err := json.Unmarshal(raw, &srv); err != nil {
		return nil, errors.Wrap(mcpcerrors.ErrMalformedManifest, err.Error())
	}
	return &srv, nil
}

// Write serializes a registry to indented JSON with a trailing newline.
// Output is deterministic for identical input: map keys are emitted sorted
// and nothing time-dependent is embedded.
func Write(reg *manifest.Registry) ([]byte, error) {
	if reg == nil {
		reg = manifest.NewRegistry()
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshaling manifest")
	}
	return append(data, '\n'), nil
}

// WriteFile writes a registry to path using an atomic write: the document
// is built in a temporary file in the same directory and renamed into
// place. Parent directories are created if missing.
func WriteFile(path string, reg *manifest.Registry) error {
	data, err := Write(reg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating directory %s", dir)
	}

	tmpFile, err := os.CreateTemp(dir, ".mcpc-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "renaming temp file")
	}
	tmpPath = ""
	return nil
}

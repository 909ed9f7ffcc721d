package manifest

import (
	"encoding/json"
	"regexp"
	"sort"
)

// Runtime identifies how a server entry is launched.
type Runtime string

const (
	// RuntimeNode is the npx-style ephemeral Node package runner.
	RuntimeNode Runtime = "node"

	// RuntimePython is the uvx-style ephemeral Python package runner.
	RuntimePython Runtime = "python"

	// RuntimeBinary is an already-resolved local executable.
	RuntimeBinary Runtime = "binary"

	// RuntimeRemote is a remote endpoint reached over the network.
	RuntimeRemote Runtime = "remote"
)

// Runner tokens recognized in command position when the runtime field is
// omitted from the manifest.
const (
	runnerNode   = "npx"
	runnerPython = "uvx"
)

// IsRunner reports whether the runtime resolves and executes a package on
// demand rather than from a pre-installed location.
func (r Runtime) IsRunner() bool {
	return r == RuntimeNode || r == RuntimePython
}

// Valid reports whether the runtime is one of the recognized kinds.
func (r Runtime) Valid() bool {
	switch r {
	case RuntimeNode, RuntimePython, RuntimeBinary, RuntimeRemote:
		return true
	}
	return false
}

// placeholderRE matches ${VAR_NAME} references, the only recognized
// placeholder syntax.
var placeholderRE = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// PlaceholderName returns the variable name if s is exactly a ${VAR_NAME}
// placeholder, or "" otherwise.
func PlaceholderName(s string) string {
	m := placeholderRE.FindStringSubmatch(s)
	if m == nil || m[0] != s {
		return ""
	}
	return m[1]
}

// Placeholder returns the ${VAR_NAME} form of a variable name.
func Placeholder(name string) string {
	return "${" + name + "}"
}

// Server is one entry in the registry: a launch spec keyed by a unique name.
type Server struct {
	// Name is the registry key. It is not serialized inside the entry.
	Name string `json:"-"`

	// Runtime is the launch style. When omitted from the manifest it is
	// inferred from the command and URL at load time.
	Runtime Runtime `json:"runtime,omitempty"`

	// Command is the ordered argument sequence, executable first.
	Command []string `json:"command,omitempty"`

	// Package is the package identifier for runner runtimes. When omitted
	// it is extracted from the runner invocation in Command.
	Package string `json:"package,omitempty"`

	// Env maps environment variable names to literal values or ${VAR}
	// placeholders.
	Env map[string]string `json:"env,omitempty"`

	// URL is the endpoint for remote servers.
	URL string `json:"url,omitempty"`

	// runtimeExplicit records whether the runtime field was present in the
	// source document, so re-emission does not invent fields.
	runtimeExplicit bool

	// unknownFields stores fields not defined in this struct, preserving
	// them verbatim through a compile.
	unknownFields map[string]json.RawMessage
}

// RuntimeExplicit reports whether the runtime field was present in the
// source document rather than inferred.
func (s *Server) RuntimeExplicit() bool {
	return s.runtimeExplicit
}

// Clone returns a deep copy of the server. The compiled form of an entry is
// built on a clone so the loaded registry is never mutated.
func (s *Server) Clone() *Server {
	c := &Server{
		Name:            s.Name,
		Runtime:         s.Runtime,
		Package:         s.Package,
		URL:             s.URL,
		runtimeExplicit: s.runtimeExplicit,
	}
	if s.Command != nil {
		c.Command = append([]string{}, s.Command...)
	}
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	if s.unknownFields != nil {
		c.unknownFields = make(map[string]json.RawMessage, len(s.unknownFields))
		for k, v := range s.unknownFields {
			c.unknownFields[k] = v
		}
	}
	return c
}

// MarkResolved records that a package-runner entry has been rewritten to a
// concrete binary path. The runtime and package fields are cleared so the
// compiled entry serializes the way an already-resolved binary entry does.
func (s *Server) MarkResolved() {
	s.Runtime = RuntimeBinary
	s.runtimeExplicit = false
	s.Package = ""
}

// EnvRefs returns the sorted set of environment variable names the entry
// references: every key of the env block plus every ${VAR} placeholder
// appearing in the command, env values, or URL.
func (s *Server) EnvRefs() []string {
	seen := make(map[string]bool)
	for k := range s.Env {
		seen[k] = true
	}
	scan := func(v string) {
		for _, m := range placeholderRE.FindAllStringSubmatch(v, -1) {
			seen[m[1]] = true
		}
	}
	for _, arg := range s.Command {
		scan(arg)
	}
	for _, v := range s.Env {
		scan(v)
	}
	scan(s.URL)

	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

// MarshalJSON implements json.Marshaler, preserving unknown fields.
// Inferred (non-explicit) runtimes are not written back out.
func (s *Server) MarshalJSON() ([]byte, error) {
	result := make(map[string]any)

	for k, v := range s.unknownFields {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, err
		}
		result[k] = val
	}

	if s.Runtime != "" && s.runtimeExplicit {
		result["runtime"] = s.Runtime
	}
	if len(s.Command) > 0 {
		result["command"] = s.Command
	}
	if s.Package != "" {
		result["package"] = s.Package
	}
	if len(s.Env) > 0 {
		result["env"] = s.Env
	}
	if s.URL != "" {
		result["url"] = s.URL
	}

	return json.Marshal(result)
}

// UnmarshalJSON implements json.Unmarshaler, capturing unknown fields.
func (s *Server) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["runtime"]; ok {
		if err := json.Unmarshal(v, &s.Runtime); err != nil {
			return err
		}
		s.runtimeExplicit = true
		delete(raw, "runtime")
	}
	if v, ok := raw["command"]; ok {
		if err := json.Unmarshal(v, &s.Command); err != nil {
			return err
		}
		delete(raw, "command")
	}
	if v, ok := raw["package"]; ok {
		if err := json.Unmarshal(v, &s.Package); err != nil {
			return err
		}
		delete(raw, "package")
	}
	if v, ok := raw["env"]; ok {
		if err := json.Unmarshal(v, &s.Env); err != nil {
			return err
		}
		delete(raw, "env")
	}
	if v, ok := raw["url"]; ok {
		if err := json.Unmarshal(v, &s.URL); err != nil {
			return err
		}
		delete(raw, "url")
	}

	if len(raw) > 0 {
		s.unknownFields = raw
	}
	return nil
}

// ServersKey is the top-level key holding the server registry, matching the
// document shape consumed by MCP host processes.
const ServersKey = "mcpServers"

// Registry is the typed representation of a server-registry document.
type Registry struct {
	// Servers maps server keys to their launch specs.
	Servers map[string]*Server

	// keys holds server keys in document order, for deterministic
	// collection and reporting.
	keys []string

	// unknownFields stores top-level fields other than the server map.
	unknownFields map[string]json.RawMessage
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		Servers: make(map[string]*Server),
	}
}

// Keys returns the server keys in document order.
func (r *Registry) Keys() []string {
	return r.keys
}

// Get returns the server for the given key, or nil.
func (r *Registry) Get(key string) *Server {
	return r.Servers[key]
}

// Add inserts a server under the given key, preserving insertion order.
// The server's Name is set to the key.
func (r *Registry) Add(key string, s *Server) {
	if _, exists := r.Servers[key]; !exists {
		r.keys = append(r.keys, key)
	}
	s.Name = key
	r.Servers[key] = s
}

// SetUnknownFields attaches top-level document fields to carry through
// emission unchanged.
func (r *Registry) SetUnknownFields(fields map[string]json.RawMessage) {
	r.unknownFields = fields
}

// UnknownFields returns the preserved top-level document fields.
func (r *Registry) UnknownFields() map[string]json.RawMessage {
	return r.unknownFields
}

// MarshalJSON implements json.Marshaler. Server keys are emitted in sorted
// order (encoding/json map behavior), which keeps output stable across
// compiles of the same registry.
func (r *Registry) MarshalJSON() ([]byte, error) {
	result := make(map[string]any)

	for k, v := range r.unknownFields {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, err
		}
		result[k] = val
	}

	result[ServersKey] = r.Servers
	return json.Marshal(result)
}

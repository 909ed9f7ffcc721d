package secrets

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// MatchMode controls how sentinel patterns are compared against values.
type MatchMode string

const (
	// MatchContains treats a value as a sentinel if it contains any pattern.
	// This is the default.
	MatchContains MatchMode = "contains"

	// MatchExact treats a value as a sentinel only on exact pattern match.
	MatchExact MatchMode = "exact"

	// MatchPrefix treats a value as a sentinel if it starts with any pattern.
	MatchPrefix MatchMode = "prefix"
)

// Valid reports whether the mode is recognized.
func (m MatchMode) Valid() bool {
	switch m {
	case MatchContains, MatchExact, MatchPrefix:
		return true
	}
	return false
}

// DefaultSentinels are the values that mark a template field as not yet
// filled in. The prefixed variants matter for exact and prefix matching.
var DefaultSentinels = []string{
	"REPLACE_ME",
	"sbp_REPLACE_ME",
	"tvly-REPLACE_ME",
	"m0-REPLACE_ME",
	"github_pat_REPLACE_ME",
	"xoxb-REPLACE_ME",
	"T0REPLACE_ME",
}

// Store is a read-only view of the active secret values, layered from the
// process environment and an optional dotenv file. The process environment
// always wins over the file.
type Store struct {
	values    map[string]string
	sentinels []string
	mode      MatchMode
}

// Option configures a Store.
type Option func(*Store)

// WithSentinels replaces the default sentinel pattern list.
func WithSentinels(patterns []string) Option {
	return func(s *Store) {
		if len(patterns) > 0 {
			s.sentinels = patterns
		}
	}
}

// WithMatchMode sets how sentinel patterns are matched.
func WithMatchMode(mode MatchMode) Option {
	return func(s *Store) {
		if mode.Valid() {
			s.mode = mode
		}
	}
}

// New creates a Store over the given values.
func New(values map[string]string, opts ...Option) *Store {
	s := &Store{
		values:    make(map[string]string, len(values)),
		sentinels: DefaultSentinels,
		mode:      MatchContains,
	}
	for k, v := range values {
		s.values[k] = v
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromEnviron creates a Store over the current process environment.
func FromEnviron(opts ...Option) *Store {
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			values[k] = v
		}
	}
	return New(values, opts...)
}

// LoadDotenv merges variables from a NAME=value file into the store without
// overriding values already present. A missing file is not an error: the
// dotenv file is an optional convenience over the real environment.
func (s *Store) LoadDotenv(path string) error {
	fileVars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "loading %s", path)
	}
	for k, v := range fileVars {
		if _, exists := s.values[k]; !exists {
			s.values[k] = v
		}
	}
	return nil
}

// Lookup returns the raw value for a name and whether it is present.
func (s *Store) Lookup(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// IsSentinel reports whether a value is a placeholder sentinel under the
// configured match mode.
func (s *Store) IsSentinel(value string) bool {
	for _, pattern := range s.sentinels {
		switch s.mode {
		case MatchExact:
			if value == pattern {
				return true
			}
		case MatchPrefix:
			if strings.HasPrefix(value, pattern) {
				return true
			}
		default:
			if strings.Contains(value, pattern) {
				return true
			}
		}
	}
	return false
}

// Resolved reports whether a name is set to a non-empty, non-sentinel value.
func (s *Store) Resolved(name string) bool {
	v, ok := s.values[name]
	return ok && v != "" && !s.IsSentinel(v)
}

// NameForValue returns the name of a declared reference whose live value
// equals the given literal. This is the catalogue-first lookup the redactor
// uses to map a leaked literal back to its symbolic name. Candidates are
// checked in order; empty and sentinel values never match.
func (s *Store) NameForValue(literal string, candidates []string) (string, bool) {
	if literal == "" {
		return "", false
	}
	for _, name := range candidates {
		if v, ok := s.values[name]; ok && v == literal && !s.IsSentinel(v) {
			return name, true
		}
	}
	return "", false
}

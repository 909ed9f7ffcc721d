package rewrite

import (
	"log/slog"
	"strings"

	"github.com/cipherhq/mcpc/internal/manifest"
	"github.com/cipherhq/mcpc/internal/secrets"
)

// SecretKeyPatterns contains substrings that indicate an env key carries
// sensitive data. Keys are matched case-insensitively.
var SecretKeyPatterns = []string{
	"TOKEN",
	"KEY",
	"SECRET",
	"PASSWORD",
	"AUTH",
	"CREDENTIAL",
	"API_KEY",
	"PRIVATE",
}

// TokenPrefixes contains known API token prefixes that mark a value as
// sensitive regardless of where it appears.
var TokenPrefixes = []string{
	"ghp_",        // GitHub personal access token
	"gho_",        // GitHub OAuth token
	"ghu_",        // GitHub user-to-server token
	"ghs_",        // GitHub server-to-server token
	"ghr_",        // GitHub refresh token
	"github_pat_", // GitHub fine-grained token
	"sk-",         // OpenAI/Anthropic keys
	"AKIA",        // AWS access key prefix
	"xoxb-",       // Slack bot token
	"xoxp-",       // Slack user token
	"xoxa-",       // Slack app token
	"xoxr-",       // Slack refresh token
	"sbp_",        // Supabase personal token
	"tvly-",       // Tavily API key
}

// RedactedPlaceholder replaces a literal that looks like a secret but maps
// to no declared reference. The entry is flagged in the log; a broken
// placeholder beats a leaked credential.
const RedactedPlaceholder = "${REDACTED}"

// Redactor replaces literal secret values with symbolic placeholders.
// Classification is catalogue-first: a literal equal to the live value of
// one of the entry's declared references is rewritten to that reference;
// structural heuristics only catch what the catalogue cannot explain.
type Redactor struct {
	store *secrets.Store
	log   *slog.Logger
}

// NewRedactor creates a Redactor backed by the given secret store.
func NewRedactor(store *secrets.Store, log *slog.Logger) *Redactor {
	return &Redactor{
		store: store,
		log:   log,
	}
}

// redactEnv rewrites the entry's env block in place: every value that is
// not already a ${VAR} placeholder is replaced by the placeholder of its
// own key. The compiled manifest then never embeds a literal env value.
func (r *Redactor) redactEnv(s *manifest.Server) {
	for k, v := range s.Env {
		if manifest.PlaceholderName(v) != "" {
			continue
		}
		if SensitiveKey(k) || HasTokenPrefix(v) {
			r.log.Debug("redacted literal env value", "server", s.Name, "var", k)
		}
		s.Env[k] = manifest.Placeholder(k)
	}
}

// redactArgs rewrites literal secret values appearing in the command
// sequence and URL.
func (r *Redactor) redactArgs(s *manifest.Server) {
	refs := s.EnvRefs()
	for idx, arg := range s.Command {
		s.Command[idx] = r.redactValue(s.Name, arg, refs)
	}
	s.URL = r.redactValue(s.Name, s.URL, refs)
}

// redactValue classifies one literal. Existing placeholders pass through
// untouched; catalogue hits become their symbolic name; heuristic hits with
// no catalogue name are conservatively replaced and flagged.
func (r *Redactor) redactValue(server, value string, refs []string) string {
	if value == "" || manifest.PlaceholderName(value) != "" {
		return value
	}
	if name, ok := r.store.NameForValue(value, refs); ok {
		return manifest.Placeholder(name)
	}
	if HasTokenPrefix(value) {
		r.log.Warn("redacted unclassifiable secret-like literal",
			"server", server, "prefix", value[:min(8, len(value))])
		return RedactedPlaceholder
	}
	return value
}

// SensitiveKey reports whether an env key name suggests it holds a secret.
func SensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, pattern := range SecretKeyPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// HasTokenPrefix reports whether a value starts with a known token prefix.
func HasTokenPrefix(value string) bool {
	for _, prefix := range TokenPrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherhq/mcpc/internal/secrets"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	Init()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Input != DefaultInput {
		t.Errorf("Input = %q, want %q", cfg.Input, DefaultInput)
	}
	if cfg.Output != DefaultOutput {
		t.Errorf("Output = %q, want %q", cfg.Output, DefaultOutput)
	}
	if cfg.EnvDir != DefaultEnvDir {
		t.Errorf("EnvDir = %q, want %q", cfg.EnvDir, DefaultEnvDir)
	}
	if cfg.MatchMode() != secrets.MatchContains {
		t.Errorf("MatchMode() = %q", cfg.MatchMode())
	}
	if len(cfg.Sentinels) == 0 {
		t.Error("Sentinels should default to the built-in catalogue")
	}
	if cfg.InstallTimeout != 10*time.Minute {
		t.Errorf("InstallTimeout = %v", cfg.InstallTimeout)
	}
}

func TestLoad_File(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
input: registry.json
output: out/compiled.json
sentinel_match: exact
sentinels:
  - CHANGE_ME
install_timeout: 2m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "registry.json", cfg.Input)
	assert.Equal(t, "out/compiled.json", cfg.Output)
	assert.Equal(t, secrets.MatchExact, cfg.MatchMode())
	assert.Equal(t, []string{"CHANGE_ME"}, cfg.Sentinels)
	assert.Equal(t, 2*time.Minute, cfg.InstallTimeout)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	resetViper(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("an explicitly named missing config file should be an error")
	}
}

func TestLoad_InvalidSentinelMatch(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sentinel_match: regex\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("invalid sentinel_match should be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty is fine", Config{}, false},
		{"valid mode", Config{SentinelMatch: "prefix"}, false},
		{"invalid mode", Config{SentinelMatch: "glob"}, true},
		{"negative timeout", Config{InstallTimeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

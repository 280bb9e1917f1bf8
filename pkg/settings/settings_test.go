package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s, err := Defaults()
	require.NoError(t, err)
	require.Equal(t, BackendFile, s.Storage.Backend)
	require.Equal(t, "devchat-data", s.Storage.Slot)
	require.Equal(t, ProviderClaude, s.Provider.Name)
	require.Equal(t, "claude-3-5-haiku-latest", s.Provider.Model)
	require.Equal(t, 1024, s.Provider.MaxTokens)
	require.Contains(t, s.SystemPrompt, "segundo cérebro")
	require.NoError(t, s.Validate())
}

func TestLoad_DefaultsAndEnvironment(t *testing.T) {
	t.Setenv("DEVCHAT_PROVIDER_NAME", "Echo")
	t.Setenv("DEVCHAT_STORAGE_BACKEND", "memory")
	t.Setenv("DEVCHAT_PROVIDER_MAX_TOKENS", "42")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	v := viper.New()
	require.NoError(t, BindViper(v))
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, ProviderEcho, s.Provider.Name)
	require.Equal(t, BackendMemory, s.Storage.Backend)
	require.Equal(t, 42, s.Provider.MaxTokens)
	require.Equal(t, "sk-test", s.Provider.APIKey)
	require.Equal(t, 20*time.Millisecond, s.Provider.EchoDelay)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sqlite\n  path: /tmp/x.db\nprovider:\n  name: openai\n  model: gpt-4o-mini\n"), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	require.NoError(t, BindViper(v))
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, BackendSQLite, s.Storage.Backend)
	require.Equal(t, "gpt-4o-mini", s.Provider.Model)
	p, err := s.StoragePath()
	require.NoError(t, err)
	require.Equal(t, "/tmp/x.db", p)
	require.Equal(t, "devchat-data", s.Storage.Slot, "keys missing from the file keep their default")
}

func TestLoad_EnvironmentOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  name: openai\n"), 0o600))
	t.Setenv("DEVCHAT_PROVIDER_NAME", "echo")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	require.NoError(t, BindViper(v))
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, ProviderEcho, s.Provider.Name)
}

func TestEnvName(t *testing.T) {
	require.Equal(t, "DEVCHAT_PROVIDER_ECHO_DELAY", EnvName("provider.echo-delay"))
	require.Equal(t, "DEVCHAT_STORAGE_SLOT", EnvName("storage.slot"))
}

func TestValidate(t *testing.T) {
	base, err := Defaults()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"backend", func(s *Settings) { s.Storage.Backend = "s3" }},
		{"slot", func(s *Settings) { s.Storage.Slot = " " }},
		{"provider", func(s *Settings) { s.Provider.Name = "gemini" }},
		{"max tokens", func(s *Settings) { s.Provider.MaxTokens = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base.Clone()
			tt.mutate(s)
			require.Error(t, s.Validate())
			require.NoError(t, base.Validate())
		})
	}
}

func TestStoragePath_Default(t *testing.T) {
	t.Setenv("HOME", "/home/dev")
	s, err := Defaults()
	require.NoError(t, err)
	p, err := s.StoragePath()
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.devchat", p)

	s.Storage.Backend = BackendSQLite
	p, err = s.StoragePath()
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.devchat/devchat.db", p)
}

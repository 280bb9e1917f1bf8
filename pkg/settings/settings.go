// Package settings holds the configuration of devchat: where conversations
// are stored and which model answers.
package settings

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const EnvPrefix = "DEVCHAT"

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

const (
	ProviderClaude    = "claude"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderEcho      = "echo"
)

type StorageSettings struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Path is the directory of the file backend or the database file of the
	// sqlite backend. Empty means ~/.devchat.
	Path string `yaml:"path" mapstructure:"path"`
	Slot string `yaml:"slot" mapstructure:"slot"`
}

type ProviderSettings struct {
	Name      string        `yaml:"name" mapstructure:"name"`
	Model     string        `yaml:"model" mapstructure:"model"`
	APIKey    string        `yaml:"api-key" mapstructure:"api-key"`
	BaseURL   string        `yaml:"base-url" mapstructure:"base-url"`
	MaxTokens int           `yaml:"max-tokens" mapstructure:"max-tokens"`
	EchoDelay time.Duration `yaml:"echo-delay" mapstructure:"echo-delay"`
	// AllowLocal permits http and local network base URLs.
	AllowLocal bool `yaml:"allow-local" mapstructure:"allow-local"`
}

type Settings struct {
	Storage      StorageSettings  `yaml:"storage" mapstructure:"storage"`
	Provider     ProviderSettings `yaml:"provider" mapstructure:"provider"`
	SystemPrompt string           `yaml:"system-prompt" mapstructure:"system-prompt"`
}

// Defaults returns the embedded default settings.
func Defaults() (*Settings, error) {
	s := &Settings{}
	if err := yaml.Unmarshal(defaultsYAML, s); err != nil {
		return nil, errors.Wrap(err, "could not parse default settings")
	}
	return s, nil
}

// BindViper registers every default value on v and binds each key to its
// DEVCHAT_ environment variable, e.g. provider.echo-delay to
// DEVCHAT_PROVIDER_ECHO_DELAY. The API key also falls back to
// ANTHROPIC_API_KEY and OPENAI_API_KEY. Config files and flags are bound by
// the command line.
func BindViper(v *viper.Viper) error {
	m := map[string]interface{}{}
	if err := yaml.Unmarshal(defaultsYAML, &m); err != nil {
		return errors.Wrap(err, "could not parse default settings")
	}
	for _, key := range setDefaults(v, "", m) {
		names := []string{EnvName(key)}
		if key == "provider.api-key" {
			names = append(names, "ANTHROPIC_API_KEY", "OPENAI_API_KEY")
		}
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return errors.Wrapf(err, "could not bind environment of %s", key)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, prefix string, m map[string]interface{}) []string {
	var keys []string
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			keys = append(keys, setDefaults(v, key, sub)...)
			continue
		}
		v.SetDefault(key, val)
		keys = append(keys, key)
	}
	return keys
}

// EnvName is the environment variable of a settings key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(envReplacer.Replace(key))
}

var envReplacer = strings.NewReplacer(".", "_", "-", "_")

// Load decodes the settings held by v and validates them.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	s.Provider.Name = strings.ToLower(strings.TrimSpace(s.Provider.Name))
	s.Storage.Backend = strings.ToLower(strings.TrimSpace(s.Storage.Backend))
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	switch s.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return errors.Errorf("unknown storage backend %q", s.Storage.Backend)
	}
	if strings.TrimSpace(s.Storage.Slot) == "" {
		return errors.New("storage slot cannot be empty")
	}

	switch s.Provider.Name {
	case ProviderClaude, ProviderAnthropic, ProviderOpenAI, ProviderEcho:
	default:
		return errors.Errorf("unknown provider %q", s.Provider.Name)
	}
	if s.Provider.MaxTokens < 0 {
		return errors.New("max tokens cannot be negative")
	}
	return nil
}

// StoragePath resolves the storage path of the configured backend.
func (s *Settings) StoragePath() (string, error) {
	if s.Storage.Path != "" {
		return s.Storage.Path, nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	if s.Storage.Backend == BackendSQLite {
		return filepath.Join(dir, "devchat.db"), nil
	}
	return dir, nil
}

// DefaultDir is ~/.devchat.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not find home directory")
	}
	return filepath.Join(home, ".devchat"), nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

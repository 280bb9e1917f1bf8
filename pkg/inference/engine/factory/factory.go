// Package factory creates the Streamer matching the configured provider.
package factory

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/devchat/pkg/inference/engine"
	"github.com/go-go-golems/devchat/pkg/security"
	"github.com/go-go-golems/devchat/pkg/settings"
	"github.com/go-go-golems/devchat/pkg/steps/ai/claude"
	"github.com/go-go-golems/devchat/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/devchat/pkg/steps/ai/echo"
	"github.com/go-go-golems/devchat/pkg/steps/ai/openai"
)

// StreamerFactory creates streamers based on provider settings, so that
// callers do not need to know the provider implementations.
type StreamerFactory interface {
	CreateStreamer(settings *settings.ProviderSettings) (engine.Streamer, error)
	SupportedProviders() []string
	DefaultProvider() string
}

type StandardStreamerFactory struct{}

var _ StreamerFactory = (*StandardStreamerFactory)(nil)

func NewStandardStreamerFactory() *StandardStreamerFactory {
	return &StandardStreamerFactory{}
}

// CreateStreamer creates a Streamer for settings.Name, falling back to the
// default provider when it is empty.
func (f *StandardStreamerFactory) CreateStreamer(ps *settings.ProviderSettings) (engine.Streamer, error) {
	if ps == nil {
		return nil, errors.New("provider settings cannot be nil")
	}

	provider := strings.ToLower(ps.Name)
	if provider == "" {
		provider = f.DefaultProvider()
	}

	if err := f.validateSettings(ps, provider); err != nil {
		return nil, errors.Wrapf(err, "invalid settings for provider %s", provider)
	}

	switch provider {
	case settings.ProviderClaude, settings.ProviderAnthropic:
		return claude.NewStreamer(api.NewClient(ps.APIKey, ps.BaseURL), ps.Model, ps.MaxTokens), nil

	case settings.ProviderOpenAI:
		return openai.NewStreamer(openai.MakeClient(ps.APIKey, ps.BaseURL), ps.Model, ps.MaxTokens), nil

	case settings.ProviderEcho:
		s := echo.NewStreamer()
		s.TimePerCharacter = ps.EchoDelay
		return s, nil

	default:
		supported := strings.Join(f.SupportedProviders(), ", ")
		return nil, errors.Errorf("unsupported provider %s. Supported providers: %s", provider, supported)
	}
}

func (f *StandardStreamerFactory) SupportedProviders() []string {
	return []string{
		settings.ProviderClaude,
		settings.ProviderAnthropic, // alias for claude
		settings.ProviderOpenAI,
		settings.ProviderEcho,
	}
}

func (f *StandardStreamerFactory) DefaultProvider() string {
	return settings.ProviderClaude
}

func (f *StandardStreamerFactory) validateSettings(ps *settings.ProviderSettings, provider string) error {
	switch provider {
	case settings.ProviderClaude, settings.ProviderAnthropic, settings.ProviderOpenAI:
		if ps.APIKey == "" {
			return errors.New("missing API key")
		}
		if ps.Model == "" {
			return errors.New("missing model")
		}
		if ps.BaseURL != "" {
			if err := security.ValidateBaseURL(ps.BaseURL, ps.AllowLocal); err != nil {
				return err
			}
		}
	case settings.ProviderEcho:
	}
	return nil
}

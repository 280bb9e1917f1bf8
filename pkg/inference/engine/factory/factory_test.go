package factory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/devchat/pkg/settings"
	"github.com/go-go-golems/devchat/pkg/steps/ai/claude"
	"github.com/go-go-golems/devchat/pkg/steps/ai/echo"
	"github.com/go-go-golems/devchat/pkg/steps/ai/openai"
)

func TestCreateStreamer(t *testing.T) {
	f := NewStandardStreamerFactory()

	tests := []struct {
		name     string
		settings settings.ProviderSettings
		want     interface{}
	}{
		{"claude", settings.ProviderSettings{Name: "claude", Model: "m", APIKey: "k"}, &claude.Streamer{}},
		{"anthropic alias", settings.ProviderSettings{Name: "Anthropic", Model: "m", APIKey: "k"}, &claude.Streamer{}},
		{"default", settings.ProviderSettings{Model: "m", APIKey: "k"}, &claude.Streamer{}},
		{"openai", settings.ProviderSettings{Name: "openai", Model: "m", APIKey: "k"}, &openai.Streamer{}},
		{"echo", settings.ProviderSettings{Name: "echo"}, &echo.Streamer{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := f.CreateStreamer(&tt.settings)
			require.NoError(t, err)
			require.IsType(t, tt.want, s)
		})
	}
}

func TestCreateStreamer_Invalid(t *testing.T) {
	f := NewStandardStreamerFactory()

	_, err := f.CreateStreamer(nil)
	require.Error(t, err)
	_, err = f.CreateStreamer(&settings.ProviderSettings{Name: "claude", Model: "m"})
	require.ErrorContains(t, err, "missing API key")
	_, err = f.CreateStreamer(&settings.ProviderSettings{Name: "openai", APIKey: "k"})
	require.ErrorContains(t, err, "missing model")
	_, err = f.CreateStreamer(&settings.ProviderSettings{Name: "gemini"})
	require.ErrorContains(t, err, "unsupported provider gemini")
}

func TestCreateStreamer_BaseURL(t *testing.T) {
	f := NewStandardStreamerFactory()

	_, err := f.CreateStreamer(&settings.ProviderSettings{Name: "openai", Model: "m", APIKey: "k", BaseURL: "http://localhost:11434/v1"})
	require.Error(t, err)

	s, err := f.CreateStreamer(&settings.ProviderSettings{Name: "openai", Model: "m", APIKey: "k", BaseURL: "http://localhost:11434/v1", AllowLocal: true})
	require.NoError(t, err)
	require.NotNil(t, s)

	_, err = f.CreateStreamer(&settings.ProviderSettings{Name: "claude", Model: "m", APIKey: "k", BaseURL: "https://proxy.example.com"})
	require.NoError(t, err)
}

package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		url        string
		allowLocal bool
		ok         bool
	}{
		{"https://api.anthropic.com", false, true},
		{"https://api.openai.com/v1", false, true},
		{"https://93.184.216.34/v1", false, true},
		{"http://api.openai.com/v1", false, false},
		{"ftp://api.openai.com", false, false},
		{"https://", false, false},
		{"https://localhost:8080", false, false},
		{"https://proxy.local", false, false},
		{"https://127.0.0.1", false, false},
		{"https://10.0.0.5", false, false},
		{"https://[::ffff:192.168.1.1]", false, false},
		{"https://[fe80::1%25eth0]:8080", false, false},
		{"https://0.0.0.0", false, false},
		{"http://localhost:11434/v1", true, true},
		{"http://192.168.1.10:8080", true, true},
		{"://bad", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateBaseURL(tt.url, tt.allowLocal)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

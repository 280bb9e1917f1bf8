package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/devchat/pkg/conversation"
)

func TestTextHistory(t *testing.T) {
	msgs := []conversation.Message{
		conversation.NewTextMessage(conversation.RoleUser, "why redux?"),
		conversation.NewMessage(conversation.RoleAssistant, conversation.Part{Type: "step-start"}),
		conversation.NewMessage(conversation.RoleAssistant,
			conversation.NewTextPart("Redux "),
			conversation.Part{Type: "step-start"},
			conversation.NewTextPart("adds...")),
		conversation.NewTextMessage(conversation.RoleUser, "   "),
	}

	require.Equal(t, []TextMessage{
		{Role: conversation.RoleUser, Content: "why redux?"},
		{Role: conversation.RoleAssistant, Content: "Redux adds..."},
	}, TextHistory(msgs))
}

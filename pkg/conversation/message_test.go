package conversation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPart_UnknownTypeSurvives(t *testing.T) {
	in := `{"type":"source-url","url":"https://go.dev","title":"Go"}`

	var p Part
	require.NoError(t, json.Unmarshal([]byte(in), &p))
	require.Equal(t, PartType("source-url"), p.Type)
	require.False(t, p.IsText())
	require.Len(t, p.Extra, 2)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, in, string(out))
}

func TestPart_TextField(t *testing.T) {
	var p Part
	require.NoError(t, json.Unmarshal([]byte(`{"type":"text","text":"hello"}`), &p))
	require.True(t, p.IsText())
	require.Equal(t, "hello", p.Text)
	require.Nil(t, p.Extra)

	out, err := json.Marshal(NewTextPart(""))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"text","text":""}`, string(out))
}

func TestPart_Invalid(t *testing.T) {
	for _, in := range []string{`{}`, `{"type":""}`, `{"type":3}`, `{"type":"text","text":1}`, `"text"`} {
		var p Part
		require.Error(t, json.Unmarshal([]byte(in), &p), in)
	}
}

func TestMessage_TextAndAppend(t *testing.T) {
	m := NewMessage(RoleAssistant)
	require.NotEmpty(t, m.ID)
	require.NotNil(t, m.Parts)
	require.Equal(t, "", m.Text())

	m.AppendText("Redux")
	m.AppendText(" adds")
	require.Len(t, m.Parts, 1)
	require.Equal(t, "Redux adds", m.Text())

	m.Parts = append(m.Parts, Part{Type: "step-start"})
	m.AppendText("...")
	require.Len(t, m.Parts, 3)
	require.Equal(t, "Redux adds...", m.Text())
}

func TestRole_IsValid(t *testing.T) {
	require.True(t, RoleUser.IsValid())
	require.True(t, RoleAssistant.IsValid())
	require.True(t, RoleSystem.IsValid())
	require.False(t, Role("tool").IsValid())
	require.False(t, Role("").IsValid())
}

package conversation

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleAssistant, RoleUser:
		return true
	default:
		return false
	}
}

type PartType string

const (
	PartTypeText PartType = "text"
)

// Part is one typed fragment of a message body.
//
// Only text parts are interpreted. Every other field of a part, and parts of
// unknown types, are kept in Extra so that they survive a load/save cycle.
type Part struct {
	Type  PartType
	Text  string
	Extra map[string]json.RawMessage
}

func NewTextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

func (p Part) IsText() bool {
	return p.Type == PartTypeText
}

func (p Part) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}

	typ, err := json.Marshal(string(p.Type))
	if err != nil {
		return nil, err
	}
	out["type"] = typ

	if p.IsText() {
		text, err := json.Marshal(p.Text)
		if err != nil {
			return nil, err
		}
		out["text"] = text
	}

	return json.Marshal(out)
}

func (p *Part) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	rawType, ok := fields["type"]
	if !ok {
		return errors.New("message part has no type")
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return errors.Wrap(err, "message part type")
	}
	if typ == "" {
		return errors.New("message part has an empty type")
	}
	delete(fields, "type")

	p.Type = PartType(typ)
	p.Text = ""
	if p.IsText() {
		if rawText, ok := fields["text"]; ok {
			if err := json.Unmarshal(rawText, &p.Text); err != nil {
				return errors.Wrap(err, "text part")
			}
			delete(fields, "text")
		}
	}

	if len(fields) == 0 {
		fields = nil
	}
	p.Extra = fields
	return nil
}

// Message is a single chat turn.
//
// Messages are opaque to the store: it keeps them in order and round-trips
// them through persistence, it never looks into them.
type Message struct {
	ID       string          `json:"id"`
	Role     Role            `json:"role"`
	Parts    []Part          `json:"parts"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func NewMessage(role Role, parts ...Part) Message {
	if parts == nil {
		parts = []Part{}
	}
	return Message{
		ID:    uuid.NewString(),
		Role:  role,
		Parts: parts,
	}
}

func NewTextMessage(role Role, text string) Message {
	return NewMessage(role, NewTextPart(text))
}

// Text concatenates the text parts of the message, in order.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.IsText() {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// AppendText appends text to the trailing text part, creating one if the
// message does not end in a text part.
func (m *Message) AppendText(text string) {
	if n := len(m.Parts); n > 0 && m.Parts[n-1].IsText() {
		m.Parts[n-1].Text += text
		return
	}
	m.Parts = append(m.Parts, NewTextPart(text))
}

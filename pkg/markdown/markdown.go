// Package markdown turns conversations into markdown transcripts and renders
// them for terminals and browsers.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/go-go-golems/devchat/pkg/conversation"
)

type CodeBlock struct {
	Code     string
	Language string
}

// Transcript renders a conversation as markdown, one section per message.
// Messages without text are skipped.
func Transcript(c conversation.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", c.Title)
	for _, m := range c.Messages {
		t := strings.TrimSpace(m.Text())
		if t == "" {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", roleTitle(m.Role), t)
	}
	return b.String()
}

func roleTitle(r conversation.Role) string {
	switch r {
	case conversation.RoleUser:
		return "User"
	case conversation.RoleAssistant:
		return "Assistant"
	case conversation.RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// ExtractCodeBlocks returns the fenced code blocks of a markdown text. If
// languages are given, only blocks in one of them are returned.
func ExtractCodeBlocks(markdownText string, languages ...string) ([]CodeBlock, error) {
	wanted := map[string]bool{}
	for _, l := range languages {
		wanted[strings.ToLower(l)] = true
	}

	var blocks []CodeBlock
	source := []byte(markdownText)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		cb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(cb.Language(source)))
		if len(wanted) > 0 && !wanted[lang] {
			return ast.WalkSkipChildren, nil
		}
		code := ""
		if cb.Lines().Len() > 0 {
			start := cb.Lines().At(0).Start
			stop := cb.Lines().At(cb.Lines().Len() - 1).Stop
			code = string(source[start:stop])
		}
		blocks = append(blocks, CodeBlock{Code: code, Language: lang})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// ToHTML converts markdown to an HTML fragment, with GitHub flavored tables
// and strikethrough.
func ToHTML(markdownText string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdownText), &buf); err != nil {
		return "", errors.Wrap(err, "could not convert markdown")
	}
	return buf.String(), nil
}

// HTMLPage wraps the HTML rendering of a conversation in a standalone page.
func HTMLPage(c conversation.Conversation) (string, error) {
	body, err := ToHTML(Transcript(c))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", htmlEscape(c.Title))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

func htmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

// RenderTerminal styles markdown for a terminal. style is a glamour style
// name such as "dark", "light" or "notty".
func RenderTerminal(markdownText string, style string) (string, error) {
	if style == "" {
		style = "dark"
	}
	styled, err := glamour.Render(markdownText, style)
	if err != nil {
		return "", errors.Wrap(err, "could not render markdown")
	}
	return styled, nil
}

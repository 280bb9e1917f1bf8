package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// StepPrinterFunc returns a router handler that writes streamed text to w as
// it arrives. name, when set, is printed once before the first delta.
func StepPrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	isFirst := true
	lastText := ""

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch p_ := e.(type) {
		case *EventPartialCompletionStart:
			isFirst = true
			lastText = ""

		case *EventPartialCompletion:
			if isFirst && name != "" {
				if _, err := fmt.Fprintf(w, "%s: ", name); err != nil {
					return err
				}
			}
			isFirst = false
			lastText = p_.Completion
			if _, err := fmt.Fprintf(w, "%s", p_.Delta); err != nil {
				return err
			}

		case *EventFinal:
			if !isFirst && !strings.HasSuffix(lastText, "\n") {
				if _, err := fmt.Fprintf(w, "\n"); err != nil {
					return err
				}
			}

		case *EventInterrupt:
			if !isFirst && !strings.HasSuffix(lastText, "\n") {
				if _, err := fmt.Fprintf(w, "\n"); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "[interrupted]\n"); err != nil {
				return err
			}

		case *EventError:
			if !isFirst && !strings.HasSuffix(lastText, "\n") {
				if _, err := fmt.Fprintf(w, "\n"); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "[error] %s\n", p_.ErrorString); err != nil {
				return err
			}
		}

		return nil
	}
}

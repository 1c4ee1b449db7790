// Package history defines the conversation log and the contract for its
// durable storage.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flemzord/confidant/internal/provider"
)

// Turn is one message of the conversation.
type Turn struct {
	Role    provider.MessageRole `json:"role"`
	Content string               `json:"content"`
}

// User returns a user turn.
func User(content string) Turn {
	return Turn{Role: provider.MessageRoleUser, Content: content}
}

// Assistant returns an assistant turn.
func Assistant(content string) Turn {
	return Turn{Role: provider.MessageRoleAssistant, Content: content}
}

// Message converts t to the provider message type.
func (t Turn) Message() provider.LLMMessage {
	return provider.LLMMessage{Role: t.Role, Content: t.Content}
}

// History is the ordered sequence of turns, oldest first.
type History []Turn

// Last returns at most the n most recent turns, in chronological order.
// n <= 0 returns nil.
func (h History) Last(n int) History {
	if n <= 0 || len(h) == 0 {
		return nil
	}
	if n > len(h) {
		n = len(h)
	}
	return h[len(h)-n:].Clone()
}

// Clone returns a copy that shares no backing array with h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Append adds turns to the end of the history.
func (h *History) Append(turns ...Turn) {
	*h = append(*h, turns...)
}

// Truncate drops everything after the first n turns.
func (h *History) Truncate(n int) {
	if n < len(*h) {
		*h = (*h)[:n]
	}
}

// Pairs counts user turns immediately followed by an assistant turn.
func (h History) Pairs() int {
	n := 0
	for i := 0; i+1 < len(h); i++ {
		if h[i].Role == provider.MessageRoleUser && h[i+1].Role == provider.MessageRoleAssistant {
			n++
			i++
		}
	}
	return n
}

// Messages converts the history to provider messages.
func (h History) Messages() []provider.LLMMessage {
	out := make([]provider.LLMMessage, len(h))
	for i, t := range h {
		out[i] = t.Message()
	}
	return out
}

// Validate checks that t has a user or assistant role and non-empty content.
func (t Turn) Validate() error {
	if t.Role != provider.MessageRoleUser && t.Role != provider.MessageRoleAssistant {
		return fmt.Errorf("unexpected role %q", t.Role)
	}
	if t.Content == "" {
		return errors.New("empty content")
	}
	return nil
}

// Sanitize returns the valid turns of h in order, and one error per
// dropped turn.
func (h History) Sanitize() (History, []error) {
	out := make(History, 0, len(h))
	var dropped []error
	for i, t := range h {
		if err := t.Validate(); err != nil {
			dropped = append(dropped, fmt.Errorf("turn %d: %w", i, err))
			continue
		}
		out = append(out, t)
	}
	return out, dropped
}

// Answered returns h without user turns that never got a reply. It is the
// view written to storage.
func (h History) Answered() History {
	out := make(History, 0, len(h))
	for i, t := range h {
		if t.Role == provider.MessageRoleUser &&
			(i+1 == len(h) || h[i+1].Role != provider.MessageRoleAssistant) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Marshal encodes h as an indented JSON array. Non-ASCII text is written
// as-is and an empty history encodes as [].
func Marshal(h History) ([]byte, error) {
	if h == nil {
		h = History{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a JSON array of turns. A document that is not a JSON
// array of turns wraps ErrMalformedResource. Individual turns are not
// checked; see Sanitize.
func Unmarshal(raw []byte) (History, error) {
	var h History
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResource, err)
	}
	return h, nil
}

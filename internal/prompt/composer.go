// Package prompt builds the system prompt from the persona template, the
// user's profile and the most recent turns of the conversation.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flemzord/confidant/internal/history"
	"github.com/flemzord/confidant/internal/profile"
	"github.com/flemzord/confidant/internal/provider"
)

// DefaultWindow is how many recent turns the history section quotes.
const DefaultWindow = 5

// Composer renders system prompts. It holds no mutable state and is safe
// for concurrent use.
type Composer struct {
	tmpl   Template
	window int
}

// NewComposer returns a Composer quoting at most window turns.
// A non-positive window falls back to DefaultWindow.
func NewComposer(tmpl Template, window int) *Composer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Composer{tmpl: tmpl, window: window}
}

// Window returns the number of turns quoted in the history section.
func (c *Composer) Window() int {
	return c.window
}

// Compose returns the system prompt for p and h. It performs no I/O and the
// output depends only on its inputs. Sections are emitted in a fixed order:
// preamble and instructions, profile, history, closing. Empty sections are
// omitted; the preamble is always present.
func (c *Composer) Compose(p profile.Profile, h history.History) string {
	t := c.tmpl
	var b strings.Builder

	b.WriteString(strings.TrimSpace(t.Preamble))
	b.WriteString("\n")

	if len(t.Instructions) > 0 {
		section(&b, t.InstructionsHeading)
		for i, ins := range t.Instructions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, ins)
		}
	}

	if fields := c.profileLines(p); len(fields) > 0 {
		section(&b, t.ProfileHeading)
		for _, f := range fields {
			b.WriteString(f)
			b.WriteString("\n")
		}
	}

	if len(p.Memory) > 0 {
		section(&b, t.MemoryHeading)
		for _, m := range p.Memory {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	if recent := h.Last(c.window); len(recent) > 0 {
		section(&b, t.HistoryHeading)
		for _, turn := range recent {
			fmt.Fprintf(&b, "%s: %s\n", c.roleLabel(turn.Role), turn.Content)
		}
	}

	if closing := strings.TrimSpace(t.Closing); closing != "" {
		b.WriteString("\n")
		b.WriteString(closing)
		b.WriteString("\n")
	}

	return b.String()
}

func (c *Composer) profileLines(p profile.Profile) []string {
	l := c.tmpl.Labels
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add(l.Name, p.Name)
	if p.Age != nil {
		add(l.Age, strconv.Itoa(*p.Age))
	}
	add(l.Profession, p.Profession)
	add(l.Interests, strings.Join(p.Interests, ", "))
	return lines
}

func (c *Composer) roleLabel(role provider.MessageRole) string {
	if role == provider.MessageRoleUser {
		return c.tmpl.Roles.User
	}
	return c.tmpl.Roles.Assistant
}

func section(b *strings.Builder, heading string) {
	b.WriteString("\n")
	if heading != "" {
		fmt.Fprintf(b, "## %s\n", heading)
	}
}

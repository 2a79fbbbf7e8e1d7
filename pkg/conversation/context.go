// Package conversation keeps the rolling, speaker-labelled history of a call
// and turns it into model prompts.
package conversation

import "strings"

const (
	SpeakerUser = "User"
	SpeakerAI   = "AI"
)

// DefaultSystemInstruction frames every prompt sent to the model.
const DefaultSystemInstruction = "You are a helpful AI assistant in a phone conversation. " +
	"Keep responses brief, natural, and conversational (2-3 sentences max). " +
	"Speak like a human would in a phone call."

// DefaultWindow is how many history entries are sent with each prompt.
const DefaultWindow = 5

// Context is an append-only list of "Speaker: text" entries. It is owned by a
// single session and is not safe for concurrent use.
type Context struct {
	entries []string
}

func New() *Context {
	return &Context{}
}

// Append records text under speaker.
func (c *Context) Append(speaker, text string) {
	c.entries = append(c.entries, speaker+": "+text)
}

func (c *Context) AppendUser(text string) { c.Append(SpeakerUser, text) }

func (c *Context) AppendAI(text string) { c.Append(SpeakerAI, text) }

func (c *Context) Len() int { return len(c.entries) }

// Entries returns a copy of the full history.
func (c *Context) Entries() []string {
	out := make([]string, len(c.entries))
	copy(out, c.entries)
	return out
}

// RecentWindow returns a copy of the last n entries in order.
func (c *Context) RecentWindow(n int) []string {
	if n <= 0 {
		return []string{}
	}
	if n > len(c.entries) {
		n = len(c.entries)
	}
	out := make([]string, n)
	copy(out, c.entries[len(c.entries)-n:])
	return out
}

// BuildPrompt joins the system instruction and history entries.
func BuildPrompt(system string, history []string) string {
	return system + "\n\n" + strings.Join(history, "\n")
}

// Prompt builds the next model prompt from the last window entries.
func (c *Context) Prompt(system string, window int) string {
	return BuildPrompt(system, c.RecentWindow(window))
}

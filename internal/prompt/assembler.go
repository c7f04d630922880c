// Package prompt assembles the system text sent with every completion.
package prompt

import (
	"strings"

	"github.com/ent0n29/spectre/internal/memory"
)

// Preamble is the fixed identity text that opens every system prompt.
const Preamble = "You are SPECTRE, an intelligent voice assistant with persistent memory and access to powerful MCP tools. Use any relevant context provided to personalize your responses. Give concise, conversational responses."

const memoryHeader = "\n\nRecent conversation context:\n"

// HistorySource yields the recent messages for a user.
type HistorySource interface {
	RecentContext(userID string, window int) []memory.Message
}

// ToolContext renders tool descriptions relevant to a message.
type ToolContext interface {
	Context(message string) string
}

// Context is the assembled system text split into its fragments.
type Context struct {
	Preamble string
	Memory   string
	Tools    string
}

// System joins the fragments in their fixed order.
func (c Context) System() string {
	return c.Preamble + c.Memory + c.Tools
}

type Assembler struct {
	history HistorySource
	tools   ToolContext
	window  int
}

func NewAssembler(history HistorySource, tools ToolContext, window int) *Assembler {
	if window <= 0 {
		window = memory.DefaultContextWindow
	}
	return &Assembler{history: history, tools: tools, window: window}
}

func (a *Assembler) Build(userID, userMessage string) Context {
	out := Context{Preamble: Preamble}
	if a.history != nil {
		out.Memory = RenderMemory(a.history.RecentContext(userID, a.window))
	}
	if a.tools != nil {
		out.Tools = a.tools.Context(userMessage)
	}
	return out
}

// RenderMemory formats messages as "role: content" lines under a header.
// No messages yields an empty fragment.
func RenderMemory(messages []memory.Message) string {
	if len(messages) == 0 {
		return ""
	}
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = string(m.Role) + ": " + m.Content
	}
	return memoryHeader + strings.Join(lines, "\n")
}

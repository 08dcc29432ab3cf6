package agent

import (
	"strings"

	"github.com/soyeahso/paxxium/internal/llm"
)

// Block delimiters inside the system turn.
const (
	analysisHeader = "***USER ANALYSIS***"
	rememberHeader = "***THINGS TO REMEMBER***"
	blockEnd       = "**************"
)

// BuildSystemPrompt renders the system turn: base prompt, then the user
// analysis block, then the things-to-remember block. Empty blocks keep
// their delimiters so the layout never shifts.
func BuildSystemPrompt(base, analysis, constants string, notes []string) string {
	var b strings.Builder

	b.WriteString(base)
	b.WriteString("\n")

	b.WriteString(analysisHeader)
	b.WriteString("\n")
	b.WriteString(analysis)
	b.WriteString("\n")
	b.WriteString(blockEnd)
	b.WriteString("\n")

	b.WriteString(rememberHeader)
	b.WriteString("\n")
	b.WriteString(constants)
	for i, n := range notes {
		if constants != "" || i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(n)
	}
	b.WriteString("\n")
	b.WriteString(blockEnd)

	return b.String()
}

// Assemble builds the ordered turns of one request: exactly one system
// turn, the windowed history, then exactly one new user turn. A non-empty
// imageURL makes the user turn composite.
func Assemble(system string, history []llm.Message, userText, imageURL string) []llm.Message {
	turns := make([]llm.Message, 0, len(history)+2)
	turns = append(turns, llm.Message{Role: llm.RoleSystem, Content: system})
	turns = append(turns, history...)
	turns = append(turns, llm.Message{Role: llm.RoleUser, Content: userText, ImageURL: imageURL})
	return turns
}

package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jupyter-naas/abi-sub005/core"
)

// Structured replies embed fenced blocks inside plain markdown. An "action"
// block declares a tool the model wants surfaced to the caller, an
// "annotation" block carries reviewer notes. Both are extracted here; the
// turn always ends after parsing, the caller decides what to do with the
// synthetic calls.
var (
	actionBlockRe     = regexp.MustCompile("(?s)```action\\s*\\n(.*?)\\n```")
	annotationBlockRe = regexp.MustCompile("(?s)```annotation\\s*\\n(.*?)\\n```")
)

type actionBlock struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseStructuredReply rewrites a structured model reply into a plain AI
// message: action blocks become synthetic tool calls on the message,
// annotation blocks are appended as markdown quotes, and both block kinds are
// removed from the visible content. Malformed action blocks are left in
// place untouched.
func parseStructuredReply(msg core.Message) core.Message {
	content := msg.Content

	var calls []core.ToolCall
	content = actionBlockRe.ReplaceAllStringFunc(content, func(block string) string {
		sub := actionBlockRe.FindStringSubmatch(block)
		var action actionBlock
		if err := json.Unmarshal([]byte(sub[1]), &action); err != nil || action.Name == "" {
			return block
		}
		args := action.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		calls = append(calls, core.ToolCall{ID: core.NewID(), Name: action.Name, Arguments: args})
		return ""
	})

	var notes []string
	content = annotationBlockRe.ReplaceAllStringFunc(content, func(block string) string {
		sub := annotationBlockRe.FindStringSubmatch(block)
		note := strings.TrimSpace(sub[1])
		if note != "" {
			notes = append(notes, "> "+note)
		}
		return ""
	})

	content = strings.TrimSpace(content)
	if len(notes) > 0 {
		if content != "" {
			content += "\n\n"
		}
		content += strings.Join(notes, "\n")
	}

	parsed := core.NewAIMessage(content)
	parsed.Name = msg.Name
	parsed.ToolCalls = calls
	return parsed
}

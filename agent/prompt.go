package agent

import (
	"fmt"
	"strings"

	"github.com/m4xw311/aiteam/config"
	"github.com/m4xw311/aiteam/logging"
)

// ContinueMarker replaces the user request when the cycle continues on its
// own after tool results.
const ContinueMarker = "[CONTINUE] Continue from your previous output."

// RejectionPrompt is sent on behalf of the user when a change is rejected.
func RejectionPrompt(path string) string {
	return fmt.Sprintf("I rejected the changes to %s. Please review the code and try a different approach.", path)
}

const maxListedFiles = 300

const formattingInstructions = `You are working inside the user's project. You can act on it by writing these tags in your reply:

<read_file path="relative/path" />
    Shows you the file's content in the next turn.
<write_file path="relative/path">
full new file content
</write_file>
    Proposes replacing the whole file. The user reviews the change; wait for the outcome before proposing another write.
<execute_command>shell command</execute_command>
    Starts a command in the project directory. Its output is not returned to you.

Use paths relative to the project root. When the task is finished, reply without any tags.`

// systemPrompt builds the model's system prompt from an agent profile.
func systemPrompt(p config.AgentProfile) string {
	var b strings.Builder
	switch {
	case p.Name != "" && p.Role != "":
		fmt.Fprintf(&b, "You are %s, %s.\n", p.Name, p.Role)
	case p.Name != "":
		fmt.Fprintf(&b, "You are %s.\n", p.Name)
	}
	b.WriteString(p.SystemPrompt)
	return strings.TrimSpace(b.String())
}

// buildPrompt assembles the user content of a model call. An empty request
// means the call is a continuation.
func (c *Controller) buildPrompt(request string) string {
	var b strings.Builder
	b.WriteString(formattingInstructions)
	b.WriteString("\n\n")
	b.WriteString(c.store.RenderContextBlock())

	if c.deps.Tree != nil {
		files, err := c.deps.Tree.Files()
		if err != nil {
			logging.Warn("could not list project files", "error", err)
		} else if len(files) > 0 {
			b.WriteString("\n[PROJECT FILES]\n")
			shown := files
			if len(shown) > maxListedFiles {
				shown = shown[:maxListedFiles]
			}
			for _, f := range shown {
				b.WriteString(f)
				b.WriteString("\n")
			}
			if rest := len(files) - len(shown); rest > 0 {
				fmt.Fprintf(&b, "... and %d more files\n", rest)
			}
		}
	}

	if c.deps.Editor != nil {
		if path, text, ok := c.deps.Editor.OpenFile(); ok {
			fmt.Fprintf(&b, "\n[OPEN FILE: %s]\n%s\n", path, text)
		}
	}

	if request == "" {
		b.WriteString("\n")
		b.WriteString(ContinueMarker)
		b.WriteString("\n")
	} else {
		b.WriteString("\n[USER REQUEST]\n")
		b.WriteString(request)
		b.WriteString("\n")
	}
	return b.String()
}

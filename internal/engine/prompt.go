package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stewardhq/steward/internal/domain"
)

const systemPrompt = `You are an autonomous assistant working through a task backlog.

Work on exactly the task you are given. Use the available actions to read and
update tasks. When you genuinely need a human decision or are missing
information you cannot obtain yourself, call ask_user with a single clear
question. When the task is finished, reply with a short summary instead of
calling an action.`

// TaskPrompt renders the opening user message for a task
func TaskPrompt(task *domain.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\n", task.ID, task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	if len(task.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(task.Tags, ", "))
	}
	if len(task.Links) > 0 {
		keys := make([]string, 0, len(task.Links))
		for k := range task.Links {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nLinked:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, task.Links[k])
		}
	}
	return b.String()
}

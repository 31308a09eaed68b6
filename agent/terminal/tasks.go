package terminal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/session"
)

const taskUsage = "usage: /tasks | /task add <title> | /task start <n> | /task done <n>"

// applyTaskCommand edits the project plan from a /tasks or /task command and
// returns the text to show.
func applyTaskCommand(store *session.Store, input string) (string, error) {
	fields := strings.Fields(input)
	if fields[0] == "/tasks" {
		return formatPlan(store.Plan()), nil
	}
	if len(fields) < 3 {
		return "", errors.New(taskUsage)
	}

	plan := store.Plan()
	switch fields[1] {
	case "add":
		title := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(input, "/task")), "add"))
		plan = append(plan, session.NewTask(title))
	case "start", "done":
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 1 || n > len(plan) {
			return "", errors.New("no task number %s; see /tasks", fields[2])
		}
		if fields[1] == "done" {
			plan[n-1].Status = session.StatusCompleted
			break
		}
		for i := range plan {
			if plan[i].Status == session.StatusActive {
				plan[i].Status = session.StatusPending
			}
		}
		plan[n-1].Status = session.StatusActive
	default:
		return "", errors.New(taskUsage)
	}

	store.SetPlan(plan)
	return formatPlan(plan), nil
}

func formatPlan(plan []session.PlanTask) string {
	if len(plan) == 0 {
		return "No tasks. Add one with /task add <title>."
	}
	var b strings.Builder
	for i, t := range plan {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, t.Status, t.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

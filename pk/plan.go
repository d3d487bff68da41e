package pk

import (
	"fmt"
	"strings"
)

// Walk visits r and everything composed into it, depth first.
// Task bodies are walked too. Returning false from fn skips the children of
// the visited node.
func Walk(r Runnable, fn func(r Runnable, depth int) bool) {
	walk(r, 0, fn)
}

func walk(r Runnable, depth int, fn func(Runnable, int) bool) {
	if r == nil || !fn(r, depth) {
		return
	}
	switch v := r.(type) {
	case *Group:
		for _, child := range v.runnables {
			walk(child, depth+1, fn)
		}
	case *Task:
		walk(v.body, depth+1, fn)
	}
}

// Tasks returns every task reachable from r, in first-seen order.
func Tasks(r Runnable) []*Task {
	seen := make(map[*Task]bool)
	var tasks []*Task
	Walk(r, func(r Runnable, _ int) bool {
		if t, ok := r.(*Task); ok && !seen[t] {
			seen[t] = true
			tasks = append(tasks, t)
		}
		return true
	})
	return tasks
}

// Describe renders the task graph below r as an indented tree.
//
//	build
//	  serial
//	    clean
//	    parallel
//	      styles
//	      scripts
func Describe(r Runnable) string {
	var sb strings.Builder
	Walk(r, func(r Runnable, depth int) bool {
		indent := strings.Repeat("  ", depth)
		switch v := r.(type) {
		case *Task:
			fmt.Fprintf(&sb, "%s%s\n", indent, v.Name())
			// Only descend into a task's body when it composes other tasks.
			_, isGroup := v.body.(*Group)
			return isGroup
		case *Group:
			fmt.Fprintf(&sb, "%s%s\n", indent, v.Kind())
		default:
			fmt.Fprintf(&sb, "%sfunc\n", indent)
		}
		return true
	})
	return sb.String()
}

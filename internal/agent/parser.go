package agent

import (
	"encoding/json"
	"strings"

	"inboxagent/internal/domain"
)

// parseActionItems extracts a task list from LLM output. Models wrap JSON in
// code fences, prefix it with chatter, or return a bare array instead of the
// requested {"tasks":[...]} wrapper; all of those are recovered. Anything
// that still fails to parse yields an empty list: malformed output is a
// content problem, not an error.
func parseActionItems(content string) []domain.ActionItem {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present.
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	// Fast path: try full content as JSON.
	if items, ok := tryParseTasks(content); ok {
		return items
	}

	// Fallback: find JSON boundaries within surrounding text.
	if start, end := findJSONBounds(content); start >= 0 && end > start {
		if items, ok := tryParseTasks(content[start:end]); ok {
			return items
		}
	}

	return []domain.ActionItem{}
}

type rawTask struct {
	Task     string `json:"task"`
	Deadline string `json:"deadline"`
}

// tryParseTasks attempts raw as {"tasks":[...]} or as a bare task array.
func tryParseTasks(raw string) ([]domain.ActionItem, bool) {
	var wrapper struct {
		Tasks []rawTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil {
		return normalizeTasks(wrapper.Tasks), true
	}

	var bare []rawTask
	if err := json.Unmarshal([]byte(raw), &bare); err == nil {
		return normalizeTasks(bare), true
	}

	return nil, false
}

func normalizeTasks(raw []rawTask) []domain.ActionItem {
	items := make([]domain.ActionItem, 0, len(raw))
	for _, t := range raw {
		task := strings.TrimSpace(t.Task)
		if task == "" {
			continue
		}
		deadline := strings.TrimSpace(t.Deadline)
		if deadline == "" {
			deadline = "Not specified"
		}
		items = append(items, domain.ActionItem{Task: task, Deadline: deadline})
	}
	return items
}

// findJSONBounds locates the first top-level JSON object ({}) or array ([])
// in s. Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	var closeChar byte
	if openChar == '{' {
		closeChar = '}'
	} else {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++ // skip escaped character
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

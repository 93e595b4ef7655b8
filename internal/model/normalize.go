package model

import "strings"

// The same field normalizers run on the read path (Normalize) and on the write
// path (TaskCreate.Normalize, TaskUpdate.Normalize).

func NormalizePriority(p Priority) Priority {
	value := Priority(strings.ToLower(strings.TrimSpace(string(p))))
	for _, known := range Priorities {
		if value == known {
			return known
		}
	}
	return PriorityLow
}

func NormalizeRecurrence(r Recurrence) Recurrence {
	value := Recurrence(strings.ToLower(strings.TrimSpace(string(r))))
	for _, known := range Recurrences {
		if value == known {
			return known
		}
	}
	return RecurrenceNone
}

// NormalizeTags always returns a non-nil slice. Order of first appearance is
// kept.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// Normalize fills every optional field the client relies on. It is
// idempotent and does not alias the input's slices.
func Normalize(task Task) Task {
	task.Priority = NormalizePriority(task.Priority)
	task.Recurrence = NormalizeRecurrence(task.Recurrence)
	task.Tags = NormalizeTags(task.Tags)
	return task
}

func NormalizeAll(tasks []Task) []Task {
	result := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		result = append(result, Normalize(task))
	}
	return result
}

func (c TaskCreate) Normalize() TaskCreate {
	c.Title = strings.TrimSpace(c.Title)
	c.Priority = NormalizePriority(c.Priority)
	c.Recurrence = NormalizeRecurrence(c.Recurrence)
	c.Tags = NormalizeTags(c.Tags)
	return c
}

func (c TaskCreate) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return &ValidationError{Field: "title", Message: "Title is required"}
	}
	return nil
}

func (u TaskUpdate) Normalize() TaskUpdate {
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		u.Title = &title
	}
	if u.Priority != nil {
		priority := NormalizePriority(*u.Priority)
		u.Priority = &priority
	}
	if u.Recurrence != nil {
		recurrence := NormalizeRecurrence(*u.Recurrence)
		u.Recurrence = &recurrence
	}
	if u.Tags != nil {
		u.Tags = NormalizeTags(u.Tags)
	}
	return u
}

func (u TaskUpdate) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return &ValidationError{Field: "title", Message: "Title is required"}
	}
	return nil
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

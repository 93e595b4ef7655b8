package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Joseda-hg/taskboard/internal/model"
)

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return "no tags"
	}
	return strings.Join(tags, ",")
}

func formatTaskSummary(task model.Task, now time.Time) string {
	parts := []string{task.Title, string(task.Priority)}
	if label := dueLabel(task, now); label != "" {
		parts = append(parts, label)
	}
	if len(task.Tags) > 0 {
		parts = append(parts, formatTags(task.Tags))
	}
	return strings.Join(parts, " | ")
}

func dueLabel(task model.Task, now time.Time) string {
	if task.DueDate == nil {
		return ""
	}
	relative := humanize.RelTime(task.DueDate.Time, now, "ago", "from now")
	switch model.TaskDueState(task, now) {
	case model.DueOverdue:
		return "overdue " + relative
	case model.DueSoon:
		return "due soon, " + relative
	case model.DueScheduled:
		return "due " + relative
	default:
		return "was due " + task.DueDate.Format("2006-01-02")
	}
}

func describeTask(task model.Task, now time.Time) []string {
	status := "pending"
	if task.Completed {
		status = "completed"
	}

	due := "n/a"
	if task.DueDate != nil {
		due = fmt.Sprintf("%s (%s)", task.DueDate.Format("2006-01-02"), dueLabel(task, now))
	}

	description := ""
	if task.Description != nil {
		description = *task.Description
	}

	lines := []string{
		task.Title,
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Priority: %s", task.Priority),
		fmt.Sprintf("Recurrence: %s", task.Recurrence),
		fmt.Sprintf("Due: %s", due),
		fmt.Sprintf("Tags: %s", formatTags(task.Tags)),
	}
	if !task.CreatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Created: %s", humanize.RelTime(task.CreatedAt.Time, now, "ago", "from now")))
	}
	lines = append(lines, "", description)
	return lines
}

func criteriaLabel(criteria model.Criteria) string {
	filters := criteria.Filters
	status := orAny(string(filters.Status))
	priority := orAny(string(filters.Priority))
	tag := orAny(filters.Tag)

	search := strings.TrimSpace(filters.Search)
	if search == "" {
		search = "type / to search"
	}

	sort := criteria.Sort.Normalize()
	return fmt.Sprintf("Search: %s | Status: %s | Priority: %s | Tag: %s | Sort: %s %s",
		search, status, priority, tag, sort.By, sort.Order)
}

func orAny(value string) string {
	if value == "" {
		return "any"
	}
	return value
}

var statusCycle = []model.Status{"", model.StatusPending, model.StatusCompleted}

func nextStatusFilter(current model.Status) model.Status {
	for i, status := range statusCycle {
		if status == current {
			return statusCycle[(i+1)%len(statusCycle)]
		}
	}
	return ""
}

func nextPriorityFilter(current model.Priority) model.Priority {
	options := append([]model.Priority{""}, model.Priorities...)
	for i, priority := range options {
		if priority == current {
			return options[(i+1)%len(options)]
		}
	}
	return ""
}

func nextTagFilter(current string, available []string) string {
	options := append([]string{""}, available...)
	for i, tag := range options {
		if tag == current {
			return options[(i+1)%len(options)]
		}
	}
	return ""
}

func nextSortField(current model.SortField) model.SortField {
	for i, field := range model.SortFields {
		if field == current {
			return model.SortFields[(i+1)%len(model.SortFields)]
		}
	}
	return model.SortFields[0]
}

func flipSortOrder(order model.SortOrder) model.SortOrder {
	if order == model.SortAsc {
		return model.SortDesc
	}
	return model.SortAsc
}

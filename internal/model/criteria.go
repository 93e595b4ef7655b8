package model

import (
	"sort"
	"strings"
	"time"
)

type SortField string

const (
	SortByDueDate   SortField = "due_date"
	SortByPriority  SortField = "priority"
	SortByTitle     SortField = "title"
	SortByCreatedAt SortField = "created_at"
)

var SortFields = []SortField{SortByCreatedAt, SortByDueDate, SortByPriority, SortByTitle}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// TaskFilters holds optional constraints. A zero field means no constraint on
// that dimension. DueFrom and DueTo are calendar dates (YYYY-MM-DD).
type TaskFilters struct {
	Status   Status
	Priority Priority
	Tag      string
	Search   string
	DueFrom  string
	DueTo    string
}

type TaskSort struct {
	By    SortField
	Order SortOrder
}

func (s TaskSort) Normalize() TaskSort {
	switch s.By {
	case SortByDueDate, SortByPriority, SortByTitle, SortByCreatedAt:
	default:
		s.By = SortByCreatedAt
	}
	if s.Order != SortAsc {
		s.Order = SortDesc
	}
	return s
}

type Criteria struct {
	Filters TaskFilters
	Sort    TaskSort
}

func (c Criteria) IsZero() bool {
	return c == Criteria{}
}

func (c Criteria) Apply(tasks []Task) []Task {
	result := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		if c.Filters.Match(task) {
			result = append(result, task)
		}
	}

	order := c.Sort.Normalize()
	less := sortLess(order.By)
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if order.By == SortByDueDate && (a.DueDate == nil || b.DueDate == nil) {
			// Undated tasks stay at the end regardless of direction.
			return a.DueDate != nil && b.DueDate == nil
		}
		if order.Order == SortAsc {
			return less(a, b)
		}
		return less(b, a)
	})
	return result
}

func (f TaskFilters) Match(task Task) bool {
	switch f.Status {
	case StatusCompleted:
		if !task.Completed {
			return false
		}
	case StatusPending:
		if task.Completed {
			return false
		}
	}

	if f.Priority != "" && NormalizePriority(task.Priority) != NormalizePriority(f.Priority) {
		return false
	}

	if tag := strings.TrimSpace(f.Tag); tag != "" && !hasTag(task.Tags, tag) {
		return false
	}

	if query := strings.ToLower(strings.TrimSpace(f.Search)); query != "" && !matchesSearch(task, query) {
		return false
	}

	if f.DueFrom != "" || f.DueTo != "" {
		if task.DueDate == nil {
			return false
		}
		day := task.DueDate.UTC().Format("2006-01-02")
		if from := strings.TrimSpace(f.DueFrom); from != "" && day < from {
			return false
		}
		if to := strings.TrimSpace(f.DueTo); to != "" && day > to {
			return false
		}
	}

	return true
}

func hasTag(tags []string, tag string) bool {
	for _, candidate := range tags {
		if strings.EqualFold(candidate, tag) {
			return true
		}
	}
	return false
}

func matchesSearch(task Task, query string) bool {
	if strings.Contains(strings.ToLower(task.Title), query) {
		return true
	}
	if task.Description != nil && strings.Contains(strings.ToLower(*task.Description), query) {
		return true
	}
	for _, tag := range task.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func sortLess(field SortField) func(a, b Task) bool {
	switch field {
	case SortByDueDate:
		return func(a, b Task) bool { return a.DueDate.Before(b.DueDate.Time) }
	case SortByPriority:
		return func(a, b Task) bool { return priorityRank(a.Priority) < priorityRank(b.Priority) }
	case SortByTitle:
		return func(a, b Task) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	default:
		return func(a, b Task) bool { return a.CreatedAt.Before(b.CreatedAt.Time) }
	}
}

func priorityRank(p Priority) int {
	switch NormalizePriority(p) {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

func Partition(tasks []Task) (pending, completed []Task) {
	pending = make([]Task, 0, len(tasks))
	completed = make([]Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Completed {
			completed = append(completed, task)
		} else {
			pending = append(pending, task)
		}
	}
	return pending, completed
}

func DistinctTags(tasks []Task) []string {
	seen := make(map[string]struct{})
	for _, task := range tasks {
		for _, tag := range task.Tags {
			seen[tag] = struct{}{}
		}
	}
	result := make([]string, 0, len(seen))
	for tag := range seen {
		result = append(result, tag)
	}
	sort.Strings(result)
	return result
}

type DueState string

const (
	DueNone      DueState = "none"
	DueOverdue   DueState = "overdue"
	DueSoon      DueState = "due_soon"
	DueScheduled DueState = "scheduled"
)

const dueSoonWindow = 24 * time.Hour

func TaskDueState(task Task, now time.Time) DueState {
	if task.DueDate == nil || task.Completed {
		return DueNone
	}
	remaining := task.DueDate.Sub(now)
	switch {
	case remaining < 0:
		return DueOverdue
	case remaining <= dueSoonWindow:
		return DueSoon
	default:
		return DueScheduled
	}
}

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleTasks() []Task {
	day := func(d int) *Timestamp { return NewTimestamp(time.Date(2026, 5, d, 12, 0, 0, 0, time.UTC)) }
	created := func(h int) Timestamp { return Timestamp{Time: time.Date(2026, 4, 1, h, 0, 0, 0, time.UTC)} }
	return []Task{
		{ID: 1, Title: "Write report", Priority: PriorityHigh, Tags: []string{"work"}, DueDate: day(3), CreatedAt: created(1)},
		{ID: 2, Title: "buy milk", Completed: true, Priority: PriorityLow, Tags: []string{"home"}, CreatedAt: created(2)},
		{ID: 3, Title: "Call bank", Description: strPtr("about the mortgage"), Priority: PriorityMedium, Tags: []string{"home", "finance"}, DueDate: day(1), CreatedAt: created(3)},
		{ID: 4, Title: "Archive mail", Completed: true, Priority: PriorityMedium, DueDate: day(9), CreatedAt: created(4)},
	}
}

func ids(tasks []Task) []int64 {
	result := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		result = append(result, task.ID)
	}
	return result
}

func TestCriteriaApplyFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters TaskFilters
		want    []int64
	}{
		{name: "no constraint", filters: TaskFilters{}, want: []int64{4, 3, 2, 1}},
		{name: "pending", filters: TaskFilters{Status: StatusPending}, want: []int64{3, 1}},
		{name: "completed", filters: TaskFilters{Status: StatusCompleted}, want: []int64{4, 2}},
		{name: "priority", filters: TaskFilters{Priority: PriorityMedium}, want: []int64{4, 3}},
		{name: "tag", filters: TaskFilters{Tag: "HOME"}, want: []int64{3, 2}},
		{name: "search title", filters: TaskFilters{Search: "MILK"}, want: []int64{2}},
		{name: "search description", filters: TaskFilters{Search: "mortgage"}, want: []int64{3}},
		{name: "due range", filters: TaskFilters{DueFrom: "2026-05-02", DueTo: "2026-05-09"}, want: []int64{4, 1}},
		{name: "due from excludes undated", filters: TaskFilters{DueFrom: "2026-01-01"}, want: []int64{4, 3, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Criteria{Filters: tt.filters}.Apply(sampleTasks())
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCriteriaApplySort(t *testing.T) {
	tests := []struct {
		name string
		sort TaskSort
		want []int64
	}{
		{name: "default created desc", sort: TaskSort{}, want: []int64{4, 3, 2, 1}},
		{name: "created asc", sort: TaskSort{By: SortByCreatedAt, Order: SortAsc}, want: []int64{1, 2, 3, 4}},
		{name: "title asc case-insensitive", sort: TaskSort{By: SortByTitle, Order: SortAsc}, want: []int64{4, 2, 3, 1}},
		{name: "priority desc", sort: TaskSort{By: SortByPriority, Order: SortDesc}, want: []int64{1, 3, 4, 2}},
		{name: "due asc undated last", sort: TaskSort{By: SortByDueDate, Order: SortAsc}, want: []int64{3, 1, 4, 2}},
		{name: "due desc undated last", sort: TaskSort{By: SortByDueDate, Order: SortDesc}, want: []int64{4, 1, 3, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Criteria{Sort: tt.sort}.Apply(sampleTasks())
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCriteriaApplyLeavesInputUntouched(t *testing.T) {
	tasks := sampleTasks()
	_ = Criteria{Sort: TaskSort{By: SortByTitle, Order: SortAsc}}.Apply(tasks)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(tasks))
}

func TestPartitionIsPureAndComplete(t *testing.T) {
	tasks := sampleTasks()

	pending, completed := Partition(tasks)
	pendingAgain, completedAgain := Partition(tasks)

	assert.Equal(t, pending, pendingAgain)
	assert.Equal(t, completed, completedAgain)
	assert.Equal(t, []int64{1, 3}, ids(pending))
	assert.Equal(t, []int64{2, 4}, ids(completed))

	union := map[int64]int{}
	for _, task := range append(append([]Task{}, pending...), completed...) {
		union[task.ID]++
	}
	assert.Len(t, union, len(tasks))
	for id, count := range union {
		assert.Equal(t, 1, count, "task %d", id)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(tasks))
}

func TestDistinctTagsSorted(t *testing.T) {
	assert.Equal(t, []string{"finance", "home", "work"}, DistinctTags(sampleTasks()))
	assert.Equal(t, []string{}, DistinctTags(nil))
}

func TestTaskDueState(t *testing.T) {
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	tasks := sampleTasks()

	assert.Equal(t, DueSoon, TaskDueState(tasks[0], now))
	assert.Equal(t, DueNone, TaskDueState(tasks[1], now))
	assert.Equal(t, DueOverdue, TaskDueState(tasks[2], now))
	assert.Equal(t, DueNone, TaskDueState(tasks[3], now), "completed tasks are never flagged")

	later := Task{DueDate: NewTimestamp(now.Add(72 * time.Hour))}
	assert.Equal(t, DueScheduled, TaskDueState(later, now))
}

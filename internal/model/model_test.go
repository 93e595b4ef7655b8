package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNormalizeInjectsDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Task
	}{
		{name: "all optional fields absent", in: Task{ID: 1, Title: "Bare"}},
		{name: "invalid enums", in: Task{ID: 2, Title: "Odd", Priority: "urgent", Recurrence: "yearly"}},
		{name: "empty strings", in: Task{ID: 3, Title: "Blank", Priority: "", Recurrence: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, PriorityLow, got.Priority)
			assert.Equal(t, RecurrenceNone, got.Recurrence)
			require.NotNil(t, got.Tags)
			assert.Empty(t, got.Tags)
			assert.False(t, got.Completed)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	due := NewTimestamp(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	inputs := []Task{
		{},
		{ID: 7, Title: "Full", Description: strPtr("d"), Completed: true, Priority: PriorityHigh, Tags: []string{"b", "a", "b"}, DueDate: due, Recurrence: RecurrenceWeekly},
		{ID: 8, Title: "Mixed", Priority: "MEDIUM", Recurrence: " daily ", Tags: []string{" x ", ""}},
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeDoesNotAliasTags(t *testing.T) {
	in := Task{Tags: []string{"work"}}
	out := Normalize(in)
	out.Tags[0] = "changed"
	assert.Equal(t, "work", in.Tags[0])
}

func TestNormalizeTagsKeepsInsertionOrder(t *testing.T) {
	assert.Equal(t, []string{"work", "home", "Work"}, NormalizeTags([]string{"work", " home", "", "work", "Work"}))
}

func TestDecodeTaskWithNullsAndNumericOwner(t *testing.T) {
	payload := `{"id":4,"user_id":12,"title":"Buy milk","description":null,"completed":null,
		"priority":null,"tags":null,"due_date":"2026-01-02T10:00:00","created_at":"2026-01-01T08:30:00.123456","updated_at":"2026-01-01T08:30:00Z"}`

	var task Task
	require.NoError(t, json.Unmarshal([]byte(payload), &task))
	task = Normalize(task)

	assert.Equal(t, Ref("12"), task.UserID)
	assert.Nil(t, task.Description)
	assert.False(t, task.Completed)
	assert.Equal(t, PriorityLow, task.Priority)
	assert.Equal(t, RecurrenceNone, task.Recurrence)
	assert.Equal(t, []string{}, task.Tags)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, 10, task.DueDate.Hour())
	assert.Equal(t, 2026, task.CreatedAt.Year())
}

func TestTaskCreateNormalizeAndValidate(t *testing.T) {
	in := TaskCreate{Title: "  Buy milk "}
	out := in.Normalize()
	assert.Equal(t, "Buy milk", out.Title)
	assert.Equal(t, PriorityLow, out.Priority)
	assert.Equal(t, RecurrenceNone, out.Recurrence)
	assert.Equal(t, []string{}, out.Tags)

	err := TaskCreate{Title: "   "}.Validate()
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "title", validation.Field)
}

func TestTaskUpdateMarshalsOnlyPresentFields(t *testing.T) {
	done := true
	bogus := Priority("critical")
	update := TaskUpdate{Completed: &done, Priority: &bogus, ClearDueDate: true}.Normalize()

	data, err := json.Marshal(update)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, map[string]any{"completed": true, "priority": "low", "due_date": nil}, decoded)
}

func TestTaskUpdateEmptyTagsClears(t *testing.T) {
	data, err := json.Marshal(TaskUpdate{Tags: []string{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tags":[]}`, string(data))

	data, err = json.Marshal(TaskUpdate{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ada", User{ID: "1", FullName: "Ada", Email: "a@x.io"}.DisplayName())
	assert.Equal(t, "a@x.io", User{ID: "1", Email: "a@x.io"}.DisplayName())
	assert.Equal(t, "user 1", User{ID: "1"}.DisplayName())
}

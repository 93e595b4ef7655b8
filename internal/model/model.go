package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

var Recurrences = []Recurrence{RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
)

type Task struct {
	ID          int64      `json:"id"`
	UserID      Ref        `json:"user_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags"`
	DueDate     *Timestamp `json:"due_date"`
	Recurrence  Recurrence `json:"recurrence"`
	CreatedAt   Timestamp  `json:"created_at"`
	UpdatedAt   Timestamp  `json:"updated_at"`
}

type TaskCreate struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags"`
	DueDate     *Timestamp `json:"due_date"`
	Recurrence  Recurrence `json:"recurrence"`
}

// TaskUpdate is a partial write. Nil fields are left untouched by the
// backend; ClearDescription and ClearDueDate send an explicit null. A non-nil
// empty Tags slice clears the tags.
type TaskUpdate struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Completed        *bool
	Priority         *Priority
	Tags             []string
	DueDate          *Timestamp
	ClearDueDate     bool
	Recurrence       *Recurrence
}

func (u TaskUpdate) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any)
	if u.Title != nil {
		payload["title"] = *u.Title
	}
	if u.ClearDescription {
		payload["description"] = nil
	} else if u.Description != nil {
		payload["description"] = *u.Description
	}
	if u.Completed != nil {
		payload["completed"] = *u.Completed
	}
	if u.Priority != nil {
		payload["priority"] = *u.Priority
	}
	if u.Tags != nil {
		payload["tags"] = u.Tags
	}
	if u.ClearDueDate {
		payload["due_date"] = nil
	} else if u.DueDate != nil {
		payload["due_date"] = u.DueDate
	}
	if u.Recurrence != nil {
		payload["recurrence"] = *u.Recurrence
	}
	return json.Marshal(payload)
}

type User struct {
	ID          Ref        `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	FatherName  string     `json:"father_name,omitempty"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
}

// DisplayName prefers the full name, then the email, then the id.
func (u User) DisplayName() string {
	switch {
	case strings.TrimSpace(u.FullName) != "":
		return u.FullName
	case strings.TrimSpace(u.Email) != "":
		return u.Email
	case u.ID != "":
		return "user " + string(u.ID)
	default:
		return "anonymous"
	}
}

type Registration struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	FatherName  string `json:"father_name"`
	PhoneNumber string `json:"phone_number"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Ref is an opaque identifier. The backend may send it as a JSON string or a
// number; either form decodes to its decimal text.
type Ref string

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*r = Ref(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("decode ref: %w", err)
	}
	*r = Ref(number.String())
	return nil
}

// Timestamp accepts RFC 3339 as well as the naive ISO-8601 forms some
// backends emit without a zone (interpreted as UTC).
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

func ParseTimestamp(value string) (Timestamp, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return Timestamp{Time: parsed}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", value)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	value, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

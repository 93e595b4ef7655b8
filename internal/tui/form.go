package tui

import (
	"strings"

	"github.com/Joseda-hg/taskboard/internal/account"
	"github.com/Joseda-hg/taskboard/internal/model"
)

type formKind int

const (
	formTask formKind = iota
	formLogin
	formRegister
)

type formField struct {
	Label   string
	Value   string
	Secret  bool
	Choices []string
}

type formState struct {
	kind   formKind
	taskID int64
	fields []formField
	index  int
}

const (
	fieldTitle = iota
	fieldDescription
	fieldPriority
	fieldTags
	fieldDue
	fieldRecurrence
)

func priorityChoices() []string {
	choices := make([]string, 0, len(model.Priorities))
	for _, p := range model.Priorities {
		choices = append(choices, string(p))
	}
	return choices
}

func recurrenceChoices() []string {
	choices := make([]string, 0, len(model.Recurrences))
	for _, r := range model.Recurrences {
		choices = append(choices, string(r))
	}
	return choices
}

func buildFormFields(task *model.Task) []formField {
	fields := []formField{
		{Label: "Title"},
		{Label: "Description"},
		{Label: "Priority (space/←→)", Choices: priorityChoices()},
		{Label: "Tags (comma separated)"},
		{Label: "Due (YYYY-MM-DD)"},
		{Label: "Recurrence (space/←→)", Choices: recurrenceChoices()},
	}

	if task == nil {
		fields[fieldPriority].Value = string(model.PriorityLow)
		fields[fieldRecurrence].Value = string(model.RecurrenceNone)
		return fields
	}

	normalized := model.Normalize(*task)
	fields[fieldTitle].Value = normalized.Title
	if normalized.Description != nil {
		fields[fieldDescription].Value = *normalized.Description
	}
	fields[fieldPriority].Value = string(normalized.Priority)
	fields[fieldTags].Value = joinTags(normalized.Tags)
	if normalized.DueDate != nil {
		fields[fieldDue].Value = normalized.DueDate.Format("2006-01-02")
	}
	fields[fieldRecurrence].Value = string(normalized.Recurrence)

	return fields
}

func parseCreate(fields []formField) (model.TaskCreate, error) {
	due, err := parseDue(fields[fieldDue].Value)
	if err != nil {
		return model.TaskCreate{}, err
	}

	input := model.TaskCreate{
		Title:      strings.TrimSpace(fields[fieldTitle].Value),
		Priority:   model.Priority(fields[fieldPriority].Value),
		Tags:       parseTags(fields[fieldTags].Value),
		DueDate:    due,
		Recurrence: model.Recurrence(fields[fieldRecurrence].Value),
	}
	if description := strings.TrimSpace(fields[fieldDescription].Value); description != "" {
		input.Description = &description
	}
	return input, input.Validate()
}

// parseUpdate sends every editable field so clearing one in the form clears
// it on the server.
func parseUpdate(fields []formField) (model.TaskUpdate, error) {
	due, err := parseDue(fields[fieldDue].Value)
	if err != nil {
		return model.TaskUpdate{}, err
	}

	title := strings.TrimSpace(fields[fieldTitle].Value)
	priority := model.Priority(fields[fieldPriority].Value)
	recurrence := model.Recurrence(fields[fieldRecurrence].Value)
	input := model.TaskUpdate{
		Title:      &title,
		Priority:   &priority,
		Tags:       parseTags(fields[fieldTags].Value),
		Recurrence: &recurrence,
	}
	if description := strings.TrimSpace(fields[fieldDescription].Value); description != "" {
		input.Description = &description
	} else {
		input.ClearDescription = true
	}
	if due != nil {
		input.DueDate = due
	} else {
		input.ClearDueDate = true
	}
	return input, input.Validate()
}

func parseDue(value string) (*model.Timestamp, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := model.ParseTimestamp(trimmed)
	if err != nil {
		return nil, &model.ValidationError{Field: "due_date", Message: "Invalid due date, use YYYY-MM-DD"}
	}
	return &parsed, nil
}

// parseTags always returns a non-nil slice so an empty field clears tags.
func parseTags(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}

func joinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

func cycleChoice(options []string, current string, delta int) string {
	if len(options) == 0 {
		return current
	}
	value := strings.TrimSpace(strings.ToLower(current))
	index := 0
	for i, option := range options {
		if option == value {
			index = i
			break
		}
	}
	index = (index + delta + len(options)) % len(options)
	return options[index]
}

const (
	loginEmail = iota
	loginPassword
)

func loginFields() []formField {
	return []formField{
		{Label: "Email"},
		{Label: "Password", Secret: true},
	}
}

func loginFormFrom(fields []formField) account.LoginForm {
	return account.LoginForm{
		Email:    fields[loginEmail].Value,
		Password: fields[loginPassword].Value,
	}
}

const (
	registerEmail = iota
	registerFullName
	registerFatherName
	registerCountryCode
	registerPhone
	registerPassword
	registerConfirm
)

func registerFields() []formField {
	return []formField{
		{Label: "Email"},
		{Label: "Full name"},
		{Label: "Father name"},
		{Label: "Country code", Value: account.DefaultCountryCode},
		{Label: "Phone"},
		{Label: "Password", Secret: true},
		{Label: "Confirm password", Secret: true},
	}
}

func registerFormFrom(fields []formField) account.RegisterForm {
	return account.RegisterForm{
		Email:           fields[registerEmail].Value,
		FullName:        fields[registerFullName].Value,
		FatherName:      fields[registerFatherName].Value,
		CountryCode:     fields[registerCountryCode].Value,
		PhoneNumber:     fields[registerPhone].Value,
		Password:        fields[registerPassword].Value,
		ConfirmPassword: fields[registerConfirm].Value,
	}
}

// clearSecrets empties password fields after a failed submit; everything
// else stays as typed.
func clearSecrets(fields []formField) {
	for i := range fields {
		if fields[i].Secret {
			fields[i].Value = ""
		}
	}
}

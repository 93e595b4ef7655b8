package tasks

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/api"
	"github.com/Joseda-hg/taskboard/internal/model"
)

type Writer interface {
	CreateTask(ctx context.Context, input model.TaskCreate) (model.Task, error)
	UpdateTask(ctx context.Context, id int64, input model.TaskUpdate) (model.Task, error)
	SetTaskStatus(ctx context.Context, id int64, completed bool) (model.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// Mutations wraps every write with loading and error tracking. It never
// refreshes a Collection; callers do that after a successful write.
type Mutations struct {
	writer         Writer
	logger         *zap.Logger
	statusEndpoint bool

	mu       sync.Mutex
	inFlight int
	err      string
}

type MutationOption func(*Mutations)

// WithStatusEndpoint selects PATCH /tasks/{id}/status for Complete and
// Incomplete instead of a partial update.
func WithStatusEndpoint(enabled bool) MutationOption {
	return func(m *Mutations) {
		m.statusEndpoint = enabled
	}
}

func WithMutationLogger(logger *zap.Logger) MutationOption {
	return func(m *Mutations) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMutations(writer Writer, opts ...MutationOption) *Mutations {
	m := &Mutations{
		writer:         writer,
		logger:         zap.NewNop(),
		statusEndpoint: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mutations) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight > 0
}

// Err is the message of the last failed write, cleared when the next one
// starts.
func (m *Mutations) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Mutations) begin() {
	m.mu.Lock()
	m.inFlight++
	m.err = ""
	m.mu.Unlock()
}

func (m *Mutations) end() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

func (m *Mutations) fail(op string, err error, fallback string) error {
	m.mu.Lock()
	m.err = api.Message(err, fallback)
	m.mu.Unlock()
	m.logger.Warn("task mutation failed", zap.String("op", op), zap.Error(err))
	return err
}

func (m *Mutations) Create(ctx context.Context, input model.TaskCreate) (model.Task, error) {
	m.begin()
	defer m.end()

	if err := input.Validate(); err != nil {
		return model.Task{}, m.fail("create", err, "Failed to create task")
	}
	task, err := m.writer.CreateTask(ctx, input)
	if err != nil {
		return model.Task{}, m.fail("create", err, "Failed to create task")
	}
	m.logger.Info("task created", zap.Int64("id", task.ID))
	return task, nil
}

func (m *Mutations) Update(ctx context.Context, id int64, input model.TaskUpdate) (model.Task, error) {
	m.begin()
	defer m.end()

	if err := input.Validate(); err != nil {
		return model.Task{}, m.fail("update", err, "Failed to update task")
	}
	task, err := m.writer.UpdateTask(ctx, id, input)
	if err != nil {
		return model.Task{}, m.fail("update", err, "Failed to update task")
	}
	return task, nil
}

func (m *Mutations) Delete(ctx context.Context, id int64) error {
	m.begin()
	defer m.end()

	if err := m.writer.DeleteTask(ctx, id); err != nil {
		return m.fail("delete", err, "Failed to delete task")
	}
	m.logger.Info("task deleted", zap.Int64("id", id))
	return nil
}

func (m *Mutations) Complete(ctx context.Context, id int64) (model.Task, error) {
	return m.setCompleted(ctx, id, true)
}

func (m *Mutations) Incomplete(ctx context.Context, id int64) (model.Task, error) {
	return m.setCompleted(ctx, id, false)
}

func (m *Mutations) Toggle(ctx context.Context, task model.Task) (model.Task, error) {
	return m.setCompleted(ctx, task.ID, !task.Completed)
}

func (m *Mutations) setCompleted(ctx context.Context, id int64, completed bool) (model.Task, error) {
	m.begin()
	defer m.end()

	var (
		task model.Task
		err  error
	)
	if m.statusEndpoint {
		task, err = m.writer.SetTaskStatus(ctx, id, completed)
	} else {
		task, err = m.writer.UpdateTask(ctx, id, model.TaskUpdate{Completed: &completed})
	}
	if err != nil {
		return model.Task{}, m.fail("set status", err, "Failed to update task status")
	}
	return task, nil
}

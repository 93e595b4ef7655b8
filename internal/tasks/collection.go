// Package tasks holds the dashboard's view of the remote task collection and
// the coordinator that writes to it.
package tasks

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/api"
	"github.com/Joseda-hg/taskboard/internal/model"
)

const loadFallback = "Failed to load tasks"

type Lister interface {
	ListTasks(ctx context.Context, criteria model.Criteria) ([]model.Task, error)
}

// State is a snapshot of the collection. Tasks must not be modified by the
// receiver.
type State struct {
	Criteria model.Criteria
	Tasks    []model.Task
	Loading  bool
	Err      string
}

type Collection struct {
	lister Lister
	logger *zap.Logger

	mu        sync.Mutex
	criteria  model.Criteria
	tasks     []model.Task
	pending   []model.Task
	completed []model.Task
	tags      []string
	loading   bool
	err       string
	seq       uint64
	cancel    context.CancelFunc
	listeners map[int]func(State)
	nextID    int
}

func NewCollection(lister Lister, logger *zap.Logger) *Collection {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collection{
		lister:    lister,
		logger:    logger,
		criteria:  defaultCriteria(),
		listeners: make(map[int]func(State)),
	}
	c.replaceTasks(nil)
	return c
}

func defaultCriteria() model.Criteria {
	return model.Criteria{Sort: model.TaskSort{}.Normalize()}
}

func (c *Collection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Collection) snapshot() State {
	return State{
		Criteria: c.criteria,
		Tasks:    c.tasks,
		Loading:  c.loading,
		Err:      c.err,
	}
}

func (c *Collection) Criteria() model.Criteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.criteria
}

func (c *Collection) Pending() []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Collection) Completed() []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

func (c *Collection) AvailableTags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tags
}

func (c *Collection) Find(id int64) (model.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, task := range c.tasks {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

func (c *Collection) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Refetch cancels the previous fetch. Only the most recently started fetch
// may change the state.
func (c *Collection) Refetch(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.seq++
	seq := c.seq
	c.cancel = cancel
	criteria := c.criteria
	c.loading = true
	state := c.snapshot()
	c.mu.Unlock()

	c.notify(state)

	tasks, err := c.lister.ListTasks(fetchCtx, criteria)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		cancel()
		c.logger.Debug("discarding superseded task list", zap.Uint64("seq", seq))
		return nil
	}
	c.cancel = nil
	cancel()
	c.loading = false
	if errors.Is(err, context.Canceled) {
		state = c.snapshot()
		c.mu.Unlock()
		c.logger.Debug("task list cancelled", zap.Uint64("seq", seq))
		c.notify(state)
		return err
	}
	if err != nil {
		c.err = api.Message(err, loadFallback)
		c.logger.Warn("load tasks", zap.Error(err))
	} else {
		c.err = ""
		c.replaceTasks(criteria.Apply(model.NormalizeAll(tasks)))
	}
	state = c.snapshot()
	c.mu.Unlock()

	c.notify(state)
	return err
}

func (c *Collection) SetCriteria(ctx context.Context, criteria model.Criteria) error {
	criteria.Sort = criteria.Sort.Normalize()

	c.mu.Lock()
	if criteria == c.criteria {
		c.mu.Unlock()
		return nil
	}
	c.criteria = criteria
	c.mu.Unlock()

	return c.Refetch(ctx)
}

func (c *Collection) SetFilters(ctx context.Context, filters model.TaskFilters) error {
	criteria := c.Criteria()
	criteria.Filters = filters
	return c.SetCriteria(ctx, criteria)
}

func (c *Collection) SetSort(ctx context.Context, sort model.TaskSort) error {
	criteria := c.Criteria()
	criteria.Sort = sort
	return c.SetCriteria(ctx, criteria)
}

func (c *Collection) SetSearch(ctx context.Context, search string) error {
	criteria := c.Criteria()
	criteria.Filters.Search = search
	return c.SetCriteria(ctx, criteria)
}

// Reset drops the loaded tasks, the criteria and the error, and discards any
// fetch in flight.
func (c *Collection) Reset() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.seq++
	c.criteria = defaultCriteria()
	c.loading = false
	c.err = ""
	c.replaceTasks(nil)
	state := c.snapshot()
	c.mu.Unlock()

	c.notify(state)
}

func (c *Collection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// replaceTasks must be called with mu held.
func (c *Collection) replaceTasks(tasks []model.Task) {
	if tasks == nil {
		tasks = []model.Task{}
	}
	c.tasks = tasks
	c.pending, c.completed = model.Partition(tasks)
	c.tags = model.DistinctTags(tasks)
}

func (c *Collection) notify(state State) {
	c.mu.Lock()
	listeners := make([]func(State), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

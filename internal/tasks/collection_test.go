package tasks

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joseda-hg/taskboard/internal/api"
	"github.com/Joseda-hg/taskboard/internal/model"
)

type listerFunc func(ctx context.Context, criteria model.Criteria) ([]model.Task, error)

func (f listerFunc) ListTasks(ctx context.Context, criteria model.Criteria) ([]model.Task, error) {
	return f(ctx, criteria)
}

func sampleTasks() []model.Task {
	return []model.Task{
		{ID: 1, Title: "Write report", Tags: []string{"work"}},
		{ID: 2, Title: "Buy milk", Completed: true, Tags: []string{"home", "errand"}},
		{ID: 3, Title: "Call bank", Tags: []string{"errand"}},
	}
}

func TestRefetchReplacesTasksAndDerivedViews(t *testing.T) {
	collection := NewCollection(listerFunc(func(context.Context, model.Criteria) ([]model.Task, error) {
		return sampleTasks(), nil
	}), nil)

	require.NoError(t, collection.Refetch(context.Background()))

	state := collection.State()
	assert.False(t, state.Loading)
	assert.Empty(t, state.Err)
	assert.Len(t, state.Tasks, 3)
	assert.Equal(t, []string{"errand", "home", "work"}, collection.AvailableTags())

	pending, completed := collection.Pending(), collection.Completed()
	assert.Len(t, pending, 2)
	assert.Len(t, completed, 1)
	assert.Len(t, append(append([]model.Task{}, pending...), completed...), len(state.Tasks))

	again := collection.Pending()
	require.NotEmpty(t, again)
	assert.Same(t, &pending[0], &again[0], "derived views are cached between changes")

	for _, task := range state.Tasks {
		assert.NotNil(t, task.Tags)
		assert.Equal(t, model.PriorityLow, task.Priority)
	}
}

func TestRefetchFailureKeepsPreviousTasks(t *testing.T) {
	fail := false
	collection := NewCollection(listerFunc(func(context.Context, model.Criteria) ([]model.Task, error) {
		if fail {
			return nil, &api.APIError{Status: 500, Message: "database unavailable"}
		}
		return sampleTasks(), nil
	}), nil)

	require.NoError(t, collection.Refetch(context.Background()))
	fail = true
	require.Error(t, collection.Refetch(context.Background()))

	state := collection.State()
	assert.Equal(t, "database unavailable", state.Err)
	assert.Len(t, state.Tasks, 3)

	fail = false
	require.NoError(t, collection.Refetch(context.Background()))
	assert.Empty(t, collection.State().Err)
}

func TestFirstLoadFailureLeavesEmptyList(t *testing.T) {
	collection := NewCollection(listerFunc(func(context.Context, model.Criteria) ([]model.Task, error) {
		return nil, &api.APIError{Status: 422, Detail: json.RawMessage(`{"code":7}`)}
	}), nil)

	require.Error(t, collection.Refetch(context.Background()))
	state := collection.State()
	assert.NotNil(t, state.Tasks)
	assert.Empty(t, state.Tasks)
	assert.Equal(t, `{"code":7}`, state.Err)
}

func TestStaleTasksVisibleWhileLoading(t *testing.T) {
	calls := 0
	started := make(chan struct{})
	release := make(chan struct{})
	collection := NewCollection(listerFunc(func(context.Context, model.Criteria) ([]model.Task, error) {
		calls++
		if calls == 2 {
			close(started)
			<-release
		}
		return sampleTasks(), nil
	}), nil)
	require.NoError(t, collection.Refetch(context.Background()))

	done := make(chan error, 1)
	go func() { done <- collection.Refetch(context.Background()) }()
	<-started

	state := collection.State()
	assert.True(t, state.Loading)
	assert.Len(t, state.Tasks, 3)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, collection.State().Loading)
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var staleCanceled bool

	collection := NewCollection(listerFunc(func(ctx context.Context, criteria model.Criteria) ([]model.Task, error) {
		if criteria.Filters.Search == "old" {
			close(started)
			<-release
			staleCanceled = ctx.Err() != nil
			return []model.Task{{ID: 1, Title: "stale"}}, nil
		}
		return []model.Task{{ID: 2, Title: "fresh"}}, nil
	}), nil)

	done := make(chan error, 1)
	go func() { done <- collection.SetSearch(context.Background(), "old") }()
	<-started

	require.NoError(t, collection.SetSearch(context.Background(), "fresh"))
	close(release)
	require.NoError(t, <-done)

	state := collection.State()
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, "fresh", state.Tasks[0].Title)
	assert.False(t, state.Loading)
	assert.True(t, staleCanceled, "starting a new fetch cancels the previous one")
}

func TestSetCriteriaOnlyRefetchesOnChange(t *testing.T) {
	var mu sync.Mutex
	var seen []model.Criteria
	collection := NewCollection(listerFunc(func(_ context.Context, criteria model.Criteria) ([]model.Task, error) {
		mu.Lock()
		seen = append(seen, criteria)
		mu.Unlock()
		return sampleTasks(), nil
	}), nil)
	ctx := context.Background()

	require.NoError(t, collection.SetSort(ctx, model.TaskSort{}))
	assert.Empty(t, seen, "default sort is already applied")

	require.NoError(t, collection.SetFilters(ctx, model.TaskFilters{Status: model.StatusPending}))
	require.NoError(t, collection.SetFilters(ctx, model.TaskFilters{Status: model.StatusPending}))
	require.Len(t, seen, 1)
	assert.Equal(t, model.SortByCreatedAt, seen[0].Sort.By)
	assert.Equal(t, model.SortDesc, seen[0].Sort.Order)

	assert.Len(t, collection.State().Tasks, 2, "criteria also apply locally")
}

func TestSearchAppliesLocally(t *testing.T) {
	collection := NewCollection(listerFunc(func(context.Context, model.Criteria) ([]model.Task, error) {
		return sampleTasks(), nil
	}), nil)

	require.NoError(t, collection.SetSearch(context.Background(), "ERRAND"))
	state := collection.State()
	require.Len(t, state.Tasks, 2)
	assert.Equal(t, []string{"errand", "home"}, collection.AvailableTags())
}

func TestSubscribeSeesLoadingTransitions(t *testing.T) {
	collection := NewCollection(listerFunc(func(context.Context, model.Criteria) ([]model.Task, error) {
		return sampleTasks(), nil
	}), nil)

	var loading []bool
	unsubscribe := collection.Subscribe(func(state State) {
		loading = append(loading, state.Loading)
	})

	require.NoError(t, collection.Refetch(context.Background()))
	assert.Equal(t, []bool{true, false}, loading)

	unsubscribe()
	require.NoError(t, collection.Refetch(context.Background()))
	assert.Len(t, loading, 2)
}

func TestFind(t *testing.T) {
	collection := NewCollection(listerFunc(func(context.Context, model.Criteria) ([]model.Task, error) {
		return sampleTasks(), nil
	}), nil)
	require.NoError(t, collection.Refetch(context.Background()))

	task, ok := collection.Find(3)
	require.True(t, ok)
	assert.Equal(t, "Call bank", task.Title)

	_, ok = collection.Find(99)
	assert.False(t, ok)
}

func TestResetDropsTasksAndLateResponses(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	collection := NewCollection(listerFunc(func(_ context.Context, criteria model.Criteria) ([]model.Task, error) {
		if criteria.Filters.Search == "slow" {
			close(started)
			<-release
		}
		return sampleTasks(), nil
	}), nil)
	ctx := context.Background()
	require.NoError(t, collection.SetFilters(ctx, model.TaskFilters{Status: model.StatusPending}))
	require.Len(t, collection.State().Tasks, 2)

	done := make(chan error, 1)
	go func() { done <- collection.SetSearch(ctx, "slow") }()
	<-started

	var seen []State
	defer collection.Subscribe(func(state State) { seen = append(seen, state) })()
	collection.Reset()
	close(release)
	require.NoError(t, <-done)

	state := collection.State()
	assert.Empty(t, state.Tasks)
	assert.NotNil(t, state.Tasks)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Err)
	assert.Equal(t, NewCollection(nil, nil).Criteria(), state.Criteria)
	assert.Empty(t, collection.Pending())
	assert.Empty(t, collection.Completed())
	assert.Empty(t, collection.AvailableTags())
	require.Len(t, seen, 1, "the late response must not notify")
	assert.Empty(t, seen[0].Tasks)
}

func TestClosedFetchLeavesNoError(t *testing.T) {
	started := make(chan struct{})
	collection := NewCollection(listerFunc(func(ctx context.Context, _ model.Criteria) ([]model.Task, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}), nil)

	done := make(chan error, 1)
	go func() { done <- collection.Refetch(context.Background()) }()
	<-started
	collection.Close()

	assert.ErrorIs(t, <-done, context.Canceled)
	state := collection.State()
	assert.Empty(t, state.Err)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Tasks)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joseda-hg/taskboard/internal/model"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, bool) {
	return string(s), s != ""
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL+"/api", staticToken("secret"))
}

func TestBuildURLStripsDuplicateSuffix(t *testing.T) {
	for _, slashes := range []string{"", "/", "//"} {
		for _, suffix := range []string{"", "/tasks"} {
			base := "http://host/api" + suffix + slashes
			got, err := BuildURL(base, "/tasks", nil)
			require.NoError(t, err)
			assert.Equal(t, "http://host/api/tasks", got, "base %q", base)
		}
	}
}

func TestBuildURLEncodesParams(t *testing.T) {
	got, err := BuildURL("http://host/api/", "tasks/3", url.Values{"q": {"a b"}})
	require.NoError(t, err)
	assert.Equal(t, "http://host/api/tasks/3?q=a+b", got)

	_, err = BuildURL("not a url", "/tasks", nil)
	require.Error(t, err)
}

func TestMissingTokenFailsBeforeRequest(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	client := New(server.URL, staticToken(""))
	_, err := client.ListTasks(context.Background(), model.Criteria{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	err = client.DeleteTask(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Zero(t, hits)
}

func TestListTasksSendsCriteriaAndNormalizes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		query := r.URL.Query()
		assert.Equal(t, "pending", query.Get("status"))
		assert.Equal(t, "title", query.Get("sort_by"))
		assert.Equal(t, "asc", query.Get("sort_order"))
		assert.Equal(t, "work", query.Get("tag"))
		assert.Equal(t, "milk", query.Get("search"))
		assert.False(t, query.Has("priority"))

		_, _ = io.WriteString(w, `[{"id":1,"user_id":5,"title":"Buy milk","priority":"urgent","tags":null}]`)
	})

	tasks, err := client.ListTasks(context.Background(), model.Criteria{
		Filters: model.TaskFilters{Status: model.StatusPending, Tag: "work", Search: " milk "},
		Sort:    model.TaskSort{By: model.SortByTitle, Order: model.SortAsc},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.Ref("5"), tasks[0].UserID)
	assert.Equal(t, model.PriorityLow, tasks[0].Priority)
	assert.Equal(t, model.RecurrenceNone, tasks[0].Recurrence)
	assert.NotNil(t, tasks[0].Tags)
	assert.Empty(t, tasks[0].Tags)
}

func TestCreateTaskNormalizesPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Buy milk", body["title"])
		assert.Equal(t, "low", body["priority"])
		assert.Equal(t, "none", body["recurrence"])
		assert.Equal(t, []any{"home"}, body["tags"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":7,"title":"Buy milk","completed":false}`)
	})

	task, err := client.CreateTask(context.Background(), model.TaskCreate{
		Title: "  Buy milk ",
		Tags:  []string{"home", " home", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), task.ID)
	assert.Equal(t, model.PriorityLow, task.Priority)
}

func TestUpdateTaskSendsOnlyPresentFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/tasks/3", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"priority": "high", "due_date": nil}, body)
		_, _ = io.WriteString(w, `{"id":3,"title":"x","priority":"high"}`)
	})

	priority := model.Priority("HIGH")
	task, err := client.UpdateTask(context.Background(), 3, model.TaskUpdate{Priority: &priority, ClearDueDate: true})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, task.Priority)
}

func TestSetTaskStatusAndDelete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			assert.Equal(t, "/api/tasks/4/status", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"completed":true}`, string(body))
			_, _ = io.WriteString(w, `{"id":4,"title":"x","completed":true}`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	})

	task, err := client.SetTaskStatus(context.Background(), 4, true)
	require.NoError(t, err)
	assert.True(t, task.Completed)
	require.NoError(t, client.DeleteTask(context.Background(), 4))
}

func TestErrorMessageResolution(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "string detail", status: 400, body: `{"detail":"Title is required"}`, message: "Title is required"},
		{name: "structured detail", status: 422, body: `{"detail":{"message":"bad due date","field":"due_date"}}`, message: "bad due date"},
		{name: "detail without message", status: 422, body: `{"detail": [ {"loc":["body","title"]} ]}`, message: `[{"loc":["body","title"]}]`},
		{name: "no detail", status: 500, body: `{"error":"boom"}`, message: "HTTP Error: 500"},
		{name: "not json", status: 502, body: `<html>bad gateway</html>`, message: "HTTP Error: 502"},
		{name: "empty body", status: 404, body: ``, message: "HTTP Error: 404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.GetTask(context.Background(), 1)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.message, Message(err, "fallback"))
		})
	}
}

func TestNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := server.URL
	server.Close()

	client := New(base, staticToken("secret"))
	_, err := client.CurrentUser(context.Background())
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "unable to reach the task service", Message(err, "fallback"))
}

func TestCanceledContextIsNotNetworkFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListTasks(ctx, model.Criteria{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimeoutDoesNotChangeSharedClient(t *testing.T) {
	shared := &http.Client{}
	client := New("http://host/api", staticToken("secret"), WithHTTPClient(shared), WithTimeout(3*time.Second))

	assert.Zero(t, shared.Timeout)
	assert.Equal(t, 3*time.Second, client.http.Timeout)
	assert.NotSame(t, shared, client.http)
}

func TestLoginIsFormEncoded(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ada@example.com", r.PostForm.Get("username"))
		assert.Equal(t, "hunter22", r.PostForm.Get("password"))
		_, _ = io.WriteString(w, `{"access_token":"a.b.c","token_type":"bearer"}`)
	})

	token, err := client.Login(context.Background(), "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", token.AccessToken)
}

func TestRegisterDoesNotNeedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/register", r.URL.Path)
		var body model.Registration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "5551234", body.PhoneNumber)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":12,"email":"ada@example.com"}`)
	}))
	defer server.Close()

	client := New(server.URL, staticToken(""))
	user, err := client.Register(context.Background(), model.Registration{Email: "ada@example.com", Password: "secret1", PhoneNumber: "5551234"})
	require.NoError(t, err)
	assert.Equal(t, model.Ref("12"), user.ID)
}

func TestMessageFallbacks(t *testing.T) {
	assert.Equal(t, "", Message(nil, "fallback"))
	assert.Equal(t, "fallback", Message(&APIError{Status: 500}, "fallback"))
	assert.Equal(t, "no authentication token found", Message(ErrUnauthenticated, "fallback"))
}

package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/account"
	"github.com/Joseda-hg/taskboard/internal/api"
	"github.com/Joseda-hg/taskboard/internal/guard"
	"github.com/Joseda-hg/taskboard/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var funcs = template.FuncMap{
	"due": dueLabel,
	"tags": func(tags []string) string {
		return strings.Join(tags, ", ")
	},
}

var (
	indexTemplate = template.Must(template.New("index.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/index.tmpl"))
	taskTemplate  = template.Must(template.New("task.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/task.tmpl"))
	loginTemplate = template.Must(template.New("login.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/login.tmpl"))
)

type Session interface {
	IsAuthenticated(ctx context.Context) bool
	CurrentUser(ctx context.Context) (model.User, bool)
}

type TaskReader interface {
	ListTasks(ctx context.Context, criteria model.Criteria) ([]model.Task, error)
	GetTask(ctx context.Context, id int64) (model.Task, error)
}

type Server struct {
	session Session
	account *account.Service
	tasks   TaskReader
	logger  *zap.Logger
	now     func() time.Time
}

func NewServer(session Session, accounts *account.Service, tasks TaskReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{session: session, account: accounts, tasks: tasks, logger: logger, now: time.Now}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, guard.DefaultReturn, http.StatusSeeOther)
	})
	r.Get(guard.LoginPath, s.loginPage)
	r.Post(guard.LoginPath, s.loginSubmit)
	r.Post("/logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/dashboard", s.indexHandler)
		r.Get("/tasks/{id}", s.taskHandler)
		r.Get("/api/tasks", s.apiTasksHandler)
		r.Get("/api/tasks/{id}", s.apiTaskHandler)
	})
	return r
}

// requireSession sends pages to the login screen with the requested location
// as the return target. JSON routes get a 401 instead.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.session.IsAuthenticated(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		s.unauthenticated(w, r)
	})
}

func (s *Server) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusUnauthorized, api.ErrUnauthenticated.Error())
		return
	}
	http.Redirect(w, r, guard.LoginLocation(r.URL.RequestURI()), http.StatusSeeOther)
}

type loginData struct {
	Email    string
	Redirect string
	Error    string
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	target := guard.ReturnTarget(r.URL.RequestURI())
	if s.session.IsAuthenticated(r.Context()) {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, loginTemplate, loginData{Redirect: target})
}

func (s *Server) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	form := account.LoginForm{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}
	target := guard.ReturnTarget(guard.LoginLocation(r.PostForm.Get("redirect")))

	if _, err := s.account.Login(r.Context(), form); err != nil {
		s.logger.Info("web login failed", zap.Error(err))
		s.render(w, http.StatusUnauthorized, loginTemplate, loginData{
			Email:    form.Email,
			Redirect: target,
			Error:    api.Message(err, "Login failed"),
		})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.account.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	criteria := criteriaFromRequest(r)
	list, ok := s.listTasks(w, r, criteria)
	if !ok {
		return
	}
	pending, completed := model.Partition(list)
	user, _ := s.session.CurrentUser(r.Context())

	data := struct {
		User      model.User
		Criteria  model.Criteria
		Total     int
		Pending   []model.Task
		Completed []model.Task
		Now       time.Time
	}{User: user, Criteria: criteria, Total: len(list), Pending: pending, Completed: completed, Now: s.now()}
	s.render(w, http.StatusOK, indexTemplate, data)
}

func (s *Server) taskHandler(w http.ResponseWriter, r *http.Request) {
	task, ok := s.getTask(w, r)
	if !ok {
		return
	}
	data := struct {
		Task model.Task
		Now  time.Time
	}{Task: task, Now: s.now()}
	s.render(w, http.StatusOK, taskTemplate, data)
}

func (s *Server) apiTasksHandler(w http.ResponseWriter, r *http.Request) {
	list, ok := s.listTasks(w, r, criteriaFromRequest(r))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) apiTaskHandler(w http.ResponseWriter, r *http.Request) {
	task, ok := s.getTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request, criteria model.Criteria) ([]model.Task, bool) {
	list, err := s.tasks.ListTasks(r.Context(), criteria)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return criteria.Apply(list), true
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) (model.Task, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "Task not found")
		return model.Task{}, false
	}
	task, err := s.tasks.GetTask(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return model.Task{}, false
	}
	return task, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, api.ErrUnauthenticated) {
		s.unauthenticated(w, r)
		return
	}
	status := http.StatusBadGateway
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		status = apiErr.Status
	}
	s.logger.Warn("task service request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, status, api.Message(err, "request failed"))
}

func (s *Server) render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("render page", zap.String("template", tmpl.Name()), zap.Error(err))
	}
}

func criteriaFromRequest(r *http.Request) model.Criteria {
	query := r.URL.Query()
	get := func(key string) string {
		return strings.TrimSpace(query.Get(key))
	}

	filters := model.TaskFilters{
		Tag:     get("tag"),
		Search:  get("q"),
		DueFrom: get("due_from"),
		DueTo:   get("due_to"),
	}
	switch status := model.Status(get("status")); status {
	case model.StatusPending, model.StatusCompleted:
		filters.Status = status
	}
	for _, p := range model.Priorities {
		if string(p) == get("priority") {
			filters.Priority = p
		}
	}

	sort := model.TaskSort{By: model.SortField(get("sort")), Order: model.SortOrder(get("order"))}
	return model.Criteria{Filters: filters, Sort: sort.Normalize()}
}

func dueLabel(task model.Task, now time.Time) string {
	if task.DueDate == nil {
		return ""
	}
	text := humanize.RelTime(task.DueDate.Time, now, "ago", "from now")
	switch model.TaskDueState(task, now) {
	case model.DueOverdue:
		return "overdue " + text
	case model.DueSoon:
		return "due soon, " + text
	}
	return text
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}

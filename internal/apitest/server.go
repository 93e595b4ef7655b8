// Package apitest runs an in-memory task backend speaking the same HTTP
// contract as the real service, for tests.
package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type user struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Password    string `json:"-"`
	FullName    string `json:"full_name"`
	FatherName  string `json:"father_name"`
	PhoneNumber string `json:"phone_number"`
	CreatedAt   string `json:"created_at"`
}

// task mirrors a backend row. Priority, recurrence and tags stay nil until a
// client sets them so responses omit them.
type task struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	Priority    *string   `json:"priority,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	DueDate     *string   `json:"due_date"`
	Recurrence  *string   `json:"recurrence,omitempty"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

type Server struct {
	*httptest.Server

	secret []byte

	mu         sync.Mutex
	users      map[string]*user
	tasks      map[int64]*task
	nextUserID int64
	nextTaskID int64
	clock      time.Time
	requests   map[string]int
}

func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret:   []byte("apitest-secret"),
		users:    make(map[string]*user),
		tasks:    make(map[int64]*task),
		clock:    time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		requests: make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// Requests counts handled requests by "METHOD /pattern".
func (s *Server) Requests(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

func (s *Server) AddUser(email, password string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(&user{Email: email, Password: password}).ID
}

func (s *Server) IssueToken(userID int64) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/users/me", s.me)
			r.Get("/tasks", s.listTasks)
			r.Post("/tasks", s.createTask)
			r.Get("/tasks/{id}", s.getTask)
			r.Put("/tasks/{id}", s.updateTask)
			r.Patch("/tasks/{id}/status", s.setStatus)
			r.Delete("/tasks/{id}", s.deleteTask)
		})
	})
	return r
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		s.mu.Lock()
		s.requests[r.Method+" "+pattern]++
		s.mu.Unlock()
	})
}

func (s *Server) addUserLocked(u *user) *user {
	s.nextUserID++
	u.ID = s.nextUserID
	u.CreatedAt = s.now()
	s.users[strings.ToLower(u.Email)] = u
	return u
}

// now must be called with mu held. Every call advances the clock by a
// second so creation order is visible in timestamps.
func (s *Server) now() string {
	s.clock = s.clock.Add(time.Second)
	return s.clock.Format("2006-01-02T15:04:05")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		FullName    string `json:"full_name"`
		FatherName  string `json:"father_name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	if body.Email == "" || body.Password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, map[string]string{"message": "Email and password are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[strings.ToLower(body.Email)]; exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	u := s.addUserLocked(&user{
		Email:       body.Email,
		Password:    body.Password,
		FullName:    body.FullName,
		FatherName:  body.FatherName,
		PhoneNumber: body.PhoneNumber,
	})
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid form body")
		return
	}
	email := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok || u.Password != password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	token, err := s.IssueToken(u.ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

type userIDKey struct{}

func withUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey{}).(int64)
	return id
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		sub, err := claims.GetSubject()
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), id)))
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id := userIDFrom(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			writeJSON(w, http.StatusOK, u)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "User not found")
}

// listTasks honours status, sort_by and sort_order only. Other filters are
// left to the client.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	owner := userIDFrom(r.Context())
	query := r.URL.Query()
	status := strings.TrimSpace(query.Get("status"))

	s.mu.Lock()
	result := make([]task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.UserID != owner {
			continue
		}
		if status == "completed" && !t.Completed || status == "pending" && t.Completed {
			continue
		}
		result = append(result, *t)
	}
	s.mu.Unlock()

	sortTasks(result, query.Get("sort_by"), query.Get("sort_order"))
	writeJSON(w, http.StatusOK, result)
}

func sortTasks(tasks []task, by, order string) {
	key := func(t task) string {
		switch by {
		case "title":
			return strings.ToLower(t.Title)
		case "due_date":
			if t.DueDate == nil {
				return ""
			}
			return *t.DueDate
		default:
			return t.CreatedAt
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if order == "asc" {
			return key(tasks[i]) < key(tasks[j])
		}
		return key(tasks[i]) > key(tasks[j])
	})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stamp := s.now()
	t := &task{UserID: userIDFrom(r.Context()), CreatedAt: stamp, UpdatedAt: stamp}
	if err := applyFields(t, body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if strings.TrimSpace(t.Title) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, map[string]string{"message": "Title is required", "field": "title"})
		return
	}
	s.nextTaskID++
	t.ID = s.nextTaskID
	s.tasks[t.ID] = t
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTask(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTask(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	updated := *t
	if err := applyFields(&updated, body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if strings.TrimSpace(updated.Title) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, map[string]string{"message": "Title is required", "field": "title"})
		return
	}
	updated.UpdatedAt = s.now()
	*t = updated
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Completed *bool `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Completed == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "completed is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTask(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	t.Completed = *body.Completed
	t.UpdatedAt = s.now()
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTask(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	delete(s.tasks, t.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ownedTask must be called with mu held.
func (s *Server) ownedTask(r *http.Request) (*task, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, false
	}
	t, ok := s.tasks[id]
	if !ok || t.UserID != userIDFrom(r.Context()) {
		return nil, false
	}
	return t, true
}

func applyFields(t *task, body map[string]json.RawMessage) error {
	for key, raw := range body {
		var err error
		switch key {
		case "title":
			err = json.Unmarshal(raw, &t.Title)
		case "description":
			t.Description = nil
			err = json.Unmarshal(raw, &t.Description)
		case "completed":
			err = json.Unmarshal(raw, &t.Completed)
		case "priority":
			t.Priority = nil
			err = json.Unmarshal(raw, &t.Priority)
		case "tags":
			t.Tags = nil
			err = json.Unmarshal(raw, &t.Tags)
		case "due_date":
			t.DueDate = nil
			err = json.Unmarshal(raw, &t.DueDate)
		case "recurrence":
			t.Recurrence = nil
			err = json.Unmarshal(raw, &t.Recurrence)
		}
		if err != nil {
			return fmt.Errorf("invalid %s", key)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

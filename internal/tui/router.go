package tui

import (
	"strconv"
	"strings"
	"sync"

	"github.com/Joseda-hg/taskboard/internal/guard"
)

const (
	routeLogin     = guard.LoginPath
	routeRegister  = "/register"
	routeDashboard = guard.DefaultReturn
	routeNewTask   = "/tasks/new"
)

// router holds the current screen location. It is safe to call from any
// goroutine; onChange runs after every change of location.
type router struct {
	mu       sync.Mutex
	location string
	history  []string
	onChange func()
}

func newRouter(start string) *router {
	if strings.TrimSpace(start) == "" {
		start = routeDashboard
	}
	return &router{location: start}
}

func (r *router) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

func (r *router) Replace(location string) {
	r.set(location, false)
}

// Push moves to location; Back returns to it.
func (r *router) Push(location string) {
	r.set(location, true)
}

func (r *router) Back(fallback string) {
	r.mu.Lock()
	target := fallback
	if n := len(r.history); n > 0 {
		target = r.history[n-1]
		r.history = r.history[:n-1]
	}
	r.mu.Unlock()
	r.set(target, false)
}

func (r *router) set(location string, record bool) {
	r.mu.Lock()
	if location == r.location {
		r.mu.Unlock()
		return
	}
	if record {
		r.history = append(r.history, r.location)
	}
	r.location = location
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

func routePath(location string) string {
	path, _, _ := strings.Cut(location, "?")
	return path
}

func isPublicRoute(location string) bool {
	switch routePath(location) {
	case routeLogin, routeRegister:
		return true
	default:
		return false
	}
}

func editTaskRoute(id int64) string {
	return "/tasks/" + strconv.FormatInt(id, 10) + "/edit"
}

func editTaskID(location string) (int64, bool) {
	rest, ok := strings.CutPrefix(routePath(location), "/tasks/")
	if !ok {
		return 0, false
	}
	idText, ok := strings.CutSuffix(rest, "/edit")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

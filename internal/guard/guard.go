// Package guard gates protected screens on the presence of a session.
package guard

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/auth"
)

const (
	LoginPath     = "/login"
	DefaultReturn = "/dashboard"
)

type State int

const (
	StateChecking State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "checking"
	}
}

type View int

const (
	ViewLoading View = iota
	ViewProtected
	ViewNone
)

type Session interface {
	IsAuthenticated(ctx context.Context) bool
	Subscribe(fn auth.Listener) func()
}

type Navigator interface {
	Location() string
	Replace(location string)
}

type Guard struct {
	session Session
	nav     Navigator
	logger  *zap.Logger

	mu             sync.Mutex
	ctx            context.Context
	state          State
	mounted        bool
	unsubscribe    func()
	redirectedFrom string
	onChange       func(State)
}

func New(session Session, nav Navigator, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		session: session,
		nav:     nav,
		logger:  logger,
		state:   StateChecking,
	}
}

func (g *Guard) OnChange(fn func(State)) {
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) View() View {
	switch g.State() {
	case StateAuthenticated:
		return ViewProtected
	case StateUnauthenticated:
		return ViewNone
	default:
		return ViewLoading
	}
}

// Mount starts in the checking state, subscribes to session changes and
// evaluates once. The context is used for every later evaluation until
// Unmount.
func (g *Guard) Mount(ctx context.Context) {
	g.mu.Lock()
	if g.mounted {
		g.mu.Unlock()
		return
	}
	g.ctx = ctx
	g.mounted = true
	g.state = StateChecking
	g.redirectedFrom = ""
	g.mu.Unlock()

	unsubscribe := g.session.Subscribe(g.sessionChanged)

	g.mu.Lock()
	g.unsubscribe = unsubscribe
	g.mu.Unlock()

	g.evaluate()
}

func (g *Guard) Unmount() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mounted = false
	g.state = StateChecking
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (g *Guard) PathChanged() {
	g.evaluate()
}

// Remote writes are only relevant when they touch the token.
func (g *Guard) sessionChanged(change auth.Change) {
	if change.Source == auth.SourceRemote && change.Key != auth.TokenKey {
		return
	}
	g.evaluate()
}

func (g *Guard) evaluate() {
	g.mu.Lock()
	if !g.mounted {
		g.mu.Unlock()
		return
	}
	ctx := g.ctx
	g.mu.Unlock()

	authenticated := g.session.IsAuthenticated(ctx)
	location := g.nav.Location()

	g.mu.Lock()
	if !g.mounted {
		g.mu.Unlock()
		return
	}
	previous := g.state
	redirect := ""
	if authenticated {
		g.state = StateAuthenticated
		g.redirectedFrom = ""
	} else {
		g.state = StateUnauthenticated
		switch {
		case IsLogin(location):
			g.redirectedFrom = ""
		case location != g.redirectedFrom:
			g.redirectedFrom = location
			redirect = LoginLocation(location)
		}
	}
	state := g.state
	onChange := g.onChange
	g.mu.Unlock()

	if state != previous {
		g.logger.Debug("guard state changed",
			zap.Stringer("from", previous),
			zap.Stringer("to", state),
			zap.String("location", location),
		)
		if onChange != nil {
			onChange(state)
		}
	}
	if redirect != "" {
		g.nav.Replace(redirect)
	}
}

func IsLogin(location string) bool {
	path, _, _ := strings.Cut(location, "?")
	return path == LoginPath
}

func LoginLocation(target string) string {
	if target == "" {
		return LoginPath
	}
	return LoginPath + "?redirect=" + url.QueryEscape(target)
}

// ReturnTarget extracts where to go after logging in from a login location.
// Only local paths are accepted.
func ReturnTarget(location string) string {
	_, query, _ := strings.Cut(location, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return DefaultReturn
	}
	target := values.Get("redirect")
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || IsLogin(target) {
		return DefaultReturn
	}
	return target
}

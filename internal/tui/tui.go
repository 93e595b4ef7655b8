package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/account"
	"github.com/Joseda-hg/taskboard/internal/auth"
	"github.com/Joseda-hg/taskboard/internal/debounce"
	"github.com/Joseda-hg/taskboard/internal/guard"
	"github.com/Joseda-hg/taskboard/internal/model"
	"github.com/Joseda-hg/taskboard/internal/tasks"
)

const (
	viewHeader  = "header"
	viewFooter  = "footer"
	viewPending = "pending"
	viewDone    = "done"
	viewDetail  = "detail"
	viewSearch  = "search"
	viewForm    = "form"
	viewHelp    = "help"
	viewAuth    = "auth"
	viewLoading = "loading"
)

var dashboardViews = []string{viewHeader, viewFooter, viewPending, viewDone, viewDetail, viewSearch, viewForm, viewHelp}

const defaultSearchDebounce = 300 * time.Millisecond

type Deps struct {
	Session    *auth.Store
	Account    *account.Service
	Collection *tasks.Collection
	Mutations  *tasks.Mutations
	Logger     *zap.Logger

	SearchDebounce time.Duration
	StartLocation  string
}

type UI struct {
	ctx        context.Context
	session    *auth.Store
	account    *account.Service
	collection *tasks.Collection
	mutations  *tasks.Mutations
	logger     *zap.Logger
	gui        *gocui.Gui
	now        func() time.Time

	router       *router
	guard        *guard.Guard
	guardMounted bool
	search       *debounce.Debouncer[string]
	unsubscribe  []func()

	token           string
	user            model.User
	focus           string
	selectedPending int
	selectedDone    int
	form            *formState
	formEditor      *formEditor
	searchActive    bool
	searchValue     string
	searchPrevious  string
	helpActive      bool
	loginEmail      string
	status          string
}

type formEditor struct {
	ui *UI
}

type searchEditor struct {
	ui *UI
}

func newUI(ctx context.Context, deps Deps) *UI {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := deps.SearchDebounce
	if delay <= 0 {
		delay = defaultSearchDebounce
	}

	u := &UI{
		ctx:        ctx,
		session:    deps.Session,
		account:    deps.Account,
		collection: deps.Collection,
		mutations:  deps.Mutations,
		logger:     logger,
		now:        time.Now,
		router:     newRouter(deps.StartLocation),
		focus:      viewPending,
	}
	u.formEditor = &formEditor{ui: u}
	u.guard = guard.New(deps.Session, u.router, logger)
	u.search = debounce.New(delay, u.applySearch)
	return u
}

func Run(ctx context.Context, deps Deps) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	u := newUI(ctx, deps)
	u.gui = gui
	gui.Mouse = true

	gui.SetManagerFunc(u.layout)
	if err := u.bindKeys(gui); err != nil {
		return err
	}

	u.start()
	defer u.stop()

	if err := gui.MainLoop(); err != nil && !goerrors.Is(err, gocui.ErrQuit) {
		return err
	}
	return nil
}

func (u *UI) start() {
	u.token, _ = u.session.Token(u.ctx)
	if user, ok := u.session.CurrentUser(u.ctx); ok {
		u.user = user
	}

	u.guard.OnChange(func(state guard.State) {
		u.onMain(func() { u.guardChanged(state) })
	})
	u.unsubscribe = append(u.unsubscribe,
		u.session.Subscribe(func(auth.Change) {
			u.onMain(u.sessionChanged)
		}),
		u.collection.Subscribe(func(tasks.State) {
			u.onMain(u.tasksChanged)
		}),
	)

	u.router.mu.Lock()
	u.router.onChange = func() { u.onMain(u.routeChanged) }
	u.router.mu.Unlock()

	u.routeChanged()
}

func (u *UI) stop() {
	u.search.Cancel()
	for _, unsubscribe := range u.unsubscribe {
		unsubscribe()
	}
	u.unsubscribe = nil
	u.guard.Unmount()
	u.collection.Close()
}

// onMain runs fn on the UI loop. Without a gui it runs inline.
func (u *UI) onMain(fn func()) {
	if u.gui == nil {
		fn()
		return
	}
	u.gui.Update(func(*gocui.Gui) error {
		fn()
		return nil
	})
}

// background runs blocking work off the UI loop. Without a gui it runs
// inline.
func (u *UI) background(fn func()) {
	if u.gui == nil {
		fn()
		return
	}
	go fn()
}

func (u *UI) routeChanged() {
	location := u.router.Location()
	u.searchActive = false
	u.helpActive = false

	if isPublicRoute(location) {
		if u.guardMounted {
			u.guard.Unmount()
			u.guardMounted = false
		}
		if u.session.IsAuthenticated(u.ctx) {
			u.router.Replace(exitTarget(location))
			return
		}
		u.openAuthForm(location)
		return
	}

	if u.form != nil && u.form.kind != formTask {
		u.form = nil
	}
	if !u.guardMounted {
		u.guardMounted = true
		u.guard.Mount(u.ctx)
	} else {
		u.guard.PathChanged()
	}
	if u.router.Location() != location {
		return
	}
	u.syncRouteForm()
}

func exitTarget(location string) string {
	if guard.IsLogin(location) {
		return guard.ReturnTarget(location)
	}
	return routeDashboard
}

func (u *UI) guardChanged(state guard.State) {
	if state != guard.StateAuthenticated {
		return
	}
	u.background(func() {
		if err := u.collection.Refetch(u.ctx); err != nil {
			u.logger.Debug("initial task load failed", zap.Error(err))
		}
		if _, err := u.account.RefreshProfile(u.ctx); err != nil {
			u.logger.Debug("refresh profile", zap.Error(err))
		}
	})
	u.syncRouteForm()
}

func (u *UI) sessionChanged() {
	if user, ok := u.session.CurrentUser(u.ctx); ok {
		u.user = user
	} else {
		u.user = model.User{}
	}

	token, _ := u.session.Token(u.ctx)
	if token != u.token {
		previous := u.token
		u.token = token
		if previous != "" {
			u.resetDashboard()
			if token != "" && u.guard.State() == guard.StateAuthenticated {
				u.refetch()
			}
		}
	}

	location := u.router.Location()
	if isPublicRoute(location) && u.session.IsAuthenticated(u.ctx) {
		u.router.Replace(exitTarget(location))
	}
}

func (u *UI) resetDashboard() {
	u.search.Cancel()
	u.searchActive = false
	u.searchValue = ""
	u.searchPrevious = ""
	u.selectedPending = 0
	u.selectedDone = 0
	u.focus = viewPending
	u.collection.Reset()
}

func (u *UI) tasksChanged() {
	u.selectedPending = clampIndex(u.selectedPending, len(u.collection.Pending()))
	u.selectedDone = clampIndex(u.selectedDone, len(u.collection.Completed()))
	u.syncRouteForm()
}

func (u *UI) syncRouteForm() {
	location := u.router.Location()
	if isPublicRoute(location) || u.guard.State() != guard.StateAuthenticated {
		return
	}

	if routePath(location) == routeNewTask {
		if u.form == nil || u.form.kind != formTask || u.form.taskID != 0 {
			u.form = &formState{kind: formTask, fields: buildFormFields(nil)}
		}
		return
	}

	id, ok := editTaskID(location)
	if !ok {
		if u.form != nil && u.form.kind == formTask {
			u.form = nil
		}
		return
	}
	if u.form != nil && u.form.kind == formTask && u.form.taskID == id {
		return
	}
	task, found := u.collection.Find(id)
	if !found {
		if u.collection.State().Loading {
			return
		}
		u.status = fmt.Sprintf("Task %d not found", id)
		u.router.Replace(routeDashboard)
		return
	}
	u.form = &formState{kind: formTask, taskID: id, fields: buildFormFields(&task)}
}

func (u *UI) openAuthForm(location string) {
	kind := formRegister
	if guard.IsLogin(location) {
		kind = formLogin
	}
	if u.form != nil && u.form.kind == kind {
		return
	}

	fields := registerFields()
	if kind == formLogin {
		fields = loginFields()
		fields[loginEmail].Value = u.loginEmail
		if u.loginEmail != "" {
			u.form = &formState{kind: kind, fields: fields, index: loginPassword}
			return
		}
	}
	u.form = &formState{kind: kind, fields: fields}
}

func (u *UI) applySearch(value string) {
	if err := u.collection.SetSearch(u.ctx, value); err != nil {
		u.logger.Debug("search refetch failed", zap.Error(err))
	}
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}

	if isPublicRoute(u.router.Location()) {
		deleteViews(gui, dashboardViews...)
		deleteViews(gui, viewLoading)
		if err := u.showAuth(gui); err != nil {
			return err
		}
		u.focusCurrent(gui)
		return nil
	}
	deleteViews(gui, viewAuth)

	switch u.guard.View() {
	case guard.ViewLoading:
		deleteViews(gui, dashboardViews...)
		return u.showLoading(gui)
	case guard.ViewNone:
		deleteViews(gui, dashboardViews...)
		deleteViews(gui, viewLoading)
		return nil
	}
	deleteViews(gui, viewLoading)

	if err := u.layoutDashboard(gui, maxX, maxY); err != nil {
		return err
	}
	u.focusCurrent(gui)
	gui.Cursor = u.searchActive || u.form != nil
	return nil
}

func (u *UI) layoutDashboard(gui *gocui.Gui, maxX, maxY int) error {
	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	headerView.Wrap = true
	headerView.FgColor = gocui.ColorDefault
	u.renderHeader(headerView)

	footerY1 := max(maxY-2, 1)
	footerY0 := max(footerY1-3, 1)
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	footerView.BgColor = gocui.ColorDefault
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom < bodyTop {
		return nil
	}

	layout := computeLayout(maxX, bodyBottom-bodyTop+1)
	leftX1 := layout.leftWidth - 1
	rightX0 := leftX1 + 1
	if rightX0 >= maxX {
		rightX0 = leftX1
	}
	pendingY1 := bodyTop + layout.pendingHeight - 1

	pending := u.collection.Pending()
	completed := u.collection.Completed()

	pendingView, err := gui.SetView(viewPending, 0, bodyTop, leftX1, pendingY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	pendingView.Title = fmt.Sprintf("1 Pending (%d)", len(pending))
	pendingView.TitleColor = gocui.ColorYellow
	applyViewStyle(pendingView, u.focus == viewPending, true)
	u.renderTaskList(pendingView, pending, u.selectedPending, u.focus == viewPending)

	doneView, err := gui.SetView(viewDone, 0, pendingY1+1, leftX1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	doneView.Title = fmt.Sprintf("2 Completed (%d)", len(completed))
	doneView.TitleColor = gocui.ColorGreen
	applyViewStyle(doneView, u.focus == viewDone, true)
	u.renderTaskList(doneView, completed, u.selectedDone, u.focus == viewDone)

	detailView, err := gui.SetView(viewDetail, rightX0, bodyTop, maxX-1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		detailView.Title = "Details"
		detailView.Wrap = true
	}
	applyViewStyle(detailView, false, false)
	u.renderDetail(detailView)

	_, _ = gui.SetViewOnTop(viewHeader)
	_, _ = gui.SetViewOnTop(viewFooter)

	if u.searchActive {
		if err := u.showSearch(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewSearch)
	}

	if u.form != nil && u.form.kind == formTask {
		if err := u.showForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewForm)
	}

	if u.helpActive {
		if err := u.showHelp(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewHelp)
	}

	return nil
}

type layout struct {
	leftWidth     int
	pendingHeight int
}

func computeLayout(width, height int) layout {
	safeWidth := max(width-2, 20)
	safeHeight := max(height, 8)

	leftWidth := safeWidth * 3 / 5
	if leftWidth < 30 {
		leftWidth = 30
	}
	if leftWidth > safeWidth-18 {
		leftWidth = safeWidth / 2
	}

	pendingHeight := int(float64(safeHeight) * 0.6)
	if pendingHeight < 4 {
		pendingHeight = 4
	}
	if safeHeight-pendingHeight < 4 {
		pendingHeight = max(safeHeight-4, 4)
	}

	return layout{leftWidth: leftWidth, pendingHeight: pendingHeight}
}

func (u *UI) currentViewName() string {
	switch {
	case isPublicRoute(u.router.Location()):
		return viewAuth
	case u.helpActive:
		return viewHelp
	case u.form != nil && u.form.kind == formTask:
		return viewForm
	case u.searchActive:
		return viewSearch
	default:
		return u.focus
	}
}

func (u *UI) focusCurrent(gui *gocui.Gui) {
	name := u.currentViewName()
	if current := gui.CurrentView(); current != nil && current.Name() == name {
		return
	}
	_, _ = gui.SetCurrentView(name)
}

func deleteViews(gui *gocui.Gui, names ...string) {
	for _, name := range names {
		_ = gui.DeleteView(name)
	}
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	activity := ""
	if u.collection.State().Loading || u.mutations.Loading() {
		activity = " | working..."
	}
	fmt.Fprintf(view, "%s%s | %s", u.user.DisplayName(), activity, criteriaLabel(u.collection.Criteria()))
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	view.SetOrigin(0, 0)
	view.SetCursor(0, 0)

	fmt.Fprintln(view, "a add | e edit | d delete | x toggle done | / search | f status | p priority | t tag")
	fmt.Fprintln(view, "o sort field | O sort order | g clear | r reload | tab pane | L logout | ? help | q quit")
	if message := u.statusLine(); message != "" {
		fmt.Fprint(view, message)
	}
}

func (u *UI) statusLine() string {
	if u.status != "" {
		return u.status
	}
	if message := u.mutations.Err(); message != "" {
		return message
	}
	return u.collection.State().Err
}

func (u *UI) renderTaskList(view *gocui.View, list []model.Task, selected int, focused bool) {
	view.Clear()
	if len(list) == 0 {
		if u.collection.State().Loading {
			fmt.Fprintln(view, "  loading...")
		} else {
			fmt.Fprintln(view, "  nothing here")
		}
		return
	}

	now := u.now()
	for i, task := range list {
		prefix := " "
		if i == selected {
			if focused {
				prefix = ">"
			} else {
				prefix = "*"
			}
		}
		check := "[ ]"
		if task.Completed {
			check = "[x]"
		}
		fmt.Fprintf(view, "%s %s %s\n", prefix, check, formatTaskSummary(task, now))
	}
	if focused {
		view.SetCursor(0, min(selected, len(list)-1))
	}
}

func (u *UI) renderDetail(view *gocui.View) {
	view.Clear()
	selected := u.selectedTask()
	if selected == nil {
		fmt.Fprint(view, "No task selected")
		return
	}
	fmt.Fprint(view, strings.Join(describeTask(*selected, u.now()), "\n"))
}

func (u *UI) showLoading(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := min(30, maxX-1)
	x0 := max((maxX-width)/2, 0)
	y0 := max(maxY/2-1, 0)

	view, err := gui.SetView(viewLoading, x0, y0, x0+width, y0+2, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	view.Clear()
	fmt.Fprint(view, " Checking session...")
	return nil
}

func (u *UI) showAuth(gui *gocui.Gui) error {
	if u.form == nil {
		return nil
	}

	maxX, maxY := gui.Size()
	width := max(50, maxX/2)
	height := len(u.form.fields) + 5
	x0 := max((maxX-width)/2, 0)
	y0 := max((maxY-height)/2, 0)

	view, err := gui.SetView(viewAuth, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
	}
	view.Title = "Log in"
	if u.form.kind == formRegister {
		view.Title = "Create account"
	}
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	u.renderForm(view)
	gui.Cursor = true
	return nil
}

func (u *UI) showHelp(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := min(22, maxY-2)
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewHelp, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Help"
		view.Wrap = true
	}
	view.Clear()
	fmt.Fprint(view, helpText())
	return nil
}

func (u *UI) showSearch(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(30, maxX/2)
	height := 2
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewSearch, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Search (live)"
		view.Wrap = true
		view.Clear()
		fmt.Fprint(view, u.searchValue)
		view.SetCursor(len([]rune(u.searchValue)), 0)
	}
	view.Editable = true
	view.Editor = &searchEditor{ui: u}
	return nil
}

func (u *UI) showForm(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := min(len(u.form.fields)+3, max(8, maxY-2))
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewForm, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
	}
	view.Title = "New Task"
	if u.form.taskID != 0 {
		view.Title = "Edit Task"
	}
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	u.renderForm(view)
	return nil
}

func (u *UI) renderForm(view *gocui.View) {
	if u.form == nil || view == nil {
		return
	}
	view.Clear()
	for index, field := range u.form.fields {
		prefix := "  "
		if index == u.form.index {
			prefix = "> "
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, displayValue(field))
	}
	if u.form.kind != formTask {
		fmt.Fprintln(view)
		if u.status != "" {
			fmt.Fprintln(view, u.status)
		}
		if u.form.kind == formLogin {
			fmt.Fprint(view, "enter log in | tab next field | ctrl-r create account | ctrl-c quit")
		} else {
			fmt.Fprint(view, "enter register | tab next field | ctrl-r back to log in | ctrl-c quit")
		}
	}

	field := u.form.fields[u.form.index]
	cursorX := len([]rune(field.Label)) + len([]rune(displayValue(field))) + 4
	view.SetCursor(cursorX, u.form.index)
}

func displayValue(field formField) string {
	if field.Secret {
		return strings.Repeat("*", len([]rune(field.Value)))
	}
	return field.Value
}

func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	ui := e.ui
	if ui == nil || ui.form == nil {
		return false
	}
	field := &ui.form.fields[ui.form.index]

	if len(field.Choices) > 0 {
		switch key {
		case gocui.KeyArrowRight, gocui.KeySpace:
			field.Value = cycleChoice(field.Choices, field.Value, 1)
		case gocui.KeyArrowLeft:
			field.Value = cycleChoice(field.Choices, field.Value, -1)
		}
		ui.renderForm(view)
		return true
	}

	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		runes := []rune(field.Value)
		if len(runes) > 0 {
			field.Value = string(runes[:len(runes)-1])
		}
	case gocui.KeySpace:
		field.Value += " "
	case gocui.KeyCtrlU:
		field.Value = ""
	}

	if ch != 0 && ch != '\n' && ch != '\r' && mod == 0 {
		field.Value += string(ch)
	}

	ui.renderForm(view)
	return true
}

func (e *searchEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	matched := gocui.DefaultEditor.Edit(view, key, ch, mod)
	e.ui.searchInput(view.Buffer())
	return matched
}

func helpText() string {
	return strings.Join([]string{
		"Navigation:",
		"  Tab switch between pending and completed",
		"  j/k or arrows move selection | mouse click selects",
		"",
		"Tasks:",
		"  a add | e edit | d delete | x toggle done",
		"  enter save (form) | tab next field | esc cancel",
		"  space/left/right cycle priority and recurrence (form)",
		"",
		"Search/Filter:",
		"  / live search (enter keep, esc restore)",
		"  f status | p priority | t tag | g clear filters",
		"  o sort field | O sort order",
		"",
		"Session:",
		"  L log out | r reload",
		"",
		"Other:",
		"  ? help | esc/q close help | q quit",
	}, "\n")
}

func applyViewStyle(view *gocui.View, focused bool, highlight bool) {
	view.Frame = true
	view.Highlight = focused && highlight
	view.HighlightInactive = false
	view.SelBgColor = gocui.ColorBlue
	view.SelFgColor = gocui.ColorBlack
	view.InactiveViewSelBgColor = gocui.ColorDefault
	if focused {
		view.FrameColor = gocui.ColorCyan
		view.TitleColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
	}
}

func clampIndex(index, length int) int {
	if index >= length {
		return max(length-1, 0)
	}
	return max(index, 0)
}

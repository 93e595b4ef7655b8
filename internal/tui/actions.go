package tui

import (
	"strings"

	"github.com/jesseduffield/gocui"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/api"
	"github.com/Joseda-hg/taskboard/internal/guard"
	"github.com/Joseda-hg/taskboard/internal/model"
)

type binding struct {
	view    string
	key     any
	handler func(*gocui.Gui, *gocui.View) error
}

func (u *UI) bindings() []binding {
	bindings := []binding{
		{"", gocui.KeyCtrlC, u.quit},
		{"", 'q', u.quit},
		{"", 'r', u.reload},
		{"", 'g', u.clearFilters},
		{"", 'a', u.addTask},
		{"", 'e', u.editTask},
		{"", 'd', u.deleteTask},
		{"", 'x', u.toggleDone},
		{"", '/', u.startSearch},
		{"", 'f', u.cycleStatusFilter},
		{"", 'p', u.cyclePriorityFilter},
		{"", 't', u.cycleTagFilter},
		{"", 'o', u.cycleSortField},
		{"", 'O', u.toggleSortOrder},
		{"", 'L', u.logout},
		{"", '?', u.toggleHelp},
		{"", gocui.KeyTab, u.switchFocus},
		{"", '1', u.focusPending},
		{"", '2', u.focusDone},

		{viewSearch, gocui.KeyEnter, u.submitSearch},
		{viewSearch, gocui.KeyEsc, u.cancelSearch},

		{viewForm, gocui.KeyEnter, u.submitForm},
		{viewForm, gocui.KeyCtrlJ, u.submitForm},
		{viewForm, gocui.KeyTab, u.nextFormField},
		{viewForm, gocui.KeyBacktab, u.prevFormField},
		{viewForm, gocui.KeyArrowDown, u.nextFormField},
		{viewForm, gocui.KeyArrowUp, u.prevFormField},
		{viewForm, gocui.KeyEsc, u.cancelForm},

		{viewAuth, gocui.KeyEnter, u.submitForm},
		{viewAuth, gocui.KeyTab, u.nextFormField},
		{viewAuth, gocui.KeyBacktab, u.prevFormField},
		{viewAuth, gocui.KeyArrowDown, u.nextFormField},
		{viewAuth, gocui.KeyArrowUp, u.prevFormField},
		{viewAuth, gocui.KeyCtrlR, u.toggleAuthMode},

		{viewHelp, gocui.KeyEsc, u.closeHelp},
		{viewHelp, 'q', u.closeHelp},
		{viewHelp, '?', u.closeHelp},
	}
	for _, name := range []string{viewPending, viewDone} {
		bindings = append(bindings,
			binding{name, gocui.KeyArrowDown, u.moveDown},
			binding{name, 'j', u.moveDown},
			binding{name, gocui.KeyArrowUp, u.moveUp},
			binding{name, 'k', u.moveUp},
			binding{name, gocui.KeyEnter, u.editTask},
			binding{name, gocui.MouseWheelUp, u.scrollUp},
			binding{name, gocui.MouseWheelDown, u.scrollDown},
		)
	}
	return bindings
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	for _, b := range u.bindings() {
		if err := gui.SetKeybinding(b.view, b.key, gocui.ModNone, b.handler); err != nil {
			return err
		}
	}
	for _, name := range []string{viewPending, viewDone} {
		viewName := name
		if err := gui.SetViewClickBinding(&gocui.ViewMouseBinding{ViewName: viewName, Key: gocui.MouseLeft, Handler: func(opts gocui.ViewMouseBindingOpts) error {
			return u.onListClick(gui, viewName, opts)
		}}); err != nil {
			return err
		}
	}
	return nil
}

// inputActive reports whether an overlay or a non-dashboard screen owns the
// keyboard.
func (u *UI) inputActive() bool {
	return u.searchActive || u.form != nil || u.helpActive || !u.onDashboard()
}

func (u *UI) onDashboard() bool {
	return !isPublicRoute(u.router.Location()) && u.guard.State() == guard.StateAuthenticated
}

func (u *UI) quit(_ *gocui.Gui, _ *gocui.View) error {
	return gocui.ErrQuit
}

func (u *UI) selectedTask() *model.Task {
	var list []model.Task
	index := u.selectedPending
	if u.focus == viewDone {
		list = u.collection.Completed()
		index = u.selectedDone
	} else {
		list = u.collection.Pending()
	}
	if index < 0 || index >= len(list) {
		return nil
	}
	task := list[index]
	return &task
}

func (u *UI) onListClick(gui *gocui.Gui, viewName string, opts gocui.ViewMouseBindingOpts) error {
	if u.inputActive() {
		return nil
	}
	view, err := gui.View(viewName)
	if err != nil {
		return nil
	}

	_, y0, _, _ := view.Dimensions()
	_, oy := view.Origin()
	row := max(opts.Y-y0-1+oy, 0)

	switch viewName {
	case viewPending:
		u.selectedPending = clampIndex(row, len(u.collection.Pending()))
	case viewDone:
		u.selectedDone = clampIndex(row, len(u.collection.Completed()))
	}
	return u.setFocus(gui, viewName)
}

func (u *UI) scrollUp(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() || view == nil {
		return nil
	}
	view.ScrollUp(1)
	return nil
}

func (u *UI) scrollDown(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() || view == nil {
		return nil
	}
	view.ScrollDown(1)
	return nil
}

func (u *UI) switchFocus(gui *gocui.Gui, _ *gocui.View) error {
	if u.focus == viewPending {
		return u.setFocus(gui, viewDone)
	}
	return u.setFocus(gui, viewPending)
}

func (u *UI) focusPending(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewPending)
}

func (u *UI) focusDone(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewDone)
}

func (u *UI) setFocus(gui *gocui.Gui, name string) error {
	if u.inputActive() {
		return nil
	}
	u.focus = name
	if gui != nil {
		_, _ = gui.SetCurrentView(name)
	}
	return nil
}

func (u *UI) moveDown(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewDone:
		if u.selectedDone < len(u.collection.Completed())-1 {
			u.selectedDone++
		}
	default:
		if u.selectedPending < len(u.collection.Pending())-1 {
			u.selectedPending++
		}
	}
	return nil
}

func (u *UI) moveUp(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewDone:
		if u.selectedDone > 0 {
			u.selectedDone--
		}
	default:
		if u.selectedPending > 0 {
			u.selectedPending--
		}
	}
	return nil
}

func (u *UI) reload(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.status = ""
	u.refetch()
	return nil
}

func (u *UI) refetch() {
	u.background(func() {
		if err := u.collection.Refetch(u.ctx); err != nil {
			u.logger.Debug("refetch failed", zap.Error(err))
		}
	})
}

func (u *UI) setCriteria(criteria model.Criteria) {
	u.background(func() {
		if err := u.collection.SetCriteria(u.ctx, criteria); err != nil {
			u.logger.Debug("criteria refetch failed", zap.Error(err))
		}
	})
}

func (u *UI) clearFilters(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.search.Cancel()
	u.searchValue = ""
	u.status = ""
	criteria := u.collection.Criteria()
	criteria.Filters = model.TaskFilters{}
	u.setCriteria(criteria)
	return nil
}

func (u *UI) cycleStatusFilter(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	criteria := u.collection.Criteria()
	criteria.Filters.Status = nextStatusFilter(criteria.Filters.Status)
	u.setCriteria(criteria)
	return nil
}

func (u *UI) cyclePriorityFilter(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	criteria := u.collection.Criteria()
	criteria.Filters.Priority = nextPriorityFilter(criteria.Filters.Priority)
	u.setCriteria(criteria)
	return nil
}

func (u *UI) cycleTagFilter(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	criteria := u.collection.Criteria()
	criteria.Filters.Tag = nextTagFilter(criteria.Filters.Tag, u.collection.AvailableTags())
	u.setCriteria(criteria)
	return nil
}

func (u *UI) cycleSortField(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	criteria := u.collection.Criteria()
	criteria.Sort.By = nextSortField(criteria.Sort.By)
	u.setCriteria(criteria)
	return nil
}

func (u *UI) toggleSortOrder(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	criteria := u.collection.Criteria()
	criteria.Sort.Order = flipSortOrder(criteria.Sort.Order)
	u.setCriteria(criteria)
	return nil
}

func (u *UI) startSearch(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.searchActive = true
	u.searchPrevious = u.collection.Criteria().Filters.Search
	u.searchValue = u.searchPrevious
	return nil
}

// searchInput records the text typed so far and schedules a search once
// typing pauses.
func (u *UI) searchInput(value string) {
	value = strings.TrimSpace(value)
	if value == u.searchValue {
		return
	}
	u.searchValue = value
	u.search.Push(value)
}

func (u *UI) submitSearch(_ *gocui.Gui, _ *gocui.View) error {
	if !u.searchActive {
		return nil
	}
	u.searchActive = false
	u.status = ""
	if u.search.Pending() {
		u.background(u.search.Flush)
	}
	return nil
}

func (u *UI) cancelSearch(_ *gocui.Gui, _ *gocui.View) error {
	if !u.searchActive {
		return nil
	}
	u.searchActive = false
	u.search.Cancel()
	u.searchValue = u.searchPrevious
	previous := u.searchPrevious
	u.background(func() { u.applySearch(previous) })
	return nil
}

func (u *UI) toggleHelp(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() && !u.helpActive {
		return nil
	}
	u.helpActive = !u.helpActive
	return nil
}

func (u *UI) closeHelp(_ *gocui.Gui, _ *gocui.View) error {
	u.helpActive = false
	return nil
}

func (u *UI) addTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.status = ""
	u.router.Push(routeNewTask)
	return nil
}

func (u *UI) editTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	u.status = ""
	u.router.Push(editTaskRoute(selected.ID))
	return nil
}

func (u *UI) deleteTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.mutations.Loading() {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	id := selected.ID
	u.background(func() {
		err := u.mutations.Delete(u.ctx, id)
		u.afterMutation(err, "Task deleted", nil)
	})
	return nil
}

func (u *UI) toggleDone(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.mutations.Loading() {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	task := *selected
	u.background(func() {
		_, err := u.mutations.Toggle(u.ctx, task)
		message := "Task completed"
		if task.Completed {
			message = "Task reopened"
		}
		u.afterMutation(err, message, nil)
	})
	return nil
}

func (u *UI) afterMutation(err error, message string, next func()) {
	u.onMain(func() {
		if err != nil {
			u.status = u.mutations.Err()
			return
		}
		u.status = message
		if next != nil {
			next()
		}
	})
	if err == nil {
		if err := u.collection.Refetch(u.ctx); err != nil {
			u.logger.Debug("refetch after write failed", zap.Error(err))
		}
	}
}

func (u *UI) submitForm(_ *gocui.Gui, _ *gocui.View) error {
	if u.form == nil {
		return nil
	}
	switch u.form.kind {
	case formLogin:
		return u.submitLogin()
	case formRegister:
		return u.submitRegister()
	default:
		return u.submitTask()
	}
}

func (u *UI) submitTask() error {
	if u.mutations.Loading() {
		return nil
	}
	form := u.form
	back := func() { u.router.Back(routeDashboard) }

	if form.taskID == 0 {
		input, err := parseCreate(form.fields)
		if err != nil {
			u.status = err.Error()
			return nil
		}
		u.background(func() {
			_, err := u.mutations.Create(u.ctx, input)
			u.afterMutation(err, "Task created", back)
		})
		return nil
	}

	input, err := parseUpdate(form.fields)
	if err != nil {
		u.status = err.Error()
		return nil
	}
	id := form.taskID
	u.background(func() {
		_, err := u.mutations.Update(u.ctx, id, input)
		u.afterMutation(err, "Task updated", back)
	})
	return nil
}

// Navigation away from the login screen is driven by the session change, so
// a successful submit only has to clear the message.
func (u *UI) submitLogin() error {
	form := loginFormFrom(u.form.fields)
	u.status = "Signing in..."
	u.loginEmail = strings.TrimSpace(form.Email)
	u.background(func() {
		_, err := u.account.Login(u.ctx, form)
		u.onMain(func() {
			if err == nil {
				u.status = ""
				return
			}
			u.status = api.Message(err, "Login failed")
			if u.form != nil && u.form.kind == formLogin {
				clearSecrets(u.form.fields)
				u.form.index = loginPassword
			}
		})
	})
	return nil
}

func (u *UI) submitRegister() error {
	form := registerFormFrom(u.form.fields)
	u.status = "Creating account..."
	u.background(func() {
		_, err := u.account.Register(u.ctx, form)
		u.onMain(func() {
			if err != nil {
				u.status = api.Message(err, "Registration failed")
				if u.form != nil && u.form.kind == formRegister {
					clearSecrets(u.form.fields)
				}
				return
			}
			u.loginEmail = strings.TrimSpace(form.Email)
			u.status = "Account created, please log in"
			u.router.Replace(routeLogin)
		})
	})
	return nil
}

func (u *UI) toggleAuthMode(_ *gocui.Gui, _ *gocui.View) error {
	u.status = ""
	if guard.IsLogin(u.router.Location()) {
		u.router.Replace(routeRegister)
	} else {
		u.router.Replace(routeLogin)
	}
	return nil
}

func (u *UI) cancelForm(_ *gocui.Gui, _ *gocui.View) error {
	if u.form == nil || u.form.kind != formTask {
		return nil
	}
	u.status = ""
	u.router.Back(routeDashboard)
	return nil
}

func (u *UI) nextFormField(_ *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index < len(u.form.fields)-1 {
		u.form.index++
	}
	u.renderForm(view)
	return nil
}

func (u *UI) prevFormField(_ *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index > 0 {
		u.form.index--
	}
	u.renderForm(view)
	return nil
}

func (u *UI) logout(_ *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.status = ""
	u.background(func() {
		if err := u.account.Logout(u.ctx); err != nil {
			u.onMain(func() { u.status = err.Error() })
		}
	})
	return nil
}

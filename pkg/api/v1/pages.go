package apiv1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/catalog"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

const (
	toolsPageRoute    = "/ai-tools"
	viewContextKey    = "view"
	sessionContextKey = "session"
)

// PagesGroup serves the browser pages. Every browser session gets its own
// catalog view, so filters and dialogs are per user while the list is shared.
type PagesGroup struct {
	routerGroup *echo.Group
	sessions    *catalog.Sessions
	cookies     *SessionManager
}

func NewPagesGroup(routerGroup *echo.Group, sessions *catalog.Sessions, cookies *SessionManager) *PagesGroup {
	g := &PagesGroup{routerGroup: routerGroup, sessions: sessions, cookies: cookies}
	g.registerRoutes()
	return g
}

func (g *PagesGroup) registerRoutes() {
	g.routerGroup.GET("/", g.Welcome)
	g.routerGroup.GET("/reminders", g.Reminders)
	g.routerGroup.POST("/leave", g.Leave)

	tools := g.routerGroup.Group(toolsPageRoute, g.withView)
	tools.GET("", g.Tools)
	tools.GET("/live", g.Live)
	tools.GET("/events", g.Events)
	tools.POST("/search", g.Search)
	tools.POST("/category", g.Category)
	tools.POST("/add/toggle", g.ToggleAdd)
	tools.POST("/add", g.Add)
	tools.POST("/:id/edit", g.OpenEdit)
	tools.POST("/edit", g.SubmitEdit)
	tools.POST("/edit/cancel", g.CancelEdit)
	tools.POST("/:id/delete", g.Delete)
}

// withView resolves the session cookie to a catalog view, starting a new
// session when the request has none.
func (g *PagesGroup) withView(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID, err := g.cookies.Ensure(c)
		if err != nil {
			log.Error().Err(err).Msg("failed to create session")
			return renderErrorPage(c, http.StatusInternalServerError, "Could not start a session.")
		}

		v, err := g.sessions.Get(sessionID)
		if err != nil {
			log.Error().Err(err).Str("session", sessionID).Msg("failed to open catalog view")
			return renderErrorPage(c, http.StatusServiceUnavailable, "The catalog is unavailable right now.")
		}

		c.Set(viewContextKey, v)
		c.Set(sessionContextKey, sessionID)
		return next(c)
	}
}

func viewFrom(c echo.Context) *catalog.View {
	return c.Get(viewContextKey).(*catalog.View)
}

func backToTools(c echo.Context) error {
	return c.Redirect(http.StatusSeeOther, toolsPageRoute)
}

func formFields(c echo.Context) types.ToolFields {
	return types.ToolFields{
		Name:        c.FormValue("name"),
		Url:         c.FormValue("url"),
		Description: c.FormValue("description"),
		Category:    c.FormValue("category"),
	}
}

func (g *PagesGroup) Welcome(c echo.Context) error {
	return renderPage(c, http.StatusOK, welcomeTemplate, basicPageData{Title: pageTitleWelcome})
}

func (g *PagesGroup) Reminders(c echo.Context) error {
	return renderPage(c, http.StatusOK, remindersTemplate, basicPageData{Title: pageTitleReminders})
}

// Leave ends the browser session. Its view unsubscribes and is dropped.
func (g *PagesGroup) Leave(c echo.Context) error {
	if claims := g.cookies.Get(c); claims != nil {
		g.sessions.Remove(claims.SessionID)
	}
	g.cookies.Clear(c)
	return c.Redirect(http.StatusSeeOther, "/")
}

func (g *PagesGroup) Tools(c echo.Context) error {
	return renderToolsPage(c, viewFrom(c).Render())
}

// Live renders the grid region the page swaps in on every "render" event.
func (g *PagesGroup) Live(c echo.Context) error {
	return renderLive(c, viewFrom(c).Render())
}

func (g *PagesGroup) Search(c echo.Context) error {
	viewFrom(c).SetSearch(c.FormValue("search"))
	return backToTools(c)
}

func (g *PagesGroup) Category(c echo.Context) error {
	viewFrom(c).SelectCategory(types.Category(c.FormValue("category")))
	return backToTools(c)
}

func (g *PagesGroup) ToggleAdd(c echo.Context) error {
	viewFrom(c).ToggleAdd()
	return backToTools(c)
}

// Add keeps the submitted values as the draft so a rejected submission
// leaves the dialog open with what the user typed.
func (g *PagesGroup) Add(c echo.Context) error {
	v := viewFrom(c)
	v.OpenAdd()
	v.SetDraft(formFields(c))
	v.SubmitAdd(c.Request().Context())
	return backToTools(c)
}

func (g *PagesGroup) OpenEdit(c echo.Context) error {
	viewFrom(c).OpenEdit(c.Param("id"))
	return backToTools(c)
}

func (g *PagesGroup) SubmitEdit(c echo.Context) error {
	v := viewFrom(c)
	v.SetEditing(formFields(c))
	v.SubmitEdit(c.Request().Context())
	return backToTools(c)
}

func (g *PagesGroup) CancelEdit(c echo.Context) error {
	viewFrom(c).CancelEdit()
	return backToTools(c)
}

func (g *PagesGroup) Delete(c echo.Context) error {
	viewFrom(c).Delete(c.Request().Context(), c.Param("id"))
	return backToTools(c)
}

// Events emits a "render" event whenever the session's view changes. An open
// stream keeps its session from idling out; if the view was dropped anyway
// (evicted by newer sessions) the stream moves to the session's new view.
func (g *PagesGroup) Events(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Get(sessionContextKey).(string)
	v := viewFrom(c)

	changes := newLatest[time.Time]()
	notify := func() { changes.put(time.Now()) }
	stop := v.Watch(notify)
	defer func() { stop() }()

	startSSE(c)

	keepAlive := time.NewTicker(g.keepAliveInterval())
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case at := <-changes.ch:
			if err := writeSSE(c, "render", map[string]int64{"at": at.UnixMilli()}); err != nil {
				return nil
			}
		case <-keepAlive.C:
			current, err := g.sessions.Get(sessionID)
			if err != nil {
				return nil
			}
			if current != v {
				stop()
				v = current
				stop = v.Watch(notify)
				notify()
			}
			if err := writeHeartbeat(c); err != nil {
				return nil
			}
		}
	}
}

// keepAliveInterval refreshes the session well inside its idle ttl.
func (g *PagesGroup) keepAliveInterval() time.Duration {
	interval := HeartbeatInterval
	if ttl := g.sessions.TTL(); ttl > 0 && ttl/2 < interval {
		interval = ttl / 2
	}
	return interval
}

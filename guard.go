package account

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

type guardAction int

const (
	guardAllow guardAction = iota
	guardWait
	guardRedirect
)

// guardDecision maps a manager snapshot to the guard outcome: wait while
// the session is still resolving, redirect when unauthenticated, allow
// otherwise. The guard performs no mutation and holds no logic beyond this.
func guardDecision(snap Snapshot) guardAction {
	if snap.Loading || snap.Phase == PhaseUninitialized || snap.Phase == PhaseLoading {
		return guardWait
	}
	if !snap.Authenticated() {
		return guardRedirect
	}
	return guardAllow
}

// RouteGuard gates protected routes on the Manager's snapshot.
type RouteGuard struct {
	manager      *Manager
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewRouteGuard builds a guard over the manager's readable state.
func NewRouteGuard(manager *Manager, cfg Config) (*RouteGuard, error) {
	if manager == nil {
		return nil, errors.New("route guard requires a session manager", errors.CategoryBadInput)
	}

	if cfg == nil {
		cfg = defGuardConfig{}
	}

	g := &RouteGuard{
		manager: manager,
		cfg:     cfg,
		Logger:  defLogger{},
	}
	g.ErrorHandler = g.defaultErrHandler

	return g, nil
}

// Protected returns middleware that renders a neutral waiting response while
// the session resolves, redirects unauthenticated requests to the login
// entry point, and otherwise passes through.
func (g *RouteGuard) Protected() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			snap := g.manager.Snapshot()

			switch guardDecision(snap) {
			case guardWait:
				return c.JSON(g.waitingStatusCode(), map[string]string{
					"status": "loading",
				})
			case guardRedirect:
				g.SetRedirect(c)
				statusCode := fiber.StatusSeeOther
				if c.Method() == string(router.GET) {
					statusCode = fiber.StatusFound
				}
				return c.Redirect(g.cfg.GetRejectedRouteDefault(), statusCode)
			default:
				c.Locals(LocalsSnapshotKey, snap)
				stdCtx := WithSnapshot(c.Context(), snap)
				c.SetContext(WithIdentity(stdCtx, snap.User))
				return hf(c)
			}
		}
	}
}

// SetRedirect remembers the rejected path so a successful login can return
// the user where they were headed.
func (g *RouteGuard) SetRedirect(c router.Context) {
	rejectedRoute := g.cfg.GetRejectedRouteKey()

	g.Logger.Info("setting redirect cookie %s to %s", rejectedRoute, c.OriginalURL())

	c.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect pops the remembered path, falling back to def.
func (g *RouteGuard) GetRedirect(c router.Context, def ...string) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	r := c.Cookies(rejectedRoute)
	if r == "" && len(def) > 0 {
		return def[0]
	}
	g.cookieDel(c, rejectedRoute)
	return r
}

func (g *RouteGuard) waitingStatusCode() int {
	if g.cfg.GetWaitingStatusCode() > 0 {
		return g.cfg.GetWaitingStatusCode()
	}
	return fiber.StatusServiceUnavailable
}

type defGuardConfig struct{}

func (defGuardConfig) GetRejectedRouteKey() string     { return "rejected_route" }
func (defGuardConfig) GetRejectedRouteDefault() string { return "/login" }
func (defGuardConfig) GetWaitingStatusCode() int       { return fiber.StatusServiceUnavailable }

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	g.Logger.Info(
		"route guard error: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	return c.JSON(richErr.Code, map[string]string{
		"error": richErr.Message,
	})
}

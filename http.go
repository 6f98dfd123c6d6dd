package rusto

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rusto/rusto-web/client"
)

const (
	// DefaultCookieName is the cookie that persists the bearer token.
	DefaultCookieName = "rusto_token"
	// DefaultCallbackParam carries the originally requested path through the
	// login redirect so the viewer lands back where they meant to go.
	DefaultCallbackParam = "callback"
	// DefaultNoticeParam carries a short notice code to the landing page.
	DefaultNoticeParam = "notice"

	// NoticeSessionExpired tells the landing page to explain that the last
	// action required a fresh sign in.
	NoticeSessionExpired = "session-expired"

	userLocalsKey = "rusto_user"
)

// HTTPAuth binds the session lifecycle to fiber requests: it owns the token
// cookie, builds per-request session managers, and enforces the route guard.
type HTTPAuth struct {
	api      SessionAPI
	resolver *SessionResolver

	CookieName     string
	CookieDuration time.Duration
	CookieSecure   bool
	LandingPath    string
	DashboardPath  string
	CallbackParam  string
	Logger         Logger
}

// NewHTTPAuth creates the HTTP binding with the default cookie and routes.
func NewHTTPAuth(api SessionAPI, resolver *SessionResolver) *HTTPAuth {
	return &HTTPAuth{
		api:            api,
		resolver:       resolver,
		CookieName:     DefaultCookieName,
		CookieDuration: 24 * time.Hour,
		CookieSecure:   true,
		LandingPath:    "/",
		DashboardPath:  "/dashboard",
		CallbackParam:  DefaultCallbackParam,
		Logger:         defLogger{},
	}
}

// TokenStore returns the cookie-backed token store for this request.
func (a *HTTPAuth) TokenStore(c *fiber.Ctx) TokenStore {
	return &cookieTokenStore{
		ctx:      c,
		name:     a.CookieName,
		duration: a.CookieDuration,
		secure:   a.CookieSecure,
	}
}

// Session returns a session manager bound to this request's token cookie.
func (a *HTTPAuth) Session(c *fiber.Ctx) *SessionManager {
	return NewSessionManager(a.api, a.resolver, a.TokenStore(c), a.Logger)
}

// RequireAuthentication guards a route. While the session is being resolved
// nothing is rendered and no redirect happens; an absent session triggers
// exactly one redirect to the landing page with the original path attached as
// the callback parameter. A resolved user is exposed to handlers and views.
func (a *HTTPAuth) RequireAuthentication() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := a.Session(c).Current(c.UserContext())
		if err != nil {
			a.Logger.Error("session resolution failed: %v", err)
			return err
		}

		if user == nil {
			return c.Redirect(a.loginRedirectTarget(c), fiber.StatusFound)
		}

		c.Locals(userLocalsKey, user)
		return c.Next()
	}
}

// OptionalAuthentication resolves the session if one exists but never
// redirects. Public pages use it to render the signed-in navbar state.
func (a *HTTPAuth) OptionalAuthentication() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := a.Session(c).Current(c.UserContext())
		if err != nil {
			a.Logger.Warn("optional session resolution failed, proceeding: %v", err)
			return c.Next()
		}
		if user != nil {
			c.Locals(userLocalsKey, user)
		}
		return c.Next()
	}
}

// CurrentUser returns the user resolved by the auth middleware, or nil.
func CurrentUser(c *fiber.Ctx) *client.User {
	user, _ := c.Locals(userLocalsKey).(*client.User)
	return user
}

// CallbackTarget reads the callback parameter from the form or query string
// and returns it when it is a safe local path, otherwise def.
func (a *HTTPAuth) CallbackTarget(c *fiber.Ctx, def string) string {
	target := c.FormValue(a.CallbackParam)
	if target == "" {
		target = c.Query(a.CallbackParam)
	}
	if isLocalPath(target) {
		return target
	}
	return def
}

// ExpireSession clears the session and sends the viewer to the landing page
// with a session-expired notice and a callback to the interrupted path.
func (a *HTTPAuth) ExpireSession(c *fiber.Ctx, intended string) error {
	a.Session(c).Logout()

	values := url.Values{}
	values.Set(DefaultNoticeParam, NoticeSessionExpired)
	if isLocalPath(intended) {
		values.Set(a.CallbackParam, intended)
	}

	return c.Redirect(a.LandingPath+"?"+values.Encode(), fiber.StatusSeeOther)
}

func (a *HTTPAuth) loginRedirectTarget(c *fiber.Ctx) string {
	values := url.Values{}
	values.Set(a.CallbackParam, c.OriginalURL())
	return a.LandingPath + "?" + values.Encode()
}

// isLocalPath accepts only same-site absolute paths; anything that could be
// scheme-relative or absolute is rejected to keep the redirect closed.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, "://")
}

// cookieTokenStore persists the token in an HTTP-only cookie. Writes shadow
// the request cookie so reads within the same request observe them, keeping
// the no-stale-read guarantee across a login or logout redirect.
type cookieTokenStore struct {
	ctx      *fiber.Ctx
	name     string
	duration time.Duration
	secure   bool

	override *string
}

func (s *cookieTokenStore) Get() string {
	if s.override != nil {
		return *s.override
	}
	return s.ctx.Cookies(s.name)
}

func (s *cookieTokenStore) Set(token string) {
	s.override = &token
	s.ctx.Cookie(&fiber.Cookie{
		Name:     s.name,
		Value:    token,
		Expires:  time.Now().Add(s.duration),
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: "Lax",
	})
}

func (s *cookieTokenStore) Clear() {
	empty := ""
	s.override = &empty
	s.ctx.Cookie(&fiber.Cookie{
		Name:     s.name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * 24 * 365),
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: "Lax",
	})
}

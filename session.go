package rusto

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/rusto/rusto-web/client"
)

// DefaultSessionTTL is the staleness window during which a resolved session
// is served from cache without re-hitting the backend.
const DefaultSessionTTL = 60 * time.Second

type sessionEntry struct {
	user      *client.User
	fetchedAt time.Time
}

// SessionResolver turns bearer tokens into user profiles. Results are cached
// per token for a short staleness window, and concurrent resolutions of the
// same token collapse into a single backend call.
//
// The backend is the sole authority on token validity; the only local check
// is an unverified exp claim read, which saves a round trip for tokens that
// are already past their expiry.
type SessionResolver struct {
	api    SessionAPI
	ttl    time.Duration
	logger Logger

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]sessionEntry
}

// ResolverOption configures a SessionResolver.
type ResolverOption func(*SessionResolver)

// WithSessionTTL overrides the staleness window.
func WithSessionTTL(ttl time.Duration) ResolverOption {
	return func(r *SessionResolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithResolverLogger overrides the resolver logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *SessionResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewSessionResolver creates a resolver over the given backend slice.
func NewSessionResolver(api SessionAPI, opts ...ResolverOption) *SessionResolver {
	r := &SessionResolver{
		api:    api,
		ttl:    DefaultSessionTTL,
		logger: defLogger{},
		cache:  map[string]sessionEntry{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the user behind token. A dead token yields a session
// expired error so the caller can purge its store; the resolver never caches
// a failure.
func (r *SessionResolver) Resolve(ctx context.Context, token string) (*client.User, error) {
	if token == "" {
		return nil, nil
	}

	if tokenExpiredLocally(token) {
		r.Invalidate(token)
		return nil, client.ErrSessionExpired.Clone()
	}

	if user, ok := r.cached(token); ok {
		return user, nil
	}

	v, err, _ := r.group.Do(token, func() (any, error) {
		user, err := r.api.Me(ctx, token)
		if err != nil {
			return nil, err
		}
		r.put(token, user)
		return user, nil
	})

	if err != nil {
		if client.IsSessionExpired(err) {
			r.Invalidate(token)
		}
		return nil, err
	}

	return v.(*client.User), nil
}

// Invalidate drops the cached session for token, forcing the next Resolve to
// hit the backend.
func (r *SessionResolver) Invalidate(token string) {
	if token == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, token)
}

func (r *SessionResolver) cached(token string) (*client.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[token]
	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > r.ttl {
		delete(r.cache, token)
		return nil, false
	}
	return entry.user, true
}

func (r *SessionResolver) put(token string, user *client.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Opportunistic sweep keeps the map bounded by active sessions.
	for key, entry := range r.cache {
		if time.Since(entry.fetchedAt) > r.ttl {
			delete(r.cache, key)
		}
	}

	r.cache[token] = sessionEntry{user: user, fetchedAt: time.Now()}
}

// tokenExpiredLocally reads the unverified exp claim. Opaque or unparsable
// tokens are passed through for the backend to judge.
func tokenExpiredLocally(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Before(time.Now())
}

// SessionManager is the single authority for "who is logged in". It is the
// only writer of its TokenStore and sequences token and cache mutations so a
// read issued right after an operation observes the operation's outcome.
type SessionManager struct {
	api      SessionAPI
	resolver *SessionResolver
	tokens   TokenStore
	logger   Logger
}

// NewSessionManager binds the lifecycle operations to a token store. The
// manager is cheap; HTTP handlers create one per request around the cookie
// store while sharing the resolver.
func NewSessionManager(api SessionAPI, resolver *SessionResolver, tokens TokenStore, logger Logger) *SessionManager {
	if logger == nil {
		logger = defLogger{}
	}
	return &SessionManager{
		api:      api,
		resolver: resolver,
		tokens:   tokens,
		logger:   logger,
	}
}

// Current resolves the session. It returns (nil, nil) for "not logged in",
// including the case of a token the backend rejected; that path also purges
// the dead token so it is not retried forever.
func (m *SessionManager) Current(ctx context.Context) (*client.User, error) {
	token := m.tokens.Get()
	if token == "" {
		return nil, nil
	}

	user, err := m.resolver.Resolve(ctx, token)
	if err != nil {
		if client.IsSessionExpired(err) {
			m.logger.Info("stored token rejected, clearing session")
			m.tokens.Clear()
			return nil, nil
		}
		return nil, err
	}

	return user, nil
}

// IsAuthenticated reports whether a session currently resolves. Resolution
// failures count as unauthenticated.
func (m *SessionManager) IsAuthenticated(ctx context.Context) bool {
	user, err := m.Current(ctx)
	return err == nil && user != nil
}

// Login exchanges credentials for a token and stores it. On failure the
// token store is left untouched.
func (m *SessionManager) Login(ctx context.Context, email, password string) error {
	result, err := m.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	m.adoptToken(result.AccessToken)
	m.logger.Info("login succeeded")
	return nil
}

// Register creates an account and authenticates it in the same step, storing
// the issued token exactly as Login does.
func (m *SessionManager) Register(ctx context.Context, username, email, password string) error {
	result, err := m.api.Register(ctx, username, email, password)
	if err != nil {
		return err
	}

	m.adoptToken(result.AccessToken)
	m.logger.Info("registration succeeded")
	return nil
}

// Logout clears the token and the cached session before returning, so an
// immediate Current observes nil. It is idempotent and makes no backend call.
func (m *SessionManager) Logout() {
	token := m.tokens.Get()
	m.tokens.Clear()
	if token != "" {
		m.resolver.Invalidate(token)
	}
}

// Refresh drops the cached session and re-resolves it.
func (m *SessionManager) Refresh(ctx context.Context) (*client.User, error) {
	m.resolver.Invalidate(m.tokens.Get())
	return m.Current(ctx)
}

// Token exposes the current bearer token for direct API calls made by the
// post pages. Reads go through the store so there is exactly one holder.
func (m *SessionManager) Token() string {
	return m.tokens.Get()
}

func (m *SessionManager) adoptToken(token string) {
	old := m.tokens.Get()
	m.tokens.Set(token)
	if old != "" && old != token {
		m.resolver.Invalidate(old)
	}
	// The new token resolves fresh on the next read.
	m.resolver.Invalidate(token)
}

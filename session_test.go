package rusto_test

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rusto "github.com/rusto/rusto-web"
	"github.com/rusto/rusto-web/client"
)

type fakeAPI struct {
	loginFn    func(ctx context.Context, email, password string) (*client.AuthResult, error)
	registerFn func(ctx context.Context, username, email, password string) (*client.AuthResult, error)
	meFn       func(ctx context.Context, token string) (*client.User, error)

	meCalls atomic.Int64
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (*client.AuthResult, error) {
	return f.loginFn(ctx, email, password)
}

func (f *fakeAPI) Register(ctx context.Context, username, email, password string) (*client.AuthResult, error) {
	return f.registerFn(ctx, username, email, password)
}

func (f *fakeAPI) Me(ctx context.Context, token string) (*client.User, error) {
	f.meCalls.Add(1)
	return f.meFn(ctx, token)
}

func authedAPI(token string, user *client.User) *fakeAPI {
	return &fakeAPI{
		loginFn: func(ctx context.Context, email, password string) (*client.AuthResult, error) {
			return &client.AuthResult{AccessToken: token, User: user}, nil
		},
		registerFn: func(ctx context.Context, username, email, password string) (*client.AuthResult, error) {
			return &client.AuthResult{AccessToken: token, User: user}, nil
		},
		meFn: func(ctx context.Context, got string) (*client.User, error) {
			if got != token {
				return nil, client.ErrSessionExpired.Clone()
			}
			return user, nil
		},
	}
}

func newManager(api rusto.SessionAPI, opts ...rusto.ResolverOption) (*rusto.SessionManager, *rusto.MemoryTokenStore) {
	store := rusto.NewMemoryTokenStore()
	resolver := rusto.NewSessionResolver(api, opts...)
	return rusto.NewSessionManager(api, resolver, store, nil), store
}

func TestLoginFailureLeavesTokenUntouched(t *testing.T) {
	api := &fakeAPI{
		loginFn: func(ctx context.Context, email, password string) (*client.AuthResult, error) {
			return nil, client.ErrInvalidCredentials.Clone()
		},
	}

	manager, store := newManager(api)

	err := manager.Login(context.Background(), "user@test.com", "wrongpass")
	require.Error(t, err)
	assert.True(t, client.IsAuthenticationError(err))
	assert.Equal(t, "", store.Get())
}

func TestLoginStoresTokenAndResolvesUser(t *testing.T) {
	user := &client.User{ID: "1", Username: "bob", Email: "bob@test.com"}
	api := authedAPI("T1", user)

	manager, store := newManager(api)

	require.NoError(t, manager.Login(context.Background(), "bob@test.com", "pw123"))
	assert.Equal(t, "T1", store.Get())

	got, err := manager.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bob", got.Username)
}

func TestRegisterAuthenticatesImmediately(t *testing.T) {
	user := &client.User{ID: "1", Username: "bob", Email: "bob@test.com"}
	api := authedAPI("T1", user)

	manager, store := newManager(api)

	require.NoError(t, manager.Register(context.Background(), "bob", "bob@test.com", "pw123"))
	assert.Equal(t, "T1", store.Get())

	got, err := manager.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1", got.ID)
}

func TestLogoutIsIdempotentAndImmediate(t *testing.T) {
	user := &client.User{ID: "1", Username: "bob"}
	api := authedAPI("T1", user)

	manager, store := newManager(api)
	require.NoError(t, manager.Login(context.Background(), "bob@test.com", "pw123"))

	manager.Logout()

	got, err := manager.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "", store.Get())

	// Second logout changes nothing and does not error.
	manager.Logout()
	got, err = manager.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "", store.Get())
}

func TestUnauthorizedResolutionPurgesToken(t *testing.T) {
	api := &fakeAPI{
		meFn: func(ctx context.Context, token string) (*client.User, error) {
			return nil, client.ErrSessionExpired.Clone()
		},
	}

	manager, store := newManager(api)
	store.Set("dead-token")

	got, err := manager.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "", store.Get())

	// The dead token is gone, so the next read never hits the backend again.
	calls := api.meCalls.Load()
	_, err = manager.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, api.meCalls.Load())
}

func TestSessionCachedWithinStalenessWindow(t *testing.T) {
	user := &client.User{ID: "1", Username: "bob"}
	api := authedAPI("T1", user)

	manager, store := newManager(api)
	store.Set("T1")

	_, err := manager.Current(context.Background())
	require.NoError(t, err)
	_, err = manager.Current(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), api.meCalls.Load())
}

func TestSessionRefetchedAfterWindow(t *testing.T) {
	user := &client.User{ID: "1", Username: "bob"}
	api := authedAPI("T1", user)

	manager, store := newManager(api, rusto.WithSessionTTL(10*time.Millisecond))
	store.Set("T1")

	_, err := manager.Current(context.Background())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = manager.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), api.meCalls.Load())
}

func TestRefreshForcesResolution(t *testing.T) {
	user := &client.User{ID: "1", Username: "bob"}
	api := authedAPI("T1", user)

	manager, store := newManager(api)
	store.Set("T1")

	_, err := manager.Current(context.Background())
	require.NoError(t, err)

	got, err := manager.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), api.meCalls.Load())
}

func TestLocallyExpiredTokenSkipsNetwork(t *testing.T) {
	user := &client.User{ID: "1", Username: "bob"}
	api := authedAPI("T1", user)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	token, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	manager, store := newManager(api)
	store.Set(token)

	got, err := manager.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "", store.Get())
	assert.Equal(t, int64(0), api.meCalls.Load())
}

func TestNetworkErrorSurfacesWithoutPurging(t *testing.T) {
	networkErr := errors.Wrap(io.ErrUnexpectedEOF, errors.CategoryOperation, "blog api unreachable").
		WithTextCode(client.TextCodeBackendUnreachable)

	api := &fakeAPI{
		meFn: func(ctx context.Context, token string) (*client.User, error) {
			return nil, networkErr
		},
	}

	manager, store := newManager(api)
	store.Set("T1")

	_, err := manager.Current(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsNetworkError(err))
	// Connectivity failures do not invalidate the stored token.
	assert.Equal(t, "T1", store.Get())
}

package rusto

import (
	"context"
	"fmt"

	"github.com/rusto/rusto-web/client"
)

// Logger is the minimal logging surface the session core needs. The binary
// injects a structured implementation; tests run with the default printer.
// Credentials and raw tokens must never be passed as arguments.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// TokenStore is the single holder of the bearer token. Implementations must
// apply writes synchronously: a Get immediately after Set or Clear observes
// the new value.
type TokenStore interface {
	Get() string
	Set(token string)
	Clear()
}

// SessionAPI is the slice of the backend the session lifecycle depends on.
type SessionAPI interface {
	Login(ctx context.Context, email, password string) (*client.AuthResult, error)
	Register(ctx context.Context, username, email, password string) (*client.AuthResult, error)
	Me(ctx context.Context, token string) (*client.User, error)
}

// PostsAPI is the slice of the backend the post pages depend on.
type PostsAPI interface {
	ListPosts(ctx context.Context) ([]client.Post, error)
	MyPosts(ctx context.Context, token string) ([]client.Post, error)
	CreatePost(ctx context.Context, token string, req client.CreatePostRequest) (*client.Post, error)
	UpdatePost(ctx context.Context, token, id string, req client.UpdatePostRequest) (*client.Post, error)
	DeletePost(ctx context.Context, token, id string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] WEB "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] WEB "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] WEB "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] WEB "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

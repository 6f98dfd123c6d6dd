// Package client implements the HTTP client for the remote Rusto blog API.
// It owns the wire formats and normalizes backend failures into the typed
// errors the rest of the application branches on; it never stores tokens.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Config holds client configuration. Endpoint paths can be overridden for
// backends mounted under a prefix; zero values use the documented routes.
type Config struct {
	BaseURL string

	LoginPath    string
	RegisterPath string
	MePath       string
	PostsPath    string
	MyPostsPath  string

	HTTPClient *http.Client
}

// Client is a thin typed wrapper over the backend REST endpoints.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a blog API client for the given configuration.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.LoginPath == "" {
		cfg.LoginPath = "/users/login"
	}
	if cfg.RegisterPath == "" {
		cfg.RegisterPath = "/users/register"
	}
	if cfg.MePath == "" {
		cfg.MePath = "/users/me"
	}
	if cfg.PostsPath == "" {
		cfg.PostsPath = "/posts"
	}
	if cfg.MyPostsPath == "" {
		cfg.MyPostsPath = "/posts/me"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Login exchanges credentials for a bearer token. A rejected login carries the
// backend message so the UI can display it verbatim.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	payload := map[string]string{
		"email":    email,
		"password": password,
	}

	status, body, err := c.do(ctx, http.MethodPost, c.config.LoginPath, "", payload)
	if err != nil {
		return nil, networkFailure("login", err)
	}

	if status < 200 || status >= 300 {
		return nil, authFailure(ErrInvalidCredentials, decodeErrorText(body), status)
	}

	return decodeAuthResult("login", status, body)
}

// Register creates an account. On success the backend issues a token right
// away, so a successful Register authenticates exactly like Login.
func (c *Client) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	payload := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}

	status, body, err := c.do(ctx, http.MethodPost, c.config.RegisterPath, "", payload)
	if err != nil {
		return nil, networkFailure("register", err)
	}

	if status < 200 || status >= 300 {
		return nil, authFailure(ErrRegistrationFailed, decodeErrorText(body), status)
	}

	return decodeAuthResult("register", status, body)
}

// Me resolves the profile behind a bearer token. An unauthorized response
// means the token is dead and comes back as a session expired error.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.config.MePath, token, nil)
	if err != nil {
		return nil, networkFailure("me", err)
	}

	if status == http.StatusUnauthorized {
		return nil, sessionExpired("me", status)
	}
	if status != http.StatusOK {
		return nil, badResponse("me", status, nil)
	}

	user := new(User)
	if err := json.Unmarshal(body, user); err != nil {
		return nil, badResponse("me", status, err)
	}
	return user, nil
}

// ListPosts fetches the public post listing.
func (c *Client) ListPosts(ctx context.Context) ([]Post, error) {
	return c.fetchPosts(ctx, "posts.list", c.config.PostsPath, "")
}

// MyPosts fetches the posts owned by the token holder.
func (c *Client) MyPosts(ctx context.Context, token string) ([]Post, error) {
	return c.fetchPosts(ctx, "posts.mine", c.config.MyPostsPath, token)
}

// CreatePost publishes a new post on behalf of the token holder.
func (c *Client) CreatePost(ctx context.Context, token string, req CreatePostRequest) (*Post, error) {
	status, body, err := c.do(ctx, http.MethodPost, c.config.PostsPath, token, req)
	if err != nil {
		return nil, networkFailure("posts.create", err)
	}

	if status == http.StatusUnauthorized {
		return nil, sessionExpired("posts.create", status)
	}
	if status < 200 || status >= 300 {
		return nil, badResponse("posts.create", status, nil)
	}

	post := new(Post)
	if err := json.Unmarshal(body, post); err != nil {
		return nil, badResponse("posts.create", status, err)
	}
	return post, nil
}

// UpdatePost applies a partial update to an owned post.
func (c *Client) UpdatePost(ctx context.Context, token, id string, req UpdatePostRequest) (*Post, error) {
	path := fmt.Sprintf("%s/%s", c.config.PostsPath, id)

	status, body, err := c.do(ctx, http.MethodPatch, path, token, req)
	if err != nil {
		return nil, networkFailure("posts.update", err)
	}

	if status == http.StatusUnauthorized {
		return nil, sessionExpired("posts.update", status)
	}
	if status < 200 || status >= 300 {
		return nil, badResponse("posts.update", status, nil)
	}

	post := new(Post)
	if len(body) > 0 {
		if err := json.Unmarshal(body, post); err != nil {
			return nil, badResponse("posts.update", status, err)
		}
	}
	return post, nil
}

// DeletePost removes an owned post.
func (c *Client) DeletePost(ctx context.Context, token, id string) error {
	path := fmt.Sprintf("%s/%s", c.config.PostsPath, id)

	status, _, err := c.do(ctx, http.MethodDelete, path, token, nil)
	if err != nil {
		return networkFailure("posts.delete", err)
	}

	if status == http.StatusUnauthorized {
		return sessionExpired("posts.delete", status)
	}
	if status < 200 || status >= 300 {
		return badResponse("posts.delete", status, nil)
	}
	return nil
}

func (c *Client) fetchPosts(ctx context.Context, operation, path, token string) ([]Post, error) {
	status, body, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, networkFailure(operation, err)
	}

	if status == http.StatusUnauthorized && token != "" {
		return nil, sessionExpired(operation, status)
	}
	if status != http.StatusOK {
		return nil, badResponse(operation, status, nil)
	}

	var posts []Post
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, badResponse(operation, status, err)
	}
	return posts, nil
}

// do issues a single request and returns the raw status and body. Transport
// errors come back as-is for the callers to classify; no retries happen here.
func (c *Client) do(ctx context.Context, method, path, token string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

func decodeAuthResult(operation string, status int, body []byte) (*AuthResult, error) {
	result := new(AuthResult)
	if err := json.Unmarshal(body, result); err != nil {
		return nil, badResponse(operation, status, err)
	}
	if result.AccessToken == "" {
		return nil, badResponse(operation, status, fmt.Errorf("missing access token"))
	}
	return result, nil
}

func decodeErrorText(body []byte) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.text()
}

package feedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/d60-Lab/review-feed/pkg/feedevent"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feed api: %d %s", e.Status, e.Message)
}

// Rejected reports whether the server refused the request itself (4xx),
// as opposed to failing to process it.
func (e *APIError) Rejected() bool { return e.Status >= 400 && e.Status < 500 }

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Pagination mirrors the timeline pagination block.
type Pagination struct {
	Page   int   `json:"page"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

type Page struct {
	Posts      []feedevent.Post `json:"posts"`
	Pagination Pagination       `json:"pagination"`
}

type CreatePostRequest struct {
	Caption      string  `json:"caption"`
	Rating       *int    `json:"rating,omitempty"`
	Category     *string `json:"category,omitempty"`
	ProductPhoto *string `json:"product_photo,omitempty"`
	ProductURL   *string `json:"product_url,omitempty"`
	ClientRef    string  `json:"client_ref,omitempty"`
}

type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	BirthDate string `json:"birth_date"`
	FullName  string `json:"full_name,omitempty"`
}

type LoginResult struct {
	Token    string
	UserID   string
	Username string
}

// APIClient calls the feed HTTP API and carries the session token.
type APIClient struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

func NewAPIClient(baseURL string, hc *http.Client) *APIClient {
	if hc == nil {
		hc = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &APIClient{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// WebsocketURL derives the realtime endpoint from the base URL.
func (c *APIClient) WebsocketURL() string {
	u := c.base + "/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("feed api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("feed api %s %s: read body: %w", method, path, err)
	}

	var env envelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("feed api %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

func postPath(postID string, rest ...string) string {
	p := "/api/posts/" + url.PathEscape(postID)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *APIClient) Register(ctx context.Context, in RegisterRequest) (string, error) {
	var out struct {
		UserID string `json:"userId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/users/create", in, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

// Login authenticates and stores the token for later calls.
func (c *APIClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out struct {
		Token string `json:"token"`
		User  struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/users/login", in, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &LoginResult{Token: out.Token, UserID: out.User.ID, Username: out.User.Username}, nil
}

func (c *APIClient) Timeline(ctx context.Context, page, limit int) (*Page, error) {
	var out Page
	path := fmt.Sprintf("/api/posts/timeline?page=%d&limit=%d", page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) GetPost(ctx context.Context, postID string) (*feedevent.Post, error) {
	var out struct {
		Post feedevent.Post `json:"post"`
	}
	if err := c.do(ctx, http.MethodGet, postPath(postID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Post, nil
}

func (c *APIClient) CreatePost(ctx context.Context, in CreatePostRequest) (*feedevent.Post, error) {
	var out struct {
		Post feedevent.Post `json:"post"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/posts/create", in, &out); err != nil {
		return nil, err
	}
	return &out.Post, nil
}

func (c *APIClient) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, postPath(postID), nil, nil)
}

// ToggleLike returns the committed action and like count.
func (c *APIClient) ToggleLike(ctx context.Context, postID string) (string, int64, error) {
	var out struct {
		Action     string `json:"action"`
		LikesCount int64  `json:"likes_count"`
	}
	if err := c.do(ctx, http.MethodPost, postPath(postID, "like"), nil, &out); err != nil {
		return "", 0, err
	}
	return out.Action, out.LikesCount, nil
}

// Share records a share and returns the committed share count.
func (c *APIClient) Share(ctx context.Context, postID string) (int64, error) {
	var out struct {
		SharesCount int64 `json:"shares_count"`
	}
	if err := c.do(ctx, http.MethodPost, postPath(postID, "share"), nil, &out); err != nil {
		return 0, err
	}
	return out.SharesCount, nil
}

func (c *APIClient) AddComment(ctx context.Context, postID, text, clientRef string) (*feedevent.Comment, error) {
	var out struct {
		Comment feedevent.Comment `json:"comment"`
	}
	in := map[string]string{"comment_text": text, "client_ref": clientRef}
	if err := c.do(ctx, http.MethodPost, postPath(postID, "comments"), in, &out); err != nil {
		return nil, err
	}
	return &out.Comment, nil
}

func (c *APIClient) Comments(ctx context.Context, postID string) ([]feedevent.Comment, error) {
	var out struct {
		Comments []feedevent.Comment `json:"comments"`
	}
	if err := c.do(ctx, http.MethodGet, postPath(postID, "comments"), nil, &out); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

func (c *APIClient) DeleteComment(ctx context.Context, postID, commentID string) error {
	return c.do(ctx, http.MethodDelete, postPath(postID, "comments", url.PathEscape(commentID)), nil, nil)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/model"
)

type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the timeout on a copy of the current HTTP client, so a
// client passed to WithHTTPClient is left untouched.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = timeout
		c.http = &hc
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildURL joins base and path. Trailing slashes and one stray "/tasks"
// suffix on the base are dropped first, so a base configured as
// "http://host/api/tasks/" still yields "http://host/api/tasks" for "/tasks".
func BuildURL(base, path string, params url.Values) (string, error) {
	normalized := strings.TrimRight(strings.TrimSpace(base), "/")
	normalized = strings.TrimSuffix(normalized, "/tasks")

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	full, err := url.Parse(normalized + path)
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}
	if full.Scheme == "" || full.Host == "" {
		return "", fmt.Errorf("build url: base %q is not absolute", base)
	}
	if len(params) > 0 {
		full.RawQuery = params.Encode()
	}
	return full.String(), nil
}

func (c *Client) requireCredentials(ctx context.Context) (http.Header, error) {
	token, ok := c.tokens.Token(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)
	header.Set("Content-Type", "application/json")
	return header, nil
}

type request struct {
	method string
	path   string
	params url.Values
	header http.Header
	body   io.Reader
	auth   bool
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	header := req.header
	if req.auth {
		creds, err := c.requireCredentials(ctx)
		if err != nil {
			return err
		}
		header = creds
	}

	target, err := BuildURL(c.baseURL, req.path, req.params)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, req.body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for key, values := range header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &NetworkError{Method: req.method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	return handleResponse(resp, out)
}

func handleResponse(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Method: resp.Request.Method, URL: resp.Request.URL.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, body)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", resp.Request.URL.Path, err)
	}
	return nil
}

func jsonBody(payload any) (io.Reader, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return bytes.NewReader(data), nil
}

func taskPath(id int64) string {
	return "/tasks/" + strconv.FormatInt(id, 10)
}

func (c *Client) ListTasks(ctx context.Context, criteria model.Criteria) ([]model.Task, error) {
	params := url.Values{}
	filters := criteria.Filters
	if filters.Status != "" {
		params.Set("status", string(filters.Status))
	}
	if criteria.Sort.By != "" {
		params.Set("sort_by", string(criteria.Sort.By))
	}
	if criteria.Sort.Order != "" {
		params.Set("sort_order", string(criteria.Sort.Order))
	}
	if filters.Priority != "" {
		params.Set("priority", string(filters.Priority))
	}
	if tag := strings.TrimSpace(filters.Tag); tag != "" {
		params.Set("tag", tag)
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		params.Set("search", search)
	}
	if filters.DueFrom != "" {
		params.Set("due_from", filters.DueFrom)
	}
	if filters.DueTo != "" {
		params.Set("due_to", filters.DueTo)
	}

	var tasks []model.Task
	if err := c.do(ctx, request{method: http.MethodGet, path: "/tasks", params: params, auth: true}, &tasks); err != nil {
		return nil, err
	}
	return model.NormalizeAll(tasks), nil
}

func (c *Client) GetTask(ctx context.Context, id int64) (model.Task, error) {
	var task model.Task
	if err := c.do(ctx, request{method: http.MethodGet, path: taskPath(id), auth: true}, &task); err != nil {
		return model.Task{}, err
	}
	return model.Normalize(task), nil
}

func (c *Client) CreateTask(ctx context.Context, input model.TaskCreate) (model.Task, error) {
	body, err := jsonBody(input.Normalize())
	if err != nil {
		return model.Task{}, err
	}
	var task model.Task
	if err := c.do(ctx, request{method: http.MethodPost, path: "/tasks", body: body, auth: true}, &task); err != nil {
		return model.Task{}, err
	}
	return model.Normalize(task), nil
}

func (c *Client) UpdateTask(ctx context.Context, id int64, input model.TaskUpdate) (model.Task, error) {
	body, err := jsonBody(input.Normalize())
	if err != nil {
		return model.Task{}, err
	}
	var task model.Task
	if err := c.do(ctx, request{method: http.MethodPut, path: taskPath(id), body: body, auth: true}, &task); err != nil {
		return model.Task{}, err
	}
	return model.Normalize(task), nil
}

func (c *Client) SetTaskStatus(ctx context.Context, id int64, completed bool) (model.Task, error) {
	body, err := jsonBody(map[string]bool{"completed": completed})
	if err != nil {
		return model.Task{}, err
	}
	var task model.Task
	if err := c.do(ctx, request{method: http.MethodPatch, path: taskPath(id) + "/status", body: body, auth: true}, &task); err != nil {
		return model.Task{}, err
	}
	return model.Normalize(task), nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: taskPath(id), auth: true}, nil)
}

func (c *Client) CurrentUser(ctx context.Context) (model.User, error) {
	var user model.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users/me", auth: true}, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (c *Client) Register(ctx context.Context, registration model.Registration) (model.User, error) {
	body, err := jsonBody(registration)
	if err != nil {
		return model.User{}, err
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	var user model.User
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", header: header, body: body}, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (model.Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	header := make(http.Header)
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token model.Token
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", header: header, body: strings.NewReader(form.Encode())}, &token); err != nil {
		return model.Token{}, err
	}
	if token.AccessToken == "" {
		return model.Token{}, errors.New("no access token received from server")
	}
	return token, nil
}

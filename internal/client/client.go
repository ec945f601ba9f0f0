package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"mcpanel/internal/models"
)

// Client talks to a running control panel over its HTTP API.
type Client struct {
	Logger     *zap.SugaredLogger
	HTTPClient *http.Client
	// ActionClient sends lifecycle POSTs, which must not be replayed once they reached the panel.
	ActionClient *http.Client

	baseURL                  string
	customizeRetryableClient func(*retryablehttp.Client)
	waitInterval             time.Duration
}

type ClientOption func(c *Client)

func WithClientWaitInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.waitInterval = d
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

// APIError is returned when the panel answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Response   models.ActionResponse
}

func (e *APIError) Error() string {
	if e.Response.Message != "" {
		return fmt.Sprintf("panel returned %d: %s", e.StatusCode, e.Response.Message)
	}
	return fmt.Sprintf("panel returned %d", e.StatusCode)
}

// actionRetryPolicy retries only when the connection could not be established, so
// a start or stop is never sent twice.
func actionRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	var opErr *net.OpError
	if err != nil && errors.As(err, &opErr) && opErr.Op == "dial" {
		return true, nil
	}
	return false, nil
}

func NewClient(log *zap.SugaredLogger, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		Logger:       log.Named("panel_client"),
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		waitInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.HTTPClient = c.newRetryClient(retryablehttp.DefaultRetryPolicy)
	c.ActionClient = c.newRetryClient(actionRetryPolicy)
	return c
}

func (c *Client) newRetryClient(policy retryablehttp.CheckRetry) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 4
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.CheckRetry = policy
	retryClient.Logger = &logAdapter{SugaredLogger: c.Logger}

	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}
	return retryClient.StandardClient()
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if method != http.MethodGet {
		httpClient = c.ActionClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		b, err := io.ReadAll(resp.Body)
		if err == nil {
			_ = json.Unmarshal(b, &apiErr.Response)
			if apiErr.Response.Message == "" {
				apiErr.Response.Message = strings.TrimSpace(string(b))
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) action(ctx context.Context, path string, body interface{}) (*models.ActionResponse, error) {
	var resp models.ActionResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func gracePath(path string, grace time.Duration) string {
	if grace < 0 {
		return path
	}
	return path + "?grace=" + url.QueryEscape(grace.String())
}

func (c *Client) Start(ctx context.Context) (*models.ActionResponse, error) {
	return c.action(ctx, "/api/start", nil)
}

// Stop asks the panel to stop the server. A negative grace uses the panel's configured period.
func (c *Client) Stop(ctx context.Context, grace time.Duration) (*models.ActionResponse, error) {
	return c.action(ctx, gracePath("/api/stop", grace), nil)
}

func (c *Client) Restart(ctx context.Context, grace time.Duration) (*models.ActionResponse, error) {
	return c.action(ctx, gracePath("/api/restart", grace), nil)
}

func (c *Client) SendCommand(ctx context.Context, command string) (*models.ActionResponse, error) {
	return c.action(ctx, "/api/command", models.CommandRequest{Command: command})
}

func (c *Client) Status(ctx context.Context) (*models.ServerStatus, error) {
	var status models.ServerStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Console drains the panel's console queue once.
func (c *Client) Console(ctx context.Context) ([]string, error) {
	var lines models.ConsoleLines
	if err := c.do(ctx, http.MethodGet, "/api/console", nil, &lines); err != nil {
		return nil, err
	}
	return lines.Lines, nil
}

func (c *Client) Events(ctx context.Context, level string, limit int) ([]models.LogEntry, error) {
	q := url.Values{}
	if level != "" {
		q.Set("level", level)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var events []models.LogEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FollowConsole streams console lines to w over the WebSocket endpoint until ctx is done
// or the panel closes the connection.
func (c *Client) FollowConsole(ctx context.Context, w io.Writer) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/console/ws"
	c.Logger.Debugw("dialing console WebSocket", "URL", wsURL)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dialing console WebSocket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var msg models.ConsoleLines
		err := wsjson.Read(ctx, conn, &msg)
		if ctx.Err() != nil {
			return nil
		}
		if websocket.CloseStatus(err) != -1 {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading console: %w", err)
		}
		if msg.Error != "" {
			c.Logger.Warnf("panel error: %s", msg.Error)
		}
		for _, line := range msg.Lines {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
}

func (c *Client) WaitForServer(ctx context.Context) error {
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := c.do(ctx, http.MethodGet, "/health", nil, nil)
			if err == nil {
				c.Logger.Debug("health check succeeded, done waiting for panel")
				return nil
			}
			c.Logger.Debugf("got health check error: %s", err)
		}
	}
}

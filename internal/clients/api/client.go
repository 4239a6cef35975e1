package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/internal/metrics"
)

// refreshLeeway is how close to expiry an access token gets refreshed
// before it is sent.
const refreshLeeway = time.Minute

// Client is the HTTP client for the calendar backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu       sync.Mutex
	tokens   Tokens
	onTokens func(Tokens)
	onLogout func()

	// serializes refreshes so concurrent 401s trigger only one
	refreshMu sync.Mutex
}

// NewClient creates a new backend API client
func NewClient(baseURL string, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.WithField("component", "api"),
		now: time.Now,
	}
}

// SetHTTPClient replaces the underlying http.Client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetMetrics enables request metrics.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// IsConfigured returns true if the client has a base URL
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// doRequest performs an authenticated JSON request and decodes the answer
// into out. A 401 triggers one token refresh and one retry.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = data
	}

	c.refreshIfExpiring(ctx)

	token := c.accessToken()
	status, respBody, err := c.send(ctx, method, path, query, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && c.refreshToken() != "" {
		if rerr := c.refresh(ctx, token); rerr != nil {
			c.log.WithError(rerr).Warn("token refresh failed")
		} else {
			status, respBody, err = c.send(ctx, method, path, query, payload, c.accessToken())
			if err != nil {
				return err
			}
		}
	}

	if status == http.StatusUnauthorized {
		c.Logout()
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if status >= 400 {
		return decodeError(status, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send issues one request and returns the raw status and body.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, token string) (int, []byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, "error", c.now().Sub(start))
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	c.metrics.ObserveRequest(method, strconv.Itoa(resp.StatusCode), c.now().Sub(start))

	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("api request")

	return resp.StatusCode, respBody, nil
}

// decodeList accepts either a bare JSON array or an object wrapping the
// array under "results" or "events".
func decodeList(data []byte, out interface{}) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if data[0] == '[' {
		return json.Unmarshal(data, out)
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	for _, key := range []string{"results", "events"} {
		if raw, ok := wrapper[key]; ok {
			return json.Unmarshal(raw, out)
		}
	}
	return fmt.Errorf("unexpected list payload")
}

// getList is doRequest for endpoints answering with a list.
func (c *Client) getList(ctx context.Context, path string, query url.Values, out interface{}) error {
	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return err
	}
	if err := decodeList(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

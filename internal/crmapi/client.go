// Package crmapi is the client for the remote CRM API that owns campaigns,
// audience evaluation and AI generation.
package crmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"campaign-console/internal/observability"
)

var (
	// ErrRequestFailed wraps transport failures where no response arrived.
	ErrRequestFailed = errors.New("crmapi: request failed")
	// ErrMalformedResponse wraps 2xx responses whose body could not be read.
	ErrMalformedResponse = errors.New("crmapi: malformed response")

	ErrNameRequired        = errors.New("crmapi: campaign name is required")
	ErrDescriptionRequired = errors.New("crmapi: description is required")
	ErrIDRequired          = errors.New("crmapi: campaign id is required")
)

// APIError is a non-2xx response. Message is the `message` field of the
// body when the service sent one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("crmapi: http %d: %s", e.StatusCode, msg)
}

func (e *APIError) Unauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

type Client struct {
	baseURL     string
	httpClient  *http.Client
	cookie      *http.Cookie
	bearerToken string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithSessionCookie attaches the session cookie issued by the auth service
// to every request.
func WithSessionCookie(name, value string) Option {
	return func(c *Client) {
		if name != "" && value != "" {
			c.cookie = &http.Cookie{Name: name, Value: value}
		}
	}
}

func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = strings.TrimSpace(token) }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("crmapi: missing base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.New("crmapi: invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("crmapi: invalid base url scheme")
	}
	if u.Host == "" {
		return nil, errors.New("crmapi: invalid base url host")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do sends in as JSON (when non-nil) and decodes a 2xx body into out
// (when non-nil). Nothing is retried.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	rid := requestID(ctx)
	status, err := c.roundTrip(ctx, rid, method, path, in, out)
	d := time.Since(start)
	observability.ObserveRemote(op, outcome(err), d)

	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("op", op).Str("request_id", rid).Int("status", status).Dur("took", d).Msg("crm api call")
	return err
}

func (c *Client) roundTrip(ctx context.Context, rid, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("crmapi: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", rid)
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("crmapi: %w", ctxErr)
		}
		return 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp.StatusCode, nil
}

func readAPIError(resp *http.Response) error {
	const maxBody = 4096
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(b, &body)
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(body.Message),
	}
}

func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "transport"
	}
}

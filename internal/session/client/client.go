// Package client is the HTTP gateway the session controller uses to reach the
// /api/auth endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"teller/internal/auth/models"
	dErrors "teller/pkg/domain-errors"
	"teller/pkg/platform/httputil"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client calls the auth endpoints under BaseURL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login runs the password grant.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var res models.AuthResponse
	body := models.LoginRequest{Email: email, Password: password, GrantType: string(models.GrantPassword)}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &res, "Login failed"); err != nil {
		return nil, err
	}
	return &res, nil
}

// Refresh exchanges a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	var res models.AuthResponse
	body := models.RefreshRequest{RefreshToken: refreshToken, GrantType: string(models.GrantRefreshToken)}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", "", body, &res, "Token refresh failed"); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout asks the server to revoke refreshToken.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	var res models.MessageResponse
	return c.do(ctx, http.MethodPost, "/api/auth/logout", "", models.LogoutRequest{RefreshToken: refreshToken}, &res, "Logout failed")
}

// Revoke revokes token; hint may be empty.
func (c *Client) Revoke(ctx context.Context, token, hint string) error {
	var res models.MessageResponse
	return c.do(ctx, http.MethodPost, "/api/auth/revoke", "", models.RevokeRequest{Token: token, TokenTypeHint: hint}, &res, "Revocation failed")
}

// UserInfo fetches the profile of the bearer of accessToken.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*models.User, error) {
	var res struct {
		Success bool         `json:"success"`
		User    *models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/userinfo", accessToken, nil, &res, "Failed to load user"); err != nil {
		return nil, err
	}
	if res.User == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "Invalid response from server")
	}
	return res.User, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any, fallback string) error {
	url := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "marshal request")
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	c.Logger.DebugContext(ctx, "HTTP request", "method", method, "url", url)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.WarnContext(ctx, "auth request failed", "path", path, "error", err)
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "Request timed out. Please try again.")
		}
		return dErrors.Wrap(err, dErrors.CodeNetwork, "Network error. Please try again.")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNetwork, "Network error. Please try again.")
	}

	c.Logger.DebugContext(ctx, "HTTP response", "status", resp.StatusCode, "path", path)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp.StatusCode, respBody, fallback)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "Invalid response from server")
	}
	return nil
}

// responseError prefers error_description, then error, then fallback as the
// user-facing message.
func responseError(status int, body []byte, fallback string) error {
	var envelope httputil.ErrorResponse
	_ = json.Unmarshal(body, &envelope)

	msg := fallback
	switch {
	case envelope.ErrorDescription != "":
		msg = envelope.ErrorDescription
	case envelope.Error != "":
		msg = envelope.Error
	}

	code := dErrors.Code(envelope.Error)
	if code == "" {
		code = codeForStatus(status)
	}
	return dErrors.Wrap(fmt.Errorf("http status %d", status), code, msg)
}

func codeForStatus(status int) dErrors.Code {
	switch {
	case status == http.StatusTooManyRequests:
		return dErrors.CodeRateLimited
	case status == http.StatusUnauthorized:
		return dErrors.CodeUnauthorized
	case status >= 400 && status < 500:
		return dErrors.CodeInvalidRequest
	default:
		return dErrors.CodeInternal
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

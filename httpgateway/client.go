// Package httpgateway talks to the library backend over HTTP. Client
// implements auth.ResetGateway and the login call that yields a token.
package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-client"
	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Endpoint paths relative to the base URL
const (
	PathLogin          = "/auth/login"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
)

// TextCodeBackendFailure marks responses without a backend text code
const TextCodeBackendFailure = "BACKEND_FAILURE"

// Doer sends HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config captures the client settings
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default *http.Client.
	HTTPClient Doer
	Logger     auth.Logger
}

// Client calls the backend auth endpoints.
type Client struct {
	base   *url.URL
	http   Doer
	logger auth.Logger
}

var _ auth.ResetGateway = (*Client)(nil)

// New builds a client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, goerrors.New("backend base url is required", goerrors.CategoryBadInput)
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, goerrors.New("backend base url is invalid", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"base_url": raw})
	}

	doer := cfg.HTTPClient
	if doer == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		doer = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		_, logger = auth.ResolveLogger("auth.httpgateway", nil, nil)
	}

	return &Client{base: base, http: doer, logger: logger}, nil
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        int    `json:"code"`
	NewPassword string `json:"newPassword"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, identifier, password string) (string, error) {
	var out loginResponse
	if err := c.post(ctx, PathLogin, loginRequest{Identifier: identifier, Password: password}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", goerrors.New("backend returned no token", goerrors.CategoryOperation).
			WithTextCode(TextCodeBackendFailure)
	}
	return out.Token, nil
}

// RequestResetCode implements auth.ResetGateway.
func (c *Client) RequestResetCode(ctx context.Context, email string) error {
	return c.post(ctx, PathForgotPassword, forgotPasswordRequest{Email: email}, nil)
}

// ConfirmReset implements auth.ResetGateway.
func (c *Client) ConfirmReset(ctx context.Context, email string, code int, newPassword string) error {
	return c.post(ctx, PathResetPassword, resetPasswordRequest{
		Email:       email,
		Code:        code,
		NewPassword: newPassword,
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
	}

	endpoint := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "path", path, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "backend request failed").
			WithTextCode(TextCodeBackendFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.responseError(path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode backend response").
			WithTextCode(TextCodeBackendFailure)
	}
	return nil
}

func (c *Client) responseError(path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var parsed errorResponse
	_ = json.Unmarshal(raw, &parsed)

	message := parsed.Error
	if message == "" {
		message = parsed.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	textCode := parsed.Code
	if textCode == "" {
		textCode = TextCodeBackendFailure
	}

	c.logger.Debug("backend rejected request", "path", path, "status", resp.StatusCode, "code", textCode)

	return goerrors.New(message, categoryFor(resp.StatusCode)).
		WithTextCode(textCode).
		WithCode(resp.StatusCode)
}

func categoryFor(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryOperation
	}
}

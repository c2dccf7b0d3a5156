package auth

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/newsdesk/console/internal/domain"
)

var tracer = otel.Tracer("auth")

// maxResponseBytes bounds how much of a login response is read.
const maxResponseBytes = 64 << 10

// Authenticator exchanges credentials for a token pair.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (domain.CredentialPair, error)
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration // Zero uses domain.AuthTimeout
	HTTPClient *http.Client  // Nil uses a client with Timeout
	Logger     *slog.Logger
}

// Client calls POST {BaseURL}/auth/login on the backend REST API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

var _ Authenticator = (*Client)(nil)

// NewClient creates a login client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = domain.AuthTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		http:    hc,
		logger:  logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Message      string `json:"message"`
}

// Login posts the credentials and returns the issued pair.
//
// 400, 401 and 403 wrap domain.ErrInvalidCredentials. Every other failure,
// including a 2xx without an access token, wraps domain.ErrAuthRequest.
func (c *Client) Login(ctx context.Context, email, password string) (domain.CredentialPair, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pair, status, err := c.login(ctx, email, password)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.CredentialPair{}, err
	}
	return pair, nil
}

func (c *Client) login(ctx context.Context, email, password string) (domain.CredentialPair, int, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return domain.CredentialPair{}, 0, fmt.Errorf("encode login request: %w: %w", domain.ErrAuthRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+domain.AuthLoginEndpoint, bytes.NewReader(body))
	if err != nil {
		return domain.CredentialPair{}, 0, fmt.Errorf("build login request: %w: %w", domain.ErrAuthRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.CredentialPair{}, 0, fmt.Errorf("login request timed out after %s: %w", c.timeout, domain.ErrAuthRequest)
		}
		return domain.CredentialPair{}, 0, fmt.Errorf("login request: %w: %w", domain.ErrAuthRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.CredentialPair{}, resp.StatusCode, fmt.Errorf("read login response: %w: %w", domain.ErrAuthRequest, err)
	}

	var out loginResponse
	decodeErr := json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return domain.CredentialPair{}, resp.StatusCode, statusError(domain.ErrInvalidCredentials, resp.StatusCode, out.Message)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return domain.CredentialPair{}, resp.StatusCode, statusError(domain.ErrAuthRequest, resp.StatusCode, out.Message)
	}

	if decodeErr != nil {
		return domain.CredentialPair{}, resp.StatusCode, fmt.Errorf("decode login response: %w: %w", domain.ErrAuthRequest, decodeErr)
	}
	if out.AccessToken == "" {
		return domain.CredentialPair{}, resp.StatusCode, fmt.Errorf("login response without access token: %w", domain.ErrAuthRequest)
	}

	c.logger.Debug("login accepted", slog.Int("status", resp.StatusCode))

	return domain.CredentialPair{
		AccessToken:  domain.SecretString(out.AccessToken),
		RefreshToken: domain.SecretString(out.RefreshToken),
	}, resp.StatusCode, nil
}

func statusError(sentinel error, status int, message string) error {
	if message != "" {
		return fmt.Errorf("%s (status %d): %w", message, status, sentinel)
	}
	return fmt.Errorf("status %d: %w", status, sentinel)
}

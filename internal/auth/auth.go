package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnauthenticated means the token does not map to a live session.
var ErrUnauthenticated = errors.New("unauthenticated")

// Error is a failure reported by the identity provider. Message is meant
// to be shown to the user as-is.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Session is an authenticated user session.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Provider is the identity service.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, fullName, email, password string) (Session, error)
	// Session resolves a session token, returning ErrUnauthenticated for unknown tokens.
	Session(ctx context.Context, token string) (Session, error)
}

// Client talks to a better-auth compatible identity service.
type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
}

var _ Provider = (*Client)(nil)

// NewClient creates an identity client rooted at baseURL.
func NewClient(baseURL string, logger logrus.FieldLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger.WithField("component", "auth"),
	}
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type signInResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

// SignIn calls POST /api/auth/sign-in/email.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var resp signInResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/sign-in/email", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: resp.Token, UserID: resp.User.ID, Email: resp.User.Email, Name: resp.User.Name}, nil
}

// SignUp calls POST /api/auth/sign-up/email.
func (c *Client) SignUp(ctx context.Context, fullName, email, password string) (Session, error) {
	var resp signInResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/sign-up/email", "", map[string]string{
		"name":     fullName,
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: resp.Token, UserID: resp.User.ID, Email: resp.User.Email, Name: resp.User.Name}, nil
}

// Session calls GET /api/auth/get-session with the bearer token.
func (c *Client) Session(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthenticated
	}

	var resp *struct {
		Session struct {
			Token  string `json:"token"`
			UserID string `json:"userId"`
		} `json:"session"`
		User userPayload `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/get-session", token, nil, &resp)
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) && authErr.Status == http.StatusUnauthorized {
			return Session{}, ErrUnauthenticated
		}
		return Session{}, err
	}
	// The provider answers null for unknown sessions.
	if resp == nil || resp.User.ID == "" {
		return Session{}, ErrUnauthenticated
	}
	return Session{Token: token, UserID: resp.User.ID, Email: resp.User.Email, Name: resp.User.Name}, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, payload any, v any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.log.WithFields(logrus.Fields{"path": path, "status": resp.StatusCode}).Debug("Identity provider rejected request")
		return &Error{Status: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

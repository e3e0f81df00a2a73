// Package client is the typed REST client the console and kiosk use to talk
// to the allocation service.
package client

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

	"invigilation/internal/apperrors"
	"invigilation/internal/logger"
	"invigilation/internal/session"
)

// Client calls the allocation service with the session's bearer token.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session *session.Session
}

// New creates a client with configurable timeout.
func New(baseURL string, sess *session.Session, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Session: sess,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// public requests carry no token and never invalidate the session.
	public bool
	// fallback is shown when the service gives no message.
	fallback string
}

func jsonBody(v any) (io.Reader, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(raw), nil
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// send performs r and returns the response of a 2xx answer. Every other
// outcome is mapped to an *apperrors.Error.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	token := ""
	if !r.public {
		token = c.Session.Token()
		if token == "" {
			return nil, &apperrors.Error{
				Kind:       apperrors.ErrUnauthenticated,
				Message:    "Please log in to continue",
				RedirectTo: c.Session.Invalidate(),
			}
		}
	}

	u := c.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug().Err(err).Str("path", r.path).Msg("request failed")
		return nil, &apperrors.Error{Kind: apperrors.ErrUnavailable, Message: apperrors.GenericMessage}
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var env envelope
	_ = json.Unmarshal(body, &env)

	appErr := &apperrors.Error{
		Kind:    apperrors.FromStatus(resp.StatusCode),
		Message: env.Message,
		Status:  resp.StatusCode,
	}
	if !r.public && apperrors.IsAuth(appErr) {
		appErr.RedirectTo = c.Session.Invalidate()
		if appErr.Message == "" {
			appErr.Message = "Session expired, please log in again"
		}
		return nil, appErr
	}
	if appErr.Message == "" {
		appErr.Message = r.fallback
	}
	if appErr.Message == "" {
		appErr.Message = apperrors.GenericMessage
	}
	return nil, appErr
}

// call performs r and decodes a JSON answer into out when out is non-nil.
func (c *Client) call(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		logger.Debug().Err(err).Str("path", r.path).Msg("decode response")
		return &apperrors.Error{Kind: apperrors.ErrInternal, Message: apperrors.GenericMessage, Status: resp.StatusCode}
	}
	return nil
}

// post sends v as JSON and returns the service's message.
func (c *Client) post(ctx context.Context, path string, v any, fallback string) (string, error) {
	body, err := jsonBody(v)
	if err != nil {
		return "", err
	}
	var env envelope
	err = c.call(ctx, request{
		method:      http.MethodPost,
		path:        path,
		body:        body,
		contentType: "application/json",
		fallback:    fallback,
	}, &env)
	return env.Message, err
}

// IsRedirect reports whether err requires the operator to sign in again,
// and where.
func IsRedirect(err error) (string, bool) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.RedirectTo != "" {
		return appErr.RedirectTo, true
	}
	return "", false
}

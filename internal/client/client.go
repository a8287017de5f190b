// Package client talks to a dmsync daemon over REST and the websocket event channel.
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

	"github.com/matheus3301/dmsync/internal/auth"
	"github.com/matheus3301/dmsync/internal/model"
)

// Client is a REST client acting as one participant.
type Client struct {
	base string
	uid  string
	http *http.Client
}

// New creates a client for the daemon at baseURL (e.g. http://127.0.0.1:7450)
// authenticating as uid. uid may be empty for the public registration calls.
func New(baseURL, uid string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		uid:  uid,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Self returns the identity the client acts as.
func (c *Client) Self() string { return c.uid }

// History returns the conversation with partner oldest first.
func (c *Client) History(ctx context.Context, partner string) ([]model.Message, error) {
	var out []model.Message
	err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(partner), nil, &out)
	return out, err
}

// Send appends a message to partner.
func (c *Client) Send(ctx context.Context, partner, text, media string) (model.Message, error) {
	var out model.Message
	body := map[string]string{"text": text, "media": media}
	err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(partner), body, &out)
	return out, err
}

// MarkRead marks every message from sender to the caller as read.
func (c *Client) MarkRead(ctx context.Context, sender string) (int64, error) {
	var out struct {
		UpdatedCount int64 `json:"updatedCount"`
	}
	err := c.do(ctx, http.MethodPost, "/api/messages/read", map[string]string{"senderId": sender}, &out)
	return out.UpdatedCount, err
}

// Chats returns the caller's conversation summaries.
func (c *Client) Chats(ctx context.Context) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	err := c.do(ctx, http.MethodGet, "/api/messages/chats", nil, &out)
	return out, err
}

// Presence returns the identities currently connected.
func (c *Client) Presence(ctx context.Context) ([]string, error) {
	var out struct {
		Online []string `json:"online"`
	}
	err := c.do(ctx, http.MethodGet, "/api/presence", nil, &out)
	return out.Online, err
}

// CreateUser registers a participant.
func (c *Client) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	var out model.User
	body := map[string]string{
		"id":          u.ID,
		"fullName":    u.FullName,
		"phoneNumber": u.PhoneNumber,
		"region":      u.Region,
	}
	err := c.do(ctx, http.MethodPost, "/api/users", body, &out)
	return out, err
}

// DeleteUser removes a participant. The daemon only lets participants
// remove themselves, so id must be the client's identity.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(id), nil, nil)
}

// AddContact adds the user registered with phone to the caller's contacts.
func (c *Client) AddContact(ctx context.Context, name, phone string) (model.Contact, error) {
	var out model.Contact
	err := c.do(ctx, http.MethodPost, "/api/contacts", map[string]string{"name": name, "phoneNumber": phone}, &out)
	return out, err
}

// Contacts lists the caller's contacts.
func (c *Client) Contacts(ctx context.Context) ([]model.Contact, error) {
	var out []model.Contact
	err := c.do(ctx, http.MethodGet, "/api/contacts", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.uid != "" {
		req.Header.Set(auth.HeaderName, c.uid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, model.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body)
	if body.Message == "" {
		body.Message = resp.Status
	}

	var kind error
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		kind = model.ErrInvalid
	case resp.StatusCode == http.StatusNotFound:
		kind = model.ErrNotFound
	case resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusGatewayTimeout:
		kind = model.ErrTransient
	default:
		return &HTTPError{StatusCode: resp.StatusCode, Message: body.Message}
	}
	return fmt.Errorf("%s %s: %s: %w", method, path, body.Message, kind)
}

// HTTPError is a response status with no matching error kind.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the daemon.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusUnauthorized
}

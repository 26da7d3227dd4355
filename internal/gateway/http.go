package gateway

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

	"fpoadmin/internal/api/wire"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

const (
	maxErrorBody    = 4 << 10
	defaultTimeout  = 10 * time.Second
	contentTypeJSON = "application/json"
)

// HTTP talks to the REST API.
type HTTP struct {
	base    *url.URL
	client  *http.Client
	session *Session
}

var _ domain.Gateway = (*HTTP)(nil)

// HTTPOption customizes an HTTP gateway.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// NewHTTP returns a gateway for the server at baseURL authenticated by
// session.
func NewHTTP(baseURL string, session *Session, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway: unsupported base url scheme %q", u.Scheme)
	}
	if session == nil {
		session = &Session{}
	}
	h := &HTTP{base: u, client: &http.Client{Timeout: defaultTimeout}, session: session}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Session returns the session the gateway authenticates with.
func (h *HTTP) Session() *Session { return h.session }

// Create implements domain.Gateway.
func (h *HTTP) Create(ctx context.Context, category attribute.Category, parentID string, details attribute.Bag) (string, error) {
	var out wire.CreateResponse
	body := wire.CreateRequest{ParentID: parentID, Category: string(category), Details: details}
	err := h.do(ctx, "create", http.MethodPost, organizationPath(parentID), body, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// Update implements domain.Gateway. The body is the flat change set payload.
func (h *HTTP) Update(ctx context.Context, recordID string, changes domain.ChangeSet) error {
	return h.do(ctx, "update", http.MethodPatch, recordPath(recordID), changes, nil)
}

// List implements domain.Gateway. A 404 is an organization without records.
func (h *HTTP) List(ctx context.Context, parentID string) ([]domain.Record, error) {
	var out wire.ListResponse
	err := h.do(ctx, "list", http.MethodGet, organizationPath(parentID), nil, &out)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Records == nil {
		out.Records = []domain.Record{}
	}
	return out.Records, nil
}

// Delete implements domain.Gateway.
func (h *HTTP) Delete(ctx context.Context, recordID string) error {
	return h.do(ctx, "delete", http.MethodDelete, recordPath(recordID), nil, nil)
}

func organizationPath(parentID string) string {
	return wire.Prefix + "/organizations/" + url.PathEscape(parentID) + "/facilities"
}

func recordPath(id string) string {
	return wire.Prefix + "/facilities/" + url.PathEscape(id)
}

func (h *HTTP) do(ctx context.Context, op, method, path string, in, out any) error {
	token, ok := h.session.Token()
	if !ok {
		return ErrNotAuthenticated
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	u := *h.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("gateway: %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}

func responseError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	var env wire.ErrorResponse
	if json.Unmarshal(raw, &env) == nil && env.Message != "" {
		msg = env.Message
	}
	nerr := &NetworkError{Op: op, Status: resp.StatusCode, Message: msg}
	switch resp.StatusCode {
	case http.StatusNotFound:
		nerr.Err = &domain.NotFoundError{Entity: domain.EntityRecord, ID: msg}
	case http.StatusUnauthorized, http.StatusForbidden:
		nerr.Err = ErrNotAuthenticated
	}
	return nerr
}

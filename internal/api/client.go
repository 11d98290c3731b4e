// Package api implements the HTTP client for the remote delta-download
// API. One endpoint shape covers both bulk pagination and single-record
// fetches; the engine decides which mode to use.
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
	"time"

	"github.com/fieldsync/fieldsync/internal/entity"
)

// Error is a network-level failure: the request never produced a usable
// response and no partial state was applied.
type Error struct {
	Op         string // e.g. "fetch_page", "identity"
	URL        string
	StatusCode int // 0 when the request itself failed
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: server returned %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PageRequest describes one delta-download call.
type PageRequest struct {
	Collection string
	PageIndex  int
	PageSize   int
	Identity   entity.Identity
	Since      string // checkpoint timestamp, empty = full download
	RecordID   int64  // non-zero switches to single-record mode
}

// PageResult is the decoded response of a delta-download call. Records
// stay raw; each collection decodes its own kind.
type PageResult struct {
	Records    []json.RawMessage `json:"records"`
	ServerAsOf string            `json:"server_as_of"`
}

// Client talks to the remote API. Safe for concurrent use; the
// out-of-band single-record path shares it with the bulk walk.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchPage downloads one page of a collection's delta, or a single
// record when req.RecordID is set.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*PageResult, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(req.PageIndex))
	q.Set("size", strconv.Itoa(req.PageSize))
	q.Set("role_id", strconv.Itoa(int(req.Identity.RoleID)))
	q.Set("actor_id", strconv.FormatInt(req.Identity.ActorID, 10))
	if req.Since != "" {
		q.Set("since", req.Since)
	}
	if req.RecordID != 0 {
		q.Set("record_id", strconv.FormatInt(req.RecordID, 10))
	}

	endpoint := fmt.Sprintf("%s/v1/sync/%s?%s", c.baseURL, req.Collection, q.Encode())

	var result PageResult
	if err := c.getJSON(ctx, "fetch_page", endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Identity resolves the current user's role and actor IDs. Called once
// per sync session; the engine caches the result.
func (c *Client) Identity(ctx context.Context) (entity.Identity, error) {
	endpoint := c.baseURL + "/v1/identity"

	var ident entity.Identity
	if err := c.getJSON(ctx, "identity", endpoint, &ident); err != nil {
		return entity.Identity{}, err
	}
	return ident, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	endpoint := c.baseURL + "/v1/login"

	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", fmt.Errorf("encoding login request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Op: "login", URL: endpoint, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{Op: "login", URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("authentication failed: check username and password")
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Op: "login", URL: endpoint, StatusCode: resp.StatusCode}
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", &Error{Op: "login", URL: endpoint, Err: err}
	}
	return tokenResp.Token, nil
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Op: op, URL: endpoint, Err: err}
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Op: op, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("server returned 401 unauthorized: login required")
	}
	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &Error{Op: op, URL: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, URL: endpoint, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrAPIUnavailable is returned when the manager cannot be reached.
var ErrAPIUnavailable = errors.New("manager API unavailable")

// Client reads the manager's admin endpoints.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// HistoryQuery narrows a history request.
type HistoryQuery struct {
	SessionID string
	Kinds     []string
	Limit     int
}

// NewClient accepts a bind address or a full http(s)/ws(s) url. An empty
// address yields a nil client.
func NewClient(address, token string) (*Client, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	base, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	switch base.Scheme {
	case "ws":
		base.Scheme = "http"
	case "wss":
		base.Scheme = "https"
	}
	if strings.HasPrefix(base.Host, "0.0.0.0:") {
		base.Host = "127.0.0.1:" + strings.TrimPrefix(base.Host, "0.0.0.0:")
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Status fetches the current snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var payload Status
	err := c.get(ctx, "/api/status", nil, &payload)
	return payload, err
}

// History fetches recent ledger events.
func (c *Client) History(ctx context.Context, q HistoryQuery) (HistoryResponse, error) {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if strings.TrimSpace(q.SessionID) != "" {
		values.Set("session", q.SessionID)
	}
	for _, kind := range q.Kinds {
		if strings.TrimSpace(kind) != "" {
			values.Add("kind", kind)
		}
	}
	var payload HistoryResponse
	err := c.get(ctx, "/api/history", values, &payload)
	return payload, err
}

func (c *Client) get(ctx context.Context, path string, values url.Values, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsAPIUnavailable reports whether err means the manager could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

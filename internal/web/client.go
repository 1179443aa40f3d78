package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client reads and writes attribute files of a running daemon.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// NewNodeClient talks to the daemon through its unix-socket device node.
func NewNodeClient(socketPath string) *Client {
	var d net.Dialer
	tr := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		BaseURL: "http://node",
		HTTP:    &http.Client{Transport: tr, Timeout: 5 * time.Second},
	}
}

func (c *Client) attrURL(device, attr string) string {
	return c.BaseURL + AttrPrefix + device + "/" + attr
}

func (c *Client) Show(ctx context.Context, device, attr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.attrURL(device, attr), nil)
	if err != nil {
		return "", err
	}
	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("show %s/%s: %w", device, attr, err)
	}
	return body, nil
}

// Store writes payload and returns the byte count the daemon consumed.
func (c *Client) Store(ctx context.Context, device, attr, payload string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.attrURL(device, attr), strings.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "text/plain")
	body, err := c.do(req)
	if err != nil {
		return 0, fmt.Errorf("store %s/%s: %w", device, attr, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return 0, fmt.Errorf("store %s/%s: unexpected reply %q", device, attr, body)
	}
	return n, nil
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

func (c *Client) do(req *http.Request) (string, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	}
	return string(b), nil
}

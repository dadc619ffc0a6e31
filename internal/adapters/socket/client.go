package socket

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fyeo/eventmatcher/internal/ports"
)

// ErrServer wraps errors reported by the daemon (as opposed to transport errors).
var ErrServer = errors.New("server error")

// Client connects to the matcher daemon over its Unix socket.
type Client struct {
	sockPath string
	timeout  time.Duration
}

// NewClient creates a client for the given socket path.
func NewClient(sockPath string) *Client {
	return &Client{sockPath: sockPath, timeout: 30 * time.Second}
}

// Health asks the daemon for its index state.
func (c *Client) Health() (*HealthResult, error) {
	var result HealthResult
	if err := c.call(MethodHealth, nil, &result, 5*time.Second); err != nil {
		return nil, err
	}
	return &result, nil
}

// Match sends a document to the daemon and returns the events it produced.
func (c *Client) Match(doc ports.Document, dryRun bool) (*MatchResult, error) {
	var result MatchResult
	if err := c.call(MethodMatch, MatchParams{Document: doc, DryRun: dryRun}, &result, c.timeout); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reindex asks the daemon to rebuild both keyword indexes from the asset
// catalog. Rebuilds can be slow, so the deadline is extended.
func (c *Client) Reindex() (*ReindexResult, error) {
	var result ReindexResult
	if err := c.call(MethodReindex, nil, &result, 5*time.Minute); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown() error {
	return c.call(MethodShutdown, nil, nil, 5*time.Second)
}

// Ping reports whether the daemon is reachable.
func (c *Client) Ping() bool {
	conn, err := net.DialTimeout("unix", c.sockPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (c *Client) call(method string, params, out any, timeout time.Duration) error {
	req, err := newRequest("1", method, params)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("unix", c.sockPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxMessage)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		return fmt.Errorf("empty response")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrServer, resp.Error)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

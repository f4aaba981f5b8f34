package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/al-bashkir/securelog/internal/wire"
)

// Client submits events to the daemon over its Unix socket
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SendEvents sends a batch of events and waits for the daemon's ack.
// A rejected batch is reported through Response.Status, not err.
func (c *Client) SendEvents(ctx context.Context, events []wire.Event) (*Response, error) {
	payload, err := wire.Encode(events)
	if err != nil {
		return nil, err
	}
	return c.SendRaw(ctx, payload)
}

// SendRaw sends already encoded wire JSON (one event or an array).
func (c *Client) SendRaw(ctx context.Context, payload []byte) (*Response, error) {
	req := &Request{Type: MessageTypeLogEvents, Events: payload}

	var d net.Dialer
	d.Timeout = c.timeout
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.Type != MessageTypeAck {
		return nil, fmt.Errorf("invalid response type: %s", resp.Type)
	}

	return &resp, nil
}

// SetTimeout sets the connection timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

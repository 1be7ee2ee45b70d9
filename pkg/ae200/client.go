package ae200

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// Executor performs the three AE-200 operations against a controller address.
// Client is the network implementation; Device and Controller accept any
// Executor.
type Executor interface {
	ListUnits(ctx context.Context, address string) ([]DeviceRecord, error)
	GetDeviceAttributes(ctx context.Context, address, deviceID string) (Attributes, error)
	SetAttributes(ctx context.Context, address, deviceID string, attributes map[string]string) error
}

// Client talks to AE-200 controllers. It opens one WebSocket connection per
// request and holds no per-request state, so a single Client can be shared by
// any number of devices and goroutines.
type Client struct {
	timeout     time.Duration
	compression websocket.CompressionMode
	readLimit   int64
	logger      *slog.Logger
}

var _ Executor = (*Client)(nil)

// NewClient creates a new client.
// Options can be provided to configure the client behavior.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	c := &Client{
		timeout:     cfg.timeout,
		compression: websocket.CompressionDisabled,
		readLimit:   cfg.readLimit,
		logger:      cfg.logger,
	}
	if cfg.compression {
		c.compression = websocket.CompressionContextTakeover
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// URL returns the WebSocket URL of the controller at address.
func URL(address string) string {
	return "ws://" + address + Path
}

// Origin returns the Origin header value the controller expects.
func Origin(address string) string {
	return "http://" + address
}

// Execute performs a single exchange with the controller: connect, send
// payload, read exactly one message when expectResponse is set, close.
// The connection is closed on every return path.
func (c *Client) Execute(ctx context.Context, address string, payload []byte, expectResponse bool) ([]byte, error) {
	// Apply request timeout only if configured and the context has no deadline
	if c.timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	url := URL(address)
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader:      http.Header{"Origin": []string{Origin(address)}},
		Subprotocols:    []string{Subprotocol},
		CompressionMode: c.compression,
	})
	if err != nil {
		c.logger.Error("failed to connect", "url", url, "error", err)
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, url, err)
	}
	defer func() {
		if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			c.logger.Debug("close handshake incomplete", "url", url, "error", err)
		}
	}()
	conn.SetReadLimit(c.readLimit)

	c.logger.Debug("connected to controller", "url", url, "subprotocol", conn.Subprotocol())

	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		c.logger.Error("failed to send request", "url", url, "error", err)
		return nil, fmt.Errorf("%w: send: %w", ErrTransport, err)
	}
	c.logger.Debug("request sent", "url", url, "len", len(payload))

	if !expectResponse {
		return nil, nil
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		c.logger.Error("failed to read response", "url", url, "error", err)
		return nil, fmt.Errorf("%w: receive: %w", ErrTransport, err)
	}
	c.logger.Debug("response received", "url", url, "len", len(data))

	return data, nil
}

// ListUnits requests the group list of the controller.
func (c *Client) ListUnits(ctx context.Context, address string) ([]DeviceRecord, error) {
	resp, err := c.Execute(ctx, address, BuildListUnitsRequest(), true)
	if err != nil {
		return nil, err
	}

	return ParseDeviceList(resp)
}

// GetDeviceAttributes requests every detail attribute of one group.
func (c *Client) GetDeviceAttributes(ctx context.Context, address, deviceID string) (Attributes, error) {
	resp, err := c.Execute(ctx, address, BuildDeviceDetailsRequest([]string{deviceID}), true)
	if err != nil {
		return nil, err
	}

	attrs, err := ParseDeviceAttributes(resp)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", deviceID, err)
	}
	return attrs, nil
}

// SetAttributes sends a set command for one group. The controller's reply,
// if any, is not awaited.
func (c *Client) SetAttributes(ctx context.Context, address, deviceID string, attributes map[string]string) error {
	_, err := c.Execute(ctx, address, BuildSetAttributesRequest(deviceID, attributes), false)
	return err
}

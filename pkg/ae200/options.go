package ae200

import (
	"errors"
	"log/slog"
	"time"
)

// ClientOption configures a Client.
type ClientOption func(*clientConfig) error

// clientConfig holds the configuration for a Client.
type clientConfig struct {
	timeout     time.Duration
	compression bool
	readLimit   int64
	logger      *slog.Logger
}

// defaultConfig returns the default client configuration.
func defaultConfig() *clientConfig {
	return &clientConfig{
		timeout:     0,
		compression: true,
		readLimit:   MaxMessageSize,
		logger:      nil,
	}
}

// WithTimeout bounds each exchange (dial, send, receive) when the caller's
// context carries no deadline. By default no timeout is applied.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithCompression enables or disables permessage-deflate negotiation.
// Default is enabled.
func WithCompression(enabled bool) ClientOption {
	return func(c *clientConfig) error {
		c.compression = enabled
		return nil
	}
}

// WithReadLimit sets the maximum size of a response message in bytes.
// Default is MaxMessageSize.
func WithReadLimit(n int64) ClientOption {
	return func(c *clientConfig) error {
		if n <= 0 {
			return errors.New("read limit must be positive")
		}
		c.readLimit = n
		return nil
	}
}

// WithLogger sets a structured logger for debug and error logging.
// By default, no logging is performed.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) error {
		c.logger = logger
		return nil
	}
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithLease sets how long fetched attributes are trusted. Default is 10 seconds.
func WithLease(d time.Duration) DeviceOption {
	return func(dev *Device) {
		dev.lease = d
	}
}

// WithClock replaces the time source used for the lease.
func WithClock(now func() time.Time) DeviceOption {
	return func(dev *Device) {
		dev.now = now
	}
}

// WithDeviceLogger sets the logger used by a Device.
func WithDeviceLogger(logger *slog.Logger) DeviceOption {
	return func(dev *Device) {
		dev.logger = logger
	}
}

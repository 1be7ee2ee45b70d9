package ae200

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestWithTimeout_Valid(t *testing.T) {
	cfg := defaultConfig()

	err := WithTimeout(10 * time.Second)(cfg)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.timeout)
}

func TestWithTimeout_Invalid(t *testing.T) {
	cfg := defaultConfig()

	err := WithTimeout(0)(cfg)
	assert.Error(t, err)

	err = WithTimeout(-1 * time.Second)(cfg)
	assert.Error(t, err)
}

func TestWithReadLimit(t *testing.T) {
	cfg := defaultConfig()

	require.NoError(t, WithReadLimit(4096)(cfg))
	assert.Equal(t, int64(4096), cfg.readLimit)

	assert.Error(t, WithReadLimit(0)(cfg))
	assert.Error(t, WithReadLimit(-5)(cfg))
}

func TestWithCompression(t *testing.T) {
	cfg := defaultConfig()
	assert.True(t, cfg.compression)

	require.NoError(t, WithCompression(false)(cfg))
	assert.False(t, cfg.compression)
}

func TestWithLogger(t *testing.T) {
	cfg := defaultConfig()
	assert.Nil(t, cfg.logger)

	logger := slog.Default()
	err := WithLogger(logger)(cfg)
	require.NoError(t, err)
	assert.Equal(t, logger, cfg.logger)
}

func TestWithLogger_Nil(t *testing.T) {
	cfg := defaultConfig()
	cfg.logger = slog.Default()

	err := WithLogger(nil)(cfg)
	require.NoError(t, err)
	assert.Nil(t, cfg.logger)
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, time.Duration(0), cfg.timeout)
	assert.True(t, cfg.compression)
	assert.Equal(t, int64(MaxMessageSize), cfg.readLimit)
	assert.Nil(t, cfg.logger)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient()
	require.NoError(t, err)
	assert.Equal(t, websocket.CompressionContextTakeover, c.compression)
	assert.NotNil(t, c.logger)

	c, err = NewClient(WithCompression(false), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, websocket.CompressionDisabled, c.compression)
	assert.Equal(t, time.Second, c.timeout)

	_, err = NewClient(WithTimeout(0))
	assert.Error(t, err)
}

func TestURLAndOrigin(t *testing.T) {
	assert.Equal(t, "ws://192.168.1.10/b_xmlproc/", URL("192.168.1.10"))
	assert.Equal(t, "http://192.168.1.10", Origin("192.168.1.10"))
	assert.Equal(t, "ws://10.0.0.5:8080/b_xmlproc/", URL("10.0.0.5:8080"))
}

package ae200

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_ListDevices(t *testing.T) {
	exec := newFakeExecutor()
	exec.records = []DeviceRecord{{ID: "1", Name: "Living Room"}, {ID: "2", Name: "Bedroom"}}
	exec.attrs["1"] = Attributes{"Drive": "ON"}
	exec.attrs["2"] = Attributes{"Drive": "OFF"}

	devices, err := NewController(exec, "10.0.0.5").ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, "Living Room", devices[0].Name())
	assert.Equal(t, "Bedroom", devices[1].Name())
	assert.Equal(t, "1", devices[0].ID())
	assert.Equal(t, "10.0.0.5", devices[1].Address())

	// One detail request per group on top of the list request.
	assert.Equal(t, 2, exec.getCount())
}

func TestController_ListDevices_ListError(t *testing.T) {
	exec := newFakeExecutor()
	exec.listErr = ErrTransport

	_, err := NewController(exec, "10.0.0.5").ListDevices(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestController_ListDevices_DeviceError(t *testing.T) {
	exec := newFakeExecutor()
	exec.records = []DeviceRecord{{ID: "1", Name: "Living Room"}, {ID: "9", Name: "Ghost"}}
	exec.attrs["1"] = Attributes{"Drive": "ON"}

	_, err := NewController(exec, "10.0.0.5").ListDevices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "Ghost")
}

func TestController_Records(t *testing.T) {
	exec := newFakeExecutor()
	exec.records = []DeviceRecord{{ID: "3", Name: ""}}

	c := NewController(exec, "10.0.0.5")
	records, err := c.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []DeviceRecord{{ID: "3"}}, records)
	assert.Equal(t, "10.0.0.5", c.Address())
	assert.Equal(t, 0, exec.getCount())
}

func TestDiscoverHosts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	exec := newFakeExecutor()
	exec.records = []DeviceRecord{{ID: "1", Name: "Hall"}}

	// 127.0.0.2 has nothing listening on the port.
	results := discoverHosts(context.Background(), exec, []string{"127.0.0.1", "127.0.0.2"}, port)
	require.Len(t, results, 1)
	assert.Equal(t, "127.0.0.1", results[0].IP)
	assert.Equal(t, exec.records, results[0].Groups)
}

func TestDiscoverHosts_NotAController(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, port, _ := net.SplitHostPort(ln.Addr().String())

	exec := newFakeExecutor()
	exec.listErr = ErrTransport

	results := discoverHosts(context.Background(), exec, []string{"127.0.0.1"}, port)
	assert.Empty(t, results)
}

func TestAddressFor(t *testing.T) {
	assert.Equal(t, "192.168.1.10", addressFor("192.168.1.10:80", "80"))
	assert.Equal(t, "192.168.1.10:8080", addressFor("192.168.1.10:8080", "8080"))
}

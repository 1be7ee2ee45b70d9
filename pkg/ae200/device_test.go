package ae200

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor serves attributes from memory and counts calls.
type fakeExecutor struct {
	mu      sync.Mutex
	records []DeviceRecord
	attrs   map[string]Attributes
	listErr error
	getErr  error
	setErr  error
	gets    int
	sets    []map[string]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{attrs: make(map[string]Attributes)}
}

func (f *fakeExecutor) ListUnits(_ context.Context, _ string) ([]DeviceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeExecutor) GetDeviceAttributes(_ context.Context, _, id string) (Attributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.attrs[id]
	if !ok {
		return nil, ErrParse
	}
	return a.Clone(), nil
}

func (f *fakeExecutor) SetAttributes(_ context.Context, _, _ string, attrs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, attrs)
	return f.setErr
}

func (f *fakeExecutor) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDevice(t *testing.T, attrs Attributes) (*Device, *fakeExecutor, *fakeClock) {
	t.Helper()
	exec := newFakeExecutor()
	exec.attrs["6"] = attrs
	clock := &fakeClock{now: time.Unix(1700000000, 0)}

	dev, err := NewDevice(context.Background(), exec, "10.0.0.5", "6", "Office", WithClock(clock.Now))
	require.NoError(t, err)
	return dev, exec, clock
}

func TestNewDevice_InitialRefresh(t *testing.T) {
	dev, exec, _ := newTestDevice(t, Attributes{"Drive": "ON"})

	assert.Equal(t, 1, exec.getCount())
	assert.Equal(t, "6", dev.ID())
	assert.Equal(t, "Office", dev.Name())
	assert.Equal(t, "10.0.0.5", dev.Address())
}

func TestNewDevice_RefreshFails(t *testing.T) {
	exec := newFakeExecutor()
	exec.getErr = ErrTransport

	_, err := NewDevice(context.Background(), exec, "10.0.0.5", "6", "Office")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDevice_Lease(t *testing.T) {
	dev, exec, clock := newTestDevice(t, Attributes{"SetTemp": "22"})
	ctx := context.Background()

	clock.Advance(9 * time.Second)
	_, err := dev.Read(ctx, AttrSetTemp, "")
	require.NoError(t, err)
	assert.Equal(t, 1, exec.getCount(), "read inside the lease must not refresh")

	clock.Advance(2 * time.Second)
	_, err = dev.Read(ctx, AttrSetTemp, "")
	require.NoError(t, err)
	assert.Equal(t, 2, exec.getCount(), "read after the lease must refresh once")

	_, err = dev.Read(ctx, AttrSetTemp, "")
	require.NoError(t, err)
	assert.Equal(t, 2, exec.getCount())
}

func TestDevice_LeaseBoundary(t *testing.T) {
	dev, exec, clock := newTestDevice(t, Attributes{"SetTemp": "22"})

	clock.Advance(DefaultLease)
	_, err := dev.Read(context.Background(), AttrSetTemp, "")
	require.NoError(t, err)
	assert.Equal(t, 2, exec.getCount())
}

func TestDevice_WithLease(t *testing.T) {
	exec := newFakeExecutor()
	exec.attrs["1"] = Attributes{"Drive": "ON"}
	clock := &fakeClock{now: time.Unix(0, 0)}

	dev, err := NewDevice(context.Background(), exec, "a", "1", "n", WithClock(clock.Now), WithLease(time.Minute))
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	_, err = dev.IsPowerOn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exec.getCount())
}

func TestDevice_ReadDefaults(t *testing.T) {
	dev, _, _ := newTestDevice(t, Attributes{"SetTemp": "", "Mode": "COOL"})
	ctx := context.Background()

	v, err := dev.Read(ctx, AttrSetTemp, "none")
	require.NoError(t, err)
	assert.Equal(t, "none", v)

	v, err = dev.Read(ctx, "Unknown", "none")
	require.NoError(t, err)
	assert.Equal(t, "none", v)

	v, err = dev.Read(ctx, AttrMode, "AUTO")
	require.NoError(t, err)
	assert.Equal(t, "COOL", v)

	_, ok, err := dev.Lookup(ctx, AttrSetTemp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDevice_ReadFloat(t *testing.T) {
	dev, _, _ := newTestDevice(t, Attributes{"SetTemp": "", "InletTemp": "23.5", "HeatMin": "abc"})
	ctx := context.Background()

	_, ok, err := dev.Temperature(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty value reads as unknown")

	_, ok, err = dev.ReadFloat(ctx, "Missing")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := dev.RoomTemperature(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 23.5, v)

	_, _, err = dev.ReadFloat(ctx, AttrHeatMin)
	assert.Error(t, err, "unparsable values are not masked")
}

func TestDevice_Bounds(t *testing.T) {
	tests := []struct {
		name    string
		attrs   Attributes
		wantMin float64
		wantMax float64
	}{
		{
			name:    "heat uses reported bounds",
			attrs:   Attributes{"Mode": "HEAT", "HeatMin": "18", "HeatMax": "28"},
			wantMin: 18, wantMax: 28,
		},
		{
			name:    "heat falls back to globals",
			attrs:   Attributes{"Mode": "HEAT", "HeatMin": "", "HeatMax": ""},
			wantMin: 16, wantMax: 30,
		},
		{
			name:    "cool uses reported bounds",
			attrs:   Attributes{"Mode": "COOL", "CoolMin": "19", "CoolMax": "31"},
			wantMin: 19, wantMax: 31,
		},
		{
			name:    "dry ignores reported bounds",
			attrs:   Attributes{"Mode": "DRY", "HeatMin": "18", "CoolMin": "19", "AutoMin": "20", "AutoMax": "25"},
			wantMin: 16, wantMax: 30,
		},
		{
			name:    "fan ignores reported bounds",
			attrs:   Attributes{"Mode": "FAN", "AutoMin": "20", "AutoMax": "25"},
			wantMin: 16, wantMax: 30,
		},
		{
			name:    "auto uses auto bounds",
			attrs:   Attributes{"Mode": "AUTO", "AutoMin": "19", "AutoMax": "28"},
			wantMin: 19, wantMax: 28,
		},
		{
			name:    "unknown mode uses auto bounds",
			attrs:   Attributes{"Mode": "AUTOHEAT", "AutoMin": "17.5"},
			wantMin: 17.5, wantMax: 30,
		},
		{
			name:    "missing mode is auto",
			attrs:   Attributes{},
			wantMin: 16, wantMax: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, _, _ := newTestDevice(t, tt.attrs)
			ctx := context.Background()

			minTemp, err := dev.MinTemp(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMin, minTemp)

			maxTemp, err := dev.MaxTemp(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, maxTemp)
		})
	}
}

func TestDevice_PowerModeFan(t *testing.T) {
	dev, _, _ := newTestDevice(t, Attributes{"Drive": "ON", "Mode": "", "FanSpeed": "MID2"})
	ctx := context.Background()

	on, err := dev.IsPowerOn(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	mode, err := dev.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, mode)

	fan, ok, err := dev.FanSpeed(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, FanMid2, fan)
}

func TestDevice_IsPowerOn_Missing(t *testing.T) {
	dev, _, _ := newTestDevice(t, Attributes{"Drive": ""})

	on, err := dev.IsPowerOn(context.Background())
	require.NoError(t, err)
	assert.False(t, on)
}

func TestDevice_WriteUpdatesCacheBeforeSend(t *testing.T) {
	dev, exec, _ := newTestDevice(t, Attributes{"Drive": "OFF"})
	exec.setErr = ErrTransport
	ctx := context.Background()

	err := dev.Write(ctx, AttrDrive, DriveOn)
	assert.ErrorIs(t, err, ErrTransport)

	v, err := dev.Read(ctx, AttrDrive, "")
	require.NoError(t, err)
	assert.Equal(t, "ON", v, "cached value is not rolled back")
	assert.Equal(t, []map[string]string{{"Drive": "ON"}}, exec.sets)
}

func TestDevice_Setters(t *testing.T) {
	dev, exec, _ := newTestDevice(t, Attributes{"Drive": "OFF", "Mode": "HEAT", "SetTemp": "20", "FanSpeed": "LOW"})
	ctx := context.Background()

	require.NoError(t, dev.PowerOn(ctx))
	require.NoError(t, dev.SetMode(ctx, ModeCool))
	require.NoError(t, dev.SetTemperature(ctx, 24))
	require.NoError(t, dev.SetTemperature(ctx, 22.5))
	require.NoError(t, dev.SetFanSpeed(ctx, FanHigh))
	require.NoError(t, dev.PowerOff(ctx))

	assert.Equal(t, []map[string]string{
		{"Drive": "ON"},
		{"Mode": "COOL"},
		{"SetTemp": "24"},
		{"SetTemp": "22.5"},
		{"FanSpeed": "HIGH"},
		{"Drive": "OFF"},
	}, exec.sets)

	temp, ok, err := dev.Temperature(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 22.5, temp)

	// All setters ran inside the lease.
	assert.Equal(t, 1, exec.getCount())
}

func TestDevice_SetterRefreshesStaleCache(t *testing.T) {
	dev, exec, clock := newTestDevice(t, Attributes{"Drive": "OFF"})

	clock.Advance(time.Minute)
	require.NoError(t, dev.PowerOn(context.Background()))
	assert.Equal(t, 2, exec.getCount())
}

func TestDevice_SetterStaleWrite(t *testing.T) {
	dev, exec, clock := newTestDevice(t, Attributes{"Drive": "OFF"})
	exec.getErr = ErrTransport
	clock.Advance(time.Minute)

	err := dev.PowerOn(context.Background())
	assert.ErrorIs(t, err, ErrStaleWrite)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Empty(t, exec.sets, "nothing is sent without a valid cache")
}

func TestDevice_RefreshFailureDropsCache(t *testing.T) {
	dev, exec, _ := newTestDevice(t, Attributes{"Drive": "ON"})
	ctx := context.Background()

	exec.getErr = errors.New("boom")
	require.Error(t, dev.Refresh(ctx))

	// The previous value is not used as a fallback.
	_, err := dev.IsPowerOn(ctx)
	require.Error(t, err)
	assert.Equal(t, 3, exec.getCount())

	exec.getErr = nil
	on, err := dev.IsPowerOn(ctx)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestDevice_WriteAfterFailedRefresh(t *testing.T) {
	dev, exec, clock := newTestDevice(t, Attributes{"Drive": "OFF", "Mode": "HEAT", "HeatMin": "17"})
	ctx := context.Background()

	clock.Advance(2 * time.Second)
	exec.getErr = ErrTransport
	require.Error(t, dev.Refresh(ctx))
	exec.getErr = nil

	// Only Drive is cached now; the next read must not trust it.
	_ = dev.Write(ctx, AttrDrive, DriveOn)

	mode, err := dev.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeHeat, mode)
	minTemp, err := dev.MinTemp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 17.0, minTemp)
	assert.Equal(t, 3, exec.getCount())
}

func TestDevice_AttributesCopy(t *testing.T) {
	dev, _, _ := newTestDevice(t, Attributes{"Drive": "ON"})
	ctx := context.Background()

	a, err := dev.Attributes(ctx)
	require.NoError(t, err)
	a["Drive"] = "OFF"

	on, err := dev.IsPowerOn(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, "map[Drive:ON]", dev.String())
}

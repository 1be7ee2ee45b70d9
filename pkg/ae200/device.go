package ae200

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Operating modes reported in the Mode attribute
const (
	ModeHeat = "HEAT"
	ModeDry  = "DRY"
	ModeCool = "COOL"
	ModeFan  = "FAN"
	ModeAuto = "AUTO"
)

// Drive values
const (
	DriveOn  = "ON"
	DriveOff = "OFF"
)

// Fan speeds accepted by the controller
const (
	FanAuto = "AUTO"
	FanLow  = "LOW"
	FanMid2 = "MID2"
	FanMid1 = "MID1"
	FanHigh = "HIGH"
)

// Temperature bounds used when the controller reports none, in °C.
const (
	MinTemp = 16.0
	MaxTemp = 30.0
)

// DefaultLease is how long fetched attributes are trusted.
const DefaultLease = 10 * time.Second

// Device is one group behind a controller. Reads are served from a cache
// that is refreshed when older than the lease; writes update the cache first
// and then send the new value.
//
// The mutex only protects the cache fields. It is not held across network
// calls, so concurrent writes and refreshes on the same Device are not
// ordered against each other.
type Device struct {
	exec    Executor
	address string
	id      string
	name    string
	lease   time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	attrs     Attributes
	fetchedAt time.Time
}

// NewDevice creates a Device and fetches its attributes once.
func NewDevice(ctx context.Context, exec Executor, address, id, name string, opts ...DeviceOption) (*Device, error) {
	d := &Device{
		exec:    exec,
		address: address,
		id:      id,
		name:    name,
		lease:   DefaultLease,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}

	if err := d.Refresh(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// ID returns the group number.
func (d *Device) ID() string { return d.id }

// Name returns the group name.
func (d *Device) Name() string { return d.name }

// Address returns the controller address.
func (d *Device) Address() string { return d.address }

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprint(map[string]string(d.attrs))
}

// Refresh fetches the attributes unconditionally. On failure the cache is
// left empty and expired, so the next read fetches again even if a write
// repopulated some keys in between.
func (d *Device) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.attrs = nil
	d.fetchedAt = time.Time{}
	d.mu.Unlock()

	d.logger.Debug("refreshing device info", "address", d.address, "group", d.id, "name", d.name)

	attrs, err := d.exec.GetDeviceAttributes(ctx, d.address, d.id)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.attrs = attrs
	d.fetchedAt = d.now()
	d.mu.Unlock()
	return nil
}

// ensureValid refreshes when the cache is absent or the lease has expired.
func (d *Device) ensureValid(ctx context.Context) error {
	d.mu.Lock()
	valid := d.attrs != nil && d.now().Sub(d.fetchedAt) < d.lease
	d.mu.Unlock()

	if valid {
		return nil
	}
	return d.Refresh(ctx)
}

// Lookup returns the value of key. ok is false when the attribute is absent
// or empty.
func (d *Device) Lookup(ctx context.Context, key string) (value string, ok bool, err error) {
	if err := d.ensureValid(ctx); err != nil {
		return "", false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	value, ok = d.attrs[key]
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Read returns the value of key, or def when it is absent or empty.
func (d *Device) Read(ctx context.Context, key, def string) (string, error) {
	value, ok, err := d.Lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return value, nil
}

// ReadFloat returns key parsed as a number. ok is false when the attribute is
// absent or empty; a value that does not parse is an error.
func (d *Device) ReadFloat(ctx context.Context, key string) (value float64, ok bool, err error) {
	s, ok, err := d.Lookup(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}

	value, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("group %s attribute %s: %w", d.id, key, err)
	}
	return value, true, nil
}

// readFloatDefault reads key as a number, falling back to def when it is
// absent or empty.
func (d *Device) readFloatDefault(ctx context.Context, key string, def float64) (float64, error) {
	value, ok, err := d.ReadFloat(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return value, nil
}

// Write stores value in the cache and sends it to the controller. The cache
// is not rolled back when the send fails.
func (d *Device) Write(ctx context.Context, key, value string) error {
	d.logger.Debug("sending value to device", "address", d.address, "group", d.id, "name", d.name, "key", key, "value", value)

	d.mu.Lock()
	if d.attrs == nil {
		d.attrs = make(Attributes)
	}
	d.attrs[key] = value
	d.mu.Unlock()

	if err := d.exec.SetAttributes(ctx, d.address, d.id, map[string]string{key: value}); err != nil {
		return fmt.Errorf("set %s on group %s: %w", key, d.id, err)
	}
	return nil
}

// Attributes returns a copy of the current attributes.
func (d *Device) Attributes(ctx context.Context) (Attributes, error) {
	if err := d.ensureValid(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attrs.Clone(), nil
}

// Temperature returns the setpoint.
func (d *Device) Temperature(ctx context.Context) (float64, bool, error) {
	return d.ReadFloat(ctx, AttrSetTemp)
}

// RoomTemperature returns the inlet (room) temperature.
func (d *Device) RoomTemperature(ctx context.Context) (float64, bool, error) {
	return d.ReadFloat(ctx, AttrInletTemp)
}

// MinTemp returns the lowest setpoint allowed in the current mode.
func (d *Device) MinTemp(ctx context.Context) (float64, error) {
	mode, err := d.Mode(ctx)
	if err != nil {
		return 0, err
	}

	switch mode {
	case ModeHeat:
		return d.readFloatDefault(ctx, AttrHeatMin, MinTemp)
	case ModeCool:
		return d.readFloatDefault(ctx, AttrCoolMin, MinTemp)
	case ModeDry, ModeFan:
		return MinTemp, nil
	default:
		return d.readFloatDefault(ctx, AttrAutoMin, MinTemp)
	}
}

// MaxTemp returns the highest setpoint allowed in the current mode.
func (d *Device) MaxTemp(ctx context.Context) (float64, error) {
	mode, err := d.Mode(ctx)
	if err != nil {
		return 0, err
	}

	switch mode {
	case ModeHeat:
		return d.readFloatDefault(ctx, AttrHeatMax, MaxTemp)
	case ModeCool:
		return d.readFloatDefault(ctx, AttrCoolMax, MaxTemp)
	case ModeDry, ModeFan:
		return MaxTemp, nil
	default:
		return d.readFloatDefault(ctx, AttrAutoMax, MaxTemp)
	}
}

// FanSpeed returns the fan speed; ok is false when unknown.
func (d *Device) FanSpeed(ctx context.Context) (string, bool, error) {
	return d.Lookup(ctx, AttrFanSpeed)
}

// Mode returns the operating mode, AUTO when unknown.
func (d *Device) Mode(ctx context.Context) (string, error) {
	return d.Read(ctx, AttrMode, ModeAuto)
}

// IsPowerOn reports whether Drive is ON.
func (d *Device) IsPowerOn(ctx context.Context) (bool, error) {
	drive, err := d.Read(ctx, AttrDrive, DriveOff)
	if err != nil {
		return false, err
	}
	return drive == DriveOn, nil
}

// set validates the cache before writing. A write is refused when the
// device state cannot be fetched.
func (d *Device) set(ctx context.Context, key, value, what string) error {
	if err := d.ensureValid(ctx); err != nil {
		d.logger.Error("unable to "+what, "group", d.id, "value", value, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrStaleWrite, what, err)
	}
	return d.Write(ctx, key, value)
}

// SetTemperature sets the setpoint.
func (d *Device) SetTemperature(ctx context.Context, temperature float64) error {
	return d.set(ctx, AttrSetTemp, strconv.FormatFloat(temperature, 'f', -1, 64), "set temperature")
}

// SetFanSpeed sets the fan speed.
func (d *Device) SetFanSpeed(ctx context.Context, speed string) error {
	return d.set(ctx, AttrFanSpeed, speed, "set fan speed")
}

// SetMode sets the operating mode.
func (d *Device) SetMode(ctx context.Context, mode string) error {
	return d.set(ctx, AttrMode, mode, "set mode")
}

// PowerOn switches the group on.
func (d *Device) PowerOn(ctx context.Context) error {
	return d.set(ctx, AttrDrive, DriveOn, "power on")
}

// PowerOff switches the group off.
func (d *Device) PowerOff(ctx context.Context) error {
	return d.set(ctx, AttrDrive, DriveOff, "power off")
}

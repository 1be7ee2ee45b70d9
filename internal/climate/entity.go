// Package climate adapts AE-200 devices to the climate entity contract of a
// home automation host: HVAC modes, fan modes, temperature bounds and power.
//
// An Entity never returns device errors from its getters or setters. Errors
// are logged and turned into conservative results (mode off, unknown
// temperature, false from a setter) so a single unreachable controller does
// not break the host. Update and Attributes report failures.
package climate

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/zberg/go-ae200/pkg/ae200"
)

// Facade is the device surface an Entity drives.
type Facade interface {
	ID() string
	Name() string
	Refresh(ctx context.Context) error
	Temperature(ctx context.Context) (float64, bool, error)
	RoomTemperature(ctx context.Context) (float64, bool, error)
	MinTemp(ctx context.Context) (float64, error)
	MaxTemp(ctx context.Context) (float64, error)
	FanSpeed(ctx context.Context) (string, bool, error)
	Mode(ctx context.Context) (string, error)
	IsPowerOn(ctx context.Context) (bool, error)
	SetTemperature(ctx context.Context, temperature float64) error
	SetFanSpeed(ctx context.Context, speed string) error
	SetMode(ctx context.Context, mode string) error
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	Attributes(ctx context.Context) (ae200.Attributes, error)
}

var _ Facade = (*ae200.Device)(nil)

// HVACMode is a host-side operating mode.
type HVACMode string

// HVAC modes understood by the host
const (
	HVACOff     HVACMode = "off"
	HVACHeat    HVACMode = "heat"
	HVACCool    HVACMode = "cool"
	HVACDry     HVACMode = "dry"
	HVACFanOnly HVACMode = "fan_only"
	HVACAuto    HVACMode = "auto"
)

// Feature is a capability bit advertised to the host.
type Feature int

// Supported features
const (
	FeatureTargetTemperature Feature = 1 << iota
	FeatureFanMode
	FeatureTurnOff
	FeatureTurnOn
)

// TemperatureUnit is the unit of every temperature an Entity reports.
const TemperatureUnit = "°C"

var (
	hvacModes = []HVACMode{HVACHeat, HVACCool, HVACDry, HVACFanOnly, HVACAuto, HVACOff}
	fanModes  = []string{ae200.FanAuto, ae200.FanLow, ae200.FanMid2, ae200.FanMid1, ae200.FanHigh}

	toDeviceMode = map[HVACMode]string{
		HVACHeat:    ae200.ModeHeat,
		HVACCool:    ae200.ModeCool,
		HVACDry:     ae200.ModeDry,
		HVACFanOnly: ae200.ModeFan,
		HVACAuto:    ae200.ModeAuto,
	}
	fromDeviceMode = map[string]HVACMode{
		ae200.ModeHeat: HVACHeat,
		ae200.ModeCool: HVACCool,
		ae200.ModeDry:  HVACDry,
		ae200.ModeFan:  HVACFanOnly,
		ae200.ModeAuto: HVACAuto,
	}
)

// Entity is one climate entity backed by a device facade.
type Entity struct {
	dev          Facade
	controllerID string
	entityID     string
	logger       *slog.Logger
}

// NewEntity creates an Entity for dev on the controller named controllerID.
func NewEntity(dev Facade, controllerID string, logger *slog.Logger) *Entity {
	return newEntity(dev, controllerID, baseEntityID(dev, controllerID), logger)
}

// NewEntities wraps every device of one controller, suffixing entity ids
// that would otherwise collide (_2, _3, ...).
func NewEntities(devices []Facade, controllerID string, logger *slog.Logger) []*Entity {
	seen := make(map[string]int, len(devices))
	entities := make([]*Entity, 0, len(devices))
	for _, dev := range devices {
		id := baseEntityID(dev, controllerID)
		seen[id]++
		if n := seen[id]; n > 1 {
			id += "_" + strconv.Itoa(n)
		}
		entities = append(entities, newEntity(dev, controllerID, id, logger))
	}
	return entities
}

func baseEntityID(dev Facade, controllerID string) string {
	return "climate." + Slugify("mitsubishi_ae_200_"+controllerID+"_"+dev.Name())
}

func newEntity(dev Facade, controllerID, entityID string, logger *slog.Logger) *Entity {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Entity{
		dev:          dev,
		controllerID: controllerID,
		entityID:     entityID,
		logger:       logger.With("entity_id", entityID),
	}
}

// Slugify lowercases s and replaces each run of characters outside [a-z0-9]
// with a single underscore.
func Slugify(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// EntityID returns the host entity id, e.g. climate.mitsubishi_ae_200_office_living_room.
func (e *Entity) EntityID() string { return e.entityID }

// UniqueID identifies the entity independently of the device name.
func (e *Entity) UniqueID() string {
	return UniqueID(e.controllerID, e.dev.ID())
}

// UniqueID returns the unique id of a device on a controller.
func UniqueID(controllerID, deviceID string) string {
	return "ae200_" + Slugify(controllerID) + "_" + deviceID
}

// Name returns the display name.
func (e *Entity) Name() string { return "Climate Control " + e.dev.Name() }

// ControllerID returns the configured controller id.
func (e *Entity) ControllerID() string { return e.controllerID }

// Device returns the underlying facade.
func (e *Entity) Device() Facade { return e.dev }

// SupportedFeatures returns the capability bits.
func (e *Entity) SupportedFeatures() Feature {
	return FeatureTargetTemperature | FeatureFanMode | FeatureTurnOff | FeatureTurnOn
}

// HVACModes returns the modes the entity accepts.
func (e *Entity) HVACModes() []HVACMode { return slices.Clone(hvacModes) }

// FanModes returns the fan speeds the entity accepts.
func (e *Entity) FanModes() []string { return slices.Clone(fanModes) }

// Update refreshes the device. It is the host's polling hook.
func (e *Entity) Update(ctx context.Context) error {
	return e.dev.Refresh(ctx)
}

// Attributes returns a copy of the raw device attributes.
func (e *Entity) Attributes(ctx context.Context) (ae200.Attributes, error) {
	return e.dev.Attributes(ctx)
}

// HVACMode returns off unless the unit is powered, otherwise the mapped mode.
func (e *Entity) HVACMode(ctx context.Context) HVACMode {
	on, err := e.dev.IsPowerOn(ctx)
	if err != nil {
		e.logger.Error("read power state", "error", err)
		return HVACOff
	}
	if !on {
		return HVACOff
	}

	mode, err := e.dev.Mode(ctx)
	if err != nil {
		e.logger.Error("read mode", "error", err)
		return HVACOff
	}
	if m, ok := fromDeviceMode[mode]; ok {
		return m
	}
	return HVACOff
}

// IsOn reports whether the unit is powered, whatever its mode. Errors read
// as off.
func (e *Entity) IsOn(ctx context.Context) bool {
	on, err := e.dev.IsPowerOn(ctx)
	if err != nil {
		e.logger.Error("read power state", "error", err)
		return false
	}
	return on
}

// SetHVACMode powers the unit off for HVACOff, otherwise powers it on and
// sets the device mode.
func (e *Entity) SetHVACMode(ctx context.Context, mode HVACMode) bool {
	if mode == HVACOff {
		return e.TurnOff(ctx)
	}

	deviceMode, ok := toDeviceMode[mode]
	if !ok {
		e.logger.Warn("unsupported hvac mode", "mode", mode)
		return false
	}
	if !e.TurnOn(ctx) {
		return false
	}
	if err := e.dev.SetMode(ctx, deviceMode); err != nil {
		e.logger.Error("set mode", "mode", deviceMode, "error", err)
		return false
	}
	return true
}

// FanMode returns the fan speed, empty when unknown.
func (e *Entity) FanMode(ctx context.Context) string {
	speed, _, err := e.dev.FanSpeed(ctx)
	if err != nil {
		e.logger.Error("read fan speed", "error", err)
		return ""
	}
	return speed
}

// SetFanMode sets the fan speed.
func (e *Entity) SetFanMode(ctx context.Context, speed string) bool {
	if err := e.dev.SetFanSpeed(ctx, speed); err != nil {
		e.logger.Error("set fan speed", "speed", speed, "error", err)
		return false
	}
	return true
}

// CurrentTemperature returns the room temperature, nil when unknown.
func (e *Entity) CurrentTemperature(ctx context.Context) *float64 {
	return e.optional(ctx, e.dev.RoomTemperature, "room temperature")
}

// TargetTemperature returns the setpoint, nil when unknown.
func (e *Entity) TargetTemperature(ctx context.Context) *float64 {
	return e.optional(ctx, e.dev.Temperature, "target temperature")
}

func (e *Entity) optional(ctx context.Context, read func(context.Context) (float64, bool, error), what string) *float64 {
	v, ok, err := read(ctx)
	if err != nil {
		e.logger.Error("read "+what, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &v
}

// SetTemperature sets the setpoint.
func (e *Entity) SetTemperature(ctx context.Context, temperature float64) bool {
	if err := e.dev.SetTemperature(ctx, temperature); err != nil {
		e.logger.Error("set temperature", "temperature", temperature, "error", err)
		return false
	}
	return true
}

// MinTemp returns the lowest allowed setpoint for the current mode.
func (e *Entity) MinTemp(ctx context.Context) float64 {
	v, err := e.dev.MinTemp(ctx)
	if err != nil {
		e.logger.Error("read min temperature", "error", err)
		return ae200.MinTemp
	}
	return v
}

// MaxTemp returns the highest allowed setpoint for the current mode.
func (e *Entity) MaxTemp(ctx context.Context) float64 {
	v, err := e.dev.MaxTemp(ctx)
	if err != nil {
		e.logger.Error("read max temperature", "error", err)
		return ae200.MaxTemp
	}
	return v
}

// TurnOn powers the unit on.
func (e *Entity) TurnOn(ctx context.Context) bool {
	if err := e.dev.PowerOn(ctx); err != nil {
		e.logger.Error("power on", "error", err)
		return false
	}
	return true
}

// TurnOff powers the unit off.
func (e *Entity) TurnOff(ctx context.Context) bool {
	if err := e.dev.PowerOff(ctx); err != nil {
		e.logger.Error("power off", "error", err)
		return false
	}
	return true
}

// State is the entity state as published to the host.
type State struct {
	Mode               HVACMode `json:"mode"`
	CurrentTemperature *float64 `json:"current_temperature,omitempty"`
	TargetTemperature  *float64 `json:"target_temperature,omitempty"`
	FanMode            string   `json:"fan_mode,omitempty"`
	MinTemp            float64  `json:"min_temp"`
	MaxTemp            float64  `json:"max_temp"`
}

// State reads the full entity state. Reads share the device cache, so at
// most one refresh happens per lease.
func (e *Entity) State(ctx context.Context) State {
	return State{
		Mode:               e.HVACMode(ctx),
		CurrentTemperature: e.CurrentTemperature(ctx),
		TargetTemperature:  e.TargetTemperature(ctx),
		FanMode:            e.FanMode(ctx),
		MinTemp:            e.MinTemp(ctx),
		MaxTemp:            e.MaxTemp(ctx),
	}
}

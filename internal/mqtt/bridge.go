// Package mqtt exposes climate entities to Home Assistant over MQTT.
//
// The bridge publishes one MQTT climate discovery config per entity, the
// entity state as JSON and the raw device attributes, and accepts commands on
// {prefix}/{unique_id}/set/{mode,temperature,fan_mode,power}.
//
// Every device call runs on the goroutine executing Run. MQTT callbacks only
// enqueue work, so a slow controller never blocks the MQTT client and writes
// and refreshes of one device never overlap.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/zberg/go-ae200/internal/climate"
	"github.com/zberg/go-ae200/internal/store"
	"github.com/zberg/go-ae200/internal/telemetry"
)

const (
	jobQueueSize   = 64
	publishTimeout = 5 * time.Second
	connectTimeout = 10 * time.Second
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string
	DiscoveryPrefix string
	PollInterval    time.Duration
}

// Client is the part of the paho client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Recorder stores telemetry readings.
type Recorder interface {
	Write(ctx context.Context, r telemetry.Reading) error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClient uses c instead of dialing the broker in Connect.
func WithClient(c Client) Option {
	return func(b *Bridge) { b.client = c }
}

// WithStore persists a snapshot of every device after each poll.
func WithStore(s store.Store) Option {
	return func(b *Bridge) { b.store = s }
}

// WithRecorder writes a telemetry reading for every device after each poll.
func WithRecorder(r Recorder) Option {
	return func(b *Bridge) { b.recorder = r }
}

// WithControllers names the controllers that were enumerated, including
// those without devices. Stored snapshots of other controllers are never
// treated as stale. Defaults to the controllers of the bridged entities.
func WithControllers(ids ...string) Option {
	return func(b *Bridge) {
		for _, id := range ids {
			b.controllers[id] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithClock overrides time.Now for snapshot and reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

type job func(ctx context.Context)

// Bridge connects climate entities to MQTT with HA autodiscovery.
type Bridge struct {
	cfg      Config
	client   Client
	entities []*climate.Entity
	byUID    map[string]*climate.Entity
	store    store.Store
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	jobs     chan job

	// controllers whose device list is known to be complete
	controllers map[string]bool
}

// NewBridge creates a bridge for entities. Call Connect, then Run.
func NewBridge(cfg Config, entities []*climate.Entity, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:         cfg,
		entities:    entities,
		byUID:       make(map[string]*climate.Entity, len(entities)),
		controllers: make(map[string]bool),
		now:         time.Now,
		jobs:        make(chan job, jobQueueSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	b.logger = b.logger.With("component", "mqtt")
	if b.cfg.PollInterval <= 0 {
		b.cfg.PollInterval = 30 * time.Second
	}
	for _, e := range entities {
		b.byUID[e.UniqueID()] = e
		b.controllers[e.ControllerID()] = true
	}
	return b
}

// Connect dials the broker unless a client was injected. The connection
// retries in the background after the first attempt.
func (b *Bridge) Connect() error {
	if b.client != nil {
		b.onConnect()
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(b.bridgeStateTopic(), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected", "broker", b.cfg.Broker)
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// onConnect runs on every (re)connect. Subscriptions and the availability
// message are sent directly; discovery needs device reads and is queued.
func (b *Bridge) onConnect() {
	b.publish(b.bridgeStateTopic(), []byte("online"), true)
	b.subscribeCommands()
	b.enqueue(b.announce)
}

// Stop publishes offline state and disconnects.
func (b *Bridge) Stop() {
	if b.client == nil {
		return
	}
	token := b.client.Publish(b.bridgeStateTopic(), 1, true, []byte("offline"))
	token.WaitTimeout(publishTimeout)
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// Run publishes stored snapshots, then polls every entity on the configured
// interval and executes queued commands until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	b.restore()
	b.pollAll(ctx)

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	b.logger.Info("MQTT bridge started", "prefix", b.cfg.TopicPrefix, "entities", len(b.entities))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.pollAll(ctx)
		case j := <-b.jobs:
			j(ctx)
		}
	}
}

func (b *Bridge) enqueue(j job) {
	select {
	case b.jobs <- j:
	default:
		b.logger.Warn("job queue full, dropping")
	}
}

func (b *Bridge) bridgeStateTopic() string {
	return b.cfg.TopicPrefix + "/bridge/state"
}

// announce publishes discovery for every entity and removes entities whose
// device disappeared from its controller. Snapshots of controllers that were
// not enumerated are kept, since their devices are unknown rather than gone.
func (b *Bridge) announce(ctx context.Context) {
	for _, e := range b.entities {
		msg := buildClimateDiscovery(e, b.cfg.TopicPrefix, b.cfg.DiscoveryPrefix, e.MinTemp(ctx), e.MaxTemp(ctx))
		b.publish(msg.Topic, msg.Payload, true)
		b.logger.Info("published HA discovery", "entity_id", e.EntityID(), "unique_id", e.UniqueID())
	}

	if b.store == nil {
		return
	}
	snaps, err := b.store.ListSnapshots("")
	if err != nil {
		b.logger.Error("list snapshots", "err", err)
		return
	}
	for _, snap := range snaps {
		if !b.controllers[snap.ControllerID] {
			continue
		}
		uid := climate.UniqueID(snap.ControllerID, snap.DeviceID)
		if _, ok := b.byUID[uid]; ok {
			continue
		}
		msg := buildRemoveDiscovery(uid, b.cfg.DiscoveryPrefix)
		b.publish(msg.Topic, msg.Payload, true)
		if err := b.store.DeleteSnapshot(snap.ControllerID, snap.DeviceID); err != nil {
			b.logger.Warn("delete snapshot", "unique_id", uid, "err", err)
		}
		b.logger.Info("removed stale entity", "unique_id", uid, "name", snap.Name)
	}
}

// restore publishes the last stored attributes of every entity.
func (b *Bridge) restore() {
	if b.store == nil {
		return
	}
	for _, e := range b.entities {
		snap, err := b.store.GetSnapshot(e.ControllerID(), e.Device().ID())
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			b.logger.Warn("read snapshot", "entity_id", e.EntityID(), "err", err)
			continue
		}
		t := entityTopics(b.cfg.TopicPrefix, e.UniqueID())
		b.publish(t.attributes, mustJSON(snap.Attributes), true)
	}
}

func (b *Bridge) pollAll(ctx context.Context) {
	for _, e := range b.entities {
		if ctx.Err() != nil {
			return
		}
		b.poll(ctx, e)
	}
}

func (b *Bridge) poll(ctx context.Context, e *climate.Entity) {
	t := entityTopics(b.cfg.TopicPrefix, e.UniqueID())

	if err := e.Update(ctx); err != nil {
		b.logger.Warn("update failed", "entity_id", e.EntityID(), "err", err)
		b.publish(t.availability, []byte("offline"), true)
		return
	}
	b.publish(t.availability, []byte("online"), true)

	state := b.publishState(ctx, e)

	attrs, err := e.Attributes(ctx)
	if err != nil {
		b.logger.Warn("read attributes", "entity_id", e.EntityID(), "err", err)
		return
	}
	b.publish(t.attributes, mustJSON(attrs), true)

	now := b.now()
	if b.store != nil {
		err := b.store.SaveSnapshot(&store.Snapshot{
			ControllerID: e.ControllerID(),
			DeviceID:     e.Device().ID(),
			Name:         e.Device().Name(),
			Attributes:   attrs,
			FetchedAt:    now,
		})
		if err != nil {
			b.logger.Warn("save snapshot", "entity_id", e.EntityID(), "err", err)
		}
	}

	if b.recorder != nil {
		err := b.recorder.Write(ctx, telemetry.Reading{
			ControllerID:      e.ControllerID(),
			DeviceID:          e.Device().ID(),
			Name:              e.Device().Name(),
			Mode:              string(state.Mode),
			Power:             e.IsOn(ctx),
			RoomTemperature:   state.CurrentTemperature,
			TargetTemperature: state.TargetTemperature,
			Time:              now,
		})
		if err != nil {
			b.logger.Warn("write telemetry", "entity_id", e.EntityID(), "err", err)
		}
	}
}

func (b *Bridge) publishState(ctx context.Context, e *climate.Entity) climate.State {
	state := e.State(ctx)
	b.publish(entityTopics(b.cfg.TopicPrefix, e.UniqueID()).state, mustJSON(state), true)
	return state
}

func (b *Bridge) subscribeCommands() {
	for _, e := range b.entities {
		t := entityTopics(b.cfg.TopicPrefix, e.UniqueID())
		for _, name := range []string{cmdMode, cmdTemperature, cmdFanMode, cmdPower} {
			uid, name := e.UniqueID(), name
			b.client.Subscribe(t.command(name), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
				b.handleCommand(uid, name, msg.Payload())
			})
		}
	}
}

// handleCommand validates a command on the MQTT goroutine and queues the
// device call for the worker.
func (b *Bridge) handleCommand(uid, name string, payload []byte) {
	e, ok := b.byUID[uid]
	if !ok {
		b.logger.Warn("command for unknown entity", "unique_id", uid)
		return
	}
	value := strings.TrimSpace(string(payload))

	var apply func(ctx context.Context) bool
	switch name {
	case cmdMode:
		mode := climate.HVACMode(strings.ToLower(value))
		apply = func(ctx context.Context) bool { return e.SetHVACMode(ctx, mode) }
	case cmdTemperature:
		temp, err := strconv.ParseFloat(value, 64)
		if err != nil {
			b.logger.Warn("invalid temperature", "entity_id", e.EntityID(), "payload", value)
			return
		}
		apply = func(ctx context.Context) bool { return e.SetTemperature(ctx, temp) }
	case cmdFanMode:
		speed := strings.ToUpper(value)
		apply = func(ctx context.Context) bool { return e.SetFanMode(ctx, speed) }
	case cmdPower:
		switch strings.ToUpper(value) {
		case "ON":
			apply = e.TurnOn
		case "OFF":
			apply = e.TurnOff
		default:
			b.logger.Warn("invalid power command", "entity_id", e.EntityID(), "payload", value)
			return
		}
	default:
		return
	}

	b.logger.Debug("command received", "entity_id", e.EntityID(), "command", name, "payload", value)
	b.enqueue(func(ctx context.Context) {
		if !apply(ctx) {
			b.logger.Warn("command failed", "entity_id", e.EntityID(), "command", name, "payload", value)
		}
		// Writes update the device cache, so the new state is visible at once.
		b.publishState(ctx, e)
	})
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

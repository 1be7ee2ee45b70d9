// Package simulator serves the AE-200 b_xmlproc WebSocket interface from
// memory. It backs the integration tests and the `ae200 simulate` command.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zberg/go-ae200/pkg/ae200"
)

// Thermal model constants
const (
	AmbientC       = 25.0 // room drifts here while a unit is off
	RampCPerTick   = 0.5  // °C per tick toward the setpoint while running
	DriftCPerTick  = 0.1  // °C per tick toward ambient while off
	SetpointWindow = 0.25 // °C band for "at setpoint"
)

// writeWait bounds a single response write.
const writeWait = 10 * time.Second

// Unit is one simulated group.
type Unit struct {
	Group      string
	Name       string
	Attributes ae200.Attributes
}

// DefaultAttributes returns the attributes of an idle indoor unit.
func DefaultAttributes() ae200.Attributes {
	return ae200.Attributes{
		"Drive":        "OFF",
		"Mode":         "COOL",
		"SetTemp":      "24.0",
		"InletTemp":    "25.0",
		"FanSpeed":     "AUTO",
		"AirDirection": "SWING",
		"ErrorSign":    "OFF",
		"FilterSign":   "OFF",
		"CoolMin":      "19.0",
		"CoolMax":      "30.0",
		"HeatMin":      "17.0",
		"HeatMax":      "28.0",
		"AutoMin":      "19.0",
		"AutoMax":      "28.0",
		"SetTempItem":  "ON",
		"FanSpeedItem": "ON",
		"ModeItem":     "ON",
		"DriveItem":    "ON",
	}
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// WithCompression toggles permessage-deflate support. Default is enabled.
func WithCompression(enabled bool) Option {
	return func(s *Simulator) {
		s.upgrader.EnableCompression = enabled
	}
}

// Simulator is an in-memory AE-200 controller. It implements http.Handler.
type Simulator struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	order    []string
	units    map[string]*Unit
	requests int
	sets     int
}

// New creates a Simulator serving the given units in order.
func New(units []Unit, opts ...Option) *Simulator {
	s := &Simulator{
		units: make(map[string]*Unit),
		upgrader: websocket.Upgrader{
			Subprotocols:      []string{ae200.Subprotocol},
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				return r.Header.Get("Origin") == "http://"+r.Host
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	for _, u := range units {
		attrs := DefaultAttributes()
		for k, v := range u.Attributes {
			attrs[k] = v
		}
		s.order = append(s.order, u.Group)
		s.units[u.Group] = &Unit{Group: u.Group, Name: u.Name, Attributes: attrs}
	}
	return s
}

// ServeHTTP upgrades requests on the b_xmlproc path and answers each packet.
func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != ae200.Path {
		http.NotFound(w, r)
		return
	}
	if !slices.Contains(websocket.Subprotocols(r), ae200.Subprotocol) {
		http.Error(w, "missing b_xmlproc subprotocol", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(ae200.MaxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("ws read closed", "remote", r.RemoteAddr, "err", err)
			return
		}

		resp, err := s.Handle(data)
		if err != nil {
			s.logger.Warn("bad request", "remote", r.RemoteAddr, "err", err)
			return
		}
		if resp == nil {
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
			s.logger.Debug("ws write failed", "remote", r.RemoteAddr, "err", err)
			return
		}
	}
}

// Handle processes one request packet and returns the response packet.
func (s *Simulator) Handle(data []byte) ([]byte, error) {
	req, err := ae200.DecodePacket(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	switch req.Command {
	case ae200.CommandGetRequest:
		return s.handleGet(req)
	case ae200.CommandSetRequest:
		return s.handleSet(req)
	default:
		return nil, fmt.Errorf("unsupported command %q", req.Command)
	}
}

func (s *Simulator) handleGet(req *ae200.Packet) ([]byte, error) {
	resp := &ae200.Packet{Command: ae200.CommandGetResponse}

	if cg := req.DatabaseManager.ControlGroup; cg != nil && cg.MnetList != nil {
		list := &ae200.MnetList{}
		for _, g := range s.order {
			list.Records = append(list.Records, ae200.MnetRecord{
				Group:        g,
				GroupNameWeb: s.units[g].Name,
			})
		}
		resp.DatabaseManager.ControlGroup = &ae200.ControlGroup{MnetList: list}
	}

	for _, m := range req.DatabaseManager.Mnet {
		u, ok := s.units[m.Group()]
		if !ok {
			continue
		}
		out := ae200.NewMnet(u.Group)
		for _, a := range m.Attrs {
			name := a.Name.Local
			if name == ae200.AttrGroup {
				continue
			}
			out.Set(name, u.Attributes[name])
		}
		resp.DatabaseManager.Mnet = append(resp.DatabaseManager.Mnet, out)
	}

	return resp.Encode()
}

func (s *Simulator) handleSet(req *ae200.Packet) ([]byte, error) {
	resp := &ae200.Packet{Command: ae200.CommandSetResponse}

	for _, m := range req.DatabaseManager.Mnet {
		u, ok := s.units[m.Group()]
		if !ok {
			continue
		}
		for _, a := range m.Attrs {
			if a.Name.Local == ae200.AttrGroup {
				continue
			}
			u.Attributes[a.Name.Local] = a.Value
		}
		s.sets++
		s.logger.Info("group updated", "group", u.Group, "name", u.Name, "attrs", m.Attributes())
		resp.DatabaseManager.Mnet = append(resp.DatabaseManager.Mnet, m)
	}

	return resp.Encode()
}

// Attributes returns a copy of a group's attributes, nil if unknown.
func (s *Simulator) Attributes(group string) ae200.Attributes {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[group]
	if !ok {
		return nil
	}
	return u.Attributes.Clone()
}

// SetAttribute changes a group's attribute as if done at the wall remote.
func (s *Simulator) SetAttribute(group, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.units[group]; ok {
		u.Attributes[name] = value
	}
}

// Requests returns the number of packets handled.
func (s *Simulator) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Sets returns the number of groups updated by set requests.
func (s *Simulator) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

// Run advances the thermal model every tick until ctx is canceled. A
// non-positive tick freezes the model.
func (s *Simulator) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Step()
		}
	}
}

// Step moves every room temperature one tick toward its target.
func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.order {
		attrs := s.units[g].Attributes
		inlet, err := strconv.ParseFloat(attrs[ae200.AttrInletTemp], 64)
		if err != nil {
			continue
		}
		setTemp, err := strconv.ParseFloat(attrs[ae200.AttrSetTemp], 64)
		if err != nil {
			setTemp = AmbientC
		}

		next := inlet
		if attrs[ae200.AttrDrive] != ae200.DriveOn {
			next = approach(inlet, AmbientC, DriftCPerTick)
		} else {
			switch attrs[ae200.AttrMode] {
			case ae200.ModeCool, ae200.ModeDry:
				if inlet > setTemp {
					next = approach(inlet, setTemp, RampCPerTick)
				}
			case ae200.ModeHeat:
				if inlet < setTemp {
					next = approach(inlet, setTemp, RampCPerTick)
				}
			case ae200.ModeAuto:
				next = approach(inlet, setTemp, RampCPerTick)
			}
		}
		attrs[ae200.AttrInletTemp] = strconv.FormatFloat(next, 'f', 1, 64)
	}
}

// approach moves v toward target by at most step, snapping inside the
// setpoint window.
func approach(v, target, step float64) float64 {
	diff := target - v
	if math.Abs(diff) <= math.Max(step, SetpointWindow) {
		return target
	}
	if diff > 0 {
		return v + step
	}
	return v - step
}

package mqtt

import (
	"fmt"
	"strings"

	"github.com/zberg/go-ae200/internal/climate"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/climate/ae200_office_1/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

type haAvailability struct {
	Topic string `json:"topic"`
}

// haClimate is the discovery payload of an MQTT climate entity.
type haClimate struct {
	Name             string           `json:"name"`
	UniqueID         string           `json:"unique_id"`
	ObjectID         string           `json:"object_id"`
	Availability     []haAvailability `json:"availability"`
	AvailabilityMode string           `json:"availability_mode"`

	Modes             []climate.HVACMode `json:"modes"`
	ModeStateTopic    string             `json:"mode_state_topic"`
	ModeStateTemplate string             `json:"mode_state_template"`
	ModeCommandTopic  string             `json:"mode_command_topic"`

	FanModes             []string `json:"fan_modes"`
	FanModeStateTopic    string   `json:"fan_mode_state_topic"`
	FanModeStateTemplate string   `json:"fan_mode_state_template"`
	FanModeCommandTopic  string   `json:"fan_mode_command_topic"`

	TemperatureStateTopic    string `json:"temperature_state_topic"`
	TemperatureStateTemplate string `json:"temperature_state_template"`
	TemperatureCommandTopic  string `json:"temperature_command_topic"`

	CurrentTemperatureTopic    string `json:"current_temperature_topic"`
	CurrentTemperatureTemplate string `json:"current_temperature_template"`

	PowerCommandTopic   string `json:"power_command_topic"`
	JSONAttributesTopic string `json:"json_attributes_topic"`

	MinTemp         float64  `json:"min_temp"`
	MaxTemp         float64  `json:"max_temp"`
	TempStep        float64  `json:"temp_step"`
	TemperatureUnit string   `json:"temperature_unit"`
	Device          haDevice `json:"device"`
}

// Command topic suffixes under {prefix}/{unique_id}/set/
const (
	cmdMode        = "mode"
	cmdTemperature = "temperature"
	cmdFanMode     = "fan_mode"
	cmdPower       = "power"
)

// topics are the per-entity topic names.
type topics struct {
	base         string
	state        string
	attributes   string
	availability string
}

func entityTopics(prefix, uniqueID string) topics {
	base := prefix + "/" + uniqueID
	return topics{
		base:         base,
		state:        base + "/state",
		attributes:   base + "/attributes",
		availability: base + "/availability",
	}
}

func (t topics) command(name string) string {
	return t.base + "/set/" + name
}

// buildClimateDiscovery generates the discovery message of one entity. The
// temperature bounds are those of the device's current mode.
func buildClimateDiscovery(e *climate.Entity, prefix, discoveryPrefix string, minTemp, maxTemp float64) discoveryMsg {
	uid := e.UniqueID()
	t := entityTopics(prefix, uid)

	payload := haClimate{
		Name:     e.Name(),
		UniqueID: uid,
		ObjectID: strings.TrimPrefix(e.EntityID(), "climate."),
		Availability: []haAvailability{
			{Topic: prefix + "/bridge/state"},
			{Topic: t.availability},
		},
		AvailabilityMode: "all",

		Modes:             e.HVACModes(),
		ModeStateTopic:    t.state,
		ModeStateTemplate: "{{ value_json.mode }}",
		ModeCommandTopic:  t.command(cmdMode),

		FanModes:             e.FanModes(),
		FanModeStateTopic:    t.state,
		FanModeStateTemplate: "{{ value_json.fan_mode }}",
		FanModeCommandTopic:  t.command(cmdFanMode),

		TemperatureStateTopic:    t.state,
		TemperatureStateTemplate: "{{ value_json.target_temperature }}",
		TemperatureCommandTopic:  t.command(cmdTemperature),

		CurrentTemperatureTopic:    t.state,
		CurrentTemperatureTemplate: "{{ value_json.current_temperature }}",

		PowerCommandTopic:   t.command(cmdPower),
		JSONAttributesTopic: t.attributes,

		MinTemp:         minTemp,
		MaxTemp:         maxTemp,
		TempStep:        0.5,
		TemperatureUnit: "C",
		Device: haDevice{
			Identifiers:  []string{uid},
			Manufacturer: "Mitsubishi Electric",
			Model:        "AE-200",
			Name:         e.Name(),
		},
	}

	return discoveryMsg{
		Topic:   fmt.Sprintf("%s/climate/%s/config", discoveryPrefix, uid),
		Payload: mustJSON(payload),
	}
}

// buildRemoveDiscovery returns the empty retained message that removes an
// entity from Home Assistant.
func buildRemoveDiscovery(uniqueID, discoveryPrefix string) discoveryMsg {
	return discoveryMsg{Topic: fmt.Sprintf("%s/climate/%s/config", discoveryPrefix, uniqueID)}
}

package ae200

import (
	"fmt"
)

// DeviceRecord represents one group reported by the controller's group list.
type DeviceRecord struct {
	ID   string
	Name string // empty when the controller has no web name for the group
}

// Attributes maps attribute names to their wire values. An empty value means
// the attribute is unknown or unsupported on that group.
type Attributes map[string]string

// Clone returns a copy of the map.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Attribute names used by this package
const (
	AttrGroup        = "Group"
	AttrGroupNameWeb = "GroupNameWeb"
	AttrDrive        = "Drive"
	AttrMode         = "Mode"
	AttrSetTemp      = "SetTemp"
	AttrInletTemp    = "InletTemp"
	AttrFanSpeed     = "FanSpeed"
	AttrAirDirection = "AirDirection"
	AttrErrorSign    = "ErrorSign"
	AttrFilterSign   = "FilterSign"
	AttrCoolMin      = "CoolMin"
	AttrCoolMax      = "CoolMax"
	AttrHeatMin      = "HeatMin"
	AttrHeatMax      = "HeatMax"
	AttrAutoMin      = "AutoMin"
	AttrAutoMax      = "AutoMax"
)

// DetailAttributes lists every attribute requested by a detail query, in
// request order. The controller omits any attribute that is not listed.
var DetailAttributes = []string{
	"Drive", "Vent24h", "Mode", "VentMode", "ModeStatus",
	"SetTemp", "SetTemp1", "SetTemp2", "SetTemp3", "SetTemp4", "SetTemp5",
	"SetHumidity", "InletTemp", "InletHumidity", "AirDirection", "FanSpeed",
	"RemoCon", "DriveItem", "ModeItem", "SetTempItem", "FilterItem",
	"AirDirItem", "FanSpeedItem", "TimerItem", "CheckWaterItem", "FilterSign",
	"Hold", "EnergyControl", "EnergyControlIC", "SetbackControl", "Ventilation",
	"VentiDrive", "VentiFan", "Schedule", "ScheduleAvail", "ErrorSign",
	"CheckWater", "TempLimitCool", "TempLimitHeat", "TempLimit",
	"CoolMin", "CoolMax", "HeatMin", "HeatMax", "AutoMin", "AutoMax",
	"TurnOff", "MaxSaveValue", "RoomHumidity", "Brightness", "Occupancy",
	"NightPurge", "Humid", "Vent24hMode", "SnowFanMode", "InletTempHWHP",
	"OutletTempHWHP", "HeadTempHWHP", "OutdoorTemp", "BrineTemp",
	"HeadInletTempCH", "BACnetTurnOff", "AISmartStart",
}

// ParseDeviceList extracts the group records of a MnetList response in
// document order.
func ParseDeviceList(doc []byte) ([]DeviceRecord, error) {
	p, err := DecodePacket(doc)
	if err != nil {
		return nil, err
	}

	cg := p.DatabaseManager.ControlGroup
	if cg == nil || cg.MnetList == nil {
		return nil, fmt.Errorf("%w: response has no ControlGroup/MnetList", ErrParse)
	}

	records := make([]DeviceRecord, 0, len(cg.MnetList.Records))
	for _, r := range cg.MnetList.Records {
		records = append(records, DeviceRecord{
			ID:   r.Group,
			Name: r.GroupNameWeb,
		})
	}
	return records, nil
}

// ParseDeviceAttributes returns the attributes of the first Mnet element of a
// detail response, verbatim.
func ParseDeviceAttributes(doc []byte) (Attributes, error) {
	p, err := DecodePacket(doc)
	if err != nil {
		return nil, err
	}

	if len(p.DatabaseManager.Mnet) == 0 {
		return nil, fmt.Errorf("%w: response has no Mnet element", ErrParse)
	}
	return p.DatabaseManager.Mnet[0].Attributes(), nil
}

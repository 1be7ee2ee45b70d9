package ae200

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
)

// Constants defined by the AE-200 b_xmlproc interface
const (
	// Path is the WebSocket endpoint served by the controller.
	Path = "/b_xmlproc/"

	// Subprotocol is the WebSocket subprotocol the controller expects.
	Subprotocol = "b_xmlproc"

	// Commands
	CommandGetRequest  = "getRequest"
	CommandSetRequest  = "setRequest"
	CommandGetResponse = "getResponse"
	CommandSetResponse = "setResponse"

	// Wildcard asks the controller to fill in the current value of an attribute.
	Wildcard = "*"

	// MaxMessageSize bounds a single response. A detail response for one
	// group is a few kilobytes; a full MnetList of 50 groups stays well
	// below this.
	MaxMessageSize = 1 << 20
)

var (
	// ErrTransport wraps dial, handshake, send and receive failures.
	ErrTransport = errors.New("ae200: transport error")

	// ErrParse is returned when a response lacks the expected structure.
	ErrParse = errors.New("ae200: parse error")

	// ErrStaleWrite is returned when a setter cannot establish a valid cache
	// before writing.
	ErrStaleWrite = errors.New("ae200: device state unavailable for write")
)

// Packet is the envelope of every b_xmlproc message.
type Packet struct {
	XMLName         xml.Name        `xml:"Packet"`
	Command         string          `xml:"Command"`
	DatabaseManager DatabaseManager `xml:"DatabaseManager"`
}

// DatabaseManager holds either a group list query or per-group elements.
type DatabaseManager struct {
	ControlGroup *ControlGroup `xml:"ControlGroup,omitempty"`
	Mnet         []Mnet        `xml:"Mnet"`
}

// ControlGroup wraps the group list.
type ControlGroup struct {
	MnetList *MnetList `xml:"MnetList"`
}

// MnetList is empty in a request and carries one record per group in a response.
type MnetList struct {
	Records []MnetRecord `xml:"MnetRecord"`
}

// MnetRecord describes one group known to the controller.
type MnetRecord struct {
	Group        string     `xml:"Group,attr"`
	GroupNameWeb string     `xml:"GroupNameWeb,attr,omitempty"`
	Extra        []xml.Attr `xml:",any,attr"`
}

// Mnet addresses one group. All of its data lives in XML attributes, Group
// first.
type Mnet struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

// NewMnet creates an Mnet element for the given group.
func NewMnet(group string) Mnet {
	return Mnet{Attrs: []xml.Attr{attr(AttrGroup, group)}}
}

// Group returns the Group attribute, or "" if absent.
func (m Mnet) Group() string {
	v, _ := m.Get(AttrGroup)
	return v
}

// Get returns the value of the named attribute.
func (m Mnet) Get(name string) (string, bool) {
	for _, a := range m.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Set replaces the named attribute or appends it.
func (m *Mnet) Set(name, value string) {
	for i, a := range m.Attrs {
		if a.Name.Local == name {
			m.Attrs[i].Value = value
			return
		}
	}
	m.Attrs = append(m.Attrs, attr(name, value))
}

// Attributes returns the attribute map of the element, Group included.
func (m Mnet) Attributes() Attributes {
	out := make(Attributes, len(m.Attrs))
	for _, a := range m.Attrs {
		out[a.Name.Local] = a.Value
	}
	return out
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// Encode serializes the packet as a UTF-8 XML document with declaration.
func (p *Packet) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("encode packet: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// DecodePacket parses an XML document into a Packet.
func DecodePacket(data []byte) (*Packet, error) {
	var p Packet
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &p, nil
}

// mustEncode is used by the builders, whose packets only contain strings.
func mustEncode(p *Packet) []byte {
	data, err := p.Encode()
	if err != nil {
		panic(err)
	}
	return data
}

// BuildListUnitsRequest creates the payload asking for the controller's
// group list.
func BuildListUnitsRequest() []byte {
	return mustEncode(&Packet{
		Command: CommandGetRequest,
		DatabaseManager: DatabaseManager{
			ControlGroup: &ControlGroup{MnetList: &MnetList{}},
		},
	})
}

// BuildDeviceDetailsRequest creates a detail query with one Mnet element per
// group. Every name in DetailAttributes is requested; the controller only
// returns the attributes it was asked for.
func BuildDeviceDetailsRequest(deviceIDs []string) []byte {
	p := &Packet{Command: CommandGetRequest}
	for _, id := range deviceIDs {
		m := NewMnet(id)
		for _, name := range DetailAttributes {
			m.Attrs = append(m.Attrs, attr(name, Wildcard))
		}
		p.DatabaseManager.Mnet = append(p.DatabaseManager.Mnet, m)
	}
	return mustEncode(p)
}

// BuildSetAttributesRequest creates a set command for one group carrying only
// the given attributes, sorted by name.
func BuildSetAttributesRequest(deviceID string, attributes map[string]string) []byte {
	names := make([]string, 0, len(attributes))
	for name := range attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	m := NewMnet(deviceID)
	for _, name := range names {
		m.Attrs = append(m.Attrs, attr(name, attributes[name]))
	}
	return mustEncode(&Packet{
		Command:         CommandSetRequest,
		DatabaseManager: DatabaseManager{Mnet: []Mnet{m}},
	})
}

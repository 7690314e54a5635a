// Package mrt decodes MRT routing archives (RFC 6396) one record at a time.
//
// Only the parts of the format needed to inspect BGP path attributes are
// modelled in detail: attribute values are kept as raw bytes.
package mrt

import (
	"net/netip"
	"time"
)

// Type is the MRT record type from the common header.
type Type uint16

const (
	TypeTableDump   Type = 12
	TypeTableDumpV2 Type = 13
	TypeBGP4MP      Type = 16
	TypeBGP4MPET    Type = 17
)

func (t Type) String() string {
	switch t {
	case TypeTableDump:
		return "TABLE_DUMP"
	case TypeTableDumpV2:
		return "TABLE_DUMP_V2"
	case TypeBGP4MP:
		return "BGP4MP"
	case TypeBGP4MPET:
		return "BGP4MP_ET"
	default:
		return "UNKNOWN"
	}
}

// Header is the 12 byte common header. For BGP4MP_ET records the microsecond
// field is folded into Timestamp and excluded from Length.
type Header struct {
	Timestamp time.Time
	Type      Type
	Subtype   uint16
	Length    uint32
}

// Record is one decoded MRT record.
type Record struct {
	Header  Header
	Message Message
}

// Message is implemented by TableDump, PeerIndexTable, RIB, StateChange and
// BGP4MPMessage.
type Message interface {
	isMessage()
}

// TableDump is a legacy TABLE_DUMP entry.
type TableDump struct {
	ViewNumber uint16
	Sequence   uint16
	Prefix     netip.Prefix
	Status     uint8
	Originated time.Time
	PeerIP     netip.Addr
	PeerAS     uint32
	Attributes []Attribute
}

// Peer is one entry of a TABLE_DUMP_V2 peer index table.
type Peer struct {
	BGPID netip.Addr
	IP    netip.Addr
	AS    uint32
}

// PeerIndexTable opens every TABLE_DUMP_V2 dump.
type PeerIndexTable struct {
	CollectorID netip.Addr
	ViewName    string
	Peers       []Peer
}

// RIB holds all entries for one prefix. Generic RIB records leave Prefix
// invalid and carry the raw NLRI instead.
type RIB struct {
	Sequence uint32
	AFI      uint16
	SAFI     uint8
	Prefix   netip.Prefix
	NLRI     []byte
	Entries  []RIBEntry
}

type RIBEntry struct {
	PeerIndex  uint16
	Originated time.Time
	PathID     uint32
	Attributes []Attribute
}

// StateChange records a BGP FSM transition.
type StateChange struct {
	Session
	OldState uint16
	NewState uint16
}

// Session identifies the peering a BGP4MP record belongs to.
type Session struct {
	PeerAS    uint32
	LocalAS   uint32
	Interface uint16
	AFI       uint16
	PeerIP    netip.Addr
	LocalIP   netip.Addr
}

// BGP4MPMessage wraps a BGP message captured on a session.
type BGP4MPMessage struct {
	Session
	AddPath bool
	Message BGPMessage
}

func (TableDump) isMessage()      {}
func (PeerIndexTable) isMessage() {}
func (RIB) isMessage()            {}
func (StateChange) isMessage()    {}
func (BGP4MPMessage) isMessage()  {}

// BGPMessage is implemented by Open, Update, Notification and Keepalive.
type BGPMessage interface {
	isBGPMessage()
}

type Open struct {
	Version  uint8
	AS       uint16
	HoldTime uint16
	BGPID    netip.Addr
	Params   []byte
}

type Update struct {
	Withdrawn  []netip.Prefix
	Attributes []Attribute
	NLRI       []netip.Prefix
}

type Notification struct {
	Code    uint8
	Subcode uint8
	Data    []byte
}

type Keepalive struct{}

func (Open) isBGPMessage()         {}
func (Update) isBGPMessage()       {}
func (Notification) isBGPMessage() {}
func (Keepalive) isBGPMessage()    {}

// Attribute is a BGP path attribute with its value left undecoded.
type Attribute struct {
	Flags uint8
	Type  AttrType
	Value []byte
}

// Attributes returns the path attribute lists carried by rec, one list per
// route. Peer index tables, state changes and non-UPDATE messages carry none.
func (rec *Record) Attributes() [][]Attribute {
	switch m := rec.Message.(type) {
	case *TableDump:
		return [][]Attribute{m.Attributes}
	case *RIB:
		out := make([][]Attribute, 0, len(m.Entries))
		for _, e := range m.Entries {
			out = append(out, e.Attributes)
		}
		return out
	case *BGP4MPMessage:
		if u, ok := m.Message.(*Update); ok {
			return [][]Attribute{u.Attributes}
		}
	}
	return nil
}

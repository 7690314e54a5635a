// Package mrttest builds small MRT records for tests.
package mrttest

import (
	"bytes"
	"encoding/binary"

	"github.com/brensch/mrtstat/internal/mrt"
)

var be = binary.BigEndian

// Attr returns a well-known transitive attribute carrying value.
func Attr(t mrt.AttrType, value ...byte) mrt.Attribute {
	return mrt.Attribute{Flags: 0x40, Type: t, Value: value}
}

// Record prepends a common header to body.
func Record(ts uint32, typ mrt.Type, subtype uint16, body []byte) []byte {
	out := make([]byte, 0, 12+len(body))
	out = be.AppendUint32(out, ts)
	out = be.AppendUint16(out, uint16(typ))
	out = be.AppendUint16(out, subtype)
	out = be.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

// Stream concatenates records.
func Stream(records ...[]byte) []byte {
	return bytes.Join(records, nil)
}

// EncodeAttributes serialises attrs, switching to a two byte length when a
// value does not fit in one.
func EncodeAttributes(attrs []mrt.Attribute) []byte {
	var out []byte
	for _, a := range attrs {
		flags := a.Flags
		if len(a.Value) > 0xff {
			flags |= 0x10
		}
		out = append(out, flags, byte(a.Type))
		if flags&0x10 != 0 {
			out = be.AppendUint16(out, uint16(len(a.Value)))
		} else {
			out = append(out, byte(len(a.Value)))
		}
		out = append(out, a.Value...)
	}
	return out
}

func attributeBlock(attrs []mrt.Attribute) []byte {
	raw := EncodeAttributes(attrs)
	return append(be.AppendUint16(nil, uint16(len(raw))), raw...)
}

// bgp4mpAS4Header is peer AS 65001, local AS 65000, ifindex 0, IPv4,
// 192.0.2.1 -> 192.0.2.2.
func bgp4mpAS4Header() []byte {
	var out []byte
	out = be.AppendUint32(out, 65001)
	out = be.AppendUint32(out, 65000)
	out = be.AppendUint16(out, 0)
	out = be.AppendUint16(out, 1)
	out = append(out, 192, 0, 2, 1)
	out = append(out, 192, 0, 2, 2)
	return out
}

func bgpMessage(typ byte, body []byte) []byte {
	out := bytes.Repeat([]byte{0xff}, 16)
	out = be.AppendUint16(out, uint16(19+len(body)))
	out = append(out, typ)
	return append(out, body...)
}

// Update is a BGP4MP_MESSAGE_AS4 record carrying an UPDATE that announces
// 10.0.0.0/8 with attrs.
func Update(ts uint32, attrs ...mrt.Attribute) []byte {
	var upd []byte
	upd = be.AppendUint16(upd, 0)
	upd = append(upd, attributeBlock(attrs)...)
	upd = append(upd, 8, 10)
	body := append(bgp4mpAS4Header(), bgpMessage(2, upd)...)
	return Record(ts, mrt.TypeBGP4MP, 4, body)
}

// Keepalive is a BGP4MP_MESSAGE_AS4 record carrying a KEEPALIVE.
func Keepalive(ts uint32) []byte {
	body := append(bgp4mpAS4Header(), bgpMessage(4, nil)...)
	return Record(ts, mrt.TypeBGP4MP, 4, body)
}

// StateChange is a BGP4MP_STATE_CHANGE_AS4 record from Active to Established.
func StateChange(ts uint32) []byte {
	body := bgp4mpAS4Header()
	body = be.AppendUint16(body, 3)
	body = be.AppendUint16(body, 6)
	return Record(ts, mrt.TypeBGP4MP, 5, body)
}

// BadMarker is a correctly length-delimited BGP4MP record whose BGP marker
// is invalid, so it fails to parse without disturbing the stream.
func BadMarker(ts uint32) []byte {
	msg := bgpMessage(4, nil)
	msg[0] = 0
	body := append(bgp4mpAS4Header(), msg...)
	return Record(ts, mrt.TypeBGP4MP, 4, body)
}

// PeerIndexTable is a TABLE_DUMP_V2 peer index table with n IPv4 AS4 peers.
func PeerIndexTable(ts uint32, n int) []byte {
	var body []byte
	body = append(body, 198, 51, 100, 1)
	body = be.AppendUint16(body, 4)
	body = append(body, "test"...)
	body = be.AppendUint16(body, uint16(n))
	for i := 0; i < n; i++ {
		body = append(body, 0x02)
		body = append(body, 10, 0, 0, byte(i))
		body = append(body, 10, 0, 0, byte(i))
		body = be.AppendUint32(body, uint32(64512+i))
	}
	return Record(ts, mrt.TypeTableDumpV2, 1, body)
}

// RIB is a TABLE_DUMP_V2 RIB_IPV4_UNICAST record for 203.0.113.0/24 with one
// entry per attribute list.
func RIB(ts, seq uint32, entries ...[]mrt.Attribute) []byte {
	var body []byte
	body = be.AppendUint32(body, seq)
	body = append(body, 24, 203, 0, 113)
	body = be.AppendUint16(body, uint16(len(entries)))
	for i, attrs := range entries {
		body = be.AppendUint16(body, uint16(i))
		body = be.AppendUint32(body, ts)
		body = append(body, attributeBlock(attrs)...)
	}
	return Record(ts, mrt.TypeTableDumpV2, 2, body)
}

// TableDump is a legacy TABLE_DUMP IPv4 record for 192.0.2.0/24.
func TableDump(ts uint32, attrs ...mrt.Attribute) []byte {
	var body []byte
	body = be.AppendUint16(body, 0)
	body = be.AppendUint16(body, 1)
	body = append(body, 192, 0, 2, 0, 24, 1)
	body = be.AppendUint32(body, ts)
	body = append(body, 192, 0, 2, 254)
	body = be.AppendUint16(body, 65010)
	body = append(body, attributeBlock(attrs)...)
	return Record(ts, mrt.TypeTableDump, 1, body)
}

// Unsupported is a well-delimited OSPFv2 record, which the decoder skips.
func Unsupported(ts uint32) []byte {
	return Record(ts, 11, 0, []byte{1, 2, 3, 4})
}

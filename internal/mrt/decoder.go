package mrt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"
)

const (
	headerLen              = 12

	// DefaultMaxRecordLength bounds the body size accepted from a header. A
	// larger value almost always means the stream is misaligned.
	DefaultMaxRecordLength = 16 << 20
)

var errUnsupported = errors.New("unsupported record")

// Decoder reads one record per Decode call. The zero value is ready to use.
type Decoder struct {
	// MaxRecordLength overrides DefaultMaxRecordLength when non-zero.
	MaxRecordLength uint32
	// Filter, when set, is applied to every successfully parsed record. A
	// non-nil result is returned as a KindFiltered error.
	Filter func(*Record) error
}

// Decode reads one record using a zero Decoder.
func Decode(r io.Reader) (*Record, error) {
	var d Decoder
	return d.Decode(r)
}

// Decode reads exactly one header and the body it declares from r, then
// parses the body. Once the body has been read, any failure leaves r
// positioned at the next record.
func (d *Decoder) Decode(r io.Reader) (*Record, error) {
	var hdr [headerLen]byte
	if n, err := io.ReadFull(r, hdr[:]); err != nil {
		switch {
		case n == 0 && errors.Is(err, io.EOF):
			return nil, &ParserError{Kind: KindEndOfStream, Err: err}
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, &ParserError{Kind: KindUnexpectedEOF, Err: fmt.Errorf("header: read %d of %d bytes: %w", n, headerLen, err)}
		default:
			return nil, &ParserError{Kind: KindIO, Err: err}
		}
	}

	h := Header{
		Timestamp: time.Unix(int64(binary.BigEndian.Uint32(hdr[0:4])), 0).UTC(),
		Type:      Type(binary.BigEndian.Uint16(hdr[4:6])),
		Subtype:   binary.BigEndian.Uint16(hdr[6:8]),
		Length:    binary.BigEndian.Uint32(hdr[8:12]),
	}
	limit := d.MaxRecordLength
	if limit == 0 {
		limit = DefaultMaxRecordLength
	}
	if h.Length > limit {
		return nil, newError(KindInvalidLength, "%s record declares %d bytes, limit is %d", h.Type, h.Length, limit)
	}

	body := make([]byte, h.Length)
	if n, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, newError(KindNotEnoughBytes, "%s body: read %d of %d bytes", h.Type, n, h.Length)
		}
		return nil, &ParserError{Kind: KindIO, Err: err}
	}

	rec := &Record{Header: h}
	msg, err := parseBody(&rec.Header, body)
	if err != nil {
		switch {
		case errors.Is(err, errShort):
			return nil, &ParserError{Kind: KindTruncated, Err: fmt.Errorf("%s/%d: %w", h.Type, h.Subtype, err)}
		case errors.Is(err, errUnsupported):
			return nil, newError(KindUnsupported, "type %d subtype %d", uint16(h.Type), h.Subtype)
		default:
			return nil, &ParserError{Kind: KindParse, Err: fmt.Errorf("%s/%d: %w", h.Type, h.Subtype, err)}
		}
	}
	rec.Message = msg

	if d.Filter != nil {
		if err := d.Filter(rec); err != nil {
			return nil, &ParserError{Kind: KindFiltered, Err: err}
		}
	}
	return rec, nil
}

func parseBody(h *Header, body []byte) (Message, error) {
	c := &cursor{buf: body}
	switch h.Type {
	case TypeTableDump:
		return parseTableDump(c, h.Subtype)
	case TypeTableDumpV2:
		return parseTableDumpV2(c, h.Subtype)
	case TypeBGP4MP:
		return parseBGP4MP(c, h.Subtype)
	case TypeBGP4MPET:
		micros, err := c.u32()
		if err != nil {
			return nil, err
		}
		h.Timestamp = h.Timestamp.Add(time.Duration(micros) * time.Microsecond)
		h.Length -= 4
		return parseBGP4MP(c, h.Subtype)
	default:
		return nil, errUnsupported
	}
}

func parseTableDump(c *cursor, subtype uint16) (Message, error) {
	var ipv6 bool
	switch subtype {
	case afiIPv4:
	case afiIPv6:
		ipv6 = true
	default:
		return nil, errUnsupported
	}

	var td TableDump
	var err error
	if td.ViewNumber, err = c.u16(); err != nil {
		return nil, err
	}
	if td.Sequence, err = c.u16(); err != nil {
		return nil, err
	}
	addr, err := c.addr(ipv6)
	if err != nil {
		return nil, err
	}
	bits, err := c.u8()
	if err != nil {
		return nil, err
	}
	if td.Prefix, err = addr.Prefix(int(bits)); err != nil {
		return nil, fmt.Errorf("table dump prefix: %w", err)
	}
	if td.Status, err = c.u8(); err != nil {
		return nil, err
	}
	if td.Originated, err = c.timestamp(); err != nil {
		return nil, err
	}
	if td.PeerIP, err = c.addr(ipv6); err != nil {
		return nil, err
	}
	as, err := c.u16()
	if err != nil {
		return nil, err
	}
	td.PeerAS = uint32(as)
	if td.Attributes, err = c.attributeBlock(); err != nil {
		return nil, err
	}
	return &td, nil
}

// TABLE_DUMP_V2 subtypes.
const (
	subPeerIndexTable     = 1
	subRIBIPv4Unicast     = 2
	subRIBIPv4Multicast   = 3
	subRIBIPv6Unicast     = 4
	subRIBIPv6Multicast   = 5
	subRIBGeneric         = 6
	subRIBIPv4UnicastAP   = 8
	subRIBIPv4MulticastAP = 9
	subRIBIPv6UnicastAP   = 10
	subRIBIPv6MulticastAP = 11
	subRIBGenericAP       = 12
	peerTypeIPv6          = 0x01
	peerTypeAS4           = 0x02
	afiIPv4               = 1
	afiIPv6               = 2
	safiUnicast           = 1
	safiMulticast         = 2
)

func parseTableDumpV2(c *cursor, subtype uint16) (Message, error) {
	switch subtype {
	case subPeerIndexTable:
		return parsePeerIndexTable(c)
	case subRIBIPv4Unicast, subRIBIPv4UnicastAP:
		return parseRIB(c, afiIPv4, safiUnicast, subtype >= subRIBIPv4UnicastAP)
	case subRIBIPv4Multicast, subRIBIPv4MulticastAP:
		return parseRIB(c, afiIPv4, safiMulticast, subtype >= subRIBIPv4UnicastAP)
	case subRIBIPv6Unicast, subRIBIPv6UnicastAP:
		return parseRIB(c, afiIPv6, safiUnicast, subtype >= subRIBIPv4UnicastAP)
	case subRIBIPv6Multicast, subRIBIPv6MulticastAP:
		return parseRIB(c, afiIPv6, safiMulticast, subtype >= subRIBIPv4UnicastAP)
	case subRIBGeneric, subRIBGenericAP:
		return parseRIBGeneric(c, subtype == subRIBGenericAP)
	default:
		return nil, errUnsupported
	}
}

func parsePeerIndexTable(c *cursor) (Message, error) {
	var pit PeerIndexTable
	var err error
	if pit.CollectorID, err = c.addr(false); err != nil {
		return nil, err
	}
	nameLen, err := c.u16()
	if err != nil {
		return nil, err
	}
	name, err := c.take(int(nameLen))
	if err != nil {
		return nil, err
	}
	pit.ViewName = string(name)

	count, err := c.u16()
	if err != nil {
		return nil, err
	}
	pit.Peers = make([]Peer, 0, count)
	for i := 0; i < int(count); i++ {
		typ, err := c.u8()
		if err != nil {
			return nil, err
		}
		var p Peer
		if p.BGPID, err = c.addr(false); err != nil {
			return nil, err
		}
		if p.IP, err = c.addr(typ&peerTypeIPv6 != 0); err != nil {
			return nil, err
		}
		if p.AS, err = c.asn(typ&peerTypeAS4 != 0); err != nil {
			return nil, err
		}
		pit.Peers = append(pit.Peers, p)
	}
	return &pit, nil
}

func parseRIB(c *cursor, afi uint16, safi uint8, addPath bool) (Message, error) {
	rib := RIB{AFI: afi, SAFI: safi}
	var err error
	if rib.Sequence, err = c.u32(); err != nil {
		return nil, err
	}
	if rib.Prefix, err = c.prefix(afi == afiIPv6); err != nil {
		return nil, err
	}
	if rib.Entries, err = c.ribEntries(addPath); err != nil {
		return nil, err
	}
	return &rib, nil
}

func parseRIBGeneric(c *cursor, addPath bool) (Message, error) {
	var rib RIB
	var err error
	if rib.Sequence, err = c.u32(); err != nil {
		return nil, err
	}
	if rib.AFI, err = c.u16(); err != nil {
		return nil, err
	}
	if rib.SAFI, err = c.u8(); err != nil {
		return nil, err
	}
	bits, err := c.u8()
	if err != nil {
		return nil, err
	}
	raw, err := c.take((int(bits) + 7) / 8)
	if err != nil {
		return nil, err
	}
	rib.NLRI = append([]byte{bits}, raw...)
	if rib.Entries, err = c.ribEntries(addPath); err != nil {
		return nil, err
	}
	return &rib, nil
}

func (c *cursor) ribEntries(addPath bool) ([]RIBEntry, error) {
	count, err := c.u16()
	if err != nil {
		return nil, err
	}
	entries := make([]RIBEntry, 0, count)
	for i := 0; i < int(count); i++ {
		var e RIBEntry
		if e.PeerIndex, err = c.u16(); err != nil {
			return nil, err
		}
		if e.Originated, err = c.timestamp(); err != nil {
			return nil, err
		}
		if addPath {
			if e.PathID, err = c.u32(); err != nil {
				return nil, err
			}
		}
		if e.Attributes, err = c.attributeBlock(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// BGP4MP subtypes.
const (
	subStateChange       = 0
	subMessage           = 1
	subMessageAS4        = 4
	subStateChangeAS4    = 5
	subMessageLocal      = 6
	subMessageAS4Local   = 7
	subMessageAP         = 8
	subMessageAS4AP      = 9
	subMessageLocalAP    = 10
	subMessageAS4LocalAP = 11
)

func parseBGP4MP(c *cursor, subtype uint16) (Message, error) {
	var as4, addPath, state bool
	switch subtype {
	case subStateChange:
		state = true
	case subStateChangeAS4:
		state, as4 = true, true
	case subMessage, subMessageLocal:
	case subMessageAS4, subMessageAS4Local:
		as4 = true
	case subMessageAP, subMessageLocalAP:
		addPath = true
	case subMessageAS4AP, subMessageAS4LocalAP:
		as4, addPath = true, true
	default:
		return nil, errUnsupported
	}

	s, err := c.session(as4)
	if err != nil {
		return nil, err
	}
	if state {
		sc := StateChange{Session: s}
		if sc.OldState, err = c.u16(); err != nil {
			return nil, err
		}
		if sc.NewState, err = c.u16(); err != nil {
			return nil, err
		}
		return &sc, nil
	}

	msg, err := parseBGPMessage(c, addPath)
	if err != nil {
		return nil, err
	}
	return &BGP4MPMessage{Session: s, AddPath: addPath, Message: msg}, nil
}

func (c *cursor) session(as4 bool) (Session, error) {
	var s Session
	var err error
	if s.PeerAS, err = c.asn(as4); err != nil {
		return s, err
	}
	if s.LocalAS, err = c.asn(as4); err != nil {
		return s, err
	}
	if s.Interface, err = c.u16(); err != nil {
		return s, err
	}
	if s.AFI, err = c.u16(); err != nil {
		return s, err
	}
	if s.AFI != afiIPv4 && s.AFI != afiIPv6 {
		return s, fmt.Errorf("unknown address family %d", s.AFI)
	}
	if s.PeerIP, err = c.addr(s.AFI == afiIPv6); err != nil {
		return s, err
	}
	if s.LocalIP, err = c.addr(s.AFI == afiIPv6); err != nil {
		return s, err
	}
	return s, nil
}

// BGP message types.
const (
	bgpOpen         = 1
	bgpUpdate       = 2
	bgpNotification = 3
	bgpKeepalive    = 4
	bgpHeaderLen    = 19
)

func parseBGPMessage(c *cursor, addPath bool) (BGPMessage, error) {
	marker, err := c.take(16)
	if err != nil {
		return nil, err
	}
	for _, b := range marker {
		if b != 0xff {
			return nil, errors.New("bgp marker is not all ones")
		}
	}
	length, err := c.u16()
	if err != nil {
		return nil, err
	}
	typ, err := c.u8()
	if err != nil {
		return nil, err
	}
	if length < bgpHeaderLen {
		return nil, fmt.Errorf("bgp message length %d shorter than header", length)
	}
	raw, err := c.take(int(length) - bgpHeaderLen)
	if err != nil {
		return nil, err
	}
	m := &cursor{buf: raw}

	switch typ {
	case bgpOpen:
		var o Open
		if o.Version, err = m.u8(); err != nil {
			return nil, err
		}
		if o.AS, err = m.u16(); err != nil {
			return nil, err
		}
		if o.HoldTime, err = m.u16(); err != nil {
			return nil, err
		}
		if o.BGPID, err = m.addr(false); err != nil {
			return nil, err
		}
		n, err := m.u8()
		if err != nil {
			return nil, err
		}
		if o.Params, err = m.take(int(n)); err != nil {
			return nil, err
		}
		return &o, nil
	case bgpUpdate:
		return parseUpdate(m, addPath)
	case bgpNotification:
		var n Notification
		if n.Code, err = m.u8(); err != nil {
			return nil, err
		}
		if n.Subcode, err = m.u8(); err != nil {
			return nil, err
		}
		n.Data = m.rest()
		return &n, nil
	case bgpKeepalive:
		return &Keepalive{}, nil
	default:
		return nil, errUnsupported
	}
}

func parseUpdate(c *cursor, addPath bool) (*Update, error) {
	var u Update
	wlen, err := c.u16()
	if err != nil {
		return nil, err
	}
	withdrawn, err := c.take(int(wlen))
	if err != nil {
		return nil, err
	}
	if u.Withdrawn, err = prefixList(withdrawn, addPath); err != nil {
		return nil, err
	}
	if u.Attributes, err = c.attributeBlock(); err != nil {
		return nil, err
	}
	if u.NLRI, err = prefixList(c.rest(), addPath); err != nil {
		return nil, err
	}
	return &u, nil
}

func prefixList(b []byte, addPath bool) ([]netip.Prefix, error) {
	c := &cursor{buf: b}
	var out []netip.Prefix
	for len(c.buf) > 0 {
		if addPath {
			if _, err := c.u32(); err != nil {
				return nil, err
			}
		}
		p, err := c.prefix(false)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

const attrFlagExtendedLength = 0x10

// attributeBlock reads a two byte length followed by that many bytes of path
// attributes.
func (c *cursor) attributeBlock() ([]Attribute, error) {
	n, err := c.u16()
	if err != nil {
		return nil, err
	}
	raw, err := c.take(int(n))
	if err != nil {
		return nil, err
	}
	return parseAttributes(raw)
}

func parseAttributes(b []byte) ([]Attribute, error) {
	c := &cursor{buf: b}
	var attrs []Attribute
	for len(c.buf) > 0 {
		flags, err := c.u8()
		if err != nil {
			return nil, err
		}
		typ, err := c.u8()
		if err != nil {
			return nil, err
		}
		var n int
		if flags&attrFlagExtendedLength != 0 {
			v, err := c.u16()
			if err != nil {
				return nil, err
			}
			n = int(v)
		} else {
			v, err := c.u8()
			if err != nil {
				return nil, err
			}
			n = int(v)
		}
		value, err := c.take(n)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{Flags: flags, Type: AttrType(typ), Value: value})
	}
	return attrs, nil
}

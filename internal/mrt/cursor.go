package mrt

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"
)

// cursor walks a fully read record body. Reads past the end return errShort.
type cursor struct {
	buf []byte
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || n > len(c.buf) {
		return nil, fmt.Errorf("need %d bytes, have %d: %w", n, len(c.buf), errShort)
	}
	b := c.buf[:n:n]
	c.buf = c.buf[n:]
	return b, nil
}

func (c *cursor) rest() []byte {
	b := c.buf
	c.buf = nil
	return b
}

func (c *cursor) u8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursor) asn(four bool) (uint32, error) {
	if four {
		return c.u32()
	}
	v, err := c.u16()
	return uint32(v), err
}

func (c *cursor) timestamp() (time.Time, error) {
	v, err := c.u32()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(v), 0).UTC(), nil
}

func (c *cursor) addr(ipv6 bool) (netip.Addr, error) {
	if ipv6 {
		b, err := c.take(16)
		if err != nil {
			return netip.Addr{}, err
		}
		return netip.AddrFrom16([16]byte(b)), nil
	}
	b, err := c.take(4)
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom4([4]byte(b)), nil
}

// prefix reads a length-in-bits byte followed by the minimum number of
// address bytes.
func (c *cursor) prefix(ipv6 bool) (netip.Prefix, error) {
	bits, err := c.u8()
	if err != nil {
		return netip.Prefix{}, err
	}
	limit := 32
	if ipv6 {
		limit = 128
	}
	if int(bits) > limit {
		return netip.Prefix{}, fmt.Errorf("prefix length %d exceeds %d", bits, limit)
	}
	raw, err := c.take((int(bits) + 7) / 8)
	if err != nil {
		return netip.Prefix{}, err
	}
	var full [16]byte
	copy(full[:], raw)
	addr := netip.AddrFrom16(full)
	if !ipv6 {
		addr = netip.AddrFrom4([4]byte(full[:4]))
	}
	return netip.PrefixFrom(addr, int(bits)), nil
}

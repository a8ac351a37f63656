// Package rtpheader parses the fixed RTP header (RFC 3550 §5.1) out of a
// received datagram. It is read-only: the reception core never originates
// RTP traffic, so no writer is provided.
package rtpheader

import (
	"golang.org/x/xerrors"

	"github.com/fernbridge/rtpcore/internal/packet"
)

const (
	version  = 2
	fixedLen = 12
)

// Header holds the fields of a parsed RTP packet header.
type Header struct {
	Marker      bool
	PayloadType byte
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
	CSRC        []uint32
}

// Parse reads an RTP header from the front of buf. The returned Header
// does not alias buf: its CSRC list is a freshly allocated slice.
func Parse(buf []byte) (Header, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(fixedLen); err != nil {
		return Header{}, xerrors.Errorf("rtpheader: short packet: %w", err)
	}

	first := r.ReadByte()
	v := first >> 6
	if v != version {
		return Header{}, xerrors.Errorf("rtpheader: unsupported version %d", v)
	}
	csrcCount := int(first & 0x0f)

	second := r.ReadByte()
	h := Header{
		Marker:      second&0x80 != 0,
		PayloadType: second & 0x7f,
	}
	h.Sequence = r.ReadUint16()
	h.Timestamp = r.ReadUint32()
	h.SSRC = r.ReadUint32()

	if err := r.CheckRemaining(4 * csrcCount); err != nil {
		return Header{}, xerrors.Errorf("rtpheader: truncated CSRC list: %w", err)
	}
	for i := 0; i < csrcCount; i++ {
		h.CSRC = append(h.CSRC, r.ReadUint32())
	}

	return h, nil
}

package main

import (
	"encoding/binary"
	"fmt"

	"github.com/fernbridge/rtpcore/internal/handler"
	"github.com/fernbridge/rtpcore/internal/srtcp"
)

// identifyPacket distinguishes RTP from RTCP and extracts the SSRC,
// adapted from the RTP/RTCP demultiplexing rule in RFC 5761 §4: RTCP
// packet types occupy 192-223 in the second header byte.
func identifyPacket(buf []byte) (rtcp bool, ssrc uint32, ok bool) {
	if len(buf) < 8 {
		return false, 0, false
	}
	packetType := buf[1]
	if packetType >= 192 && packetType <= 223 {
		if len(buf) < 8 {
			return false, 0, false
		}
		return true, binary.BigEndian.Uint32(buf[4:8]), true
	}
	if len(buf) < 12 {
		return false, 0, false
	}
	return false, binary.BigEndian.Uint32(buf[8:12]), true
}

// installDiscriminator wires a primary handler that tags every datagram
// with its kind and SSRC, and (for RTCP) an auxiliary that runs the
// SRTCP verify+decrypt path when sc is non-nil.
func installDiscriminator(reg *handler.Registry, sc *srtcp.Context) {
	key := reg.InstallPrimary(func(length int, data []byte, flags int32, out **handler.Frame) handler.Result {
		rtcp, ssrc, ok := identifyPacket(data[:length])
		if !ok {
			return handler.PktNotHandled
		}
		payload := append([]byte(nil), data[:length]...)
		*out = &handler.Frame{Payload: payload, SSRC: ssrc, Flags: flags}
		if rtcp {
			(*out).Flags |= flagIsRTCP
		}
		return handler.PktModified
	})

	_ = reg.InstallAuxiliary(key, func(ctx interface{}, flags int32, frame **handler.Frame) handler.Result {
		f := *frame
		if f == nil {
			return handler.Ok
		}
		if f.Flags&flagIsRTCP == 0 || sc == nil {
			return handler.PktReady
		}

		const roc = 0 // demonstration binary tracks no rollover state
		if err := sc.VerifyAuthTag(f.Payload, roc); err != nil {
			fmt.Printf("rtpingestd: ssrc=%08x: %v\n", f.SSRC, err)
			return handler.Ok
		}
		if err := sc.Decrypt(f.Payload, f.SSRC, srtcpIndex(f.Payload)); err != nil {
			fmt.Printf("rtpingestd: ssrc=%08x: decrypt: %v\n", f.SSRC, err)
			return handler.Ok
		}
		return handler.PktReady
	}, nil, nil)
}

// flagIsRTCP is set on Frame.Flags by the discriminator to mark RTCP
// datagrams, distinct from the caller-supplied Config.Flags bits by
// living in the high byte.
const flagIsRTCP int32 = 1 << 24

func srtcpIndex(buf []byte) uint32 {
	if len(buf) < srtcp.SRTCPIndexLen+srtcp.AuthTagLen {
		return 0
	}
	trailer := buf[len(buf)-srtcp.SRTCPIndexLen-srtcp.AuthTagLen : len(buf)-srtcp.AuthTagLen]
	return binary.BigEndian.Uint32(trailer) &^ (1 << 31)
}

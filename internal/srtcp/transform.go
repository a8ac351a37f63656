// Package srtcp implements the SRTCP cryptographic transform (C6):
// encrypt/authenticate on egress, verify/decrypt/replay-detect on
// ingress, per RFC 3711 with the SRTCP-specific index/E-flag framing from
// RFC 3711 §3.4. Grounded on internal/rtp/srtp.go (cryptoContext, key
// derivation, AES-CM, HMAC-SHA1) and internal/srtp/srtcp.go (SRTCP index
// framing) in this codebase's SRTP/SRTCP lineage.
package srtcp

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"

	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
)

// ErrAuthTagMismatch is returned by VerifyAuthTag when the computed tag doesn't
// match the received one; decrypted output must never be trusted before
// this check passes.
var ErrAuthTagMismatch = errors.New("srtcp: authentication tag mismatch")

// ErrReplay is returned when the same authenticated packet is delivered
// more than once.
var ErrReplay = errors.New("srtcp: replayed packet")

// ErrPacketTooShort is returned when a buffer is too small to contain the
// SRTCP trailer (index + auth tag), with or without the 8-byte header.
var ErrPacketTooShort = errors.New("srtcp: packet too short")

// defaultReplayWindow bounds the number of recently observed auth tag
// digests retained for replay detection, via a fixed-capacity LRU.
const defaultReplayWindow = 128

// Context holds one session's local (outbound) and remote (inbound) key
// material, the cipher choice, and the replay window. It does not store a
// rollover counter: AddAuthTag and VerifyAuthTag take roc as an argument
// on every call. It is not safe for concurrent use; the reception core
// only ever calls it from the Processor goroutine, so the replay window
// needs no locking of its own.
type Context struct {
	local  *sessionKeys
	remote *sessionKeys

	// cipher selects the transform Encrypt and Decrypt apply.
	cipher Cipher

	replay *lru.Cache
}

// Cipher selects the encryption transform. NullCipher disables encryption
// entirely, matching internal/rtp/srtp.go's nullCipher, previously left
// unwired in this codebase's SRTP lineage.
type Cipher int

const (
	// AESCounterMode is the default SRTP/SRTCP encryption transform.
	AESCounterMode Cipher = iota
	// NullCipher performs no encryption or decryption.
	NullCipher
)

// NewContext derives session keys for both directions and prepares an
// empty replay window. Either KeySet may be the zero value if that
// direction is unused (e.g. a receive-only context needs no local keys).
func NewContext(local, remote KeySet, cipher Cipher) (*Context, error) {
	ctx := &Context{cipher: cipher, replay: lru.New(defaultReplayWindow)}

	if !local.Empty() {
		ks, err := deriveSessionKeys(local)
		if err != nil {
			return nil, errors.Wrap(err, "srtcp: local key derivation")
		}
		ctx.local = ks
	}
	if !remote.Empty() {
		ks, err := deriveSessionKeys(remote)
		if err != nil {
			return nil, errors.Wrap(err, "srtcp: remote key derivation")
		}
		ctx.remote = ks
	}

	return ctx, nil
}

// generateIV builds the 16-byte SRTP/SRTCP IV: (salt XOR layout(ssrc,
// seq)), per RFC 3711 §4.1.1. seq here is the full 48-bit-equivalent
// packet index (ROC*2^16 + SEQ) already combined by the caller for SRTP,
// or the 31-bit SRTCP index for SRTCP — both fit the same byte layout
// since only the low 48 bits are ever populated.
func generateIV(salt []byte, ssrc uint32, index uint64) []byte {
	iv := make([]byte, IVLen)
	copy(iv, salt)

	// IV = (salt * 2^16) XOR (ssrc * 2^64) XOR (index * 2^16), pictorially:
	//   xxxxxxxxxxxxxx00  <- salt (112 bits)
	//   0000xxxx00000000  <- ssrc (32 bits)
	//   00000000xxxxxx00  <- index (48 bits)
	var ssrcField [4]byte
	binary.BigEndian.PutUint32(ssrcField[:], ssrc)
	for i := 0; i < 4; i++ {
		iv[4+i] ^= ssrcField[i]
	}

	var indexField [8]byte
	binary.BigEndian.PutUint64(indexField[:], index<<16)
	for i := 0; i < 8; i++ {
		iv[8+i] ^= indexField[i]
	}

	return iv
}

// Encrypt performs the outbound AES-CTR transform over buf[8:] in place
// (skipping the 8-byte RTCP header + sender SSRC, per RFC 5506 §3.4.3). A
// NullCipher context no-ops. ssrc and srtcpIndex identify the packet for
// IV derivation.
func (c *Context) Encrypt(buf []byte, ssrc uint32, srtcpIndex uint32) error {
	if c.cipher == NullCipher {
		return nil
	}
	if c.local == nil {
		return errors.New("srtcp: no local key material configured")
	}
	if len(buf) < 8 {
		return errors.WithStack(ErrPacketTooShort)
	}

	iv := generateIV(c.local.saltKey, ssrc, uint64(srtcpIndex))
	stream := cipher.NewCTR(c.local.encryptBlock, iv)
	stream.XORKeyStream(buf[8:], buf[8:])
	return nil
}

// AddAuthTag computes HMAC-SHA1 over buf[:len(buf)-AuthTagLen] concatenated
// with roc in host byte order — RFC 3711's one deliberate departure from
// network byte order for this field — truncates to AuthTagLen bytes, and
// writes it into the trailing AuthTagLen bytes of buf.
func (c *Context) AddAuthTag(buf []byte, roc uint32) error {
	if c.local == nil {
		return errors.New("srtcp: no local key material configured")
	}
	if len(buf) < AuthTagLen {
		return errors.WithStack(ErrPacketTooShort)
	}

	tag := c.authTag(c.local.authKey, buf[:len(buf)-AuthTagLen], roc)
	copy(buf[len(buf)-AuthTagLen:], tag)
	return nil
}

func (c *Context) authTag(key, message []byte, roc uint32) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(message)
	var rocBytes [4]byte
	binary.NativeEndian.PutUint32(rocBytes[:], roc)
	mac.Write(rocBytes[:])
	return mac.Sum(nil)[:AuthTagLen]
}

// VerifyAuthTag recomputes the HMAC-SHA1 tag over the authenticated
// prefix using the remote auth key and roc, and compares it
// constant-time against the tag carried in buf. On match, it checks (and
// then records) the tag against the replay window.
func (c *Context) VerifyAuthTag(buf []byte, roc uint32) error {
	if c.remote == nil {
		return errors.New("srtcp: no remote key material configured")
	}
	if len(buf) < AuthTagLen {
		return errors.WithStack(ErrPacketTooShort)
	}

	prefix := buf[:len(buf)-AuthTagLen]
	received := buf[len(buf)-AuthTagLen:]
	expected := c.authTag(c.remote.authKey, prefix, roc)

	if !hmac.Equal(expected, received) {
		return errors.WithStack(ErrAuthTagMismatch)
	}

	digest := string(received)
	if _, seen := c.replay.Get(digest); seen {
		return errors.WithStack(ErrReplay)
	}
	c.replay.Add(digest, struct{}{})
	return nil
}

// Decrypt performs the inbound AES-CTR transform over
// buf[8 : len(buf)-AuthTagLen-SRTCPIndexLen] in place — i.e. it skips the
// RTCP header/SSRC and stops before the trailing SRTCP index and auth
// tag. Caller must have already verified the auth tag.
func (c *Context) Decrypt(buf []byte, ssrc uint32, srtcpIndex uint32) error {
	if c.cipher == NullCipher {
		return nil
	}
	if c.remote == nil {
		return errors.New("srtcp: no remote key material configured")
	}

	tail := AuthTagLen + SRTCPIndexLen
	if len(buf) < 8+tail {
		return errors.WithStack(ErrPacketTooShort)
	}

	payload := buf[8 : len(buf)-tail]
	iv := generateIV(c.remote.saltKey, ssrc, uint64(srtcpIndex))
	stream := cipher.NewCTR(c.remote.encryptBlock, iv)
	stream.XORKeyStream(payload, payload)
	return nil
}

package srtcp

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/pkg/errors"
)

// Key material lengths per RFC 3711 §8.2, as used throughout this
// codebase's SRTP/SRTCP lineage (see internal/rtp/srtp.go).
const (
	// AESKeyLen is n_e: the AES session/encryption key length.
	AESKeyLen = 16

	authKeyLen = 20 // n_a
	saltKeyLen = 14 // n_s

	// AuthTagLen is n_tag: the truncated HMAC-SHA1 authentication tag.
	AuthTagLen = 10

	// IVLen is the AES block size used to build the CTR-mode IV.
	IVLen = aes.BlockSize

	// SRTCPIndexLen is the width of the trailing SRTCP index field.
	SRTCPIndexLen = 4
)

// Key derivation labels for SRTCP, per RFC 3711 §4.3/appendix B.3.
const (
	labelSRTCPEncrypt byte = 0x03
	labelSRTCPAuth    byte = 0x04
	labelSRTCPSalt    byte = 0x05
)

// KeySet holds one endpoint's (local or remote) master key material, from
// which the session enc/auth/salt keys are derived.
type KeySet struct {
	MasterKey  []byte
	MasterSalt []byte
}

// Empty reports whether ks carries no key material, i.e. that direction
// is unused.
func (ks KeySet) Empty() bool {
	return len(ks.MasterKey) == 0 && len(ks.MasterSalt) == 0
}

// sessionKeys is the derived per-direction key material actually used for
// AES-CTR and HMAC-SHA1.
type sessionKeys struct {
	encryptBlock cipher.Block
	authKey      []byte
	saltKey      []byte
}

func deriveSessionKeys(ks KeySet) (*sessionKeys, error) {
	if len(ks.MasterKey) != AESKeyLen {
		return nil, errors.Errorf("srtcp: master key must be %d bytes, got %d", AESKeyLen, len(ks.MasterKey))
	}
	if len(ks.MasterSalt) != saltKeyLen {
		return nil, errors.Errorf("srtcp: master salt must be %d bytes, got %d", saltKeyLen, len(ks.MasterSalt))
	}

	encKey := deriveKey(ks.MasterKey, ks.MasterSalt, labelSRTCPEncrypt, AESKeyLen)
	authKey := deriveKey(ks.MasterKey, ks.MasterSalt, labelSRTCPAuth, authKeyLen)
	saltKey := deriveKey(ks.MasterKey, ks.MasterSalt, labelSRTCPSalt, saltKeyLen)

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, errors.Wrap(err, "srtcp: derive session encryption key")
	}

	return &sessionKeys{
		encryptBlock: block,
		authKey:      authKey,
		saltKey:      saltKey,
	}, nil
}

// deriveKey implements the SRTP key derivation function from RFC 3711
// §4.3, specialized to key_derivation_rate = 0 (the common case, and the
// only one this package's callers need): the derived key is
// PRF(master_key, (master_salt XOR (label << 48)) padded to a full AES
// block), truncated to n bytes. Grounded on internal/rtp/srtp.go's
// deriveKey (same construction, generalized from SRTP-only to SRTCP's six
// session keys).
func deriveKey(masterKey, masterSalt []byte, label byte, n int) []byte {
	x := append([]byte(nil), masterSalt...)
	// XOR the label into the byte just left of the 48-bit r field (which
	// is zero here since key_derivation_rate is 0).
	x[len(x)-7] ^= label

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		panic(err) // masterKey length already validated by caller
	}

	iv := padRight(x, aes.BlockSize)
	stream := cipher.NewCTR(block, iv)

	key := make([]byte, n)
	stream.XORKeyStream(key, key)
	return key
}

func padRight(b []byte, size int) []byte {
	if len(b) >= size {
		return b[:size]
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

package transport

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20"
)

// hpProtector produces the 5-byte header-protection mask from a 16-byte
// sample (RFC 9001 section 5.4). The concrete cipher (AES-based or
// ChaCha20-based) depends on the negotiated AEAD suite.
type hpProtector interface {
	mask(sample []byte) [5]byte
}

type aesHP struct {
	block cipher.Block
}

func newAESHP(key []byte) (hpProtector, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &aesHP{block: block}, nil
}

func (h *aesHP) mask(sample []byte) [5]byte {
	var out [16]byte
	h.block.Encrypt(out[:], sample)
	var m [5]byte
	copy(m[:], out[:5])
	return m
}

type chachaHP struct {
	key [32]byte
}

func newChaChaHP(key []byte) (hpProtector, error) {
	var h chachaHP
	copy(h.key[:], key)
	return &h, nil
}

func (h *chachaHP) mask(sample []byte) [5]byte {
	// RFC 9001 section 5.4.4: counter = sample[0:4] (LE), nonce = sample[4:16].
	counter := uint32(sample[0]) | uint32(sample[1])<<8 | uint32(sample[2])<<16 | uint32(sample[3])<<24
	nonce := sample[4:16]
	c, err := chacha20.NewUnauthenticatedCipher(h.key[:], nonce)
	if err != nil {
		return [5]byte{}
	}
	c.SetCounter(counter)
	var zero [5]byte
	var out [5]byte
	c.XORKeyStream(out[:], zero[:])
	return out
}

// applyHeaderProtection XORs the mask into the first-byte low bits and the
// packet-number bytes at pnOffset. hdrOffset is the index of the packet's
// first byte within b; pnLen is the already-known
// (on encrypt) or maximum-possible (on decrypt, 4) packet-number length.
func applyHeaderProtection(b []byte, hdrOffset, pnOffset int, pnLen int, hp hpProtector, long bool) {
	sampleOffset := pnOffset + 4
	if sampleOffset+16 > len(b) {
		sampleOffset = len(b) - 16
	}
	if sampleOffset < 0 {
		return
	}
	mask := hp.mask(b[sampleOffset : sampleOffset+16])
	if long {
		b[hdrOffset] ^= mask[0] & 0x0f
	} else {
		b[hdrOffset] ^= mask[0] & 0x1f
	}
	for i := 0; i < pnLen; i++ {
		b[pnOffset+i] ^= mask[1+i]
	}
}

// packetNumberLenFromFirstByte extracts the (still-masked or already-unmasked) pn
// length from the first byte, given whether it is a long header.
func packetNumberLenFromFirstByte(first byte, long bool) int {
	if long {
		return int(first&longPnLenMask) + 1
	}
	return int(first&shortPnLenMask) + 1
}

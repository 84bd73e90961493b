package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"net"
	"time"

	"golang.org/x/crypto/hkdf"
)

// tokenValidity bounds how long an address-validation token (Retry or
// NEW_TOKEN) remains acceptable, limiting the window an attacker can replay
// a captured token to forge source-address validation.
const tokenValidity = 10 * time.Second

// TokenSource seals and opens address-validation tokens: an AEAD-protected
// binding of the client's address, (for Retry) the original destination
// CID, and an issue timestamp, so a later Initial can prove it already
// completed one round trip with this server (RFC 9000 section 8.1).
type TokenSource struct {
	aead cipher.AEAD
}

// NewTokenSource derives a token-sealing key from secret, which should be
// kept stable across the lifetime of a listening socket (rotating it
// invalidates every token minted before the rotation).
func NewTokenSource(secret []byte) (*TokenSource, error) {
	key := make([]byte, 32)
	if _, err := hkdf.Expand(sha256.New, secret, []byte("quic token key")).Read(key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenSource{aead: aead}, nil
}

// Mint builds a sealed token for addr, binding odcid (the original
// destination CID the client addressed its first Initial to) so the
// subsequent Initial's Retry token can be validated against it.
func (t *TokenSource) Mint(now time.Time, addr net.Addr, odcid []byte) ([]byte, error) {
	return t.mint(rand.Read, now, addr, odcid)
}

// Validate opens a token minted by Mint, checking the bound address and the
// validity window. It returns the original destination CID the token was
// bound to.
func (t *TokenSource) Validate(now time.Time, token []byte, addr net.Addr) (odcid []byte, ok bool) {
	return t.validate(now, token, addr)
}

func (t *TokenSource) mint(rnd func([]byte) (int, error), now time.Time, addr net.Addr, odcid []byte) ([]byte, error) {
	nonce := make([]byte, t.aead.NonceSize())
	if _, err := rnd(nonce); err != nil {
		return nil, err
	}
	plain := make([]byte, 0, 8+1+len(odcid)+32)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.Unix()))
	plain = append(plain, ts[:]...)
	plain = append(plain, byte(len(odcid)))
	plain = append(plain, odcid...)
	plain = append(plain, []byte(addr.String())...)
	sealed := t.aead.Seal(nil, nonce, plain, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// validate opens a token minted by mint, checking the bound address and
// the validity window. It returns the original destination CID the token
// was bound to, if any (Retry tokens only).
func (t *TokenSource) validate(now time.Time, token []byte, addr net.Addr) (odcid []byte, ok bool) {
	if len(token) < t.aead.NonceSize() {
		return nil, false
	}
	nonce := token[:t.aead.NonceSize()]
	sealed := token[t.aead.NonceSize():]
	plain, err := t.aead.Open(nil, nonce, sealed, nil)
	if err != nil || len(plain) < 9 {
		return nil, false
	}
	issued := time.Unix(int64(binary.BigEndian.Uint64(plain[:8])), 0)
	if now.Sub(issued) > tokenValidity || now.Before(issued) {
		return nil, false
	}
	odcidLen := int(plain[8])
	if len(plain) < 9+odcidLen {
		return nil, false
	}
	odcid = plain[9 : 9+odcidLen]
	rest := plain[9+odcidLen:]
	if string(rest) != addr.String() {
		return nil, false
	}
	return odcid, true
}

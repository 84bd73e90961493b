package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// AEADSuite identifies which authenticated cipher an epoch's keys use. Only
// the suite matters for our AEAD/HP construction; everything else about the
// negotiated TLS cipher suite is the handshake collaborator's business.
type AEADSuite uint8

const (
	SuiteAES128GCM AEADSuite = iota
	SuiteAES256GCM
	SuiteChaCha20Poly1305
)

// directionalKeys holds one direction's (read or write) key material for one
// epoch: the AEAD, its static IV, and the header-protection cipher.
type directionalKeys struct {
	aead  cipher.AEAD
	iv    []byte
	hp    hpProtector
	suite AEADSuite
}

func newDirectionalKeys(suite AEADSuite, key, iv, hpKey []byte) (*directionalKeys, error) {
	var aead cipher.AEAD
	var hp hpProtector
	var err error
	switch suite {
	case SuiteChaCha20Poly1305:
		aead, err = chacha20poly1305.New(key)
		if err != nil {
			return nil, err
		}
		hp, err = newChaChaHP(hpKey)
	default:
		block, aerr := aes.NewCipher(key)
		if aerr != nil {
			return nil, aerr
		}
		aead, err = cipher.NewGCM(block)
		if err == nil {
			hp, err = newAESHP(hpKey)
		}
	}
	if err != nil {
		return nil, err
	}
	return &directionalKeys{aead: aead, iv: iv, hp: hp, suite: suite}, nil
}

// nonce computes the per-packet AEAD nonce: the static IV XORed with the
// packet number in its last 8 bytes (RFC 9001 section 5.3).
func (k *directionalKeys) nonce(pn uint64) []byte {
	n := make([]byte, len(k.iv))
	copy(n, k.iv)
	for i := 0; i < 8; i++ {
		n[len(n)-1-i] ^= byte(pn >> (8 * i))
	}
	return n
}

func (k *directionalKeys) seal(dst, ad []byte, pn uint64, plaintext []byte) []byte {
	return k.aead.Seal(dst, k.nonce(pn), plaintext, ad)
}

func (k *directionalKeys) open(dst, ad []byte, pn uint64, ciphertext []byte) ([]byte, error) {
	return k.aead.Open(dst, k.nonce(pn), ciphertext, ad)
}

// epochKeys holds both directions' keys for one encryption level.
type epochKeys struct {
	opener *directionalKeys
	sealer *directionalKeys
}

func (e *epochKeys) ready() bool {
	return e != nil && e.opener != nil && e.sealer != nil
}

// --- RFC 9001 section 5.2: Initial secrets, derived from the client's
// first destination connection ID via HKDF, independent of the TLS
// handshake. ---

var initialSalt = []byte{
	0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3, 0x4d, 0x17, 0x9a, 0xe6,
	0xa4, 0xc8, 0x0c, 0xad, 0xcc, 0xbb, 0x7f, 0x0a,
}

const (
	initialKeyLen = 16
	initialIVLen  = 12
	initialHPLen  = 16
)

func hkdfExpandLabel(secret []byte, label string, length int) []byte {
	// RFC 8446 section 7.1 HKDF-Expand-Label, specialized to the TLS 1.3
	// "tls13 " prefix with an empty context, as used throughout RFC 9001.
	info := make([]byte, 0, 2+1+6+len(label)+1)
	info = append(info, byte(length>>8), byte(length))
	fullLabel := "tls13 " + label
	info = append(info, byte(len(fullLabel)))
	info = append(info, fullLabel...)
	info = append(info, 0) // empty context
	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, secret, info)
	if _, err := r.Read(out); err != nil {
		panic("transport: hkdf expand: " + err.Error())
	}
	return out
}

// initialAEAD bundles both endpoints' Initial-epoch directional keys,
// derived together from a single connection ID (RFC 9001 section 5.2).
type initialAEAD struct {
	client *directionalKeys
	server *directionalKeys
}

func (a *initialAEAD) init(dcid []byte) error {
	initialSecret := hkdf.Extract(sha256.New, dcid, initialSalt)
	clientSecret := hkdfExpandLabel(initialSecret, "client in", sha256.Size)
	serverSecret := hkdfExpandLabel(initialSecret, "server in", sha256.Size)
	var err error
	a.client, err = deriveDirectionalKeys(SuiteAES128GCM, clientSecret)
	if err != nil {
		return err
	}
	a.server, err = deriveDirectionalKeys(SuiteAES128GCM, serverSecret)
	return err
}

func deriveDirectionalKeys(suite AEADSuite, secret []byte) (*directionalKeys, error) {
	key := hkdfExpandLabel(secret, "quic key", initialKeyLen)
	iv := hkdfExpandLabel(secret, "quic iv", initialIVLen)
	hp := hkdfExpandLabel(secret, "quic hp", initialHPLen)
	return newDirectionalKeys(suite, key, iv, hp)
}

// deriveEpochKeys turns a handshake-collaborator-supplied traffic secret
// pair into full AEAD+HP key material for a non-Initial epoch.
func deriveEpochKeys(suite AEADSuite, readSecret, writeSecret []byte, isClient bool) (*epochKeys, error) {
	keyLen := keyLenForSuite(suite)
	read, err := deriveDirectionalKeysLen(suite, readSecret, keyLen)
	if err != nil {
		return nil, err
	}
	write, err := deriveDirectionalKeysLen(suite, writeSecret, keyLen)
	if err != nil {
		return nil, err
	}
	return &epochKeys{opener: read, sealer: write}, nil
}

func deriveDirectionalKeysLen(suite AEADSuite, secret []byte, keyLen int) (*directionalKeys, error) {
	key := hkdfExpandLabel(secret, "quic key", keyLen)
	iv := hkdfExpandLabel(secret, "quic iv", initialIVLen)
	hp := hkdfExpandLabel(secret, "quic hp", keyLen)
	return newDirectionalKeys(suite, key, iv, hp)
}

// --- RFC 9001 section 5.8: Retry integrity tag, a fixed AEAD key/nonce per
// QUIC version used to authenticate a Retry packet's pseudo-header. ---

var (
	retryIntegrityKeyV1   = []byte{0xbe, 0x0c, 0x69, 0x0b, 0x9f, 0x66, 0x57, 0x5a, 0x1d, 0x76, 0x6b, 0x54, 0xe3, 0x68, 0xc8, 0x4e}
	retryIntegrityNonceV1 = []byte{0x46, 0x15, 0x99, 0xd3, 0x5d, 0x63, 0x2b, 0xf2, 0x23, 0x98, 0x25, 0xbb}
)

// computeRetryIntegrityTag returns the 16-byte tag over the pseudo-header
// (original DCID length-prefixed) followed by the Retry packet contents
// excluding the tag itself.
func computeRetryIntegrityTag(odcid, retryPacketWithoutTag []byte) ([16]byte, error) {
	block, err := aes.NewCipher(retryIntegrityKeyV1)
	if err != nil {
		return [16]byte{}, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return [16]byte{}, err
	}
	pseudo := make([]byte, 0, 1+len(odcid)+len(retryPacketWithoutTag))
	pseudo = append(pseudo, byte(len(odcid)))
	pseudo = append(pseudo, odcid...)
	pseudo = append(pseudo, retryPacketWithoutTag...)
	sealed := aead.Seal(nil, retryIntegrityNonceV1, nil, pseudo)
	var tag [16]byte
	copy(tag[:], sealed)
	return tag, nil
}

func verifyRetryIntegrity(datagram, odcid []byte) bool {
	if len(datagram) < 16 {
		return false
	}
	body := datagram[:len(datagram)-16]
	want, err := computeRetryIntegrityTag(odcid, body)
	if err != nil {
		return false
	}
	var got [16]byte
	copy(got[:], datagram[len(datagram)-16:])
	return want == got
}

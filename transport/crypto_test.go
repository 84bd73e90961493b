package transport

import (
	"bytes"
	"testing"
)

func TestInitialAEADClientServerDistinct(t *testing.T) {
	dcid := []byte{0x83, 0x94, 0xc8, 0xf0, 0x3e, 0x51, 0x57, 0x08}
	var a initialAEAD
	if err := a.init(dcid); err != nil {
		t.Fatal(err)
	}
	if a.client == nil || a.server == nil {
		t.Fatal("expected both directions derived")
	}
	plaintext := []byte("initial packet payload")
	ad := []byte{0x01, 0x02, 0x03}
	sealed := a.client.seal(nil, ad, 2, plaintext)
	if bytes.Equal(sealed, plaintext) {
		t.Fatal("seal did not transform plaintext")
	}
	opened, err := a.server.open(nil, ad, 2, sealed)
	if err == nil {
		t.Fatal("expected server keys to fail opening a client-sealed packet (directions differ)")
	}
	_ = opened
	opened, err = a.client.open(nil, ad, 2, sealed)
	if err != nil {
		t.Fatalf("same-direction open failed unexpectedly: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened %q, want %q", opened, plaintext)
	}
}

func TestDirectionalKeysSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 16)
	iv := bytes.Repeat([]byte{0x22}, 12)
	hp := bytes.Repeat([]byte{0x33}, 16)
	k, err := newDirectionalKeys(SuiteAES128GCM, key, iv, hp)
	if err != nil {
		t.Fatal(err)
	}
	ad := []byte("header bytes")
	plaintext := []byte("stream data goes here")
	sealed := k.seal(nil, ad, 42, plaintext)
	opened, err := k.open(nil, ad, 42, sealed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened %q, want %q", opened, plaintext)
	}
	if _, err := k.open(nil, ad, 43, sealed); err == nil {
		t.Fatal("expected open with wrong packet number to fail")
	}
}

func TestDirectionalKeysChaCha20(t *testing.T) {
	key := bytes.Repeat([]byte{0x44}, 32)
	iv := bytes.Repeat([]byte{0x55}, 12)
	hp := bytes.Repeat([]byte{0x66}, 32)
	k, err := newDirectionalKeys(SuiteChaCha20Poly1305, key, iv, hp)
	if err != nil {
		t.Fatal(err)
	}
	ad := []byte("ad")
	plaintext := []byte("chacha payload")
	sealed := k.seal(nil, ad, 1, plaintext)
	opened, err := k.open(nil, ad, 1, sealed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened %q, want %q", opened, plaintext)
	}
}

func TestRetryIntegrityTagRoundTrip(t *testing.T) {
	odcid := []byte{0xde, 0xad, 0xbe, 0xef}
	body := []byte("retry packet header and token bytes")
	tag, err := computeRetryIntegrityTag(odcid, body)
	if err != nil {
		t.Fatal(err)
	}
	datagram := append(append([]byte{}, body...), tag[:]...)
	if !verifyRetryIntegrity(datagram, odcid) {
		t.Fatal("expected retry integrity to verify")
	}
	datagram[0] ^= 0xff
	if verifyRetryIntegrity(datagram, odcid) {
		t.Fatal("expected tampered retry packet to fail verification")
	}
}

func TestDeriveEpochKeysAES256(t *testing.T) {
	readSecret := bytes.Repeat([]byte{0x77}, 32)
	writeSecret := bytes.Repeat([]byte{0x88}, 32)
	keys, err := deriveEpochKeys(SuiteAES256GCM, readSecret, writeSecret, true)
	if err != nil {
		t.Fatal(err)
	}
	if !keys.ready() {
		t.Fatal("expected epoch keys to be ready")
	}
}

package transport

import (
	"bytes"
	"testing"
	"time"
)

func TestParametersRoundTrip(t *testing.T) {
	p := Parameters{
		OriginalDestinationCID:         []byte{1, 2, 3},
		MaxIdleTimeout:                 30 * time.Second,
		StatelessResetToken:            bytes.Repeat([]byte{0xab}, 16),
		MaxUDPPayloadSize:              1452,
		InitialMaxData:                 1 << 20,
		InitialMaxStreamDataBidiLocal:  1 << 18,
		InitialMaxStreamDataBidiRemote: 1 << 17,
		InitialMaxStreamDataUni:        1 << 16,
		InitialMaxStreamsBidi:          100,
		InitialMaxStreamsUni:           3,
		AckDelayExponent:               5,
		MaxAckDelay:                    40000,
		DisableActiveMigration:         true,
		ActiveConnectionIDLimit:        4,
		InitialSourceCID:               []byte{4, 5, 6, 7},
		RetrySourceCID:                 []byte{8, 9},
	}
	b := p.encode()
	var q Parameters
	if err := q.decode(b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(q.OriginalDestinationCID, p.OriginalDestinationCID) {
		t.Fatalf("odcid = %x", q.OriginalDestinationCID)
	}
	if q.MaxIdleTimeout != p.MaxIdleTimeout {
		t.Fatalf("idle = %v", q.MaxIdleTimeout)
	}
	if !bytes.Equal(q.StatelessResetToken, p.StatelessResetToken) {
		t.Fatalf("reset token = %x", q.StatelessResetToken)
	}
	if q.MaxUDPPayloadSize != p.MaxUDPPayloadSize {
		t.Fatalf("udp payload = %d", q.MaxUDPPayloadSize)
	}
	if q.InitialMaxData != p.InitialMaxData ||
		q.InitialMaxStreamDataBidiLocal != p.InitialMaxStreamDataBidiLocal ||
		q.InitialMaxStreamDataBidiRemote != p.InitialMaxStreamDataBidiRemote ||
		q.InitialMaxStreamDataUni != p.InitialMaxStreamDataUni {
		t.Fatal("flow control parameters do not round trip")
	}
	if q.InitialMaxStreamsBidi != 100 || q.InitialMaxStreamsUni != 3 {
		t.Fatal("stream limits do not round trip")
	}
	if q.AckDelayExponent != 5 {
		t.Fatalf("ack delay exponent = %d", q.AckDelayExponent)
	}
	if q.MaxAckDelay != 40000 {
		t.Fatalf("max ack delay = %d", q.MaxAckDelay)
	}
	if !q.DisableActiveMigration {
		t.Fatal("disable migration flag lost")
	}
	if q.ActiveConnectionIDLimit != 4 {
		t.Fatalf("cid limit = %d", q.ActiveConnectionIDLimit)
	}
	if !bytes.Equal(q.InitialSourceCID, p.InitialSourceCID) || !bytes.Equal(q.RetrySourceCID, p.RetrySourceCID) {
		t.Fatal("cids do not round trip")
	}
}

func TestParametersDecodeIgnoresUnknown(t *testing.T) {
	var b []byte
	b = appendVarint(b, 0x40) // unknown id
	b = appendVarint(b, 2)
	b = append(b, 0xde, 0xad)
	b = appendVarint(b, 0x04) // initial_max_data
	val := appendVarint(nil, 777)
	b = appendVarint(b, uint64(len(val)))
	b = append(b, val...)
	var p Parameters
	if err := p.decode(b); err != nil {
		t.Fatal(err)
	}
	if p.InitialMaxData != 777 {
		t.Fatalf("initial max data = %d, want 777", p.InitialMaxData)
	}
}

func TestParametersDecodeTruncatedValue(t *testing.T) {
	var b []byte
	b = appendVarint(b, 0x04)
	b = appendVarint(b, 9) // claims 9 bytes, none follow
	var p Parameters
	if err := p.decode(b); err == nil {
		t.Fatal("expected truncated parameter to be rejected")
	}
}

func TestParametersAckDelayExponentDefault(t *testing.T) {
	var p Parameters
	if err := p.decode(nil); err != nil {
		t.Fatal(err)
	}
	if p.AckDelayExponent != 3 {
		t.Fatalf("default ack delay exponent = %d, want 3", p.AckDelayExponent)
	}
}

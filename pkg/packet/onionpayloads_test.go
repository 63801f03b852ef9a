package packet

import (
	"bytes"
	"testing"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
)

func TestOnionAnnounceRequestPayloadRoundTrip(t *testing.T) {
	p := OnionAnnounceRequestPayload{
		PK:     mustPK(t, 0x11),
		DataPK: mustPK(t, 0x22),
	}
	p.PingID[0] = 0xab

	decoded, err := DecodeOnionAnnounceRequestPayload(p.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.PK != p.PK || decoded.DataPK != p.DataPK || decoded.PingID != p.PingID {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, p)
	}
}

func TestOnionAnnounceResponsePayloadRoundTrip(t *testing.T) {
	p := OnionAnnounceResponsePayload{
		Status: OnionAnnounceAnnounced,
		Nodes: []PackedNode{
			{Addr: mustSocketAddr(t), PK: mustPK(t, 0x33)},
		},
	}
	p.PingID[0] = 0xcd

	encoded, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeOnionAnnounceResponsePayload(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Status != p.Status || decoded.PingID != p.PingID {
		t.Errorf("scalar mismatch: got %+v, want %+v", decoded, p)
	}
	if len(decoded.Nodes) != 1 || decoded.Nodes[0].PK != p.Nodes[0].PK {
		t.Errorf("nodes mismatch: got %+v", decoded.Nodes)
	}
}

func TestOnionAnnounceResponseRejectsTooManyNodes(t *testing.T) {
	nodes := make([]PackedNode, 5)
	for i := range nodes {
		nodes[i] = PackedNode{Addr: mustSocketAddr(t), PK: mustPK(t, byte(i))}
	}
	p := OnionAnnounceResponsePayload{Nodes: nodes}
	if _, err := p.Encode(); err == nil {
		t.Error("expected error encoding more than 4 nodes")
	}
}

func TestOnionDataRequestPayloadRoundTrip(t *testing.T) {
	p := OnionDataRequestPayload{
		DestPK: mustPK(t, 0x44),
		NonceP: mustPK(t, 0x55),
		Inner:  []byte("opaque inner ciphertext"),
	}
	decoded, err := DecodeOnionDataRequestPayload(p.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.DestPK != p.DestPK || decoded.NonceP != p.NonceP {
		t.Errorf("key mismatch: got %+v, want %+v", decoded, p)
	}
	if !bytes.Equal(decoded.Inner, p.Inner) {
		t.Errorf("inner mismatch: got %q, want %q", decoded.Inner, p.Inner)
	}
}

func TestOnionDataResponsePayloadRoundTrip(t *testing.T) {
	var nonce cryptobox.Nonce
	nonce[0] = 0x42
	p := OnionDataResponsePayload{
		SenderTempPK: mustPK(t, 0x66),
		Nonce:        nonce,
		Inner:        []byte("reply payload"),
	}
	decoded, err := DecodeOnionDataResponsePayload(p.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.SenderTempPK != p.SenderTempPK || decoded.Nonce != p.Nonce {
		t.Errorf("key/nonce mismatch: got %+v, want %+v", decoded, p)
	}
	if !bytes.Equal(decoded.Inner, p.Inner) {
		t.Errorf("inner mismatch: got %q, want %q", decoded.Inner, p.Inner)
	}
}

func mustSocketAddr(t *testing.T) SocketAddr {
	t.Helper()
	addr, err := NewSocketAddr([]byte{127, 0, 0, 1}, 33445)
	if err != nil {
		t.Fatalf("NewSocketAddr: %v", err)
	}
	return addr
}

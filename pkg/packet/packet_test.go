package packet

import (
	"net"
	"testing"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
)

func mustPK(t *testing.T, b byte) cryptobox.PublicKey {
	t.Helper()
	var pk cryptobox.PublicKey
	pk[0] = b
	return pk
}

func TestSocketAddrRoundTripIPv4(t *testing.T) {
	addr, err := NewSocketAddr(net.ParseIP("127.0.0.1"), 33445)
	if err != nil {
		t.Fatalf("NewSocketAddr: %v", err)
	}
	encoded, err := addr.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, rest, err := DecodeSocketAddr(encoded)
	if err != nil {
		t.Fatalf("DecodeSocketAddr: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(rest))
	}
	if !decoded.IP.Equal(addr.IP) || decoded.Port != addr.Port || decoded.Family != addr.Family {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, addr)
	}
}

func TestSocketAddrRoundTripIPv6(t *testing.T) {
	addr, err := NewSocketAddr(net.ParseIP("fe80::1"), 1234)
	if err != nil {
		t.Fatalf("NewSocketAddr: %v", err)
	}
	encoded, err := addr.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(encoded) != addr.EncodedLen() {
		t.Errorf("EncodedLen mismatch: got %d, want %d", addr.EncodedLen(), len(encoded))
	}
	decoded, _, err := DecodeSocketAddr(encoded)
	if err != nil {
		t.Fatalf("DecodeSocketAddr: %v", err)
	}
	if !decoded.IP.Equal(addr.IP) {
		t.Errorf("IP mismatch: got %v, want %v", decoded.IP, addr.IP)
	}
}

func TestIsGlobal(t *testing.T) {
	loopback, _ := NewSocketAddr(net.ParseIP("127.0.0.1"), 1)
	linkLocal, _ := NewSocketAddr(net.ParseIP("169.254.1.1"), 1)
	global, _ := NewSocketAddr(net.ParseIP("8.8.8.8"), 1)

	if loopback.IsGlobal() {
		t.Error("loopback should not be global")
	}
	if linkLocal.IsGlobal() {
		t.Error("link-local should not be global")
	}
	if !global.IsGlobal() {
		t.Error("8.8.8.8 should be global")
	}
}

func TestPackedNodeRoundTrip(t *testing.T) {
	addr, _ := NewSocketAddr(net.ParseIP("10.0.0.5"), 33445)
	node := PackedNode{Addr: addr, PK: mustPK(t, 0xAB)}

	encoded, err := node.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, rest, err := DecodePackedNode(encoded)
	if err != nil {
		t.Fatalf("DecodePackedNode: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(rest))
	}
	if decoded.PK != node.PK || !decoded.Addr.IP.Equal(node.Addr.IP) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, node)
	}
}

func TestNodeListRoundTripCapsAtFour(t *testing.T) {
	addr, _ := NewSocketAddr(net.ParseIP("10.0.0.5"), 33445)
	nodes := make([]PackedNode, 5)
	for i := range nodes {
		nodes[i] = PackedNode{Addr: addr, PK: mustPK(t, byte(i))}
	}
	if _, err := EncodeNodeList(nodes); err == nil {
		t.Error("expected error encoding more than 4 nodes")
	}

	encoded, err := EncodeNodeList(nodes[:4])
	if err != nil {
		t.Fatalf("EncodeNodeList: %v", err)
	}
	decoded, rest, err := DecodeNodeList(encoded)
	if err != nil {
		t.Fatalf("DecodeNodeList: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(rest))
	}
	if len(decoded) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(decoded))
	}
	for i, n := range decoded {
		if n.PK != nodes[i].PK {
			t.Errorf("node %d PK mismatch", i)
		}
	}
}

func TestEnvelopeRoundTripEncrypted(t *testing.T) {
	var senderPK cryptobox.PublicKey
	senderPK[3] = 0x55
	var nonce cryptobox.Nonce
	nonce[0] = 0x11

	env := Envelope{
		Kind:     KindPingRequest,
		SenderPK: senderPK,
		Nonce:    nonce,
		Body:     []byte{1, 2, 3, 4},
	}
	decoded, err := Decode(env.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Kind != env.Kind || decoded.SenderPK != env.SenderPK || decoded.Nonce != env.Nonce {
		t.Errorf("envelope header mismatch: got %+v", decoded)
	}
	if string(decoded.Body) != string(env.Body) {
		t.Errorf("body mismatch: got %v, want %v", decoded.Body, env.Body)
	}
}

func TestEnvelopeRoundTripPlaintext(t *testing.T) {
	env := Envelope{Kind: KindLanDiscovery, Body: []byte{9, 9, 9}}
	decoded, err := Decode(env.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Kind != KindLanDiscovery {
		t.Errorf("expected KindLanDiscovery, got %s", decoded.Kind)
	}
	if string(decoded.Body) != string(env.Body) {
		t.Errorf("body mismatch: got %v, want %v", decoded.Body, env.Body)
	}
}

func TestPingPayloadRoundTrip(t *testing.T) {
	p := PingPayload{ID: 0xdeadbeefcafef00d}
	decoded, err := DecodePingPayload(p.Encode())
	if err != nil {
		t.Fatalf("DecodePingPayload: %v", err)
	}
	if decoded.ID != p.ID {
		t.Errorf("got %d, want %d", decoded.ID, p.ID)
	}
}

func TestBootstrapInfoPayloadRoundTrip(t *testing.T) {
	p := BootstrapInfoPayload{Version: 42, Motd: []byte("hello world")}
	encoded, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeBootstrapInfoPayload(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Version != p.Version || string(decoded.Motd) != string(p.Motd) {
		t.Errorf("roundtrip mismatch: got %+v", decoded)
	}
}

func TestBootstrapInfoPayloadRejectsOversizedMotd(t *testing.T) {
	p := BootstrapInfoPayload{Motd: make([]byte, 256)}
	if _, err := p.Encode(); err == nil {
		t.Error("expected error for motd over 255 bytes")
	}
}

func TestDhtRequestPayloadRoundTrip(t *testing.T) {
	p := DhtRequestPayload{
		ReceiverPK: mustPK(t, 1),
		SenderPK:   mustPK(t, 2),
		Inner:      []byte{0xAA, 0xBB},
	}
	decoded, err := DecodeDhtRequestPayload(p.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ReceiverPK != p.ReceiverPK || decoded.SenderPK != p.SenderPK {
		t.Errorf("header mismatch: got %+v", decoded)
	}
	if string(decoded.Inner) != string(p.Inner) {
		t.Errorf("inner mismatch: got %v, want %v", decoded.Inner, p.Inner)
	}
}

package onionforward

import (
	"net"
	"testing"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

func testAddr(t *testing.T, port uint16) packet.SocketAddr {
	t.Helper()
	addr, err := packet.NewSocketAddr(net.ParseIP("203.0.113.1"), port)
	if err != nil {
		t.Fatalf("NewSocketAddr: %v", err)
	}
	return addr
}

func TestOnionReturnSealOpenRoundTrip(t *testing.T) {
	key, err := cryptobox.GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey: %v", err)
	}
	r := OnionReturn{Protocol: ProtocolUDP, Addr: testAddr(t, 1234)}
	cookie, err := Seal(key, r)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	decoded, err := Open(key, nil, cookie)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if decoded.Protocol != r.Protocol || !decoded.Addr.IP.Equal(r.Addr.IP) || decoded.Addr.Port != r.Addr.Port {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, r)
	}
	if len(decoded.Inner) != 0 {
		t.Errorf("expected no inner return, got %d bytes", len(decoded.Inner))
	}
}

func TestOnionReturnNestedLayers(t *testing.T) {
	key, err := cryptobox.GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey: %v", err)
	}
	innermost, err := Seal(key, OnionReturn{Protocol: ProtocolTCP, Addr: testAddr(t, 1)})
	if err != nil {
		t.Fatalf("Seal innermost: %v", err)
	}
	middle, err := Seal(key, OnionReturn{Protocol: ProtocolUDP, Addr: testAddr(t, 2), Inner: innermost})
	if err != nil {
		t.Fatalf("Seal middle: %v", err)
	}

	decoded, err := Open(key, nil, middle)
	if err != nil {
		t.Fatalf("Open middle: %v", err)
	}
	if len(decoded.Inner) == 0 {
		t.Fatal("expected middle layer to carry an inner return")
	}
	innerDecoded, err := Open(key, nil, decoded.Inner)
	if err != nil {
		t.Fatalf("Open inner: %v", err)
	}
	if innerDecoded.Protocol != ProtocolTCP || innerDecoded.Addr.Port != 1 {
		t.Errorf("unexpected innermost layer: %+v", innerDecoded)
	}
}

func TestOnionReturnToleratesPreviousKey(t *testing.T) {
	oldKey, err := cryptobox.GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey: %v", err)
	}
	newKey, err := cryptobox.GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey: %v", err)
	}
	cookie, err := Seal(oldKey, OnionReturn{Protocol: ProtocolUDP, Addr: testAddr(t, 42)})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(newKey, nil, cookie); err == nil {
		t.Fatal("expected decryption under only the new key to fail")
	}
	if _, err := Open(newKey, &oldKey, cookie); err != nil {
		t.Fatalf("expected decryption to succeed with previous key fallback: %v", err)
	}
}

func TestOnionReturnRejectsTamperedCookie(t *testing.T) {
	key, err := cryptobox.GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey: %v", err)
	}
	cookie, err := Seal(key, OnionReturn{Protocol: ProtocolUDP, Addr: testAddr(t, 7)})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	cookie[len(cookie)-1] ^= 0xFF
	if _, err := Open(key, nil, cookie); err == nil {
		t.Error("expected tampered cookie to fail decryption")
	}
}

func TestOpenRequestLayerRoundTrip(t *testing.T) {
	destPK, destSK, err := cryptobox.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	ephPK, ephSK, err := cryptobox.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	addr := testAddr(t, 55)
	addrBytes, err := addr.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	payload := append(addrBytes, []byte("next layer ciphertext")...)

	shared := cryptobox.Precompute(destPK, ephSK)
	nonce, ciphertext, err := cryptobox.Seal(shared, payload)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	layer, err := OpenRequestLayer(destSK, ephPK, nonce, ciphertext)
	if err != nil {
		t.Fatalf("OpenRequestLayer: %v", err)
	}
	if layer.NextAddr.Port != 55 {
		t.Errorf("expected port 55, got %d", layer.NextAddr.Port)
	}
	if string(layer.Payload) != "next layer ciphertext" {
		t.Errorf("unexpected payload: %q", layer.Payload)
	}
}

func TestResponseLayerIsInnermost(t *testing.T) {
	r := ResponseLayer{}
	if !r.IsInnermost() {
		t.Error("expected empty inner return to be innermost")
	}
	r.InnerReturn = []byte{1}
	if r.IsInnermost() {
		t.Error("expected non-empty inner return to not be innermost")
	}
}

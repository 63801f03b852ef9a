package onionforward

import (
	"fmt"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dhterrors"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// RequestLayer is the decrypted body of an OnionRequest0/1/2: the address
// to forward to next, and the still-encrypted payload for the next hop
// (nil at the innermost layer, where Payload is the final destination
// payload instead).
type RequestLayer struct {
	NextAddr packet.SocketAddr
	Payload  []byte
}

func decodeRequestLayer(data []byte) (RequestLayer, error) {
	addr, rest, err := packet.DecodeSocketAddr(data)
	if err != nil {
		return RequestLayer{}, fmt.Errorf("onionforward: decoding next-hop address: %w", err)
	}
	return RequestLayer{NextAddr: addr, Payload: append([]byte(nil), rest...)}, nil
}

// OpenRequestLayer decrypts one onion request layer. senderEphemeralPK is
// the ephemeral key carried alongside the encrypted layer; ourSK is the
// server's DHT secret key. Returns the next hop's address and the
// ciphertext to forward (still encrypted for the next hop's key, opaque
// to us).
func OpenRequestLayer(ourSK cryptobox.SecretKey, senderEphemeralPK cryptobox.PublicKey, nonce cryptobox.Nonce, ciphertext []byte) (RequestLayer, error) {
	shared := cryptobox.Precompute(senderEphemeralPK, ourSK)
	plaintext, ok := cryptobox.Open(shared, nonce, ciphertext)
	if !ok {
		return RequestLayer{}, dhterrors.Decrypt(fmt.Errorf("onion request layer authentication failed"))
	}
	return decodeRequestLayer(plaintext)
}

// WrapReturn builds the OnionReturn this hop appends for the response
// path: it binds where the request came from (so the response can be
// routed back) and, for non-innermost hops, the previous hop's own
// OnionReturn cookie (spec §4.5).
func WrapReturn(key cryptobox.SymmetricKey, fromAddr packet.SocketAddr, protocol Protocol, innerReturn []byte) ([]byte, error) {
	return Seal(key, OnionReturn{Protocol: protocol, Addr: fromAddr, Inner: innerReturn})
}

// ResponseLayer is the decoded form of an OnionResponse: where to forward
// the still-sealed inner response payload, by which transport, and
// whether this is the innermost hop (no further OnionReturn to peel).
type ResponseLayer struct {
	Addr        packet.SocketAddr
	Protocol    Protocol
	InnerReturn []byte // empty at the innermost hop
}

// OpenResponseReturn decrypts the OnionReturn cookie carried by an
// OnionResponse, tolerating the current and immediately-previous
// symmetric key generation (spec §4.5, "Tolerance of one previous-key
// generation").
func OpenResponseReturn(currentKey cryptobox.SymmetricKey, previousKey *cryptobox.SymmetricKey, cookie []byte) (ResponseLayer, error) {
	r, err := Open(currentKey, previousKey, cookie)
	if err != nil {
		return ResponseLayer{}, err
	}
	return ResponseLayer{Addr: r.Addr, Protocol: r.Protocol, InnerReturn: r.Inner}, nil
}

// IsInnermost reports whether this response layer carries no further
// OnionReturn to peel — i.e. it names the final (ip, port, protocol) the
// payload should be delivered to.
func (r ResponseLayer) IsInnermost() bool {
	return len(r.InnerReturn) == 0
}

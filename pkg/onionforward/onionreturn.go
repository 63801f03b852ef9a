// Package onionforward implements the three-layer onion request/response
// relay: each hop decrypts one request layer with the server's DHT secret
// key, builds a symmetric-key OnionReturn cookie binding the previous
// hop's address, and forwards the next layer onward. Responses reverse
// the process one layer at a time using only the OnionReturn cookies,
// never any per-circuit state (spec §4.5).
package onionforward

import (
	"fmt"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dhterrors"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// Protocol identifies the transport the innermost response should be
// delivered over.
type Protocol byte

const (
	ProtocolUDP Protocol = 0
	ProtocolTCP Protocol = 1
)

// OnionReturn is the decoded form of a return cookie: the address to send
// the response back to, the transport to use, and — for outer layers —
// the still-encrypted cookie for the next hop out.
type OnionReturn struct {
	Protocol Protocol
	Addr     packet.SocketAddr
	Inner    []byte // sealed inner OnionReturn, nil at the innermost layer
}

func (r OnionReturn) plaintext() ([]byte, error) {
	encodedAddr, err := r.Addr.Encode(nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(encodedAddr)+len(r.Inner))
	out = append(out, byte(r.Protocol))
	out = append(out, encodedAddr...)
	out = append(out, r.Inner...)
	return out, nil
}

func decodeOnionReturnPlaintext(data []byte) (OnionReturn, error) {
	if len(data) < 1 {
		return OnionReturn{}, fmt.Errorf("onionforward: empty onion return plaintext")
	}
	proto := Protocol(data[0])
	addr, rest, err := packet.DecodeSocketAddr(data[1:])
	if err != nil {
		return OnionReturn{}, fmt.Errorf("onionforward: decoding onion return address: %w", err)
	}
	var inner []byte
	if len(rest) > 0 {
		inner = append([]byte(nil), rest...)
	}
	return OnionReturn{Protocol: proto, Addr: addr, Inner: inner}, nil
}

// Seal encrypts r under key, producing the wire-format cookie: a nonce
// followed by the secretbox ciphertext. The cookie is a flat byte blob
// with no pointer-based structure, even when it wraps an inner return
// (spec §9).
func Seal(key cryptobox.SymmetricKey, r OnionReturn) ([]byte, error) {
	plaintext, err := r.plaintext()
	if err != nil {
		return nil, err
	}
	nonce, sealed, err := cryptobox.SealSymmetric(key, plaintext)
	if err != nil {
		return nil, dhterrors.Wrap(dhterrors.KindUnhandled, "sealing onion return", err)
	}
	out := make([]byte, 0, cryptobox.NonceSize+len(sealed))
	out = append(out, nonce[:]...)
	return append(out, sealed...), nil
}

// Open decrypts cookie, trying currentKey first and then previousKey (if
// non-nil) to tolerate a key rotation that happened mid-flight (spec
// §4.5, "tolerance of one previous-key generation").
func Open(currentKey cryptobox.SymmetricKey, previousKey *cryptobox.SymmetricKey, cookie []byte) (OnionReturn, error) {
	if len(cookie) < cryptobox.NonceSize {
		return OnionReturn{}, dhterrors.OnionReturnInvalid(fmt.Errorf("cookie too short: %d bytes", len(cookie)))
	}
	var nonce cryptobox.Nonce
	copy(nonce[:], cookie[:cryptobox.NonceSize])
	ciphertext := cookie[cryptobox.NonceSize:]

	plaintext, ok := cryptobox.OpenSymmetric(currentKey, nonce, ciphertext)
	if !ok && previousKey != nil {
		plaintext, ok = cryptobox.OpenSymmetric(*previousKey, nonce, ciphertext)
	}
	if !ok {
		return OnionReturn{}, dhterrors.OnionReturnInvalid(fmt.Errorf("decryption failed under current and previous key"))
	}
	r, err := decodeOnionReturnPlaintext(plaintext)
	if err != nil {
		return OnionReturn{}, dhterrors.OnionReturnInvalid(err)
	}
	return r, nil
}

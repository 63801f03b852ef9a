package packet

import (
	"fmt"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
)

// Envelope is the outer, on-the-wire shape shared by every packet kind:
// a kind tag, and either (sender PK, nonce, ciphertext) for encrypted
// kinds or a bare plaintext body for LanDiscovery/BootstrapInfo.
type Envelope struct {
	Kind     Kind
	SenderPK cryptobox.PublicKey
	Nonce    cryptobox.Nonce
	Body     []byte
}

// Encode serializes the envelope to its wire form.
func (e Envelope) Encode() []byte {
	if !e.Kind.IsEncrypted() {
		out := make([]byte, 0, 1+len(e.Body))
		out = append(out, byte(e.Kind))
		return append(out, e.Body...)
	}
	out := make([]byte, 0, 1+cryptobox.PublicKeySize+cryptobox.NonceSize+len(e.Body))
	out = append(out, byte(e.Kind))
	out = append(out, e.SenderPK[:]...)
	out = append(out, e.Nonce[:]...)
	return append(out, e.Body...)
}

// Decode parses a wire-format envelope. The caller still needs to
// authenticate-decrypt Body (for encrypted kinds) to recover the inner
// payload.
func Decode(data []byte) (Envelope, error) {
	if len(data) < 1 {
		return Envelope{}, fmt.Errorf("packet: empty packet")
	}
	kind := Kind(data[0])
	rest := data[1:]

	if !kind.IsEncrypted() {
		body := make([]byte, len(rest))
		copy(body, rest)
		return Envelope{Kind: kind, Body: body}, nil
	}

	headerLen := cryptobox.PublicKeySize + cryptobox.NonceSize
	if len(rest) < headerLen {
		return Envelope{}, fmt.Errorf("packet: truncated %s envelope: need %d bytes, have %d", kind, headerLen, len(rest))
	}
	var e Envelope
	e.Kind = kind
	copy(e.SenderPK[:], rest[:cryptobox.PublicKeySize])
	copy(e.Nonce[:], rest[cryptobox.PublicKeySize:headerLen])
	e.Body = make([]byte, len(rest)-headerLen)
	copy(e.Body, rest[headerLen:])
	return e, nil
}

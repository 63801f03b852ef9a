package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
)

// InnerKind identifies the kind of the payload carried inside a decrypted
// DhtRequest. These kinds never appear as a bare top-level Kind — they are
// reserved for this one nesting (spec §4.2, §9).
type InnerKind byte

const (
	InnerKindNatPingRequest  InnerKind = 0x00
	InnerKindNatPingResponse InnerKind = 0x01
	InnerKindDhtPkAnnounce   InnerKind = 0x02
)

func (k InnerKind) String() string {
	switch k {
	case InnerKindNatPingRequest:
		return "NatPingRequest"
	case InnerKindNatPingResponse:
		return "NatPingResponse"
	case InnerKindDhtPkAnnounce:
		return "DhtPkAnnounce"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(k))
	}
}

// DhtRequestPayload is the decrypted body of a DhtRequest envelope: it
// names the intended final recipient (so a relaying node that is not the
// recipient can forward it unopened) and carries its own sender PK, nonce,
// and ciphertext for the inner NatPing/DhtPkAnnounce payload.
type DhtRequestPayload struct {
	ReceiverPK cryptobox.PublicKey
	SenderPK   cryptobox.PublicKey
	Nonce      cryptobox.Nonce
	Inner      []byte // ciphertext; decrypts to a 1-byte InnerKind + payload
}

func (p DhtRequestPayload) Encode() []byte {
	out := make([]byte, 0, cryptobox.PublicKeySize*2+cryptobox.NonceSize+len(p.Inner))
	out = append(out, p.ReceiverPK[:]...)
	out = append(out, p.SenderPK[:]...)
	out = append(out, p.Nonce[:]...)
	return append(out, p.Inner...)
}

func DecodeDhtRequestPayload(data []byte) (DhtRequestPayload, error) {
	headerLen := cryptobox.PublicKeySize*2 + cryptobox.NonceSize
	if len(data) < headerLen {
		return DhtRequestPayload{}, fmt.Errorf("packet: truncated dht request payload")
	}
	var p DhtRequestPayload
	copy(p.ReceiverPK[:], data[:cryptobox.PublicKeySize])
	copy(p.SenderPK[:], data[cryptobox.PublicKeySize:cryptobox.PublicKeySize*2])
	copy(p.Nonce[:], data[cryptobox.PublicKeySize*2:headerLen])
	p.Inner = append([]byte(nil), data[headerLen:]...)
	return p, nil
}

// NatPingPayload is the decrypted body of an inner NatPingRequest or
// NatPingResponse: an 8-byte ping-id, same shape as PingPayload but kept
// distinct since it only ever exists inside a DhtRequest.
type NatPingPayload struct {
	ID uint64
}

func (p NatPingPayload) Encode(kind InnerKind) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint64(buf[1:], p.ID)
	return buf
}

func DecodeNatPingPayload(data []byte) (NatPingPayload, error) {
	if len(data) < 9 {
		return NatPingPayload{}, fmt.Errorf("packet: truncated nat ping payload")
	}
	return NatPingPayload{ID: binary.LittleEndian.Uint64(data[1:9])}, nil
}

// DhtPkAnnouncePayload is the decrypted body of an inner DhtPkAnnounce: a
// friend announcing the DHT public key it will use, plus a signature. The
// core decodes it and drops it; it does not verify the signature (spec §9
// Open Questions — reserved until an onion-client consumer exists).
type DhtPkAnnouncePayload struct {
	AnnouncedPK cryptobox.PublicKey
	Signature   []byte
}

func (p DhtPkAnnouncePayload) Encode() []byte {
	out := make([]byte, 1, 1+cryptobox.PublicKeySize+len(p.Signature))
	out[0] = byte(InnerKindDhtPkAnnounce)
	out = append(out, p.AnnouncedPK[:]...)
	return append(out, p.Signature...)
}

func DecodeDhtPkAnnouncePayload(data []byte) (DhtPkAnnouncePayload, error) {
	if len(data) < 1+cryptobox.PublicKeySize {
		return DhtPkAnnouncePayload{}, fmt.Errorf("packet: truncated dht pk announce payload")
	}
	var p DhtPkAnnouncePayload
	copy(p.AnnouncedPK[:], data[1:1+cryptobox.PublicKeySize])
	p.Signature = append([]byte(nil), data[1+cryptobox.PublicKeySize:]...)
	return p, nil
}

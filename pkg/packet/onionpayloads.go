package packet

import (
	"fmt"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
)

// OnionAnnounceRequestPayload is the decrypted body of an
// OnionAnnounceRequest: the ping-id the sender believes is currently
// valid (zero on a first attempt), the sender's real long-term PK, and
// the data PK it wants announced for onion-client lookups.
type OnionAnnounceRequestPayload struct {
	PingID [32]byte
	PK     cryptobox.PublicKey
	DataPK cryptobox.PublicKey
}

func (p OnionAnnounceRequestPayload) Encode() []byte {
	out := make([]byte, 0, 32+cryptobox.PublicKeySize*2)
	out = append(out, p.PingID[:]...)
	out = append(out, p.PK[:]...)
	return append(out, p.DataPK[:]...)
}

func DecodeOnionAnnounceRequestPayload(data []byte) (OnionAnnounceRequestPayload, error) {
	want := 32 + cryptobox.PublicKeySize*2
	if len(data) < want {
		return OnionAnnounceRequestPayload{}, fmt.Errorf("packet: truncated onion announce request payload: need %d, have %d", want, len(data))
	}
	var p OnionAnnounceRequestPayload
	copy(p.PingID[:], data[:32])
	copy(p.PK[:], data[32:32+cryptobox.PublicKeySize])
	copy(p.DataPK[:], data[32+cryptobox.PublicKeySize:want])
	return p, nil
}

// OnionAnnounceStatus is the 1-byte result code in an
// OnionAnnounceResponse.
type OnionAnnounceStatus byte

const (
	OnionAnnounceFailed    OnionAnnounceStatus = 0
	OnionAnnounceAnnounced OnionAnnounceStatus = 1
)

// OnionAnnounceResponsePayload is the decrypted body of an
// OnionAnnounceResponse: the status, the ping-id to retry with (valid
// whether the attempt succeeded or failed), and up to 4 nodes closer to
// the announcer's PK to help it retry against a better relay.
type OnionAnnounceResponsePayload struct {
	Status OnionAnnounceStatus
	PingID [32]byte
	Nodes  []PackedNode
}

func (p OnionAnnounceResponsePayload) Encode() ([]byte, error) {
	if len(p.Nodes) > 4 {
		return nil, fmt.Errorf("packet: onion announce response carries %d nodes, max is 4", len(p.Nodes))
	}
	nodeBytes, err := EncodeNodeList(p.Nodes)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+32+len(nodeBytes))
	out = append(out, byte(p.Status))
	out = append(out, p.PingID[:]...)
	return append(out, nodeBytes...), nil
}

func DecodeOnionAnnounceResponsePayload(data []byte) (OnionAnnounceResponsePayload, error) {
	if len(data) < 1+32 {
		return OnionAnnounceResponsePayload{}, fmt.Errorf("packet: truncated onion announce response payload")
	}
	var p OnionAnnounceResponsePayload
	p.Status = OnionAnnounceStatus(data[0])
	copy(p.PingID[:], data[1:33])
	nodes, _, err := DecodeNodeList(data[33:])
	if err != nil {
		return OnionAnnounceResponsePayload{}, err
	}
	p.Nodes = nodes
	return p, nil
}

// OnionDataRequestPayload is the decrypted body of an OnionDataRequest:
// the destination announcer's PK (looked up in the onion announce
// table), the sender's own temporary DHT PK for the reply path, a nonce,
// and the inner ciphertext meant for the announcer's onion-client layer
// (opaque to the DHT node; it only relays).
type OnionDataRequestPayload struct {
	DestPK cryptobox.PublicKey
	NonceP cryptobox.PublicKey // sender's temporary PK, reusing PublicKeySize
	Nonce  cryptobox.Nonce
	Inner  []byte
}

func (p OnionDataRequestPayload) Encode() []byte {
	out := make([]byte, 0, cryptobox.PublicKeySize*2+cryptobox.NonceSize+len(p.Inner))
	out = append(out, p.DestPK[:]...)
	out = append(out, p.NonceP[:]...)
	out = append(out, p.Nonce[:]...)
	return append(out, p.Inner...)
}

func DecodeOnionDataRequestPayload(data []byte) (OnionDataRequestPayload, error) {
	headerLen := cryptobox.PublicKeySize*2 + cryptobox.NonceSize
	if len(data) < headerLen {
		return OnionDataRequestPayload{}, fmt.Errorf("packet: truncated onion data request payload")
	}
	var p OnionDataRequestPayload
	copy(p.DestPK[:], data[:cryptobox.PublicKeySize])
	copy(p.NonceP[:], data[cryptobox.PublicKeySize:cryptobox.PublicKeySize*2])
	copy(p.Nonce[:], data[cryptobox.PublicKeySize*2:headerLen])
	p.Inner = append([]byte(nil), data[headerLen:]...)
	return p, nil
}

// OnionDataResponsePayload is the decrypted body of an OnionDataResponse:
// the original sender's temporary PK and nonce (so the announcer's onion
// client can authenticate and reply) plus the opaque inner ciphertext,
// relayed unmodified.
type OnionDataResponsePayload struct {
	SenderTempPK cryptobox.PublicKey
	Nonce        cryptobox.Nonce
	Inner        []byte
}

func (p OnionDataResponsePayload) Encode() []byte {
	out := make([]byte, 0, cryptobox.PublicKeySize+cryptobox.NonceSize+len(p.Inner))
	out = append(out, p.SenderTempPK[:]...)
	out = append(out, p.Nonce[:]...)
	return append(out, p.Inner...)
}

func DecodeOnionDataResponsePayload(data []byte) (OnionDataResponsePayload, error) {
	headerLen := cryptobox.PublicKeySize + cryptobox.NonceSize
	if len(data) < headerLen {
		return OnionDataResponsePayload{}, fmt.Errorf("packet: truncated onion data response payload")
	}
	var p OnionDataResponsePayload
	copy(p.SenderTempPK[:], data[:cryptobox.PublicKeySize])
	copy(p.Nonce[:], data[cryptobox.PublicKeySize:headerLen])
	p.Inner = append([]byte(nil), data[headerLen:]...)
	return p, nil
}

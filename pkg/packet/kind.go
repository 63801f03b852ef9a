package packet

import "fmt"

// Kind identifies the 1-byte tag that leads every packet on the wire.
type Kind byte

// Packet kinds dispatched by the DHT server (spec §4.2). NatPingRequest,
// NatPingResponse, and DhtPkAnnounce never appear as a bare wire kind —
// they are only ever the decrypted inner payload of a DhtRequest — so they
// get their own small enum, InnerKind, in dhtrequest.go.
const (
	KindPingRequest           Kind = 0x00
	KindPingResponse          Kind = 0x01
	KindNodesRequest          Kind = 0x02
	KindNodesResponse         Kind = 0x04
	KindCookieRequest         Kind = 0x18
	KindCookieResponse        Kind = 0x19
	KindCryptoHandshake       Kind = 0x1a
	KindDhtRequest            Kind = 0x20
	KindLanDiscovery          Kind = 0x21
	KindOnionRequest0         Kind = 0x80
	KindOnionRequest1         Kind = 0x81
	KindOnionRequest2         Kind = 0x82
	KindOnionAnnounceRequest  Kind = 0x83
	KindOnionAnnounceResponse Kind = 0x84
	KindOnionDataRequest      Kind = 0x85
	KindOnionDataResponse     Kind = 0x86
	KindOnionResponse3        Kind = 0x8c
	KindOnionResponse2        Kind = 0x8d
	KindOnionResponse1        Kind = 0x8e
	KindBootstrapInfo         Kind = 0xf0
)

// String returns a human-readable name for the kind, for logging.
func (k Kind) String() string {
	switch k {
	case KindPingRequest:
		return "PingRequest"
	case KindPingResponse:
		return "PingResponse"
	case KindNodesRequest:
		return "NodesRequest"
	case KindNodesResponse:
		return "NodesResponse"
	case KindCookieRequest:
		return "CookieRequest"
	case KindCookieResponse:
		return "CookieResponse"
	case KindCryptoHandshake:
		return "CryptoHandshake"
	case KindDhtRequest:
		return "DhtRequest"
	case KindLanDiscovery:
		return "LanDiscovery"
	case KindOnionRequest0:
		return "OnionRequest0"
	case KindOnionRequest1:
		return "OnionRequest1"
	case KindOnionRequest2:
		return "OnionRequest2"
	case KindOnionAnnounceRequest:
		return "OnionAnnounceRequest"
	case KindOnionAnnounceResponse:
		return "OnionAnnounceResponse"
	case KindOnionDataRequest:
		return "OnionDataRequest"
	case KindOnionDataResponse:
		return "OnionDataResponse"
	case KindOnionResponse3:
		return "OnionResponse3"
	case KindOnionResponse2:
		return "OnionResponse2"
	case KindOnionResponse1:
		return "OnionResponse1"
	case KindBootstrapInfo:
		return "BootstrapInfo"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(k))
	}
}

// IsEncrypted reports whether this kind's envelope carries a (SenderPK,
// Nonce) header in front of its body, authenticated-encrypted under a
// shared key derived from sender/recipient DHT keys. LanDiscovery and
// BootstrapInfo are plaintext. The onion response kinds are also bare —
// their body is self-contained (an OnionReturn cookie carries its own
// nonce, and the exit hop's reply payload needs no further envelope-level
// encryption on top of the per-hop onion layers already applied).
func (k Kind) IsEncrypted() bool {
	switch k {
	case KindLanDiscovery, KindBootstrapInfo, KindOnionResponse3, KindOnionResponse2, KindOnionResponse1:
		return false
	default:
		return true
	}
}

package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
)

// PingPayload is the decrypted body of both PingRequest and PingResponse:
// an 8-byte ping-id. Ping-id zero is reserved and MUST be rejected by the
// caller (spec invariant 4).
type PingPayload struct {
	ID uint64
}

func (p PingPayload) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, p.ID)
	return buf
}

func DecodePingPayload(data []byte) (PingPayload, error) {
	if len(data) < 8 {
		return PingPayload{}, fmt.Errorf("packet: truncated ping payload: need 8 bytes, have %d", len(data))
	}
	return PingPayload{ID: binary.LittleEndian.Uint64(data[:8])}, nil
}

// NodesRequestPayload is the decrypted body of a NodesRequest: the PK the
// sender wants nodes close to, plus a ping-id for response correlation.
type NodesRequestPayload struct {
	Target cryptobox.PublicKey
	ID     uint64
}

func (p NodesRequestPayload) Encode() []byte {
	buf := make([]byte, 0, cryptobox.PublicKeySize+8)
	buf = append(buf, p.Target[:]...)
	idBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(idBuf, p.ID)
	return append(buf, idBuf...)
}

func DecodeNodesRequestPayload(data []byte) (NodesRequestPayload, error) {
	if len(data) < cryptobox.PublicKeySize+8 {
		return NodesRequestPayload{}, fmt.Errorf("packet: truncated nodes request payload")
	}
	var p NodesRequestPayload
	copy(p.Target[:], data[:cryptobox.PublicKeySize])
	p.ID = binary.LittleEndian.Uint64(data[cryptobox.PublicKeySize : cryptobox.PublicKeySize+8])
	return p, nil
}

// NodesResponsePayload is the decrypted body of a NodesResponse: the
// correlating ping-id and at most 4 packed nodes.
type NodesResponsePayload struct {
	ID    uint64
	Nodes []PackedNode
}

func (p NodesResponsePayload) Encode() ([]byte, error) {
	if len(p.Nodes) > 4 {
		return nil, fmt.Errorf("packet: nodes response carries %d nodes, max is 4", len(p.Nodes))
	}
	nodeBytes, err := EncodeNodeList(p.Nodes)
	if err != nil {
		return nil, err
	}
	idBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(idBuf, p.ID)
	return append(idBuf, nodeBytes...), nil
}

func DecodeNodesResponsePayload(data []byte) (NodesResponsePayload, error) {
	if len(data) < 8 {
		return NodesResponsePayload{}, fmt.Errorf("packet: truncated nodes response payload")
	}
	id := binary.LittleEndian.Uint64(data[:8])
	nodes, _, err := DecodeNodeList(data[8:])
	if err != nil {
		return NodesResponsePayload{}, err
	}
	if len(nodes) > 4 {
		return NodesResponsePayload{}, fmt.Errorf("packet: nodes response carries %d nodes, max is 4", len(nodes))
	}
	return NodesResponsePayload{ID: id, Nodes: nodes}, nil
}

// BootstrapInfoPayload is the (always plaintext) body of a BootstrapInfo
// packet: server version and an optional MOTD of at most 255 bytes.
type BootstrapInfoPayload struct {
	Version uint32
	Motd    []byte
}

func (p BootstrapInfoPayload) Encode() ([]byte, error) {
	if len(p.Motd) > 255 {
		return nil, fmt.Errorf("packet: motd too long: %d bytes, max 255", len(p.Motd))
	}
	buf := make([]byte, 4, 4+1+len(p.Motd))
	binary.LittleEndian.PutUint32(buf, p.Version)
	buf = append(buf, byte(len(p.Motd)))
	return append(buf, p.Motd...), nil
}

func DecodeBootstrapInfoPayload(data []byte) (BootstrapInfoPayload, error) {
	if len(data) < 5 {
		return BootstrapInfoPayload{}, fmt.Errorf("packet: truncated bootstrap info payload")
	}
	version := binary.LittleEndian.Uint32(data[:4])
	motdLen := int(data[4])
	if len(data) < 5+motdLen {
		return BootstrapInfoPayload{}, fmt.Errorf("packet: truncated bootstrap info motd")
	}
	motd := make([]byte, motdLen)
	copy(motd, data[5:5+motdLen])
	return BootstrapInfoPayload{Version: version, Motd: motd}, nil
}

// LanDiscoveryPayload is the plaintext body of a LanDiscovery packet: the
// sender's own public key.
type LanDiscoveryPayload struct {
	PK cryptobox.PublicKey
}

func (p LanDiscoveryPayload) Encode() []byte {
	out := make([]byte, cryptobox.PublicKeySize)
	copy(out, p.PK[:])
	return out
}

func DecodeLanDiscoveryPayload(data []byte) (LanDiscoveryPayload, error) {
	if len(data) < cryptobox.PublicKeySize {
		return LanDiscoveryPayload{}, fmt.Errorf("packet: truncated lan discovery payload")
	}
	var p LanDiscoveryPayload
	copy(p.PK[:], data[:cryptobox.PublicKeySize])
	return p, nil
}

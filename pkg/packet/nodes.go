// Package packet provides byte-level encoding and decoding for the DHT wire
// format: packed node records, socket addresses, and the ~20 packet
// envelopes multiplexed over UDP. All multi-byte integers are
// little-endian except the port field, which is big-endian (spec §6).
package packet

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
)

// Address family tags, as carried on the wire.
const (
	AddrFamilyIPv4 byte = 0x02
	AddrFamilyIPv6 byte = 0x0a
)

// SocketAddr is a UDP socket address: an IPv4 or IPv6 host plus port.
type SocketAddr struct {
	Family byte
	IP     net.IP
	Port   uint16
}

// NewSocketAddr builds a SocketAddr from a net.IP and port, choosing the
// family tag from the IP's form.
func NewSocketAddr(ip net.IP, port uint16) (SocketAddr, error) {
	if v4 := ip.To4(); v4 != nil {
		return SocketAddr{Family: AddrFamilyIPv4, IP: v4, Port: port}, nil
	}
	if v6 := ip.To16(); v6 != nil {
		return SocketAddr{Family: AddrFamilyIPv6, IP: v6, Port: port}, nil
	}
	return SocketAddr{}, fmt.Errorf("packet: not a valid IPv4 or IPv6 address: %v", ip)
}

// IsGlobal reports whether the address is globally routable (i.e. not
// unspecified, loopback, link-local, or multicast). Used to filter
// GetClosest results per spec §4.4.
func (a SocketAddr) IsGlobal() bool {
	if a.IP == nil {
		return false
	}
	return !(a.IP.IsUnspecified() || a.IP.IsLoopback() || a.IP.IsLinkLocalUnicast() ||
		a.IP.IsLinkLocalMulticast() || a.IP.IsInterfaceLocalMulticast() || a.IP.IsMulticast())
}

// UDPAddr converts to a net.UDPAddr for dispatch to the outbound channel.
func (a SocketAddr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IP, Port: int(a.Port)}
}

func addrLen(family byte) (int, error) {
	switch family {
	case AddrFamilyIPv4:
		return net.IPv4len, nil
	case AddrFamilyIPv6:
		return net.IPv6len, nil
	default:
		return 0, fmt.Errorf("packet: unknown address family tag 0x%02x", family)
	}
}

// Encode appends the wire form of a to dst and returns the extended slice.
func (a SocketAddr) Encode(dst []byte) ([]byte, error) {
	n, err := addrLen(a.Family)
	if err != nil {
		return nil, err
	}
	dst = append(dst, a.Family)
	var ipBytes []byte
	if n == net.IPv4len {
		ipBytes = a.IP.To4()
	} else {
		ipBytes = a.IP.To16()
	}
	if len(ipBytes) != n {
		return nil, fmt.Errorf("packet: address %v does not match family tag 0x%02x", a.IP, a.Family)
	}
	dst = append(dst, ipBytes...)
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], a.Port)
	dst = append(dst, portBuf[:]...)
	return dst, nil
}

// DecodeSocketAddr reads a SocketAddr from the front of data, returning the
// parsed address and the remaining bytes.
func DecodeSocketAddr(data []byte) (SocketAddr, []byte, error) {
	if len(data) < 1 {
		return SocketAddr{}, nil, fmt.Errorf("packet: truncated address: missing family tag")
	}
	family := data[0]
	n, err := addrLen(family)
	if err != nil {
		return SocketAddr{}, nil, err
	}
	if len(data) < 1+n+2 {
		return SocketAddr{}, nil, fmt.Errorf("packet: truncated address: need %d bytes, have %d", 1+n+2, len(data))
	}
	ip := make(net.IP, n)
	copy(ip, data[1:1+n])
	port := binary.BigEndian.Uint16(data[1+n : 1+n+2])
	return SocketAddr{Family: family, IP: ip, Port: port}, data[1+n+2:], nil
}

// EncodedLen returns the number of bytes SocketAddr.Encode will append.
func (a SocketAddr) EncodedLen() int {
	n, err := addrLen(a.Family)
	if err != nil {
		return 0
	}
	return 1 + n + 2
}

// PackedNode is a socket address bound to the node's long-term public key,
// the unit exchanged in NodesResponse payloads and stored in k-buckets.
type PackedNode struct {
	Addr SocketAddr
	PK   cryptobox.PublicKey
}

// Encode appends the wire form of n to dst.
func (n PackedNode) Encode(dst []byte) ([]byte, error) {
	dst, err := n.Addr.Encode(dst)
	if err != nil {
		return nil, err
	}
	return append(dst, n.PK[:]...), nil
}

// DecodePackedNode reads a PackedNode from the front of data.
func DecodePackedNode(data []byte) (PackedNode, []byte, error) {
	addr, rest, err := DecodeSocketAddr(data)
	if err != nil {
		return PackedNode{}, nil, err
	}
	if len(rest) < cryptobox.PublicKeySize {
		return PackedNode{}, nil, fmt.Errorf("packet: truncated packed node: missing public key")
	}
	var pk cryptobox.PublicKey
	copy(pk[:], rest[:cryptobox.PublicKeySize])
	return PackedNode{Addr: addr, PK: pk}, rest[cryptobox.PublicKeySize:], nil
}

// EncodeNodeList encodes at most 4 packed nodes prefixed by a 1-byte count,
// the format used by NodesResponse and OnionAnnounceResponse.
func EncodeNodeList(nodes []PackedNode) ([]byte, error) {
	if len(nodes) > 4 {
		return nil, fmt.Errorf("packet: too many nodes to encode: %d", len(nodes))
	}
	out := make([]byte, 0, 1+len(nodes)*(1+18+32))
	out = append(out, byte(len(nodes)))
	var err error
	for _, node := range nodes {
		out, err = node.Encode(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeNodeList decodes a 1-byte-count-prefixed list of packed nodes.
func DecodeNodeList(data []byte) ([]PackedNode, []byte, error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("packet: truncated node list: missing count")
	}
	count := int(data[0])
	rest := data[1:]
	nodes := make([]PackedNode, 0, count)
	for i := 0; i < count; i++ {
		var node PackedNode
		var err error
		node, rest, err = DecodePackedNode(rest)
		if err != nil {
			return nil, nil, fmt.Errorf("packet: decoding node %d of %d: %w", i, count, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rest, nil
}

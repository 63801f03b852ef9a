// Package bootstrap loads the seed-node list a fresh DHT node uses to
// enter the network, and tracks the bootstrap round counter that governs
// how aggressively the periodic loop keeps requesting fresh nodes while
// the close list is still filling in (spec §4.1 steps 3 and 5).
package bootstrap

import (
	"bufio"
	"embed"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

//go:embed seeds.txt
var embeddedSeeds embed.FS

// Seed is one bootstrap candidate parsed from a seed list: a long-term
// public key paired with a hostname/port to resolve and dial.
type Seed struct {
	PK   cryptobox.PublicKey
	Host string
	Port uint16
}

// DefaultSeeds returns the seed list embedded in the binary. Operators
// wanting a private or isolated network should call LoadSeeds against
// their own file instead.
func DefaultSeeds() ([]Seed, error) {
	data, err := embeddedSeeds.ReadFile("seeds.txt")
	if err != nil {
		return nil, fmt.Errorf("bootstrap: reading embedded seed list: %w", err)
	}
	return parseSeeds(strings.NewReader(string(data)))
}

// LoadSeeds reads a seed list from the given reader in the same format as
// the embedded default: "<hex pk> <host> <port>" per line, '#' comments
// and blank lines ignored.
func LoadSeeds(r io.Reader) ([]Seed, error) {
	return parseSeeds(r)
}

func parseSeeds(r io.Reader) ([]Seed, error) {
	scanner := bufio.NewScanner(r)
	var seeds []Seed
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("bootstrap: seed list line %d: expected 3 fields, got %d", lineNo, len(fields))
		}
		pkBytes, err := hex.DecodeString(fields[0])
		if err != nil || len(pkBytes) != cryptobox.PublicKeySize {
			return nil, fmt.Errorf("bootstrap: seed list line %d: invalid public key", lineNo)
		}
		port, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: seed list line %d: invalid port: %w", lineNo, err)
		}
		var pk cryptobox.PublicKey
		copy(pk[:], pkBytes)
		seeds = append(seeds, Seed{PK: pk, Host: fields[1], Port: uint16(port)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bootstrap: scanning seed list: %w", err)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("bootstrap: seed list contained no entries")
	}
	return seeds, nil
}

// Resolve turns a Seed into a PackedNode by resolving Host. IPv6-only
// resolution is skipped when preferV4 is true and a v4 address exists.
func (s Seed) Resolve(preferV4 bool) (packet.PackedNode, error) {
	ips, err := net.LookupIP(s.Host)
	if err != nil {
		return packet.PackedNode{}, fmt.Errorf("bootstrap: resolving seed host %q: %w", s.Host, err)
	}
	var chosen net.IP
	for _, ip := range ips {
		if preferV4 && ip.To4() != nil {
			chosen = ip
			break
		}
		if chosen == nil {
			chosen = ip
		}
	}
	if chosen == nil {
		return packet.PackedNode{}, fmt.Errorf("bootstrap: no addresses resolved for seed host %q", s.Host)
	}
	addr, err := packet.NewSocketAddr(chosen, s.Port)
	if err != nil {
		return packet.PackedNode{}, err
	}
	return packet.PackedNode{Addr: addr, PK: s.PK}, nil
}

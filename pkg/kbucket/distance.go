// Package kbucket implements the Kademlia-style close list used to track
// the DHT nodes nearest to a given public key: a Bucket holding nodes at a
// single XOR-distance bit, and a Kbucket aggregating 256 such buckets (one
// per bit of a 32-byte key) keyed by the position of the highest differing
// bit from the owning key.
package kbucket

import "github.com/toxdht/dhtnode/pkg/cryptobox"

// Distance computes the XOR distance between two public keys. Smaller byte
// values (lexicographically, starting from the most significant byte) are
// closer.
func Distance(a, b cryptobox.PublicKey) [cryptobox.PublicKeySize]byte {
	var d [cryptobox.PublicKeySize]byte
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Closer reports whether candidate is closer to target than reference is.
func Closer(target, candidate, reference cryptobox.PublicKey) bool {
	dc := Distance(target, candidate)
	dr := Distance(target, reference)
	for i := range dc {
		if dc[i] != dr[i] {
			return dc[i] < dr[i]
		}
	}
	return false
}

// BitIndex returns the index (0 = most significant bit of byte 0) of the
// highest-order bit at which a and b differ, or -1 if the keys are equal.
// This is the bucket index a node with key a would file a node with key b
// under.
func BitIndex(a, b cryptobox.PublicKey) int {
	for byteIdx := 0; byteIdx < cryptobox.PublicKeySize; byteIdx++ {
		x := a[byteIdx] ^ b[byteIdx]
		if x == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if x&(0x80>>uint(bit)) != 0 {
				return byteIdx*8 + bit
			}
		}
	}
	return -1
}

// Package cryptobox provides the cryptographic primitives used on the wire:
// keypair generation, shared-secret precomputation, and authenticated
// encryption/decryption of variable-length payloads. It wraps
// golang.org/x/crypto/nacl/box and golang.org/x/crypto/nacl/secretbox
// (curve25519-xsalsa20-poly1305), the primitive family the Tox wire
// protocol specifies.
//
// Security considerations:
//   - All random generation uses crypto/rand (CSPRNG).
//   - Secret keys should be zeroed after use with Zero().
//   - Key and ping-id comparisons use constant-time operations.
package cryptobox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// Sizes of the fixed-length values this package deals in.
const (
	PublicKeySize    = 32
	SecretKeySize    = 32
	SharedKeySize    = 32
	SymmetricKeySize = 32
	NonceSize        = 24
)

// PublicKey is a long-lived or ephemeral Curve25519 public key.
type PublicKey [PublicKeySize]byte

// SecretKey is a long-lived or ephemeral Curve25519 secret key.
type SecretKey [SecretKeySize]byte

// SharedKey is a precomputed Curve25519 shared secret between two peers,
// suitable for repeated Seal/Open calls without recomputing scalar mult
// every time (the "_afternm" family).
type SharedKey [SharedKeySize]byte

// SymmetricKey is a standalone secret used for secretbox encryption, e.g.
// the server's onion symmetric key.
type SymmetricKey [SymmetricKeySize]byte

// Nonce is the 24-byte nonce required by both box and secretbox.
type Nonce [NonceSize]byte

// GenerateKeyPair generates a new Curve25519 keypair.
func GenerateKeyPair() (PublicKey, SecretKey, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, SecretKey{}, fmt.Errorf("generate keypair: %w", err)
	}
	return PublicKey(*pub), SecretKey(*priv), nil
}

// GenerateSymmetricKey generates a fresh random symmetric key, e.g. for
// onion-return encryption or its periodic rotation.
func GenerateSymmetricKey() (SymmetricKey, error) {
	var k SymmetricKey
	if _, err := rand.Read(k[:]); err != nil {
		return SymmetricKey{}, fmt.Errorf("generate symmetric key: %w", err)
	}
	return k, nil
}

// RandomNonce returns a fresh random nonce.
func RandomNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return Nonce{}, fmt.Errorf("generate nonce: %w", err)
	}
	return n, nil
}

// Precompute derives the shared secret between our secret key and a peer's
// public key, amortizing the scalar multiplication across many Seal/Open
// calls to the same peer.
func Precompute(peerPK PublicKey, ourSK SecretKey) SharedKey {
	var shared [SharedKeySize]byte
	pk := [PublicKeySize]byte(peerPK)
	sk := [SecretKeySize]byte(ourSK)
	box.Precompute(&shared, &pk, &sk)
	return SharedKey(shared)
}

// Seal authenticated-encrypts plaintext under a precomputed shared key and
// a fresh random nonce, returning the nonce alongside the ciphertext so the
// caller can place both on the wire.
func Seal(shared SharedKey, plaintext []byte) (Nonce, []byte, error) {
	nonce, err := RandomNonce()
	if err != nil {
		return Nonce{}, nil, err
	}
	n := [NonceSize]byte(nonce)
	s := [SharedKeySize]byte(shared)
	ciphertext := box.SealAfterPrecomputation(nil, plaintext, &n, &s)
	return nonce, ciphertext, nil
}

// Open authenticated-decrypts ciphertext under a precomputed shared key and
// the nonce it was sealed with. The second return value is false if
// authentication failed; the caller should treat that as a dhterrors.Decrypt.
func Open(shared SharedKey, nonce Nonce, ciphertext []byte) ([]byte, bool) {
	n := [NonceSize]byte(nonce)
	s := [SharedKeySize]byte(shared)
	return box.OpenAfterPrecomputation(nil, ciphertext, &n, &s)
}

// SealSymmetric authenticated-encrypts plaintext under a standalone
// symmetric key (secretbox), used for OnionReturn cookies.
func SealSymmetric(key SymmetricKey, plaintext []byte) (Nonce, []byte, error) {
	nonce, err := RandomNonce()
	if err != nil {
		return Nonce{}, nil, err
	}
	n := [NonceSize]byte(nonce)
	k := [SymmetricKeySize]byte(key)
	ciphertext := secretbox.Seal(nil, plaintext, &n, &k)
	return nonce, ciphertext, nil
}

// OpenSymmetric authenticated-decrypts ciphertext under a standalone
// symmetric key and the nonce it was sealed with.
func OpenSymmetric(key SymmetricKey, nonce Nonce, ciphertext []byte) ([]byte, bool) {
	n := [NonceSize]byte(nonce)
	k := [SymmetricKeySize]byte(key)
	return secretbox.Open(nil, ciphertext, &n, &k)
}

// SHA256 computes the SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ConstantTimeCompare reports whether a and b are equal using a
// constant-time comparison, preventing timing attacks on key/ping-id
// comparisons.
func ConstantTimeCompare(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

// Zero overwrites a byte slice with zeros. Call this on secret key material
// once it is no longer needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

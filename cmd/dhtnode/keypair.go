package main

import (
	"fmt"
	"os"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
)

// keypairFileSize is the on-disk layout: a raw public key followed by a
// raw secret key, no framing needed since both are fixed-width.
const keypairFileSize = cryptobox.PublicKeySize + cryptobox.SecretKeySize

// loadOrCreateKeypair reads the node's long-term identity keypair from
// path, generating and persisting a fresh one on first run. Curve25519
// does not make deriving a public key from only a stored secret key any
// cheaper than scalar multiplication at keygen time, so both halves are
// stored together rather than just the secret key.
func loadOrCreateKeypair(path string) (cryptobox.PublicKey, cryptobox.SecretKey, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- fixed path under the node's own data dir
	if err == nil {
		if len(data) != keypairFileSize {
			return cryptobox.PublicKey{}, cryptobox.SecretKey{}, fmt.Errorf("keypair file %s has wrong size %d (want %d)", path, len(data), keypairFileSize)
		}
		var pk cryptobox.PublicKey
		var sk cryptobox.SecretKey
		copy(pk[:], data[:cryptobox.PublicKeySize])
		copy(sk[:], data[cryptobox.PublicKeySize:])
		return pk, sk, nil
	}
	if !os.IsNotExist(err) {
		return cryptobox.PublicKey{}, cryptobox.SecretKey{}, fmt.Errorf("reading keypair file %s: %w", path, err)
	}

	pk, sk, err := cryptobox.GenerateKeyPair()
	if err != nil {
		return cryptobox.PublicKey{}, cryptobox.SecretKey{}, fmt.Errorf("generating keypair: %w", err)
	}
	out := make([]byte, 0, keypairFileSize)
	out = append(out, pk[:]...)
	out = append(out, sk[:]...)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return cryptobox.PublicKey{}, cryptobox.SecretKey{}, fmt.Errorf("writing keypair file %s: %w", path, err)
	}
	return pk, sk, nil
}

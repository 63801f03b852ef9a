package onionannounce

import (
	"sync"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dhterrors"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// RefreshInterval is how often the symmetric key used to derive ping-ids
// is rotated (spec §5, ONION_REFRESH_KEY_INTERVAL). The previous key
// remains valid for one further interval so in-flight announces made just
// before a rotation still verify.
const RefreshInterval = 7200 * time.Second

// Keyring owns the current and previous onion symmetric keys and the
// announce table keyed off of them. Rotation is a pure generation swap:
// the table's contents are not re-keyed, since entries simply expire
// faster than RefreshInterval (EntryLifetime << RefreshInterval).
type Keyring struct {
	mu          sync.RWMutex
	current     cryptobox.SymmetricKey
	previous    cryptobox.SymmetricKey
	hasPrevious bool
	rotatedAt   time.Time
	table       *Table
}

// NewKeyring generates an initial symmetric key and constructs an empty
// backing table.
func NewKeyring(now time.Time) (*Keyring, error) {
	key, err := cryptobox.GenerateSymmetricKey()
	if err != nil {
		return nil, dhterrors.Wrap(dhterrors.KindUnhandled, "generating onion symmetric key", err)
	}
	return &Keyring{current: key, rotatedAt: now, table: New(nil)}, nil
}

// Table returns the backing announce table.
func (k *Keyring) Table() *Table {
	return k.table
}

// MaybeRotate generates a fresh symmetric key if RefreshInterval has
// elapsed since the last rotation, demoting the current key to previous.
func (k *Keyring) MaybeRotate(now time.Time) error {
	k.mu.RLock()
	due := now.Sub(k.rotatedAt) >= RefreshInterval
	k.mu.RUnlock()
	if !due {
		return nil
	}

	newKey, err := cryptobox.GenerateSymmetricKey()
	if err != nil {
		return dhterrors.Wrap(dhterrors.KindUnhandled, "rotating onion symmetric key", err)
	}

	k.mu.Lock()
	k.previous = k.current
	k.hasPrevious = true
	k.current = newKey
	k.rotatedAt = now
	k.mu.Unlock()
	return nil
}

// PingIDCandidates returns the ping-ids that would be valid for addr/pk
// under the current key, and under the previous key if one exists.
func (k *Keyring) PingIDCandidates(addr packet.SocketAddr, pk cryptobox.PublicKey) ([][32]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	current, err := PingID(k.current, addr, pk)
	if err != nil {
		return nil, err
	}
	candidates := [][32]byte{current}
	if k.hasPrevious {
		prev, err := PingID(k.previous, addr, pk)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, prev)
	}
	return candidates, nil
}

// CurrentKey returns the active symmetric key, for deriving a fresh
// ping-id on a new announce.
func (k *Keyring) CurrentKey() cryptobox.SymmetricKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// PreviousKey returns the prior-generation symmetric key and true if a
// rotation has happened at least once, for onionforward's tolerance of
// one previous key generation on OnionReturn cookies (spec §4.5).
func (k *Keyring) PreviousKey() (cryptobox.SymmetricKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.previous, k.hasPrevious
}

// Package onionannounce implements the bounded table of onion announce
// entries a DHT node serves on behalf of onion clients: a mapping from a
// derived ping-id to the announcing node's address and long-term public
// key, tolerant of the current and immediately previous symmetric key
// generation (spec §4.6).
package onionannounce

import (
	"sync"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dhtlog"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// MaxEntries bounds the table size; the oldest entry is evicted to make
// room for a new one once full.
const MaxEntries = 1024

// EntryLifetime is how long an announce entry remains valid before it is
// treated as expired (spec §4.6).
const EntryLifetime = 300 * time.Second

// Entry is a single announce record.
type Entry struct {
	PK         cryptobox.PublicKey
	Addr       packet.SocketAddr
	PingID     [32]byte
	DataPK     cryptobox.PublicKey // public key onion data requests should be re-encrypted to
	StoredAt   time.Time
	LastSeen   time.Time
	ReturnPath []byte // accumulated onion-return cookie captured when the announce arrived, reused to relay OnionDataResponses back along the same path
}

// Table is the announce table for one generation pair of symmetric keys.
type Table struct {
	mu      sync.Mutex
	logger  *dhtlog.Logger
	entries map[[32]byte]*Entry
	order   []([32]byte)
}

// New constructs an empty announce table.
func New(logger *dhtlog.Logger) *Table {
	if logger == nil {
		logger = dhtlog.NewDefault()
	}
	return &Table{
		logger:  logger.Component("onionannounce"),
		entries: make(map[[32]byte]*Entry),
	}
}

// PingID derives the ping-id a client must present to confirm an announce
// or a data-request routing lookup: SHA256(symmetricKey || encodedAddr ||
// pk) (spec §4.6).
func PingID(symmetricKey cryptobox.SymmetricKey, addr packet.SocketAddr, pk cryptobox.PublicKey) ([32]byte, error) {
	encodedAddr, err := addr.Encode(nil)
	if err != nil {
		return [32]byte{}, err
	}
	buf := make([]byte, 0, len(symmetricKey)+len(encodedAddr)+cryptobox.PublicKeySize)
	buf = append(buf, symmetricKey[:]...)
	buf = append(buf, encodedAddr...)
	buf = append(buf, pk[:]...)
	return cryptobox.SHA256(buf), nil
}

// Store records or refreshes an announce entry keyed by pingID, evicting
// the oldest entry if the table is at capacity.
func (t *Table) Store(pingID [32]byte, pk cryptobox.PublicKey, addr packet.SocketAddr, dataPK cryptobox.PublicKey, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[pingID]; ok {
		e.Addr = addr
		e.DataPK = dataPK
		e.LastSeen = now
		return
	}
	if len(t.entries) >= MaxEntries {
		t.evictOldestLocked()
	}
	t.entries[pingID] = &Entry{
		PK:       pk,
		Addr:     addr,
		PingID:   pingID,
		DataPK:   dataPK,
		StoredAt: now,
		LastSeen: now,
	}
	t.order = append(t.order, pingID)
}

// SetReturnPath records the onion-return cookie that should be reused to
// relay a future OnionDataResponse back to the entry owning pingID. It is
// a no-op if the entry has since been evicted.
func (t *Table) SetReturnPath(pingID [32]byte, returnPath []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[pingID]; ok {
		e.ReturnPath = append([]byte(nil), returnPath...)
	}
}

func (t *Table) evictOldestLocked() {
	if len(t.order) == 0 {
		return
	}
	oldest := t.order[0]
	t.order = t.order[1:]
	delete(t.entries, oldest)
}

// Lookup retrieves the entry for pingID, if present and not expired.
func (t *Table) Lookup(pingID [32]byte, now time.Time) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[pingID]
	if !ok {
		return Entry{}, false
	}
	if now.Sub(e.LastSeen) > EntryLifetime {
		return Entry{}, false
	}
	return *e, true
}

// LookupByPK finds the most recently stored, non-expired entry announced
// under pk, for routing an OnionDataRequest to its destination (spec
// §4.6: data requests are addressed by the announcer's real PK, not its
// ping-id).
func (t *Table) LookupByPK(pk cryptobox.PublicKey, now time.Time) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best *Entry
	for _, e := range t.entries {
		if e.PK != pk || now.Sub(e.LastSeen) > EntryLifetime {
			continue
		}
		if best == nil || e.LastSeen.After(best.LastSeen) {
			best = e
		}
	}
	if best == nil {
		return Entry{}, false
	}
	return *best, true
}

// ExpireOld removes entries stale beyond EntryLifetime, returning the
// number removed. Called once per periodic tick.
func (t *Table) ExpireOld(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	kept := t.order[:0]
	for _, id := range t.order {
		e, ok := t.entries[id]
		if !ok {
			continue
		}
		if now.Sub(e.LastSeen) > EntryLifetime {
			delete(t.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	if removed > 0 {
		t.logger.Debug("expired onion announce entries", "count", removed)
	}
	return removed
}

// Len reports the number of entries currently held.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Package dhterrors provides the structured error taxonomy for the DHT node
// core. Every packet handler produces one of these kinds; handlers never
// let an error escape as a process-level failure (spec §7) — callers log
// it and move on to the next packet.
package dhterrors

import "fmt"

// Kind identifies the category of a packet-handling error.
type Kind string

const (
	// KindDecrypt means authenticated decryption of the packet failed.
	KindDecrypt Kind = "decrypt"
	// KindPingIDMismatch means a response's ping-id was not found in the
	// request queue for the sending peer.
	KindPingIDMismatch Kind = "ping_id_mismatch"
	// KindPingIDZero means the packet's ping-id field was the reserved
	// zero value.
	KindPingIDZero Kind = "ping_id_zero"
	// KindUnknownNode means a PingResponse arrived from a PK absent from
	// the close list.
	KindUnknownNode Kind = "unknown_node"
	// KindFriendNotFound means a NatPingResponse named a PK with no
	// matching friend entry.
	KindFriendNotFound Kind = "friend_not_found"
	// KindAddressFamilyMismatch means an IPv6 destination was attempted
	// while the server is configured for IPv4-only mode.
	KindAddressFamilyMismatch Kind = "address_family_mismatch"
	// KindOnionReturnInvalid means an OnionReturn failed symmetric
	// decryption or its inner-return structure didn't match expectations.
	KindOnionReturnInvalid Kind = "onion_return_invalid"
	// KindNetCryptoUninitialized means a net_crypto packet arrived with
	// no net_crypto collaborator configured.
	KindNetCryptoUninitialized Kind = "net_crypto_uninitialized"
	// KindTCPSinkAbsent means an onion response targeted a TCP peer but
	// no TCP onion sink is configured.
	KindTCPSinkAbsent Kind = "tcp_sink_absent"
	// KindUnhandled means the packet kind is not expected at this
	// dispatch stage.
	KindUnhandled Kind = "unhandled"
	// KindRateLimited means the sender exceeded an anti-flood quota and
	// the request was dropped rather than processed.
	KindRateLimited Kind = "rate_limited"
)

// DhtError is a structured error carrying the taxonomy kind alongside a
// human-readable message and, optionally, the error it wraps.
type DhtError struct {
	Kind       Kind
	Message    string
	Underlying error
}

// Error implements the error interface.
func (e *DhtError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *DhtError) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is a DhtError of the same Kind.
func (e *DhtError) Is(target error) bool {
	t, ok := target.(*DhtError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a DhtError with no wrapped error.
func New(kind Kind, message string) *DhtError {
	return &DhtError{Kind: kind, Message: message}
}

// Wrap creates a DhtError that wraps an existing error.
func Wrap(kind Kind, message string, err error) *DhtError {
	return &DhtError{Kind: kind, Message: message, Underlying: err}
}

// Convenience constructors, one per taxonomy entry in spec §7.

func Decrypt(err error) *DhtError {
	return Wrap(KindDecrypt, "authenticated decryption failed", err)
}

func PingIDMismatch() *DhtError {
	return New(KindPingIDMismatch, "ping id not found in request queue for peer")
}

func PingIDZero() *DhtError {
	return New(KindPingIDZero, "ping id field was zero")
}

func UnknownNode() *DhtError {
	return New(KindUnknownNode, "response from a peer not present in the close list")
}

func FriendNotFound() *DhtError {
	return New(KindFriendNotFound, "no friend entry for sender public key")
}

func AddressFamilyMismatch() *DhtError {
	return New(KindAddressFamilyMismatch, "cannot address an IPv6 peer while in IPv4-only mode")
}

func OnionReturnInvalid(err error) *DhtError {
	return Wrap(KindOnionReturnInvalid, "onion return cookie invalid", err)
}

func NetCryptoUninitialized() *DhtError {
	return New(KindNetCryptoUninitialized, "no net_crypto collaborator configured")
}

func TCPSinkAbsent() *DhtError {
	return New(KindTCPSinkAbsent, "onion response targeted TCP but no sink is configured")
}

func Unhandled(kindName string) *DhtError {
	return New(KindUnhandled, fmt.Sprintf("packet kind %q not expected at this dispatch stage", kindName))
}

func RateLimited(what string) *DhtError {
	return New(KindRateLimited, fmt.Sprintf("%s exceeded its rate limit", what))
}

package protocol

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// catalog is the registration order both ends must share. New kinds are
// appended, never inserted.
var catalog = []Kind{
	KindInfoRequest,
	KindConnectionRequest,
	KindPickedTeam,
	KindClientChat,
	KindPlayerPositions,
	KindSummary,
	KindResponse,
	KindDetailedSummary,
	KindGameCountdown,
	KindServerChat,
	KindProjectilePositions,
	KindFlagPositions,
	KindInput,
}

// Catalog returns the ordered list of registered kinds.
func Catalog() []Kind {
	out := make([]Kind, len(catalog))
	copy(out, catalog)
	return out
}

// CatalogHash fingerprints the registration order. Peers compare it on
// connect instead of discovering a mismatch mid-game.
func CatalogHash() uint64 {
	names := make([]string, len(catalog))
	for i, k := range catalog {
		names[i] = string(k)
	}
	return xxh3.HashString(strings.Join(names, "\x00"))
}

// Registry maps kinds to their registration index.
type Registry struct {
	ids  map[Kind]int
	hash uint64
}

// NewRegistry registers the full catalog in order.
func NewRegistry() *Registry {
	r := &Registry{ids: make(map[Kind]int, len(catalog)), hash: CatalogHash()}
	for i, k := range catalog {
		r.ids[k] = i
	}
	return r
}

// ID returns the registration index of kind.
func (r *Registry) ID(kind Kind) (int, bool) {
	id, ok := r.ids[kind]
	return id, ok
}

// Compatible reports whether a peer's catalog hash matches ours. Zero means
// the peer did not send one.
func (r *Registry) Compatible(peer uint64) bool {
	return peer == 0 || peer == r.hash
}

// Reliable reports whether kind must be delivered reliably and in order.
// Summary and the periodic snapshots are best-effort.
func Reliable(kind Kind) bool {
	switch kind {
	case KindSummary, KindPlayerPositions, KindProjectilePositions, KindFlagPositions:
		return false
	default:
		return true
	}
}

// FromClient reports whether kind is sent by clients.
func FromClient(kind Kind) bool {
	switch kind {
	case KindInfoRequest, KindConnectionRequest, KindPickedTeam, KindClientChat, KindInput:
		return true
	default:
		return false
	}
}

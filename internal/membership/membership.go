// Package membership owns the peer table: serving concurrent snapshot
// reads and serialising the single writer that reassigns leadership.
//
// Grounded on the reader/writer discipline already present in the
// original Rust source (src/procceses_list_handler.rs, an
// Arc<RwLock<Vec<Process>>> with one dedicated updater thread),
// re-architected as a single-writer store: every write funnels through
// RunUpdater, which is the only goroutine ever holding the write lock.
package membership

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/oss-bully/peerguard/internal/messages"
)

// Peer is one record of the fixed cluster membership.
type Peer struct {
	ID     uint64
	Host   string
	Port   uint16
	Leader bool
	Self   bool
}

// Addr returns the peer's dial address in host:port form.
func (p Peer) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Store holds the membership table behind a reader-writer lock. Reads
// take shared access only long enough to copy the table, so every
// returned snapshot is internally consistent; RunUpdater is the sole
// writer.
type Store struct {
	mu    sync.RWMutex
	peers []Peer
	log   zerolog.Logger
}

// New builds a Store from an already-assembled membership (the external
// loader's peer list plus the appended self record). It enforces
// exactly one self record and unique ids before any component can
// observe the table.
func New(peers []Peer, log zerolog.Logger) (*Store, error) {
	selves := 0
	seen := make(map[uint64]struct{}, len(peers))
	for _, p := range peers {
		if p.Self {
			selves++
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("membership: duplicate peer id %d", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if selves != 1 {
		return nil, fmt.Errorf("membership: expected exactly one self record, found %d", selves)
	}

	cp := make([]Peer, len(peers))
	copy(cp, peers)
	return &Store{peers: cp, log: log}, nil
}

// Snapshot returns an immutable point-in-time copy of the membership.
// Callers never hold the store's lock across multiple operations; the
// lock is released before this function returns.
func (s *Store) Snapshot() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Peer, len(s.peers))
	copy(out, s.peers)
	return out
}

// Self returns the peer record with Self == true. Its absence is an
// internal invariant failure that New already guards against, so this
// only errors if the store was somehow constructed without going
// through New.
func (s *Store) Self() (Peer, error) {
	return SelfOf(s.Snapshot())
}

// SelfOf finds the self record within an already-taken snapshot, so
// callers that snapshot once and inspect it several times (H, E) don't
// need to re-lock the store.
func SelfOf(snapshot []Peer) (Peer, error) {
	for _, p := range snapshot {
		if p.Self {
			return p, nil
		}
	}
	return Peer{}, fmt.Errorf("membership: no self record present")
}

// HigherThan returns peers within snapshot whose id is strictly greater
// than selfID, excluding the self record, ordered by id ascending for a
// deterministic iteration order.
func HigherThan(snapshot []Peer, selfID uint64) []Peer {
	var out []Peer
	for _, p := range snapshot {
		if p.Self {
			continue
		}
		if p.ID > selfID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// apply performs the single mutating operation the store ever does:
// set is_leader on the peer matching id, clear it everywhere else. An
// unknown id is discarded with a logged warning and the table is left
// untouched.
func (s *Store) apply(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.peers {
		if s.peers[i].ID == id {
			found = true
			break
		}
	}
	if !found {
		known := make([]uint64, len(s.peers))
		for i, p := range s.peers {
			known[i] = p.ID
		}
		s.log.Warn().
			Uint64("peer_id", id).
			Uints64("known_ids", known).
			Msg("discarding leader announcement for unknown peer id")
		return
	}

	for i := range s.peers {
		s.peers[i].Leader = s.peers[i].ID == id
	}
}

// RunUpdater drains ch sequentially until ctx is cancelled, applying
// each LeaderAnnouncement in arrival order so every reader observes a
// consistent snapshot. It is the sole writer of the membership table by
// construction: no other goroutine ever calls apply.
func (s *Store) RunUpdater(ctx context.Context, ch <-chan messages.LeaderAnnouncement) {
	for {
		select {
		case <-ctx.Done():
			return
		case ann := <-ch:
			s.apply(ann.ID)
		}
	}
}

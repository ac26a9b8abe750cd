// Package election implements the Bully algorithm engine. Given an
// ElectionRequest, it determines whether self should become leader and,
// if so, announces it.
//
// Grounded directly on the teacher's internal/election/bully.go
// (startElection, becomeLeader, broadcastLeadership, sendMessage),
// restructured around a dedicated worker that drains a typed
// ElectionRequest channel instead of the teacher's fire-and-forget
// `go c.startElection()` calls, so election runs within one process are
// serialised rather than left to run concurrently (see DESIGN.md for the
// rationale).
package election

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/oss-bully/peerguard/internal/membership"
	"github.com/oss-bully/peerguard/internal/messages"
	"github.com/oss-bully/peerguard/internal/transport"
)

const (
	wireElection = "ELECTION"
	newLeaderFmt = "NEW LEADER %d"
)

// Engine is the election worker.
type Engine struct {
	Store               *membership.Store
	Transport           transport.Transport
	ElectionReadTimeout time.Duration
	MembershipCh        chan<- messages.LeaderAnnouncement
	Log                 zerolog.Logger
}

// Run drains reqCh and runs one Bully protocol round per request until
// ctx is cancelled. Requests are serviced one at a time, so overlapping
// triggers within one process never run concurrently.
func (e *Engine) Run(ctx context.Context, reqCh <-chan messages.ElectionRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reqCh:
			e.runOnce(ctx)
		}
	}
}

// runOnce executes one election round: ask every higher-id peer, yield
// if any answers, otherwise proclaim self leader.
func (e *Engine) runOnce(ctx context.Context) {
	snapshot := e.Store.Snapshot()

	self, err := membership.SelfOf(snapshot)
	if err != nil {
		e.Log.Error().Err(err).Msg("aborting election")
		return
	}

	higher := membership.HigherThan(snapshot, self.ID)

	e.Log.Info().Uint64("self_id", self.ID).Int("higher_peer_count", len(higher)).Msg("starting election")

	answered := false
	for _, peer := range higher {
		if e.askPeer(peer) {
			answered = true
		}
	}

	if answered {
		e.Log.Info().Uint64("self_id", self.ID).Msg("higher peer answered, yielding")
		return
	}

	e.proclaimSelf(ctx, snapshot, self)
}

// askPeer sends ELECTION to one higher-id peer and waits up to
// ElectionReadTimeout for any reply. Connect failure, write failure,
// read timeout, or empty read all count as "no answer" and are logged
// rather than aborting the round.
func (e *Engine) askPeer(peer membership.Peer) bool {
	reply, err := e.Transport.Request(peer.Addr(), wireElection, e.ElectionReadTimeout)
	if err != nil {
		e.Log.Info().Uint64("peer_id", peer.ID).Err(err).Msg("no answer from peer")
		return false
	}
	e.Log.Debug().Uint64("peer_id", peer.ID).Str("reply", reply).Msg("received election reply")
	return true
}

// proclaimSelf self-announces on the membership channel (so this
// process's own membership table updates) and broadcasts NEW LEADER to
// every other peer, lower or higher id alike. A failure to enqueue the
// self-announcement is fatal: the engine can no longer guarantee its
// own membership view is consistent.
func (e *Engine) proclaimSelf(ctx context.Context, snapshot []membership.Peer, self membership.Peer) {
	e.Log.Info().Uint64("self_id", self.ID).Msg("no answers received, proclaiming self leader")

	select {
	case e.MembershipCh <- messages.LeaderAnnouncement{ID: self.ID}:
	case <-ctx.Done():
		return
	case <-time.After(messages.ElectionChanTimeout):
		e.Log.Fatal().Uint64("self_id", self.ID).Msg("failed to deliver self-proclamation on membership channel")
	}

	for _, peer := range snapshot {
		if peer.ID == self.ID {
			continue
		}
		msg := fmt.Sprintf(newLeaderFmt, self.ID)
		if err := e.Transport.Notify(peer.Addr(), msg); err != nil {
			e.Log.Warn().Uint64("peer_id", peer.ID).Err(err).Msg("new leader broadcast failed")
		}
	}
}

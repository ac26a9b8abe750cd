package election_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-bully/peerguard/internal/election"
	"github.com/oss-bully/peerguard/internal/membership"
	"github.com/oss-bully/peerguard/internal/messages"
	"github.com/oss-bully/peerguard/internal/transport"
)

// answeringPeer accepts one connection at a time and replies "OK
// ELECTION" to anything it reads, simulating a live higher-id peer.
func answeringPeer(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 64)
				conn.Read(buf)
				conn.Write([]byte("OK ELECTION"))
			}()
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return uint16(p)
}

// TestElectionYieldsWhenHigherPeerAnswers asserts that when a
// higher-id peer answers ELECTION, self must not proclaim itself.
func TestElectionYieldsWhenHigherPeerAnswers(t *testing.T) {
	higherPort := answeringPeer(t)

	peers := []membership.Peer{
		{ID: 1, Host: "127.0.0.1", Port: 1, Self: true},
		{ID: 3, Host: "127.0.0.1", Port: higherPort},
	}
	store, err := membership.New(peers, zerolog.Nop())
	require.NoError(t, err)

	membershipCh := make(chan messages.LeaderAnnouncement, 1)
	e := &election.Engine{
		Store:               store,
		Transport:           transport.New(200 * time.Millisecond),
		ElectionReadTimeout: 200 * time.Millisecond,
		MembershipCh:        membershipCh,
		Log:                 zerolog.Nop(),
	}

	reqCh := make(chan messages.ElectionRequest, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx, reqCh)

	reqCh <- messages.ElectionRequest{}

	select {
	case <-membershipCh:
		t.Fatal("should not self-proclaim when a higher peer answered")
	case <-time.After(300 * time.Millisecond):
	}
}

// TestElectionWinsWhenNoHigherPeerExists asserts that self having the
// highest id always results in self-proclamation.
func TestElectionWinsWhenNoHigherPeerExists(t *testing.T) {
	peers := []membership.Peer{
		{ID: 1, Host: "127.0.0.1", Port: 1},
		{ID: 3, Host: "127.0.0.1", Port: 3, Self: true},
	}
	store, err := membership.New(peers, zerolog.Nop())
	require.NoError(t, err)

	membershipCh := make(chan messages.LeaderAnnouncement, 1)
	e := &election.Engine{
		Store:               store,
		Transport:           transport.New(100 * time.Millisecond),
		ElectionReadTimeout: 100 * time.Millisecond,
		MembershipCh:        membershipCh,
		Log:                 zerolog.Nop(),
	}

	reqCh := make(chan messages.ElectionRequest, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx, reqCh)

	reqCh <- messages.ElectionRequest{}

	select {
	case ann := <-membershipCh:
		assert.Equal(t, uint64(3), ann.ID)
	case <-time.After(time.Second):
		t.Fatal("expected self-proclamation when H is empty")
	}
}

// TestElectionWinsWhenHigherPeerUnreachable asserts that when every
// higher-id peer is unreachable, self wins after timing out on each.
func TestElectionWinsWhenHigherPeerUnreachable(t *testing.T) {
	peers := []membership.Peer{
		{ID: 1, Host: "127.0.0.1", Port: 1, Self: true},
		// Port 59999 on loopback with nothing listening: connection refused.
		{ID: 2, Host: "127.0.0.1", Port: 59999},
	}
	store, err := membership.New(peers, zerolog.Nop())
	require.NoError(t, err)

	membershipCh := make(chan messages.LeaderAnnouncement, 1)
	e := &election.Engine{
		Store:               store,
		Transport:           transport.New(100 * time.Millisecond),
		ElectionReadTimeout: 100 * time.Millisecond,
		MembershipCh:        membershipCh,
		Log:                 zerolog.Nop(),
	}

	reqCh := make(chan messages.ElectionRequest, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx, reqCh)

	reqCh <- messages.ElectionRequest{}

	select {
	case ann := <-membershipCh:
		assert.Equal(t, uint64(1), ann.ID)
	case <-time.After(time.Second):
		t.Fatal("expected self-proclamation when every higher peer is unreachable")
	}
}

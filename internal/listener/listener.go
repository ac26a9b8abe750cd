// Package listener accepts inbound peer connections, reads one framed
// message per connection, classifies it, dispatches a typed
// notification on the appropriate internal channel, and replies
// synchronously.
//
// Grounded on the teacher's internal/election/bully.go startServer and
// handleConnection, generalised from its two-way ELECTION/OK/LEADER
// switch to the spec's four-way classification table, and on
// cmd/coordinator/main.go's startHealthServer/handleHealthCheck for the
// accept-read-write-close shape of a single-message-per-connection
// server.
package listener

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oss-bully/peerguard/internal/messages"
	"github.com/oss-bully/peerguard/internal/transport"
)

// connReadTimeout bounds how long the listener waits for a peer to
// finish writing its single message, so a slow or stuck sender can
// never tie up an accept-loop goroutine forever.
const connReadTimeout = 5 * time.Second

const (
	replyElectionOK  = "OK ELECTION"
	replyOK          = "OK"
	replyHeartbeatOK = "ok"
	replyError       = "error"

	msgElection     = "ELECTION"
	msgHeartbeat    = "HEARTBEAT"
	newLeaderPrefix = "NEW LEADER "
)

// Dispatcher is the listener's accept loop plus the channels it
// demultiplexes onto.
type Dispatcher struct {
	Port uint16

	ElectionCh   chan<- messages.ElectionRequest
	HeartbeatCh  chan<- messages.HeartbeatTick
	MembershipCh chan<- messages.LeaderAnnouncement

	Log zerolog.Logger
}

// ListenAndServe binds the inbound acceptor and serves connections
// until ctx is cancelled. A bind failure is fatal to the process and is
// returned for the caller to treat as such.
func (d *Dispatcher) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(int(d.Port)))
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	d.Log.Info().Uint16("port", d.Port).Msg("listener bound")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.Log.Error().Err(err).Msg("accept failed")
			continue
		}
		go d.handle(conn)
	}
}

// handle reads exactly one message off conn, classifies and dispatches
// it, writes the synchronous reply, and closes the connection. Read,
// write, and decode failures are logged and the connection dropped;
// they are never fatal to the accept loop.
func (d *Dispatcher) handle(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(connReadTimeout)); err != nil {
		d.Log.Error().Err(err).Msg("set read deadline failed")
		return
	}

	buf := make([]byte, transport.ReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		d.Log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("read failed")
		return
	}

	message := strings.TrimSpace(string(buf[:n]))
	reply := d.classify(message)

	if _, err := conn.Write([]byte(reply)); err != nil {
		d.Log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("write failed")
	}
}

// classify implements the exhaustive, case-sensitive classification
// table. The reply is sent before the recipient of the channel message
// has necessarily processed it: acknowledgement here means "accepted
// and queued", not "the effect has taken place".
func (d *Dispatcher) classify(message string) string {
	switch {
	case message == msgElection:
		if !messages.TrySendElection(d.ElectionCh, messages.ElectionRequest{}) {
			d.Log.Warn().Msg("election channel full, request dropped")
		}
		return replyElectionOK

	case message == msgHeartbeat:
		messages.TrySendHeartbeatTick(d.HeartbeatCh)
		return replyHeartbeatOK

	case strings.HasPrefix(message, newLeaderPrefix):
		idStr := strings.TrimPrefix(message, newLeaderPrefix)
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			d.Log.Warn().Str("payload", message).Err(err).Msg("malformed NEW LEADER payload")
			return replyError
		}

		select {
		case d.MembershipCh <- messages.LeaderAnnouncement{ID: id}:
			return replyOK
		case <-time.After(messages.ElectionChanTimeout):
			d.Log.Error().Uint64("peer_id", id).Msg("membership channel full, announcement dropped")
			return replyError
		}

	default:
		d.Log.Warn().Str("payload", message).Msg("unknown message")
		return replyError
	}
}

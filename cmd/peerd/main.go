// Command peerd runs one peer of a static Bully-election cluster. It
// takes three positional arguments: own identifier, own port, peer-list
// file path, plus an optional fourth config-file path for the heartbeat
// detector's tunables, then wires the listener, membership store,
// heartbeat detector, election engine, and work driver together for the
// lifetime of the process.
//
// Grounded on original_source/src/utils/arg_handler.rs (positional-arg
// validation, usage message, exit code 1 on any failure) for the CLI
// contract and on the teacher's cmd/coordinator/main.go for the signal
// handling and multi-activity startup shape, re-wired through
// golang.org/x/sync/errgroup instead of raw sync.WaitGroup so one
// activity's fatal error cancels the rest.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/oss-bully/peerguard/internal/election"
	"github.com/oss-bully/peerguard/internal/heartbeat"
	"github.com/oss-bully/peerguard/internal/listener"
	"github.com/oss-bully/peerguard/internal/membership"
	"github.com/oss-bully/peerguard/internal/messages"
	"github.com/oss-bully/peerguard/internal/peerlist"
	"github.com/oss-bully/peerguard/internal/transport"
	"github.com/oss-bully/peerguard/internal/work"
)

const usage = "Usage: peerd <id> <port> <peer-list-file> [config-file]"

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("peerd exiting")
	}
}

func run(log zerolog.Logger) error {
	if len(os.Args) != 4 && len(os.Args) != 5 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	selfID, err := strconv.ParseUint(os.Args[1], 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	port, err := strconv.ParseUint(os.Args[2], 10, 16)
	if err != nil {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	peers, err := peerlist.Load(os.Args[3])
	if err != nil {
		log.Error().Err(err).Msg("failed to load peer list")
		os.Exit(1)
	}

	configPath := ""
	if len(os.Args) == 5 {
		configPath = os.Args[4]
	}
	cfg, err := heartbeat.LoadConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load heartbeat config")
		os.Exit(1)
	}

	for _, p := range peers {
		if p.ID == selfID {
			log.Error().Uint64("id", selfID).Msg("own id collides with a peer in the peer list")
			os.Exit(1)
		}
		if p.Port == uint16(port) {
			log.Error().Uint64("port", port).Msg("own port collides with a peer in the peer list")
			os.Exit(1)
		}
	}
	peers = append(peers, membership.Peer{ID: selfID, Host: "0.0.0.0", Port: uint16(port), Self: true})

	store, err := membership.New(peers, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build membership store")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	electionCh := make(chan messages.ElectionRequest, 4)
	heartbeatCh := make(chan messages.HeartbeatTick, 8)
	membershipCh := make(chan messages.LeaderAnnouncement, 16)

	tp := transport.New(cfg.PeerDialTimeout)

	dispatcher := &listener.Dispatcher{
		Port:         uint16(port),
		ElectionCh:   electionCh,
		HeartbeatCh:  heartbeatCh,
		MembershipCh: membershipCh,
		Log:          log.With().Str("component", "listener").Logger(),
	}

	detector := &heartbeat.Detector{
		Store:       store,
		Transport:   tp,
		ElectionCh:  electionCh,
		HeartbeatCh: heartbeatCh,
		Config:      cfg,
		Log:         log.With().Str("component", "heartbeat").Logger(),
	}

	engine := &election.Engine{
		Store:               store,
		Transport:           tp,
		ElectionReadTimeout: cfg.ElectionReadTimeout,
		MembershipCh:        membershipCh,
		Log:                 log.With().Str("component", "election").Logger(),
	}

	driver := &work.Driver{
		Store: store,
		Log:   log.With().Str("component", "work").Logger(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return dispatcher.ListenAndServe(ctx) })
	g.Go(func() error { store.RunUpdater(ctx, membershipCh); return nil })
	g.Go(func() error { detector.Run(ctx); return nil })
	g.Go(func() error { engine.Run(ctx, electionCh); return nil })
	g.Go(func() error { driver.Run(ctx); return nil })

	log.Info().Uint64("self_id", selfID).Uint64("port", port).Msg("peerd started")

	return g.Wait()
}

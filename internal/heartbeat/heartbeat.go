// Package heartbeat implements the failure detector: emit liveness when
// self is leader, consume liveness when subordinate, arm an election
// trigger on silence.
//
// Grounded on the teacher's internal/election/bully.go sendHeartbeats
// and monitorElectionTimeout, and on original_source/src/healthchecker.rs
// for the exact non-blocking-drain / timer-reset semantics. Two ticks in
// one period collapse into a single reset: liveness is a level signal,
// not an edge count.
package heartbeat

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/oss-bully/peerguard/internal/membership"
	"github.com/oss-bully/peerguard/internal/messages"
	"github.com/oss-bully/peerguard/internal/transport"
)

const (
	wireHeartbeat = "HEARTBEAT"

	defaultHeartbeatPeriod     = 10 * time.Second
	defaultHeartbeatTimeout    = 60 * time.Second
	defaultPeerDialTimeout     = 2 * time.Second
	defaultElectionReadTimeout = 2 * time.Second
)

// Config carries the detector's four recognised tunables. Zero values
// fall back to the documented defaults; LoadConfig applies that
// fallback after parsing.
type Config struct {
	HeartbeatPeriod     time.Duration
	HeartbeatTimeout    time.Duration
	PeerDialTimeout     time.Duration
	ElectionReadTimeout time.Duration
}

// yamlConfig mirrors Config for the YAML file's on-disk shape, where
// each tunable is written as a duration string ("10s", "1m30s") rather
// than a raw integer of nanoseconds.
type yamlConfig struct {
	HeartbeatPeriod     string `yaml:"heartbeat_period"`
	HeartbeatTimeout    string `yaml:"heartbeat_timeout"`
	PeerDialTimeout     string `yaml:"peer_dial_timeout"`
	ElectionReadTimeout string `yaml:"election_read_timeout"`
}

// DefaultConfig returns the documented defaults, used when no config
// file is supplied at all.
func DefaultConfig() Config {
	return Config{
		HeartbeatPeriod:     defaultHeartbeatPeriod,
		HeartbeatTimeout:    defaultHeartbeatTimeout,
		PeerDialTimeout:     defaultPeerDialTimeout,
		ElectionReadTimeout: defaultElectionReadTimeout,
	}
}

// LoadConfig reads an optional YAML tunables file, in the same
// read-file-then-yaml.Unmarshal idiom the teacher uses in
// cmd/coordinator/config.go for docker-compose.yml. Any field the file
// omits (or a zero duration) keeps its documented default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var override yamlConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Config{}, err
	}

	if err := applyDuration(override.HeartbeatPeriod, &cfg.HeartbeatPeriod); err != nil {
		return Config{}, fmt.Errorf("heartbeat: heartbeat_period: %w", err)
	}
	if err := applyDuration(override.HeartbeatTimeout, &cfg.HeartbeatTimeout); err != nil {
		return Config{}, fmt.Errorf("heartbeat: heartbeat_timeout: %w", err)
	}
	if err := applyDuration(override.PeerDialTimeout, &cfg.PeerDialTimeout); err != nil {
		return Config{}, fmt.Errorf("heartbeat: peer_dial_timeout: %w", err)
	}
	if err := applyDuration(override.ElectionReadTimeout, &cfg.ElectionReadTimeout); err != nil {
		return Config{}, fmt.Errorf("heartbeat: election_read_timeout: %w", err)
	}
	return cfg, nil
}

// applyDuration parses raw as a time.Duration and overwrites *field when
// the parsed value is non-zero; an empty string (the field omitted from
// the YAML file) or a zero duration leaves *field at its existing
// default untouched.
func applyDuration(raw string, field *time.Duration) error {
	if raw == "" {
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	if parsed != 0 {
		*field = parsed
	}
	return nil
}

// Detector is the heartbeat/failure-detector loop.
type Detector struct {
	Store       *membership.Store
	Transport   transport.Transport
	ElectionCh  chan<- messages.ElectionRequest
	HeartbeatCh <-chan messages.HeartbeatTick
	Config      Config
	Log         zerolog.Logger

	lastHeartbeat time.Time
}

// Run executes the detector's loop body every Config.HeartbeatPeriod
// until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	d.lastHeartbeat = time.Now()

	ticker := time.NewTicker(d.Config.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Detector) tick() {
	snapshot := d.Store.Snapshot()

	self, err := membership.SelfOf(snapshot)
	if err != nil {
		d.Log.Error().Err(err).Msg("skipping heartbeat tick")
		return
	}

	if self.Leader {
		d.fanOutHeartbeats(snapshot, self)
		return
	}

	d.drainOrArm()
}

// fanOutHeartbeats sends HEARTBEAT to every non-leader, non-self peer.
// A per-peer failure is logged and does not stop the fan-out; heartbeats
// are best-effort, fire-and-forget.
func (d *Detector) fanOutHeartbeats(snapshot []membership.Peer, self membership.Peer) {
	for _, p := range snapshot {
		if p.Leader || p.Self {
			continue
		}
		if err := d.Transport.Notify(p.Addr(), wireHeartbeat); err != nil {
			d.Log.Warn().Uint64("peer_id", p.ID).Err(err).Msg("heartbeat send failed")
		}
	}
}

// drainOrArm performs the non-blocking drain: any tick present resets
// the timer; otherwise an expired timeout arms one election and resets
// the timer to avoid a storm of triggers.
func (d *Detector) drainOrArm() {
	drained := false
	for {
		select {
		case <-d.HeartbeatCh:
			drained = true
			continue
		default:
		}
		break
	}

	if drained {
		d.lastHeartbeat = time.Now()
		return
	}

	if time.Since(d.lastHeartbeat) > d.Config.HeartbeatTimeout {
		if !messages.TrySendElection(d.ElectionCh, messages.ElectionRequest{}) {
			d.Log.Warn().Msg("election channel full, timeout trigger dropped")
		}
		d.lastHeartbeat = time.Now()
	}
}

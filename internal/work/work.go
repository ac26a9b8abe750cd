// Package work is a minimal stand-in for the work driver: the domain
// task that runs once a leader is known. That task is out of scope
// here; this package only demonstrates the consumer contract, reading
// the current role from the membership store and acting on it, without
// inventing the domain task itself.
//
// Grounded on the teacher's cmd/coordinator/main.go main loop
// ("if !elector.IsLeader() { skip } else { do the leader's work }") and
// on original_source/src/work_thread.rs (am_i_leader / start_work, whose
// body is a TODO in the original too).
package work

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/oss-bully/peerguard/internal/membership"
)

// pollInterval is how often the driver re-checks its role. Nothing
// constrains this value; it only needs to be frequent enough that a
// role change is noticed promptly by whatever real domain task
// eventually replaces this stub.
const pollInterval = 2 * time.Second

// Driver polls the membership store for this process's current role and
// logs transitions between leader and subordinate. A real deployment
// replaces the two TODOs below with actual domain work; peerguard itself
// has none to do.
type Driver struct {
	Store *membership.Store
	Log   zerolog.Logger
}

// Run polls until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	wasLeader := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			self, err := d.Store.Self()
			if err != nil {
				d.Log.Error().Err(err).Msg("work driver: self not present in membership")
				continue
			}

			if self.Leader != wasLeader {
				d.Log.Info().Bool("leader", self.Leader).Msg("work driver role changed")
				wasLeader = self.Leader
			}

			if self.Leader {
				// TODO: dispatch the leader's share of domain work once a
				// real task is defined.
				continue
			}
			// TODO: dispatch the subordinate's share of domain work.
		}
	}
}

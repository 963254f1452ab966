package registry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/planningpoker/internal/event"
	"github.com/Iron-Ham/planningpoker/internal/poker"
)

// SweepInactive disconnects every participant not seen within threshold
// from every team in memory. Teams are processed concurrently, each under
// its own lock; a team whose lock cannot be taken is skipped until the
// next sweep. It returns the number of participants disconnected.
func (r *Registry) SweepInactive(ctx context.Context, threshold time.Duration) int {
	r.mu.RLock()
	locks := make([]*TeamLock, 0, len(r.teams))
	for _, e := range r.teams {
		locks = append(locks, e.lock)
	}
	r.mu.RUnlock()

	var total atomic.Int64
	p := pool.New().WithContext(ctx).WithMaxGoroutines(r.sweepWorkers)
	for _, lock := range locks {
		p.Go(func(ctx context.Context) error {
			var removed []string
			err := lock.Do(ctx, func(team *poker.Team) error {
				removed = team.DisconnectInactive(threshold)
				if len(removed) > 0 {
					r.bus.Publish(event.NewTeamSweptEvent(team.Name(), removed))
				}
				return nil
			})
			if err != nil {
				r.logger.WithTeam(lock.Name()).Warn("skipping team in inactivity sweep", "error", err)
				return nil
			}
			if len(removed) > 0 {
				r.logger.WithTeam(lock.Name()).Info("disconnected inactive participants", "participants", removed)
				total.Add(int64(len(removed)))
			}
			return nil
		})
	}
	_ = p.Wait()
	return int(total.Load())
}

// RunSweeper calls SweepInactive with the current inactivity timeout every
// interval until ctx ends.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepInactive(ctx, r.InactivityTimeout())
		}
	}
}

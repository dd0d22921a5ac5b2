package reconciler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// minWait keeps the scheduler from spinning when a session ends right now.
const minWait = time.Second

// Wake asks a running scheduler to sweep now. It never blocks.
func (r *Reconciler) Wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// Run sweeps immediately, then sleeps until the active session's end time or
// the poll interval, whichever is sooner, and repeats until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	log.Info().
		Str("instance", r.instanceID).
		Dur("interval", r.interval).
		Msg("reconciler scheduler started")

	retryCount := 0
	wait, ok := r.tick(ctx, &retryCount)
	if !ok {
		return nil
	}
	timer := r.clock.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-timer.Chan():
		case <-r.wakeCh:
			log.Debug().Str("instance", r.instanceID).Msg("woken up early")
		case <-ctx.Done():
			log.Info().Str("instance", r.instanceID).Msg("reconciler scheduler stopped")
			return nil
		}

		if wait, ok = r.tick(ctx, &retryCount); !ok {
			return nil
		}
		stopAndDrainTimer(timer)
		timer.Reset(wait)
	}
}

// tick runs one sweep and returns how long to sleep before the next one.
// ok is false once ctx is done.
func (r *Reconciler) tick(ctx context.Context, retryCount *int) (time.Duration, bool) {
	select {
	case <-r.wakeCh:
		log.Debug().Str("instance", r.instanceID).Msg("drained wake channel")
	default:
	}

	wait := r.interval
	report, err := r.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		*retryCount++
		wait = time.Second * time.Duration(*retryCount)
		if wait > r.interval {
			wait = r.interval
		}
		log.Error().
			Err(err).
			Int("retry", *retryCount).
			Str("instance", r.instanceID).
			Msg("sweep failed, retrying")
	} else {
		*retryCount = 0
		if report.ActiveSession != nil {
			if d := report.ActiveSession.EndTime.Sub(r.clock.Now()); d < wait {
				wait = d
			}
		}
	}
	if wait < minWait {
		wait = minWait
	}

	log.Debug().Str("instance", r.instanceID).Dur("wait", wait).Msg("next sweep scheduled")
	return wait, true
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

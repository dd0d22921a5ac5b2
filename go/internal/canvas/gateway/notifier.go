package gateway

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/internal/canvas/events"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

// Notifier turns placements and session changes into events and hands them to
// a Sink: the local hub when running alone, JetStream when several processes
// share the fan-out. Failures are logged; delivery is best-effort.
type Notifier struct {
	sink  Sink
	clock clockwork.Clock
}

func NewNotifier(sink Sink, clock clockwork.Clock) *Notifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Notifier{sink: sink, clock: clock}
}

func (n *Notifier) PixelPlaced(ctx context.Context, p models.Pixel) {
	env, err := events.PixelPlaced(p)
	n.publish(ctx, env, err)
}

func (n *Notifier) SessionChanged(ctx context.Context, s models.Session) {
	env, err := events.SessionChanged(s, n.clock.Now())
	n.publish(ctx, env, err)
}

func (n *Notifier) publish(ctx context.Context, env *events.Envelope, err error) {
	if err != nil {
		log.Error().Err(err).Msg("failed to build canvas event")
		return
	}
	if env == nil {
		return
	}
	if err := n.sink.Publish(ctx, env); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", env.SessionID).
			Str("event_type", string(env.EventType)).
			Msg("failed to publish canvas event")
	}
}

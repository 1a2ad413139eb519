package ws

import (
	"context"
	"time"

	"github.com/playmatatu/pairrooms/internal/broker"
	"github.com/rs/zerolog/log"
)

// StartEventSubscriber relays broker events for regions into the hub. If the
// subscription drops it is re-established after a short pause.
func StartEventSubscriber(ctx context.Context, b broker.Broker, hub *Hub, regions []string) {
	if b == nil {
		log.Warn().Str("module", "ws").Msg("no broker configured; event subscriber not started")
		return
	}

	go func() {
		for {
			err := b.Subscribe(ctx, regions, hub.BroadcastToRegion)
			if ctx.Err() != nil {
				return
			}
			log.Warn().Str("module", "ws").Err(err).Msg("event subscription ended; resubscribing")
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}()
}

package rooms

import (
	"context"
	"time"

	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/rs/zerolog/log"
)

// SweepResult summarises one cleanup pass over a region
type SweepResult struct {
	Evicted         int `json:"evicted"`
	ReleasedAddress int `json:"released_addresses"`
}

// Sweep evicts players whose presence marker expired, heals IP bindings
// left behind by abrupt disconnects and re-arms timers for rooms this process
// is not driving yet.
func (e *Engine) Sweep(ctx context.Context, region string) (SweepResult, error) {
	current, err := e.store.Rooms(ctx, region)
	if err != nil {
		return SweepResult{}, err
	}
	offline, err := e.presence.Offline(ctx, region, current)
	if err != nil {
		return SweepResult{}, err
	}

	var (
		result  SweepResult
		evicted map[string][]models.Player
	)
	rooms, changed, err := e.store.Update(ctx, region, func(tx *RegionTx) (bool, error) {
		result = SweepResult{}
		evicted = make(map[string][]models.Player)
		for i := range tx.Rooms {
			// Players that joined after the presence probe are not in
			// offline and are kept.
			if gone := evictOffline(&tx.Rooms[i], offline); len(gone) > 0 {
				evicted[tx.Rooms[i].ID] = gone
				result.Evicted += len(gone)
			}
		}

		bindings, err := tx.Bindings()
		if err != nil {
			return false, err
		}
		orphans := orphanedBindings(tx.Rooms, bindings)
		tx.Release(orphans...)
		result.ReleasedAddress = len(orphans)

		return result.Evicted > 0, nil
	})
	if err != nil {
		return SweepResult{}, err
	}

	for roomID, gone := range evicted {
		for _, p := range gone {
			log.Info().Str("module", "sweeper").Str("region", region).Str("room", roomID).
				Str("player", p.ID).Str("tag", p.DisplayTag).Msg("evicted offline player")
		}
	}
	if changed {
		e.broadcaster.Snapshot(ctx, region, rooms)
	}
	e.countdown.Recover(region, rooms)
	return result, nil
}

// StartCleanupSweeper sweeps every region on a fixed interval until ctx is
// done. A failed pass is logged and retried on the next tick.
func StartCleanupSweeper(ctx context.Context, e *Engine, regions []string, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Str("module", "sweeper").Dur("interval", interval).Strs("regions", regions).Msg("cleanup sweeper started")

	// Pick up countdowns left behind by a previous process right away.
	for _, region := range regions {
		if rooms, err := e.Snapshot(ctx, region); err == nil {
			e.countdown.Recover(region, rooms)
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "sweeper").Msg("cleanup sweeper stopped")
			return
		case <-ticker.C:
			for _, region := range regions {
				sweepCtx, cancel := context.WithTimeout(ctx, interval)
				res, err := e.Sweep(sweepCtx, region)
				cancel()
				if err != nil {
					log.Warn().Str("module", "sweeper").Str("region", region).Err(err).Msg("sweep skipped")
					continue
				}
				if res.Evicted > 0 || res.ReleasedAddress > 0 {
					log.Info().Str("module", "sweeper").Str("region", region).
						Int("evicted", res.Evicted).Int("released_addresses", res.ReleasedAddress).Msg("sweep corrected state")
				}
			}
		}
	}
}

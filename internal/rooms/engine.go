package rooms

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Options tunes the engine's timing. Zero values fall back to defaults.
type Options struct {
	PresenceTTL       time.Duration
	CountdownDuration time.Duration
	MatchedViewDelay  time.Duration
	CountdownTick     time.Duration
	Now               func() time.Time
}

func (o *Options) withDefaults() {
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = 30 * time.Second
	}
	if o.CountdownDuration <= 0 {
		o.CountdownDuration = 10 * time.Second
	}
	if o.MatchedViewDelay <= 0 {
		o.MatchedViewDelay = 5 * time.Second
	}
	if o.CountdownTick <= 0 {
		o.CountdownTick = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine is the request-facing side of the room engine. It holds no room
// state of its own: every call reads and writes through the shared store, so
// any number of processes can serve the same regions.
type Engine struct {
	store       *RedisStore
	presence    *Presence
	broadcaster *Broadcaster
	countdown   *Scheduler
	clock       func() time.Time
}

// NewEngine wires the engine. ctx bounds the lifetime of countdown timers.
func NewEngine(ctx context.Context, rdb *redis.Client, regions map[string]int, pub Publisher, opts Options) *Engine {
	opts.withDefaults()
	e := &Engine{
		store:       NewRedisStore(rdb, regions),
		presence:    NewPresence(rdb, opts.PresenceTTL),
		broadcaster: NewBroadcaster(pub),
		clock:       opts.Now,
	}
	e.countdown = newScheduler(ctx, e, rdb, opts)
	return e
}

// Scheduler exposes the countdown scheduler
func (e *Engine) Scheduler() *Scheduler {
	return e.countdown
}

// now strips the monotonic reading so timestamps compare equal after a JSON
// round trip through the store.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Round(0)
}

// HasRegion reports whether region is served
func (e *Engine) HasRegion(region string) bool {
	return e.store.HasRegion(region)
}

// Snapshot returns the current room list of a region
func (e *Engine) Snapshot(ctx context.Context, region string) ([]models.Room, error) {
	return e.store.Rooms(ctx, region)
}

// Room returns a single room
func (e *Engine) Room(ctx context.Context, region, roomID string) (models.Room, error) {
	rooms, err := e.store.Rooms(ctx, region)
	if err != nil {
		return models.Room{}, err
	}
	room := findRoom(rooms, roomID)
	if room == nil {
		return models.Room{}, ErrRoomNotFound
	}
	return *room, nil
}

// Join places a new player with displayTag into a room.
func (e *Engine) Join(ctx context.Context, region, roomID, displayTag, addr string) (models.Player, error) {
	if err := ValidateTag(displayTag); err != nil {
		return models.Player{}, err
	}
	if !e.store.HasRegion(region) {
		return models.Player{}, ErrRegionNotFound
	}

	player := models.Player{ID: uuid.NewString(), DisplayTag: displayTag, JoinedAt: e.now()}
	restrict := ShouldRestrict(addr)

	// The first marker goes in before the room write so a concurrent sweep
	// never sees the new player without one. If the join fails it just
	// expires.
	if err := e.presence.RecordHeartbeat(ctx, region, roomID, player.ID, player.JoinedAt); err != nil {
		return models.Player{}, err
	}

	var joined models.Room
	rooms, _, err := e.store.Update(ctx, region, func(tx *RegionTx) (bool, error) {
		if restrict {
			bound, err := tx.Binding(addr)
			if err != nil {
				return false, err
			}
			if err := checkBinding(tx.Rooms, bound, roomID); err != nil {
				return false, err
			}
		}
		room, err := applyJoin(tx.Rooms, roomID, player)
		if err != nil {
			return false, err
		}
		if restrict {
			tx.Bind(addr, Binding{RoomID: roomID, PlayerID: player.ID})
		}
		joined = *room
		return true, nil
	})
	if err != nil {
		return models.Player{}, err
	}

	log.Info().Str("module", "rooms").Str("region", region).Str("room", roomID).
		Str("player", player.ID).Str("tag", displayTag).Str("status", string(joined.Status)).Msg("player joined")

	e.broadcaster.Snapshot(ctx, region, rooms)
	if joined.Status == models.StatusCountdown && joined.CountdownStart != nil {
		e.countdown.ArmCountdown(region, roomID, *joined.CountdownStart)
	}
	return player, nil
}

// Leave removes playerID from a room and releases addr's binding. An empty
// playerID clears the whole room.
func (e *Engine) Leave(ctx context.Context, region, roomID, playerID, addr string) error {
	restrict := ShouldRestrict(addr)

	var removed []models.Player
	rooms, changed, err := e.store.Update(ctx, region, func(tx *RegionTx) (bool, error) {
		_, gone, err := applyLeave(tx.Rooms, roomID, playerID)
		if err != nil {
			return false, err
		}
		removed = gone
		// A leave that removed nobody keeps the address bound, otherwise any
		// no-op leave would let a seated address join a second room.
		if restrict && (len(gone) > 0 || playerID == "") {
			tx.Release(addr)
		}
		if playerID == "" {
			if err := tx.ReleaseRoom(roomID); err != nil {
				return false, err
			}
		}
		return len(gone) > 0, nil
	})
	if err != nil {
		return err
	}

	if err := e.presence.Clear(ctx, region, roomID, removed); err != nil {
		log.Warn().Str("module", "rooms").Err(err).Msg("presence cleanup failed")
	}
	if changed {
		log.Info().Str("module", "rooms").Str("region", region).Str("room", roomID).
			Str("player", playerID).Int("removed", len(removed)).Msg("left room")
		e.broadcaster.Snapshot(ctx, region, rooms)
	}
	return nil
}

// Heartbeat refreshes a player's presence marker. Heartbeats for rooms or
// players that no longer exist succeed without doing anything.
func (e *Engine) Heartbeat(ctx context.Context, region, roomID, playerID string) error {
	room, err := e.Room(ctx, region, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !room.HasPlayer(playerID) {
		return nil
	}
	return e.presence.RecordHeartbeat(ctx, region, roomID, playerID, e.now())
}

// ConfirmMatch resolves a full room to matched without waiting for the
// countdown.
func (e *Engine) ConfirmMatch(ctx context.Context, region, roomID string) error {
	now := e.now()
	var matched models.Room
	rooms, changed, err := e.store.Update(ctx, region, func(tx *RegionTx) (bool, error) {
		room, changed, err := applyConfirm(tx.Rooms, roomID, now)
		if err != nil {
			return false, err
		}
		matched = *room
		return changed, nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	log.Info().Str("module", "rooms").Str("region", region).Str("room", roomID).Msg("match confirmed")
	e.broadcaster.Snapshot(ctx, region, rooms)
	if matched.MatchedAt != nil {
		e.countdown.ArmReset(region, roomID, *matched.MatchedAt)
	}
	return nil
}

// Timeout resolves the countdown that started at start, if it is still the
// current one.
func (e *Engine) Timeout(ctx context.Context, region, roomID string, start time.Time) (models.Room, error) {
	now := e.now()
	var result models.Room
	rooms, changed, err := e.store.Update(ctx, region, func(tx *RegionTx) (bool, error) {
		room, changed, err := applyTimeout(tx.Rooms, roomID, start, now)
		if err != nil {
			return false, err
		}
		result = *room
		return changed, nil
	})
	if err != nil {
		return models.Room{}, err
	}
	if changed {
		log.Info().Str("module", "rooms").Str("region", region).Str("room", roomID).
			Str("status", string(result.Status)).Msg("countdown elapsed")
		e.broadcaster.Snapshot(ctx, region, rooms)
	}
	return result, nil
}

// ResetMatched clears a room that has been matched since since.
func (e *Engine) ResetMatched(ctx context.Context, region, roomID string, since time.Time) error {
	var removed []models.Player
	rooms, changed, err := e.store.Update(ctx, region, func(tx *RegionTx) (bool, error) {
		_, gone, err := applyMatchedReset(tx.Rooms, roomID, since)
		if err != nil {
			return false, err
		}
		removed = gone
		if len(gone) == 0 {
			return false, nil
		}
		return true, tx.ReleaseRoom(roomID)
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := e.presence.Clear(ctx, region, roomID, removed); err != nil {
		log.Warn().Str("module", "rooms").Err(err).Msg("presence cleanup failed")
	}
	log.Info().Str("module", "rooms").Str("region", region).Str("room", roomID).Msg("matched room reset")
	e.broadcaster.Snapshot(ctx, region, rooms)
	return nil
}

// ResetRoom forces a room back to an empty waiting state regardless of
// what it is doing.
func (e *Engine) ResetRoom(ctx context.Context, region, roomID string) error {
	var removed []models.Player
	rooms, _, err := e.store.Update(ctx, region, func(tx *RegionTx) (bool, error) {
		room := findRoom(tx.Rooms, roomID)
		if room == nil {
			return false, ErrRoomNotFound
		}
		removed = room.Players
		resetRoom(room)
		return true, tx.ReleaseRoom(roomID)
	})
	if err != nil {
		return err
	}
	if err := e.presence.Clear(ctx, region, roomID, removed); err != nil {
		log.Warn().Str("module", "rooms").Err(err).Msg("presence cleanup failed")
	}
	log.Info().Str("module", "rooms").Str("region", region).Str("room", roomID).Msg("room force reset")
	e.broadcaster.Snapshot(ctx, region, rooms)
	return nil
}

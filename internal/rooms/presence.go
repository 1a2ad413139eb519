package rooms

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/redis/go-redis/v9"
)

func presenceKey(region, roomID, playerID string) string {
	return keyPrefix + "presence:" + region + ":" + roomID + ":" + playerID
}

// Presence stores one expiring liveness marker per (room, player). There is
// no disconnect signal: a marker that was not refreshed within the TTL is
// simply gone, and the sweeper treats its owner as offline.
type Presence struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPresence creates a marker store whose markers expire after ttl
func NewPresence(rdb *redis.Client, ttl time.Duration) *Presence {
	return &Presence{rdb: rdb, ttl: ttl}
}

// RecordHeartbeat writes or refreshes the marker of one player
func (p *Presence) RecordHeartbeat(ctx context.Context, region, roomID, playerID string, now time.Time) error {
	key := presenceKey(region, roomID, playerID)
	if err := p.rdb.Set(ctx, key, strconv.FormatInt(now.UnixMilli(), 10), p.ttl).Err(); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// Offline returns the ids of players in rooms that have no live marker.
func (p *Presence) Offline(ctx context.Context, region string, rooms []models.Room) (map[string]bool, error) {
	type probe struct {
		playerID string
		cmd      *redis.IntCmd
	}
	var probes []probe

	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, room := range rooms {
			for _, pl := range room.Players {
				probes = append(probes, probe{
					playerID: pl.ID,
					cmd:      pipe.Exists(ctx, presenceKey(region, room.ID, pl.ID)),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("probe presence: %w", err)
	}

	offline := make(map[string]bool)
	for _, pr := range probes {
		if pr.cmd.Val() == 0 {
			offline[pr.playerID] = true
		}
	}
	return offline, nil
}

// Clear removes the markers of players that left a room
func (p *Presence) Clear(ctx context.Context, region, roomID string, players []models.Player) error {
	if len(players) == 0 {
		return nil
	}
	keys := make([]string, 0, len(players))
	for _, pl := range players {
		keys = append(keys, presenceKey(region, roomID, pl.ID))
	}
	if err := p.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}
	return nil
}

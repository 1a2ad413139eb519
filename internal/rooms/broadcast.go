package rooms

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/rs/zerolog/log"
)

// EventType tags a frame on the wire
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventTick      EventType = "tick"
	EventKeepalive EventType = "keepalive"
)

// Event is the frame pushed to subscribers. Snapshots always carry the whole
// room list so a client that missed frames heals on the next one.
type Event struct {
	Type      EventType     `json:"type"`
	Region    string        `json:"region"`
	Rooms     []models.Room `json:"rooms,omitempty"`
	RoomID    string        `json:"room_id,omitempty"`
	Remaining int           `json:"remaining,omitempty"` // seconds
}

// Publisher delivers encoded events to every process subscribed to a region.
type Publisher interface {
	Publish(ctx context.Context, region string, payload []byte) error
}

// Broadcaster encodes events and hands them to a Publisher. Delivery is best
// effort; a failed publish is logged and never fails the mutation that
// caused it.
type Broadcaster struct {
	pub Publisher
}

// NewBroadcaster wraps a Publisher
func NewBroadcaster(pub Publisher) *Broadcaster {
	return &Broadcaster{pub: pub}
}

// SnapshotEvent builds the whole-state frame for a region
func SnapshotEvent(region string, rooms []models.Room) Event {
	return Event{Type: EventSnapshot, Region: region, Rooms: rooms}
}

// KeepaliveEvent builds the idle filler frame
func KeepaliveEvent(region string) Event {
	return Event{Type: EventKeepalive, Region: region}
}

// Snapshot publishes the whole room list of a region
func (b *Broadcaster) Snapshot(ctx context.Context, region string, rooms []models.Room) {
	b.publish(ctx, SnapshotEvent(region, rooms))
}

// Tick publishes the remaining countdown of one room, rounded up to seconds
func (b *Broadcaster) Tick(ctx context.Context, region, roomID string, remaining time.Duration) {
	b.publish(ctx, Event{
		Type:      EventTick,
		Region:    region,
		RoomID:    roomID,
		Remaining: int(math.Ceil(remaining.Seconds())),
	})
}

func (b *Broadcaster) publish(ctx context.Context, ev Event) {
	if b == nil || b.pub == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Str("module", "broadcast").Err(err).Msg("encode event")
		return
	}
	if err := b.pub.Publish(ctx, ev.Region, data); err != nil {
		log.Warn().Str("module", "broadcast").Str("region", ev.Region).Str("type", string(ev.Type)).Err(err).Msg("publish failed")
	}
}

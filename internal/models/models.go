package models

import (
	"time"

	"github.com/lib/pq"
)

// RoomStatus is the lifecycle state of a pairing room
type RoomStatus string

const (
	StatusWaiting   RoomStatus = "waiting"
	StatusCountdown RoomStatus = "countdown"
	StatusMatched   RoomStatus = "matched"
)

// MaxPlayers is the capacity of every room
const MaxPlayers = 2

// Player is one occupant of a room
type Player struct {
	ID         string    `json:"id"`
	DisplayTag string    `json:"display_tag"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Room is one slot of a region's fixed room pool.
// CountdownStart is set while the room counts down, MatchedAt while it shows
// the matched result; both are durable so any process can re-derive deadlines.
type Room struct {
	ID             string     `json:"id"`
	Players        []Player   `json:"players"`
	Status         RoomStatus `json:"status"`
	CountdownStart *time.Time `json:"countdown_start,omitempty"`
	MatchedAt      *time.Time `json:"matched_at,omitempty"`
}

// HasPlayer reports whether the player id occupies the room
func (r *Room) HasPlayer(playerID string) bool {
	for _, p := range r.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// HasTag reports whether the display tag occupies the room
func (r *Room) HasTag(tag string) bool {
	for _, p := range r.Players {
		if p.DisplayTag == tag {
			return true
		}
	}
	return false
}

// AdminAccount is an operator allowed to use the admin API
type AdminAccount struct {
	Username     string         `db:"username" json:"username"`
	DisplayName  string         `db:"display_name" json:"display_name"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// AdminAudit is one recorded admin action
type AdminAudit struct {
	ID            int       `db:"id" json:"id"`
	AdminUsername string    `db:"admin_username" json:"admin_username"`
	IP            string    `db:"ip" json:"ip"`
	Route         string    `db:"route" json:"route"`
	Action        string    `db:"action" json:"action"`
	Details       string    `db:"details" json:"details"`
	Success       bool      `db:"success" json:"success"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

package rooms

import (
	"strconv"
	"time"

	"github.com/playmatatu/pairrooms/internal/models"
)

// Room lifecycle:
//
//	waiting --join(2nd)--> countdown --confirm/timeout--> matched --view delay--> waiting
//	countdown --leave(1 left)--> countdown (deadline kept)
//	countdown --leave(0 left)--> waiting
//
// Functions in this file are pure transitions over a region's room list.
// They never do I/O; the store runs them inside an optimistic transaction.

func newPool(count int) []models.Room {
	rooms := make([]models.Room, 0, count)
	for i := 1; i <= count; i++ {
		rooms = append(rooms, emptyRoom(strconv.Itoa(i)))
	}
	return rooms
}

func emptyRoom(id string) models.Room {
	return models.Room{ID: id, Players: []models.Player{}, Status: models.StatusWaiting}
}

func findRoom(rooms []models.Room, id string) *models.Room {
	for i := range rooms {
		if rooms[i].ID == id {
			return &rooms[i]
		}
	}
	return nil
}

func resetRoom(r *models.Room) {
	r.Players = []models.Player{}
	r.Status = models.StatusWaiting
	r.CountdownStart = nil
	r.MatchedAt = nil
}

// toWaiting drops back to waiting but keeps whoever is still in the room.
func toWaiting(r *models.Room) {
	if len(r.Players) == 0 {
		resetRoom(r)
		return
	}
	r.Status = models.StatusWaiting
	r.CountdownStart = nil
	r.MatchedAt = nil
}

func applyJoin(rooms []models.Room, roomID string, p models.Player) (*models.Room, error) {
	room := findRoom(rooms, roomID)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Status == models.StatusMatched || len(room.Players) >= models.MaxPlayers {
		return nil, ErrRoomFull
	}
	// One room per identity, checked by scanning the whole region.
	for i := range rooms {
		if rooms[i].HasTag(p.DisplayTag) {
			return nil, ErrDuplicateTag
		}
	}

	room.Players = append(room.Players, p)
	if len(room.Players) == models.MaxPlayers {
		start := p.JoinedAt
		room.Status = models.StatusCountdown
		room.CountdownStart = &start
	}
	return room, nil
}

// applyLeave removes playerID, or everybody when playerID is empty. A
// countdown survives a partial leave with its original deadline.
func applyLeave(rooms []models.Room, roomID, playerID string) (*models.Room, []models.Player, error) {
	room := findRoom(rooms, roomID)
	if room == nil {
		return nil, nil, ErrRoomNotFound
	}

	if playerID == "" {
		removed := room.Players
		if len(removed) == 0 && room.Status == models.StatusWaiting {
			return room, nil, nil
		}
		resetRoom(room)
		return room, removed, nil
	}

	kept := make([]models.Player, 0, len(room.Players))
	var removed []models.Player
	for _, p := range room.Players {
		if p.ID == playerID {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	if len(removed) == 0 {
		return room, nil, nil
	}
	room.Players = kept

	switch {
	case len(kept) == 0:
		resetRoom(room)
	case room.Status == models.StatusMatched:
		toWaiting(room)
	}
	return room, removed, nil
}

func applyConfirm(rooms []models.Room, roomID string, now time.Time) (*models.Room, bool, error) {
	room := findRoom(rooms, roomID)
	if room == nil {
		return nil, false, ErrRoomNotFound
	}
	if len(room.Players) != models.MaxPlayers {
		return nil, false, ErrWrongCount
	}
	if room.Status == models.StatusMatched {
		return room, false, nil
	}
	markMatched(room, now)
	return room, true, nil
}

func markMatched(r *models.Room, now time.Time) {
	r.Status = models.StatusMatched
	r.CountdownStart = nil
	r.MatchedAt = &now
}

// applyTimeout resolves an elapsed countdown, but only the one armed at
// start; a room that was reset or refilled since is left alone.
func applyTimeout(rooms []models.Room, roomID string, start, now time.Time) (*models.Room, bool, error) {
	room := findRoom(rooms, roomID)
	if room == nil {
		return nil, false, ErrRoomNotFound
	}
	if !countdownMatches(room, start) {
		return room, false, nil
	}
	if len(room.Players) == models.MaxPlayers {
		markMatched(room, now)
	} else {
		toWaiting(room)
	}
	return room, true, nil
}

func countdownMatches(r *models.Room, start time.Time) bool {
	return r.Status == models.StatusCountdown && r.CountdownStart != nil && r.CountdownStart.Equal(start)
}

func matchedSince(r *models.Room, since time.Time) bool {
	return r.Status == models.StatusMatched && r.MatchedAt != nil && r.MatchedAt.Equal(since)
}

// applyMatchedReset clears a room after the matched result was shown.
func applyMatchedReset(rooms []models.Room, roomID string, since time.Time) (*models.Room, []models.Player, error) {
	room := findRoom(rooms, roomID)
	if room == nil {
		return nil, nil, ErrRoomNotFound
	}
	if !matchedSince(room, since) {
		return room, nil, nil
	}
	removed := room.Players
	resetRoom(room)
	return room, removed, nil
}

// evictOffline keeps only players for which offline returns false. Losing a
// player during countdown or matched always drops the room to waiting.
func evictOffline(room *models.Room, offline map[string]bool) []models.Player {
	kept := make([]models.Player, 0, len(room.Players))
	var removed []models.Player
	for _, p := range room.Players {
		if offline[p.ID] {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	if len(removed) == 0 {
		return nil
	}
	room.Players = kept
	if len(kept) < models.MaxPlayers {
		toWaiting(room)
	}
	return removed
}

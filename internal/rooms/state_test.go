package rooms

import (
	"testing"
	"time"

	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func player(id, tag string, at time.Time) models.Player {
	return models.Player{ID: id, DisplayTag: tag, JoinedAt: at}
}

func TestNewPool(t *testing.T) {
	pool := newPool(3)
	require.Len(t, pool, 3)
	for i, r := range pool {
		assert.Equal(t, string(rune('1'+i)), r.ID)
		assert.Equal(t, models.StatusWaiting, r.Status)
		assert.NotNil(t, r.Players)
		assert.Empty(t, r.Players)
	}
}

func TestApplyJoinSecondPlayerStartsCountdown(t *testing.T) {
	rooms := newPool(2)

	room, err := applyJoin(rooms, "1", player("a", "Alice#123", t0))
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, room.Status)
	assert.Nil(t, room.CountdownStart)

	second := t0.Add(3 * time.Second)
	room, err = applyJoin(rooms, "1", player("b", "Bob#456", second))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCountdown, room.Status)
	require.NotNil(t, room.CountdownStart)
	assert.True(t, room.CountdownStart.Equal(second))
}

func TestApplyJoinRejections(t *testing.T) {
	rooms := newPool(2)
	_, err := applyJoin(rooms, "1", player("a", "Alice#123", t0))
	require.NoError(t, err)
	_, err = applyJoin(rooms, "1", player("b", "Bob#456", t0))
	require.NoError(t, err)

	_, err = applyJoin(rooms, "1", player("c", "Carol#789", t0))
	assert.ErrorIs(t, err, ErrRoomFull)

	_, err = applyJoin(rooms, "2", player("d", "Alice#123", t0))
	assert.ErrorIs(t, err, ErrDuplicateTag, "tag already seated in another room")

	_, err = applyJoin(rooms, "9", player("e", "Eve#111", t0))
	assert.ErrorIs(t, err, ErrRoomNotFound)

	assert.Empty(t, rooms[1].Players, "rejected joins leave state untouched")
}

func TestApplyJoinMatchedRoomIsFull(t *testing.T) {
	rooms := newPool(1)
	rooms[0].Players = []models.Player{player("a", "Alice#123", t0)}
	rooms[0].Status = models.StatusMatched
	matched := t0
	rooms[0].MatchedAt = &matched

	_, err := applyJoin(rooms, "1", player("b", "Bob#456", t0))
	assert.ErrorIs(t, err, ErrRoomFull)
}

func fullRoom(t *testing.T) []models.Room {
	t.Helper()
	rooms := newPool(2)
	_, err := applyJoin(rooms, "1", player("a", "Alice#123", t0))
	require.NoError(t, err)
	_, err = applyJoin(rooms, "1", player("b", "Bob#456", t0))
	require.NoError(t, err)
	return rooms
}

func TestApplyLeavePartialKeepsCountdown(t *testing.T) {
	rooms := fullRoom(t)

	room, removed, err := applyLeave(rooms, "1", "a")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "a", removed[0].ID)
	assert.Equal(t, models.StatusCountdown, room.Status)
	require.NotNil(t, room.CountdownStart)
	assert.True(t, room.CountdownStart.Equal(t0), "deadline is not restarted")
	assert.Len(t, room.Players, 1)
}

func TestApplyLeaveLastPlayerResets(t *testing.T) {
	rooms := fullRoom(t)
	_, _, err := applyLeave(rooms, "1", "a")
	require.NoError(t, err)

	room, removed, err := applyLeave(rooms, "1", "b")
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.Equal(t, models.StatusWaiting, room.Status)
	assert.Nil(t, room.CountdownStart)
	assert.Empty(t, room.Players)
}

func TestApplyLeaveWithoutPlayerClearsRoom(t *testing.T) {
	rooms := fullRoom(t)

	room, removed, err := applyLeave(rooms, "1", "")
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.Equal(t, models.StatusWaiting, room.Status)
	assert.Empty(t, room.Players)

	// Clearing an already empty room is a no-op
	_, removed, err = applyLeave(rooms, "1", "")
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestApplyLeaveUnknownPlayerIsNoop(t *testing.T) {
	rooms := fullRoom(t)
	room, removed, err := applyLeave(rooms, "1", "ghost")
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Len(t, room.Players, 2)
}

func TestApplyLeaveFromMatchedDropsToWaiting(t *testing.T) {
	rooms := fullRoom(t)
	_, _, err := applyConfirm(rooms, "1", t0.Add(time.Second))
	require.NoError(t, err)

	room, _, err := applyLeave(rooms, "1", "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, room.Status)
	assert.Nil(t, room.MatchedAt)
	assert.Len(t, room.Players, 1)
}

func TestApplyConfirm(t *testing.T) {
	rooms := newPool(1)
	_, _, err := applyConfirm(rooms, "1", t0)
	assert.ErrorIs(t, err, ErrWrongCount)

	rooms = fullRoom(t)
	now := t0.Add(4 * time.Second)
	room, changed, err := applyConfirm(rooms, "1", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusMatched, room.Status)
	assert.Nil(t, room.CountdownStart)
	require.NotNil(t, room.MatchedAt)
	assert.True(t, room.MatchedAt.Equal(now))

	_, changed, err = applyConfirm(rooms, "1", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, changed, "confirming twice does nothing")
	assert.True(t, rooms[0].MatchedAt.Equal(now))
}

func TestApplyTimeout(t *testing.T) {
	t.Run("full room matches", func(t *testing.T) {
		rooms := fullRoom(t)
		room, changed, err := applyTimeout(rooms, "1", t0, t0.Add(10*time.Second))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.StatusMatched, room.Status)
	})

	t.Run("single survivor waits again", func(t *testing.T) {
		rooms := fullRoom(t)
		_, _, err := applyLeave(rooms, "1", "a")
		require.NoError(t, err)

		room, changed, err := applyTimeout(rooms, "1", t0, t0.Add(10*time.Second))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.StatusWaiting, room.Status)
		assert.Len(t, room.Players, 1)
		assert.Equal(t, "b", room.Players[0].ID)
	})

	t.Run("stale timer is ignored", func(t *testing.T) {
		rooms := fullRoom(t)
		_, changed, err := applyTimeout(rooms, "1", t0.Add(-time.Minute), t0.Add(10*time.Second))
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, models.StatusCountdown, rooms[0].Status)
	})
}

func TestApplyMatchedReset(t *testing.T) {
	rooms := fullRoom(t)
	matchedAt := t0.Add(10 * time.Second)
	_, _, err := applyConfirm(rooms, "1", matchedAt)
	require.NoError(t, err)

	_, removed, err := applyMatchedReset(rooms, "1", matchedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, removed, "different mark leaves room alone")
	assert.Equal(t, models.StatusMatched, rooms[0].Status)

	room, removed, err := applyMatchedReset(rooms, "1", matchedAt)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.Equal(t, models.StatusWaiting, room.Status)
	assert.Empty(t, room.Players)
	assert.Nil(t, room.MatchedAt)
}

func TestEvictOffline(t *testing.T) {
	rooms := fullRoom(t)

	removed := evictOffline(&rooms[0], map[string]bool{"zzz": true})
	assert.Empty(t, removed)
	assert.Equal(t, models.StatusCountdown, rooms[0].Status)

	removed = evictOffline(&rooms[0], map[string]bool{"a": true})
	require.Len(t, removed, 1)
	assert.Equal(t, models.StatusWaiting, rooms[0].Status, "sweeper never leaves a lone countdown")
	assert.Nil(t, rooms[0].CountdownStart)
	assert.Len(t, rooms[0].Players, 1)
}

func TestFillPoolAddsMissingRooms(t *testing.T) {
	stored := []models.Room{{ID: "1", Status: models.StatusWaiting}}
	rooms := fillPool(stored, 3)
	require.Len(t, rooms, 3)
	assert.NotNil(t, rooms[0].Players)
	assert.Equal(t, "3", rooms[2].ID)
}

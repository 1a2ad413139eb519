package rooms

import (
	"testing"

	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestShouldRestrict(t *testing.T) {
	tests := []struct {
		addr     string
		restrict bool
	}{
		{"203.0.113.7", true},
		{"203.0.113.7:5123", true},
		{"2001:db8::1", true},
		{"[2001:db8::1]:443", true},
		{"::ffff:203.0.113.7", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"192.168.0.10:80", false},
		{"172.16.5.5", false},
		{"fe80::1", false},
		{"169.254.1.1", false},
		{"0.0.0.0", false},
		{"", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.restrict, ShouldRestrict(tt.addr))
		})
	}
}

func TestBindingEncoding(t *testing.T) {
	b := Binding{RoomID: "7", PlayerID: "p-1"}
	assert.Equal(t, b, decodeBinding(b.encode()))
	assert.Equal(t, Binding{RoomID: "7"}, decodeBinding("7"))
}

func TestCheckBinding(t *testing.T) {
	rooms := newPool(3)
	rooms[1].Players = []models.Player{player("a", "Alice#123", t0)}

	assert.NoError(t, checkBinding(rooms, nil, "1"))
	assert.NoError(t, checkBinding(rooms, &Binding{RoomID: "1"}, "1"), "same room is allowed")
	assert.NoError(t, checkBinding(rooms, &Binding{RoomID: "3"}, "1"), "binding to empty room is stale")
	assert.NoError(t, checkBinding(rooms, &Binding{RoomID: "99"}, "1"))
	assert.ErrorIs(t, checkBinding(rooms, &Binding{RoomID: "2", PlayerID: "a"}, "1"), ErrAddressRestricted)
}

func TestOrphanedBindings(t *testing.T) {
	rooms := newPool(3)
	rooms[0].Players = []models.Player{player("a", "Alice#123", t0)}

	orphans := orphanedBindings(rooms, map[string]Binding{
		"203.0.113.1": {RoomID: "1", PlayerID: "a"},
		"203.0.113.2": {RoomID: "1", PlayerID: "gone"},
		"203.0.113.3": {RoomID: "2", PlayerID: "b"},
		"203.0.113.4": {RoomID: "42", PlayerID: "c"},
	})
	assert.ElementsMatch(t, []string{"203.0.113.2", "203.0.113.3", "203.0.113.4"}, orphans)
}

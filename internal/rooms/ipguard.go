package rooms

import (
	"net"
	"net/netip"
	"strings"

	"github.com/playmatatu/pairrooms/internal/models"
)

// ShouldRestrict reports whether joins from addr are limited to one room.
// Loopback, private, link-local and unparsable addresses are never tracked.
func ShouldRestrict(addr string) bool {
	ip, ok := parseAddr(addr)
	if !ok {
		return false
	}
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified())
}

func parseAddr(addr string) (netip.Addr, bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return netip.Addr{}, false
	}
	if ip, err := netip.ParseAddr(addr); err == nil {
		return ip.Unmap(), true
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return netip.Addr{}, false
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// Binding is one IP→room mapping. PlayerID records which occupant the
// address joined as so the sweeper can tell live bindings from orphans.
type Binding struct {
	RoomID   string
	PlayerID string
}

func (b Binding) encode() string {
	return b.RoomID + "/" + b.PlayerID
}

func decodeBinding(value string) Binding {
	roomID, playerID, _ := strings.Cut(value, "/")
	return Binding{RoomID: roomID, PlayerID: playerID}
}

// checkBinding rejects a join when addr is still bound to a different
// occupied room.
func checkBinding(rooms []models.Room, bound *Binding, roomID string) error {
	if bound == nil || bound.RoomID == roomID {
		return nil
	}
	other := findRoom(rooms, bound.RoomID)
	if other != nil && len(other.Players) > 0 {
		return ErrAddressRestricted
	}
	return nil
}

// orphanedBindings lists addresses whose binding points at a missing or
// empty room, or at a player that no longer occupies it.
func orphanedBindings(rooms []models.Room, bindings map[string]Binding) []string {
	var orphans []string
	for addr, b := range bindings {
		room := findRoom(rooms, b.RoomID)
		switch {
		case room == nil, len(room.Players) == 0:
			orphans = append(orphans, addr)
		case b.PlayerID != "" && !room.HasPlayer(b.PlayerID):
			orphans = append(orphans, addr)
		}
	}
	return orphans
}

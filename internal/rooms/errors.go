package rooms

import "errors"

var (
	// Validation
	ErrInvalidTag     = errors.New("display tag must look like Name#1234")
	ErrRegionNotFound = errors.New("region not found")
	ErrRoomNotFound   = errors.New("room not found")

	// Conflicts
	ErrRoomFull          = errors.New("room is full")
	ErrDuplicateTag      = errors.New("display tag is already in a room")
	ErrAddressRestricted = errors.New("one room per address")
	ErrWrongCount        = errors.New("room needs exactly two players to match")

	// ErrContention is returned when optimistic updates keep losing to
	// concurrent writers.
	ErrContention = errors.New("room update conflicted too many times")
)

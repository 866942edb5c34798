package domain

import "strings"

const MaxRoomNameLen = 64

// RoomName is the discovery scope shared by everyone in one call.
type RoomName string

type Room struct {
	Name RoomName
}

// NormalizeRoom trims the code and rejects empty or oversized ones.
func NormalizeRoom(raw string) (RoomName, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxRoomNameLen {
		return "", false
	}
	return RoomName(raw), true
}

package domain

// RoomInfo is the summary AdminAPI.GetRoomInfo returns: name and message
// count, sorted by name (spec.md §4.7). MessageCount is normalized to
// int64 regardless of what the underlying driver's COUNT(*) returns
// (spec.md §9(c)).
type RoomInfo struct {
	Name         string `json:"name"`
	MessageCount int64  `json:"messageCount"`
}

package domain

type RoomID string

// Room is the coordinator-owned meta of a joined room.
// Links and media live elsewhere; this only names the room and ourselves in it.
type Room struct {
	ID   RoomID
	Self ParticipantID
}

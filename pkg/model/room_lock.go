package model

import "time"

// RoomLock is an advisory lock document serializing booking creation per
// room. Holding it is what makes the conflict-check-then-insert sequence
// atomic with respect to other submissions for the same room.
type RoomLock struct {
	ID        string    `bson:"_id" json:"id"`
	RoomID    string    `bson:"room_id" json:"room_id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

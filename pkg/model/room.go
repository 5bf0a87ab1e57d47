package model

// Room is owned by the rooms directory service; the booking engine only
// reads the fields it needs to price and gate a submission.
type Room struct {
	ID          string  `json:"roomId"`
	OwnerID     string  `json:"ownerId"`
	Name        string  `json:"roomName"`
	NightlyRate float64 `json:"roomPrice"`
	// Listed is the host-controlled availability flag. It is independent
	// of booking state: an unlisted room keeps its existing bookings.
	Listed bool `json:"available"`
}

// Quote is the priced summary of a stay.
type Quote struct {
	Nights int     `json:"nights"`
	Total  float64 `json:"total"`
}

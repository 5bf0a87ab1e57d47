package model

import (
	"encoding/json"
	"time"
)

// Booking statuses. BOOKED is the only entry state; CANCELLED and COMPLETED
// are terminal. There are no edges back into BOOKED.
const (
	StatusBooked    = "BOOKED"
	StatusCancelled = "CANCELLED"
	StatusCompleted = "COMPLETED"
)

type Booking struct {
	ID        string    `json:"bookingId,omitempty" bson:"_id,omitempty"`
	RoomID    string    `json:"roomId" bson:"room_id"`
	UserID    string    `json:"userId" bson:"user_id"`
	StartDate time.Time `json:"-" bson:"start_date"`
	EndDate   time.Time `json:"-" bson:"end_date"`
	Status    string    `json:"status" bson:"status"`
	CreatedAt time.Time `json:"bookedDate" bson:"created_at"`
}

// Range returns the booking's occupancy interval.
func (b *Booking) Range() DateRange {
	return DateRange{Start: b.StartDate, End: b.EndDate}
}

// IsTerminal reports whether the booking left the BOOKED state.
func (b *Booking) IsTerminal() bool {
	return b.Status == StatusCancelled || b.Status == StatusCompleted
}

// bookingJSON flattens the dates to the wire format the front end expects.
type bookingJSON struct {
	ID        string    `json:"bookingId,omitempty"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"bookedDate"`
}

func (b Booking) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookingJSON{
		ID:        b.ID,
		RoomID:    b.RoomID,
		UserID:    b.UserID,
		StartDate: b.StartDate.Format(DateLayout),
		EndDate:   b.EndDate.Format(DateLayout),
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
	})
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	var raw bookingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	start, err := ParseDate(raw.StartDate)
	if err != nil {
		return err
	}
	end, err := ParseDate(raw.EndDate)
	if err != nil {
		return err
	}

	*b = Booking{
		ID:        raw.ID,
		RoomID:    raw.RoomID,
		UserID:    raw.UserID,
		StartDate: start,
		EndDate:   end,
		Status:    raw.Status,
		CreatedAt: raw.CreatedAt,
	}
	return nil
}

// BookingRequest is the submission payload. Dates arrive as calendar-date
// strings so the shape validator can reject malformed input before any
// range is constructed.
type BookingRequest struct {
	RoomID    string `json:"roomId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
}

// Confirmation is the successful result of a booking submission,
// price quote included.
type Confirmation struct {
	Booking *Booking `json:"booking"`
	Nights  int      `json:"nights"`
	Total   float64  `json:"total"`
}

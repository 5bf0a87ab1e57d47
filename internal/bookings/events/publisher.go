package events

import (
	"context"
	"time"

	"roomstay/pkg/kafka"
	kafka_config "roomstay/pkg/kafka/config"
	"roomstay/pkg/logger"
	"roomstay/pkg/model"
)

const (
	Topic = "bookings.events"

	TypeBookingCreated   = "booking.created"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingCompleted = "booking.completed"

	source = "bookings-service"
)

// BookingEvent is the payload published on every lifecycle transition.
// Dates use the same wire format as the HTTP surface.
type BookingEvent struct {
	BookingID  string    `json:"bookingId"`
	RoomID     string    `json:"roomId"`
	UserID     string    `json:"userId"`
	StartDate  string    `json:"startDate"`
	EndDate    string    `json:"endDate"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher emits booking lifecycle events keyed by room ID, so all events
// for one room land on the same partition in order.
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewPublisher(cfg *kafka_config.Config, log *logger.Logger) (*Publisher, error) {
	producer, err := kafka.NewProducer(cfg, Topic)
	if err != nil {
		return nil, err
	}
	return &Publisher{producer: producer, log: log}, nil
}

func (p *Publisher) BookingCreated(ctx context.Context, booking *model.Booking) error {
	return p.publish(ctx, TypeBookingCreated, booking)
}

func (p *Publisher) BookingCancelled(ctx context.Context, booking *model.Booking) error {
	return p.publish(ctx, TypeBookingCancelled, booking)
}

func (p *Publisher) BookingCompleted(ctx context.Context, booking *model.Booking) error {
	return p.publish(ctx, TypeBookingCompleted, booking)
}

func (p *Publisher) publish(ctx context.Context, eventType string, booking *model.Booking) error {
	event := BookingEvent{
		BookingID:  booking.ID,
		RoomID:     booking.RoomID,
		UserID:     booking.UserID,
		StartDate:  booking.StartDate.Format(model.DateLayout),
		EndDate:    booking.EndDate.Format(model.DateLayout),
		Status:     booking.Status,
		OccurredAt: time.Now().UTC(),
	}

	msg := kafka.NewMessage().
		WithKey(booking.RoomID).
		WithValue(event).
		WithEventType(eventType).
		WithSource(source).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish booking event",
			"event_type", eventType,
			"booking_id", booking.ID,
			"room_id", booking.RoomID,
			"error", err,
		)
		return err
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

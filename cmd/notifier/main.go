package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"roomstay/internal/bookings/events"
	"roomstay/pkg/kafka"
	kafka_config "roomstay/pkg/kafka/config"
	"roomstay/pkg/logger"
)

const groupID = "roomstay-notifier"

// The notifier tails the booking lifecycle topic and fans transitions out
// to guests and hosts. Delivery channels plug in behind the handler; for
// now every event is logged.
func main() {
	log := logger.New(logger.Config{
		Level:   logger.INFO,
		Format:  logger.JSON,
		Service: "notifier",
	})

	cfg := kafka_config.Load()

	consumer, err := kafka.NewConsumer(cfg, events.Topic, groupID, handleEvent(log))
	if err != nil {
		log.Fatal("Failed to create consumer", "error", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		sig := <-shutdown
		log.Info("Shutdown signal received", "signal", sig)
		cancel()
	}()

	log.Info("Notifier started", "topic", events.Topic, "group_id", groupID)
	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Consumer failed", "error", err)
	}
	log.Info("Notifier stopped")
}

func handleEvent(log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event events.BookingEvent
		if err := msg.DecodeValue(&event); err != nil {
			log.Error("Skipping undecodable event",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
			return nil
		}

		switch msg.EventType() {
		case events.TypeBookingCreated:
			log.Info("Booking confirmed, notifying guest",
				"booking_id", event.BookingID, "user_id", event.UserID,
				"room_id", event.RoomID, "start_date", event.StartDate, "end_date", event.EndDate)
		case events.TypeBookingCancelled:
			log.Info("Booking cancelled, notifying guest and host",
				"booking_id", event.BookingID, "user_id", event.UserID, "room_id", event.RoomID)
		case events.TypeBookingCompleted:
			log.Info("Stay completed, requesting review",
				"booking_id", event.BookingID, "user_id", event.UserID, "room_id", event.RoomID)
		default:
			log.Warn("Unknown event type", "event_type", msg.EventType(), "offset", msg.Offset)
		}

		return nil
	}
}

package main

import (
	"context"

	"roomstay/internal/bookings/events"
	"roomstay/internal/bookings/handler"
	"roomstay/internal/bookings/repository"
	"roomstay/internal/bookings/service"
	"roomstay/internal/bookings/validator"
	"roomstay/internal/bookings/worker"
	"roomstay/pkg/app"
	"roomstay/pkg/config"
	kafka_config "roomstay/pkg/kafka/config"
)

const ServiceName = "bookings"

// @title Roomstay Bookings API
// @version 1.0
// @description API documentation for the room reservation service.
// @BasePath /
func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRooms()

	cfg.Log.Info("Starting Bookings service")
	bookingService := initServices(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completionWorker := worker.NewCompletionWorker(bookingService, cfg.CompletionSweepInterval, cfg.Log)
	go completionWorker.Run(ctx)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewBookingHandler(bookingService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) service.BookingService {
	bookingValidator := validator.NewBookingValidator()
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	lockRepo := repository.NewMongoRoomLockRepository(cfg)

	// The writer connects lazily, so construction only fails on bad config.
	// The service runs without events in that case.
	var publisher service.LifecyclePublisher
	if p, err := events.NewPublisher(kafka_config.Load(), cfg.Log); err != nil {
		cfg.Log.Error("Kafka publisher disabled", "error", err)
	} else {
		publisher = p
	}

	bookingService := service.NewBookingService(
		cfg,
		bookingRepo,
		lockRepo,
		cfg.Client.Rooms,
		bookingValidator,
		publisher,
	)

	cfg.Log.Info("Bookings service initialized", "database", cfg.MongoDatabaseName)
	return bookingService
}

package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "roomstay"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRoomsAPIBaseURL = "http://localhost:8081"

	// A submission holds the per-room lock only for the duration of one
	// conflict check + insert; the TTL is a safety net for crashed holders.
	DefaultBookingLockTTL          = 10 * time.Second
	DefaultCompletionSweepInterval = 1 * time.Hour

	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100
)

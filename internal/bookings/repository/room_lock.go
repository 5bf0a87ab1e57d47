package repository

import (
	"context"
	"fmt"
	"time"

	"roomstay/pkg/config"
	"roomstay/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	LockCollectionName = "Room_locks"
)

// RoomLockRepository gates booking creation per room. Acquire relies on the
// unique _id index: a second insert for the same lock ID fails with a
// duplicate key error, which callers treat as "lock busy". A TTL index on
// expires_at reaps locks orphaned by a crashed holder.
type RoomLockRepository interface {
	Acquire(ctx context.Context, lockID string, roomID string, ttl time.Duration) error
	Release(ctx context.Context, lockID string) error
}

type mongoRoomLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRoomLockRepository(cfg *config.Config) RoomLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRoomLockRepository{
		cfg:        cfg,
		collection: db.Collection(LockCollectionName),
	}
}

func (r *mongoRoomLockRepository) Acquire(ctx context.Context, lockID string, roomID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	lock := model.RoomLock{
		ID:        lockID,
		RoomID:    roomID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("failed to acquire room lock: %w", err)
	}

	return nil
}

func (r *mongoRoomLockRepository) Release(ctx context.Context, lockID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID}); err != nil {
		return fmt.Errorf("failed to release room lock: %w", err)
	}

	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bookingserrors "roomstay/internal/bookings/errors"
	"roomstay/internal/bookings/repository"
	"roomstay/internal/bookings/validator"
	"roomstay/pkg/client"
	"roomstay/pkg/config"
	apperrors "roomstay/pkg/errors"
	"roomstay/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

const lockIDPrefix = "room_lock_"

// RoomDirectory resolves room listings. Backed by the rooms service client
// in production, by a stub in tests.
type RoomDirectory interface {
	GetRoom(ctx context.Context, roomID string) (*model.Room, error)
}

// LifecyclePublisher receives booking lifecycle transitions. Publishing is
// best effort: a failed event never rolls back a committed booking.
type LifecyclePublisher interface {
	BookingCreated(ctx context.Context, booking *model.Booking) error
	BookingCancelled(ctx context.Context, booking *model.Booking) error
	BookingCompleted(ctx context.Context, booking *model.Booking) error
}

type BookingService interface {
	Submit(ctx context.Context, req *model.BookingRequest) (*model.Confirmation, error)
	Cancel(ctx context.Context, bookingID, requesterID string) (*model.Booking, error)
	GetByID(ctx context.Context, bookingID string) (*model.Booking, error)
	CheckAvailability(ctx context.Context, roomID string, date string) (*Availability, error)
	ListByRoom(ctx context.Context, roomID string, limit int, offset int64) ([]*model.Booking, int64, error)
	ListByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Booking, int64, error)
	CompleteElapsed(ctx context.Context) (int64, error)
}

type bookingService struct {
	cfg       *config.Config
	repo      repository.BookingRepository
	lockRepo  repository.RoomLockRepository
	rooms     RoomDirectory
	index     *AvailabilityIndex
	validator validator.BookingValidator
	events    LifecyclePublisher
}

// NewBookingService wires the reservation engine. events may be nil when
// the deployment runs without a broker.
func NewBookingService(
	cfg *config.Config,
	repo repository.BookingRepository,
	lockRepo repository.RoomLockRepository,
	rooms RoomDirectory,
	bookingValidator validator.BookingValidator,
	events LifecyclePublisher,
) BookingService {
	return &bookingService{
		cfg:       cfg,
		repo:      repo,
		lockRepo:  lockRepo,
		rooms:     rooms,
		index:     NewAvailabilityIndex(repo),
		validator: bookingValidator,
		events:    events,
	}
}

// Submit runs the full booking pipeline: shape validation, range
// construction, past-date check, room lookup, pricing, then the locked
// conflict-check-and-insert. Nothing is persisted until every earlier
// stage has passed.
func (s *bookingService) Submit(ctx context.Context, req *model.BookingRequest) (*model.Confirmation, error) {
	if err := s.validator.ValidateRequest(req); err != nil {
		return nil, err
	}

	rng, err := model.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		if errors.Is(err, model.ErrInvalidRange) {
			return nil, apperrors.InvalidRange(err.Error())
		}
		return nil, apperrors.InvalidInput(err.Error())
	}

	// Same-day check-in is allowed; only strictly past days are rejected.
	if rng.Start.Before(model.Today()) {
		return nil, apperrors.PastDate(
			fmt.Sprintf("check-in date %s is in the past", rng.Start.Format(model.DateLayout)))
	}

	room, err := s.rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, client.ErrRoomNotFound) {
			return nil, apperrors.NotFoundWithID("Room", req.RoomID)
		}
		return nil, apperrors.Internal("Failed to look up room", err)
	}
	if !room.Listed {
		return nil, apperrors.Conflict(
			fmt.Sprintf("room %s is not accepting bookings", req.RoomID))
	}

	// Price before committing anything, so a bad rate cannot leave a
	// booking behind without a confirmation.
	quote, err := Quote(rng, room.NightlyRate)
	if err != nil {
		return nil, err
	}

	lockID := lockIDPrefix + req.RoomID
	if err := s.lockRepo.Acquire(ctx, lockID, req.RoomID, s.cfg.BookingLockTTL); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperrors.Conflict(
				fmt.Sprintf("another booking for room %s is in progress, retry shortly", req.RoomID))
		}
		return nil, apperrors.Internal("Failed to acquire room lock", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		defer cancel()
		if err := s.lockRepo.Release(releaseCtx, lockID); err != nil {
			s.cfg.Log.Error("Failed to release room lock", "lock_id", lockID, "error", err)
		}
	}()

	booking := &model.Booking{
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		StartDate: rng.Start,
		EndDate:   rng.End,
		Status:    model.StatusBooked,
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		blocked, err := s.index.BlockedRanges(sessCtx, req.RoomID)
		if err != nil {
			return err
		}

		if conflicts := conflictsWith(blocked, rng); len(conflicts) > 0 {
			return apperrors.Conflict(
				fmt.Sprintf("room %s is already booked for the requested dates", req.RoomID)).
				WithDetails(map[string]any{"conflicts": conflicts})
		}

		return s.repo.Create(sessCtx, booking)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Internal("Failed to create booking", err)
	}

	s.cfg.Log.Info("Booking created",
		"booking_id", booking.ID,
		"room_id", booking.RoomID,
		"user_id", booking.UserID,
		"range", rng.String(),
		"total", quote.Total,
	)
	s.emit(ctx, func(p LifecyclePublisher, c context.Context) error {
		return p.BookingCreated(c, booking)
	})

	return &model.Confirmation{
		Booking: booking,
		Nights:  quote.Nights,
		Total:   quote.Total,
	}, nil
}

// Cancel moves a booking from BOOKED to CANCELLED. Only the guest who made
// the booking or the room's owner may cancel; terminal bookings are
// immutable. The freed range stops blocking the room immediately.
func (s *bookingService) Cancel(ctx context.Context, bookingID, requesterID string) (*model.Booking, error) {
	if requesterID == "" {
		return nil, apperrors.Forbidden("requester identity is required to cancel a booking")
	}

	booking, err := s.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if requesterID != booking.UserID {
		room, err := s.rooms.GetRoom(ctx, booking.RoomID)
		if err != nil {
			if errors.Is(err, client.ErrRoomNotFound) {
				return nil, apperrors.Forbidden("only the guest or the room owner may cancel this booking")
			}
			return nil, apperrors.Internal("Failed to look up room", err)
		}
		if requesterID != room.OwnerID {
			return nil, apperrors.Forbidden("only the guest or the room owner may cancel this booking")
		}
	}

	if booking.IsTerminal() {
		return nil, apperrors.InvalidState(
			fmt.Sprintf("booking %s is already %s", bookingID, booking.Status))
	}

	// Re-read inside the transaction so a concurrent cancel or completion
	// sweep cannot slip between the check and the update.
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.repo.FindByID(sessCtx, bookingID)
		if err != nil {
			return s.mapRepoError(err, bookingID)
		}
		if current.IsTerminal() {
			return apperrors.InvalidState(
				fmt.Sprintf("booking %s is already %s", bookingID, current.Status))
		}
		return s.repo.UpdateStatus(sessCtx, bookingID, model.StatusCancelled)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Internal("Failed to cancel booking", err)
	}

	booking.Status = model.StatusCancelled
	s.cfg.Log.Info("Booking cancelled",
		"booking_id", booking.ID,
		"room_id", booking.RoomID,
		"requester_id", requesterID,
	)
	s.emit(ctx, func(p LifecyclePublisher, c context.Context) error {
		return p.BookingCancelled(c, booking)
	})

	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, bookingID string) (*model.Booking, error) {
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, s.mapRepoError(err, bookingID)
	}
	return booking, nil
}

func (s *bookingService) CheckAvailability(ctx context.Context, roomID string, date string) (*Availability, error) {
	blocked, err := s.index.BlockedRanges(ctx, roomID)
	if err != nil {
		return nil, apperrors.Internal("Failed to read availability", err)
	}

	availability := &Availability{
		RoomID:        roomID,
		BlockedRanges: blocked,
	}

	if date != "" {
		day, err := model.ParseDate(date)
		if err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
		dayBlocked := false
		for _, r := range blocked {
			if r.Contains(day) {
				dayBlocked = true
				break
			}
		}
		availability.Date = date
		availability.DateBlocked = &dayBlocked
	}

	return availability, nil
}

func (s *bookingService) ListByRoom(ctx context.Context, roomID string, limit int, offset int64) ([]*model.Booking, int64, error) {
	return s.list(ctx,
		func(ctx context.Context) ([]*model.Booking, error) {
			return s.repo.FindByRoom(ctx, roomID, limit, offset)
		},
		func(ctx context.Context) (int64, error) {
			return s.repo.CountByRoom(ctx, roomID)
		},
	)
}

func (s *bookingService) ListByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Booking, int64, error) {
	return s.list(ctx,
		func(ctx context.Context) ([]*model.Booking, error) {
			return s.repo.FindByUser(ctx, userID, limit, offset)
		},
		func(ctx context.Context) (int64, error) {
			return s.repo.CountByUser(ctx, userID)
		},
	)
}

// list runs the page fetch and the count concurrently.
func (s *bookingService) list(
	ctx context.Context,
	find func(context.Context) ([]*model.Booking, error),
	count func(context.Context) (int64, error),
) ([]*model.Booking, int64, error) {
	var (
		wg       sync.WaitGroup
		bookings []*model.Booking
		total    int64
		findErr  error
		countErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		bookings, findErr = find(ctx)
	}()
	go func() {
		defer wg.Done()
		total, countErr = count(ctx)
	}()
	wg.Wait()

	if findErr != nil {
		return nil, 0, apperrors.Internal("Failed to list bookings", findErr)
	}
	if countErr != nil {
		return nil, 0, apperrors.Internal("Failed to count bookings", countErr)
	}

	return bookings, total, nil
}

// CompleteElapsed transitions every stay whose checkout day has passed to
// COMPLETED and emits one event per transitioned booking. The sweep is
// idempotent: already completed bookings do not match again.
func (s *bookingService) CompleteElapsed(ctx context.Context) (int64, error) {
	cutoff := model.Today()

	elapsed, err := s.repo.FindElapsed(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Internal("Failed to find elapsed bookings", err)
	}

	var completed int64
	for _, booking := range elapsed {
		done, err := s.repo.Complete(ctx, booking.ID)
		if err != nil {
			s.cfg.Log.Error("Failed to complete booking", "booking_id", booking.ID, "error", err)
			continue
		}
		// A booking cancelled since the find no longer matches the
		// conditional update and gets no completed event.
		if !done {
			continue
		}

		completed++
		booking.Status = model.StatusCompleted
		s.emit(ctx, func(p LifecyclePublisher, c context.Context) error {
			return p.BookingCompleted(c, booking)
		})
	}

	if completed > 0 {
		s.cfg.Log.Info("Completed elapsed bookings", "count", completed)
	}
	return completed, nil
}

func (s *bookingService) mapRepoError(err error, bookingID string) error {
	switch {
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", bookingID)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput(err.Error())
	default:
		return apperrors.Internal("Failed to load booking", err)
	}
}

func (s *bookingService) emit(ctx context.Context, publish func(LifecyclePublisher, context.Context) error) {
	if s.events == nil {
		return
	}
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	// Event failures are logged by the publisher; the booking outcome stands.
	_ = publish(s.events, emitCtx)
}

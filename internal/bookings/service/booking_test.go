package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	bookingserrors "roomstay/internal/bookings/errors"
	"roomstay/internal/bookings/repository"
	"roomstay/internal/bookings/validator"
	"roomstay/pkg/client"
	"roomstay/pkg/config"
	mongotx "roomstay/pkg/db/mongo"
	apperrors "roomstay/pkg/errors"
	"roomstay/pkg/logger"
	"roomstay/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// In-memory ledger used by the service tests. It keeps real state so the
// concurrency and lifecycle tests exercise actual interleavings instead of
// canned responses.
type memBookingRepo struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	bookings map[string]*model.Booking
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{bookings: make(map[string]*model.Booking)}
}

func (r *memBookingRepo) Create(ctx context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	booking.ID = primitive.NewObjectID().Hex()
	booking.CreatedAt = time.Now().UTC()
	clone := *booking
	r.bookings[booking.ID] = &clone
	return nil
}

func (r *memBookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, bookingserrors.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	booking, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	clone := *booking
	return &clone, nil
}

func (r *memBookingRepo) FindActiveByRoom(ctx context.Context, roomID string) ([]*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*model.Booking
	for _, b := range r.bookings {
		if b.RoomID == roomID && b.Status == model.StatusBooked {
			clone := *b
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartDate.Before(result[j].StartDate)
	})
	return result, nil
}

func (r *memBookingRepo) FindByRoom(ctx context.Context, roomID string, limit int, offset int64) ([]*model.Booking, error) {
	return r.filter(func(b *model.Booking) bool { return b.RoomID == roomID }), nil
}

func (r *memBookingRepo) CountByRoom(ctx context.Context, roomID string) (int64, error) {
	return int64(len(r.filter(func(b *model.Booking) bool { return b.RoomID == roomID }))), nil
}

func (r *memBookingRepo) FindByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Booking, error) {
	return r.filter(func(b *model.Booking) bool { return b.UserID == userID }), nil
}

func (r *memBookingRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	return int64(len(r.filter(func(b *model.Booking) bool { return b.UserID == userID }))), nil
}

func (r *memBookingRepo) filter(keep func(*model.Booking) bool) []*model.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*model.Booking
	for _, b := range r.bookings {
		if keep(b) {
			clone := *b
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartDate.Before(result[j].StartDate)
	})
	return result
}

func (r *memBookingRepo) UpdateStatus(ctx context.Context, id string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	booking, ok := r.bookings[id]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	booking.Status = status
	return nil
}

func (r *memBookingRepo) FindElapsed(ctx context.Context, before time.Time) ([]*model.Booking, error) {
	return r.filter(func(b *model.Booking) bool {
		return b.Status == model.StatusBooked && !b.EndDate.After(before)
	}), nil
}

func (r *memBookingRepo) Complete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	booking, ok := r.bookings[id]
	if !ok {
		return false, bookingserrors.ErrNotFound
	}
	if booking.Status != model.StatusBooked {
		return false, nil
	}
	booking.Status = model.StatusCompleted
	return true, nil
}

func (r *memBookingRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(mongo.NewSessionContext(ctx, nil))
}

// memLockRepo mimics the advisory lock collection: a held lock ID fails a
// second acquire with a duplicate key error.
type memLockRepo struct {
	mu    sync.Mutex
	locks map[string]bool
}

func newMemLockRepo() *memLockRepo {
	return &memLockRepo{locks: make(map[string]bool)}
}

func (r *memLockRepo) Acquire(ctx context.Context, lockID string, roomID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locks[lockID] {
		return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
	}
	r.locks[lockID] = true
	return nil
}

func (r *memLockRepo) Release(ctx context.Context, lockID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, lockID)
	return nil
}

type stubRooms struct {
	rooms    map[string]*model.Room
	failWith error
}

func (s *stubRooms) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, client.ErrRoomNotFound
	}
	clone := *room
	return &clone, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) record(eventType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) BookingCreated(ctx context.Context, b *model.Booking) error {
	return p.record("booking.created")
}

func (p *recordingPublisher) BookingCancelled(ctx context.Context, b *model.Booking) error {
	return p.record("booking.cancelled")
}

func (p *recordingPublisher) BookingCompleted(ctx context.Context, b *model.Booking) error {
	return p.record("booking.completed")
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	service   BookingService
	repo      *memBookingRepo
	rooms     *stubRooms
	publisher *recordingPublisher
}

func newTestConfig() *config.Config {
	return &config.Config{
		BookingLockTTL: time.Second,
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
		Log: logger.New(logger.Config{
			Level:  logger.ERROR,
			Format: logger.JSON,
			Output: io.Discard,
		}),
	}
}

func newTestEnv(rooms ...*model.Room) *testEnv {
	roomMap := make(map[string]*model.Room, len(rooms))
	for _, room := range rooms {
		roomMap[room.ID] = room
	}

	cfg := newTestConfig()

	env := &testEnv{
		repo:      newMemBookingRepo(),
		rooms:     &stubRooms{rooms: roomMap},
		publisher: &recordingPublisher{},
	}
	env.service = NewBookingService(
		cfg,
		env.repo,
		newMemLockRepo(),
		env.rooms,
		validator.NewBookingValidator(),
		env.publisher,
	)
	return env
}

var _ repository.BookingRepository = (*memBookingRepo)(nil)
var _ repository.RoomLockRepository = (*memLockRepo)(nil)

func request(roomID, userID, start, end string) *model.BookingRequest {
	return &model.BookingRequest{
		RoomID:    roomID,
		UserID:    userID,
		StartDate: start,
		EndDate:   end,
	}
}

func TestSubmit_Success(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	confirmation, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if confirmation.Nights != 3 {
		t.Errorf("expected 3 nights, got %d", confirmation.Nights)
	}
	if confirmation.Total != 3000 {
		t.Errorf("expected total 3000, got %v", confirmation.Total)
	}
	if confirmation.Booking.Status != model.StatusBooked {
		t.Errorf("expected status %s, got %s", model.StatusBooked, confirmation.Booking.Status)
	}
	if confirmation.Booking.ID == "" {
		t.Error("expected booking ID to be assigned")
	}
	if env.publisher.count("booking.created") != 1 {
		t.Errorf("expected 1 created event, got %d", env.publisher.count("booking.created"))
	}
}

func TestSubmit_InputErrors(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	tests := []struct {
		name     string
		req      *model.BookingRequest
		wantCode string
	}{
		{
			name:     "missing room ID",
			req:      request("", "guest-1", "2031-06-01", "2031-06-04"),
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "malformed date",
			req:      request("R1", "guest-1", "June 1st", "2031-06-04"),
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "end before start",
			req:      request("R1", "guest-1", "2031-06-04", "2031-06-01"),
			wantCode: apperrors.CodeInvalidRange,
		},
		{
			name:     "zero length range",
			req:      request("R1", "guest-1", "2031-06-01", "2031-06-01"),
			wantCode: apperrors.CodeInvalidRange,
		},
		{
			name:     "check-in in the past",
			req:      request("R1", "guest-1", "2020-01-01", "2020-01-04"),
			wantCode: apperrors.CodePastDate,
		},
		{
			name:     "unknown room",
			req:      request("no-such-room", "guest-1", "2031-06-01", "2031-06-04"),
			wantCode: apperrors.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Submit(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Errorf("expected code %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestSubmit_UnlistedRoom(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: false})

	_, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04"))
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Errorf("expected %s for unlisted room, got %v", apperrors.CodeConflict, err)
	}
}

func TestSubmit_BadRate(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 0, Listed: true})

	_, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04"))
	if !apperrors.HasCode(err, apperrors.CodeInvalidRate) {
		t.Errorf("expected %s, got %v", apperrors.CodeInvalidRate, err)
	}
	if len(env.repo.bookings) != 0 {
		t.Error("no booking should be persisted when pricing fails")
	}
}

func TestSubmit_OverlapConflict(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	if _, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04")); err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}

	_, err := env.service.Submit(context.Background(), request("R1", "guest-2", "2031-06-03", "2031-06-05"))
	if err == nil {
		t.Fatal("expected a conflict")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeConflict {
		t.Fatalf("expected code %s, got %s", apperrors.CodeConflict, appErr.Code)
	}
	if appErr.Details == nil || appErr.Details["conflicts"] == nil {
		t.Error("conflict error should carry the colliding ranges")
	}

	// A different room is unaffected.
	env2 := newTestEnv(
		&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true},
		&model.Room{ID: "R2", OwnerID: "owner-1", NightlyRate: 1000, Listed: true},
	)
	if _, err := env2.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04")); err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
	if _, err := env2.service.Submit(context.Background(), request("R2", "guest-2", "2031-06-01", "2031-06-04")); err != nil {
		t.Errorf("same range on a different room should succeed, got %v", err)
	}
}

func TestSubmit_BackToBackStays(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	if _, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04")); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	// Checkout and check-in on the same day never collide.
	if _, err := env.service.Submit(context.Background(), request("R1", "guest-2", "2031-06-04", "2031-06-06")); err != nil {
		t.Errorf("back-to-back booking should succeed, got %v", err)
	}
	if _, err := env.service.Submit(context.Background(), request("R1", "guest-3", "2031-05-30", "2031-06-01")); err != nil {
		t.Errorf("booking ending on the first check-in day should succeed, got %v", err)
	}
}

func TestSubmit_ConcurrentOverlap(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful booking, got %d", successes)
	}
	for _, err := range failures {
		if !apperrors.HasCode(err, apperrors.CodeConflict) {
			t.Errorf("losing submission should fail with %s, got %v", apperrors.CodeConflict, err)
		}
	}
	if len(env.repo.bookings) != 1 {
		t.Errorf("expected 1 persisted booking, got %d", len(env.repo.bookings))
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	confirmation, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04"))
	if err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
	bookingID := confirmation.Booking.ID

	t.Run("stranger is rejected", func(t *testing.T) {
		_, err := env.service.Cancel(context.Background(), bookingID, "someone-else")
		if !apperrors.HasCode(err, apperrors.CodeForbidden) {
			t.Errorf("expected %s, got %v", apperrors.CodeForbidden, err)
		}
	})

	t.Run("missing requester is rejected", func(t *testing.T) {
		_, err := env.service.Cancel(context.Background(), bookingID, "")
		if !apperrors.HasCode(err, apperrors.CodeForbidden) {
			t.Errorf("expected %s, got %v", apperrors.CodeForbidden, err)
		}
	})

	t.Run("guest cancels", func(t *testing.T) {
		cancelled, err := env.service.Cancel(context.Background(), bookingID, "guest-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cancelled.Status != model.StatusCancelled {
			t.Errorf("expected status %s, got %s", model.StatusCancelled, cancelled.Status)
		}
		if env.publisher.count("booking.cancelled") != 1 {
			t.Errorf("expected 1 cancelled event, got %d", env.publisher.count("booking.cancelled"))
		}
	})

	t.Run("second cancel is rejected", func(t *testing.T) {
		_, err := env.service.Cancel(context.Background(), bookingID, "guest-1")
		if !apperrors.HasCode(err, apperrors.CodeInvalidState) {
			t.Errorf("expected %s, got %v", apperrors.CodeInvalidState, err)
		}
	})

	t.Run("unknown booking", func(t *testing.T) {
		_, err := env.service.Cancel(context.Background(), primitive.NewObjectID().Hex(), "guest-1")
		if !apperrors.HasCode(err, apperrors.CodeNotFound) {
			t.Errorf("expected %s, got %v", apperrors.CodeNotFound, err)
		}
	})
}

func TestCancel_ByRoomOwner(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	confirmation, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04"))
	if err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}

	cancelled, err := env.service.Cancel(context.Background(), confirmation.Booking.ID, "owner-1")
	if err != nil {
		t.Fatalf("owner cancel failed: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("expected status %s, got %s", model.StatusCancelled, cancelled.Status)
	}
}

func TestCancel_FreesRange(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	confirmation, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04"))
	if err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
	if _, err := env.service.Cancel(context.Background(), confirmation.Booking.ID, "guest-1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := env.service.Submit(context.Background(), request("R1", "guest-2", "2031-06-01", "2031-06-04")); err != nil {
		t.Errorf("cancelled range should be bookable again, got %v", err)
	}
}

func TestCompleteElapsed(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	past := &model.Booking{
		RoomID:    "R1",
		UserID:    "guest-1",
		StartDate: model.TruncateToDay(time.Now().UTC().AddDate(0, 0, -10)),
		EndDate:   model.TruncateToDay(time.Now().UTC().AddDate(0, 0, -7)),
		Status:    model.StatusBooked,
	}
	if err := env.repo.Create(context.Background(), past); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := env.service.Submit(context.Background(), request("R1", "guest-2", "2031-06-01", "2031-06-04")); err != nil {
		t.Fatalf("future booking failed: %v", err)
	}

	completed, err := env.service.CompleteElapsed(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected 1 completed booking, got %d", completed)
	}

	updated, err := env.service.GetByID(context.Background(), past.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusCompleted {
		t.Errorf("expected status %s, got %s", model.StatusCompleted, updated.Status)
	}
	if env.publisher.count("booking.completed") != 1 {
		t.Errorf("expected 1 completed event, got %d", env.publisher.count("booking.completed"))
	}

	// Second sweep finds nothing.
	completed, err = env.service.CompleteElapsed(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed != 0 {
		t.Errorf("expected idempotent sweep, got %d", completed)
	}

	// Completed bookings are immutable.
	_, err = env.service.Cancel(context.Background(), past.ID, "guest-1")
	if !apperrors.HasCode(err, apperrors.CodeInvalidState) {
		t.Errorf("expected %s for completed booking, got %v", apperrors.CodeInvalidState, err)
	}
}

func TestGetByID_InvalidID(t *testing.T) {
	env := newTestEnv()

	_, err := env.service.GetByID(context.Background(), "not-a-hex-id")
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected %s, got %v", apperrors.CodeInvalidInput, err)
	}
}

func TestListByUser(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	if _, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-07-01", "2031-07-04")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := env.service.Submit(context.Background(), request("R1", "guest-2", "2031-08-01", "2031-08-04")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	bookings, total, err := env.service.ListByUser(context.Background(), "guest-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(bookings) != 2 {
		t.Errorf("expected 2 bookings for guest-1, got total=%d len=%d", total, len(bookings))
	}
}

// Full walkthrough: two guests compete for one room, a cancellation frees
// the calendar, and the freed days are rebooked.
func TestBookingScenario(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1500, Listed: true})
	ctx := context.Background()

	a, err := env.service.Submit(ctx, request("R1", "alice", "2031-06-01", "2031-06-04"))
	if err != nil {
		t.Fatalf("booking A failed: %v", err)
	}
	if a.Total != 4500 {
		t.Errorf("booking A: expected total 4500, got %v", a.Total)
	}

	if _, err := env.service.Submit(ctx, request("R1", "bob", "2031-06-03", "2031-06-05")); !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Errorf("booking B should conflict with A, got %v", err)
	}

	c, err := env.service.Submit(ctx, request("R1", "bob", "2031-06-04", "2031-06-06"))
	if err != nil {
		t.Fatalf("booking C should fit after A's checkout: %v", err)
	}
	if c.Total != 3000 {
		t.Errorf("booking C: expected total 3000, got %v", c.Total)
	}

	if _, err := env.service.Cancel(ctx, a.Booking.ID, "alice"); err != nil {
		t.Fatalf("cancelling A failed: %v", err)
	}

	d, err := env.service.Submit(ctx, request("R1", "carol", "2031-06-02", "2031-06-04"))
	if err != nil {
		t.Fatalf("booking D should succeed after A was cancelled: %v", err)
	}
	if d.Nights != 2 {
		t.Errorf("booking D: expected 2 nights, got %d", d.Nights)
	}

	availability, err := env.service.CheckAvailability(ctx, "R1", "")
	if err != nil {
		t.Fatalf("availability check failed: %v", err)
	}
	if len(availability.BlockedRanges) != 2 {
		t.Errorf("expected 2 blocked ranges (C and D), got %d", len(availability.BlockedRanges))
	}
}

func TestCancel_RoomDirectoryOutage(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	confirmation, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04"))
	if err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
	bookingID := confirmation.Booking.ID

	env.rooms.failWith = errors.New("rooms directory unreachable")

	// A non-guest requester cannot be authorized without the lookup, but
	// the outage must not masquerade as an authorization denial.
	_, err = env.service.Cancel(context.Background(), bookingID, "owner-1")
	if !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Errorf("expected %s during a directory outage, got %v", apperrors.CodeInternal, err)
	}

	// The guest needs no lookup and is unaffected.
	cancelled, err := env.service.Cancel(context.Background(), bookingID, "guest-1")
	if err != nil {
		t.Fatalf("guest cancel should survive a directory outage: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("expected status %s, got %s", model.StatusCancelled, cancelled.Status)
	}
}

func TestCancel_RoomGone(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})

	confirmation, err := env.service.Submit(context.Background(), request("R1", "guest-1", "2031-06-01", "2031-06-04"))
	if err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}

	// A delisted-and-deleted room leaves no owner to authorize.
	delete(env.rooms.rooms, "R1")

	_, err = env.service.Cancel(context.Background(), confirmation.Booking.ID, "owner-1")
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("expected %s when the room no longer exists, got %v", apperrors.CodeForbidden, err)
	}
}

// cancellingRepo cancels a target booking right after the sweep reads it,
// standing in for a guest cancelling mid-sweep.
type cancellingRepo struct {
	*memBookingRepo
	cancelID string
}

func (r *cancellingRepo) FindElapsed(ctx context.Context, before time.Time) ([]*model.Booking, error) {
	bookings, err := r.memBookingRepo.FindElapsed(ctx, before)
	if err == nil && r.cancelID != "" {
		if uerr := r.memBookingRepo.UpdateStatus(ctx, r.cancelID, model.StatusCancelled); uerr != nil {
			return nil, uerr
		}
	}
	return bookings, err
}

func TestCompleteElapsed_SkipsConcurrentlyCancelled(t *testing.T) {
	repo := newMemBookingRepo()
	racing := &cancellingRepo{memBookingRepo: repo}
	publisher := &recordingPublisher{}
	svc := NewBookingService(
		newTestConfig(),
		racing,
		newMemLockRepo(),
		&stubRooms{rooms: map[string]*model.Room{}},
		validator.NewBookingValidator(),
		publisher,
	)

	elapsed := &model.Booking{
		RoomID:    "R1",
		UserID:    "guest-1",
		StartDate: model.TruncateToDay(time.Now().UTC().AddDate(0, 0, -10)),
		EndDate:   model.TruncateToDay(time.Now().UTC().AddDate(0, 0, -7)),
		Status:    model.StatusBooked,
	}
	if err := repo.Create(context.Background(), elapsed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	racing.cancelID = elapsed.ID

	completed, err := svc.CompleteElapsed(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed != 0 {
		t.Errorf("expected 0 completions for a booking cancelled mid-sweep, got %d", completed)
	}
	if got := publisher.count("booking.completed"); got != 0 {
		t.Errorf("expected no completed events for a cancelled booking, got %d", got)
	}

	final, err := repo.FindByID(context.Background(), elapsed.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != model.StatusCancelled {
		t.Errorf("cancellation must stick, got status %s", final.Status)
	}
}

package service

import (
	"context"
	"reflect"
	"testing"
	"time"

	"roomstay/pkg/model"
)

func seedBooking(t *testing.T, repo *memBookingRepo, roomID, status, start, end string) *model.Booking {
	t.Helper()

	s, err := model.ParseDate(start)
	if err != nil {
		t.Fatalf("bad start date: %v", err)
	}
	e, err := model.ParseDate(end)
	if err != nil {
		t.Fatalf("bad end date: %v", err)
	}

	booking := &model.Booking{
		RoomID:    roomID,
		UserID:    "guest-1",
		StartDate: s,
		EndDate:   e,
		Status:    status,
	}
	if err := repo.Create(context.Background(), booking); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return booking
}

func TestBlockedRanges(t *testing.T) {
	repo := newMemBookingRepo()
	idx := NewAvailabilityIndex(repo)

	seedBooking(t, repo, "R1", model.StatusBooked, "2031-06-10", "2031-06-12")
	seedBooking(t, repo, "R1", model.StatusBooked, "2031-06-01", "2031-06-04")
	seedBooking(t, repo, "R1", model.StatusCancelled, "2031-06-05", "2031-06-08")
	seedBooking(t, repo, "R2", model.StatusBooked, "2031-06-01", "2031-06-04")

	ranges, err := idx.BlockedRanges(context.Background(), "R1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ranges) != 2 {
		t.Fatalf("expected 2 blocked ranges, got %d", len(ranges))
	}
	// Sorted by start date, and only active bookings count.
	if got := ranges[0].Start.Format(model.DateLayout); got != "2031-06-01" {
		t.Errorf("expected first range to start 2031-06-01, got %s", got)
	}
	if got := ranges[1].Start.Format(model.DateLayout); got != "2031-06-10" {
		t.Errorf("expected second range to start 2031-06-10, got %s", got)
	}
}

func TestBlockedRanges_UnknownRoom(t *testing.T) {
	idx := NewAvailabilityIndex(newMemBookingRepo())

	ranges, err := idx.BlockedRanges(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranges) != 0 {
		t.Errorf("unknown room should have no blocked ranges, got %d", len(ranges))
	}
}

func TestIsDateBlocked(t *testing.T) {
	repo := newMemBookingRepo()
	idx := NewAvailabilityIndex(repo)
	seedBooking(t, repo, "R1", model.StatusBooked, "2031-06-01", "2031-06-04")

	tests := []struct {
		date    string
		blocked bool
	}{
		{"2031-05-31", false},
		{"2031-06-01", true},
		{"2031-06-03", true},
		{"2031-06-04", false}, // checkout day is open
		{"2031-06-05", false},
	}

	for _, tt := range tests {
		day, err := model.ParseDate(tt.date)
		if err != nil {
			t.Fatalf("bad date: %v", err)
		}
		blocked, err := idx.IsDateBlocked(context.Background(), "R1", day)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if blocked != tt.blocked {
			t.Errorf("%s: expected blocked=%v, got %v", tt.date, tt.blocked, blocked)
		}
	}
}

func TestCheckAvailability_WithDate(t *testing.T) {
	env := newTestEnv(&model.Room{ID: "R1", OwnerID: "owner-1", NightlyRate: 1000, Listed: true})
	seedBooking(t, env.repo, "R1", model.StatusBooked, "2031-06-01", "2031-06-04")

	availability, err := env.service.CheckAvailability(context.Background(), "R1", "2031-06-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if availability.DateBlocked == nil || !*availability.DateBlocked {
		t.Error("expected 2031-06-02 to be blocked")
	}

	availability, err = env.service.CheckAvailability(context.Background(), "R1", "2031-06-04")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if availability.DateBlocked == nil || *availability.DateBlocked {
		t.Error("expected checkout day 2031-06-04 to be open")
	}
}

func TestCheckAvailability_RepeatedReadsIdentical(t *testing.T) {
	env := newTestEnv()

	// Seeded out of order so the result order depends on the sort, not on
	// insertion.
	seedBooking(t, env.repo, "R1", model.StatusBooked, "2031-06-20", "2031-06-22")
	seedBooking(t, env.repo, "R1", model.StatusBooked, "2031-06-01", "2031-06-04")
	seedBooking(t, env.repo, "R1", model.StatusBooked, "2031-06-10", "2031-06-12")

	first, err := env.service.CheckAvailability(context.Background(), "R1", "2031-06-02")
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	second, err := env.service.CheckAvailability(context.Background(), "R1", "2031-06-02")
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}

	// Reads with no writes in between return the same answer, including
	// range order.
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated reads differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	if len(first.BlockedRanges) != 3 {
		t.Fatalf("expected 3 blocked ranges, got %d", len(first.BlockedRanges))
	}
	wantStarts := []string{"2031-06-01", "2031-06-10", "2031-06-20"}
	for i, want := range wantStarts {
		if got := first.BlockedRanges[i].Start.Format(model.DateLayout); got != want {
			t.Errorf("range %d: expected start %s, got %s", i, want, got)
		}
	}
}

func TestConflictsWith(t *testing.T) {
	mk := func(start, end string) model.DateRange {
		r, err := model.ParseDateRange(start, end)
		if err != nil {
			t.Fatalf("bad range: %v", err)
		}
		return r
	}

	blocked := []model.DateRange{
		mk("2031-06-01", "2031-06-04"),
		mk("2031-06-10", "2031-06-12"),
	}

	if got := conflictsWith(blocked, mk("2031-06-04", "2031-06-10")); len(got) != 0 {
		t.Errorf("gap between stays should be free, got %d conflicts", len(got))
	}
	if got := conflictsWith(blocked, mk("2031-06-03", "2031-06-11")); len(got) != 2 {
		t.Errorf("expected 2 conflicts, got %d", len(got))
	}
}

func TestIsDateBlocked_TimeOfDayIgnored(t *testing.T) {
	repo := newMemBookingRepo()
	idx := NewAvailabilityIndex(repo)
	seedBooking(t, repo, "R1", model.StatusBooked, "2031-06-01", "2031-06-04")

	noon := time.Date(2031, 6, 2, 12, 30, 0, 0, time.UTC)
	blocked, err := idx.IsDateBlocked(context.Background(), "R1", noon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !blocked {
		t.Error("a timestamp inside a blocked day should report blocked")
	}
}

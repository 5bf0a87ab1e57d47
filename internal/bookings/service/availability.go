package service

import (
	"context"
	"time"

	"roomstay/internal/bookings/repository"
	"roomstay/pkg/model"
)

// Availability is the calendar view of a room: every range currently held
// by an active booking, plus an optional point query answer.
type Availability struct {
	RoomID        string            `json:"roomId"`
	BlockedRanges []model.DateRange `json:"blockedRanges"`
	Date          string            `json:"date,omitempty"`
	DateBlocked   *bool             `json:"dateBlocked,omitempty"`
}

// AvailabilityIndex answers blocked-date queries straight from the ledger.
// There is no cached state to invalidate: a cancelled booking stops blocking
// its range on the next read.
type AvailabilityIndex struct {
	repo repository.BookingRepository
}

func NewAvailabilityIndex(repo repository.BookingRepository) *AvailabilityIndex {
	return &AvailabilityIndex{repo: repo}
}

// BlockedRanges returns the occupancy intervals of every active booking for
// the room, sorted by start date. An unknown room simply has none.
func (idx *AvailabilityIndex) BlockedRanges(ctx context.Context, roomID string) ([]model.DateRange, error) {
	bookings, err := idx.repo.FindActiveByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	ranges := make([]model.DateRange, 0, len(bookings))
	for _, b := range bookings {
		ranges = append(ranges, b.Range())
	}
	return ranges, nil
}

// IsDateBlocked reports whether an active booking occupies the given day.
// The ranges are half-open, so a checkout day is never blocked by the
// booking that ends on it.
func (idx *AvailabilityIndex) IsDateBlocked(ctx context.Context, roomID string, date time.Time) (bool, error) {
	ranges, err := idx.BlockedRanges(ctx, roomID)
	if err != nil {
		return false, err
	}

	for _, r := range ranges {
		if r.Contains(date) {
			return true, nil
		}
	}
	return false, nil
}

// conflictsWith collects every blocked range intersecting the candidate.
func conflictsWith(blocked []model.DateRange, candidate model.DateRange) []model.DateRange {
	var conflicts []model.DateRange
	for _, r := range blocked {
		if r.Overlaps(candidate) {
			conflicts = append(conflicts, r)
		}
	}
	return conflicts
}

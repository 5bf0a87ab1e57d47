package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates. The engine has no
// timezone awareness: a date is a local calendar day, stored at UTC midnight.
const DateLayout = "2006-01-02"

var ErrInvalidRange = errors.New("check-out date must be after check-in date")

// DateRange is a half-open interval of calendar days [Start, End).
// A range ending on day D does not conflict with one starting on day D,
// which is what allows same-day turnover of a room.
type DateRange struct {
	Start time.Time `json:"startDate" bson:"start_date"`
	End   time.Time `json:"endDate" bson:"end_date"`
}

// NewDateRange builds a range from two calendar dates, truncating both to
// midnight UTC. Fails with ErrInvalidRange unless start < end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	start = TruncateToDay(start)
	end = TruncateToDay(end)
	if !start.Before(end) {
		return DateRange{}, ErrInvalidRange
	}
	return DateRange{Start: start, End: end}, nil
}

// ParseDateRange builds a range from two wire-format date strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(s, e)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected %s", s, DateLayout)
	}
	return t, nil
}

func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day at UTC midnight.
func Today() time.Time {
	return TruncateToDay(time.Now().UTC())
}

// Overlaps reports whether two half-open ranges intersect.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains reports whether date falls inside the range (Start <= date < End).
func (r DateRange) Contains(date time.Time) bool {
	date = TruncateToDay(date)
	return !date.Before(r.Start) && date.Before(r.End)
}

// Nights is the length of the stay in whole days, always >= 1 for a range
// built through NewDateRange.
func (r DateRange) Nights() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

type dateRangeJSON struct {
	Start string `json:"startDate"`
	End   string `json:"endDate"`
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeJSON{
		Start: r.Start.Format(DateLayout),
		End:   r.End.Format(DateLayout),
	})
}

func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw dateRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDateRange(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

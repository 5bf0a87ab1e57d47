package service

import (
	"fmt"

	apperrors "roomstay/pkg/errors"
	"roomstay/pkg/model"
)

// Quote prices a stay: nights in the range times the room's nightly rate.
// A non-positive rate is corrupt listing data and fails before any money
// figure is produced.
func Quote(rng model.DateRange, nightlyRate float64) (model.Quote, error) {
	if nightlyRate <= 0 {
		return model.Quote{}, apperrors.InvalidRate(
			fmt.Sprintf("nightly rate must be positive, got %v", nightlyRate))
	}

	nights := rng.Nights()
	return model.Quote{
		Nights: nights,
		Total:  float64(nights) * nightlyRate,
	}, nil
}

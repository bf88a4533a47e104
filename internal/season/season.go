package season

import (
	"time"

	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

// Astronomical boundaries, northern hemisphere. Year-independent.
var (
	springStart = boundary{time.March, 21}
	summerStart = boundary{time.June, 21}
	autumnStart = boundary{time.September, 23}
	winterStart = boundary{time.December, 21}
)

type boundary struct {
	month time.Month
	day   int
}

func (b boundary) onOrAfter(d time.Time) bool {
	if d.Month() != b.month {
		return d.Month() > b.month
	}
	return d.Day() >= b.day
}

// Classify returns the season for the given latitude and date. Southern
// latitudes invert spring/autumn and summer/winter.
func Classify(latitude float64, date time.Time) model.Season {
	s := northern(date)
	if latitude < 0 {
		switch s {
		case model.SeasonSpring:
			s = model.SeasonAutumn
		case model.SeasonSummer:
			s = model.SeasonWinter
		case model.SeasonAutumn:
			s = model.SeasonSpring
		case model.SeasonWinter:
			s = model.SeasonSummer
		}
	}
	return s
}

func northern(d time.Time) model.Season {
	switch {
	case springStart.onOrAfter(d) && !summerStart.onOrAfter(d):
		return model.SeasonSpring
	case summerStart.onOrAfter(d) && !autumnStart.onOrAfter(d):
		return model.SeasonSummer
	case autumnStart.onOrAfter(d) && !winterStart.onOrAfter(d):
		return model.SeasonAutumn
	default:
		// Dec 21 through Mar 20, wrapping the year boundary.
		return model.SeasonWinter
	}
}

package comfort

import (
	"sort"
	"time"

	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

// DefaultAlpha weights the exponential running mean toward recent days.
const DefaultAlpha = 0.8

// RunningMean folds a time-ordered outdoor temperature history into an
// exponential running mean: rm = (1-alpha)*t_today + alpha*rm_yesterday,
// folded oldest first. An empty history yields 0 and ok=false.
func RunningMean(history []model.TempSample, alpha float64) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	samples := make([]model.TempSample, len(history))
	copy(samples, history)
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Taken.Before(samples[j].Taken)
	})

	rm := samples[0].Temp
	for _, s := range samples[1:] {
		rm = (1-alpha)*s.Temp + alpha*rm
	}
	return rm, true
}

// DailyMeans collapses raw samples into one mean per calendar day, ordered
// oldest first, for bootstrapping the running mean from stored history.
func DailyMeans(history []model.TempSample) []model.TempSample {
	type acc struct {
		sum   float64
		n     int
		taken time.Time
	}
	byDay := make(map[string]*acc)
	for _, s := range history {
		day := s.Taken.Format("2006-01-02")
		a, ok := byDay[day]
		if !ok {
			a = &acc{taken: s.Taken.Truncate(24 * time.Hour)}
			byDay[day] = a
		}
		a.sum += s.Temp
		a.n++
	}

	out := make([]model.TempSample, 0, len(byDay))
	for _, a := range byDay {
		out = append(out, model.TempSample{
			Temp:  a.sum / float64(a.n),
			Taken: a.taken,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Taken.Before(out[j].Taken)
	})
	return out
}

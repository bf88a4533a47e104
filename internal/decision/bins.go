package decision

import "github.com/thatsimonsguy/adaptive-climate/internal/model"

// seasonSplits shift the bin midpoints so summer tolerates warmth longer
// and winter tolerates coolness longer.
var seasonSplits = map[model.Season][2]float64{
	model.SeasonSummer: {0.3, 0.7},
	model.SeasonWinter: {0.7, 0.3},
	model.SeasonSpring: {0.5, 0.5},
	model.SeasonAutumn: {0.5, 0.5},
}

// ClassifyBins places an indoor temperature into exactly one of six bins
// relative to the comfort band for the active season.
func ClassifyBins(indoor, comfortMin, comfortTemp, comfortMax float64, season model.Season) model.TemperatureBins {
	split, ok := seasonSplits[season]
	if !ok {
		split = [2]float64{0.5, 0.5}
	}
	midMin := comfortMin + (comfortTemp-comfortMin)*split[0]
	midMax := comfortTemp + (comfortMax-comfortTemp)*split[1]

	return model.TemperatureBins{
		BelowMin:        indoor <= comfortMin,
		SlightlyCool:    indoor > comfortMin && indoor <= midMin,
		ComfortablyCool: indoor > midMin && indoor < comfortTemp,
		ComfortablyWarm: indoor >= comfortTemp && indoor <= midMax,
		SlightlyWarm:    indoor > midMax && indoor <= comfortMax,
		AboveMax:        indoor > comfortMax,
	}
}

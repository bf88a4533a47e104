package supervisor

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/comfort"
	"github.com/thatsimonsguy/adaptive-climate/internal/device"
	"github.com/thatsimonsguy/adaptive-climate/internal/journal"
	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

// secondaryFanSpeed maps how far indoor temperature exceeds comfort_temp,
// relative to the width of the warm half of the band, onto a fan tier.
// At or under comfort the fans rest.
func secondaryFanSpeed(indoor, comfortTemp, comfortMax float64) model.FanMode {
	deviation := indoor - comfortTemp
	if deviation <= 0 {
		return model.FanOff
	}
	width := comfortMax - comfortTemp
	if width <= 0 {
		return model.FanHighest
	}
	switch ratio := deviation / width; {
	case ratio <= 0.25:
		return model.FanLow
	case ratio <= 0.50:
		return model.FanMid
	case ratio <= 0.75:
		return model.FanHigh
	default:
		return model.FanHighest
	}
}

// driveSecondaryFans sets the area's auxiliary fans at the end of a
// successful cycle, independent of the primary action.
func (s *Supervisor) driveSecondaryFans(ctx context.Context, snap model.SensorSnapshot, result comfortOutcome) {
	fans, err := s.deps.Areas.ListFans(s.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Secondary fan lookup failed")
		return
	}
	if len(fans) == 0 {
		return
	}

	speed := secondaryFanSpeed(snap.IndoorTemp, result.public.ComfortTemp, result.public.ComfortMax)
	mode := string(speed)

	for _, fan := range fans {
		cmd := device.Command{
			SetFanMode: &mode,
			Signature:  journal.NewSignature(),
		}
		if err := s.deps.Sink.Call(ctx, fan, cmd); err != nil {
			log.Warn().Err(err).Str("fan", fan).Msg("Secondary fan actuation failed")
			continue
		}
		log.Debug().
			Str("device", s.deviceID).
			Str("fan", fan).
			Str("speed", mode).
			Msg("Secondary fan set")
	}
}

// RecordOutdoorSample appends the current outdoor reading to the history,
// called from the hourly persistence job.
func (s *Supervisor) RecordOutdoorSample() {
	v, ok := s.deps.Sensors.GetNumeric(s.cfg.OutdoorTempSensor)
	if !ok {
		return
	}
	sample := model.TempSample{Temp: v, Taken: s.now().UTC()}
	if err := s.deps.Store.AppendOutdoorSample(s.deviceID, sample); err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Failed to record outdoor sample")
	}
}

// RecomputeRunningMean folds yesterday's mean outdoor temperature into
// the exponential running mean and prunes history older than seven days.
// Called from the nightly job.
func (s *Supervisor) RecomputeRunningMean() {
	now := s.now().UTC()
	history, err := s.deps.Store.LoadOutdoorHistory(s.deviceID, now.AddDate(0, 0, -7))
	if err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Failed to load outdoor history")
		return
	}
	means := comfort.DailyMeans(history)
	if len(means) == 0 {
		return
	}

	today := means[len(means)-1].Temp
	s.mu.Lock()
	var rm float64
	if s.runningMean != nil {
		rm = (1-comfort.DefaultAlpha)*today + comfort.DefaultAlpha*(*s.runningMean)
	} else if v, ok := comfort.RunningMean(means, comfort.DefaultAlpha); ok {
		rm = v
	} else {
		rm = today
	}
	s.runningMean = &rm
	s.mu.Unlock()

	s.persist()
	if err := s.deps.Store.PruneOutdoorHistory(s.deviceID, now.AddDate(0, 0, -7)); err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Failed to prune outdoor history")
	}

	log.Info().
		Str("device", s.deviceID).
		Float64("running_mean", rm).
		Msg("Running mean recomputed")
}

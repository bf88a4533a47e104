package supervisor

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/arbiter"
	"github.com/thatsimonsguy/adaptive-climate/internal/comfort"
	"github.com/thatsimonsguy/adaptive-climate/internal/datadog"
	"github.com/thatsimonsguy/adaptive-climate/internal/decision"
	"github.com/thatsimonsguy/adaptive-climate/internal/device"
	"github.com/thatsimonsguy/adaptive-climate/internal/journal"
	"github.com/thatsimonsguy/adaptive-climate/internal/modemap"
	"github.com/thatsimonsguy/adaptive-climate/internal/model"
	"github.com/thatsimonsguy/adaptive-climate/internal/season"
)

func detectCaps(deviceID string, supported model.SupportedModes) model.DeviceCapabilities {
	return modemap.DetectCapabilities(deviceID, supported)
}

// Evaluate runs one full control cycle. Overlapping calls for the same
// device are serialized; the later caller waits and then re-evaluates
// against fresh state.
func (s *Supervisor) Evaluate(ctx context.Context) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	s.setState(StateEvaluating)
	defer s.setState(StateIdle)

	now := s.now().UTC()

	if s.expirePause(now) {
		log.Info().Str("device", s.deviceID).Msg("Manual pause expired, resuming automatic control")
	}
	if s.paused(now) {
		log.Debug().Str("device", s.deviceID).Msg("Control paused, skipping cycle")
		return
	}

	snapshot, ok := s.buildSnapshot(now)
	if !ok {
		return
	}

	if s.autoShutdownDue(snapshot, now) {
		s.actOff(ctx, "auto shutdown, area unoccupied")
		return
	}

	result := s.computeComfort(snapshot)

	if s.naturalVentilationApplies(snapshot, result) {
		s.mu.Lock()
		alreadyHolding := s.ventilationHold
		s.ventilationHold = true
		s.mu.Unlock()
		if !alreadyHolding {
			log.Info().Str("device", s.deviceID).Msg("Outdoor air can do the work, holding HVAC off")
		}
		s.actOff(ctx, "natural ventilation hold")
		return
	}
	s.mu.Lock()
	s.ventilationHold = false
	s.mu.Unlock()

	action := s.engine.Decide(decision.Input{
		Comfort:   result.bands,
		Snapshot:  snapshot,
		Season:    result.season,
		Category:  model.ComfortCategory(s.cfg.ComfortCategory),
		DeviceMin: s.supportedModes().TempMin,
		DeviceMax: s.supportedModes().TempMax,
	})

	s.mu.Lock()
	s.lastComfort = &result.public
	s.lastAction = &action
	s.mu.Unlock()

	if !s.arbitrationGranted(snapshot, result) {
		log.Debug().Str("device", s.deviceID).Msg("Not primary for area, standing down")
		return
	}

	s.act(ctx, action)
	s.driveSecondaryFans(ctx, snapshot, result)

	datadog.Gauge("comfort.temp", result.public.ComfortTemp, "device:"+s.deviceID)
	datadog.Gauge("indoor.temp", snapshot.IndoorTemp, "device:"+s.deviceID)
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) paused(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userPoweredOff {
		return true
	}
	return s.manualPauseUntil != nil && s.manualPauseUntil.After(now)
}

// expirePause clears a lapsed manual pause and the command journal, so
// stale signatures cannot mask the next human change.
func (s *Supervisor) expirePause(now time.Time) bool {
	s.mu.Lock()
	expired := s.manualPauseUntil != nil && !s.manualPauseUntil.After(now)
	if expired {
		s.manualPauseUntil = nil
		s.journal.Clear()
	}
	s.mu.Unlock()
	if expired {
		s.persist()
	}
	return expired
}

// buildSnapshot assembles the tick's immutable sensor view, filling gaps
// from the last valid snapshot. The cycle is abandoned only when both
// temperatures are unavailable with no prior reading to fall back on.
func (s *Supervisor) buildSnapshot(now time.Time) (model.SensorSnapshot, bool) {
	s.mu.Lock()
	prev := s.lastSnapshot
	rm := s.runningMean
	s.mu.Unlock()

	indoor, indoorOK := s.deps.Sensors.GetNumeric(s.cfg.IndoorTempSensor)
	outdoor, outdoorOK := s.deps.Sensors.GetNumeric(s.cfg.OutdoorTempSensor)

	if !indoorOK && !outdoorOK && prev == nil {
		s.noteSensorsDown(true)
		return model.SensorSnapshot{}, false
	}
	if !indoorOK {
		if prev == nil {
			s.noteSensorsDown(true)
			return model.SensorSnapshot{}, false
		}
		indoor = prev.IndoorTemp
	}
	if !outdoorOK {
		if prev == nil {
			s.noteSensorsDown(true)
			return model.SensorSnapshot{}, false
		}
		outdoor = prev.OutdoorTemp
	}
	s.noteSensorsDown(!indoorOK || !outdoorOK)

	snap := model.SensorSnapshot{
		IndoorTemp:  indoor,
		OutdoorTemp: outdoor,
		Taken:       now,
	}

	if s.cfg.IndoorHumiditySensor != "" {
		if v, ok := s.deps.Sensors.GetNumeric(s.cfg.IndoorHumiditySensor); ok {
			snap.IndoorHumidity = &v
		} else if prev != nil {
			snap.IndoorHumidity = prev.IndoorHumidity
		}
	}
	if s.cfg.OutdoorHumiditySensor != "" {
		if v, ok := s.deps.Sensors.GetNumeric(s.cfg.OutdoorHumiditySensor); ok {
			snap.OutdoorHumidity = &v
		} else if prev != nil {
			snap.OutdoorHumidity = prev.OutdoorHumidity
		}
	}

	if s.cfg.MeanRadiantSensor != "" {
		if v, ok := s.deps.Sensors.GetNumeric(s.cfg.MeanRadiantSensor); ok {
			snap.MeanRadiantTemp = &v
		} else if prev != nil {
			snap.MeanRadiantTemp = prev.MeanRadiantTemp
		}
	}

	snap.OccupancyPresent = true
	if s.cfg.OccupancySensor != "" {
		if v, ok := s.deps.Sensors.GetBinary(s.cfg.OccupancySensor); ok {
			snap.OccupancyPresent = v
		}
	}

	if rm != nil {
		snap.RunningMeanTemp = *rm
	} else {
		snap.RunningMeanTemp = outdoor
	}

	if state, err := s.deps.States.GetCurrentState(s.deviceID); err == nil {
		snap.CurrentFanMode = state.FanMode
	}
	snap.AirVelocity = comfort.FanVelocity(snap.CurrentFanMode)

	s.mu.Lock()
	s.lastSnapshot = &snap
	if snap.OccupancyPresent {
		s.lastOccupied = now
	}
	s.mu.Unlock()
	return snap, true
}

// noteSensorsDown logs the unavailable condition once on transition.
func (s *Supervisor) noteSensorsDown(down bool) {
	s.mu.Lock()
	changed := s.sensorsDown != down
	s.sensorsDown = down
	s.mu.Unlock()
	if !changed {
		return
	}
	if down {
		log.Warn().Str("device", s.deviceID).Msg("Sensors unavailable, using last valid readings")
	} else {
		log.Info().Str("device", s.deviceID).Msg("Sensors recovered")
	}
}

// comfortOutcome bundles the per-tick comfort computation.
type comfortOutcome struct {
	bands  comfort.Result
	public model.ComfortResult
	season model.Season
}

// computeComfort runs the adaptive model, correcting for humidity in
// precision mode and falling back to the last valid result or a safe
// default when validation fails.
func (s *Supervisor) computeComfort(snap model.SensorSnapshot) comfortOutcome {
	seasonNow := season.Classify(s.latitude, snap.Taken)
	cat := model.ComfortCategory(s.cfg.ComfortCategory)

	in := comfort.NewInput(snap.IndoorTemp, snap.RunningMeanTemp, snap.AirVelocity)
	if s.cfg.UseOperativeTemperature && snap.MeanRadiantTemp != nil {
		in.MeanRadiantTemp = *snap.MeanRadiantTemp
	}

	bands, err := comfort.Calculate(in)
	if err != nil {
		return s.comfortFallback(seasonNow, cat, err)
	}

	if s.cfg.ComfortPrecisionMode && s.cfg.HumidityComfortEnable && snap.IndoorHumidity != nil {
		adj := comfort.HumidityAdjustment(*snap.IndoorHumidity)
		if adj != 0 {
			bands.ComfortTemp += adj
			bands.Low80 += adj
			bands.Up80 += adj
			bands.Low90 += adj
			bands.Up90 += adj
		}
	}

	low, high := bands.Bounds(cat)
	return comfortOutcome{
		bands: bands,
		public: model.ComfortResult{
			ComfortTemp:  bands.ComfortTemp,
			ComfortMin:   low,
			ComfortMax:   high,
			Acceptable80: bands.Acceptable80,
			Acceptable90: bands.Acceptable90,
			Season:       seasonNow,
			Category:     cat,
		},
		season: seasonNow,
	}
}

func (s *Supervisor) comfortFallback(seasonNow model.Season, cat model.ComfortCategory, err error) comfortOutcome {
	s.mu.Lock()
	last := s.lastComfort
	s.mu.Unlock()

	if last != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Comfort calculation failed, reusing last valid result")
		return comfortOutcome{
			bands:  bandsFromResult(*last),
			public: *last,
			season: seasonNow,
		}
	}

	log.Warn().Err(err).Str("device", s.deviceID).Msg("Comfort calculation failed, using safe default 22°C ±2°C")
	public := model.ComfortResult{
		ComfortTemp:  22.0,
		ComfortMin:   20.0,
		ComfortMax:   24.0,
		Season:       seasonNow,
		Category:     cat,
	}
	return comfortOutcome{bands: bandsFromResult(public), public: public, season: seasonNow}
}

// bandsFromResult reconstructs band geometry from a stored ComfortResult
// so the decision engine can keep operating on fallback data.
func bandsFromResult(r model.ComfortResult) comfort.Result {
	halfSpan := (r.ComfortMax - r.ComfortMin) / 2
	res := comfort.Result{
		ComfortTemp:  r.ComfortTemp,
		Acceptable80: r.Acceptable80,
		Acceptable90: r.Acceptable90,
	}
	if r.Category == model.CategoryI {
		res.Low90 = r.ComfortMin
		res.Up90 = r.ComfortMax
		res.Low80 = r.ComfortTemp - halfSpan - 1.0
		res.Up80 = r.ComfortTemp + halfSpan + 1.0
	} else {
		res.Low80 = r.ComfortMin
		res.Up80 = r.ComfortMax
		res.Low90 = r.ComfortTemp - halfSpan + 1.0
		res.Up90 = r.ComfortTemp + halfSpan - 1.0
	}
	return res
}

func (s *Supervisor) supportedModes() model.SupportedModes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supported
}

// autoShutdownDue reports whether the area has been empty long enough to
// shut the device down.
func (s *Supervisor) autoShutdownDue(snap model.SensorSnapshot, now time.Time) bool {
	if s.cfg.AutoShutdownMinutes <= 0 || snap.OccupancyPresent {
		return false
	}
	s.mu.Lock()
	lastOccupied := s.lastOccupied
	s.mu.Unlock()
	if lastOccupied.IsZero() {
		return false
	}
	return now.Sub(lastOccupied) >= time.Duration(s.cfg.AutoShutdownMinutes)*time.Minute
}

// naturalVentilationApplies holds HVAC off when outdoor air alone can pull
// the room toward comfort: outdoor inside the comfort band and cooler than
// indoor by at least the configured threshold while the room runs warm.
func (s *Supervisor) naturalVentilationApplies(snap model.SensorSnapshot, result comfortOutcome) bool {
	if s.cfg.NaturalVentilationThreshold <= 0 {
		return false
	}
	out := snap.OutdoorTemp
	if out < result.public.ComfortMin || out > result.public.ComfortMax {
		return false
	}
	if snap.OutdoorHumidity != nil && snap.IndoorHumidity != nil &&
		*snap.OutdoorHumidity > *snap.IndoorHumidity+10 {
		return false
	}
	warm := snap.IndoorTemp > result.public.ComfortTemp
	cool := snap.IndoorTemp < result.public.ComfortTemp
	if warm {
		return snap.IndoorTemp-out >= s.cfg.NaturalVentilationThreshold
	}
	if cool {
		return out-snap.IndoorTemp >= s.cfg.NaturalVentilationThreshold
	}
	return false
}

// arbitrationGranted runs the area gate. Peer lookup failures fail open.
func (s *Supervisor) arbitrationGranted(snap model.SensorSnapshot, result comfortOutcome) bool {
	peerIDs, err := s.deps.Areas.ListPeers(s.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Peer lookup failed, acting solo")
		return true
	}

	var peers []arbiter.Peer
	for _, id := range append(peerIDs, s.deviceID) {
		modes, err := s.deps.States.GetSupportedModes(id)
		if err != nil {
			continue
		}
		peers = append(peers, arbiter.Peer{
			DeviceID:        id,
			HVACModes:       modes.HVACModes,
			FanModes:        modes.FanModes,
			SupportsSetTemp: true,
			SupportsSetHVAC: true,
		})
	}
	if len(peerIDs) == 0 {
		peers = nil // solo, skip ranking entirely
	}

	indoor := snap.IndoorTemp
	cMin, cMax := result.public.ComfortMin, result.public.ComfortMax
	cond := arbiter.Conditions{
		Season:         result.season,
		IndoorTemp:     &indoor,
		ComfortMin:     &cMin,
		ComfortMax:     &cMax,
		IndoorHumidity: snap.IndoorHumidity,
	}
	return s.arb.Arbitrate(peers, cond).Granted(s.deviceID)
}

// act diffs the desired action against the device's reported state and
// issues only the calls whose fields differ beyond the hysteresis
// threshold, all tagged with one fresh signature.
func (s *Supervisor) act(ctx context.Context, action model.ControlAction) {
	reported, err := s.deps.States.GetCurrentState(s.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Cannot read device state, skipping actuation")
		return
	}

	supported := s.supportedModes()
	hvac := modemap.MapHVACMode(action.HVACMode, supported.HVACModes, s.deviceID)
	fan := modemap.MapFanMode(action.FanMode, supported.FanModes, s.deviceID)

	cmd := device.Command{}
	if string(reported.HVACMode) != hvac {
		cmd.SetHVACMode = &hvac
	}
	if string(reported.FanMode) != fan && action.HVACMode != model.ModeOff {
		cmd.SetFanMode = &fan
	}
	tempDelta := math.Abs(reported.Temperature - action.TargetTemp)
	if action.HVACMode != model.ModeOff && action.HVACMode != model.ModeFanOnly &&
		tempDelta >= s.cfg.TemperatureChangeThreshold {
		t := action.TargetTemp
		cmd.SetTemp = &t
	}

	if cmd.SetHVACMode == nil && cmd.SetFanMode == nil && cmd.SetTemp == nil {
		log.Debug().Str("device", s.deviceID).Msg("Device already in desired state")
		return
	}

	s.setState(StateActing)
	cmd.Signature = journal.NewSignature()
	s.journal.Record(cmd.Signature)

	if err := s.deps.Sink.Call(ctx, s.deviceID, cmd); err != nil {
		log.Error().Err(err).Str("device", s.deviceID).Msg("Actuation failed")
	} else {
		log.Info().
			Str("device", s.deviceID).
			Str("hvac_mode", hvac).
			Str("fan_mode", fan).
			Float64("target_temp", action.TargetTemp).
			Str("reason", action.Reason).
			Msg("Actuation issued")
		datadog.Count("actuations", 1, "device:"+s.deviceID)
	}

	s.mu.Lock()
	s.cooldownUntil = s.now().Add(cooldownWindow)
	s.state = StateCooldown
	s.mu.Unlock()
	s.persist()
}

// actOff is the degenerate action for shutdown-style holds.
func (s *Supervisor) actOff(ctx context.Context, reason string) {
	s.act(ctx, model.ControlAction{
		HVACMode: model.ModeOff,
		FanMode:  model.FanAuto,
		Reason:   reason,
	})
}

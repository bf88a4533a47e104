// Package decision turns a comfort calculation and a sensor snapshot into a
// concrete ControlAction. The engine is a pure function of its inputs:
// identical inputs always produce an identical action.
package decision

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/comfort"
	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

const (
	safeBoundMin = 16.0
	safeBoundMax = 30.0

	equilibriumBand = 0.5
)

// Config holds the tunables of one device's decision engine.
type Config struct {
	EnergySaveMode             bool
	AggressiveCoolingThreshold float64
	AggressiveHeatingThreshold float64
	TemperatureChangeThreshold float64
	EnableCoolMode             bool
	EnableHeatMode             bool
	EnableFanMode              bool
	EnableDryMode              bool
	EnableOffMode              bool
	MinFanSpeed                model.FanMode
	MaxFanSpeed                model.FanMode
	OverrideTemperature        float64
	UserComfortMin             *float64
	UserComfortMax             *float64
}

// Input gathers everything one decision needs.
type Input struct {
	Comfort   comfort.Result
	Snapshot  model.SensorSnapshot
	Season    model.Season
	Category  model.ComfortCategory
	DeviceMin float64
	DeviceMax float64
}

// Engine computes control actions for one device.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Decide runs the full decision pipeline: bound sanitation, bin
// classification, the seasonal mode table, capability fallback, fan
// clamping, and the manual override bias.
func (e *Engine) Decide(in Input) model.ControlAction {
	devMin, devMax := sanitizeBounds(in.DeviceMin, in.DeviceMax)
	effMin, effMax := e.effectiveBounds(devMin, devMax)

	comfortMin, comfortMax := in.Comfort.Bounds(in.Category)
	comfortTemp := in.Comfort.ComfortTemp
	bins := ClassifyBins(in.Snapshot.IndoorTemp, comfortMin, comfortTemp, comfortMax, in.Season)

	action := e.pickMode(in, bins, comfortTemp, comfortMin, comfortMax, effMin, effMax)

	if e.cfg.OverrideTemperature != 0 && action.HVACMode != model.ModeOff {
		biased := action.TargetTemp + e.cfg.OverrideTemperature
		action.TargetTemp = clamp(biased, effMin, effMax)
		action.Reason = fmt.Sprintf("%s, override %+.1f°C", action.Reason, e.cfg.OverrideTemperature)
	}

	log.Debug().
		Str("season", string(in.Season)).
		Str("bin", bins.Bin()).
		Str("hvac_mode", string(action.HVACMode)).
		Str("fan_mode", string(action.FanMode)).
		Float64("target_temp", action.TargetTemp).
		Str("reason", action.Reason).
		Msg("Decision computed")
	return action
}

// sanitizeBounds guards against bogus device metadata, e.g. a climate
// integration reporting 0-1°C setpoint limits.
func sanitizeBounds(min, max float64) (float64, float64) {
	if min >= max || min < 5.0 || max > 40.0 || max-min < 5.0 {
		log.Debug().
			Float64("reported_min", min).
			Float64("reported_max", max).
			Msg("Unrealistic device setpoint limits, using safe defaults")
		return safeBoundMin, safeBoundMax
	}
	return min, max
}

// effectiveBounds intersects device limits with the user's comfort bounds.
// Contradictory user bounds fall back to the device limits.
func (e *Engine) effectiveBounds(devMin, devMax float64) (float64, float64) {
	min, max := devMin, devMax
	if e.cfg.UserComfortMin != nil && *e.cfg.UserComfortMin > min {
		min = *e.cfg.UserComfortMin
	}
	if e.cfg.UserComfortMax != nil && *e.cfg.UserComfortMax < max {
		max = *e.cfg.UserComfortMax
	}
	if min > max {
		return devMin, devMax
	}
	return min, max
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (e *Engine) pickMode(in Input, bins model.TemperatureBins, comfortTemp, comfortMin, comfortMax, effMin, effMax float64) model.ControlAction {
	indoor := in.Snapshot.IndoorTemp
	outdoor := in.Snapshot.OutdoorTemp
	occupied := in.Snapshot.OccupancyPresent

	target := func(v float64) float64 { return clamp(v, effMin, effMax) }

	// Indoor, outdoor and comfort all within half a degree of each other
	// means no mode can improve anything.
	if abs(indoor-outdoor) <= equilibriumBand && abs(indoor-comfortTemp) <= equilibriumBand {
		a := e.equilibrium(target(comfortTemp), occupied)
		a.Reason = "equilibrium with outdoor conditions"
		return a
	}

	switch in.Season {
	case model.SeasonSummer:
		return e.summer(bins, indoor, comfortTemp, comfortMax, occupied, target)
	case model.SeasonWinter:
		return e.winter(bins, indoor, comfortTemp, comfortMin, occupied, target)
	default:
		return e.shoulder(bins, indoor, comfortTemp, comfortMin, comfortMax, occupied, target)
	}
}

// equilibrium picks the resting mode when no conditioning is needed. With
// energy save on, an empty area rests fully off instead of circulating air.
func (e *Engine) equilibrium(setpoint float64, occupied bool) model.ControlAction {
	if e.cfg.EnergySaveMode && !occupied && e.cfg.EnableOffMode {
		return model.ControlAction{HVACMode: model.ModeOff, FanMode: model.FanAuto, TargetTemp: setpoint, Reason: "at equilibrium"}
	}
	if e.cfg.EnableFanMode {
		return model.ControlAction{HVACMode: model.ModeFanOnly, FanMode: e.clampFan(model.FanLow), TargetTemp: setpoint, Reason: "at equilibrium"}
	}
	mode := model.ModeFanOnly
	if e.cfg.EnableOffMode {
		mode = model.ModeOff
	}
	return model.ControlAction{HVACMode: mode, FanMode: model.FanAuto, TargetTemp: setpoint, Reason: "at equilibrium"}
}

// fallbackDisabled substitutes for a mode the config disables: dry for
// cooling intents, then fan_only, then off.
func (e *Engine) fallbackDisabled(preferred model.HVACMode, fan model.FanMode, setpoint float64) model.ControlAction {
	if preferred == model.ModeCool && e.cfg.EnableDryMode {
		return model.ControlAction{HVACMode: model.ModeDry, FanMode: e.clampFan(fan), TargetTemp: setpoint, Reason: "cool disabled, using dry"}
	}
	if e.cfg.EnableFanMode {
		return model.ControlAction{HVACMode: model.ModeFanOnly, FanMode: e.clampFan(fan), TargetTemp: setpoint, Reason: string(preferred) + " disabled, using fan_only"}
	}
	if e.cfg.EnableOffMode {
		return model.ControlAction{HVACMode: model.ModeOff, FanMode: model.FanAuto, TargetTemp: setpoint, Reason: string(preferred) + " disabled, turning off"}
	}
	return model.ControlAction{HVACMode: model.ModeFanOnly, FanMode: model.FanAuto, TargetTemp: setpoint, Reason: string(preferred) + " disabled"}
}

// summer never heats. The warm side escalates cooling with bin severity;
// the cool side rests at equilibrium.
func (e *Engine) summer(bins model.TemperatureBins, indoor, comfortTemp, comfortMax float64, occupied bool, target func(float64) float64) model.ControlAction {
	if bins.AboveMax || bins.SlightlyWarm || bins.ComfortablyWarm {
		if !e.cfg.EnableCoolMode {
			return e.fallbackDisabled(model.ModeCool, model.FanMid, target(comfortTemp))
		}
		highLoad := bins.AboveMax && indoor >= comfortMax+e.cfg.AggressiveCoolingThreshold
		fan := model.FanLow
		delta := 1.0
		switch {
		case highLoad:
			fan = model.FanHigh
			delta = 2.0
		case bins.SlightlyWarm:
			fan = model.FanMid
		}
		setpoint := target(comfortTemp)
		if abs(indoor-comfortTemp) >= e.cfg.TemperatureChangeThreshold {
			setpoint = target(comfortTemp - delta)
		}
		return model.ControlAction{
			HVACMode:   model.ModeCool,
			FanMode:    e.clampFan(fan),
			TargetTemp: setpoint,
			Reason:     "summer cooling, bin " + bins.Bin(),
		}
	}
	a := e.equilibrium(target(comfortTemp), occupied)
	a.Reason = "summer cool side, holding"
	return a
}

// winter never cools. The cool side escalates heating with bin severity;
// the warm side rests at equilibrium.
func (e *Engine) winter(bins model.TemperatureBins, indoor, comfortTemp, comfortMin float64, occupied bool, target func(float64) float64) model.ControlAction {
	if bins.BelowMin || bins.SlightlyCool || bins.ComfortablyCool {
		if !e.cfg.EnableHeatMode {
			return e.fallbackDisabled(model.ModeHeat, model.FanMid, target(comfortTemp))
		}
		delta := 1.0
		if bins.BelowMin && indoor <= comfortMin-e.cfg.AggressiveHeatingThreshold {
			delta = 2.0
		}
		fan := model.FanLow
		if bins.SlightlyCool {
			fan = model.FanMid
		}
		setpoint := target(comfortTemp)
		if abs(indoor-comfortTemp) >= e.cfg.TemperatureChangeThreshold {
			setpoint = target(comfortTemp + delta)
		}
		return model.ControlAction{
			HVACMode:   model.ModeHeat,
			FanMode:    e.clampFan(fan),
			TargetTemp: setpoint,
			Reason:     "winter heating, bin " + bins.Bin(),
		}
	}
	a := e.equilibrium(target(comfortTemp), occupied)
	a.Reason = "winter warm side, holding"
	return a
}

// shoulder seasons lean toward whichever side is exceeded and prefer
// fan-only near comfort. Without energy save the nudges grow to ±1°C and
// the extremes to ±2°C.
func (e *Engine) shoulder(bins model.TemperatureBins, indoor, comfortTemp, comfortMin, comfortMax float64, occupied bool, target func(float64) float64) model.ControlAction {
	restFan := func() model.ControlAction {
		if e.cfg.EnableFanMode {
			return model.ControlAction{HVACMode: model.ModeFanOnly, FanMode: e.clampFan(model.FanLow), TargetTemp: target(comfortTemp), Reason: "shoulder season, near comfort"}
		}
		mode := model.ModeFanOnly
		if e.cfg.EnableOffMode {
			mode = model.ModeOff
		}
		return model.ControlAction{HVACMode: mode, FanMode: model.FanOff, TargetTemp: target(comfortTemp), Reason: "shoulder season, near comfort"}
	}

	heat := func(fan model.FanMode, delta float64) model.ControlAction {
		if !e.cfg.EnableHeatMode {
			return e.fallbackDisabled(model.ModeHeat, fan, target(comfortTemp))
		}
		return model.ControlAction{HVACMode: model.ModeHeat, FanMode: e.clampFan(fan), TargetTemp: target(comfortTemp + delta), Reason: "shoulder heating, bin " + bins.Bin()}
	}
	cool := func(fan model.FanMode, delta float64) model.ControlAction {
		if !e.cfg.EnableCoolMode {
			return e.fallbackDisabled(model.ModeCool, fan, target(comfortTemp))
		}
		return model.ControlAction{HVACMode: model.ModeCool, FanMode: e.clampFan(fan), TargetTemp: target(comfortTemp - delta), Reason: "shoulder cooling, bin " + bins.Bin()}
	}

	if e.cfg.EnergySaveMode {
		switch {
		case bins.ComfortablyCool || bins.ComfortablyWarm:
			return restFan()
		case bins.SlightlyCool:
			return heat(model.FanLow, 0)
		case bins.SlightlyWarm:
			return cool(model.FanLow, 0)
		case bins.BelowMin:
			return heat(model.FanMid, 0)
		case bins.AboveMax:
			return cool(model.FanMid, 0)
		}
		return e.equilibrium(target(comfortTemp), occupied)
	}

	switch {
	case bins.ComfortablyCool || bins.ComfortablyWarm:
		return restFan()
	case bins.SlightlyCool:
		return heat(model.FanMid, 1)
	case bins.SlightlyWarm:
		return cool(model.FanMid, 1)
	case bins.BelowMin:
		fan := model.FanMid
		if indoor <= comfortMin-e.cfg.AggressiveHeatingThreshold {
			fan = model.FanHigh
		}
		return heat(fan, 2)
	case bins.AboveMax:
		return cool(model.FanHigh, 2)
	}
	return e.equilibrium(target(comfortTemp), occupied)
}

// clampFan limits a fan level to the configured [min, max] range over the
// ordered set low < mid < high < highest.
func (e *Engine) clampFan(fan model.FanMode) model.FanMode {
	idx := fanIndex(fan)
	min := fanIndex(e.cfg.MinFanSpeed)
	max := fanIndex(e.cfg.MaxFanSpeed)
	if idx < min {
		idx = min
	}
	if idx > max {
		idx = max
	}
	return model.FanSpeedOrder[idx]
}

func fanIndex(fan model.FanMode) int {
	for i, f := range model.FanSpeedOrder {
		if f == fan {
			return i
		}
	}
	return 0
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

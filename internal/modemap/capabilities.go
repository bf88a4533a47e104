package modemap

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

// trvKeywords mark devices that can never cool regardless of what their
// advertised modes claim.
var trvKeywords = []string{"trv", "radiator", "thermostat"}

// DetectCapabilities derives a capability profile from the mode lists a
// device advertises. Auto and heat_cool imply both heating and cooling.
func DetectCapabilities(deviceID string, supported model.SupportedModes) model.DeviceCapabilities {
	hvac := make([]string, len(supported.HVACModes))
	for i, m := range supported.HVACModes {
		hvac[i] = strings.ToLower(m)
	}

	caps := model.DeviceCapabilities{
		SupportsSetTemp:    true,
		SupportsSetHVAC:    len(supported.HVACModes) > 0,
		SupportsSetFanMode: len(supported.FanModes) > 0,
	}
	for _, m := range hvac {
		switch m {
		case "cool":
			caps.CanCool = true
		case "heat":
			caps.CanHeat = true
		case "dry", "dehumidify":
			caps.CanDry = true
		case "fan_only", "fan":
			caps.CanFan = true
		case "auto":
			caps.CanCool = true
			caps.CanHeat = true
		}
		if strings.Contains(m, "heat_cool") {
			caps.CanCool = true
			caps.CanHeat = true
		}
	}
	if len(supported.FanModes) > 0 {
		caps.CanFan = true
	}

	lowered := strings.ToLower(deviceID)
	for _, kw := range trvKeywords {
		if strings.Contains(lowered, kw) {
			caps.CanCool = false
			caps.CanFan = false
			caps.CanDry = false
			break
		}
	}

	log.Debug().
		Str("device", deviceID).
		Bool("can_cool", caps.CanCool).
		Bool("can_heat", caps.CanHeat).
		Bool("can_fan", caps.CanFan).
		Bool("can_dry", caps.CanDry).
		Msg("Detected device capabilities")
	return caps
}

// Classify buckets a capability profile into the classes the arbiter
// ranks by.
func Classify(caps model.DeviceCapabilities) model.DeviceClass {
	switch {
	case caps.CanHeat && caps.CanCool:
		return model.ClassDual
	case caps.CanHeat:
		return model.ClassHeatOnly
	case caps.CanCool:
		return model.ClassCoolOnly
	case caps.CanFan || caps.CanDry:
		return model.ClassFanDryOnly
	default:
		return model.ClassUnknown
	}
}

// Validation is the outcome of checking calculated modes against a
// device's capability profile, with substitutes for anything unsupported.
type Validation struct {
	HVACValid      bool
	FanValid       bool
	HVACSuggestion model.HVACMode
	FanSuggestion  model.FanMode
	Capabilities   model.DeviceCapabilities
}

// Compatible reports whether both calculated modes passed as-is.
func (v Validation) Compatible() bool { return v.HVACValid && v.FanValid }

// ValidateCompatibility checks calculated modes against detected
// capabilities. Unsupported cooling intents degrade through fan_only to
// off; unsupported dry and fan intents go straight to off.
func ValidateCompatibility(deviceID string, hvac model.HVACMode, fan model.FanMode, supported model.SupportedModes) Validation {
	caps := DetectCapabilities(deviceID, supported)
	v := Validation{
		HVACValid:      true,
		FanValid:       true,
		HVACSuggestion: hvac,
		FanSuggestion:  fan,
		Capabilities:   caps,
	}

	switch {
	case hvac == model.ModeCool && !caps.CanCool:
		v.HVACValid = false
		if caps.CanHeat {
			v.HVACSuggestion = model.ModeOff
		} else if caps.CanFan {
			v.HVACSuggestion = model.ModeFanOnly
		} else {
			v.HVACSuggestion = model.ModeOff
		}
	case hvac == model.ModeHeat && !caps.CanHeat:
		v.HVACValid = false
		if caps.CanCool {
			v.HVACSuggestion = model.ModeOff
		} else if caps.CanFan {
			v.HVACSuggestion = model.ModeFanOnly
		} else {
			v.HVACSuggestion = model.ModeOff
		}
	case hvac == model.ModeDry && !caps.CanDry:
		v.HVACValid = false
		v.HVACSuggestion = model.ModeOff
	case hvac == model.ModeFanOnly && !caps.CanFan:
		v.HVACValid = false
		v.HVACSuggestion = model.ModeOff
	}

	if fan != model.FanOff && !caps.CanFan {
		v.FanValid = false
		v.FanSuggestion = model.FanOff
	}

	if !v.Compatible() {
		log.Warn().
			Str("device", deviceID).
			Str("hvac", string(hvac)).
			Str("hvac_suggestion", string(v.HVACSuggestion)).
			Str("fan", string(fan)).
			Str("fan_suggestion", string(v.FanSuggestion)).
			Msg("Calculated modes incompatible with device capabilities")
	}
	return v
}

// Package modemap translates the modes the decision engine produces into
// modes a concrete device actually advertises. Manufacturers disagree on
// naming, so mapping runs through layered strategies: exact match, alias
// equivalence, substring match, then the first supported mode.
package modemap

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

var fanEquivalents = map[string][]string{
	"off":        {"off"},
	"auto":       {"auto"},
	"quiet":      {"quiet", "silent", "silence", "night", "sleep"},
	"lowest":     {"lowest", "min", "minimum", "level1", "ultralow", "1"},
	"low":        {"low", "level1", "1", "slow"},
	"mediumlow":  {"mediumlow", "medium low", "level2", "2", "medlow"},
	"mid":        {"mid", "medium", "med", "middle", "level3", "3"},
	"mediumhigh": {"mediumhigh", "medium high", "level4", "4", "medhigh"},
	"high":       {"high", "level5", "5", "fast"},
	"highest":    {"highest", "max", "maximum", "top", "superhigh", "powerful", "turbo", "strong"},
}

var hvacEquivalents = map[string][]string{
	"auto":     {"auto", "heat_cool", "heat/cool", "heatcool"},
	"cool":     {"cool", "cooling"},
	"heat":     {"heat", "heating"},
	"dry":      {"dry", "dehumidify"},
	"humidify": {"humidify", "humidification"},
	"fan_only": {"fan_only", "fan", "fan only", "fanonly"},
	"off":      {"off", "stop"},
}

// mapMode resolves calculated against supported through the strategy chain.
func mapMode(calculated string, supported []string, equivalents map[string][]string, deviceID string) string {
	if calculated == "" || len(supported) == 0 {
		log.Warn().
			Str("device", deviceID).
			Str("calculated", calculated).
			Strs("supported", supported).
			Msg("Mode mapping with empty input")
		if calculated != "" {
			return calculated
		}
		if len(supported) > 0 {
			return supported[0]
		}
		return "off"
	}

	want := strings.ToLower(strings.TrimSpace(calculated))
	lower := make([]string, len(supported))
	for i, m := range supported {
		lower[i] = strings.ToLower(strings.TrimSpace(m))
	}

	// Exact case-insensitive match.
	for i, m := range lower {
		if m == want {
			return supported[i]
		}
	}

	// Alias equivalence.
	for key, aliases := range equivalents {
		if want != key && !containsFold(aliases, want) {
			continue
		}
		for _, alias := range aliases {
			for i, m := range lower {
				if m == strings.ToLower(alias) {
					return supported[i]
				}
			}
		}
	}

	// Substring match either direction.
	for i, m := range lower {
		if strings.Contains(m, want) || strings.Contains(want, m) {
			return supported[i]
		}
	}

	log.Warn().
		Str("device", deviceID).
		Str("calculated", calculated).
		Str("fallback", supported[0]).
		Msg("No mode match found, using first supported mode")
	return supported[0]
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// MapFanMode resolves a calculated fan mode to one the device supports.
// A calculated "highest" a device lacks falls back to "high" before the
// generic strategies run their course.
func MapFanMode(calculated model.FanMode, supported []string, deviceID string) string {
	if len(supported) == 0 {
		log.Warn().Str("device", deviceID).Msg("Device advertises no fan modes")
		return string(calculated)
	}
	if calculated == model.FanHighest && !containsFold(supported, "highest") {
		for _, m := range supported {
			if strings.EqualFold(m, "high") {
				return m
			}
		}
	}
	return mapMode(string(calculated), supported, fanEquivalents, deviceID)
}

// MapHVACMode resolves a calculated HVAC mode to one the device supports.
// Heat-only devices asked to cool are turned off rather than mapped into a
// mode that would fight the intent.
func MapHVACMode(calculated model.HVACMode, supported []string, deviceID string) string {
	if len(supported) == 0 {
		log.Warn().Str("device", deviceID).Msg("Device advertises no HVAC modes")
		return string(calculated)
	}

	hasHeat := anySubstring(supported, "heat")
	hasCool := anySubstring(supported, "cool")
	hasAuto := anySubstring(supported, "auto")
	hasOff := anySubstring(supported, "off")

	if hasHeat && !hasCool {
		switch calculated {
		case model.ModeCool, model.ModeDry, model.ModeFanOnly:
			if hasOff {
				return firstSubstring(supported, "off")
			}
			if hasAuto {
				return firstSubstring(supported, "auto")
			}
		case model.ModeHeat:
			return firstSubstring(supported, "heat")
		case model.ModeOff:
			if hasOff {
				return firstSubstring(supported, "off")
			}
			if hasAuto {
				return firstSubstring(supported, "auto")
			}
		}
	}

	mapped := mapMode(string(calculated), supported, hvacEquivalents, deviceID)

	if calculated == model.ModeAuto && !containsFold(supported, "auto") {
		for _, m := range supported {
			if strings.EqualFold(m, "heat_cool") {
				return m
			}
		}
	}
	return mapped
}

func anySubstring(modes []string, sub string) bool {
	for _, m := range modes {
		if strings.Contains(strings.ToLower(m), sub) {
			return true
		}
	}
	return false
}

func firstSubstring(modes []string, sub string) string {
	for _, m := range modes {
		if strings.Contains(strings.ToLower(m), sub) {
			return m
		}
	}
	return modes[0]
}

// Package comfort implements the ASHRAE 55-2020 adaptive thermal comfort
// model: comfort temperature from the outdoor running mean, acceptability
// bands, and the elevated-air-speed cooling adjustment.
package comfort

import (
	"fmt"
	"math"

	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

const (
	// Valid running-mean range for the adaptive model (ASHRAE 55 §5.4).
	RunningMeanMin = 10.0
	RunningMeanMax = 33.5

	baseTemp        = 18.9
	tempCoefficient = 0.255

	acceptability80Range = 3.5
	acceptability90Range = 2.5

	airVelocityMin  = 0.1
	airVelocityHigh = 0.2
)

// Input holds the parameters of one adaptive comfort calculation.
// MeanRadiantTemp defaults to IndoorTemp when zero-valued inputs are
// built via NewInput.
type Input struct {
	IndoorTemp      float64
	MeanRadiantTemp float64
	RunningMeanTemp float64
	AirVelocity     float64 // m/s
}

// NewInput builds an Input with the mean radiant temperature defaulted
// to the indoor dry-bulb temperature.
func NewInput(indoor, runningMean, velocity float64) Input {
	return Input{
		IndoorTemp:      indoor,
		MeanRadiantTemp: indoor,
		RunningMeanTemp: runningMean,
		AirVelocity:     velocity,
	}
}

// Result is the outcome of one adaptive comfort calculation.
type Result struct {
	ComfortTemp  float64
	Low80        float64
	Up80         float64
	Low90        float64
	Up90         float64
	Acceptable80 bool
	Acceptable90 bool
}

// ValidationError reports an input outside the model's valid domain.
// Callers decide the fallback policy; the model never clamps.
type ValidationError struct {
	Field string
	Value float64
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("comfort: %s %.1f %s", e.Field, e.Value, e.Msg)
}

// Calculate runs the adaptive comfort model. It returns a ValidationError
// when the running mean is outside [10.0, 33.5]°C or the air velocity is
// negative.
func Calculate(in Input) (Result, error) {
	if in.RunningMeanTemp < RunningMeanMin || in.RunningMeanTemp > RunningMeanMax {
		return Result{}, &ValidationError{
			Field: "running_mean_temp",
			Value: in.RunningMeanTemp,
			Msg:   fmt.Sprintf("outside valid range %.1f-%.1f°C", RunningMeanMin, RunningMeanMax),
		}
	}
	if in.AirVelocity < 0 {
		return Result{}, &ValidationError{
			Field: "air_velocity",
			Value: in.AirVelocity,
			Msg:   "cannot be negative",
		}
	}

	comfortTemp := baseTemp + tempCoefficient*in.RunningMeanTemp
	operative := (in.IndoorTemp + in.MeanRadiantTemp) / 2.0

	// Elevated air speed cools the perceived operative temperature.
	adjusted := operative
	if v := in.AirVelocity; v > airVelocityMin {
		if v > airVelocityHigh {
			adjusted += 1.2 * math.Log10(v*10.0)
		} else {
			adjusted += 0.6 * (v - airVelocityMin) / airVelocityMin
		}
	}

	r := Result{
		ComfortTemp: comfortTemp,
		Low80:       comfortTemp - acceptability80Range,
		Up80:        comfortTemp + acceptability80Range,
		Low90:       comfortTemp - acceptability90Range,
		Up90:        comfortTemp + acceptability90Range,
	}
	r.Acceptable80 = adjusted >= r.Low80 && adjusted <= r.Up80
	r.Acceptable90 = adjusted >= r.Low90 && adjusted <= r.Up90
	return r, nil
}

// Bounds selects the acceptability band for a comfort category: category I
// uses the narrower 90% band, everything else the 80% band.
func (r Result) Bounds(cat model.ComfortCategory) (low, high float64) {
	if cat == model.CategoryI {
		return r.Low90, r.Up90
	}
	return r.Low80, r.Up80
}

// FanVelocity maps a fan mode to an indicative air velocity in m/s.
func FanVelocity(fan model.FanMode) float64 {
	switch fan {
	case model.FanOff:
		return 0.0
	case model.FanLow:
		return 0.15
	case model.FanMid:
		return 0.30
	case model.FanHigh:
		return 0.45
	case model.FanHighest:
		return 0.60
	default:
		return 0.1
	}
}

// HumidityAdjustment is the comfort-precision correction applied to the
// comfort temperature when indoor humidity sits outside the 30-60% band.
// High humidity raises the perceived temperature, dry air lowers it.
func HumidityAdjustment(indoorHumidity float64) float64 {
	switch {
	case indoorHumidity > 60:
		return 0.3 * (indoorHumidity - 60) / 10
	case indoorHumidity < 30:
		return -0.2 * (30 - indoorHumidity) / 10
	default:
		return 0.0
	}
}

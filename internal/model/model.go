package model

import "time"

type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

// Shoulder reports whether the season is a transition season (spring or
// autumn), which the decision engine and arbitrator treat identically.
func (s Season) Shoulder() bool {
	return s == SeasonSpring || s == SeasonAutumn
}

type HVACMode string

const (
	ModeOff     HVACMode = "off"
	ModeCool    HVACMode = "cool"
	ModeHeat    HVACMode = "heat"
	ModeDry     HVACMode = "dry"
	ModeFanOnly HVACMode = "fan_only"
	ModeAuto    HVACMode = "auto"
)

type FanMode string

const (
	FanOff     FanMode = "off"
	FanAuto    FanMode = "auto"
	FanLow     FanMode = "low"
	FanMid     FanMode = "mid"
	FanHigh    FanMode = "high"
	FanHighest FanMode = "highest"
)

// FanSpeedOrder is the ordered ladder used for clamping and escalation.
var FanSpeedOrder = []FanMode{FanLow, FanMid, FanHigh, FanHighest}

type ComfortCategory string

const (
	CategoryI   ComfortCategory = "I"
	CategoryII  ComfortCategory = "II"
	CategoryIII ComfortCategory = "III"
)

// SensorSnapshot is the immutable per-tick view of the environment. It is
// built once at the top of an evaluation cycle, fallback-filled from the
// last known valid readings, and never mutated afterwards.
type SensorSnapshot struct {
	IndoorTemp       float64
	OutdoorTemp      float64
	IndoorHumidity   *float64
	OutdoorHumidity  *float64
	MeanRadiantTemp  *float64
	RunningMeanTemp  float64
	AirVelocity      float64
	OccupancyPresent bool
	CurrentFanMode   FanMode
	Taken            time.Time
}

// ComfortResult is derived from a SensorSnapshot every tick and never
// mutated in place. Bounds always satisfy Min <= ComfortTemp <= Max.
type ComfortResult struct {
	ComfortTemp  float64
	ComfortMin   float64
	ComfortMax   float64
	Acceptable80 bool
	Acceptable90 bool
	Season       Season
	Category     ComfortCategory
}

// TemperatureBins classifies indoor temperature against the active
// season's comfort bounds. Exactly one field is true.
type TemperatureBins struct {
	BelowMin        bool
	SlightlyCool    bool
	ComfortablyCool bool
	ComfortablyWarm bool
	SlightlyWarm    bool
	AboveMax        bool
}

// Bin returns the name of the single active bin.
func (b TemperatureBins) Bin() string {
	switch {
	case b.BelowMin:
		return "below_min"
	case b.SlightlyCool:
		return "slightly_cool"
	case b.ComfortablyCool:
		return "comfortably_cool"
	case b.ComfortablyWarm:
		return "comfortably_warm"
	case b.SlightlyWarm:
		return "slightly_warm"
	default:
		return "above_max"
	}
}

// ControlAction is the sole output of the decision engine. It is compared
// against a device's reported state to decide whether to actuate.
type ControlAction struct {
	HVACMode   HVACMode
	FanMode    FanMode
	TargetTemp float64
	Reason     string
}

// DeviceCapabilities is derived from a device's advertised mode lists and
// cached per device until a redetect is requested.
type DeviceCapabilities struct {
	CanCool            bool
	CanHeat            bool
	CanFan             bool
	CanDry             bool
	SupportsSetTemp    bool
	SupportsSetHVAC    bool
	SupportsSetFanMode bool
}

type DeviceClass string

const (
	ClassHeatOnly   DeviceClass = "heat_only"
	ClassCoolOnly   DeviceClass = "cool_only"
	ClassDual       DeviceClass = "dual"
	ClassFanDryOnly DeviceClass = "fan_dry_only"
	ClassUnknown    DeviceClass = "unknown"
)

type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
	RoleNone      Role = "none"
)

// Side is the need an area currently has: which direction the arbitrated
// primary device should push.
type Side string

const (
	SideHeat Side = "heat"
	SideCool Side = "cool"
	SideFan  Side = "fan"
	SideDry  Side = "dry"
)

// DeviceRole is produced by an arbitration pass and held stable for the
// dwell window even if inputs change.
type DeviceRole struct {
	DeviceID string
	Role     Role
	Side     Side
}

// CommandSignature tags every issued actuation so the resulting
// state-change echo can be recognized as self-inflicted.
type CommandSignature string

// TempSample is one entry of the outdoor temperature history ring.
type TempSample struct {
	Temp  float64
	Taken time.Time
}

// ReportedState is a device's current state as seen on the bus.
type ReportedState struct {
	HVACMode    HVACMode
	FanMode     FanMode
	Temperature float64
	SwingMode   string
	PresetMode  string
	// Signature carries the command signature the device echoes back for
	// state changes caused by a bus command, empty for human interaction
	// at the unit itself.
	Signature CommandSignature
	Available bool
}

// SupportedModes is a device's advertised capability document.
type SupportedModes struct {
	HVACModes []string
	FanModes  []string
	TempMin   float64
	TempMax   float64
}

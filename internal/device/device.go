// Package device defines the contracts the control core consumes from the
// outside world: sensor reads, device state, actuation, area membership
// and persistence. Implementations live at the edges (MQTT bridge,
// sqlite); the core only sees these interfaces.
package device

import (
	"context"
	"time"

	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

// Command is one actuation request sent to a device.
type Command struct {
	SetHVACMode *string
	SetFanMode  *string
	SetTemp     *float64
	Signature   model.CommandSignature
}

// SensorProvider answers non-blocking snapshot reads of sensor values.
// A false ok means the reading is momentarily unavailable; callers fall
// back to their last valid value.
type SensorProvider interface {
	GetNumeric(ref string) (value float64, ok bool)
	GetBinary(ref string) (value bool, ok bool)
}

// DeviceStateProvider exposes what a device advertises and reports.
type DeviceStateProvider interface {
	GetSupportedModes(ref string) (model.SupportedModes, error)
	GetCurrentState(ref string) (model.ReportedState, error)
}

// ActuationSink delivers commands to a device. Calls are fire-and-forget
// from the supervisor's point of view: an error is logged and the command
// retried on the next periodic tick.
type ActuationSink interface {
	Call(ctx context.Context, ref string, cmd Command) error
}

// AreaMembershipProvider lists the climate devices sharing an area.
type AreaMembershipProvider interface {
	ListPeers(ref string) ([]string, error)
	ListFans(ref string) ([]string, error)
}

// ControlState is the per-device persistent record a supervisor owns
// exclusively.
type ControlState struct {
	DeviceID         string
	ManualPauseUntil *time.Time
	UserPoweredOff   bool
	LastSignature    model.CommandSignature
	LastCommandAt    *time.Time
	RunningMean      *float64
}

// PersistenceStore carries ControlState and outdoor temperature history
// across restarts.
type PersistenceStore interface {
	LoadControlState(deviceID string) (ControlState, bool, error)
	SaveControlState(state ControlState) error
	AppendOutdoorSample(deviceID string, sample model.TempSample) error
	LoadOutdoorHistory(deviceID string, since time.Time) ([]model.TempSample, error)
	PruneOutdoorHistory(deviceID string, before time.Time) error
}

// StateChange is a device state transition observed on the bus.
type StateChange struct {
	DeviceID string
	Old      model.ReportedState
	New      model.ReportedState
	At       time.Time
}

// StateChangeHandler receives device state transitions.
type StateChangeHandler func(StateChange)

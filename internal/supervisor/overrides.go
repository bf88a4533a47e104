package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/device"
	"github.com/thatsimonsguy/adaptive-climate/internal/journal"
	"github.com/thatsimonsguy/adaptive-climate/internal/model"
	"github.com/thatsimonsguy/adaptive-climate/internal/notifications"
)

// HandleStateChange classifies a device state transition and applies
// override handling for human-initiated changes. Echoes of our own
// commands are ignored.
func (s *Supervisor) HandleStateChange(change device.StateChange) {
	if change.DeviceID != s.deviceID {
		return
	}

	if s.journal.Classify(change.New.Signature) == journal.OriginSelf {
		log.Debug().Str("device", s.deviceID).Msg("State change is our own echo")
		return
	}

	now := s.now().UTC()

	switch {
	case change.New.HVACMode == model.ModeOff && change.Old.HVACMode != model.ModeOff:
		// Power-off dominates and clears any timed pause.
		s.mu.Lock()
		s.userPoweredOff = true
		s.manualPauseUntil = nil
		s.mu.Unlock()
		s.persist()
		log.Info().Str("device", s.deviceID).Msg("User powered device off, suspending control indefinitely")
		if err := notifications.Send("Adaptive Climate", s.deviceID+" powered off by user, automatic control suspended"); err != nil {
			log.Debug().Err(err).Msg("Notification not sent")
		}

	case change.Old.HVACMode == model.ModeOff && change.New.HVACMode != model.ModeOff:
		s.mu.Lock()
		s.userPoweredOff = false
		s.mu.Unlock()
		s.persist()
		log.Info().Str("device", s.deviceID).Msg("User powered device on, resuming automatic control")
		s.Kick()

	case meaningfulChange(change.Old, change.New):
		// A later manual change resets the pause window, never stacks it.
		// While powered off the indefinite hold already covers everything,
		// so no timed pause may coexist with it.
		until := now.Add(s.cfg.ManualPauseDuration())
		s.mu.Lock()
		if s.userPoweredOff {
			s.mu.Unlock()
			log.Debug().Str("device", s.deviceID).Msg("Manual change while powered off, hold unchanged")
			return
		}
		s.manualPauseUntil = &until
		s.mu.Unlock()
		s.persist()
		log.Info().
			Str("device", s.deviceID).
			Time("pause_until", until).
			Msg("Manual change detected, pausing automatic control")
	}
}

// meaningfulChange reports whether a human adjusted something worth
// honoring: setpoint, mode, fan, swing or preset.
func meaningfulChange(old, new model.ReportedState) bool {
	if old.HVACMode != new.HVACMode {
		return true
	}
	if old.FanMode != new.FanMode {
		return true
	}
	if old.Temperature != new.Temperature {
		return true
	}
	if old.SwingMode != new.SwingMode {
		return true
	}
	if old.PresetMode != new.PresetMode {
		return true
	}
	return false
}

// SetManualPause starts or resets the manual pause window, used by the
// management API.
func (s *Supervisor) SetManualPause(d time.Duration) time.Time {
	until := s.now().UTC().Add(d)
	s.mu.Lock()
	s.manualPauseUntil = &until
	s.mu.Unlock()
	s.persist()
	return until
}

// SetManualOverride pauses automatic control and, when a setpoint is
// given, pushes it to the device under our own signature so it is not
// misread as another human change.
func (s *Supervisor) SetManualOverride(ctx context.Context, d time.Duration, targetTemp *float64) (time.Time, error) {
	until := s.SetManualPause(d)
	if targetTemp == nil {
		return until, nil
	}
	cmd := device.Command{SetTemp: targetTemp, Signature: journal.NewSignature()}
	s.journal.Record(cmd.Signature)
	if err := s.deps.Sink.Call(ctx, s.deviceID, cmd); err != nil {
		return until, err
	}
	log.Info().
		Str("device", s.deviceID).
		Float64("target_temp", *targetTemp).
		Time("pause_until", until).
		Msg("Manual override setpoint applied")
	return until, nil
}

// ClearManualPause drops any pause and power-off hold, resuming control.
func (s *Supervisor) ClearManualPause() {
	s.mu.Lock()
	s.manualPauseUntil = nil
	s.userPoweredOff = false
	s.journal.Clear()
	s.mu.Unlock()
	s.persist()
	s.Kick()
}

// Status is the management API's view of one supervisor.
type Status struct {
	DeviceID         string                   `json:"device_id"`
	State            State                    `json:"state"`
	ManualPauseUntil *time.Time               `json:"manual_pause_until,omitempty"`
	UserPoweredOff   bool                     `json:"user_powered_off"`
	RunningMean      *float64                 `json:"running_mean,omitempty"`
	LastComfort      *model.ComfortResult     `json:"last_comfort,omitempty"`
	LastAction       *model.ControlAction     `json:"last_action,omitempty"`
	Capabilities     model.DeviceCapabilities `json:"capabilities"`
	VentilationHold  bool                     `json:"ventilation_hold"`
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		DeviceID:         s.deviceID,
		State:            s.state,
		ManualPauseUntil: s.manualPauseUntil,
		UserPoweredOff:   s.userPoweredOff,
		RunningMean:      s.runningMean,
		LastComfort:      s.lastComfort,
		LastAction:       s.lastAction,
		Capabilities:     s.caps,
		VentilationHold:  s.ventilationHold,
	}
}

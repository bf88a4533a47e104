// Package supervisor runs the per-device control loop: building sensor
// snapshots, computing comfort and decisions, gating through area
// arbitration, and issuing idempotent actuation. One supervisor owns one
// device; supervisors share nothing mutable.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/arbiter"
	"github.com/thatsimonsguy/adaptive-climate/internal/comfort"
	"github.com/thatsimonsguy/adaptive-climate/internal/config"
	"github.com/thatsimonsguy/adaptive-climate/internal/decision"
	"github.com/thatsimonsguy/adaptive-climate/internal/device"
	"github.com/thatsimonsguy/adaptive-climate/internal/journal"
	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

// State names the loop's current phase.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateActing     State = "acting"
	StateCooldown   State = "cooldown"
)

// cooldownWindow suppresses event-driven re-evaluation right after an
// actuation, while the device settles and echoes arrive.
const cooldownWindow = 30 * time.Second

// steadyAfter is how many ticks run at the short startup interval before
// the loop relaxes to the steady interval.
const steadyAfter = 3

// Deps are the collaborators a supervisor needs.
type Deps struct {
	Sensors device.SensorProvider
	States  device.DeviceStateProvider
	Sink    device.ActuationSink
	Areas   device.AreaMembershipProvider
	Store   device.PersistenceStore
}

// Supervisor is the control loop for a single device.
type Supervisor struct {
	deviceID string
	cfg      config.Device
	latitude float64
	deps     Deps
	arb      *arbiter.Arbiter
	journal  *journal.Journal
	engine   *decision.Engine
	now      func() time.Time

	startupInterval time.Duration
	steadyInterval  time.Duration

	evalMu sync.Mutex // serializes evaluations for this device

	mu               sync.Mutex // guards everything below
	state            State
	manualPauseUntil *time.Time
	userPoweredOff   bool
	runningMean      *float64
	lastSnapshot     *model.SensorSnapshot
	lastComfort      *model.ComfortResult
	lastAction       *model.ControlAction
	supported        model.SupportedModes
	caps             model.DeviceCapabilities
	sensorsDown      bool
	lastOccupied     time.Time
	cooldownUntil    time.Time
	ventilationHold  bool

	kick chan struct{}
	stop chan struct{}
}

func New(cfg config.Device, global config.Config, deps Deps) *Supervisor {
	s := &Supervisor{
		deviceID:        cfg.ID,
		cfg:             cfg,
		latitude:        global.Latitude,
		deps:            deps,
		arb:             arbiter.New(cfg.ID),
		journal:         journal.New(),
		now:             time.Now,
		startupInterval: global.StartupInterval(),
		steadyInterval:  global.UpdateInterval(),
		state:           StateIdle,
		kick:            make(chan struct{}, 1),
		stop:            make(chan struct{}),
	}
	s.engine = decision.NewEngine(s.engineConfig())
	return s
}

func (s *Supervisor) engineConfig() decision.Config {
	return decision.Config{
		EnergySaveMode:             s.cfg.EnergySaveMode,
		AggressiveCoolingThreshold: s.cfg.AggressiveCoolingThreshold,
		AggressiveHeatingThreshold: s.cfg.AggressiveHeatingThreshold,
		TemperatureChangeThreshold: s.cfg.TemperatureChangeThreshold,
		EnableCoolMode:             s.cfg.CoolEnabled(),
		EnableHeatMode:             s.cfg.HeatEnabled(),
		EnableFanMode:              s.cfg.FanEnabled(),
		EnableDryMode:              s.cfg.DryEnabled(),
		EnableOffMode:              s.cfg.OffEnabled(),
		MinFanSpeed:                model.FanMode(s.cfg.MinFanSpeed),
		MaxFanSpeed:                model.FanMode(s.cfg.MaxFanSpeed),
		OverrideTemperature:        s.cfg.OverrideTemperature,
		UserComfortMin:             s.cfg.MinComfortTemp,
		UserComfortMax:             s.cfg.MaxComfortTemp,
	}
}

// DeviceID returns the managed device's identifier.
func (s *Supervisor) DeviceID() string { return s.deviceID }

// Start restores persisted state and launches the control loop.
func (s *Supervisor) Start(ctx context.Context) {
	s.restore()
	s.detectCapabilities()
	go s.run(ctx)
	log.Info().Str("device", s.deviceID).Msg("Supervisor started")
}

// Stop terminates the control loop.
func (s *Supervisor) Stop() {
	close(s.stop)
}

// Kick requests an immediate evaluation, coalescing with any pending one.
func (s *Supervisor) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Supervisor) run(ctx context.Context) {
	ticker := time.NewTicker(s.startupInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Evaluate(ctx)
			ticks++
			if ticks == steadyAfter {
				ticker.Reset(s.steadyInterval)
				log.Debug().
					Str("device", s.deviceID).
					Dur("interval", s.steadyInterval).
					Msg("Switching to steady update interval")
			}
		case <-s.kick:
			// Event-driven ticks respect the post-actuation cooldown.
			s.mu.Lock()
			inCooldown := s.now().Before(s.cooldownUntil)
			s.mu.Unlock()
			if !inCooldown {
				s.Evaluate(ctx)
			}
		}
	}
}

// restore loads persisted control state, ignoring load failures beyond a
// warning: a fresh state is always a safe starting point.
func (s *Supervisor) restore() {
	st, found, err := s.deps.Store.LoadControlState(s.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Failed to load persisted control state")
		return
	}
	if !found {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if st.ManualPauseUntil != nil && st.ManualPauseUntil.After(now) {
		s.manualPauseUntil = st.ManualPauseUntil
	}
	s.userPoweredOff = st.UserPoweredOff
	s.runningMean = st.RunningMean
	if st.LastSignature != "" {
		s.journal.Record(st.LastSignature)
	}

	s.bootstrapRunningMean(now)
}

// bootstrapRunningMean folds up to seven days of stored outdoor history
// into the running mean when none was persisted.
func (s *Supervisor) bootstrapRunningMean(now time.Time) {
	if s.runningMean != nil {
		return
	}
	history, err := s.deps.Store.LoadOutdoorHistory(s.deviceID, now.AddDate(0, 0, -7))
	if err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Failed to load outdoor history")
		return
	}
	means := comfort.DailyMeans(history)
	if rm, ok := comfort.RunningMean(means, comfort.DefaultAlpha); ok {
		s.runningMean = &rm
		log.Info().
			Str("device", s.deviceID).
			Float64("running_mean", rm).
			Int("days", len(means)).
			Msg("Bootstrapped running mean from outdoor history")
	}
}

func (s *Supervisor) detectCapabilities() {
	supported, err := s.deps.States.GetSupportedModes(s.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Failed to read supported modes")
		return
	}
	s.mu.Lock()
	s.supported = supported
	s.caps = detectCaps(s.deviceID, supported)
	s.mu.Unlock()
}

// RedetectCapabilities re-derives the capability profile on demand.
func (s *Supervisor) RedetectCapabilities() model.DeviceCapabilities {
	s.detectCapabilities()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

func (s *Supervisor) persist() {
	s.mu.Lock()
	sig, at := s.journal.Last()
	st := device.ControlState{
		DeviceID:         s.deviceID,
		ManualPauseUntil: s.manualPauseUntil,
		UserPoweredOff:   s.userPoweredOff,
		LastSignature:    sig,
		RunningMean:      s.runningMean,
	}
	if !at.IsZero() {
		st.LastCommandAt = &at
	}
	s.mu.Unlock()

	if err := s.deps.Store.SaveControlState(st); err != nil {
		log.Warn().Err(err).Str("device", s.deviceID).Msg("Failed to persist control state")
	}
}

// Flush persists the current control state, called from the periodic
// persistence job and at shutdown.
func (s *Supervisor) Flush() {
	s.persist()
}

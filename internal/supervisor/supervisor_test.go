package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/adaptive-climate/internal/config"
	"github.com/thatsimonsguy/adaptive-climate/internal/device"
	"github.com/thatsimonsguy/adaptive-climate/internal/journal"
	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

type fakeSensors struct {
	mu     sync.Mutex
	values map[string]float64
	binary map[string]bool
	down   map[string]bool
}

func (f *fakeSensors) GetNumeric(ref string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[ref] {
		return 0, false
	}
	v, ok := f.values[ref]
	return v, ok
}

func (f *fakeSensors) GetBinary(ref string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.binary[ref]
	return v, ok
}

type fakeStates struct {
	mu        sync.Mutex
	supported model.SupportedModes
	state     model.ReportedState
}

func (f *fakeStates) GetSupportedModes(ref string) (model.SupportedModes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported, nil
}

func (f *fakeStates) GetCurrentState(ref string) (model.ReportedState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

type sentCommand struct {
	ref string
	cmd device.Command
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sentCommand
}

func (f *fakeSink) Call(ctx context.Context, ref string, cmd device.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCommand{ref: ref, cmd: cmd})
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSink) last() (sentCommand, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return sentCommand{}, false
	}
	return f.calls[len(f.calls)-1], true
}

type fakeAreas struct {
	peers []string
	fans  []string
}

func (f *fakeAreas) ListPeers(ref string) ([]string, error) { return f.peers, nil }
func (f *fakeAreas) ListFans(ref string) ([]string, error)  { return f.fans, nil }

type fakeStore struct {
	mu      sync.Mutex
	states  map[string]device.ControlState
	history map[string][]model.TempSample
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:  make(map[string]device.ControlState),
		history: make(map[string][]model.TempSample),
	}
}

func (f *fakeStore) LoadControlState(id string) (device.ControlState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[id]
	if !ok {
		return device.ControlState{DeviceID: id}, false, nil
	}
	return st, true, nil
}

func (f *fakeStore) SaveControlState(st device.ControlState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[st.DeviceID] = st
	return nil
}

func (f *fakeStore) AppendOutdoorSample(id string, s model.TempSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[id] = append(f.history[id], s)
	return nil
}

func (f *fakeStore) LoadOutdoorHistory(id string, since time.Time) ([]model.TempSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TempSample
	for _, s := range f.history[id] {
		if !s.Taken.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) PruneOutdoorHistory(id string, before time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []model.TempSample
	for _, s := range f.history[id] {
		if !s.Taken.Before(before) {
			kept = append(kept, s)
		}
	}
	f.history[id] = kept
	return nil
}

type harness struct {
	sup     *Supervisor
	sensors *fakeSensors
	states  *fakeStates
	sink    *fakeSink
	areas   *fakeAreas
	store   *fakeStore
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		sensors: &fakeSensors{
			values: map[string]float64{
				"sensor/indoor":  27.5,
				"sensor/outdoor": 30.0,
			},
			binary: map[string]bool{},
			down:   map[string]bool{},
		},
		states: &fakeStates{
			supported: model.SupportedModes{
				HVACModes: []string{"off", "cool", "heat", "dry", "fan_only"},
				FanModes:  []string{"low", "mid", "high"},
				TempMin:   16,
				TempMax:   30,
			},
			state: model.ReportedState{HVACMode: model.ModeOff, FanMode: model.FanOff, Available: true},
		},
		sink:  &fakeSink{},
		areas: &fakeAreas{},
		store: newFakeStore(),
		now:   time.Date(2025, 7, 10, 14, 0, 0, 0, time.UTC),
	}

	devCfg := config.Device{
		ID:                         "living_room_ac",
		Area:                       "living_room",
		IndoorTempSensor:           "sensor/indoor",
		OutdoorTempSensor:          "sensor/outdoor",
		ComfortCategory:            "II",
		AggressiveCoolingThreshold: 2.0,
		AggressiveHeatingThreshold: 2.0,
		TemperatureChangeThreshold: 0.5,
		MinFanSpeed:                "low",
		MaxFanSpeed:                "high",
		ManualPauseMinutes:         30,
	}
	global := config.Config{
		Latitude:               40.0,
		StartupIntervalSeconds: 1,
		UpdateIntervalSeconds:  1,
	}

	h.sup = New(devCfg, global, Deps{
		Sensors: h.sensors,
		States:  h.states,
		Sink:    h.sink,
		Areas:   h.areas,
		Store:   h.store,
	})
	h.sup.now = func() time.Time { return h.now }
	mean := 28.0
	h.sup.runningMean = &mean
	h.sup.detectCapabilities()
	return h
}

func TestEvaluateIssuesCooling(t *testing.T) {
	h := newHarness(t)
	h.sup.Evaluate(context.Background())

	last, ok := h.sink.last()
	require.True(t, ok)
	require.NotNil(t, last.cmd.SetHVACMode)
	assert.Equal(t, "cool", *last.cmd.SetHVACMode)
	assert.NotEmpty(t, last.cmd.Signature)
}

func TestEvaluateIdempotentActuation(t *testing.T) {
	h := newHarness(t)
	h.sup.Evaluate(context.Background())
	require.Equal(t, 1, h.sink.count())

	// Mirror the device accepting the command, then re-evaluate: no
	// further calls.
	last, _ := h.sink.last()
	h.states.mu.Lock()
	h.states.state = model.ReportedState{
		HVACMode:    model.ModeCool,
		FanMode:     model.FanMode(*pickString(last.cmd.SetFanMode, "low")),
		Temperature: pickFloat(last.cmd.SetTemp, 25.0),
		Available:   true,
	}
	h.states.mu.Unlock()

	h.sup.Evaluate(context.Background())
	assert.Equal(t, 1, h.sink.count())
}

func pickString(p *string, def string) *string {
	if p != nil {
		return p
	}
	return &def
}

func pickFloat(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func TestManualPauseResetsNotStacks(t *testing.T) {
	h := newHarness(t)

	base := model.ReportedState{HVACMode: model.ModeCool, FanMode: model.FanLow, Temperature: 25}
	changed := base
	changed.Temperature = 23

	h.sup.HandleStateChange(device.StateChange{
		DeviceID: "living_room_ac",
		Old:      base,
		New:      changed,
		At:       h.now,
	})

	st := h.sup.Status()
	require.NotNil(t, st.ManualPauseUntil)
	assert.Equal(t, h.now.Add(30*time.Minute), *st.ManualPauseUntil)

	// A second manual change five minutes later resets the window to
	// T+35m, never T+60m.
	h.now = h.now.Add(5 * time.Minute)
	changed2 := changed
	changed2.FanMode = model.FanHigh
	h.sup.HandleStateChange(device.StateChange{
		DeviceID: "living_room_ac",
		Old:      changed,
		New:      changed2,
		At:       h.now,
	})

	st = h.sup.Status()
	require.NotNil(t, st.ManualPauseUntil)
	assert.Equal(t, h.now.Add(30*time.Minute), *st.ManualPauseUntil)
}

func TestPowerOffDominatesTimedPause(t *testing.T) {
	h := newHarness(t)

	h.sup.SetManualPause(20 * time.Minute)
	st := h.sup.Status()
	require.NotNil(t, st.ManualPauseUntil)

	h.sup.HandleStateChange(device.StateChange{
		DeviceID: "living_room_ac",
		Old:      model.ReportedState{HVACMode: model.ModeCool},
		New:      model.ReportedState{HVACMode: model.ModeOff},
		At:       h.now,
	})

	st = h.sup.Status()
	assert.True(t, st.UserPoweredOff)
	assert.Nil(t, st.ManualPauseUntil)

	// Powering back on clears the hold.
	h.sup.HandleStateChange(device.StateChange{
		DeviceID: "living_room_ac",
		Old:      model.ReportedState{HVACMode: model.ModeOff},
		New:      model.ReportedState{HVACMode: model.ModeCool},
		At:       h.now,
	})
	st = h.sup.Status()
	assert.False(t, st.UserPoweredOff)
}

func TestTweakWhilePoweredOffKeepsHoldOnly(t *testing.T) {
	h := newHarness(t)

	h.sup.HandleStateChange(device.StateChange{
		DeviceID: "living_room_ac",
		Old:      model.ReportedState{HVACMode: model.ModeCool},
		New:      model.ReportedState{HVACMode: model.ModeOff, Temperature: 25},
		At:       h.now,
	})
	require.True(t, h.sup.Status().UserPoweredOff)

	// A setpoint tweak on the off unit must not start a timed pause on
	// top of the indefinite hold.
	h.sup.HandleStateChange(device.StateChange{
		DeviceID: "living_room_ac",
		Old:      model.ReportedState{HVACMode: model.ModeOff, Temperature: 25},
		New:      model.ReportedState{HVACMode: model.ModeOff, Temperature: 23},
		At:       h.now,
	})
	st := h.sup.Status()
	assert.True(t, st.UserPoweredOff)
	assert.Nil(t, st.ManualPauseUntil)

	// Powering back on resumes control immediately, no residual pause.
	h.sup.HandleStateChange(device.StateChange{
		DeviceID: "living_room_ac",
		Old:      model.ReportedState{HVACMode: model.ModeOff, Temperature: 23},
		New:      model.ReportedState{HVACMode: model.ModeCool, Temperature: 23},
		At:       h.now,
	})
	st = h.sup.Status()
	assert.False(t, st.UserPoweredOff)
	assert.Nil(t, st.ManualPauseUntil)

	h.sup.Evaluate(context.Background())
	assert.Equal(t, 1, h.sink.count())
}

func TestSelfEchoDoesNotPause(t *testing.T) {
	h := newHarness(t)

	sig := journal.NewSignature()
	h.sup.journal.Record(sig)

	h.sup.HandleStateChange(device.StateChange{
		DeviceID: "living_room_ac",
		Old:      model.ReportedState{HVACMode: model.ModeOff},
		New:      model.ReportedState{HVACMode: model.ModeCool, Signature: sig},
		At:       h.now,
	})

	st := h.sup.Status()
	assert.Nil(t, st.ManualPauseUntil)
	assert.False(t, st.UserPoweredOff)
}

func TestPauseSkipsEvaluation(t *testing.T) {
	h := newHarness(t)
	h.sup.SetManualPause(30 * time.Minute)

	h.sup.Evaluate(context.Background())
	assert.Equal(t, 0, h.sink.count())

	// Expiry resumes control on the next tick.
	h.now = h.now.Add(31 * time.Minute)
	h.sup.Evaluate(context.Background())
	assert.Equal(t, 1, h.sink.count())
}

func TestSensorFallbackToLastValid(t *testing.T) {
	h := newHarness(t)
	h.sup.Evaluate(context.Background())
	first := h.sink.count()

	h.sensors.mu.Lock()
	h.sensors.down["sensor/indoor"] = true
	h.sensors.mu.Unlock()

	// The loop keeps running on the cached reading.
	h.sup.Evaluate(context.Background())
	st := h.sup.Status()
	require.NotNil(t, st.LastAction)
	assert.GreaterOrEqual(t, h.sink.count(), first)
}

func TestAbortWhenNoReadingEver(t *testing.T) {
	h := newHarness(t)
	h.sensors.mu.Lock()
	h.sensors.down["sensor/indoor"] = true
	h.sensors.down["sensor/outdoor"] = true
	h.sensors.mu.Unlock()

	h.sup.Evaluate(context.Background())
	assert.Equal(t, 0, h.sink.count())
}

func TestComfortFallbackSafeDefault(t *testing.T) {
	h := newHarness(t)
	// Running mean far outside the valid ASHRAE range.
	bad := 5.0
	h.sup.mu.Lock()
	h.sup.runningMean = &bad
	h.sup.mu.Unlock()

	h.sup.Evaluate(context.Background())

	st := h.sup.Status()
	require.NotNil(t, st.LastComfort)
	assert.Equal(t, 22.0, st.LastComfort.ComfortTemp)
	assert.Equal(t, 20.0, st.LastComfort.ComfortMin)
	assert.Equal(t, 24.0, st.LastComfort.ComfortMax)
}

func TestSecondaryFanSpeedQuartiles(t *testing.T) {
	// Band 24-27.5: width 3.5.
	assert.Equal(t, model.FanOff, secondaryFanSpeed(23.5, 24.0, 27.5))
	assert.Equal(t, model.FanLow, secondaryFanSpeed(24.5, 24.0, 27.5))
	assert.Equal(t, model.FanMid, secondaryFanSpeed(25.5, 24.0, 27.5))
	assert.Equal(t, model.FanHigh, secondaryFanSpeed(26.5, 24.0, 27.5))
	assert.Equal(t, model.FanHighest, secondaryFanSpeed(28.0, 24.0, 27.5))
}

func TestSecondaryFansFollowAreaList(t *testing.T) {
	h := newHarness(t)
	h.areas.fans = []string{"fan_living"}

	h.sup.Evaluate(context.Background())

	var fanCmd *device.Command
	h.sink.mu.Lock()
	for _, c := range h.sink.calls {
		if c.ref == "fan_living" {
			cmd := c.cmd
			fanCmd = &cmd
		}
	}
	h.sink.mu.Unlock()

	require.NotNil(t, fanCmd)
	require.NotNil(t, fanCmd.SetFanMode)
	// Indoor 27.5 sits 1.46°C over comfort 26.04 in a 3.5°C warm half:
	// second quartile.
	assert.Equal(t, "mid", *fanCmd.SetFanMode)
	assert.NotEmpty(t, fanCmd.Signature)
}

func TestOperativeTemperatureUsesRadiantSensor(t *testing.T) {
	h := newHarness(t)
	h.sup.cfg.UseOperativeTemperature = true
	h.sup.cfg.MeanRadiantSensor = "sensor/radiant"
	h.sensors.values["sensor/radiant"] = 35.0

	h.sup.Evaluate(context.Background())

	st := h.sup.Status()
	require.NotNil(t, st.LastComfort)
	// Operative (27.5+35)/2 = 31.25 exceeds the 80% upper bound 29.54,
	// where plain dry bulb 27.5 would be acceptable.
	assert.False(t, st.LastComfort.Acceptable80)

	plain := newHarness(t)
	plain.sup.Evaluate(context.Background())
	st = plain.sup.Status()
	require.NotNil(t, st.LastComfort)
	assert.True(t, st.LastComfort.Acceptable80)
}

func TestRecomputeRunningMean(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.store.AppendOutdoorSample("living_room_ac", model.TempSample{
			Temp:  30.0,
			Taken: h.now.AddDate(0, 0, -i),
		})
	}

	h.sup.RecomputeRunningMean()

	st := h.sup.Status()
	require.NotNil(t, st.RunningMean)
	// 0.2*30 + 0.8*28 = 28.4
	assert.InDelta(t, 28.4, *st.RunningMean, 0.01)
}

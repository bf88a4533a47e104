package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/adaptive-climate/internal/config"
	"github.com/thatsimonsguy/adaptive-climate/internal/device"
	"github.com/thatsimonsguy/adaptive-climate/internal/model"
	"github.com/thatsimonsguy/adaptive-climate/internal/registry"
	"github.com/thatsimonsguy/adaptive-climate/internal/supervisor"
)

type stubSensors struct{}

func (stubSensors) GetNumeric(ref string) (float64, bool) { return 0, false }
func (stubSensors) GetBinary(ref string) (bool, bool)     { return false, false }

type stubStates struct {
	supported model.SupportedModes
}

func (s stubStates) GetSupportedModes(ref string) (model.SupportedModes, error) {
	return s.supported, nil
}

func (stubStates) GetCurrentState(ref string) (model.ReportedState, error) {
	return model.ReportedState{}, nil
}

type stubSink struct {
	calls []device.Command
}

func (s *stubSink) Call(ctx context.Context, ref string, cmd device.Command) error {
	s.calls = append(s.calls, cmd)
	return nil
}

type stubAreas struct{}

func (stubAreas) ListPeers(ref string) ([]string, error) { return nil, nil }
func (stubAreas) ListFans(ref string) ([]string, error)  { return nil, nil }

type stubStore struct{}

func (stubStore) LoadControlState(deviceID string) (device.ControlState, bool, error) {
	return device.ControlState{}, false, nil
}
func (stubStore) SaveControlState(state device.ControlState) error { return nil }
func (stubStore) AppendOutdoorSample(deviceID string, sample model.TempSample) error {
	return nil
}
func (stubStore) LoadOutdoorHistory(deviceID string, since time.Time) ([]model.TempSample, error) {
	return nil, nil
}
func (stubStore) PruneOutdoorHistory(deviceID string, before time.Time) error { return nil }

func testServer(t *testing.T) (*Server, *supervisor.Supervisor, *stubSink) {
	t.Helper()

	cfg := &config.Config{Latitude: 40.0}
	dev := config.Device{
		ID:                 "ac_living",
		ManualPauseMinutes: 30,
	}

	sink := &stubSink{}
	sup := supervisor.New(dev, *cfg, supervisor.Deps{
		Sensors: stubSensors{},
		States: stubStates{supported: model.SupportedModes{
			HVACModes: []string{"off", "cool", "heat"},
			FanModes:  []string{"low", "high"},
			TempMin:   16,
			TempMax:   30,
		}},
		Sink:  sink,
		Areas: stubAreas{},
		Store: stubStore{},
	})

	reg := registry.New()
	reg.Add(sup)

	return NewServer(reg, cfg), sup, sink
}

func TestListDevices(t *testing.T) {
	server, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	w := httptest.NewRecorder()
	server.handleDevices(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var statuses []supervisor.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "ac_living", statuses[0].DeviceID)
}

func TestGetDevice(t *testing.T) {
	server, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/devices/ac_living", nil)
	w := httptest.NewRecorder()
	server.handleDeviceOperations(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var status supervisor.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "ac_living", status.DeviceID)
	assert.False(t, status.UserPoweredOff)
}

func TestGetDeviceNotFound(t *testing.T) {
	server, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/devices/nope", nil)
	w := httptest.NewRecorder()
	server.handleDeviceOperations(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.Contains(t, errResp.Error, "nope")
}

func TestSetPause(t *testing.T) {
	server, sup, _ := testServer(t)

	body, _ := json.Marshal(PauseRequest{Minutes: 45})
	req := httptest.NewRequest(http.MethodPost, "/api/devices/ac_living/pause", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.handleDeviceOperations(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp PauseResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ac_living", resp.DeviceID)
	assert.WithinDuration(t, time.Now().UTC().Add(45*time.Minute), resp.PauseUntil, 5*time.Second)

	status := sup.Status()
	require.NotNil(t, status.ManualPauseUntil)
}

func TestSetPauseWithSetpoint(t *testing.T) {
	server, _, sink := testServer(t)

	target := 23.5
	body, _ := json.Marshal(PauseRequest{Minutes: 30, TargetTemp: &target})
	req := httptest.NewRequest(http.MethodPost, "/api/devices/ac_living/pause", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.handleDeviceOperations(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sink.calls, 1)
	require.NotNil(t, sink.calls[0].SetTemp)
	assert.Equal(t, 23.5, *sink.calls[0].SetTemp)
	assert.NotEmpty(t, sink.calls[0].Signature)
}

func TestSetPauseRejectsNonPositiveMinutes(t *testing.T) {
	server, _, _ := testServer(t)

	body, _ := json.Marshal(PauseRequest{Minutes: 0})
	req := httptest.NewRequest(http.MethodPost, "/api/devices/ac_living/pause", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.handleDeviceOperations(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearPause(t *testing.T) {
	server, sup, _ := testServer(t)

	sup.SetManualPause(30 * time.Minute)
	require.NotNil(t, sup.Status().ManualPauseUntil)

	req := httptest.NewRequest(http.MethodDelete, "/api/devices/ac_living/pause", nil)
	w := httptest.NewRecorder()
	server.handleDeviceOperations(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, sup.Status().ManualPauseUntil)
}

func TestRedetectCapabilities(t *testing.T) {
	server, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/devices/ac_living/redetect", nil)
	w := httptest.NewRecorder()
	server.handleDeviceOperations(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var caps model.DeviceCapabilities
	require.NoError(t, json.NewDecoder(w.Body).Decode(&caps))
	assert.True(t, caps.CanCool)
	assert.True(t, caps.CanHeat)
	assert.True(t, caps.CanFan)
	assert.False(t, caps.CanDry)
}

func TestEvaluateAccepted(t *testing.T) {
	server, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/devices/ac_living/evaluate", nil)
	w := httptest.NewRecorder()
	server.handleDeviceOperations(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	server, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/devices", nil)
	w := httptest.NewRecorder()
	server.handleDevices(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

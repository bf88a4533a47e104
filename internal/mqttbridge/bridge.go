// Package mqttbridge connects the control core to the climate bus over
// MQTT. It implements the sensor, device-state and actuation contracts
// with cached, non-blocking reads: subscriptions keep a local mirror of
// retained topics and reads never touch the network.
//
// Topic layout under the configured base topic:
//
//	{base}/{sensor_ref}                 numeric or on/off payload
//	{base}/device/{id}/state            retained JSON ReportedState
//	{base}/device/{id}/modes            retained JSON SupportedModes
//	{base}/device/{id}/set              command JSON, published by us
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/config"
	"github.com/thatsimonsguy/adaptive-climate/internal/device"
	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// statePayload is the wire form of a device state report.
type statePayload struct {
	HVACMode    string  `json:"hvac_mode"`
	FanMode     string  `json:"fan_mode"`
	Temperature float64 `json:"temperature"`
	SwingMode   string  `json:"swing_mode,omitempty"`
	PresetMode  string  `json:"preset_mode,omitempty"`
	Signature   string  `json:"signature,omitempty"`
	Available   bool    `json:"available"`
}

// modesPayload is the wire form of a device capability document.
type modesPayload struct {
	HVACModes []string `json:"hvac_modes"`
	FanModes  []string `json:"fan_modes"`
	TempMin   float64  `json:"temp_min"`
	TempMax   float64  `json:"temp_max"`
}

// commandPayload is what we publish to a device's set topic.
type commandPayload struct {
	HVACMode    *string `json:"hvac_mode,omitempty"`
	FanMode     *string `json:"fan_mode,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Signature   string  `json:"signature"`
}

// Bridge is the MQTT-backed implementation of the core's collaborator
// contracts.
type Bridge struct {
	client mqtt.Client
	base   string

	mu       sync.RWMutex
	numeric  map[string]float64
	binary   map[string]bool
	states   map[string]model.ReportedState
	modes    map[string]model.SupportedModes
	handlers []device.StateChangeHandler
}

// New connects to the broker and subscribes to the sensor and device
// topics the configured devices reference.
func New(cfg config.MQTT, devices []config.Device) (*Bridge, error) {
	b := &Bridge{
		base:    strings.TrimSuffix(cfg.BaseTopic, "/"),
		numeric: make(map[string]float64),
		binary:  make(map[string]bool),
		states:  make(map[string]model.ReportedState),
		modes:   make(map[string]model.SupportedModes),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
			b.subscribe(devices)
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return b, nil
}

// OnStateChange registers a handler for device state transitions. Must be
// called before messages start flowing.
func (b *Bridge) OnStateChange(h device.StateChangeHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}

func (b *Bridge) subscribe(devices []config.Device) {
	refs := map[string]bool{}
	for _, d := range devices {
		for _, ref := range []string{
			d.IndoorTempSensor, d.OutdoorTempSensor,
			d.IndoorHumiditySensor, d.OutdoorHumiditySensor,
			d.OccupancySensor, d.MeanRadiantSensor,
		} {
			if ref != "" {
				refs[ref] = true
			}
		}
	}
	for ref := range refs {
		topic := b.base + "/" + ref
		if token := b.client.Subscribe(topic, 0, b.handleSensor(ref)); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", topic).Msg("Sensor subscribe failed")
		}
	}

	stateTopic := b.base + "/device/+/state"
	if token := b.client.Subscribe(stateTopic, 0, b.handleState); token.Wait() && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", stateTopic).Msg("State subscribe failed")
	}
	modesTopic := b.base + "/device/+/modes"
	if token := b.client.Subscribe(modesTopic, 0, b.handleModes); token.Wait() && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", modesTopic).Msg("Modes subscribe failed")
	}
}

func (b *Bridge) handleSensor(ref string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		payload := strings.TrimSpace(string(msg.Payload()))

		if v, err := strconv.ParseFloat(payload, 64); err == nil {
			b.mu.Lock()
			b.numeric[ref] = v
			b.mu.Unlock()
			return
		}

		switch strings.ToLower(payload) {
		case "on", "true", "1", "detected", "home":
			b.setBinary(ref, true)
		case "off", "false", "0", "clear", "away":
			b.setBinary(ref, false)
		default:
			log.Debug().Str("ref", ref).Str("payload", payload).Msg("Unparseable sensor payload")
		}
	}
}

func (b *Bridge) setBinary(ref string, v bool) {
	b.mu.Lock()
	b.binary[ref] = v
	b.mu.Unlock()
}

// deviceIDFromTopic extracts {id} from {base}/device/{id}/{leaf}.
func (b *Bridge) deviceIDFromTopic(topic string) string {
	rest := strings.TrimPrefix(topic, b.base+"/device/")
	if i := strings.IndexByte(rest, '/'); i > 0 {
		return rest[:i]
	}
	return ""
}

func (b *Bridge) handleState(_ mqtt.Client, msg mqtt.Message) {
	id := b.deviceIDFromTopic(msg.Topic())
	if id == "" {
		return
	}

	var p statePayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Bad device state payload")
		return
	}
	newState := model.ReportedState{
		HVACMode:    model.HVACMode(p.HVACMode),
		FanMode:     model.FanMode(p.FanMode),
		Temperature: p.Temperature,
		SwingMode:   p.SwingMode,
		PresetMode:  p.PresetMode,
		Signature:   model.CommandSignature(p.Signature),
		Available:   p.Available,
	}

	b.mu.Lock()
	old, seen := b.states[id]
	b.states[id] = newState
	handlers := make([]device.StateChangeHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	if !seen {
		return
	}

	change := device.StateChange{
		DeviceID: id,
		Old:      old,
		New:      newState,
		At:       time.Now().UTC(),
	}
	for _, h := range handlers {
		h(change)
	}
}

func (b *Bridge) handleModes(_ mqtt.Client, msg mqtt.Message) {
	id := b.deviceIDFromTopic(msg.Topic())
	if id == "" {
		return
	}

	var p modesPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Bad device modes payload")
		return
	}
	b.mu.Lock()
	b.modes[id] = model.SupportedModes{
		HVACModes: p.HVACModes,
		FanModes:  p.FanModes,
		TempMin:   p.TempMin,
		TempMax:   p.TempMax,
	}
	b.mu.Unlock()
}

// GetNumeric implements device.SensorProvider.
func (b *Bridge) GetNumeric(ref string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.numeric[ref]
	return v, ok
}

// GetBinary implements device.SensorProvider. Sensors publishing 0/1
// land in the numeric cache and are read back as booleans here.
func (b *Bridge) GetBinary(ref string) (bool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.binary[ref]; ok {
		return v, true
	}
	if v, ok := b.numeric[ref]; ok {
		return v != 0, true
	}
	return false, false
}

// GetSupportedModes implements device.DeviceStateProvider.
func (b *Bridge) GetSupportedModes(ref string) (model.SupportedModes, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.modes[ref]
	if !ok {
		return model.SupportedModes{}, fmt.Errorf("no capability document for %s", ref)
	}
	return m, nil
}

// GetCurrentState implements device.DeviceStateProvider.
func (b *Bridge) GetCurrentState(ref string) (model.ReportedState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.states[ref]
	if !ok {
		return model.ReportedState{}, fmt.Errorf("no state report for %s", ref)
	}
	return st, nil
}

// Call implements device.ActuationSink. The signature rides in the
// payload so the device's state echo carries it back.
func (b *Bridge) Call(ctx context.Context, ref string, cmd device.Command) error {
	p := commandPayload{
		HVACMode:    cmd.SetHVACMode,
		FanMode:     cmd.SetFanMode,
		Temperature: cmd.SetTemp,
		Signature:   string(cmd.Signature),
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	topic := b.base + "/device/" + ref + "/set"
	token := b.client.Publish(topic, 1, false, payload)

	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
		return token.Error()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s timed out", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}

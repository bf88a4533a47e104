// Package arbiter decides which device in a shared area gets to actuate.
// One arbitration pass classifies the peers by capability, picks the side
// the area currently needs, and ranks the candidates. The winner becomes
// primary, the runner-up secondary, everyone else stands down.
package arbiter

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

// DefaultDwell is how long one arbitration decision is held before peers
// are re-ranked, preventing role flapping on transient input changes.
const DefaultDwell = 15 * time.Minute

// DefaultHumidityThreshold is the indoor RH at which the in-bounds summer
// side switches from fan to dry.
const DefaultHumidityThreshold = 60.0

// Peer describes one climate device in the area as seen by arbitration.
type Peer struct {
	DeviceID        string
	HVACModes       []string
	FanModes        []string
	SupportsSetTemp bool
	SupportsSetHVAC bool
}

// Classify buckets a peer's advertised modes into a device class.
func Classify(hvacModes []string) model.DeviceClass {
	var hasHeat, hasCool, hasFan, hasDry bool
	for _, m := range hvacModes {
		switch m {
		case "heat":
			hasHeat = true
		case "cool":
			hasCool = true
		case "fan_only":
			hasFan = true
		case "dry":
			hasDry = true
		}
	}
	switch {
	case hasHeat && hasCool:
		return model.ClassDual
	case hasHeat:
		return model.ClassHeatOnly
	case hasCool:
		return model.ClassCoolOnly
	case hasFan || hasDry:
		return model.ClassFanDryOnly
	default:
		return model.ClassUnknown
	}
}

// Conditions carries the environment facts one arbitration pass needs.
type Conditions struct {
	Season         model.Season
	IndoorTemp     *float64
	ComfortMin     *float64
	ComfortMax     *float64
	IndoorHumidity *float64
}

// Decision is the outcome of one arbitration pass.
type Decision struct {
	PrimaryID   string
	SecondaryID string
	Side        model.Side
	Solo        bool
	DecidedAt   time.Time
}

// Granted reports whether deviceID may actuate under this decision. A
// pass with no resolvable primary fails open.
func (d Decision) Granted(deviceID string) bool {
	return d.Solo || d.PrimaryID == "" || d.PrimaryID == deviceID
}

// excluded marks a peer that cannot serve the side at all.
const excluded = 9

func classKey(p Peer, side model.Side) int {
	cls := Classify(p.HVACModes)
	switch side {
	case model.SideHeat:
		if cls == model.ClassHeatOnly {
			return 0
		}
		if cls == model.ClassDual {
			return 1
		}
	case model.SideCool:
		if cls == model.ClassCoolOnly {
			return 0
		}
		if cls == model.ClassDual {
			return 1
		}
	case model.SideDry:
		if hasMode(p.HVACModes, "dry") {
			return 0
		}
	case model.SideFan:
		if hasMode(p.HVACModes, "fan_only") {
			return 0
		}
	}
	return excluded
}

func capsKey(p Peer) int {
	k := 0
	if !p.SupportsSetTemp {
		k++
	}
	if !p.SupportsSetHVAC {
		k++
	}
	return k
}

func hasMode(modes []string, want string) bool {
	for _, m := range modes {
		if m == want {
			return true
		}
	}
	return false
}

// PickSide selects the need the area currently has. Winter always heats
// and summer always cools unless indoor temperature is already inside the
// comfort band, where high humidity prefers dry over fan. Shoulder seasons
// follow whichever bound is exceeded, defaulting to fan.
func PickSide(c Conditions, humidityThreshold float64) model.Side {
	humid := c.IndoorHumidity != nil && *c.IndoorHumidity >= humidityThreshold

	switch {
	case c.Season == model.SeasonWinter:
		return model.SideHeat
	case c.Season == model.SeasonSummer:
		if c.IndoorTemp == nil || c.ComfortMax == nil || *c.IndoorTemp > *c.ComfortMax {
			return model.SideCool
		}
		if humid {
			return model.SideDry
		}
		return model.SideFan
	}

	if c.IndoorTemp == nil || c.ComfortMin == nil || c.ComfortMax == nil {
		return model.SideFan
	}
	if *c.IndoorTemp > *c.ComfortMax {
		return model.SideCool
	}
	if *c.IndoorTemp < *c.ComfortMin {
		return model.SideHeat
	}
	if humid {
		return model.SideDry
	}
	return model.SideFan
}

// ChooseRoles ranks peers for the side and returns primary and secondary
// device IDs. Either may be empty when no peer qualifies.
func ChooseRoles(peers []Peer, side model.Side) (primary, secondary string) {
	if len(peers) == 0 {
		return "", ""
	}

	type ranked struct {
		peer  Peer
		class int
		caps  int
	}
	rs := make([]ranked, len(peers))
	for i, p := range peers {
		rs[i] = ranked{peer: p, class: classKey(p, side), caps: capsKey(p)}
	}
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].class != rs[j].class {
			return rs[i].class < rs[j].class
		}
		if rs[i].caps != rs[j].caps {
			return rs[i].caps < rs[j].caps
		}
		return rs[i].peer.DeviceID < rs[j].peer.DeviceID
	})

	if rs[0].class != excluded {
		primary = rs[0].peer.DeviceID
	}
	for _, r := range rs[1:] {
		if r.class != excluded {
			secondary = r.peer.DeviceID
			break
		}
	}
	return primary, secondary
}

// Arbiter runs arbitration passes for one device and holds each decision
// for the dwell window.
type Arbiter struct {
	deviceID          string
	dwell             time.Duration
	humidityThreshold float64
	now               func() time.Time

	mu   sync.Mutex
	last *Decision
}

// Option tweaks an Arbiter at construction.
type Option func(*Arbiter)

func WithDwell(d time.Duration) Option {
	return func(a *Arbiter) { a.dwell = d }
}

func WithHumidityThreshold(rh float64) Option {
	return func(a *Arbiter) { a.humidityThreshold = rh }
}

func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

func New(deviceID string, opts ...Option) *Arbiter {
	a := &Arbiter{
		deviceID:          deviceID,
		dwell:             DefaultDwell,
		humidityThreshold: DefaultHumidityThreshold,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Arbitrate returns the held decision while inside the dwell window,
// otherwise runs a fresh pass over the peers. An empty peer list means
// the device acts solo.
func (a *Arbiter) Arbitrate(peers []Peer, c Conditions) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UTC()
	if a.last != nil && now.Sub(a.last.DecidedAt) < a.dwell {
		return *a.last
	}

	d := Decision{DecidedAt: now}
	if len(peers) == 0 {
		d.Solo = true
		d.Side = model.SideFan
		a.last = &d
		return d
	}

	d.Side = PickSide(c, a.humidityThreshold)
	d.PrimaryID, d.SecondaryID = ChooseRoles(peers, d.Side)

	log.Debug().
		Str("device", a.deviceID).
		Str("side", string(d.Side)).
		Str("primary", d.PrimaryID).
		Str("secondary", d.SecondaryID).
		Int("peers", len(peers)).
		Msg("Area arbitration pass")

	a.last = &d
	return d
}

// Reset drops the held decision so the next Arbitrate call re-ranks.
func (a *Arbiter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = nil
}

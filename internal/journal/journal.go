// Package journal records the signatures of issued actuations so that
// later state-change events can be classified as self-inflicted echoes or
// human interventions, independent of any transport mechanism.
package journal

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

// Origin classifies who caused a device state change.
type Origin int

const (
	// OriginSelf is an echo of a command this process issued.
	OriginSelf Origin = iota
	// OriginExternal is a change someone else made: a wall remote, a
	// phone app, another automation.
	OriginExternal
)

func (o Origin) String() string {
	if o == OriginSelf {
		return "self"
	}
	return "external"
}

// maxAge bounds how long a recorded signature stays claimable. Echoes of
// a command arrive within seconds; anything older is a stale match.
const maxAge = 5 * time.Minute

type entry struct {
	issued time.Time
}

// Journal tracks command signatures for one device. Safe for concurrent
// use by the supervisor and the state-change handler.
type Journal struct {
	mu      sync.Mutex
	now     func() time.Time
	pending map[model.CommandSignature]entry
	last    model.CommandSignature
	lastAt  time.Time
}

func New() *Journal {
	return &Journal{
		now:     time.Now,
		pending: make(map[model.CommandSignature]entry),
	}
}

// NewWithClock is for tests.
func NewWithClock(now func() time.Time) *Journal {
	j := New()
	j.now = now
	return j
}

// NewSignature mints a fresh opaque signature.
func NewSignature() model.CommandSignature {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return model.CommandSignature(time.Now().UTC().Format("20060102150405.000000000"))
	}
	return model.CommandSignature(hex.EncodeToString(b[:]))
}

// Record registers a signature at issue time.
func (j *Journal) Record(sig model.CommandSignature) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now().UTC()
	j.pending[sig] = entry{issued: now}
	j.last = sig
	j.lastAt = now
	j.prune(now)
}

// Classify determines the origin of a state change carrying sig. A match
// against a recorded, unexpired signature is consumed as a self echo;
// everything else is external.
func (j *Journal) Classify(sig model.CommandSignature) Origin {
	if sig == "" {
		return OriginExternal
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().UTC()
	j.prune(now)
	if e, ok := j.pending[sig]; ok && now.Sub(e.issued) <= maxAge {
		delete(j.pending, sig)
		return OriginSelf
	}
	return OriginExternal
}

// Last returns the most recently recorded signature and its timestamp.
func (j *Journal) Last() (model.CommandSignature, time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last, j.lastAt
}

// Clear drops all recorded signatures, used when a manual pause expires
// and automatic control resumes from a clean slate.
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = make(map[model.CommandSignature]entry)
	j.last = ""
	j.lastAt = time.Time{}
}

func (j *Journal) prune(now time.Time) {
	for sig, e := range j.pending {
		if now.Sub(e.issued) > maxAge {
			delete(j.pending, sig)
		}
	}
}

// Package registry tracks the supervisors managing devices in this
// process. It is built by the setup path and injected where needed; there
// is no ambient global.
package registry

import (
	"sort"
	"sync"

	"github.com/thatsimonsguy/adaptive-climate/internal/supervisor"
)

type Registry struct {
	mu          sync.RWMutex
	supervisors map[string]*supervisor.Supervisor
}

func New() *Registry {
	return &Registry{supervisors: make(map[string]*supervisor.Supervisor)}
}

func (r *Registry) Add(s *supervisor.Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.supervisors[s.DeviceID()] = s
}

func (r *Registry) Get(deviceID string) (*supervisor.Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.supervisors[deviceID]
	return s, ok
}

// All returns the supervisors in stable device-id order.
func (r *Registry) All() []*supervisor.Supervisor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*supervisor.Supervisor, 0, len(r.supervisors))
	for _, s := range r.supervisors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeviceID() < out[j].DeviceID()
	})
	return out
}

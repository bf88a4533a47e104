package registry

import (
	"github.com/thatsimonsguy/adaptive-climate/internal/config"
)

// AreaMap answers area-membership queries from the device configuration.
// It implements device.AreaMembershipProvider and is immutable after
// construction.
type AreaMap struct {
	peers map[string][]string
	fans  map[string][]string
}

func NewAreaMap(devices []config.Device) *AreaMap {
	byArea := map[string][]string{}
	for _, d := range devices {
		if d.Area != "" {
			byArea[d.Area] = append(byArea[d.Area], d.ID)
		}
	}

	m := &AreaMap{
		peers: make(map[string][]string, len(devices)),
		fans:  make(map[string][]string, len(devices)),
	}
	for _, d := range devices {
		var peers []string
		for _, id := range byArea[d.Area] {
			if id != d.ID {
				peers = append(peers, id)
			}
		}
		m.peers[d.ID] = peers
		m.fans[d.ID] = d.SecondaryFans
	}
	return m
}

func (m *AreaMap) ListPeers(ref string) ([]string, error) {
	return m.peers[ref], nil
}

func (m *AreaMap) ListFans(ref string) ([]string, error) {
	return m.fans[ref], nil
}

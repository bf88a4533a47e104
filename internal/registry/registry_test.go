package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/adaptive-climate/internal/config"
)

func TestAreaMapPeers(t *testing.T) {
	m := NewAreaMap([]config.Device{
		{ID: "ac_one", Area: "living_room", SecondaryFans: []string{"fan_one"}},
		{ID: "ac_two", Area: "living_room"},
		{ID: "trv_bedroom", Area: "bedroom"},
	})

	peers, err := m.ListPeers("ac_one")
	require.NoError(t, err)
	assert.Equal(t, []string{"ac_two"}, peers)

	peers, err = m.ListPeers("trv_bedroom")
	require.NoError(t, err)
	assert.Empty(t, peers)

	fans, err := m.ListFans("ac_one")
	require.NoError(t, err)
	assert.Equal(t, []string{"fan_one"}, fans)
}

func TestAreaMapUnknownDevice(t *testing.T) {
	m := NewAreaMap(nil)
	peers, err := m.ListPeers("ghost")
	require.NoError(t, err)
	assert.Empty(t, peers)
}

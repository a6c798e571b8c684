package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyScanMarksMissingHostUnreachable(t *testing.T) {
	reg := NewRegistry()
	reg.ApplyScan([]ScanResult{
		{IP: "10.0.0.1", Info: Info{Role: RoleServer, Running: true}},
		{IP: "10.0.0.2", Info: Info{Role: RoleClient, Calibrated: true}},
	})

	// Second scan only hears from H1.
	reg.ApplyScan([]ScanResult{
		{IP: "10.0.0.1", Info: Info{Role: RoleServer, Running: true}},
	})

	h1, ok := reg.Get("10.0.0.1")
	assert.True(t, ok)
	assert.Equal(t, StateRunning, h1.State)

	h2, ok := reg.Get("10.0.0.2")
	assert.True(t, ok)
	assert.Equal(t, StateUnreachable, h2.State)
	assert.Equal(t, RoleClient, h2.Info.Role, "role must be preserved when a host goes unreachable")
}

func TestStatusByteRoundTrip(t *testing.T) {
	cases := []Info{
		{Role: RoleServer, Running: false},
		{Role: RoleServer, Running: true},
		{Role: RoleConfiglessClient, Running: false},
		{Role: RoleConfiglessClient, Running: true},
		{Role: RoleClient, Running: false, Calibrated: false},
		{Role: RoleClient, Running: false, Calibrated: true},
		{Role: RoleClient, Running: true, Calibrated: false},
		{Role: RoleClient, Running: true, Calibrated: true},
	}
	for _, info := range cases {
		b, err := Encode(info)
		assert.NoError(t, err)
		decoded, err := Decode(b)
		assert.NoError(t, err)
		assert.Equal(t, info, decoded)
	}
}

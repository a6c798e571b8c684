package extrapolate

import (
	"testing"
	"time"

	"github.com/camloc/camloc/geo"
	"github.com/stretchr/testify/assert"
)

func TestLinearRequiresTwoPoints(t *testing.T) {
	l := NewLinear()
	_, ok := l.Extrapolate(time.Now())
	assert.False(t, ok)

	l.AddDatapoint(geo.TimedPosition{Position: geo.Position{X: 1}, Time: time.Now()})
	_, ok = l.Extrapolate(time.Now())
	assert.False(t, ok)
}

func TestLinearMidpoint(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLinear()
	l.AddDatapoint(geo.TimedPosition{Position: geo.Position{X: 0, Y: 0, Rotation: 0}, Time: base})
	l.AddDatapoint(geo.TimedPosition{Position: geo.Position{X: 1, Y: 1, Rotation: 0}, Time: base.Add(100 * time.Millisecond)})

	mid, ok := l.Extrapolate(base.Add(50 * time.Millisecond))
	assert.True(t, ok)
	assert.InDelta(t, 0.5, mid.X, 1e-9)
	assert.InDelta(t, 0.5, mid.Y, 1e-9)
	assert.InDelta(t, 0, mid.Rotation, 1e-9)
}

func TestLinearIdempotentAtEndpoints(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLinear()
	d1 := geo.TimedPosition{Position: geo.Position{X: 2, Y: -3, Rotation: 1.2}, Time: base}
	d2 := geo.TimedPosition{Position: geo.Position{X: 5, Y: 4, Rotation: -0.4}, Time: base.Add(200 * time.Millisecond)}
	l.AddDatapoint(d1)
	l.AddDatapoint(d2)

	at1, ok := l.Extrapolate(d1.Time)
	assert.True(t, ok)
	assert.InDelta(t, d1.Position.X, at1.X, 1e-9)
	assert.InDelta(t, d1.Position.Y, at1.Y, 1e-9)

	at2, ok := l.Extrapolate(d2.Time)
	assert.True(t, ok)
	assert.InDelta(t, d2.Position.X, at2.X, 1e-9)
	assert.InDelta(t, d2.Position.Y, at2.Y, 1e-9)
}

func TestLinearDropsOldestOnThirdPoint(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLinear()
	l.AddDatapoint(geo.TimedPosition{Position: geo.Position{X: 0}, Time: base})
	l.AddDatapoint(geo.TimedPosition{Position: geo.Position{X: 10}, Time: base.Add(time.Second)})
	l.AddDatapoint(geo.TimedPosition{Position: geo.Position{X: 20}, Time: base.Add(2 * time.Second)})

	last, ok := l.LastDatapoint()
	assert.True(t, ok)
	assert.Equal(t, 20.0, last.Position.X)

	// Now interpolating is between the 10 and 20 fixes, not 0 and 20.
	mid, ok := l.Extrapolate(base.Add(1500 * time.Millisecond))
	assert.True(t, ok)
	assert.InDelta(t, 15, mid.X, 1e-9)
}

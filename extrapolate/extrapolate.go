// Package extrapolate smooths the position the service reports between
// triangulation fixes. The default policy keeps the last two accepted
// fixes and linearly interpolates (or extrapolates past the newest one)
// between them.
package extrapolate

import (
	"time"

	"github.com/camloc/camloc/geo"
)

// Extrapolator is the capability the service consults between fixes.
type Extrapolator interface {
	// AddDatapoint records a newly accepted fix.
	AddDatapoint(geo.TimedPosition)
	// LastDatapoint returns the most recently recorded fix, if any.
	LastDatapoint() (geo.TimedPosition, bool)
	// Extrapolate returns the estimated position at now, or false if
	// fewer than two fixes have been recorded yet.
	Extrapolate(now time.Time) (geo.Position, bool)
}

// Linear is the default two-point linear extrapolator: it keeps a ring of
// the last two accepted fixes and linearly interpolates x, y, and
// rotation componentwise between them.
type Linear struct {
	d1, d2 geo.TimedPosition
	haveD1 bool
	haveD2 bool
}

// NewLinear returns an empty linear extrapolator.
func NewLinear() *Linear {
	return &Linear{}
}

// AddDatapoint records p, shifting out the older of the two stored fixes.
func (l *Linear) AddDatapoint(p geo.TimedPosition) {
	l.d1, l.haveD1 = l.d2, l.haveD2
	l.d2, l.haveD2 = p, true
}

// LastDatapoint returns the most recently added fix.
func (l *Linear) LastDatapoint() (geo.TimedPosition, bool) {
	if !l.haveD2 {
		return geo.TimedPosition{}, false
	}
	return l.d2, true
}

// Extrapolate linearly interpolates (or extrapolates) position at now
// using the two stored fixes. It returns false until two points have been
// accumulated.
func (l *Linear) Extrapolate(now time.Time) (geo.Position, bool) {
	if !l.haveD1 || !l.haveD2 {
		return geo.Position{}, false
	}

	span := l.d2.Time.Sub(l.d1.Time)
	if span <= 0 {
		return l.d2.Position, true
	}
	t := now.Sub(l.d1.Time).Seconds() / span.Seconds()

	return geo.Position{
		X:        lerp(l.d1.Position.X, l.d2.Position.X, t),
		Y:        lerp(l.d1.Position.Y, l.d2.Position.Y, t),
		Rotation: lerp(l.d1.Position.Rotation, l.d2.Position.Rotation, t),
	}, true
}

// lerp returns the point a fraction t of the way from a to b; t need not
// be in [0,1], which is what lets Extrapolate run past the newest fix.
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

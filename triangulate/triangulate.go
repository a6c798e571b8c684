// Package triangulate implements the pure geometric fix computation: it
// turns a set of per-client bearings and camera poses into a planar
// position and heading, optionally biased by a compass reading or a
// motion hint carried over from the previous fix.
package triangulate

import (
	"math"

	"github.com/camloc/camloc/geo"
	"gonum.org/v1/gonum/stat"
)

// DefaultMinAngleDiff is the default minimum angular separation (radians)
// two rays must have to be considered non-parallel; ~15 degrees.
const DefaultMinAngleDiff = 15.0 * math.Pi / 180.0

type ray struct {
	origin   geo.Position
	theta    float64
	slope    float64
	markerID uint8
}

// bearingAngle computes the bearing from a camera's optical axis to the
// target given the target's normalized horizontal image coordinate x.
func bearingAngle(camera geo.PlacedCamera, x float64) float64 {
	return camera.Position.Rotation + camera.FOV*(0.5-x)
}

// Triangulate computes a position fix from the given per-client snapshot,
// optionally biased by a compass reading and a motion hint carried over
// from the previous fix. It returns false when fewer than two
// contributing rays differ by more than minAngleDiff.
func Triangulate(
	minAngleDiff float64,
	data []Sample,
	motion *geo.MotionData,
	compass *float64,
	previous *geo.Position,
	cube geo.Cube,
) (geo.Position, bool) {
	if minAngleDiff <= 0 {
		minAngleDiff = DefaultMinAngleDiff
	}

	rays := make([]ray, 0, len(data))
	for _, s := range data {
		if s.Data == nil {
			continue
		}
		theta := bearingAngle(s.Camera, s.Data.XPosition)
		rays = append(rays, ray{
			origin:   s.Camera.Position,
			theta:    theta,
			slope:    math.Tan(theta),
			markerID: s.Data.MarkerID,
		})
	}

	var xs, ys []float64
	var sightRays []ray

	for i := 0; i < len(rays); i++ {
		for j := i + 1; j < len(rays); j++ {
			diff := angleDiff(rays[i].theta, rays[j].theta)
			if diff <= minAngleDiff {
				continue
			}
			x, y, ok := intersect(rays[i], rays[j])
			if !ok {
				continue
			}
			xs = append(xs, x)
			ys = append(ys, y)
			sightRays = append(sightRays, rays[i], rays[j])
		}
	}

	if len(xs) == 0 {
		return geo.Position{}, false
	}

	fixX := stat.Mean(xs, nil)
	fixY := stat.Mean(ys, nil)

	heading := resolveHeading(fixX, fixY, rays, sightRays, cube, motion, compass, previous)

	return geo.Position{X: fixX, Y: fixY, Rotation: heading}, true
}

// Sample is one client's contribution to a triangulation call: its
// bearing data (nil when stale or never reported) and its placed camera.
type Sample struct {
	Data   *geo.ClientData
	Camera geo.PlacedCamera
}

// angleDiff returns the angle between the lines along two bearings,
// normalized into [0, pi/2]; bearings pi apart count as the same line.
func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b, math.Pi)
	if d < 0 {
		d += math.Pi
	}
	return math.Min(d, math.Pi-d)
}

// intersect computes the intersection of two lines, each through a ray's
// origin with the given slope. Parallel rays (equal slope) report false.
func intersect(a, b ray) (float64, float64, bool) {
	if a.slope == b.slope {
		return 0, 0, false
	}
	x := (a.origin.X*a.slope - b.origin.X*b.slope - a.origin.Y + b.origin.Y) / (a.slope - b.slope)
	y := a.slope*(x-a.origin.X) + a.origin.Y
	return x, y, true
}

// resolveHeading derives the fix's heading: from the compass if present,
// otherwise from the cube face of whichever contributing bearing is
// closest to the line-of-sight from the fix to that camera. A motion hint
// can then override the result with the previous heading.
func resolveHeading(
	fixX, fixY float64,
	allRays, sightRays []ray,
	cube geo.Cube,
	motion *geo.MotionData,
	compassReading *float64,
	previous *geo.Position,
) float64 {
	var heading float64

	if compassReading != nil {
		heading = *compassReading
	} else {
		heading = cubeHeading(fixX, fixY, sightRays, cube)
	}

	if motion != nil && previous != nil {
		switch motion.Hint {
		case geo.MotionStationary:
			heading = previous.Rotation
		case geo.MotionForward, geo.MotionBackward:
			if headingDisagreesWithMotion(heading, *motion, *previous) {
				heading = previous.Rotation
			}
		}
	}

	return heading
}

// cubeHeading picks the contributing ray whose bearing is closest to the
// true line-of-sight from the fix to its camera, and returns the heading
// implied by the cube face it saw.
func cubeHeading(fixX, fixY float64, rays []ray, cube geo.Cube) float64 {
	if len(rays) == 0 {
		return 0
	}

	best := rays[0]
	bestDelta := math.Inf(1)
	for _, r := range rays {
		los := math.Atan2(fixY-r.origin.Y, fixX-r.origin.X)
		delta := angleDiff(r.theta, los)
		if delta < bestDelta {
			bestDelta = delta
			best = r
		}
	}

	idx, ok := cube.FaceIndex(best.markerID)
	if !ok {
		return 0
	}
	return float64(idx) * (math.Pi / 2)
}

// headingDisagreesWithMotion reports whether a freshly derived heading
// disagrees with the direction implied by the motion hint (relative to
// the previous fix) by more than pi/2.
func headingDisagreesWithMotion(heading float64, motion geo.MotionData, previous geo.Position) bool {
	dx := motion.PositionAtHint.X - previous.X
	dy := motion.PositionAtHint.Y - previous.Y
	if dx == 0 && dy == 0 {
		return false
	}
	motionDir := math.Atan2(dy, dx)
	if motion.Hint == geo.MotionBackward {
		motionDir += math.Pi
	}
	return math.Abs(math.Remainder(heading-motionDir, 2*math.Pi)) > math.Pi/2
}

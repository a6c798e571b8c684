package triangulate

import (
	"math"
	"testing"

	"github.com/camloc/camloc/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(x, y, rotation, fov, markerX float64, markerID uint8) Sample {
	return Sample{
		Data:   &geo.ClientData{MarkerID: markerID, XPosition: markerX},
		Camera: geo.PlacedCamera{Position: geo.Position{X: x, Y: y, Rotation: rotation}, FOV: fov},
	}
}

func TestTwoCamerasSquareSetupTargetAtCenter(t *testing.T) {
	data := []Sample{
		sample(-1, 0, 0, math.Pi/3, 0.5, 1),
		sample(0, -1, math.Pi/2, math.Pi/3, 0.5, 2),
	}
	fix, ok := Triangulate(DefaultMinAngleDiff, data, nil, nil, nil, geo.Cube{1, 2, 3, 4})
	require.True(t, ok)
	assert.InDelta(t, 0, fix.X, 1e-9)
	assert.InDelta(t, 0, fix.Y, 1e-9)
}

func TestFewerThanTwoRaysReturnsNoFix(t *testing.T) {
	data := []Sample{sample(-1, 0, 0, math.Pi/3, 0.5, 1)}
	_, ok := Triangulate(DefaultMinAngleDiff, data, nil, nil, nil, geo.Cube{})
	assert.False(t, ok)
}

func TestNilBearingsExcludedFromTriangulation(t *testing.T) {
	data := []Sample{
		sample(-1, 0, 0, math.Pi/3, 0.5, 1),
		sample(0, -1, math.Pi/2, math.Pi/3, 0.5, 2),
		{Data: nil, Camera: geo.PlacedCamera{Position: geo.Position{X: 5, Y: 5}, FOV: math.Pi / 3}},
	}
	fix, ok := Triangulate(DefaultMinAngleDiff, data, nil, nil, nil, geo.Cube{1, 2, 3, 4})
	require.True(t, ok)
	assert.InDelta(t, 0, fix.X, 1e-9)
	assert.InDelta(t, 0, fix.Y, 1e-9)
}

func TestParallelRaysAreExcludedFromThePair(t *testing.T) {
	// Two cameras facing the same direction from different origins produce
	// parallel rays (both theta = 0); with only those two, no fix.
	data := []Sample{
		sample(-1, 0, 0, math.Pi/3, 0.5, 1),
		sample(-1, 5, 0, math.Pi/3, 0.5, 2),
	}
	_, ok := Triangulate(DefaultMinAngleDiff, data, nil, nil, nil, geo.Cube{})
	assert.False(t, ok)
}

func TestEmptyContributingSetReturnsNoFix(t *testing.T) {
	data := []Sample{
		{Data: nil, Camera: geo.PlacedCamera{Position: geo.Position{X: 1, Y: 1}, FOV: 1}},
		{Data: nil, Camera: geo.PlacedCamera{Position: geo.Position{X: 2, Y: 2}, FOV: 1}},
	}
	_, ok := Triangulate(DefaultMinAngleDiff, data, nil, nil, nil, geo.Cube{})
	assert.False(t, ok)
}

func TestCompassOverridesHeading(t *testing.T) {
	data := []Sample{
		sample(-1, 0, 0, math.Pi/3, 0.5, 1),
		sample(0, -1, math.Pi/2, math.Pi/3, 0.5, 2),
	}
	compassReading := 1.2345
	fix, ok := Triangulate(DefaultMinAngleDiff, data, nil, &compassReading, nil, geo.Cube{1, 2, 3, 4})
	require.True(t, ok)
	assert.InDelta(t, compassReading, fix.Rotation, 1e-12)
}

func TestCubeHeadingKnownPose(t *testing.T) {
	// Cube faces in counter-clockwise order: [4,7,2,9]. Camera at (-1,0)
	// facing +x (rotation=0) sees face "7" (index 1) dead ahead.
	// The standard mathematical convention makes that heading +pi/2, not
	// -pi/2 — this pins down the open question left in the spec.
	cube := geo.Cube{4, 7, 2, 9}
	data := []Sample{
		sample(-1, 0, 0, math.Pi/3, 0.5, 7),
		sample(0, -1, math.Pi/2, math.Pi/3, 0.5, 2),
	}
	fix, ok := Triangulate(DefaultMinAngleDiff, data, nil, nil, nil, cube)
	require.True(t, ok)
	assert.InDelta(t, math.Pi/2, fix.Rotation, 1e-9)
}

func TestMotionStationaryReusesPreviousHeading(t *testing.T) {
	data := []Sample{
		sample(-1, 0, 0, math.Pi/3, 0.5, 1),
		sample(0, -1, math.Pi/2, math.Pi/3, 0.5, 2),
	}
	previous := &geo.Position{X: 0, Y: 0, Rotation: 2.5}
	motion := &geo.MotionData{PositionAtHint: geo.Position{X: 0, Y: 0}, Hint: geo.MotionStationary}
	fix, ok := Triangulate(DefaultMinAngleDiff, data, motion, nil, previous, geo.Cube{1, 2, 3, 4})
	require.True(t, ok)
	assert.InDelta(t, 2.5, fix.Rotation, 1e-12)
}

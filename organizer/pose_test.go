package organizer

import (
	"math"
	"testing"

	"github.com/camloc/camloc/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreehandPoseIgnoresFOV(t *testing.T) {
	want := geo.Position{X: 1, Y: 2, Rotation: 0.5}
	p := FreehandPose{Position: want}

	got, err := p.Pose(math.Pi / 4)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSquareSetupPoseDerivesFromFOV(t *testing.T) {
	p := SquareSetupPose{Index: 1, Count: 2, SquareSize: 2}

	got, err := p.Pose(math.Pi / 3)
	require.NoError(t, err)

	want, err := geo.SquareCameraPose(1, 2, 2, math.Pi/3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSquareSetupPosePropagatesError(t *testing.T) {
	p := SquareSetupPose{Index: 0, Count: 3, SquareSize: 2}

	_, err := p.Pose(math.Pi / 3)
	assert.Error(t, err)
}

var _ PoseProvider = FreehandPose{}
var _ PoseProvider = SquareSetupPose{}

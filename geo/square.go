package geo

import (
	"fmt"
	"math"
)

// squareFacing holds the unit direction from the rig's center to each
// camera in a 2- or 4-camera square rig, indexed by position around the
// square; each camera faces the opposite way, toward the center.
var squareFacing = [4][2]float64{{-1, 0}, {0, -1}, {1, 0}, {0, 1}}

// SquareCameraPose computes the world pose of one camera in a square
// calibration-free rig: count cameras (2 or 4) are spaced evenly around a
// square of the given side length, each at the distance from center that
// places the square's corresponding edge exactly at its horizontal field
// of view's boundary. index selects which of the count cameras this pose
// is for.
func SquareCameraPose(index, count int, squareSize, horizontalFOV float64) (Position, error) {
	if count != 2 && count != 4 {
		return Position{}, fmt.Errorf("geo: square setup supports 2 or 4 cameras, got %d", count)
	}
	if index < 0 || index >= count {
		return Position{}, fmt.Errorf("geo: camera index %d out of range for %d cameras", index, count)
	}

	d := 0.5 * squareSize * (1/math.Tan(0.5*horizontalFOV) + 1)
	facing := squareFacing[index%4]

	return Position{
		X:        facing[0] * d,
		Y:        facing[1] * d,
		Rotation: float64(index) * (math.Pi / 2),
	}, nil
}

package organizer

import "github.com/camloc/camloc/geo"

// FreehandPose is a PoseProvider backed by an operator-entered pose —
// e.g. measured by hand and typed in — and ignores the handshake's
// derived field of view entirely.
type FreehandPose struct {
	Position geo.Position
}

func (p FreehandPose) Pose(fov float64) (geo.Position, error) {
	return p.Position, nil
}

// SquareSetupPose is a PoseProvider for a camera in a square
// calibration-free rig: its position falls out of the rig's side length,
// this camera's index around the square, and the field of view the
// handshake just determined.
type SquareSetupPose struct {
	Index      int
	Count      int
	SquareSize float64
}

func (p SquareSetupPose) Pose(fov float64) (geo.Position, error) {
	return geo.SquareCameraPose(p.Index, p.Count, p.SquareSize, fov)
}

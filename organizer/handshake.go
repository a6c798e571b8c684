package organizer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/camloc/camloc/geo"
	"github.com/camloc/camloc/wire"
)

// ImageSink receives one JPEG frame at a time during the image-exchange
// phase (calibration capture, or a calibrated client's preview stream).
// It reports whether enough frames have been gathered.
type ImageSink interface {
	Present(frame []byte) (done bool, err error)
}

// Calibrator runs calibration (external to the localization core) over
// the frames an ImageSink accumulated, producing a calibration blob and
// the resulting horizontal field of view.
type Calibrator interface {
	Calibrate(frames [][]byte) (CalibrationBlob, float64, error)
}

// PoseProvider asks the operator for a camera's world pose, either
// freehand-entered or derived from a square-setup formula. fov is the
// horizontal field of view determined earlier in the handshake (freshly
// calibrated, or reported by an already-calibrated client) — a
// square-setup implementation needs it to place the camera; a freehand
// one ignores it.
type PoseProvider interface {
	Pose(fov float64) (geo.Position, error)
}

// HandshakeDeps bundles the caller-supplied collaborators a single
// Handshake run needs. Any error surfaced by ImageSink, Calibrator, or
// PoseProvider aborts the handshake: the client is sent no
// configuration and may be retried after a rescan.
type HandshakeDeps struct {
	Images     ImageSink
	Calibrator Calibrator
	Pose       PoseProvider
	ServerIP   string
	Cube       geo.Cube
}

// Result is what a successful Handshake produced: the pose the operator
// chose and, for a newly calibrated client, its calibration blob and
// derived FOV.
type Result struct {
	Position   geo.Position
	FOV        float64
	Blob       *CalibrationBlob
	Calibrated bool
}

// Handshake drives the organizer's side of the TCP image-exchange
// protocol over conn: repeated RequestImage/frame exchanges terminated by
// ImagesDone, then either a calibration run (uncalibrated clients) or a
// client-reported FOV read (already-calibrated clients), followed by a
// pose query and the configuration write-back.
func Handshake(conn net.Conn, calibrated bool, deps HandshakeDeps) (Result, error) {
	frames, err := exchangeImages(conn, deps.Images)
	if err != nil {
		return Result{}, fmt.Errorf("organizer: image exchange: %w", err)
	}

	var result Result
	if !calibrated {
		if deps.Calibrator == nil {
			return Result{}, fmt.Errorf("organizer: uncalibrated client requires a Calibrator")
		}
		blob, fov, err := deps.Calibrator.Calibrate(frames)
		if err != nil {
			return Result{}, fmt.Errorf("organizer: calibration: %w", err)
		}
		result.Blob = &blob
		result.FOV = fov
		result.Calibrated = true
	} else {
		fov, err := readFOV(conn)
		if err != nil {
			return Result{}, fmt.Errorf("organizer: read client fov: %w", err)
		}
		result.FOV = fov
	}

	if deps.Pose == nil {
		return Result{}, fmt.Errorf("organizer: handshake requires a PoseProvider")
	}
	pos, err := deps.Pose.Pose(result.FOV)
	if err != nil {
		return Result{}, fmt.Errorf("organizer: pose query: %w", err)
	}
	result.Position = pos

	if err := writeConfiguration(conn, result, deps.ServerIP, deps.Cube); err != nil {
		return Result{}, fmt.Errorf("organizer: write configuration: %w", err)
	}

	return result, nil
}

// exchangeImages repeatedly requests a frame, reads its u64 length prefix
// and bytes, and hands it to sink, until sink reports done. It terminates
// the exchange with ImagesDone when sink reports done or returns an error;
// a read or write error on conn ends it without sending ImagesDone.
func exchangeImages(conn net.Conn, sink ImageSink) ([][]byte, error) {
	r := bufio.NewReader(conn)
	var frames [][]byte

	for {
		if _, err := conn.Write(wire.Encode(wire.RequestImage{})); err != nil {
			return frames, err
		}

		var length uint64
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return frames, err
		}

		frame := make([]byte, length)
		if _, err := io.ReadFull(r, frame); err != nil {
			return frames, err
		}
		frames = append(frames, frame)

		done, err := sink.Present(frame)
		if err != nil {
			conn.Write(wire.Encode(wire.ImagesDone{}))
			return frames, err
		}
		if done {
			break
		}
	}

	if _, err := conn.Write(wire.Encode(wire.ImagesDone{})); err != nil {
		return frames, err
	}
	return frames, nil
}

// readFOV reads a single big-endian f64 FOV value the client sends after
// its preview stream, for an already-calibrated client.
func readFOV(conn net.Conn) (float64, error) {
	var bits uint64
	if err := binary.Read(conn, binary.BigEndian, &bits); err != nil {
		return 0, err
	}
	return float64FromBits(bits), nil
}

// writeConfiguration writes back the handshake's result over conn:
// x, y, rotation, ip_len, server_ip, [calibration bytes], cube.
func writeConfiguration(conn net.Conn, result Result, serverIP string, cube geo.Cube) error {
	var buf []byte
	buf = appendF64(buf, result.Position.X)
	buf = appendF64(buf, result.Position.Y)
	buf = appendF64(buf, result.Position.Rotation)

	ipBytes := []byte(serverIP)
	var ipLen [2]byte
	binary.BigEndian.PutUint16(ipLen[:], uint16(len(ipBytes)))
	buf = append(buf, ipLen[:]...)
	buf = append(buf, ipBytes...)

	if result.Blob != nil {
		buf = result.Blob.Append(buf)
	}

	buf = append(buf, cube[:]...)

	_, err := conn.Write(buf)
	return err
}

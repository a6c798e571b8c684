package organizer

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/camloc/camloc/geo"
	"github.com/camloc/camloc/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	max  int
	seen int
}

func (s *fakeSink) Present(frame []byte) (bool, error) {
	s.seen++
	return s.seen >= s.max, nil
}

type fakeCalibrator struct{}

func (fakeCalibrator) Calibrate(frames [][]byte) (CalibrationBlob, float64, error) {
	return CalibrationBlob{DistCoeffs: []float64{0.1, 0.2}, HorizontalFOV: 1.0}, 1.0, nil
}

type fakePose struct{ pos geo.Position }

func (p fakePose) Pose(fov float64) (geo.Position, error) { return p.pos, nil }

// fakeClient plays the client side of the handshake: answers
// RequestImage with a length-prefixed frame and returns on ImagesDone,
// leaving the configuration write-back unread.
func fakeClient(t *testing.T, conn net.Conn, frameCount int, framePayload []byte) {
	t.Helper()
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		switch buf[0] {
		case wire.TagRequestImage:
			var lenBuf [8]byte
			binary.BigEndian.PutUint64(lenBuf[:], uint64(len(framePayload)))
			conn.Write(lenBuf[:])
			conn.Write(framePayload)
		case wire.TagImagesDone:
			return
		default:
			return
		}
	}
}

func TestHandshakeUncalibratedClient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan Result, 1)
	errs := make(chan error, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errs <- err
			return
		}
		defer conn.Close()
		r, err := Handshake(conn, false, HandshakeDeps{
			Images:     &fakeSink{max: 3},
			Calibrator: fakeCalibrator{},
			Pose:       fakePose{pos: geo.Position{X: 1, Y: 2, Rotation: 0.5}},
			ServerIP:   "10.0.0.9",
			Cube:       geo.Cube{1, 2, 3, 4},
		})
		if err != nil {
			errs <- err
			return
		}
		done <- r
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	fakeClient(t, conn, 3, []byte{0xAA, 0xBB, 0xCC})

	select {
	case r := <-done:
		assert.True(t, r.Calibrated)
		assert.Equal(t, 1.0, r.FOV)
		require.NotNil(t, r.Blob)
		assert.Equal(t, []float64{0.1, 0.2}, r.Blob.DistCoeffs)
		assert.Equal(t, geo.Position{X: 1, Y: 2, Rotation: 0.5}, r.Position)
	case err := <-errs:
		t.Fatalf("handshake failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake timed out")
	}
}

func TestCalibrationBlobRoundTrip(t *testing.T) {
	blob := CalibrationBlob{
		OptimalMatrix: [3][3]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
		CameraMatrix:  [3][3]float64{{9, 8, 7}, {6, 5, 4}, {3, 2, 1}},
		DistCoeffs:    []float64{0.01, -0.02, 0.003},
		HorizontalFOV: 1.047,
	}
	encoded := blob.Append(nil)
	decoded, n, err := DecodeCalibrationBlob(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, blob, decoded)
}

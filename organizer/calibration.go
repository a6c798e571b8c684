package organizer

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// CalibrationBlob is the opaque-to-the-core calibration payload written
// by the organizer and read by the client: a distortion coefficient
// count, two 3x3 camera matrices, the distortion coefficients
// themselves, and the derived horizontal field of view.
type CalibrationBlob struct {
	OptimalMatrix [3][3]float64
	CameraMatrix  [3][3]float64
	DistCoeffs    []float64
	HorizontalFOV float64
}

// Append encodes the blob's wire form (§6) onto dst and returns the
// result.
func (b CalibrationBlob) Append(dst []byte) []byte {
	dst = append(dst, byte(len(b.DistCoeffs)))
	for _, row := range b.OptimalMatrix {
		for _, v := range row {
			dst = appendF64(dst, v)
		}
	}
	for _, row := range b.CameraMatrix {
		for _, v := range row {
			dst = appendF64(dst, v)
		}
	}
	for _, v := range b.DistCoeffs {
		dst = appendF64(dst, v)
	}
	dst = appendF64(dst, b.HorizontalFOV)
	return dst
}

// DecodeCalibrationBlob parses a CalibrationBlob from the front of data,
// returning the blob and the number of bytes consumed.
func DecodeCalibrationBlob(data []byte) (CalibrationBlob, int, error) {
	if len(data) < 1 {
		return CalibrationBlob{}, 0, fmt.Errorf("organizer: calibration blob: missing coeff count")
	}
	count := int(data[0])
	offset := 1

	var blob CalibrationBlob
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v, n, err := readF64(data[offset:])
			if err != nil {
				return CalibrationBlob{}, 0, err
			}
			blob.OptimalMatrix[i][j] = v
			offset += n
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v, n, err := readF64(data[offset:])
			if err != nil {
				return CalibrationBlob{}, 0, err
			}
			blob.CameraMatrix[i][j] = v
			offset += n
		}
	}
	blob.DistCoeffs = make([]float64, count)
	for i := 0; i < count; i++ {
		v, n, err := readF64(data[offset:])
		if err != nil {
			return CalibrationBlob{}, 0, err
		}
		blob.DistCoeffs[i] = v
		offset += n
	}
	fov, n, err := readF64(data[offset:])
	if err != nil {
		return CalibrationBlob{}, 0, err
	}
	blob.HorizontalFOV = fov
	offset += n

	return blob, offset, nil
}

// DefaultCalibrationCachePath is the default calibration cache file name,
// ".calib".
const DefaultCalibrationCachePath = ".calib"

// SaveCalibrationCache persists blob to path for reuse across restarts.
func SaveCalibrationCache(path string, blob CalibrationBlob) error {
	data := blob.Append(nil)
	return os.WriteFile(path, data, 0o644)
}

// LoadCalibrationCache reads a previously persisted calibration blob from
// path.
func LoadCalibrationCache(path string) (CalibrationBlob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CalibrationBlob{}, err
	}
	blob, _, err := DecodeCalibrationBlob(data)
	return blob, err
}

func appendF64(dst []byte, v float64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	return append(dst, buf[:]...)
}

func readF64(data []byte) (float64, int, error) {
	if len(data) < 8 {
		return 0, 0, fmt.Errorf("organizer: truncated float64 field")
	}
	return float64FromBits(binary.BigEndian.Uint64(data[:8])), 8, nil
}

func float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}

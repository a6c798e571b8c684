// Package wire implements the camloc binary command protocol shared by the
// UDP client/server exchange and the organizer's TCP handshake. All
// multi-byte integers and floats are big-endian; the first byte of every
// encoded command is its tag, the remainder is the payload.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// Command tags. Mirrors the single tagged command set used across both
// transports described in the protocol.
const (
	TagPing             = 0x0B
	TagConnect          = 0xCC
	TagClientDisconnect = 0xDC
	TagStart            = 0x60
	TagStartServer      = 0x55
	TagStartConfigless  = 0x6C
	TagStop             = 0xCD
	TagRequestImage     = 0x17
	TagImagesDone       = 0x1D
	TagValueUpdate      = 0x21
	TagInfoUpdate       = 0x1F
)

// MaxMessageSize bounds a single UDP datagram carrying a wire command; the
// largest fixed records (Connect, InfoUpdate) fit comfortably under it.
// Image bytes are never sent over UDP, so this cap never constrains them.
const MaxMessageSize = 2048

// ErrMalformed is returned whenever a datagram's tag is unknown, required
// bytes are missing, or a UTF-8 field fails to decode. It is never fatal:
// callers drop the datagram and continue.
var ErrMalformed = errors.New("wire: malformed command")

// Command is the decoded form of any tagged command on the wire.
type Command interface {
	// Tag returns this command's wire tag byte.
	Tag() byte
	// Encode appends this command's wire encoding to dst and returns it.
	Encode(dst []byte) []byte
}

// Position is the planar pose carried by Connect and InfoUpdate: x, y in
// meters, rotation (heading) in radians.
type Position struct {
	X        float64
	Y        float64
	Rotation float64
}

func encodePosition(dst []byte, p Position) []byte {
	dst = appendFloat64(dst, p.X)
	dst = appendFloat64(dst, p.Y)
	dst = appendFloat64(dst, p.Rotation)
	return dst
}

func decodePosition(data []byte) (Position, []byte, error) {
	if len(data) < 24 {
		return Position{}, nil, fmt.Errorf("%w: position truncated", ErrMalformed)
	}
	return Position{
		X:        readFloat64(data[0:8]),
		Y:        readFloat64(data[8:16]),
		Rotation: readFloat64(data[16:24]),
	}, data[24:], nil
}

func appendFloat64(dst []byte, v float64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	return append(dst, buf[:]...)
}

func readFloat64(data []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(data))
}

// Ping carries no payload; clients and the organizer's scan use it as a
// liveness probe, answered with a Host Discovery status byte.
type Ping struct{}

func (Ping) Tag() byte                { return TagPing }
func (Ping) Encode(dst []byte) []byte { return append(dst, TagPing) }

// Connect registers a client's camera pose and field of view with the
// service.
type Connect struct {
	Position Position
	FOV      float64
}

func (Connect) Tag() byte { return TagConnect }

func (c Connect) Encode(dst []byte) []byte {
	dst = append(dst, TagConnect)
	dst = encodePosition(dst, c.Position)
	dst = appendFloat64(dst, c.FOV)
	return dst
}

func decodeConnect(payload []byte) (Connect, error) {
	pos, rest, err := decodePosition(payload)
	if err != nil {
		return Connect{}, err
	}
	if len(rest) < 8 {
		return Connect{}, fmt.Errorf("%w: connect missing fov", ErrMalformed)
	}
	return Connect{Position: pos, FOV: readFloat64(rest[0:8])}, nil
}

// ClientDisconnect asks the service to drop the sender's registry entry.
type ClientDisconnect struct{}

func (ClientDisconnect) Tag() byte                { return TagClientDisconnect }
func (ClientDisconnect) Encode(dst []byte) []byte { return append(dst, TagClientDisconnect) }

// Start tells a client to begin its connect/bearing-streaming loop.
type Start struct{}

func (Start) Tag() byte                { return TagStart }
func (Start) Encode(dst []byte) []byte { return append(dst, TagStart) }

// StartServer tells the localization service which cube face layout to
// expect and transitions it from startup to running phase.
type StartServer struct {
	Cube [4]byte
}

func (StartServer) Tag() byte { return TagStartServer }

func (s StartServer) Encode(dst []byte) []byte {
	dst = append(dst, TagStartServer)
	return append(dst, s.Cube[:]...)
}

func decodeStartServer(payload []byte) (StartServer, error) {
	if len(payload) < 4 {
		return StartServer{}, fmt.Errorf("%w: start_server missing cube", ErrMalformed)
	}
	var cube [4]byte
	copy(cube[:], payload[:4])
	return StartServer{Cube: cube}, nil
}

// StartConfigless tells a client-less host to start reporting against a
// server at the given IP without a prior organizer-driven calibration.
type StartConfigless struct {
	IP string
}

func (StartConfigless) Tag() byte { return TagStartConfigless }

func (s StartConfigless) Encode(dst []byte) []byte {
	dst = append(dst, TagStartConfigless)
	dst = appendString(dst, s.IP)
	return dst
}

func decodeStartConfigless(payload []byte) (StartConfigless, error) {
	ip, _, err := readString(payload)
	if err != nil {
		return StartConfigless{}, err
	}
	return StartConfigless{IP: ip}, nil
}

// Stop tells a host (client or server) to shut down its localization loop.
type Stop struct{}

func (Stop) Tag() byte                { return TagStop }
func (Stop) Encode(dst []byte) []byte { return append(dst, TagStop) }

// RequestImage asks a client, over the organizer's TCP session, for the
// next length-prefixed calibration/preview frame.
type RequestImage struct{}

func (RequestImage) Tag() byte                { return TagRequestImage }
func (RequestImage) Encode(dst []byte) []byte { return append(dst, TagRequestImage) }

// ImagesDone terminates the image-exchange phase of the organizer
// handshake.
type ImagesDone struct{}

func (ImagesDone) Tag() byte                { return TagImagesDone }
func (ImagesDone) Encode(dst []byte) []byte { return append(dst, TagImagesDone) }

// ValueUpdate carries a single detected bearing: which cube face was seen
// and its normalized horizontal image coordinate in [0,1].
type ValueUpdate struct {
	MarkerID  uint8
	XPosition float64
}

func (ValueUpdate) Tag() byte { return TagValueUpdate }

func (v ValueUpdate) Encode(dst []byte) []byte {
	dst = append(dst, TagValueUpdate, v.MarkerID)
	dst = appendFloat64(dst, v.XPosition)
	return dst
}

func decodeValueUpdate(payload []byte) (ValueUpdate, error) {
	if len(payload) < 9 {
		return ValueUpdate{}, fmt.Errorf("%w: value_update truncated", ErrMalformed)
	}
	return ValueUpdate{
		MarkerID:  payload[0],
		XPosition: readFloat64(payload[1:9]),
	}, nil
}

// InfoUpdate republishes a client's IP, pose, and optionally its field of
// view (e.g. after a recalibration).
type InfoUpdate struct {
	IP       string
	Position Position
	FOV      *float64
}

func (InfoUpdate) Tag() byte { return TagInfoUpdate }

func (u InfoUpdate) Encode(dst []byte) []byte {
	dst = append(dst, TagInfoUpdate)
	dst = appendString(dst, u.IP)
	dst = encodePosition(dst, u.Position)
	if u.FOV != nil {
		dst = append(dst, 1)
		dst = appendFloat64(dst, *u.FOV)
	} else {
		dst = append(dst, 0)
	}
	return dst
}

func decodeInfoUpdate(payload []byte) (InfoUpdate, error) {
	ip, rest, err := readString(payload)
	if err != nil {
		return InfoUpdate{}, err
	}
	pos, rest, err := decodePosition(rest)
	if err != nil {
		return InfoUpdate{}, err
	}
	if len(rest) < 1 {
		return InfoUpdate{}, fmt.Errorf("%w: info_update missing has_fov", ErrMalformed)
	}
	hasFOV := rest[0]
	rest = rest[1:]
	u := InfoUpdate{IP: ip, Position: pos}
	if hasFOV != 0 {
		if len(rest) < 8 {
			return InfoUpdate{}, fmt.Errorf("%w: info_update missing fov", ErrMalformed)
		}
		fov := readFloat64(rest[0:8])
		u.FOV = &fov
	}
	return u, nil
}

func appendString(dst []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, s...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("%w: string length truncated", ErrMalformed)
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	rest := data[2:]
	if len(rest) < n {
		return "", nil, fmt.Errorf("%w: string bytes truncated", ErrMalformed)
	}
	raw := rest[:n]
	if !utf8.Valid(raw) {
		return "", nil, fmt.Errorf("%w: invalid utf-8 in string field", ErrMalformed)
	}
	return string(raw), rest[n:], nil
}

// Decode parses a single wire command from data. The first byte is the
// tag; unknown tags, missing payload bytes, or invalid UTF-8 fields yield
// ErrMalformed.
func Decode(data []byte) (Command, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformed)
	}
	tag := data[0]
	payload := data[1:]

	switch tag {
	case TagPing:
		return Ping{}, nil
	case TagConnect:
		return decodeConnect(payload)
	case TagClientDisconnect:
		return ClientDisconnect{}, nil
	case TagStart:
		return Start{}, nil
	case TagStartServer:
		return decodeStartServer(payload)
	case TagStartConfigless:
		return decodeStartConfigless(payload)
	case TagStop:
		return Stop{}, nil
	case TagRequestImage:
		return RequestImage{}, nil
	case TagImagesDone:
		return ImagesDone{}, nil
	case TagValueUpdate:
		return decodeValueUpdate(payload)
	case TagInfoUpdate:
		return decodeInfoUpdate(payload)
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformed, tag)
	}
}

// Encode is a convenience wrapper equivalent to cmd.Encode(nil).
func Encode(cmd Command) []byte {
	return cmd.Encode(nil)
}

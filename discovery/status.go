// Package discovery implements the camloc host-status byte: the reply an
// organizer gets when it broadcasts a Ping, and the role/state/calibration
// model the organizer keeps per host. The bit layout mirrors the tagged
// header bit-packing in the wire protocol: a role in the high two bits, a
// running flag at bit 5, a calibrated flag at bit 4.
package discovery

import "fmt"

// Role identifies what kind of host answered a scan.
type Role int

const (
	RoleConfiglessClient Role = iota
	RoleClient
	RoleServer
)

// State is the organizer's view of a host's liveness. Unreachable is never
// transmitted on the wire — it is a local deduction made when a scan gets
// no reply.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateUnreachable
)

// Info is a host's transmissible status: its role, whether it is running,
// and (for Client only) whether it has completed calibration.
type Info struct {
	Role       Role
	Running    bool
	Calibrated bool
}

const (
	roleShift      = 6
	roleMask       = 0x3
	runningBit     = 1 << 5
	calibratedBit  = 1 << 4
	roleConfigless = 0x2
	roleClientBits = 0x1
	roleServerBits = 0x3
)

// Encode packs Info into the single status byte sent in reply to a
// broadcast Ping. Calibrated is only meaningful for RoleClient and is
// otherwise encoded as 0.
func Encode(info Info) (byte, error) {
	var roleBits byte
	switch info.Role {
	case RoleConfiglessClient:
		roleBits = roleConfigless
	case RoleClient:
		roleBits = roleClientBits
	case RoleServer:
		roleBits = roleServerBits
	default:
		return 0, fmt.Errorf("discovery: unknown role %d", info.Role)
	}

	b := roleBits << roleShift
	if info.Running {
		b |= runningBit
	}
	if info.Role == RoleClient && info.Calibrated {
		b |= calibratedBit
	}
	return b, nil
}

// Decode unpacks a status byte received in reply to a scan Ping.
func Decode(b byte) (Info, error) {
	roleBits := (b >> roleShift) & roleMask
	var role Role
	switch roleBits {
	case roleConfigless:
		role = RoleConfiglessClient
	case roleClientBits:
		role = RoleClient
	case roleServerBits:
		role = RoleServer
	default:
		return Info{}, fmt.Errorf("discovery: invalid role bits %02b", roleBits)
	}

	info := Info{
		Role:    role,
		Running: b&runningBit != 0,
	}
	if role == RoleClient {
		info.Calibrated = b&calibratedBit != 0
	}
	return info, nil
}

// Host is the organizer's record for one discovered machine.
type Host struct {
	IP    string
	Info  Info
	State State
}

// String renders a host the way an operator scanning for targets wants to
// see it: its role, IP, calibration flag (clients only), and state.
func (h Host) String() string {
	var kind string
	switch h.Info.Role {
	case RoleClient:
		kind = "CLIENT"
	case RoleConfiglessClient:
		kind = "PHONE"
	case RoleServer:
		kind = "SERVER"
	default:
		kind = "UNKNOWN"
	}

	s := fmt.Sprintf("%s %s", kind, h.IP)
	if h.Info.Role == RoleClient && h.Info.Calibrated {
		s += " CALIBRATED"
	}
	return s + " " + h.State.String()
}

// String renders a State the way an operator's host listing does.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateUnreachable:
		return "UNREACHABLE"
	default:
		return "UNKNOWN"
	}
}

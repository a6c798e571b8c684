// Package organizer implements the configuration/supervisory process: it
// discovers hosts by UDP broadcast, drives each client through a TCP
// image-calibration handshake, and instructs the server to start. It owns
// a broadcast-capable UDP socket and a TCP listener on
// ORGANIZER_STARTER_PORT, mirroring the teacher's Sender's mixed
// UDP/TCP-client shape (rbc/sender.go) adapted to the organizer's
// request/reply roles rather than fire-and-forget fan-out.
package organizer

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/camloc/camloc/discovery"
	"github.com/camloc/camloc/geo"
	"github.com/camloc/camloc/wire"
)

// StarterPort is the TCP port the organizer listens on for a client's
// back-connection during the image handshake, 0xDDDB.
const StarterPort = 0xDDDB

// TimeoutDuration is the per-socket read timeout used while scanning.
const TimeoutDuration = 500 * time.Millisecond

// WaitDuration is how long a scan collects replies for: 4x
// TimeoutDuration.
const WaitDuration = 4 * TimeoutDuration

// Organizer coordinates host discovery and the calibration handshake. It
// holds no back-reference into the localization service; it speaks to
// hosts purely over UDP/TCP using the shared wire protocol.
type Organizer struct {
	udp      *net.UDPConn
	listener *net.TCPListener
	hosts    *discovery.Registry
}

// New opens the organizer's broadcast UDP socket and TCP starter
// listener.
func New() (*Organizer, error) {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("organizer: open broadcast socket: %w", err)
	}

	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: StarterPort})
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("organizer: listen on starter port %d: %w", StarterPort, err)
	}

	return &Organizer{udp: udpConn, listener: ln, hosts: discovery.NewRegistry()}, nil
}

// Close releases the organizer's sockets.
func (o *Organizer) Close() error {
	o.listener.Close()
	return o.udp.Close()
}

// Hosts returns a snapshot of every host the organizer currently knows
// about.
func (o *Organizer) Hosts() []discovery.Host {
	return o.hosts.Snapshot()
}

// Scan broadcasts a Ping to broadcastAddr (e.g. "255.255.255.255:56797")
// and collects status-byte replies for WaitDuration. Every known host not
// heard from this round is marked Unreachable without losing its role.
func (o *Organizer) Scan(broadcastAddr string) error {
	addr, err := net.ResolveUDPAddr("udp", broadcastAddr)
	if err != nil {
		return fmt.Errorf("organizer: resolve broadcast addr: %w", err)
	}

	if _, err := o.udp.WriteToUDP(wire.Encode(wire.Ping{}), addr); err != nil {
		return fmt.Errorf("organizer: broadcast ping: %w", err)
	}

	deadline := time.Now().Add(WaitDuration)
	var replies []discovery.ScanResult
	buf := make([]byte, wire.MaxMessageSize)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		readTimeout := TimeoutDuration
		if remaining < readTimeout {
			readTimeout = remaining
		}
		o.udp.SetReadDeadline(time.Now().Add(readTimeout))

		n, from, err := o.udp.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Printf("organizer: scan read error: %v", err)
			continue
		}
		if n != 1 {
			continue
		}
		info, err := discovery.Decode(buf[0])
		if err != nil {
			continue
		}
		replies = append(replies, discovery.ScanResult{IP: from.IP.String(), Info: info})
	}

	o.hosts.ApplyScan(replies)
	return nil
}

// StartServer sends StartServer{cube} to the chosen host over UDP.
func (o *Organizer) StartServer(hostAddr string, cube geo.Cube) error {
	addr, err := net.ResolveUDPAddr("udp", hostAddr)
	if err != nil {
		return err
	}
	_, err = o.udp.WriteToUDP(wire.Encode(wire.StartServer{Cube: [4]byte(cube)}), addr)
	return err
}

// mainPort is the well-known UDP port the service listens on, mirroring
// service.MainPort for addresses StartServerAuto builds itself.
const mainPort = 0xDDDD

// ErrNoEligibleHost is returned by SelectServerCandidate when no scanned
// host is an idle client eligible to be promoted to server.
var ErrNoEligibleHost = errors.New("organizer: no idle client eligible to become server")

// ErrMultipleEligibleHosts is returned by SelectServerCandidate when more
// than one scanned host is eligible, leaving the choice ambiguous.
type ErrMultipleEligibleHosts struct{ Count int }

func (e ErrMultipleEligibleHosts) Error() string {
	return fmt.Sprintf("organizer: multiple idle clients eligible to become server (%d)", e.Count)
}

// SelectServerCandidate picks the single idle, non-server host from the
// most recent scan that is eligible to be promoted to server. It errors
// if zero or more than one host qualifies, rather than guessing.
func (o *Organizer) SelectServerCandidate() (discovery.Host, error) {
	var candidate discovery.Host
	count := 0
	for _, h := range o.hosts.Snapshot() {
		if h.State != discovery.StateIdle {
			continue
		}
		if h.Info.Role != discovery.RoleClient && h.Info.Role != discovery.RoleConfiglessClient {
			continue
		}
		count++
		if count == 1 {
			candidate = h
		}
	}

	switch count {
	case 0:
		return discovery.Host{}, ErrNoEligibleHost
	case 1:
		return candidate, nil
	default:
		return discovery.Host{}, ErrMultipleEligibleHosts{Count: count}
	}
}

// StartServerAuto selects the single eligible idle host via
// SelectServerCandidate and sends it StartServer{cube}.
func (o *Organizer) StartServerAuto(cube geo.Cube) (discovery.Host, error) {
	host, err := o.SelectServerCandidate()
	if err != nil {
		return discovery.Host{}, err
	}
	addr := fmt.Sprintf("%s:%d", host.IP, mainPort)
	return host, o.StartServer(addr, cube)
}

// UpdateInfo sends an InfoUpdate to the server for a client whose pose or
// FOV changed after calibration.
func (o *Organizer) UpdateInfo(serverAddr string, clientIP string, position geo.Position, fov *float64) error {
	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return err
	}
	cmd := wire.InfoUpdate{
		IP:       clientIP,
		Position: wire.Position{X: position.X, Y: position.Y, Rotation: position.Rotation},
		FOV:      fov,
	}
	_, err = o.udp.WriteToUDP(wire.Encode(cmd), addr)
	return err
}

// ErrHostNotRunning is returned by StopHost when the last scan recorded
// the target host as not running.
var ErrHostNotRunning = errors.New("organizer: host not running")

// StopHost sends Stop to hostAddr and removes it from the registry. It
// refuses to act on a known host whose last recorded state isn't Running;
// a host absent from the registry is sent Stop without that check.
func (o *Organizer) StopHost(hostAddr string) error {
	addr, err := net.ResolveUDPAddr("udp", hostAddr)
	if err != nil {
		return err
	}

	ip := addr.IP.String()
	if known, ok := o.hosts.Get(ip); ok && known.State != discovery.StateRunning {
		return ErrHostNotRunning
	}

	_, err = o.udp.WriteToUDP(wire.Encode(wire.Stop{}), addr)
	o.hosts.Remove(ip)
	return err
}

// AcceptHandshake blocks for a single incoming client back-connection
// and returns the accepted TCP connection for Handshake to drive.
func (o *Organizer) AcceptHandshake(timeout time.Duration) (net.Conn, error) {
	o.listener.SetDeadline(time.Now().Add(timeout))
	return o.listener.Accept()
}

// StartClient sends Start to clientAddr over UDP, then accepts the
// client's TCP back-connection and runs the image-exchange handshake
// described by Handshake.
func (o *Organizer) StartClient(clientAddr string, calibrated bool, deps HandshakeDeps, acceptTimeout time.Duration) (Result, error) {
	addr, err := net.ResolveUDPAddr("udp", clientAddr)
	if err != nil {
		return Result{}, err
	}
	if _, err := o.udp.WriteToUDP(wire.Encode(wire.Start{}), addr); err != nil {
		return Result{}, fmt.Errorf("organizer: send start to %s: %w", clientAddr, err)
	}

	conn, err := o.AcceptHandshake(acceptTimeout)
	if err != nil {
		return Result{}, fmt.Errorf("organizer: accept handshake from %s: %w", clientAddr, err)
	}
	defer conn.Close()

	return Handshake(conn, calibrated, deps)
}

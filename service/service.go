// Package service implements the localization service's single
// cooperative UDP event loop: the two-phase startup/running protocol
// handler described in the camloc spec, wired to the registry,
// triangulator, extrapolator, compass set, and event hub.
package service

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/camloc/camloc/compass"
	"github.com/camloc/camloc/discovery"
	"github.com/camloc/camloc/eventhub"
	"github.com/camloc/camloc/extrapolate"
	"github.com/camloc/camloc/geo"
	"github.com/camloc/camloc/registry"
	"github.com/camloc/camloc/triangulate"
	"github.com/camloc/camloc/wire"
)

// Config tunes the service's behavior. Zero values fall back to spec
// defaults.
type Config struct {
	// Port is the UDP port to bind. Defaults to MainPort.
	Port int
	// ValidFor is how long a bearing remains usable after it is
	// received. Defaults to registry.DefaultValidFor (500ms).
	ValidFor time.Duration
	// MinAngleDiff is the minimum angular separation two rays must have
	// to be considered non-parallel. Defaults to
	// triangulate.DefaultMinAngleDiff.
	MinAngleDiff float64
}

// MainPort is the well-known UDP port both the service and its clients
// bind, 0xDDDD.
const MainPort = 0xDDDD

// Service is the UDP-socket-owning localization service described by the
// camloc protocol. A single goroutine (Run) owns the socket and the
// registry lock; it never holds the registry lock across a blocking
// call. The last known position, extrapolator, motion hint, and cube are
// guarded by a reader-writer lock so organizer queries and get-position
// callers don't block the service loop; the compass set and the event
// hub carry their own locks.
type Service struct {
	cfg  Config
	conn *net.UDPConn

	reg  *registry.Registry
	hub  *eventhub.Hub
	comp *compass.Set

	mu           sync.RWMutex
	lastKnownPos *geo.Position
	extrapolator extrapolate.Extrapolator
	motionHint   *geo.MotionData
	cube         geo.Cube
}

// New binds the service's UDP socket and returns a Service ready to Run.
// Binding failure is the one fatal error this constructor propagates to
// its caller; everything else the service loop encounters is logged and
// survived.
func New(cfg Config) (*Service, error) {
	if cfg.Port == 0 {
		cfg.Port = MainPort
	}
	if cfg.ValidFor == 0 {
		cfg.ValidFor = registry.DefaultValidFor
	}
	if cfg.MinAngleDiff == 0 {
		cfg.MinAngleDiff = triangulate.DefaultMinAngleDiff
	}

	addr := net.UDPAddr{Port: cfg.Port, IP: net.IPv4zero}
	conn, err := net.ListenUDP("udp", &addr)
	if err != nil {
		return nil, fmt.Errorf("service: bind port %d: %w", cfg.Port, err)
	}

	return &Service{
		cfg:          cfg,
		conn:         conn,
		reg:          registry.New(),
		hub:          eventhub.New(),
		comp:         compass.NewSet(),
		extrapolator: extrapolate.NewLinear(),
	}, nil
}

// Hub exposes the event-subscription surface.
func (s *Service) Hub() *eventhub.Hub { return s.hub }

// AddCompass registers a compass whose reading will be averaged into
// every future triangulation call.
func (s *Service) AddCompass(c compass.Compass) {
	s.comp.Add(c)
}

// SetExtrapolation replaces the extrapolator used between fixes. A nil
// extrapolator falls back to the linear default.
func (s *Service) SetExtrapolation(e extrapolate.Extrapolator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e == nil {
		e = extrapolate.NewLinear()
	}
	s.extrapolator = e
}

// SetMotionHint records the latest externally supplied motion hint, or
// clears it when hint is nil.
func (s *Service) SetMotionHint(hint *geo.MotionData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motionHint = hint
}

// GetPosition returns the current best position estimate: the
// extrapolator's estimate at now (or the newest fix itself while the
// extrapolator cannot yet estimate) if the newest stored fix is still
// within ValidFor, or false if no usable fix exists.
func (s *Service) GetPosition() (geo.Position, bool) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	last, ok := s.extrapolator.LastDatapoint()
	if !ok || now.Sub(last.Time) > s.cfg.ValidFor {
		return geo.Position{}, false
	}
	if p, ok := s.extrapolator.Extrapolate(now); ok {
		return p, true
	}
	return last.Position, true
}

// Run awaits StartServer, then drives the running-phase UDP loop until
// ctx is canceled or a Stop datagram arrives. In either case it sends
// Stop to every registered client before returning.
func (s *Service) Run(ctx context.Context) error {
	cube, err := s.awaitStart(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cube = cube
	s.mu.Unlock()

	return s.runLoop(ctx)
}

// Stop closes the service's socket, unblocking any pending ReadFromUDP
// and ending Run.
func (s *Service) Stop() error {
	return s.conn.Close()
}

// awaitStart implements the startup phase: reply Idle to Ping, and
// return once a StartServer datagram arrives.
func (s *Service) awaitStart(ctx context.Context) (geo.Cube, error) {
	buf := make([]byte, wire.MaxMessageSize)
	for {
		if ctx.Err() != nil {
			return geo.Cube{}, ctx.Err()
		}
		s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return geo.Cube{}, ctx.Err()
			}
			log.Printf("service: startup read error: %v", err)
			continue
		}

		cmd, err := wire.Decode(buf[:n])
		if err != nil {
			continue
		}

		switch c := cmd.(type) {
		case wire.Ping:
			s.replyStatus(addr, false)
		case wire.StartServer:
			return geo.Cube(c.Cube), nil
		}
	}
}

// runLoop implements the running phase: dispatch each datagram, end the
// phase on Stop, and check cancellation between reads.
func (s *Service) runLoop(ctx context.Context) error {
	buf := make([]byte, wire.MaxMessageSize)
	for {
		if ctx.Err() != nil {
			s.sendStopToAll()
			return nil
		}

		s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				s.sendStopToAll()
				return nil
			}
			log.Printf("service: read error: %v", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		if cmd, err := wire.Decode(data); err == nil {
			if _, ok := cmd.(wire.Stop); ok {
				s.sendStopToAll()
				return nil
			}
		}
		s.dispatch(addr, data)
	}
}

// dispatch decodes and handles a single datagram. Unknown or malformed
// datagrams are dropped with no state change and no publication.
func (s *Service) dispatch(addr *net.UDPAddr, data []byte) {
	cmd, err := wire.Decode(data)
	if err != nil {
		return
	}

	switch c := cmd.(type) {
	case wire.Ping:
		s.replyStatus(addr, true)
	case wire.Connect:
		s.handleConnect(addr, c)
	case wire.ValueUpdate:
		s.handleValueUpdate(addr, c, time.Now())
	case wire.InfoUpdate:
		s.handleInfoUpdate(c)
	case wire.ClientDisconnect:
		s.handleDisconnect(addr)
	case wire.Stop:
		// Handled by runLoop, which ends the running phase on Stop.
	}
}

func (s *Service) handleConnect(addr *net.UDPAddr, c wire.Connect) {
	camera := geo.PlacedCamera{
		Position: geo.Position{X: c.Position.X, Y: c.Position.Y, Rotation: c.Position.Rotation},
		FOV:      c.FOV,
	}
	s.reg.Insert(addr.String(), camera, time.Now(), s.cfg.ValidFor)

	s.hub.Publish(eventhub.Event{
		Kind: eventhub.EventConnect,
		Payload: eventhub.ConnectPayload{
			Address: addr.String(),
			X:       camera.Position.X,
			Y:       camera.Position.Y,
			FOV:     camera.FOV,
		},
	})
}

func (s *Service) handleValueUpdate(addr *net.UDPAddr, c wire.ValueUpdate, recvTime time.Time) {
	result := s.reg.UpdateBearing(addr.String(), geo.ClientData{
		MarkerID:  c.MarkerID,
		XPosition: c.XPosition,
	}, recvTime)
	if !result.Found {
		return
	}
	if !result.WasOldest {
		return
	}

	s.triangulateAndPublish(recvTime)
}

// triangulateAndPublish snapshots the registry and runs the triangulator;
// on a defined result it updates last-known-position, feeds the
// extrapolator, and publishes PositionUpdate.
func (s *Service) triangulateAndPublish(now time.Time) {
	snapshot := s.reg.Snapshot(now)
	samples := make([]triangulate.Sample, len(snapshot))
	for i, e := range snapshot {
		samples[i] = triangulate.Sample{Data: e.Data, Camera: e.Camera}
	}

	compassReading, haveCompass := s.comp.Value()
	var compassPtr *float64
	if haveCompass {
		compassPtr = &compassReading
	}

	s.mu.RLock()
	previous := s.lastKnownPos
	motion := s.motionHint
	cube := s.cube
	s.mu.RUnlock()

	fix, ok := triangulate.Triangulate(s.cfg.MinAngleDiff, samples, motion, compassPtr, previous, cube)
	if !ok {
		return
	}

	s.mu.Lock()
	s.lastKnownPos = &fix
	s.extrapolator.AddDatapoint(geo.TimedPosition{Position: fix, Time: now, StartTime: now})
	s.mu.Unlock()

	s.hub.Publish(eventhub.Event{
		Kind: eventhub.EventPositionUpdate,
		Payload: eventhub.PositionUpdatePayload{
			X:        fix.X,
			Y:        fix.Y,
			Rotation: fix.Rotation,
		},
	})
}

func (s *Service) handleInfoUpdate(c wire.InfoUpdate) {
	position := geo.Position{X: c.Position.X, Y: c.Position.Y, Rotation: c.Position.Rotation}
	s.reg.UpdateInfo(c.IP, position, c.FOV)

	fov := 0.0
	if c.FOV != nil {
		fov = *c.FOV
	}
	s.hub.Publish(eventhub.Event{
		Kind: eventhub.EventInfoUpdate,
		Payload: eventhub.InfoUpdatePayload{
			Address: c.IP,
			X:       position.X,
			Y:       position.Y,
			FOV:     fov,
		},
	})
}

func (s *Service) handleDisconnect(addr *net.UDPAddr) {
	s.reg.RemoveByAddress(addr.String())
	s.hub.Publish(eventhub.Event{
		Kind:    eventhub.EventDisconnect,
		Payload: eventhub.DisconnectPayload{Address: addr.String()},
	})
}

// replyStatus sends a Server status byte in reply to a Ping, Idle during
// startup and Running during the running phase.
func (s *Service) replyStatus(addr *net.UDPAddr, running bool) {
	b, err := discovery.Encode(discovery.Info{Role: discovery.RoleServer, Running: running})
	if err != nil {
		return
	}
	if _, err := s.conn.WriteToUDP([]byte{b}, addr); err != nil {
		log.Printf("service: status reply to %s: %v", addr, err)
	}
}

func (s *Service) sendStopToAll() {
	for _, e := range s.reg.Snapshot(time.Now()) {
		addr, err := net.ResolveUDPAddr("udp", e.Address)
		if err != nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(wire.Encode(wire.Stop{}), addr); err != nil {
			log.Printf("service: stop to %s: %v", addr, err)
		}
	}
}

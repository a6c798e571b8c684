package compass

import (
	"bufio"
	"context"
	"log"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// SerialCompass reads heading lines from a serial-attached compass module
// and exposes the most recent value through Value. The wire trait this
// satisfies is deliberately narrow; the vendor line protocol itself is
// external to the localization core.
type SerialCompass struct {
	port serial.Port

	mu      sync.Mutex
	heading float64
	have    bool
}

// OpenSerial opens portName at the given baud rate and returns a
// SerialCompass ready to be driven by Monitor.
func OpenSerial(portName string, baud int) (*SerialCompass, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	return &SerialCompass{port: port}, nil
}

// Value returns the most recently parsed heading in radians, or false if
// no line has been parsed yet.
func (c *SerialCompass) Value() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heading, c.have
}

// Close closes the underlying serial port.
func (c *SerialCompass) Close() error {
	return c.port.Close()
}

// Monitor reads newline-delimited heading-in-degrees lines from the port
// until ctx is canceled or the port closes. Malformed lines are logged and
// skipped; they never stop the monitor loop.
func (c *SerialCompass) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(c.port)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		c.port.Close()
		close(done)
	}()

	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		deg, err := strconv.ParseFloat(line, 64)
		if err != nil {
			log.Printf("compass: malformed heading line %q: %v", line, err)
			continue
		}
		c.mu.Lock()
		c.heading = degToRad(deg)
		c.have = true
		c.mu.Unlock()
	}

	select {
	case <-ctx.Done():
		return nil
	default:
		return scan.Err()
	}
}

func degToRad(deg float64) float64 {
	const piOver180 = 3.141592653589793 / 180.0
	return deg * piOver180
}

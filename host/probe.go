package host

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is the rate MV2Host talks to the Arduino at (8N1).
const DefaultBaud = 57600

// Probe checks that port can be opened at baud. Opening the port resets most
// Arduino boards, so do not probe while a run is in flight.
func Probe(port string, baud int) error {
	if baud == 0 {
		baud = DefaultBaud
	}
	c := &serial.Config{Name: port, Baud: baud, ReadTimeout: 500 * time.Millisecond}
	s, err := serial.OpenPort(c)
	if err != nil {
		return fmt.Errorf("host: probe %s: %w", port, err)
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("host: probe %s: %w", port, err)
	}
	return nil
}

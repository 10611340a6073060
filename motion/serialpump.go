package motion

import (
	"stepcore/host/serial"
)

// SerialPump is the cooperative serial drain hook: once per tick, the ISR
// polls serial input to avoid losing characters during long moves, on
// targets without hardware FIFO buffering. It wraps host/serial's Port
// abstraction (backed by github.com/tarm/serial on native builds) and does
// a single non-blocking-ish drain per call.
type SerialPump struct {
	port serial.Port
	buf  [64]byte
	sink func([]byte)
}

// NewSerialPump opens the configured port and returns a pump whose Drain
// method is suitable for Controller.SetSerialPump. sink receives whatever
// bytes were read this call; a nil sink discards them (the stepper core
// itself has no use for the bytes, only for keeping the UART's RX FIFO
// from overrunning).
func NewSerialPump(cfg *serial.Config, sink func([]byte)) (*SerialPump, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &SerialPump{port: port, sink: sink}, nil
}

// Drain performs one read attempt. Callers on a target with a short
// ReadTimeout can call this directly as the Controller's serial pump hook;
// it must never block long enough to threaten the next timer deadline.
func (p *SerialPump) Drain() {
	if p == nil || p.port == nil {
		return
	}
	n, err := p.port.Read(p.buf[:])
	if err != nil || n <= 0 {
		return
	}
	if p.sink != nil {
		p.sink(append([]byte(nil), p.buf[:n]...))
	}
}

// Close releases the underlying port.
func (p *SerialPump) Close() error {
	if p == nil || p.port == nil {
		return nil
	}
	return p.port.Close()
}

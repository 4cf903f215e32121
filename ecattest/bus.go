// Package ecattest provides a simulated EtherCAT segment for testing masters
// without network hardware.
package ecattest

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/WangJhone/ecat"
	"github.com/mdlayher/ethernet"
)

// MasterAddr is the Ethernet source address used by ports created with
// Bus.Port.
var MasterAddr = net.HardwareAddr{0x01, 0x01, 0x01, 0x01, 0x01, 0x01}

// A Bus is a simulated EtherCAT segment.  It implements net.PacketConn: each
// frame written to a Bus passes its Slaves in order and is returned by
// ReadFrom.
type Bus struct {
	Slaves []*Slave

	// Drop, if set, discards every frame for which it returns true,
	// simulating a lost frame.
	Drop func(b []byte) bool

	// Mangle, if set, is called with the EtherCAT region of every returning
	// frame before it is delivered.
	Mangle func(b []byte)

	// mu serializes frames passing the slaves.
	mu sync.Mutex

	frames    chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

var _ net.PacketConn = &Bus{}

// NewBus creates a Bus with the specified slaves.
func NewBus(slaves ...*Slave) *Bus {
	return &Bus{
		Slaves: slaves,
		frames: make(chan []byte, ecat.MaxBuffers),
		closed: make(chan struct{}),
	}
}

// Port creates an ecat.Port which exchanges frames with the Bus.
func (b *Bus) Port(cfg *ecat.PortConfig) (*ecat.Port, error) {
	return ecat.NewPort(b, MasterAddr, cfg)
}

// WriteTo sends the Ethernet frame p around the segment.  Frames which do
// not carry EtherCAT are silently discarded.
func (b *Bus) WriteTo(p []byte, _ net.Addr) (int, error) {
	select {
	case <-b.closed:
		return 0, net.ErrClosed
	default:
	}

	f := new(ethernet.Frame)
	if err := f.UnmarshalBinary(p); err != nil {
		return 0, err
	}
	if f.EtherType != ecat.EtherType {
		return len(p), nil
	}

	b.mu.Lock()
	for _, s := range b.Slaves {
		s.process(f.Payload)
	}
	b.mu.Unlock()

	if b.Drop != nil && b.Drop(p) {
		return len(p), nil
	}
	if b.Mangle != nil {
		b.Mangle(f.Payload)
	}

	// The first slave marks the returning frame as locally administered
	src := make(net.HardwareAddr, len(f.Source))
	copy(src, f.Source)
	if len(src) > 0 {
		src[0] |= 0x02
	}
	f.Source = src

	fb, err := f.MarshalBinary()
	if err != nil {
		return 0, err
	}

	select {
	case b.frames <- fb:
	default:
		// Queue full, the frame is lost on the wire
	}

	return len(p), nil
}

// ReadFrom blocks until a frame returns from the segment.  io.EOF is
// returned once the Bus is closed.
func (b *Bus) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case fb := <-b.frames:
		return copy(p, fb), Addr("segment"), nil
	case <-b.closed:
		return 0, nil, io.EOF
	}
}

// Close closes the Bus, unblocking ReadFrom.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
	return nil
}

// LocalAddr implements net.PacketConn.
func (b *Bus) LocalAddr() net.Addr { return Addr("master") }

// SetDeadline implements net.PacketConn; deadlines are not supported.
func (b *Bus) SetDeadline(time.Time) error { return nil }

// SetReadDeadline implements net.PacketConn; deadlines are not supported.
func (b *Bus) SetReadDeadline(time.Time) error { return nil }

// SetWriteDeadline implements net.PacketConn; deadlines are not supported.
func (b *Bus) SetWriteDeadline(time.Time) error { return nil }

// An Addr is the network address of an endpoint on a Bus.
type Addr string

// Network implements net.Addr.
func (a Addr) Network() string { return "ecattest" }

func (a Addr) String() string { return string(a) }

package ecat

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/raw"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/bpf"
)

// PortConfig contains optional settings for a Port.
type PortConfig struct {
	// Logger receives diagnostics about dropped and stray frames.  If nil,
	// diagnostics are discarded.
	Logger logrus.FieldLogger

	// Trace, if set, receives a pcap capture of every transmitted and
	// received frame.
	Trace io.Writer
}

// PortStats contains frame counters of a Port.
type PortStats struct {
	Sent     uint64
	Received uint64
	Timeouts uint64
	Dropped  uint64
}

// A Port is a Transport which exchanges EtherCAT frames over a
// net.PacketConn, typically a raw Ethernet socket opened by ListenPort.
//
// A Port owns MaxBuffers transaction slots.  GetIndex blocks until a slot is
// free, so a Port can be shared by concurrent Clients.
type Port struct {
	p      net.PacketConn
	source net.HardwareAddr
	log    logrus.FieldLogger

	traceMu sync.Mutex
	trace   *pcapgo.Writer

	mu    sync.Mutex
	slots [MaxBuffers]slot
	free  chan uint8

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}

	sent, received, timeouts, dropped atomic.Uint64
}

var _ Transport = &Port{}

// A slot is a single transaction slot of a Port.
type slot struct {
	tx    *Frame
	rx    []byte
	state BufState

	// arrived is signaled when a response was stored in rx.
	arrived chan struct{}
}

// ListenPort opens a raw Ethernet socket for EtherCAT frames on the network
// interface with the specified name, and returns a Port using it.
func ListenPort(iface string, cfg *PortConfig) (*Port, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}

	c, err := raw.ListenPacket(ifi, uint16(EtherType), nil)
	if err != nil {
		return nil, err
	}

	prog, err := bpf.Assemble(etherTypeFilter())
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.SetBPF(prog); err != nil {
		_ = c.Close()
		return nil, err
	}

	return NewPort(c, ifi.HardwareAddr, cfg)
}

// etherTypeFilter returns a BPF program accepting untagged EtherCAT frames.
func etherTypeFilter() []bpf.Instruction {
	return []bpf.Instruction{
		// EtherType follows destination and source address
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(EtherType), SkipFalse: 1},
		bpf.RetConstant{Val: BufferSize + 4},
		bpf.RetConstant{Val: 0},
	}
}

// NewPort creates a Port which sends and receives frames on p, using source
// as the Ethernet source address of transmitted frames.  The Port takes
// ownership of p, and closes it when the Port is closed or creating the Port
// fails.
func NewPort(p net.PacketConn, source net.HardwareAddr, cfg *PortConfig) (*Port, error) {
	if cfg == nil {
		cfg = &PortConfig{}
	}

	port := &Port{
		p:      p,
		source: source,
		log:    cfg.Logger,
		free:   make(chan uint8, MaxBuffers),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	if port.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		port.log = l
	}

	if cfg.Trace != nil {
		w := pcapgo.NewWriter(cfg.Trace)
		if err := w.WriteFileHeader(BufferSize, layers.LinkTypeEthernet); err != nil {
			_ = p.Close()
			return nil, err
		}
		port.trace = w
	}

	// All transmitted frames are broadcast; the first slave marks the
	// source address of returning frames as locally administered.
	hb, err := (&ethernet.Frame{
		Destination: ethernet.Broadcast,
		Source:      source,
		EtherType:   EtherType,
	}).MarshalBinary()
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	for i := range port.slots {
		s := &port.slots[i]
		s.tx = NewFrame(BufferSize)
		s.tx.SetEthernetHeader(hb[:ethernetHeaderLen])
		s.rx = make([]byte, BufferSize)
		s.arrived = make(chan struct{}, 1)

		port.free <- uint8(i)
	}

	go port.serve()

	return port, nil
}

// GetIndex reserves a free transaction slot, blocking until one is
// available, ctx is canceled or the Port is closed.
func (p *Port) GetIndex(ctx context.Context) (uint8, error) {
	select {
	case <-p.closed:
		return 0, ErrPortClosed
	default:
	}

	select {
	case idx := <-p.free:
		p.mu.Lock()
		s := &p.slots[idx]
		s.state = BufAlloc
		drain(s.arrived)
		p.mu.Unlock()
		return idx, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-p.closed:
		return 0, ErrPortClosed
	}
}

// TxFrame returns the transmit Frame of slot idx.
func (p *Port) TxFrame(idx uint8) *Frame {
	return p.slots[idx].tx
}

// RxBuf returns the EtherCAT region of the response received for slot idx.
func (p *Port) RxBuf(idx uint8) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &p.slots[idx]
	if s.state != BufReceived && s.state != BufComplete {
		return nil
	}
	return s.rx
}

// SetBufStat sets the state of slot idx.  Setting BufEmpty returns the slot
// to the Port for reuse.
func (p *Port) SetBufStat(idx uint8, st BufState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &p.slots[idx]
	prev := s.state
	s.state = st

	// Each index is held by the free list at most once, so this never blocks
	if st == BufEmpty && prev != BufEmpty {
		p.free <- idx
	}
}

// SendConfirm transmits the Frame of slot idx and waits for its response.
func (p *Port) SendConfirm(ctx context.Context, idx uint8, timeout time.Duration) (int, error) {
	s := &p.slots[idx]

	p.mu.Lock()
	s.state = BufTx
	drain(s.arrived)
	p.mu.Unlock()

	b := s.tx.Bytes()
	p.writeTrace(b)

	if _, err := p.p.WriteTo(b, &raw.Addr{HardwareAddr: ethernet.Broadcast}); err != nil {
		return NoFrame, err
	}
	p.sent.Add(1)

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-s.arrived:
	case <-t.C:
		p.timeouts.Add(1)
		p.mu.Lock()
		s.state = BufAlloc
		p.mu.Unlock()
		return NoFrame, nil
	case <-ctx.Done():
		return NoFrame, ctx.Err()
	case <-p.closed:
		return NoFrame, ErrPortClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The frame length covers all datagrams, so the work counter of the
	// last datagram ends the EtherCAT region.
	rx := s.rx
	l := int(binary.LittleEndian.Uint16(rx[0:lengthLen]) & maxDataLen)
	return int(binary.LittleEndian.Uint16(rx[l : l+wkcLen])), nil
}

// Stats returns the frame counters of the Port.
func (p *Port) Stats() PortStats {
	return PortStats{
		Sent:     p.sent.Load(),
		Received: p.received.Load(),
		Timeouts: p.timeouts.Load(),
		Dropped:  p.dropped.Load(),
	}
}

// Close closes the Port and its underlying net.PacketConn, and waits for the
// receive loop to exit.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.p.Close()
		<-p.done
	})
	return err
}

// serve reads frames until the underlying net.PacketConn is closed.
func (p *Port) serve() {
	defer close(p.done)

	buf := make([]byte, 2048)
	for {
		n, _, err := p.p.ReadFrom(buf)
		if err != nil {
			select {
			case <-p.closed:
				return
			default:
			}

			// Treat EOF as an exit signal
			if err != io.EOF {
				p.log.WithError(err).Error("ecat: receive loop stopped")
			}
			return
		}

		p.handle(buf[:n])
	}
}

// handle routes a received Ethernet frame to the slot awaiting it.
func (p *Port) handle(b []byte) {
	f := new(ethernet.Frame)
	if err := f.UnmarshalBinary(b); err != nil {
		p.drop(b, "malformed Ethernet frame", err)
		return
	}
	if f.EtherType != EtherType {
		return
	}

	// A frame carrying our own source address did not pass any slave
	if bytes.Equal(f.Source, p.source) {
		return
	}

	pl := f.Payload
	if len(pl) < HeaderLen+wkcLen {
		p.drop(b, "short EtherCAT frame", io.ErrUnexpectedEOF)
		return
	}
	fh := binary.LittleEndian.Uint16(pl[0:lengthLen])
	if fh&typeMask != typeEtherCAT {
		p.drop(b, "unexpected EtherCAT frame type", ErrNotEtherCAT)
		return
	}
	if l := int(fh & maxDataLen); l < datagramHeaderLen+wkcLen || len(pl) < lengthLen+l {
		p.drop(b, "truncated EtherCAT frame", io.ErrUnexpectedEOF)
		return
	}

	p.writeTrace(b)

	idx := pl[indexOffset]
	if int(idx) >= MaxBuffers {
		p.drop(b, "index out of range", nil)
		return
	}

	p.mu.Lock()
	s := &p.slots[idx]
	if s.state != BufTx {
		p.mu.Unlock()
		p.drop(b, "no transaction awaiting index", nil)
		return
	}
	n := copy(s.rx[:cap(s.rx)], pl)
	s.rx = s.rx[:n]
	s.state = BufReceived
	p.mu.Unlock()

	p.received.Add(1)

	select {
	case s.arrived <- struct{}{}:
	default:
	}
}

func (p *Port) drop(b []byte, reason string, err error) {
	p.dropped.Add(1)

	e := p.log.WithFields(logrus.Fields{
		"len":    len(b),
		"reason": reason,
	})
	if err != nil {
		e = e.WithError(err)
	}
	e.Debug("ecat: dropped frame")
}

func (p *Port) writeTrace(b []byte) {
	if p.trace == nil {
		return
	}

	p.traceMu.Lock()
	defer p.traceMu.Unlock()

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(b),
		Length:        len(b),
	}
	if err := p.trace.WritePacket(ci, b); err != nil {
		p.log.WithError(err).Warn("ecat: writing trace failed")
	}
}

// drain removes a pending signal from c.
func drain(c chan struct{}) {
	select {
	case <-c:
	default:
	}
}

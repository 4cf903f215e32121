package ecat

import (
	"encoding/binary"
)

// A Frame is a transmit buffer holding an Ethernet header followed by one or
// more chained EtherCAT datagrams.
//
// A Frame owns a fixed capacity buffer and tracks the number of bytes in use.
// The Ethernet header occupies the first bytes of the buffer; it is set once
// by a Transport and never modified by SetupDatagram or AddDatagram.
type Frame struct {
	b []byte

	// n is the number of bytes in use, last the offset of the most recently
	// written datagram header.
	n    int
	last int
}

// NewFrame allocates a Frame with a buffer of size bytes.  If size is zero
// or less, BufferSize is used.
func NewFrame(size int) *Frame {
	if size <= 0 {
		size = BufferSize
	}

	return &Frame{
		b: make([]byte, size),
		n: ethernetHeaderLen,
	}
}

// SetEthernetHeader copies the first 14 bytes of h into the link layer
// header of the Frame.
func (f *Frame) SetEthernetHeader(h []byte) {
	copy(f.b[:ethernetHeaderLen], h)
}

// Len returns the number of bytes in use, including the Ethernet header.
func (f *Frame) Len() int { return f.n }

// Cap returns the capacity of the Frame's buffer.
func (f *Frame) Cap() int { return len(f.b) }

// Bytes returns the bytes in use.  The slice aliases the Frame's buffer and
// is only valid until the next call to SetupDatagram or AddDatagram.
func (f *Frame) Bytes() []byte { return f.b[:f.n] }

// Payload returns the EtherCAT region of the bytes in use, without the
// Ethernet header.
func (f *Frame) Payload() []byte { return f.b[ethernetHeaderLen:f.n] }

// SetupDatagram writes a single datagram directly after the Ethernet header,
// discarding any datagrams the Frame held before.  The data length of the
// datagram is len(data).
//
// For read only commands (NOP, APRD, FPRD, BRD, LRD) the datagram data is
// zeroed and data is only used for its length.  For all other commands data
// is copied into the datagram.
//
// SetupDatagram returns the number of bytes now in use by the Frame.
//
// If the datagram does not fit into the Frame, ErrFrameTooLarge is returned
// and the Frame is left unchanged.
func (f *Frame) SetupDatagram(c Command, idx uint8, adp, ado uint16, data []byte) (int, error) {
	l := len(data)
	el := DatagramOverhead + l
	end := FrameOverhead + el
	if l > maxDataLen || el > maxDataLen || end > len(f.b) {
		return 0, ErrFrameTooLarge
	}

	b := f.b[ethernetHeaderLen:end]
	binary.LittleEndian.PutUint16(b[0:2], typeEtherCAT|uint16(el))

	h := DatagramHeader{
		Command: c,
		Index:   idx,
		ADP:     adp,
		ADO:     ado,
		Length:  uint16(l),
	}
	if err := h.put(b[lengthLen:HeaderLen]); err != nil {
		return 0, err
	}

	putData(b[HeaderLen:HeaderLen+l], c, data)
	putWKC(b[HeaderLen+l:])

	f.last = ethernetHeaderLen + lengthLen
	f.n = end

	return f.n, nil
}

// AddDatagram appends a datagram to a Frame which already holds at least one
// datagram.  The EtherCAT frame length is increased accordingly and the
// preceding datagram is flagged as being followed by another one.
//
// more must be true if the caller intends to append further datagrams, and
// false for the last datagram of a frame.  Data is handled as described for
// SetupDatagram.
//
// AddDatagram returns the offset of the new datagram's data relative to the
// start of the EtherCAT region, which is where the data is found in a
// response buffer whose Ethernet header was stripped.
//
// If the Frame holds no datagram, ErrNoDatagram is returned.  If the datagram
// does not fit into the Frame, ErrFrameTooLarge is returned.  In both cases
// the Frame is left unchanged.
func (f *Frame) AddDatagram(c Command, idx uint8, more bool, adp, ado uint16, data []byte) (int, error) {
	prev := f.n
	if prev < ethernetHeaderLen+HeaderLen+wkcLen {
		return 0, ErrNoDatagram
	}

	l := len(data)
	dl := DatagramOverhead + l
	end := prev + dl

	fh := f.b[ethernetHeaderLen : ethernetHeaderLen+lengthLen]
	el := binary.LittleEndian.Uint16(fh)
	nl := int(el&maxDataLen) + dl
	if l > maxDataLen || nl > maxDataLen || end > len(f.b) {
		return 0, ErrFrameTooLarge
	}

	// Grow the EtherCAT frame length by the new datagram, keeping the type
	binary.LittleEndian.PutUint16(fh, (el&^maxDataLen)|uint16(nl))

	// Flag the first and the preceding datagram as followed by another one
	setMore(f.b[ethernetHeaderLen+lengthLen:])
	setMore(f.b[f.last:])

	// The new header starts where the preceding work counter ends; that
	// work counter stays in place and is filled in by the slaves.
	h := DatagramHeader{
		Command: c,
		Index:   idx,
		ADP:     adp,
		ADO:     ado,
		Length:  uint16(l),
		More:    more,
	}
	if err := h.put(f.b[prev : prev+datagramHeaderLen]); err != nil {
		return 0, err
	}

	d := prev + datagramHeaderLen
	putData(f.b[d:d+l], c, data)
	putWKC(f.b[d+l:])

	f.last = prev
	f.n = end

	// Response buffers are delivered without the Ethernet header
	return d - ethernetHeaderLen, nil
}

// putData fills a datagram's data region according to its command.
func putData(b []byte, c Command, data []byte) {
	if c.readOnly() {
		clear(b)
		return
	}

	copy(b, data)
}

// putWKC zeroes the work counter at the start of b.
func putWKC(b []byte) {
	b[0] = 0x00
	b[1] = 0x00
}

// setMore sets the "more datagrams follow" flag of the datagram header at the
// start of b.
func setMore(b []byte) {
	l := binary.LittleEndian.Uint16(b[6:8])
	binary.LittleEndian.PutUint16(b[6:8], l|flagMore)
}

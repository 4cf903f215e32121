package ecat

import (
	"encoding/binary"
	"io"
)

// A DatagramHeader is the header of a single EtherCAT datagram.
//
// In this package, a DatagramHeader does not include the EtherCAT frame
// header which precedes the first datagram of a frame, nor the Ethernet
// header which encapsulates it during transport over a network.
type DatagramHeader struct {
	// Command specifies the addressing mode and direction of the datagram.
	Command Command

	// Index identifies the transaction a datagram belongs to.  A master
	// uses it to correlate a response with its request.
	Index uint8

	// ADP and ADO are the address position and address offset fields.
	//
	// For auto increment commands, ADP is the negated slave position and
	// ADO a register offset.  For configured address commands, ADP is a
	// station address.  For logical commands, ADP and ADO are the low and
	// high 16 bits of a 32-bit logical address.
	ADP uint16
	ADO uint16

	// Length specifies the number of data bytes following the header.  It
	// must fit into 11 bits.
	Length uint16

	// Circulating is set by a slave which detected a circulating frame.
	Circulating bool

	// More indicates that another datagram follows this one.
	More bool

	// IRQ carries the event request bits ORed in by the slaves.
	IRQ uint16
}

// LogicalAddr returns the 32-bit logical address stored in ADP and ADO.
func (h *DatagramHeader) LogicalAddr() uint32 {
	return uint32(h.ADO)<<16 | uint32(h.ADP)
}

// MarshalBinary allocates a byte slice containing the data from a
// DatagramHeader.
//
// If h.Length does not fit into 11 bits, ErrFrameTooLarge is returned.
func (h *DatagramHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, datagramHeaderLen)
	if err := h.put(b); err != nil {
		return nil, err
	}

	return b, nil
}

// put stores h in b, which must hold at least datagramHeaderLen bytes.
func (h *DatagramHeader) put(b []byte) error {
	if h.Length > maxDataLen {
		return ErrFrameTooLarge
	}

	// 0000 0000 0000 0000
	// ^^    ^^^^^^^^^^^^^
	// ||    +-- data length
	// |+------- circulating frame
	// +-------- more datagrams follow
	l := h.Length
	if h.Circulating {
		l |= flagCirculating
	}
	if h.More {
		l |= flagMore
	}

	// All fields are stored in little endian byte order
	b[0] = uint8(h.Command)
	b[1] = h.Index
	binary.LittleEndian.PutUint16(b[2:4], h.ADP)
	binary.LittleEndian.PutUint16(b[4:6], h.ADO)
	binary.LittleEndian.PutUint16(b[6:8], l)
	binary.LittleEndian.PutUint16(b[8:10], h.IRQ)

	return nil
}

// UnmarshalBinary unmarshals a byte slice into a DatagramHeader.
//
// If the byte slice does not contain enough data to form a valid
// DatagramHeader, io.ErrUnexpectedEOF is returned.
func (h *DatagramHeader) UnmarshalBinary(b []byte) error {
	if len(b) < datagramHeaderLen {
		return io.ErrUnexpectedEOF
	}

	h.Command = Command(b[0])
	h.Index = b[1]
	h.ADP = binary.LittleEndian.Uint16(b[2:4])
	h.ADO = binary.LittleEndian.Uint16(b[4:6])

	l := binary.LittleEndian.Uint16(b[6:8])
	h.Length = l & maxDataLen
	h.Circulating = l&flagCirculating != 0
	h.More = l&flagMore != 0

	h.IRQ = binary.LittleEndian.Uint16(b[8:10])

	return nil
}

// A Datagram is a decoded EtherCAT datagram: its header, data and work
// counter.
type Datagram struct {
	Header DatagramHeader

	// Data aliases the buffer the Datagram was parsed from.
	Data []byte

	// WKC is the work counter trailing the data.
	WKC uint16
}

// ParseFrame parses the EtherCAT region of a frame, which starts with the
// EtherCAT frame header, into its chained datagrams.  The Data field of
// each returned Datagram aliases b.
//
// If b does not contain a complete chain of datagrams, io.ErrUnexpectedEOF
// is returned.
//
// If the frame header does not indicate an EtherCAT datagram frame,
// ErrNotEtherCAT is returned.
func ParseFrame(b []byte) ([]Datagram, error) {
	if len(b) < lengthLen {
		return nil, io.ErrUnexpectedEOF
	}

	fh := binary.LittleEndian.Uint16(b[0:2])
	if fh&typeMask != typeEtherCAT {
		return nil, ErrNotEtherCAT
	}

	// The frame length covers all datagrams including their work counters
	n := int(fh & maxDataLen)
	if len(b[lengthLen:]) < n {
		return nil, io.ErrUnexpectedEOF
	}
	b = b[lengthLen : lengthLen+n]

	var dgs []Datagram
	for {
		var d Datagram
		if err := d.Header.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		b = b[datagramHeaderLen:]

		dl := int(d.Header.Length)
		if len(b) < dl+wkcLen {
			return nil, io.ErrUnexpectedEOF
		}
		d.Data = b[:dl:dl]
		d.WKC = binary.LittleEndian.Uint16(b[dl : dl+wkcLen])
		b = b[dl+wkcLen:]

		dgs = append(dgs, d)
		if !d.Header.More {
			return dgs, nil
		}
	}
}

// Package ecat implements EtherCAT datagram framing and the blocking,
// addressed transfer primitives of an EtherCAT master.
//
// A master sends one Ethernet frame carrying one or more chained EtherCAT
// datagrams.  The frame passes through every slave on the segment, and each
// slave reads or writes the memory window addressed by a datagram before the
// frame returns to the master carrying a work counter.
//
// The datagram layout follows IEC 61158-4-12 (EtherCAT data link layer).
package ecat

import (
	"errors"
	"time"

	"github.com/mdlayher/ethernet"
)

//go:generate stringer -output=string.go -type=Command,BufState

const (
	// EtherType is the registered EtherType for EtherCAT, when the protocol
	// is encapsulated directly in an IEEE 802.3 Ethernet frame.
	EtherType ethernet.EtherType = 0x88a4

	// HeaderLen is the offset of the first datagram's data in a received
	// buffer, whose Ethernet header has already been stripped.
	//
	// 2 bytes: EtherCAT frame header (length + type)
	// 1 byte : command
	// 1 byte : index
	// 2 bytes: ADP
	// 2 bytes: ADO
	// 2 bytes: length + flags
	// 2 bytes: IRQ
	HeaderLen = lengthLen + datagramHeaderLen

	// FrameOverhead is the number of bytes of a frame taken by the Ethernet
	// header and the EtherCAT frame header.
	FrameOverhead = ethernetHeaderLen + lengthLen

	// DatagramOverhead is the number of bytes a datagram occupies in
	// addition to its data: the datagram header and the work counter.
	DatagramOverhead = datagramHeaderLen + wkcLen

	// BufferSize is the capacity of a single transmit or receive buffer:
	// a maximum size Ethernet frame without FCS.
	BufferSize = 1518

	// MaxBuffers is the number of transaction slots managed by a Port.
	MaxBuffers = 16

	// NoFrame is the work counter reported when no frame returned within
	// the timeout.
	NoFrame = -1

	// RegDCSystemTime is the ESC register holding the 64-bit distributed
	// clock system time.
	RegDCSystemTime uint16 = 0x0910
)

const (
	// DefaultTimeout is the standard round trip timeout for process data.
	DefaultTimeout = 2 * time.Millisecond

	// SafeTimeout is a generous round trip timeout, used for configuration
	// traffic.
	SafeTimeout = 20 * time.Millisecond
)

const (
	ethernetHeaderLen = 14
	lengthLen         = 2
	datagramHeaderLen = 10
	wkcLen            = 2

	// commandOffset is the offset of the first datagram's command byte in a
	// received buffer.
	commandOffset = lengthLen

	// indexOffset is the offset of the first datagram's index byte in a
	// received buffer.
	indexOffset = lengthLen + 1

	// typeEtherCAT marks an EtherCAT frame header as carrying datagrams
	// (type 1 in the 4 most significant bits).
	typeEtherCAT = 0x1000
	typeMask     = 0xf000

	// maxDataLen is the largest data length representable in the 11 bit
	// length field of a datagram header.
	maxDataLen = 0x07ff

	// flagMore is set in the length field of every datagram that is followed
	// by another datagram in the same frame.
	flagMore = 0x8000

	// flagCirculating is set by a slave when a frame has circulated.
	flagCirculating = 0x4000
)

var (
	// ErrFrameTooLarge is returned when a datagram does not fit into the
	// remaining capacity of a Frame, or its data exceeds the 11 bit length
	// field.
	ErrFrameTooLarge = errors.New("datagram exceeds frame capacity")

	// ErrNoDatagram is returned when a datagram is appended to a Frame which
	// does not hold a datagram yet.
	ErrNoDatagram = errors.New("frame holds no datagram")

	// ErrNotEtherCAT is returned when a frame header does not indicate an
	// EtherCAT datagram frame.
	ErrNotEtherCAT = errors.New("not an EtherCAT datagram frame")

	// ErrPortClosed is returned when a transaction is started on a closed
	// Port.
	ErrPortClosed = errors.New("port closed")
)

// A BufState is the state of a transaction slot of a Transport.
type BufState uint8

const (
	// BufEmpty indicates a slot is free for use.
	BufEmpty BufState = iota

	// BufAlloc indicates a slot was handed out, but not yet transmitted.
	BufAlloc

	// BufTx indicates a slot's frame was transmitted and awaits a response.
	BufTx

	// BufReceived indicates a response arrived for a slot.
	BufReceived

	// BufComplete indicates a slot's response was consumed.
	BufComplete
)

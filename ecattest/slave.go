package ecattest

import (
	"encoding/binary"

	"github.com/WangJhone/ecat"
)

const (
	// RegType is the ESC type register.
	RegType uint16 = 0x0000

	// RegStationAddress is the configured station address register.
	RegStationAddress uint16 = 0x0010

	// RegALStatus is the AL status register.
	RegALStatus uint16 = 0x0130

	// memLen is the size of a slave's physical address space.
	memLen = 1 << 16
)

// An FMMU maps a window of the logical address space onto a slave's
// physical memory.
type FMMU struct {
	Logical  uint32
	Length   uint16
	Physical uint16

	// Read and Write enable the respective direction of the mapping.
	Read, Write bool
}

// A Slave is a simulated EtherCAT slave controller.
type Slave struct {
	// Mem is the physical address space of the slave, registers included.
	Mem [memLen]byte

	// FMMUs configures logical addressing.
	FMMUs []FMMU

	// Clock, if set, is latched into the DC system time register whenever
	// the register is read.
	Clock func() uint64
}

// NewSlave creates a Slave with the configured station address station, in
// the INIT state.
func NewSlave(station uint16) *Slave {
	s := &Slave{}

	// ET1100 signature
	copy(s.Mem[RegType:], []byte{0x11, 0x00, 0x02, 0x00, 0x08, 0x08, 0x08, 0x0b, 0xfc})

	binary.LittleEndian.PutUint16(s.Mem[RegStationAddress:], station)
	binary.LittleEndian.PutUint16(s.Mem[RegALStatus:], 0x0001)

	return s
}

// Station returns the configured station address of the Slave.
func (s *Slave) Station() uint16 {
	return binary.LittleEndian.Uint16(s.Mem[RegStationAddress:])
}

// process handles every datagram of the EtherCAT region b in place, as the
// frame passes the slave.
func (s *Slave) process(b []byte) {
	off := 2
	for off+ecat.HeaderLen <= len(b) {
		var h ecat.DatagramHeader
		if err := h.UnmarshalBinary(b[off:]); err != nil {
			return
		}

		d := off + 10
		w := d + int(h.Length)
		if w+2 > len(b) {
			return
		}

		inc := s.datagram(&h, b[d:w])

		// Auto increment addresses are incremented by every slave
		switch h.Command {
		case ecat.CommandAPRD, ecat.CommandAPWR, ecat.CommandAPRW, ecat.CommandARMW:
			binary.LittleEndian.PutUint16(b[off+2:off+4], h.ADP+1)
		}

		wkc := binary.LittleEndian.Uint16(b[w : w+2])
		binary.LittleEndian.PutUint16(b[w:w+2], wkc+inc)

		if !h.More {
			return
		}
		off = w + 2
	}
}

// datagram handles a single datagram and returns the work counter
// increment.
func (s *Slave) datagram(h *ecat.DatagramHeader, data []byte) uint16 {
	switch h.Command {
	case ecat.CommandAPRD, ecat.CommandAPWR, ecat.CommandAPRW, ecat.CommandARMW:
		return s.physical(h.Command, h.ADP == 0, h.ADO, data)
	case ecat.CommandFPRD, ecat.CommandFPWR, ecat.CommandFPRW, ecat.CommandFRMW:
		return s.physical(h.Command, h.ADP == s.Station(), h.ADO, data)
	case ecat.CommandBRD, ecat.CommandBWR, ecat.CommandBRW:
		return s.physical(h.Command, true, h.ADO, data)
	case ecat.CommandLRD, ecat.CommandLWR, ecat.CommandLRW:
		return s.logical(h.Command, h.LogicalAddr(), data)
	}

	return 0
}

func (s *Slave) physical(c ecat.Command, addressed bool, addr uint16, data []byte) uint16 {
	switch c {
	case ecat.CommandARMW, ecat.CommandFRMW:
		// The addressed slave reads, all others write what it read
		if addressed {
			s.read(addr, data, false)
		} else {
			s.write(addr, data)
		}
		return 1
	}

	if !addressed {
		return 0
	}

	switch c {
	case ecat.CommandAPRD, ecat.CommandFPRD:
		s.read(addr, data, false)
		return 1
	case ecat.CommandBRD:
		s.read(addr, data, true)
		return 1
	case ecat.CommandAPWR, ecat.CommandFPWR, ecat.CommandBWR:
		s.write(addr, data)
		return 1
	default:
		// Read/write exchanges memory and data
		in := append([]byte(nil), data...)
		s.read(addr, data, false)
		s.write(addr, in)
		return 3
	}
}

func (s *Slave) logical(c ecat.Command, addr uint32, data []byte) uint16 {
	in := append([]byte(nil), data...)

	var read, written bool
	for _, f := range s.FMMUs {
		lo := max(addr, f.Logical)
		hi := min(uint64(addr)+uint64(len(data)), uint64(f.Logical)+uint64(f.Length))
		if uint64(lo) >= hi {
			continue
		}
		n := int(hi - uint64(lo))
		di := int(lo - addr)
		pa := f.Physical + uint16(lo-f.Logical)

		// Read before write, so LRW exchanges memory and data
		if f.Read && (c == ecat.CommandLRD || c == ecat.CommandLRW) {
			s.read(pa, data[di:di+n], false)
			read = true
		}
		if f.Write && (c == ecat.CommandLWR || c == ecat.CommandLRW) {
			s.write(pa, in[di:di+n])
			written = true
		}
	}

	// LRW counts a write twice, LWR once
	var inc uint16
	if read {
		inc++
	}
	if written {
		inc++
		if c == ecat.CommandLRW {
			inc++
		}
	}
	return inc
}

// read copies memory at addr into data, ORing it in if or is set.
func (s *Slave) read(addr uint16, data []byte, or bool) {
	s.latchClock(addr, len(data))

	for i := range data {
		v := s.Mem[addr+uint16(i)]
		if or {
			data[i] |= v
		} else {
			data[i] = v
		}
	}
}

func (s *Slave) write(addr uint16, data []byte) {
	for i, v := range data {
		s.Mem[addr+uint16(i)] = v
	}
}

func (s *Slave) latchClock(addr uint16, n int) {
	if s.Clock == nil {
		return
	}

	start, end := int(addr), int(addr)+n
	reg := int(ecat.RegDCSystemTime)
	if start >= reg+8 || end <= reg {
		return
	}
	binary.LittleEndian.PutUint64(s.Mem[reg:reg+8], s.Clock())
}

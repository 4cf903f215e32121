package ecattest

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/WangJhone/ecat"
	"github.com/davecgh/go-spew/spew"
	"github.com/mdlayher/ethernet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip sends the datagrams built by build around the bus and returns
// the datagrams of the returning frame.
func roundTrip(t *testing.T, b *Bus, build func(f *ecat.Frame)) []ecat.Datagram {
	t.Helper()

	f := ecat.NewFrame(ecat.BufferSize)
	hb, err := (&ethernet.Frame{
		Destination: ethernet.Broadcast,
		Source:      MasterAddr,
		EtherType:   ecat.EtherType,
	}).MarshalBinary()
	require.NoError(t, err)
	f.SetEthernetHeader(hb)

	build(f)

	_, err = b.WriteTo(f.Bytes(), nil)
	require.NoError(t, err)

	buf := make([]byte, ecat.BufferSize)
	n, _, err := b.ReadFrom(buf)
	require.NoError(t, err)

	ef := new(ethernet.Frame)
	require.NoError(t, ef.UnmarshalBinary(buf[:n]))
	assert.NotEqual(t, MasterAddr, ef.Source, "returning frame must not carry the master's address")

	dgs, err := ecat.ParseFrame(ef.Payload)
	require.NoError(t, err, spew.Sdump(ef.Payload))
	return dgs
}

func setup(c ecat.Command, adp, ado uint16, data []byte) func(f *ecat.Frame) {
	return func(f *ecat.Frame) {
		if _, err := f.SetupDatagram(c, 0, adp, ado, data); err != nil {
			panic(err)
		}
	}
}

func TestBusWorkCounters(t *testing.T) {
	tests := []struct {
		name string
		c    ecat.Command
		adp  uint16
		want uint16
	}{
		{name: "BRD all slaves", c: ecat.CommandBRD, want: 3},
		{name: "BWR all slaves", c: ecat.CommandBWR, want: 3},
		{name: "BRW all slaves", c: ecat.CommandBRW, want: 9},
		{name: "APRD first slave", c: ecat.CommandAPRD, adp: 0, want: 1},
		{name: "APWR third slave", c: ecat.CommandAPWR, adp: 0xfffe, want: 1},
		{name: "APRD beyond last slave", c: ecat.CommandAPRD, adp: 0xfffd, want: 0},
		{name: "FPRD second slave", c: ecat.CommandFPRD, adp: 0x1002, want: 1},
		{name: "FPRW second slave", c: ecat.CommandFPRW, adp: 0x1002, want: 3},
		{name: "FPWR unknown station", c: ecat.CommandFPWR, adp: 0x2000, want: 0},
		{name: "FRMW all slaves", c: ecat.CommandFRMW, adp: 0x1001, want: 3},
		{name: "ARMW all slaves", c: ecat.CommandARMW, adp: 0, want: 3},
		{name: "NOP", c: ecat.CommandNOP, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBus(NewSlave(0x1001), NewSlave(0x1002), NewSlave(0x1003))
			defer b.Close()

			dgs := roundTrip(t, b, setup(tt.c, tt.adp, 0x0f00, make([]byte, 2)))
			require.Len(t, dgs, 1)
			assert.Equal(t, tt.want, dgs[0].WKC)
		})
	}
}

func TestBusAutoIncrement(t *testing.T) {
	b := NewBus(NewSlave(0x1001), NewSlave(0x1002), NewSlave(0x1003))
	defer b.Close()

	dgs := roundTrip(t, b, setup(ecat.CommandAPRD, 0xffff, RegStationAddress, make([]byte, 2)))
	require.Len(t, dgs, 1)

	// Every slave increments the position
	assert.Equal(t, uint16(0x0002), dgs[0].Header.ADP)
	assert.Equal(t, []byte{0x02, 0x10}, dgs[0].Data)
	assert.Equal(t, uint16(1), dgs[0].WKC)
}

func TestBusBroadcastReadORs(t *testing.T) {
	s1, s2 := NewSlave(0x1001), NewSlave(0x1002)
	s1.Mem[0x0f00] = 0x01
	s2.Mem[0x0f00] = 0x80
	s2.Mem[0x0f01] = 0x04

	b := NewBus(s1, s2)
	defer b.Close()

	dgs := roundTrip(t, b, setup(ecat.CommandBRD, 0, 0x0f00, make([]byte, 2)))
	assert.Equal(t, []byte{0x81, 0x04}, dgs[0].Data)
	assert.Equal(t, uint16(2), dgs[0].WKC)
}

func TestBusReadWriteExchanges(t *testing.T) {
	s := NewSlave(0x1001)
	copy(s.Mem[0x0f00:], []byte{0xaa, 0xbb})

	b := NewBus(s)
	defer b.Close()

	dgs := roundTrip(t, b, setup(ecat.CommandFPRW, 0x1001, 0x0f00, []byte{0x11, 0x22}))
	assert.Equal(t, []byte{0xaa, 0xbb}, dgs[0].Data)
	assert.Equal(t, []byte{0x11, 0x22}, s.Mem[0x0f00:0x0f02])
	assert.Equal(t, uint16(3), dgs[0].WKC)
}

func TestBusLogical(t *testing.T) {
	s1 := NewSlave(0x1001)
	s1.FMMUs = []FMMU{
		{Logical: 0x10000, Length: 2, Physical: 0x1000, Write: true},
		{Logical: 0x10002, Length: 2, Physical: 0x1100, Read: true},
	}
	copy(s1.Mem[0x1100:], []byte{0x55, 0x66})

	s2 := NewSlave(0x1002)
	s2.FMMUs = []FMMU{{Logical: 0x10004, Length: 4, Physical: 0x1000, Read: true, Write: true}}
	copy(s2.Mem[0x1000:], []byte{0x77, 0x88, 0x99, 0xaa})

	b := NewBus(s1, s2)
	defer b.Close()

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	dgs := roundTrip(t, b, func(f *ecat.Frame) {
		if _, err := f.SetupDatagram(ecat.CommandLRW, 0, 0x0000, 0x0001, data); err != nil {
			panic(err)
		}
	})

	assert.Equal(t, []byte{1, 2, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa}, dgs[0].Data)
	assert.Equal(t, []byte{1, 2}, s1.Mem[0x1000:0x1002])
	assert.Equal(t, []byte{5, 6, 7, 8}, s2.Mem[0x1000:0x1004])

	// s1 reads and writes (3), s2 reads and writes (3)
	assert.Equal(t, uint16(6), dgs[0].WKC)

	// Outside of every mapping
	dgs = roundTrip(t, b, setup(ecat.CommandLRD, 0x0000, 0x0002, make([]byte, 4)))
	assert.Equal(t, uint16(0), dgs[0].WKC)
}

func TestBusDistributedClock(t *testing.T) {
	ref := NewSlave(0x1001)
	ref.Clock = func() uint64 { return 0x1122334455667788 }
	s2, s3 := NewSlave(0x1002), NewSlave(0x1003)

	b := NewBus(ref, s2, s3)
	defer b.Close()

	dgs := roundTrip(t, b, func(f *ecat.Frame) {
		if _, err := f.SetupDatagram(ecat.CommandBRD, 0, 0, RegALStatus, make([]byte, 2)); err != nil {
			panic(err)
		}
		if _, err := f.AddDatagram(ecat.CommandFRMW, 0, false, 0x1001, ecat.RegDCSystemTime, make([]byte, 8)); err != nil {
			panic(err)
		}
	})
	require.Len(t, dgs, 2)

	assert.Equal(t, uint16(3), dgs[0].WKC)
	assert.Equal(t, uint16(3), dgs[1].WKC)
	assert.Equal(t, uint64(0x1122334455667788), binary.LittleEndian.Uint64(dgs[1].Data))

	for _, s := range []*Slave{s2, s3} {
		assert.Equal(t, uint64(0x1122334455667788), binary.LittleEndian.Uint64(s.Mem[ecat.RegDCSystemTime:]))
	}
}

func TestBusDrop(t *testing.T) {
	b := NewBus(NewSlave(0x1001))
	b.Drop = func(_ []byte) bool { return true }

	f := ecat.NewFrame(0)
	_, err := f.SetupDatagram(ecat.CommandBRD, 0, 0, 0, make([]byte, 2))
	require.NoError(t, err)

	hb, err := (&ethernet.Frame{
		Destination: ethernet.Broadcast,
		Source:      MasterAddr,
		EtherType:   ecat.EtherType,
	}).MarshalBinary()
	require.NoError(t, err)
	f.SetEthernetHeader(hb)

	_, err = b.WriteTo(f.Bytes(), nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	// Closing unblocks the reader; the dropped frame never arrives
	_, _, err = b.ReadFrom(make([]byte, ecat.BufferSize))
	assert.Equal(t, io.EOF, err)
}

func TestBusIgnoresOtherEtherTypes(t *testing.T) {
	b := NewBus(NewSlave(0x1001))

	fb, err := (&ethernet.Frame{
		Destination: ethernet.Broadcast,
		Source:      MasterAddr,
		EtherType:   ethernet.EtherTypeIPv4,
		Payload:     make([]byte, 46),
	}).MarshalBinary()
	require.NoError(t, err)

	n, err := b.WriteTo(fb, nil)
	require.NoError(t, err)
	assert.Equal(t, len(fb), n)

	require.NoError(t, b.Close())
	_, _, err = b.ReadFrom(make([]byte, ecat.BufferSize))
	assert.Equal(t, io.EOF, err)
}

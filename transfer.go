package ecat

import (
	"context"
	"encoding/binary"
	"time"
)

// A Client issues blocking EtherCAT transfers over a Transport.
//
// Every transfer reserves a transaction slot, builds its datagram into the
// slot's Frame, waits for the response and releases the slot again.  A
// transfer returns the work counter of its response, or NoFrame if no
// response arrived within the timeout.  A work counter of zero or less means
// no slave processed the datagram, and read data is left untouched.
//
// Transfers are never retried; the caller decides whether a work counter is
// sufficient.  The returned error is only non-nil for local failures, such as
// a datagram exceeding the frame capacity or a canceled context.
type Client struct {
	t Transport
}

// NewClient creates a Client which issues transfers over t.  The slot
// allocation of t must be safe for concurrent use if the Client is.
func NewClient(t Transport) *Client {
	return &Client{t: t}
}

// A readback determines when response data is copied into the caller's
// buffer.
type readback int

const (
	// readbackNever is used for write only transfers.
	readbackNever readback = iota

	// readbackWKC copies if the work counter is positive.
	readbackWKC

	// readbackCommand copies if the work counter is positive and the
	// response carries the request's command, guarding logical transfers
	// against acting on an unrelated frame.
	readbackCommand
)

// transfer performs a single datagram transaction.
func (c *Client) transfer(ctx context.Context, cmd Command, adp, ado uint16, data []byte, timeout time.Duration, rb readback) (int, error) {
	idx, err := c.t.GetIndex(ctx)
	if err != nil {
		return NoFrame, err
	}
	defer c.t.SetBufStat(idx, BufEmpty)

	if _, err := c.t.TxFrame(idx).SetupDatagram(cmd, idx, adp, ado, data); err != nil {
		return NoFrame, err
	}

	wkc, err := c.t.SendConfirm(ctx, idx, timeout)
	if err != nil {
		return wkc, err
	}

	rx := c.t.RxBuf(idx)
	if wkc <= 0 || len(rx) < HeaderLen+len(data) {
		return wkc, nil
	}

	switch rb {
	case readbackWKC:
		copy(data, rx[HeaderLen:])
	case readbackCommand:
		if rx[commandOffset] == uint8(cmd) {
			copy(data, rx[HeaderLen:])
		}
	}

	return wkc, nil
}

// BWR performs a broadcast write of data to all slaves.  adp is normally
// zero, ado is the slave memory address.
func (c *Client) BWR(ctx context.Context, adp, ado uint16, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandBWR, adp, ado, data, timeout, readbackNever)
}

// BRD performs a broadcast read.  Every slave ORs its memory at ado into the
// datagram; the result is copied into data.
func (c *Client) BRD(ctx context.Context, adp, ado uint16, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandBRD, adp, ado, data, timeout, readbackWKC)
}

// APRD performs an auto increment read.  Each slave increments adp, and the
// slave which sees zero reads len(data) bytes at ado into data.
func (c *Client) APRD(ctx context.Context, adp, ado uint16, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandAPRD, adp, ado, data, timeout, readbackWKC)
}

// ARMW performs an auto increment read, multiple write.  The slave which
// sees adp zero reads, all following slaves write the read data.
func (c *Client) ARMW(ctx context.Context, adp, ado uint16, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandARMW, adp, ado, data, timeout, readbackWKC)
}

// FRMW performs a configured address read, multiple write.  The slave with
// station address adp reads, all following slaves write the read data.
func (c *Client) FRMW(ctx context.Context, adp, ado uint16, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandFRMW, adp, ado, data, timeout, readbackWKC)
}

// FPRD performs a configured address read from the slave with station
// address adp.
func (c *Client) FPRD(ctx context.Context, adp, ado uint16, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandFPRD, adp, ado, data, timeout, readbackWKC)
}

// APWR performs an auto increment write.
func (c *Client) APWR(ctx context.Context, adp, ado uint16, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandAPWR, adp, ado, data, timeout, readbackNever)
}

// FPWR performs a configured address write to the slave with station
// address adp.
func (c *Client) FPWR(ctx context.Context, adp, ado uint16, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandFPWR, adp, ado, data, timeout, readbackNever)
}

// APRDWord reads a 16-bit word using APRD.
func (c *Client) APRDWord(ctx context.Context, adp, ado uint16, timeout time.Duration) (uint16, int, error) {
	var b [2]byte
	wkc, err := c.APRD(ctx, adp, ado, b[:], timeout)
	return binary.LittleEndian.Uint16(b[:]), wkc, err
}

// FPRDWord reads a 16-bit word using FPRD.
func (c *Client) FPRDWord(ctx context.Context, adp, ado uint16, timeout time.Duration) (uint16, int, error) {
	var b [2]byte
	wkc, err := c.FPRD(ctx, adp, ado, b[:], timeout)
	return binary.LittleEndian.Uint16(b[:]), wkc, err
}

// APWRWord writes a 16-bit word using APWR.
func (c *Client) APWRWord(ctx context.Context, adp, ado, w uint16, timeout time.Duration) (int, error) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], w)
	return c.APWR(ctx, adp, ado, b[:], timeout)
}

// FPWRWord writes a 16-bit word using FPWR.
func (c *Client) FPWRWord(ctx context.Context, adp, ado, w uint16, timeout time.Duration) (int, error) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], w)
	return c.FPWR(ctx, adp, ado, b[:], timeout)
}

// LRW performs a logical read/write at addr.  data is written to the slaves
// and replaced with the data read back.
func (c *Client) LRW(ctx context.Context, addr uint32, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandLRW, loWord(addr), hiWord(addr), data, timeout, readbackCommand)
}

// LRD performs a logical read at addr.
func (c *Client) LRD(ctx context.Context, addr uint32, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandLRD, loWord(addr), hiWord(addr), data, timeout, readbackCommand)
}

// LWR performs a logical write at addr.
func (c *Client) LWR(ctx context.Context, addr uint32, data []byte, timeout time.Duration) (int, error) {
	return c.transfer(ctx, CommandLWR, loWord(addr), hiWord(addr), data, timeout, readbackNever)
}

// LRWDC performs a logical read/write at addr and, in the same frame, reads
// the distributed clock system time of the reference slave with station
// address dcrs.  The time is distributed to all following slaves with FRMW.
//
// LRWDC returns the work counter of the logical datagram and the system time
// read from the reference slave.  If no valid response arrived, dcTime is
// returned unchanged.
func (c *Client) LRWDC(ctx context.Context, addr uint32, data []byte, dcrs uint16, dcTime int64, timeout time.Duration) (int, int64, error) {
	idx, err := c.t.GetIndex(ctx)
	if err != nil {
		return NoFrame, dcTime, err
	}
	defer c.t.SetBufStat(idx, BufEmpty)

	f := c.t.TxFrame(idx)
	if _, err := f.SetupDatagram(CommandLRW, idx, loWord(addr), hiWord(addr), data); err != nil {
		return NoFrame, dcTime, err
	}

	var dc [8]byte
	binary.LittleEndian.PutUint64(dc[:], uint64(dcTime))
	dco, err := f.AddDatagram(CommandFRMW, idx, false, dcrs, RegDCSystemTime, dc[:])
	if err != nil {
		return NoFrame, dcTime, err
	}

	wkc, err := c.t.SendConfirm(ctx, idx, timeout)
	if err != nil {
		return wkc, dcTime, err
	}

	rx := c.t.RxBuf(idx)
	if wkc <= 0 || len(rx) < dco+len(dc) || rx[commandOffset] != uint8(CommandLRW) {
		return wkc, dcTime, nil
	}

	// The transport reports the work counter of the last datagram; the
	// logical datagram's own work counter trails its data.
	l := len(data)
	copy(data, rx[HeaderLen:HeaderLen+l])
	wkc = int(binary.LittleEndian.Uint16(rx[HeaderLen+l : HeaderLen+l+wkcLen]))
	dcTime = int64(binary.LittleEndian.Uint64(rx[dco : dco+len(dc)]))

	return wkc, dcTime, nil
}

func loWord(v uint32) uint16 { return uint16(v) }
func hiWord(v uint32) uint16 { return uint16(v >> 16) }

package ecat

import (
	"context"
	"time"
)

// A Transport sends EtherCAT frames and waits for their responses.  A
// Transport manages a table of transaction slots, each holding one transmit
// Frame and one receive buffer.
//
// A slot handed out by GetIndex is exclusively owned by its caller until it
// is returned with SetBufStat(idx, BufEmpty).  Port is the Transport
// implementation used on real networks.
type Transport interface {
	// GetIndex reserves a free transaction slot and returns its index.
	GetIndex(ctx context.Context) (uint8, error)

	// TxFrame returns the transmit Frame of slot idx.
	TxFrame(idx uint8) *Frame

	// RxBuf returns the receive buffer of slot idx.  The buffer holds the
	// EtherCAT region of the response, without the Ethernet header.
	RxBuf(idx uint8) []byte

	// SendConfirm transmits the Frame of slot idx and blocks until the
	// matching response arrives, timeout elapses or ctx is canceled.
	//
	// SendConfirm returns the work counter of the last datagram in the
	// response, or NoFrame if no response arrived within timeout.
	SendConfirm(ctx context.Context, idx uint8, timeout time.Duration) (int, error)

	// SetBufStat sets the state of slot idx.  Setting BufEmpty releases
	// the slot.
	SetBufStat(idx uint8, s BufState)
}

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/WangJhone/ecat"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// An address selects the slaves a register access is sent to.
type address struct {
	station   uint16
	position  int
	broadcast bool
	ado       uint16
}

func addAddressFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Uint16P("station", "s", 0, "configured station address of the slave")
	f.IntP("position", "p", 0, "position of the slave on the segment, starting at 0")
	f.BoolP("broadcast", "b", false, "address all slaves")
	f.Uint16P("register", "r", 0, "slave memory address")

	cmd.MarkFlagsMutuallyExclusive("station", "position", "broadcast")
	cmd.MarkFlagsOneRequired("station", "position", "broadcast")
	_ = cmd.MarkFlagRequired("register")
}

func parseAddress(cmd *cobra.Command) (address, error) {
	f := cmd.Flags()

	var (
		a   address
		err error
	)
	if a.station, err = f.GetUint16("station"); err != nil {
		return a, err
	}
	if a.position, err = f.GetInt("position"); err != nil {
		return a, err
	}
	if a.broadcast, err = f.GetBool("broadcast"); err != nil {
		return a, err
	}
	if a.ado, err = f.GetUint16("register"); err != nil {
		return a, err
	}

	if a.position < 0 || a.position > 0xffff {
		return a, fmt.Errorf("invalid position: %d", a.position)
	}
	if !f.Changed("position") {
		a.position = -1
	}

	return a, nil
}

func (a address) fields() logrus.Fields {
	switch {
	case a.broadcast:
		return logrus.Fields{"broadcast": true, "register": fmt.Sprintf("%#04x", a.ado)}
	case a.position >= 0:
		return logrus.Fields{"position": a.position, "register": fmt.Sprintf("%#04x", a.ado)}
	default:
		return logrus.Fields{"station": fmt.Sprintf("%#04x", a.station), "register": fmt.Sprintf("%#04x", a.ado)}
	}
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read slave memory",
	Long: `Read slave memory and print a hex dump.  With --broadcast the memory of
all slaves is ORed together.

Examples:
  ecatprobe read --station 0x1001 --register 0x0130 --length 2
  ecatprobe read --position 0 --register 0x0000 --length 8`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := parseAddress(cmd)
		if err != nil {
			return err
		}
		n, err := cmd.Flags().GetInt("length")
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("invalid length: %d", n)
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signalContext()
		defer cancel()

		data := make([]byte, n)
		wkc, err := read(ctx, s.client, a, data, s.cfg.Timeout)
		if err != nil {
			return err
		}
		if err := checkWKC(s, a, wkc); err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write slave memory",
	Long: `Write hex encoded data to slave memory.

Examples:
  ecatprobe write --station 0x1001 --register 0x0120 --data 0200
  ecatprobe write --broadcast --register 0x0120 --data 0100`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := parseAddress(cmd)
		if err != nil {
			return err
		}
		h, err := cmd.Flags().GetString("data")
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(h)
		if err != nil {
			return fmt.Errorf("invalid data: %w", err)
		}
		if len(data) == 0 {
			return errors.New("no data to write")
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signalContext()
		defer cancel()

		wkc, err := write(ctx, s.client, a, data, s.cfg.Timeout)
		if err != nil {
			return err
		}
		if err := checkWKC(s, a, wkc); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes, work counter %d\n", len(data), wkc)
		return nil
	},
}

func init() {
	addAddressFlags(readCmd)
	readCmd.Flags().IntP("length", "l", 2, "number of bytes to read")

	addAddressFlags(writeCmd)
	writeCmd.Flags().StringP("data", "d", "", "hex encoded data to write")
	_ = writeCmd.MarkFlagRequired("data")
}

func read(ctx context.Context, c *ecat.Client, a address, data []byte, timeout time.Duration) (int, error) {
	switch {
	case a.broadcast:
		return c.BRD(ctx, 0x0000, a.ado, data, timeout)
	case a.position >= 0:
		return c.APRD(ctx, uint16(-a.position), a.ado, data, timeout)
	default:
		return c.FPRD(ctx, a.station, a.ado, data, timeout)
	}
}

func write(ctx context.Context, c *ecat.Client, a address, data []byte, timeout time.Duration) (int, error) {
	switch {
	case a.broadcast:
		return c.BWR(ctx, 0x0000, a.ado, data, timeout)
	case a.position >= 0:
		return c.APWR(ctx, uint16(-a.position), a.ado, data, timeout)
	default:
		return c.FPWR(ctx, a.station, a.ado, data, timeout)
	}
}

// checkWKC turns a missing response or an unanswered datagram into an error.
func checkWKC(s *session, a address, wkc int) error {
	e := s.log.WithFields(a.fields()).WithField("wkc", wkc)

	switch {
	case wkc == ecat.NoFrame:
		e.Warn("no frame returned")
		return fmt.Errorf("no frame returned within %s", s.cfg.Timeout)
	case wkc == 0:
		e.Warn("no slave processed the datagram")
		return errors.New("no slave processed the datagram")
	}

	e.Debug("transfer complete")
	return nil
}

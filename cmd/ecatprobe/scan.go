package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/WangJhone/ecat"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	regType           = 0x0000
	regStationAddress = 0x0010
	regALStatus       = 0x0130
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Count slaves and print their addresses and AL status",
	Long: `Count the slaves on the segment with a broadcast read of the ESC type
register, then read the configured station address and AL status of every
slave by its position.

Examples:
  ecatprobe scan -i enp3s0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		return runScan(cmd, s)
	},
}

func runScan(cmd *cobra.Command, s *session) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, timeout := s.client, s.cfg.Timeout

	var b [2]byte
	n, err := c.BRD(ctx, 0x0000, regType, b[:], timeout)
	if err != nil {
		return err
	}
	if n == ecat.NoFrame {
		return fmt.Errorf("no frame returned from %s", s.cfg.Interface)
	}
	s.log.WithField("slaves", n).Info("segment scanned")

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "POSITION\tSTATION\tAL STATUS\tWKC")

	for i := 0; i < n; i++ {
		adp := uint16(-i)

		station, wkc, err := c.APRDWord(ctx, adp, regStationAddress, timeout)
		if err != nil {
			return err
		}
		if wkc != 1 {
			s.log.WithFields(logrus.Fields{
				"position": i,
				"wkc":      wkc,
			}).Warn("slave did not answer")
			fmt.Fprintf(tw, "%d\t-\t-\t%d\n", i, wkc)
			continue
		}

		status, wkc, err := c.APRDWord(ctx, adp, regALStatus, timeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%#04x\t%s\t%d\n", i, station, alState(status), wkc)
	}

	return tw.Flush()
}

// alState formats an AL status register value.
func alState(v uint16) string {
	var s string
	switch v & 0x0f {
	case 0x01:
		s = "INIT"
	case 0x02:
		s = "PRE-OP"
	case 0x03:
		s = "BOOT"
	case 0x04:
		s = "SAFE-OP"
	case 0x08:
		s = "OP"
	default:
		s = fmt.Sprintf("%#x", v&0x0f)
	}

	if v&0x10 != 0 {
		s += "+ERR"
	}
	return s
}

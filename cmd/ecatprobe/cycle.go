package main

import (
	"fmt"
	"time"

	"github.com/WangJhone/ecat"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Exchange process data with distributed clock synchronization",
	Long: `Exchange the configured process image with LRW every period, reading the
system time of the reference clock slave in the same frame.  Runs until
interrupted or --count cycles completed, then prints a summary.

The process image is zeroed; slaves must already be configured for logical
addressing.

Examples:
  ecatprobe cycle -c ecatprobe.yml --count 1000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		count, err := cmd.Flags().GetInt("count")
		if err != nil {
			return err
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		st, err := runCycle(s, count)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d cycles, %d lost frames, work counter %d..%d, last DC time %d\n",
			st.cycles, st.lost, st.minWKC, st.maxWKC, st.dcTime)
		return nil
	},
}

func init() {
	cycleCmd.Flags().Int("count", 0, "number of cycles, 0 runs until interrupted")
}

type cycleStats struct {
	cycles, lost   int
	minWKC, maxWKC int
	dcTime         int64
}

func runCycle(s *session, count int) (cycleStats, error) {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := s.cfg
	data := make([]byte, cfg.Process.Length)

	t := time.NewTicker(cfg.Process.Period)
	defer t.Stop()

	st := cycleStats{minWKC: -1}
	last := 0
	for count == 0 || st.cycles < count {
		wkc, dcTime, err := s.client.LRWDC(ctx, cfg.Process.LogicalAddress, data, cfg.DC.Reference, st.dcTime, cfg.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return st, err
		}
		st.cycles++

		if wkc == ecat.NoFrame {
			st.lost++
		} else {
			st.dcTime = dcTime
			if st.minWKC < 0 || wkc < st.minWKC {
				st.minWKC = wkc
			}
			st.maxWKC = max(st.maxWKC, wkc)
		}

		if wkc != last {
			s.log.WithFields(logrus.Fields{
				"cycle":   st.cycles,
				"wkc":     wkc,
				"dc_time": dcTime,
			}).Info("work counter changed")
			last = wkc
		}

		select {
		case <-t.C:
		case <-ctx.Done():
			s.log.Info("interrupted")
			return st, nil
		}
	}

	return st, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/WangJhone/ecat"
	"github.com/WangJhone/ecat/internal/config"
	"github.com/WangJhone/ecat/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "ecatprobe",
	Short: "Inspect an EtherCAT segment",
	Long: `ecatprobe sends EtherCAT datagrams on a network interface and prints the
responses.  It counts slaves, reads and writes registers and exchanges
process data with distributed clock synchronization.

Settings are read from an optional YAML file, ECATPROBE_ environment
variables and flags, in increasing order of precedence.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file path")
	pf.StringP("interface", "i", "eth0", "network interface")
	pf.Duration("timeout", ecat.SafeTimeout, "round trip timeout of a single transfer")
	pf.String("trace", "", "write a pcap capture of all frames to this file")
	pf.String("log-level", "info", "log level (debug/info/warn/error)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(configCmd)
}

// A session holds the resources shared by the commands which access the
// segment.
type session struct {
	cfg    *config.Config
	log    *logrus.Logger
	port   *ecat.Port
	client *ecat.Client

	closers []io.Closer
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}

// openSession loads the configuration, builds the logger and opens the
// port on the configured interface.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	l, lc, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		log:     l,
		closers: []io.Closer{lc},
	}

	pcfg := &ecat.PortConfig{Logger: l}
	if cfg.Trace != "" {
		f, err := os.Create(cfg.Trace)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		s.closers = append(s.closers, f)
		pcfg.Trace = f
	}

	p, err := ecat.ListenPort(cfg.Interface, pcfg)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to open interface %q: %w", cfg.Interface, err)
	}
	s.closers = append(s.closers, p)
	s.port = p
	s.client = ecat.NewClient(p)

	l.WithField("interface", cfg.Interface).Debug("port opened")

	return s, nil
}

// Close releases the session's resources in reverse order of acquisition.
func (s *session) Close() error {
	if s.port != nil {
		st := s.port.Stats()
		s.log.WithFields(logrus.Fields{
			"sent":     st.Sent,
			"received": st.Received,
			"timeouts": st.Timeouts,
			"dropped":  st.Dropped,
		}).Debug("port closed")
	}

	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if cerr := s.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

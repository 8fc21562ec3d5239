package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/ystepanoff/tangle"
	"github.com/ystepanoff/tangle/driver/stub"
	"github.com/ystepanoff/tangle/internal/logging"
	"github.com/ystepanoff/tangle/ota"
)

const version = "0.1.0"

var (
	portPath    string
	logLevel    string
	writeLimit  int
	constrained bool
	dryRun      bool
	timeout     time.Duration
	rootCmd     *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:           "tangle",
		Short:         "Compile TNGL and drive Tangle controllers",
		Version:       buildVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&portPath, "port", "p", os.Getenv("TANGLE_PORT"), "Serial port of the controller (defaults to $TANGLE_PORT, then the first USB tty)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.IntVar(&writeLimit, "write-limit", 0, "Largest single link write in bytes (0 uses the driver default)")
	flags.BoolVar(&constrained, "constrained", false, "Use small firmware chunks for constrained controllers")
	flags.BoolVar(&dryRun, "dry-run", false, "Send to an emulated controller and print what it received")
	flags.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout of device commands")

	rootCmd.AddCommand(compileCmd(), tokensCmd())
	rootCmd.AddCommand(uploadCmd(), timelineCmd(), emitCmd(), updateCmd(), configCmd(), syncCmd())
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				return version + "+" + setting.Value[:7]
			}
		}
	}
	return version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() hclog.Logger {
	return logging.NewLogger("tangle", logLevel, os.Stderr)
}

// session is one connected controller for the duration of a command.
type session struct {
	dev    *tangle.Device
	stub   *stub.Device
	ctx    context.Context
	cancel context.CancelFunc
}

func connect(cmd *cobra.Command) (*session, error) {
	logger := newLogger()
	opts := tangle.Options{
		Logger: logger,
		OTA:    ota.Options{Constrained: constrained, Progress: progressPrinter(cmd)},
	}

	s := &session{}
	if dryRun {
		opts.OTA.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
		s.dev, s.stub = tangle.NewStubDevice(writeLimit, opts)
	} else {
		s.dev = tangle.NewSerialDevice(portPath, writeLimit, opts)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	s.ctx = ctx
	s.cancel = func() { cancel(); stop() }

	if err := s.dev.Connect(ctx); err != nil {
		s.cancel()
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return s, nil
}

func (s *session) close(cmd *cobra.Command) error {
	defer s.cancel()
	if s.stub != nil {
		for i, p := range s.stub.Payloads() {
			fmt.Fprintf(cmd.OutOrStdout(), "payload %d (%d bytes): % x\n", i, len(p), p)
		}
	}
	return s.dev.Disconnect()
}

func progressPrinter(cmd *cobra.Command) ota.ProgressFunc {
	last := -1
	return func(written, total int) {
		pct := written * 100 / total
		if pct/10 != last/10 || written == total {
			cmd.PrintErrf("\rwritten %d/%d bytes (%d%%)", written, total, pct)
			last = pct
		}
		if written == total {
			cmd.PrintErrln()
		}
	}
}

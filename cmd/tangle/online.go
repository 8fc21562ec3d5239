package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/ystepanoff/tangle"
	"github.com/ystepanoff/tangle/ota"
)

var (
	timelineMs int64
	paused     bool
	deviceID   uint8
	eventAt    int64
)

func addTimelineFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&timelineMs, "timeline", 0, "Timeline position in milliseconds")
	cmd.Flags().BoolVar(&paused, "paused", false, "Leave the timeline paused")
}

// withSession runs fn against a connected controller and disconnects afterwards.
func withSession(fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd)
		if err != nil {
			return err
		}
		runErr := fn(cmd, s, args)
		if err := s.close(cmd); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	}
}

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file.tngl|file.bin>",
		Short: "Upload a TNGL program; .tngl sources are compiled first",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			if strings.EqualFold(filepath.Ext(args[0]), ".tngl") {
				src, err := readSource(args[0])
				if err != nil {
					return err
				}
				return s.dev.UploadTngl(s.ctx, src, timelineMs, paused)
			}
			program, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return s.dev.UploadBytes(s.ctx, program, timelineMs, paused)
		}),
	}
	addTimelineFlags(cmd)
	return cmd
}

func timelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Move the controller timeline",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			return s.dev.SetTimeline(s.ctx, timelineMs, paused)
		}),
	}
	addTimelineFlags(cmd)
	return cmd
}

func emitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit <color|percentage|time|label> <label> <value>",
		Short: "Emit an event to the controllers",
		Example: `  tangle emit color color "#ff8000"
  tangle emit percentage brigh 75
  tangle emit time speed 1.5s
  tangle emit label scene party`,
		Args: cobra.ExactArgs(3),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			kind, label, value := args[0], args[1], args[2]
			at := eventAt
			if !cmd.Flags().Changed("at") {
				at = s.dev.Timeline().Millis()
			}
			switch kind {
			case "color":
				return s.dev.EmitColorEvent(s.ctx, label, value, at, deviceID)
			case "percentage":
				pct, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
				if err != nil {
					return fmt.Errorf("percentage %q: %w", value, err)
				}
				return s.dev.EmitPercentageEvent(s.ctx, label, pct, at, deviceID)
			case "time":
				ms, err := parseMillis(value)
				if err != nil {
					return err
				}
				return s.dev.EmitTimeEvent(s.ctx, label, ms, at, deviceID)
			case "label":
				return s.dev.EmitLabelEvent(s.ctx, label, value, at, deviceID)
			}
			return fmt.Errorf("unknown event kind %q", kind)
		}),
	}
	cmd.Flags().Uint8Var(&deviceID, "device", tangle.BroadcastID, "Target controller id (255 broadcasts)")
	cmd.Flags().Int64Var(&eventAt, "at", 0, "Event timestamp in milliseconds (defaults to the current timeline)")
	return cmd
}

// parseMillis accepts plain milliseconds or a Go duration such as 1.5s.
func parseMillis(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, err)
	}
	return d.Milliseconds(), nil
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <firmware.bin[.gz|.bz2]>",
		Short: "Push a firmware image",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			image, err := ota.LoadImage(args[0])
			if err != nil {
				return err
			}
			return s.dev.UpdateFirmware(s.ctx, image)
		}),
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config <config-file>",
		Short: "Push a controller configuration blob",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			config, err := ota.LoadImage(args[0])
			if err != nil {
				return err
			}
			return s.dev.UpdateConfig(s.ctx, config)
		}),
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push the session clock to the controller",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			if !s.dev.SyncClock(s.ctx) {
				return fmt.Errorf("clock sync refused: link busy or down")
			}
			return nil
		}),
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/dualcap"
	"github.com/bft-labs/dualcap/internal/cliconfig"
	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/internal/stats"
	"github.com/bft-labs/dualcap/pkg/binlog"
	"github.com/bft-labs/dualcap/pkg/log"
)

const longHelp = `Record ESP32 CSI frames and microphone audio side by side.

The CSI board streams framed records over USB serial; dualcap resynchronizes
on the frame magic, stamps every record with host time and writes it to
rotating csi_part_NNN.bin files. Audio is captured as int16 chunks into
audio_part_NNN.bin. metadata.json in the session directory describes both
formats.

Configure via file ($HOME/.dualcap/config.toml, or .yaml), DUALCAP_* env
vars, or flags; flags win over env, env over the file.`

var exampleUsage = strings.TrimSpace(`
  dualcap --serial-port /dev/ttyACM0 --audio-device 1
  dualcap record --session-name kitchen-01 --no-audio
  dualcap --simulate --metrics-addr :9100
  dualcap inspect ./capture_1718000000
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	record := func(cmd *cobra.Command, args []string) error {
		cfgFile := cfgPath
		if cfgFile == "" {
			cfgFile = cliconfig.DefaultConfigPath()
		}

		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		if cfgFile != "" && cliconfig.FileExists(cfgFile) {
			fc, err := cliconfig.LoadFileConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
				return err
			}
		}

		// Env overrides the file; flags override env via the changed map.
		if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level, _ := log.ParseLevel(cfg.LogLevel)
		zl := cliconfig.Logger(level)
		logger := log.NewZerologAdapterWithLogger(zl)
		zl.Debug().Interface("config", cfg).Msg("configuration")

		scfg, err := sessionConfig(cfg)
		if err != nil {
			return err
		}

		opts := []dualcap.Option{dualcap.WithLogger(logger), dualcap.WithStatus(os.Stdout)}
		if cfg.Simulate {
			opts = append(opts, dualcap.WithSimulation(dualcap.SimConfig{
				FrameRate:   100,
				PayloadSize: 128,
				NoiseProb:   0.05,
			}))
		}
		rec, err := dualcap.New(scfg, opts...)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res, err := rec.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("session saved to %s\n", res.Dir)
		return nil
	}

	root := &cobra.Command{
		Use:           "dualcap",
		Short:         "Record ESP32 CSI and audio into timestamped rotating logs",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          record,
	}

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Run a capture session (default command)",
		Args:  cobra.NoArgs,
		RunE:  record,
	}

	for _, fs := range []*pflag.FlagSet{root.Flags(), recordCmd.Flags()} {
		fs.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.dualcap/config.toml)")
		addRecordFlags(fs, &cfg)
	}

	root.AddCommand(recordCmd, newInspectCmd(), newDevicesCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		severity := domain.Severity(err)
		fmt.Fprintf(os.Stderr, "\n%s %v\n", stats.SeverityStyle(severity).Render("["+severity+"]"), err)
		os.Exit(exitCode(err))
	}
}

func addRecordFlags(fs *pflag.FlagSet, cfg *cliconfig.Config) {
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory sessions are created in")
	fs.StringVar(&cfg.SessionName, "session-name", cfg.SessionName, "session directory name (default capture_<unix time>)")

	fs.StringVar(&cfg.SerialPort, "serial-port", cfg.SerialPort, `serial device, or "auto" to detect the capture board`)
	fs.StringVar(&cfg.FallbackPort, "fallback-port", cfg.FallbackPort, "port used when auto-detection finds nothing")
	fs.StringSliceVar(&cfg.PortMatch, "port-match", cfg.PortMatch, "description, product or VID substrings that identify the board")
	fs.IntVar(&cfg.Baud, "baud", cfg.Baud, "serial baud rate")
	fs.IntVar(&cfg.ReadSize, "read-size", cfg.ReadSize, "bytes per bulk serial read")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "serial read timeout")
	fs.DurationVar(&cfg.WaitForPort, "wait-for-port", cfg.WaitForPort, "wait this long for the board to be plugged in")
	fs.IntVar(&cfg.HeaderSize, "header-size", cfg.HeaderSize, "on-wire CSI header size (10 packed, 12 padded)")
	fs.IntVar(&cfg.MaxPayload, "max-payload", cfg.MaxPayload, "largest plausible CSI payload length")
	fs.StringVar(&cfg.CSILayout, "csi-layout", cfg.CSILayout, "CSI log record layout: channel or nochannel")

	fs.IntVar(&cfg.AudioDevice, "audio-device", cfg.AudioDevice, "capture device index (-1 for the system default)")
	fs.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "audio sample rate in Hz")
	fs.IntVar(&cfg.Channels, "channels", cfg.Channels, "audio channel count")
	fs.IntVar(&cfg.ChunkSamples, "chunk-samples", cfg.ChunkSamples, "int16 values per audio chunk")

	fs.Int64Var(&cfg.FileSizeLimit, "file-size-limit", cfg.FileSizeLimit, "rotate log parts at this many bytes")
	fs.IntVar(&cfg.CSIWriteThreshold, "csi-write-threshold", cfg.CSIWriteThreshold, "CSI batch size in bytes before a write")
	fs.IntVar(&cfg.AudioWriteThreshold, "audio-write-threshold", cfg.AudioWriteThreshold, "audio batch size in bytes before a write")
	fs.DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval, "write a pending batch after this long")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "status line refresh interval")

	fs.IntVar(&cfg.RawQueue, "raw-queue", cfg.RawQueue, "serial chunk queue capacity")
	fs.IntVar(&cfg.RecordQueue, "record-queue", cfg.RecordQueue, "CSI record queue capacity")
	fs.IntVar(&cfg.AudioQueue, "audio-queue", cfg.AudioQueue, "audio chunk queue capacity")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "give up on units still running after this long")
	fs.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", cfg.ShutdownGrace, "how long writers keep draining after a stop")

	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	fs.BoolVar(&cfg.NoCSI, "no-csi", cfg.NoCSI, "record audio only")
	fs.BoolVar(&cfg.NoAudio, "no-audio", cfg.NoAudio, "record CSI only")
	fs.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "use synthetic devices")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
}

// sessionConfig converts the validated CLI configuration.
func sessionConfig(cfg cliconfig.Config) (dualcap.Config, error) {
	layout, err := binlog.ParseLayout(cfg.CSILayout)
	if err != nil {
		return dualcap.Config{}, domain.ConfigError("csi layout: %v", err)
	}
	return dualcap.Config{
		OutputDir:           cfg.OutputDir,
		SessionName:         cfg.SessionName,
		SerialPort:          cfg.SerialPort,
		FallbackPort:        cfg.FallbackPort,
		PortMatch:           cfg.PortMatch,
		Baud:                cfg.Baud,
		ReadSize:            cfg.ReadSize,
		ReadTimeout:         cfg.ReadTimeout,
		WaitForPort:         cfg.WaitForPort,
		HeaderSize:          cfg.HeaderSize,
		MaxPayload:          cfg.MaxPayload,
		Layout:              layout,
		AudioDevice:         cfg.AudioDevice,
		SampleRate:          uint32(cfg.SampleRate),
		Channels:            uint32(cfg.Channels),
		ChunkSamples:        cfg.ChunkSamples,
		FileSizeLimit:       cfg.FileSizeLimit,
		CSIWriteThreshold:   cfg.CSIWriteThreshold,
		AudioWriteThreshold: cfg.AudioWriteThreshold,
		FlushInterval:       cfg.FlushInterval,
		StatsInterval:       cfg.StatsInterval,
		RawQueue:            cfg.RawQueue,
		RecordQueue:         cfg.RecordQueue,
		AudioQueue:          cfg.AudioQueue,
		ShutdownTimeout:     cfg.ShutdownTimeout,
		ShutdownGrace:       cfg.ShutdownGrace,
		MetricsAddr:         cfg.MetricsAddr,
		NoCSI:               cfg.NoCSI,
		NoAudio:             cfg.NoAudio,
	}, nil
}

// exitCode maps error classes to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfig):
		return 2
	case errors.Is(err, domain.ErrDevice):
		return 3
	case errors.Is(err, domain.ErrPersistence):
		return 4
	default:
		return 1
	}
}
